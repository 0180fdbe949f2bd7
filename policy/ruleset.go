package policy

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/yairfalse/travelgate/canonical"
	"github.com/yairfalse/travelgate/telemetry"
	"github.com/yairfalse/travelgate/types"
)

type boundRule[S any] struct {
	def  Definition
	kind Kind[S]
	rule Rule[S]
}

// Ruleset is a loaded, immutable set of rules for one catalog
type Ruleset[S any] struct {
	catalog *Catalog[S]
	label   string
	version string
	defs    []Definition
	rules   []boundRule[S]
}

func newRuleset[S any](catalog *Catalog[S], label string, defs []Definition, rules []boundRule[S]) (*Ruleset[S], error) {
	version, err := Version(catalog.Name, defs)
	if err != nil {
		return nil, &types.ConfigError{Reason: fmt.Sprintf("hash %s ruleset: %v", catalog.Name, err)}
	}
	return &Ruleset[S]{
		catalog: catalog,
		label:   label,
		version: version,
		defs:    defs,
		rules:   rules,
	}, nil
}

// Version returns the content hash of the ruleset
func (r *Ruleset[S]) Version() string { return r.version }

// Label returns the human version label declared in the file, if any
func (r *Ruleset[S]) Label() string { return r.label }

// Catalog returns the catalog the ruleset was loaded against
func (r *Ruleset[S]) Catalog() *Catalog[S] { return r.catalog }

// Definitions returns a copy of the rule definitions in declaration order
func (r *Ruleset[S]) Definitions() []Definition {
	out := make([]Definition, len(r.defs))
	copy(out, r.defs)
	return out
}

// Evaluate runs the rules that apply to subject in declaration order. A
// later definition with the same name replaces an earlier one in place, so
// category-specific entries layer over general ones.
func (r *Ruleset[S]) Evaluate(subject S) ([]types.PolicyResult, error) {
	if r.catalog.Validate != nil {
		if err := r.catalog.Validate(subject); err != nil {
			return nil, err
		}
	}

	var results []types.PolicyResult
	for _, bound := range r.resolve(subject) {
		results = append(results, bound.rule.Evaluate(subject)...)
	}
	return results, nil
}

// resolve picks the rules that apply to subject, last write wins per name
func (r *Ruleset[S]) resolve(subject S) []boundRule[S] {
	scope := ""
	if r.catalog.Scope != nil {
		scope = r.catalog.Scope(subject)
	}

	resolved := make([]boundRule[S], 0, len(r.rules))
	position := make(map[string]int, len(r.rules))
	for _, bound := range r.rules {
		if bound.def.Category != "" && bound.def.Category != scope {
			continue
		}
		if i, seen := position[bound.def.Name]; seen {
			resolved[i] = bound
			continue
		}
		position[bound.def.Name] = len(resolved)
		resolved = append(resolved, bound)
	}
	return resolved
}

// Version hashes a catalog's definitions. Map key order and numeric
// formatting do not affect the result; any parameter change does.
func Version(catalog string, defs []Definition) (string, error) {
	if defs == nil {
		defs = []Definition{}
	}
	return canonical.HashValue(map[string]any{
		"catalog": catalog,
		"rules":   defs,
	})
}

// Registry holds the active ruleset per id. A deployment step replaces
// entries with Put; evaluations read under a shared lock.
type Registry[S any] struct {
	mu       sync.RWMutex
	rulesets map[string]*Ruleset[S]
	logger   *telemetry.Logger
	metrics  *telemetry.Metrics
}

// NewRegistry creates an empty registry
func NewRegistry[S any]() *Registry[S] {
	return &Registry[S]{
		rulesets: make(map[string]*Ruleset[S]),
		logger:   telemetry.NewLogger("policy-registry"),
		metrics:  telemetry.NoopMetrics(),
	}
}

// Instrument records evaluations made through EvaluateContext on m
func (g *Registry[S]) Instrument(m *telemetry.Metrics) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.metrics = m
}

// Put activates a ruleset under id, replacing any previous one
func (g *Registry[S]) Put(ctx context.Context, id string, rs *Ruleset[S]) {
	g.mu.Lock()
	previous := g.rulesets[id]
	g.rulesets[id] = rs
	g.mu.Unlock()

	event := g.logger.WithContext(ctx).Info().
		Str("ruleset_id", id).
		Str("catalog", rs.catalog.Name).
		Str("policy_version", rs.version).
		Int("rules", len(rs.defs))
	if previous != nil {
		event = event.Str("previous_version", previous.version)
	}
	event.Msg("ruleset activated")
}

// Get returns the active ruleset for id
func (g *Registry[S]) Get(id string) (*Ruleset[S], bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	rs, ok := g.rulesets[id]
	return rs, ok
}

// IDs lists the registered ruleset ids
func (g *Registry[S]) IDs() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	ids := make([]string, 0, len(g.rulesets))
	for id := range g.rulesets {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Evaluate runs the active ruleset id against subject and returns the
// results together with the policy version that produced them
func (g *Registry[S]) Evaluate(id string, subject S) ([]types.PolicyResult, string, error) {
	rs, ok := g.Get(id)
	if !ok {
		return nil, "", &types.ConfigError{Reason: fmt.Sprintf("no active ruleset %q", id)}
	}
	results, err := rs.Evaluate(subject)
	if err != nil {
		return nil, rs.version, err
	}
	return results, rs.version, nil
}

// EvaluateContext is Evaluate wrapped in a span, with evaluation metrics
// and one span event per failed result
func (g *Registry[S]) EvaluateContext(ctx context.Context, id string, subject S) ([]types.PolicyResult, string, error) {
	rs, ok := g.Get(id)
	if !ok {
		return nil, "", &types.ConfigError{Reason: fmt.Sprintf("no active ruleset %q", id)}
	}

	g.mu.RLock()
	metrics := g.metrics
	g.mu.RUnlock()

	ctx, span := telemetry.StartEvaluation(ctx, telemetry.Tracer(), rs.catalog.Name, rs.version)
	start := time.Now()

	results, err := rs.Evaluate(subject)
	if err != nil {
		span.End(err)
		g.logger.WithContext(ctx).Warn().Err(err).Str("ruleset_id", id).Msg("evaluation rejected subject")
		return nil, rs.version, err
	}

	failures := make(map[string]string)
	var failed, blocking int64
	for _, r := range results {
		if r.Passed {
			continue
		}
		failed++
		if r.IsBlocking() {
			blocking++
		}
		failures[r.Key()] = string(r.Severity)
		telemetry.RecordRuleFailedEvent(span.Span(), rs.catalog.Name, r.RuleID, string(r.Severity), r.IsBlocking(), r.Message)
	}
	span.SetResultCounts(int64(len(results)), failed, blocking)
	span.End(nil)

	metrics.RecordEvaluation(ctx, rs.catalog.Name, blocking > 0, failures, float64(time.Since(start).Microseconds())/1000)
	return results, rs.version, nil
}
