package policy

import "github.com/yairfalse/travelgate/types"

// Rule is a loaded, parameterized rule. Evaluate must be pure: the same
// subject always yields the same results in the same order.
type Rule[S any] interface {
	Evaluate(subject S) []types.PolicyResult
}

// RuleFunc adapts a function to Rule
type RuleFunc[S any] func(subject S) []types.PolicyResult

// Evaluate calls f
func (f RuleFunc[S]) Evaluate(subject S) []types.PolicyResult {
	return f(subject)
}

// Kind is one variant of a catalog's closed rule registry. Build runs once,
// at load time, and returns a ConfigError for bad parameters.
type Kind[S any] struct {
	Required        []string
	DefaultSeverity types.Severity
	Build           func(def Definition) (Rule[S], error)

	// Missing lists the subject inputs the kind needs but cannot find
	Missing func(subject S) []string
}

// Catalog is the closed set of rule kinds available to one subject type
type Catalog[S any] struct {
	Name  string
	Kinds map[string]Kind[S]

	// Scope returns the subject's category. Categorized definitions only
	// apply to subjects whose scope matches. Nil means categories are not
	// supported and categorized definitions are rejected at load.
	Scope func(subject S) string

	// Validate rejects malformed subjects before any rule runs
	Validate func(subject S) error
}

// KindNames lists the rule types the catalog accepts
func (c *Catalog[S]) KindNames() []string {
	names := make([]string, 0, len(c.Kinds))
	for name := range c.Kinds {
		names = append(names, name)
	}
	return lowerSet(names)
}
