package policy

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/yairfalse/travelgate/types"
)

// document is the YAML layout of a ruleset file
type document struct {
	Version string           `yaml:"version"`
	Rules   []map[string]any `yaml:"rules"`
}

var reservedKeys = map[string]struct{}{
	"type": {}, "name": {}, "code": {}, "severity": {},
	"blocking": {}, "category": {}, "params": {},
}

// LoadFile reads a ruleset from disk
func LoadFile[S any](catalog *Catalog[S], path string) (*Ruleset[S], error) {
	data, err := os.ReadFile(filepath.Clean(path)) // #nosec G304 -- ruleset path comes from deployment config
	if err != nil {
		return nil, fmt.Errorf("failed to read ruleset %s: %w", path, err)
	}
	rs, err := Load(catalog, data)
	if err != nil {
		return nil, fmt.Errorf("failed to load ruleset %s: %w", path, err)
	}
	return rs, nil
}

// Load parses YAML ruleset content. Every problem with the content surfaces
// here as a ConfigError so a bad deploy fails before evaluation.
func Load[S any](catalog *Catalog[S], data []byte) (*Ruleset[S], error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &types.ConfigError{Reason: fmt.Sprintf("parse %s ruleset: %v", catalog.Name, err)}
	}
	if len(doc.Rules) == 0 {
		return nil, &types.ConfigError{Reason: fmt.Sprintf("%s ruleset must include a 'rules' list", catalog.Name)}
	}

	defs := make([]Definition, 0, len(doc.Rules))
	rules := make([]boundRule[S], 0, len(doc.Rules))
	for i, raw := range doc.Rules {
		def, kind, err := parseDefinition(catalog, i, raw)
		if err != nil {
			return nil, err
		}
		rule, err := kind.Build(def)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
		rules = append(rules, boundRule[S]{def: def, kind: kind, rule: rule})
	}

	return newRuleset(catalog, doc.Version, defs, rules)
}

func parseDefinition[S any](catalog *Catalog[S], index int, raw map[string]any) (Definition, Kind[S], error) {
	var zero Kind[S]
	label := fmt.Sprintf("rules[%d]", index)

	typ, _ := raw["type"].(string)
	if typ == "" {
		return Definition{}, zero, &types.ConfigError{RuleID: label, Field: "type", Reason: "each rule must include a string 'type'"}
	}
	kind, ok := catalog.Kinds[typ]
	if !ok {
		return Definition{}, zero, &types.ConfigError{
			RuleID: label,
			Field:  "type",
			Reason: fmt.Sprintf("unsupported %s rule type %q (known: %s)", catalog.Name, typ, strings.Join(catalog.KindNames(), ", ")),
		}
	}

	def := Definition{Type: typ, Name: typ, Params: map[string]any{}}
	if name, ok := raw["name"]; ok {
		s, isString := name.(string)
		if !isString || s == "" {
			return Definition{}, zero, &types.ConfigError{RuleID: label, Field: "name", Reason: "must be a non-empty string"}
		}
		def.Name = s
	}
	def.Code = def.Name
	if code, ok := raw["code"]; ok {
		s, isString := code.(string)
		if !isString || s == "" {
			return Definition{}, zero, &types.ConfigError{RuleID: def.Name, Field: "code", Reason: "must be a non-empty string"}
		}
		def.Code = s
	}

	def.Severity = kind.DefaultSeverity
	if def.Severity == "" {
		def.Severity = types.SeverityError
	}
	if sev, ok := raw["severity"]; ok {
		s, _ := sev.(string)
		parsed, valid := types.ParseSeverity(s)
		if !valid {
			return Definition{}, zero, &types.ConfigError{RuleID: def.Name, Field: "severity", Reason: fmt.Sprintf("unknown severity %v", sev)}
		}
		def.Severity = parsed
	}

	def.Blocking = def.Severity.IsErrorEquivalent()
	if blocking, ok := raw["blocking"]; ok {
		b, isBool := blocking.(bool)
		if !isBool {
			return Definition{}, zero, &types.ConfigError{RuleID: def.Name, Field: "blocking", Reason: "must be a boolean"}
		}
		def.Blocking = b
	}

	if category, ok := raw["category"]; ok && category != nil {
		s, isString := category.(string)
		if !isString || s == "" {
			return Definition{}, zero, &types.ConfigError{RuleID: def.Name, Field: "category", Reason: "must be a non-empty string"}
		}
		if catalog.Scope == nil {
			return Definition{}, zero, &types.ConfigError{RuleID: def.Name, Field: "category", Reason: fmt.Sprintf("%s rules do not support categories", catalog.Name)}
		}
		def.Category = s
	}

	if params, ok := raw["params"]; ok && params != nil {
		m, isMap := params.(map[string]any)
		if !isMap {
			return Definition{}, zero, &types.ConfigError{RuleID: def.Name, Field: "params", Reason: "must be a mapping"}
		}
		for k, v := range m {
			def.Params[k] = v
		}
	}
	for k, v := range raw {
		if _, reserved := reservedKeys[k]; reserved {
			continue
		}
		if _, dup := def.Params[k]; dup {
			return Definition{}, zero, &types.ConfigError{RuleID: def.Name, Field: k, Reason: "set both inline and under params"}
		}
		def.Params[k] = v
	}

	for _, key := range kind.Required {
		if _, ok := def.Params[key]; !ok {
			return Definition{}, zero, &types.ConfigError{RuleID: def.Name, Field: "params." + key, Reason: "missing required parameter"}
		}
	}

	return def, kind, nil
}
