package policy

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/yairfalse/travelgate/types"
)

// Definition is one rule entry of a ruleset. Immutable after load.
type Definition struct {
	Type     string         `json:"type"`
	Name     string         `json:"name"`
	Code     string         `json:"code"`
	Severity types.Severity `json:"severity"`
	Blocking bool           `json:"blocking"`
	Category string         `json:"category,omitempty"`
	Params   map[string]any `json:"params,omitempty"`
}

// Result builds a PolicyResult for this definition. Passing results are
// reported at info severity so they never gate a submission.
func (d Definition) Result(passed bool, message string, context map[string]any) types.PolicyResult {
	severity := d.Severity
	if passed {
		severity = types.SeverityInfo
	}
	return types.PolicyResult{
		RuleID:   d.Name,
		Code:     d.Code,
		Message:  message,
		Severity: severity,
		Passed:   passed,
		Blocking: d.Blocking,
		Context:  context,
	}
}

func (d Definition) paramError(key, reason string) error {
	return &types.ConfigError{RuleID: d.Name, Field: "params." + key, Reason: reason}
}

// Has reports whether a parameter is present
func (d Definition) Has(key string) bool {
	_, ok := d.Params[key]
	return ok
}

// Decimal reads a numeric parameter as a decimal
func (d Definition) Decimal(key string) (decimal.Decimal, error) {
	raw, ok := d.Params[key]
	if !ok {
		return decimal.Zero, d.paramError(key, "missing required parameter")
	}
	return d.toDecimal(key, raw)
}

func (d Definition) toDecimal(key string, raw any) (decimal.Decimal, error) {
	switch v := raw.(type) {
	case int:
		return decimal.NewFromInt(int64(v)), nil
	case int64:
		return decimal.NewFromInt(v), nil
	case uint64:
		if v > math.MaxInt64 {
			return decimal.Zero, d.paramError(key, "number out of range")
		}
		return decimal.NewFromInt(int64(v)), nil
	case float64:
		return decimal.NewFromFloat(v), nil
	case string:
		dec, err := decimal.NewFromString(strings.TrimSpace(v))
		if err != nil {
			return decimal.Zero, d.paramError(key, fmt.Sprintf("%q is not a number", v))
		}
		return dec, nil
	default:
		return decimal.Zero, d.paramError(key, fmt.Sprintf("expected a number, got %T", raw))
	}
}

// NonNegativeDecimal reads a decimal parameter that must be >= 0
func (d Definition) NonNegativeDecimal(key string) (decimal.Decimal, error) {
	dec, err := d.Decimal(key)
	if err != nil {
		return dec, err
	}
	if dec.IsNegative() {
		return dec, d.paramError(key, "must not be negative")
	}
	return dec, nil
}

// Int reads an integral parameter
func (d Definition) Int(key string) (int, error) {
	dec, err := d.Decimal(key)
	if err != nil {
		return 0, err
	}
	if !dec.Equal(dec.Truncate(0)) {
		return 0, d.paramError(key, "must be a whole number")
	}
	return int(dec.IntPart()), nil
}

// Float reads a numeric parameter as float64
func (d Definition) Float(key string) (float64, error) {
	dec, err := d.Decimal(key)
	if err != nil {
		return 0, err
	}
	f, _ := dec.Float64()
	return f, nil
}

// String reads a string parameter
func (d Definition) String(key string) (string, error) {
	raw, ok := d.Params[key]
	if !ok {
		return "", d.paramError(key, "missing required parameter")
	}
	s, ok := raw.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return "", d.paramError(key, "expected a non-empty string")
	}
	return s, nil
}

// Strings reads a list-of-strings parameter
func (d Definition) Strings(key string) ([]string, error) {
	raw, ok := d.Params[key]
	if !ok {
		return nil, d.paramError(key, "missing required parameter")
	}
	items, ok := raw.([]any)
	if !ok {
		return nil, d.paramError(key, fmt.Sprintf("expected a list, got %T", raw))
	}
	out := make([]string, 0, len(items))
	for i, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, d.paramError(fmt.Sprintf("%s[%d]", key, i), "expected a string")
		}
		out = append(out, s)
	}
	return out, nil
}

// DecimalMap reads a mapping of names to numbers
func (d Definition) DecimalMap(key string) (map[string]decimal.Decimal, error) {
	raw, ok := d.Params[key]
	if !ok {
		return nil, d.paramError(key, "missing required parameter")
	}
	items, ok := raw.(map[string]any)
	if !ok {
		return nil, d.paramError(key, fmt.Sprintf("expected a mapping, got %T", raw))
	}
	out := make(map[string]decimal.Decimal, len(items))
	for name, value := range items {
		dec, err := d.toDecimal(key+"."+name, value)
		if err != nil {
			return nil, err
		}
		out[name] = dec
	}
	return out, nil
}

// lowerSet builds a sorted, lower-cased, de-duplicated list
func lowerSet(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		key := strings.ToLower(strings.TrimSpace(v))
		if _, dup := seen[key]; dup || key == "" {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}
