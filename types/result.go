package types

import "strings"

// Severity of a rule outcome. Two vocabularies are accepted: the structural
// validator uses error/warning/info, policy-lite uses blocking/advisory.
type Severity string

const (
	SeverityError    Severity = "error"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
	SeverityBlocking Severity = "blocking"
	SeverityAdvisory Severity = "advisory"
)

// ParseSeverity normalizes a configured severity string
func ParseSeverity(s string) (Severity, bool) {
	switch sev := Severity(strings.ToLower(strings.TrimSpace(s))); sev {
	case SeverityError, SeverityWarning, SeverityInfo, SeverityBlocking, SeverityAdvisory:
		return sev, true
	default:
		return "", false
	}
}

// IsErrorEquivalent reports whether the severity can gate a submission
func (s Severity) IsErrorEquivalent() bool {
	return s == SeverityError || s == SeverityBlocking
}

// PolicyResult is the outcome of one rule against one subject
type PolicyResult struct {
	RuleID   string         `json:"rule_id"`
	Code     string         `json:"code"`
	Message  string         `json:"message"`
	Severity Severity       `json:"severity"`
	Passed   bool           `json:"passed"`
	Blocking bool           `json:"blocking"`
	Context  map[string]any `json:"context,omitempty"`
}

// IsBlocking reports whether the result must be resolved before submission
func (r PolicyResult) IsBlocking() bool {
	return r.Severity.IsErrorEquivalent() && r.Blocking
}

// Key identifies a result within one evaluation. Rules that emit several
// results (budget caps per category) set a "scope" context entry.
func (r PolicyResult) Key() string {
	if scope, ok := r.Context["scope"].(string); ok && scope != "" {
		return r.RuleID + ":" + scope
	}
	return r.RuleID
}

// BlockingResults filters results down to the ones that gate submission
func BlockingResults(results []PolicyResult) []PolicyResult {
	var blocking []PolicyResult
	for _, result := range results {
		if result.IsBlocking() {
			blocking = append(blocking, result)
		}
	}
	return blocking
}

// CanSubmit reports whether no result blocks submission
func CanSubmit(results []PolicyResult) bool {
	return len(BlockingResults(results)) == 0
}
