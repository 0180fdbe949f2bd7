package policy

import (
	"fmt"
	"strings"
)

// Diagnostic names a rule that cannot evaluate because inputs are missing
type Diagnostic struct {
	RuleID        string   `json:"rule_id"`
	MissingFields []string `json:"missing_fields"`
	Message       string   `json:"message"`
}

// DiagnoseMissingInputs lists the rules applying to subject that would be
// skipped for lack of input
func (r *Ruleset[S]) DiagnoseMissingInputs(subject S) []Diagnostic {
	var diagnostics []Diagnostic
	for _, bound := range r.resolve(subject) {
		if bound.kind.Missing == nil {
			continue
		}
		missing := bound.kind.Missing(subject)
		if len(missing) == 0 {
			continue
		}
		diagnostics = append(diagnostics, Diagnostic{
			RuleID:        bound.def.Name,
			MissingFields: missing,
			Message:       fmt.Sprintf("Missing required inputs for '%s': %s.", bound.def.Name, strings.Join(missing, ", ")),
		})
	}
	return diagnostics
}
