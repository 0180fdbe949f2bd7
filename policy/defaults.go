package policy

import (
	"embed"
	"fmt"

	"github.com/yairfalse/travelgate/types"
)

//go:embed defaults/*.yaml
var defaultRulesets embed.FS

func loadDefault[S any](catalog *Catalog[S], file string) (*Ruleset[S], error) {
	data, err := defaultRulesets.ReadFile("defaults/" + file)
	if err != nil {
		return nil, fmt.Errorf("failed to read built-in ruleset %s: %w", file, err)
	}
	return Load(catalog, data)
}

// DefaultLiteRuleset returns the built-in policy-lite rules
func DefaultLiteRuleset() (*Ruleset[types.TripContext], error) {
	return loadDefault(LiteCatalog, "policy_lite.yaml")
}

// DefaultValidatorRuleset returns the built-in structural rules
func DefaultValidatorRuleset() (*Ruleset[types.TripPlan], error) {
	return loadDefault(ValidatorCatalog, "validator.yaml")
}

// DefaultExpenseRuleset returns the built-in expense approval rules
func DefaultExpenseRuleset() (*Ruleset[types.ExpenseItem], error) {
	return loadDefault(ExpenseCatalog, "expense_approval.yaml")
}
