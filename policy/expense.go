package policy

import (
	"fmt"
	"strings"

	"github.com/yairfalse/travelgate/types"
)

// ExpenseOutcome is the decision of the expense approval engine
type ExpenseOutcome string

const (
	OutcomeAutoApprove ExpenseOutcome = "auto_approve"
	OutcomeFlag        ExpenseOutcome = "flag"
	OutcomeReject      ExpenseOutcome = "reject"
)

// NoRuleTriggered is the rule name reported when no expense rule fires
const NoRuleTriggered = "no_rule_triggered"

// ExpenseCatalog holds the expense approval rule kinds. Rules may be
// scoped to one expense category.
var ExpenseCatalog = &Catalog[types.ExpenseItem]{
	Name: "expense_approval",
	Kinds: map[string]Kind[types.ExpenseItem]{
		"auto_approve": {
			Required:        []string{"threshold", "approver"},
			DefaultSeverity: types.SeverityInfo,
			Build:           expenseKind(OutcomeAutoApprove),
		},
		"require_approval": {
			Required:        []string{"threshold", "approver"},
			DefaultSeverity: types.SeverityWarning,
			Build:           expenseKind(OutcomeFlag),
		},
		"reject": {
			Required:        []string{"threshold", "approver"},
			DefaultSeverity: types.SeverityError,
			Build:           expenseKind(OutcomeReject),
		},
	},
	Scope: func(item types.ExpenseItem) string {
		return string(item.Category)
	},
	Validate: func(item types.ExpenseItem) error {
		return item.Validate()
	},
}

// expenseKind builds a threshold rule. auto_approve triggers at or below the
// threshold, require_approval at or above it, reject strictly above it.
func expenseKind(outcome ExpenseOutcome) func(def Definition) (Rule[types.ExpenseItem], error) {
	return func(def Definition) (Rule[types.ExpenseItem], error) {
		threshold, err := def.NonNegativeDecimal("threshold")
		if err != nil {
			return nil, err
		}
		approver, err := def.String("approver")
		if err != nil {
			return nil, err
		}
		if def.Category != "" && !types.ValidCategory(types.ExpenseCategory(def.Category)) {
			return nil, &types.ConfigError{RuleID: def.Name, Field: "category", Reason: "unknown expense category " + def.Category}
		}

		return RuleFunc[types.ExpenseItem](func(item types.ExpenseItem) []types.PolicyResult {
			var triggered bool
			switch outcome {
			case OutcomeAutoApprove:
				triggered = item.Amount.LessThanOrEqual(threshold)
			case OutcomeFlag:
				triggered = item.Amount.GreaterThanOrEqual(threshold)
			case OutcomeReject:
				triggered = item.Amount.GreaterThan(threshold)
			}

			ctx := map[string]any{
				"outcome":   string(outcome),
				"triggered": triggered,
				"approver":  approver,
				"threshold": threshold.String(),
				"amount":    item.Amount.String(),
			}
			if !triggered {
				return single(def.Result(true,
					fmt.Sprintf("Expense amount %s did not trigger rule '%s'", item.Amount, def.Name), ctx))
			}
			return single(def.Result(outcome == OutcomeAutoApprove,
				fmt.Sprintf("Expense amount %s triggered rule '%s' with threshold %s", item.Amount, def.Name, threshold), ctx))
		}), nil
	}
}

// ExpenseDecision is the engine's verdict on one expense item
type ExpenseDecision struct {
	Outcome       ExpenseOutcome      `json:"outcome"`
	RuleName      string              `json:"rule_name"`
	Approver      string              `json:"approver"`
	Threshold     string              `json:"threshold,omitempty"`
	Reason        string              `json:"reason"`
	PolicyVersion string              `json:"policy_version"`
	Result        *types.PolicyResult `json:"result,omitempty"`
	Item          types.ExpenseItem   `json:"item"`
}

// ReportDecision aggregates the decisions of an expense report
type ReportDecision struct {
	ReportID      string            `json:"report_id"`
	Outcome       ExpenseOutcome    `json:"outcome"`
	Decisions     []ExpenseDecision `json:"decisions"`
	PolicyVersion string            `json:"policy_version"`
}

// ExpenseEngine decides expense items against one ruleset
type ExpenseEngine struct {
	ruleset *Ruleset[types.ExpenseItem]
	source  string
}

// NewExpenseEngine loads the expense ruleset. A non-empty override text
// replaces the file wholesale; an empty path falls back to the built-in
// default ruleset.
func NewExpenseEngine(path, override string) (*ExpenseEngine, error) {
	switch {
	case strings.TrimSpace(override) != "":
		rs, err := Load(ExpenseCatalog, []byte(override))
		if err != nil {
			return nil, fmt.Errorf("failed to load expense override: %w", err)
		}
		return &ExpenseEngine{ruleset: rs, source: "override"}, nil
	case path != "":
		rs, err := LoadFile(ExpenseCatalog, path)
		if err != nil {
			return nil, err
		}
		return &ExpenseEngine{ruleset: rs, source: path}, nil
	default:
		rs, err := DefaultExpenseRuleset()
		if err != nil {
			return nil, err
		}
		return &ExpenseEngine{ruleset: rs, source: "default"}, nil
	}
}

// NewExpenseEngineFromRuleset wraps an already loaded ruleset
func NewExpenseEngineFromRuleset(rs *Ruleset[types.ExpenseItem]) *ExpenseEngine {
	return &ExpenseEngine{ruleset: rs, source: "ruleset"}
}

// Source reports where the active rules came from
func (e *ExpenseEngine) Source() string { return e.source }

// Ruleset returns the active expense ruleset
func (e *ExpenseEngine) Ruleset() *Ruleset[types.ExpenseItem] { return e.ruleset }

// Decide returns the decision of the first triggered rule in resolved order
func (e *ExpenseEngine) Decide(item types.ExpenseItem) (ExpenseDecision, error) {
	results, err := e.ruleset.Evaluate(item)
	if err != nil {
		return ExpenseDecision{}, err
	}

	for i := range results {
		result := results[i]
		if triggered, _ := result.Context["triggered"].(bool); !triggered {
			continue
		}
		outcome, _ := result.Context["outcome"].(string)
		approver, _ := result.Context["approver"].(string)
		threshold, _ := result.Context["threshold"].(string)
		return ExpenseDecision{
			Outcome:       ExpenseOutcome(outcome),
			RuleName:      result.RuleID,
			Approver:      approver,
			Threshold:     threshold,
			Reason:        result.Message,
			PolicyVersion: e.ruleset.Version(),
			Result:        &result,
			Item:          item,
		}, nil
	}

	return ExpenseDecision{
		Outcome:       OutcomeFlag,
		RuleName:      NoRuleTriggered,
		Approver:      "unassigned",
		Reason:        "No approval rule triggered",
		PolicyVersion: e.ruleset.Version(),
		Item:          item,
	}, nil
}

// EvaluateReport decides every item. Any reject rejects the report, any
// flag flags it, and only a non-empty all-auto report is auto-approved.
func (e *ExpenseEngine) EvaluateReport(report types.ExpenseReport) (ReportDecision, error) {
	decision := ReportDecision{
		ReportID:      report.ReportID,
		Outcome:       OutcomeFlag,
		PolicyVersion: e.ruleset.Version(),
	}
	if len(report.Expenses) == 0 {
		return decision, nil
	}

	var rejected, flagged bool
	for i, item := range report.Expenses {
		d, err := e.Decide(item)
		if err != nil {
			return ReportDecision{}, fmt.Errorf("expense %d of report %s: %w", i, report.ReportID, err)
		}
		decision.Decisions = append(decision.Decisions, d)
		switch d.Outcome {
		case OutcomeReject:
			rejected = true
		case OutcomeFlag:
			flagged = true
		}
	}

	switch {
	case rejected:
		decision.Outcome = OutcomeReject
	case flagged:
		decision.Outcome = OutcomeFlag
	default:
		decision.Outcome = OutcomeAutoApprove
	}
	return decision, nil
}
