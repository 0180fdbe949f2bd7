package policy

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/yairfalse/travelgate/types"
)

// ValidatorCatalog holds the structural rules evaluated against a TripPlan
var ValidatorCatalog = &Catalog[types.TripPlan]{
	Name: "validator",
	Kinds: map[string]Kind[types.TripPlan]{
		"advance_booking": {
			Required: []string{"min_days"},
			Build:    buildPlanAdvanceBooking,
		},
		"budget_limit": {
			Build: buildBudgetLimit,
		},
		"duration_limit": {
			Required: []string{"max_consecutive_days"},
			Build:    buildDurationLimit,
		},
		"rego": {
			Required: []string{"module"},
			Build:    buildRegoRule,
		},
	},
	Validate: func(plan types.TripPlan) error {
		return plan.Validate()
	},
}

func buildPlanAdvanceBooking(def Definition) (Rule[types.TripPlan], error) {
	domestic, err := def.Int("min_days")
	if err != nil {
		return nil, err
	}
	if domestic < 0 {
		return nil, def.paramError("min_days", "must not be negative")
	}

	international := domestic
	if def.Has("min_days_international") {
		if international, err = def.Int("min_days_international"); err != nil {
			return nil, err
		}
		if international < 0 {
			return nil, def.paramError("min_days_international", "must not be negative")
		}
	}

	var destinations []string
	if def.Has("international_destinations") {
		raw, err := def.Strings("international_destinations")
		if err != nil {
			return nil, err
		}
		destinations = lowerSet(raw)
	}

	return RuleFunc[types.TripPlan](func(plan types.TripPlan) []types.PolicyResult {
		if plan.BookedOn.IsZero() {
			return single(def.Result(true, "Advance booking check skipped: booking date not recorded", nil))
		}

		required := domestic
		region := "domestic"
		destination := strings.ToLower(plan.Destination)
		for _, keyword := range destinations {
			if strings.Contains(destination, keyword) {
				required = international
				region = "international"
				break
			}
		}

		notice := types.DaysBetween(plan.BookedOn, plan.DepartureDate)
		ctx := map[string]any{"min_days": required, "notice_days": notice, "region": region}
		if notice < required {
			return single(def.Result(false,
				fmt.Sprintf("Trips must be booked at least %d days in advance; only %d days provided", required, notice), ctx))
		}
		return single(def.Result(true,
			fmt.Sprintf("Booked %d days in advance (minimum %d)", notice, required), ctx))
	}), nil
}

func buildBudgetLimit(def Definition) (Rule[types.TripPlan], error) {
	if !def.Has("trip_limit") && !def.Has("category_limits") {
		return nil, def.paramError("trip_limit", "budget_limit needs trip_limit or category_limits")
	}

	var tripLimit *decimal.Decimal
	if def.Has("trip_limit") {
		limit, err := def.NonNegativeDecimal("trip_limit")
		if err != nil {
			return nil, err
		}
		tripLimit = &limit
	}

	type categoryLimit struct {
		category types.ExpenseCategory
		limit    decimal.Decimal
	}
	var categories []categoryLimit
	if def.Has("category_limits") {
		limits, err := def.DecimalMap("category_limits")
		if err != nil {
			return nil, err
		}
		for name, limit := range limits {
			category := types.ExpenseCategory(name)
			if !types.ValidCategory(category) {
				return nil, def.paramError("category_limits."+name, "unknown expense category")
			}
			if limit.IsNegative() {
				return nil, def.paramError("category_limits."+name, "must not be negative")
			}
			categories = append(categories, categoryLimit{category: category, limit: limit})
		}
		sort.Slice(categories, func(i, j int) bool { return categories[i].category < categories[j].category })
	}

	return RuleFunc[types.TripPlan](func(plan types.TripPlan) []types.PolicyResult {
		var results []types.PolicyResult
		if tripLimit != nil {
			ctx := map[string]any{"scope": "trip", "limit": tripLimit.String(), "amount": plan.EstimatedCost.String()}
			if plan.EstimatedCost.GreaterThan(*tripLimit) {
				results = append(results, def.Result(false,
					fmt.Sprintf("Estimated cost %s exceeds trip limit %s", plan.EstimatedCost, tripLimit), ctx))
			} else {
				results = append(results, def.Result(true,
					fmt.Sprintf("Estimated cost %s within trip limit %s", plan.EstimatedCost, tripLimit), ctx))
			}
		}
		for _, c := range categories {
			planned := plan.ExpenseBreakdown[c.category]
			ctx := map[string]any{"scope": string(c.category), "limit": c.limit.String(), "amount": planned.String()}
			if planned.GreaterThan(c.limit) {
				results = append(results, def.Result(false,
					fmt.Sprintf("Planned %s spend %s exceeds limit %s", c.category, planned, c.limit), ctx))
			} else {
				results = append(results, def.Result(true,
					fmt.Sprintf("Planned %s spend %s within limit %s", c.category, planned, c.limit), ctx))
			}
		}
		return results
	}), nil
}

func buildDurationLimit(def Definition) (Rule[types.TripPlan], error) {
	maxDays, err := def.Int("max_consecutive_days")
	if err != nil {
		return nil, err
	}
	if maxDays <= 0 {
		return nil, def.paramError("max_consecutive_days", "must be greater than zero")
	}
	return RuleFunc[types.TripPlan](func(plan types.TripPlan) []types.PolicyResult {
		duration := plan.DurationDays()
		ctx := map[string]any{"max_consecutive_days": maxDays, "duration_days": duration}
		if duration > maxDays {
			return single(def.Result(false,
				fmt.Sprintf("Trip duration %d days exceeds maximum of %d", duration, maxDays), ctx))
		}
		return single(def.Result(true,
			fmt.Sprintf("Trip duration %d days within maximum of %d", duration, maxDays), ctx))
	}), nil
}
