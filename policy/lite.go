package policy

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/yairfalse/travelgate/types"
)

// LiteCatalog holds the policy-lite rules evaluated against a TripContext
var LiteCatalog = &Catalog[types.TripContext]{
	Name: "policy_lite",
	Kinds: map[string]Kind[types.TripContext]{
		"advance_booking": {
			Required:        []string{"days_required"},
			DefaultSeverity: types.SeverityAdvisory,
			Build:           buildLiteAdvanceBooking,
			Missing: func(c types.TripContext) []string {
				return missing(field{"booking_date", c.BookingDate == nil}, field{"departure_date", c.DepartureDate == nil})
			},
		},
		"fare_comparison": {
			Required:        []string{"max_over_lowest"},
			DefaultSeverity: types.SeverityBlocking,
			Build:           buildFareComparison,
			Missing: func(c types.TripContext) []string {
				return missing(field{"selected_fare", c.SelectedFare == nil}, field{"lowest_fare", c.LowestFare == nil})
			},
		},
		"cabin_class": {
			Required:        []string{"long_haul_hours"},
			DefaultSeverity: types.SeverityBlocking,
			Build:           buildCabinClass,
			Missing: func(c types.TripContext) []string {
				return missing(field{"cabin_class", c.CabinClass == nil}, field{"flight_duration_hours", c.FlightDurationHours == nil})
			},
		},
		"fare_evidence": {
			DefaultSeverity: types.SeverityBlocking,
			Build:           buildFareEvidence,
			Missing: func(c types.TripContext) []string {
				return missing(field{"fare_evidence_attached", c.FareEvidenceAttached == nil})
			},
		},
		"driving_vs_flying": {
			DefaultSeverity: types.SeverityAdvisory,
			Build:           buildDrivingVsFlying,
			Missing: func(c types.TripContext) []string {
				return missing(field{"driving_cost", c.DrivingCost == nil}, field{"flight_cost", c.FlightCost == nil})
			},
		},
		"hotel_comparison": {
			Required:        []string{"minimum_alternatives"},
			DefaultSeverity: types.SeverityAdvisory,
			Build:           buildHotelComparison,
			Missing: func(c types.TripContext) []string {
				return missing(field{"comparable_hotels", c.ComparableHotels == nil})
			},
		},
		"local_overnight": {
			Required:        []string{"min_distance_miles"},
			DefaultSeverity: types.SeverityAdvisory,
			Build:           buildLocalOvernight,
			Missing: func(c types.TripContext) []string {
				if c.OvernightStay == nil {
					return []string{"overnight_stay"}
				}
				return missing(field{"distance_from_office_miles", *c.OvernightStay && c.DistanceFromOfficeMiles == nil})
			},
		},
		"meal_per_diem": {
			DefaultSeverity: types.SeverityAdvisory,
			Build:           buildMealPerDiem,
			Missing: func(c types.TripContext) []string {
				return missing(field{"meals_provided", c.MealsProvided == nil}, field{"meal_per_diem_requested", c.MealPerDiemRequested == nil})
			},
		},
		"non_reimbursable": {
			Required:        []string{"blocked_keywords"},
			DefaultSeverity: types.SeverityBlocking,
			Build:           buildNonReimbursable,
			Missing: func(c types.TripContext) []string {
				return missing(field{"expenses", c.Expenses == nil})
			},
		},
		"third_party_paid": {
			DefaultSeverity: types.SeverityBlocking,
			Build:           buildThirdPartyPaid,
			Missing: func(c types.TripContext) []string {
				return missing(field{"third_party_payments", c.ThirdPartyPayments == nil})
			},
		},
	},
}

type field struct {
	name   string
	absent bool
}

func missing(fields ...field) []string {
	var out []string
	for _, f := range fields {
		if f.absent {
			out = append(out, f.name)
		}
	}
	return out
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func single(result types.PolicyResult) []types.PolicyResult {
	return []types.PolicyResult{result}
}

func buildLiteAdvanceBooking(def Definition) (Rule[types.TripContext], error) {
	days, err := def.Int("days_required")
	if err != nil {
		return nil, err
	}
	if days < 0 {
		return nil, def.paramError("days_required", "must not be negative")
	}
	return RuleFunc[types.TripContext](func(c types.TripContext) []types.PolicyResult {
		if c.BookingDate == nil || c.DepartureDate == nil {
			return single(def.Result(true, "Advance booking check skipped due to missing dates", nil))
		}
		notice := types.DaysBetween(*c.BookingDate, *c.DepartureDate)
		ctx := map[string]any{"days_required": days, "days_notice": notice}
		if notice < days {
			return single(def.Result(false,
				fmt.Sprintf("Bookings should be made at least %d days in advance; only %d days provided.", days, notice), ctx))
		}
		return single(def.Result(true, fmt.Sprintf("Booked %d days in advance (minimum %d).", notice, days), ctx))
	}), nil
}

// Fare comparison bases. percent caps the selected fare at a percentage of
// the lowest fare; amount caps the absolute difference.
const (
	fareBasisPercent = "percent"
	fareBasisAmount  = "amount"
)

func buildFareComparison(def Definition) (Rule[types.TripContext], error) {
	limit, err := def.NonNegativeDecimal("max_over_lowest")
	if err != nil {
		return nil, err
	}
	basis := fareBasisPercent
	if def.Has("basis") {
		if basis, err = def.String("basis"); err != nil {
			return nil, err
		}
	}
	if basis != fareBasisPercent && basis != fareBasisAmount {
		return nil, def.paramError("basis", fmt.Sprintf("must be %q or %q", fareBasisPercent, fareBasisAmount))
	}

	return RuleFunc[types.TripContext](func(c types.TripContext) []types.PolicyResult {
		if c.SelectedFare == nil || c.LowestFare == nil {
			return single(def.Result(true, "Fare comparison skipped due to missing fare data", nil))
		}
		selected, lowest := *c.SelectedFare, *c.LowestFare
		overage := selected.Sub(lowest)
		ctx := map[string]any{"max_over_lowest": limit.String(), "basis": basis, "overage": overage.String()}

		if basis == fareBasisAmount {
			if overage.GreaterThan(limit) {
				return single(def.Result(false,
					fmt.Sprintf("Selected fare exceeds lowest available by %s which is above the %s allowable threshold.", overage, limit), ctx))
			}
			return single(def.Result(true, fmt.Sprintf("Fare within %s of lowest available.", limit), ctx))
		}

		ceiling := lowest.Mul(limit).Div(decimal.NewFromInt(100))
		ctx["ceiling"] = ceiling.String()
		if selected.GreaterThan(ceiling) {
			return single(def.Result(false,
				fmt.Sprintf("Selected fare %s exceeds %s%% of the lowest available fare %s (ceiling %s).", selected, limit, lowest, ceiling), ctx))
		}
		return single(def.Result(true,
			fmt.Sprintf("Selected fare %s within %s%% of the lowest available fare %s.", selected, limit, lowest), ctx))
	}), nil
}

func buildCabinClass(def Definition) (Rule[types.TripContext], error) {
	hours, err := def.Float("long_haul_hours")
	if err != nil {
		return nil, err
	}
	allowed := []string{"economy"}
	if def.Has("allowed_classes") {
		classes, err := def.Strings("allowed_classes")
		if err != nil {
			return nil, err
		}
		allowed = lowerSet(classes)
	}
	if len(allowed) == 0 {
		return nil, def.paramError("allowed_classes", "must list at least one cabin")
	}
	return RuleFunc[types.TripContext](func(c types.TripContext) []types.PolicyResult {
		if c.CabinClass == nil || c.FlightDurationHours == nil {
			return single(def.Result(true, "Cabin class check skipped due to missing flight details", nil))
		}
		cabin := strings.ToLower(*c.CabinClass)
		duration := *c.FlightDurationHours
		ctx := map[string]any{"long_haul_hours": formatFloat(hours), "cabin_class": cabin}
		if duration <= hours && !slices.Contains(allowed, cabin) {
			return single(def.Result(false,
				fmt.Sprintf("Flights under %s hours must use allowed cabins %v; requested '%s'.", formatFloat(hours), allowed, *c.CabinClass), ctx))
		}
		return single(def.Result(true,
			fmt.Sprintf("Cabin '%s' acceptable for %s hour flight.", *c.CabinClass, formatFloat(duration)), ctx))
	}), nil
}

func buildFareEvidence(def Definition) (Rule[types.TripContext], error) {
	return RuleFunc[types.TripContext](func(c types.TripContext) []types.PolicyResult {
		if c.FareEvidenceAttached != nil && *c.FareEvidenceAttached {
			return single(def.Result(true, "Fare evidence attached", nil))
		}
		return single(def.Result(false, "Screenshot or fare evidence must be attached to the request.", nil))
	}), nil
}

func buildDrivingVsFlying(def Definition) (Rule[types.TripContext], error) {
	return RuleFunc[types.TripContext](func(c types.TripContext) []types.PolicyResult {
		if c.DrivingCost == nil || c.FlightCost == nil {
			return single(def.Result(true, "Driving vs flying comparison skipped due to missing estimates", nil))
		}
		ctx := map[string]any{"driving_cost": c.DrivingCost.String(), "flight_cost": c.FlightCost.String()}
		if c.DrivingCost.GreaterThan(*c.FlightCost) {
			return single(def.Result(false,
				fmt.Sprintf("Driving estimate %s exceeds flight estimate %s; reimbursement will be limited to the lesser cost.", c.DrivingCost, c.FlightCost), ctx))
		}
		return single(def.Result(true, "Driving is lower or equal cost compared to flying.", ctx))
	}), nil
}

func buildHotelComparison(def Definition) (Rule[types.TripContext], error) {
	minimum, err := def.Int("minimum_alternatives")
	if err != nil {
		return nil, err
	}
	if minimum < 0 {
		return nil, def.paramError("minimum_alternatives", "must not be negative")
	}
	return RuleFunc[types.TripContext](func(c types.TripContext) []types.PolicyResult {
		supplied := len(c.ComparableHotels)
		ctx := map[string]any{"minimum_alternatives": minimum, "supplied": supplied}
		if supplied < minimum {
			return single(def.Result(false,
				fmt.Sprintf("Provide at least %d comparable hotel rates; %d supplied.", minimum, supplied), ctx))
		}
		return single(def.Result(true,
			fmt.Sprintf("%d comparable hotels provided (minimum %d).", supplied, minimum), ctx))
	}), nil
}

func buildLocalOvernight(def Definition) (Rule[types.TripContext], error) {
	minimum, err := def.Float("min_distance_miles")
	if err != nil {
		return nil, err
	}
	return RuleFunc[types.TripContext](func(c types.TripContext) []types.PolicyResult {
		if c.OvernightStay == nil || !*c.OvernightStay {
			return single(def.Result(true, "No overnight stay requested", nil))
		}
		if c.DistanceFromOfficeMiles == nil {
			return single(def.Result(true, "Local overnight check skipped due to missing distance data", nil))
		}
		distance := *c.DistanceFromOfficeMiles
		ctx := map[string]any{"min_distance_miles": formatFloat(minimum), "distance_miles": formatFloat(distance)}
		if distance < minimum {
			return single(def.Result(false,
				fmt.Sprintf("Overnight stays within %s miles require waiver; distance is %s miles.", formatFloat(minimum), formatFloat(distance)), ctx))
		}
		return single(def.Result(true,
			fmt.Sprintf("Overnight stay is %s miles from office (minimum %s).", formatFloat(distance), formatFloat(minimum)), ctx))
	}), nil
}

func buildMealPerDiem(def Definition) (Rule[types.TripContext], error) {
	return RuleFunc[types.TripContext](func(c types.TripContext) []types.PolicyResult {
		provided := c.MealsProvided != nil && *c.MealsProvided
		requested := c.MealPerDiemRequested != nil && *c.MealPerDiemRequested
		if provided && requested {
			return single(def.Result(false,
				"Meal per diem should exclude conference-provided meals; adjust the request accordingly.", nil))
		}
		return single(def.Result(true, "Meal per diem request aligns with provided meals.", nil))
	}), nil
}

func buildNonReimbursable(def Definition) (Rule[types.TripContext], error) {
	raw, err := def.Strings("blocked_keywords")
	if err != nil {
		return nil, err
	}
	keywords := lowerSet(raw)
	if len(keywords) == 0 {
		return nil, def.paramError("blocked_keywords", "must list at least one keyword")
	}
	return RuleFunc[types.TripContext](func(c types.TripContext) []types.PolicyResult {
		for _, expense := range c.Expenses {
			description := strings.ToLower(expense.Description)
			for _, keyword := range keywords {
				if strings.Contains(description, keyword) {
					return single(def.Result(false,
						fmt.Sprintf("Expense '%s' includes non-reimbursable items (%s).", expense.Description, strings.Join(keywords, ", ")),
						map[string]any{"keyword": keyword}))
				}
			}
		}
		return single(def.Result(true, "No non-reimbursable items detected.", nil))
	}), nil
}

func buildThirdPartyPaid(def Definition) (Rule[types.TripContext], error) {
	return RuleFunc[types.TripContext](func(c types.TripContext) []types.PolicyResult {
		for _, payment := range c.ThirdPartyPayments {
			if payment.Itemized {
				continue
			}
			description := payment.Description
			if description == "" {
				description = "third-party payment"
			}
			return single(def.Result(false,
				fmt.Sprintf("Third-party payment '%s' must be itemized and excluded from reimbursement.", description), nil))
		}
		return single(def.Result(true, "Third-party payments are properly itemized or none provided.", nil))
	}), nil
}
