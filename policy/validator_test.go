package policy

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/yairfalse/travelgate/telemetry"
	"github.com/yairfalse/travelgate/types"
)

func plan() types.TripPlan {
	return types.TripPlan{
		TripID:        "TRIP-1001",
		TravelerName:  "Avery Lee",
		Destination:   "Chicago, IL",
		DepartureDate: time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC),
		ReturnDate:    time.Date(2025, 3, 13, 0, 0, 0, 0, time.UTC),
		BookedOn:      time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC),
		Purpose:       "Customer workshop",
		EstimatedCost: decimal.NewFromInt(1800),
		Status:        types.TripDraft,
		ExpenseBreakdown: map[types.ExpenseCategory]decimal.Decimal{
			types.CategoryAirfare: decimal.NewFromInt(600),
			types.CategoryLodging: decimal.NewFromInt(900),
		},
	}
}

func TestValidator_AdvanceBookingInternational(t *testing.T) {
	rs, err := Load(ValidatorCatalog, []byte(`
rules:
  - type: advance_booking
    min_days: 14
    min_days_international: 45
    international_destinations: [London]
`))
	require.NoError(t, err)

	domestic, err := rs.Evaluate(plan())
	require.NoError(t, err)
	require.Len(t, domestic, 1)
	assert.True(t, domestic[0].Passed)

	p := plan()
	p.Destination = "London, UK"
	abroad, err := rs.Evaluate(p)
	require.NoError(t, err)
	require.Len(t, abroad, 1)
	assert.False(t, abroad[0].Passed)
	assert.True(t, abroad[0].IsBlocking())
	assert.Equal(t, "international", abroad[0].Context["region"])
	assert.Contains(t, abroad[0].Message, "at least 45 days")
}

func TestValidator_BudgetLimitScopes(t *testing.T) {
	rs, err := Load(ValidatorCatalog, []byte(`
rules:
  - type: budget_limit
    trip_limit: 1500
    category_limits:
      lodging: 800
      airfare: 700
`))
	require.NoError(t, err)

	results, err := rs.Evaluate(plan())
	require.NoError(t, err)
	require.Len(t, results, 3)

	index := byRule(results)
	assert.False(t, index["budget_limit:trip"].Passed)
	assert.Equal(t, "Estimated cost 1800 exceeds trip limit 1500", index["budget_limit:trip"].Message)
	assert.True(t, index["budget_limit:airfare"].Passed)
	assert.False(t, index["budget_limit:lodging"].Passed)
	assert.Len(t, types.BlockingResults(results), 2)
}

func TestValidator_SeverityAndBlockingIndependent(t *testing.T) {
	rs, err := Load(ValidatorCatalog, []byte(`
rules:
  - type: duration_limit
    max_consecutive_days: 2
    severity: error
    blocking: false
  - type: budget_limit
    name: soft_budget
    trip_limit: 100
    severity: warning
    blocking: true
`))
	require.NoError(t, err)

	results, err := rs.Evaluate(plan())
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.False(t, r.Passed)
		assert.False(t, r.IsBlocking(), r.RuleID)
	}
	assert.True(t, types.CanSubmit(results))
}

func TestValidator_DurationLimit(t *testing.T) {
	rs, err := Load(ValidatorCatalog, []byte(`
rules:
  - type: duration_limit
    max_consecutive_days: 4
`))
	require.NoError(t, err)

	results, err := rs.Evaluate(plan())
	require.NoError(t, err)
	assert.True(t, results[0].Passed)

	p := plan()
	p.ReturnDate = p.DepartureDate.AddDate(0, 0, 4)
	results, err = rs.Evaluate(p)
	require.NoError(t, err)
	assert.False(t, results[0].Passed)
	assert.Equal(t, "Trip duration 5 days exceeds maximum of 4", results[0].Message)
}

func TestValidator_RejectsMalformedPlan(t *testing.T) {
	rs, err := DefaultValidatorRuleset()
	require.NoError(t, err)

	p := plan()
	p.ReturnDate = p.DepartureDate.AddDate(0, 0, -1)
	_, err = rs.Evaluate(p)
	require.Error(t, err)
	var valErr *types.ValidationError
	require.True(t, errors.As(err, &valErr))
	assert.Equal(t, "return_date", valErr.Field)
}

func TestValidator_BadParamsFailAtLoad(t *testing.T) {
	cases := map[string]string{
		"zero duration":     "rules:\n  - type: duration_limit\n    max_consecutive_days: 0\n",
		"fractional days":   "rules:\n  - type: advance_booking\n    min_days: 1.5\n",
		"unknown category":  "rules:\n  - type: budget_limit\n    category_limits:\n      yachts: 10\n",
		"no budget caps":    "rules:\n  - type: budget_limit\n",
		"negative limit":    "rules:\n  - type: budget_limit\n    trip_limit: -1\n",
		"destinations type": "rules:\n  - type: advance_booking\n    min_days: 3\n    international_destinations: London\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(ValidatorCatalog, []byte(content))
			requireConfigError(t, err)
		})
	}
}

func TestRegistry_EvaluateReturnsVersion(t *testing.T) {
	rs, err := DefaultValidatorRuleset()
	require.NoError(t, err)

	registry := NewRegistry[types.TripPlan]()
	registry.Put(t.Context(), "trip-plans", rs)

	results, version, err := registry.Evaluate("trip-plans", plan())
	require.NoError(t, err)
	assert.NotEmpty(t, results)
	assert.Equal(t, rs.Version(), version)
	assert.Equal(t, []string{"trip-plans"}, registry.IDs())

	_, _, err = registry.Evaluate("missing", plan())
	requireConfigError(t, err)
}

func TestRegistry_PutReplacesAtomically(t *testing.T) {
	first, err := Load(ValidatorCatalog, []byte("rules:\n  - type: duration_limit\n    max_consecutive_days: 10\n"))
	require.NoError(t, err)
	second, err := Load(ValidatorCatalog, []byte("rules:\n  - type: duration_limit\n    max_consecutive_days: 2\n"))
	require.NoError(t, err)

	registry := NewRegistry[types.TripPlan]()
	registry.Put(t.Context(), "plans", first)
	results, v1, err := registry.Evaluate("plans", plan())
	require.NoError(t, err)
	assert.True(t, results[0].Passed)

	registry.Put(t.Context(), "plans", second)
	results, v2, err := registry.Evaluate("plans", plan())
	require.NoError(t, err)
	assert.False(t, results[0].Passed)
	assert.NotEqual(t, v1, v2)
}

func TestRegistry_EvaluateContextRecordsMetrics(t *testing.T) {
	rs, err := Load(ValidatorCatalog, []byte("rules:\n  - type: duration_limit\n    max_consecutive_days: 2\n"))
	require.NoError(t, err)

	reader := sdkmetric.NewManualReader()
	metrics, err := telemetry.InitMetrics(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)).Meter("test"))
	require.NoError(t, err)

	registry := NewRegistry[types.TripPlan]()
	registry.Instrument(metrics)
	registry.Put(t.Context(), "plans", rs)

	results, version, err := registry.EvaluateContext(t.Context(), "plans", plan())
	require.NoError(t, err)
	assert.Equal(t, rs.Version(), version)
	require.Len(t, results, 1)
	assert.True(t, results[0].IsBlocking())

	bad := plan()
	bad.TripID = ""
	_, _, err = registry.EvaluateContext(t.Context(), "plans", bad)
	var verr *types.ValidationError
	require.True(t, errors.As(err, &verr))

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(t.Context(), &rm))
	counts := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if sum, ok := m.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range sum.DataPoints {
					counts[m.Name] += dp.Value
				}
			}
		}
	}
	assert.Equal(t, int64(1), counts["travelgate.evaluations.total"])
	assert.Equal(t, int64(1), counts["travelgate.rule.failures.total"])
}
