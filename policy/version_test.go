package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yairfalse/travelgate/types"
)

func TestVersion_InvariantUnderFormatting(t *testing.T) {
	a, err := Load(LiteCatalog, []byte(`
rules:
  - type: fare_comparison
    max_over_lowest: 200
    severity: blocking
  - type: cabin_class
    long_haul_hours: 5
    allowed_classes: [economy]
`))
	require.NoError(t, err)

	b, err := Load(LiteCatalog, []byte(`
rules:
  - severity: blocking
    max_over_lowest: 200.0
    type: fare_comparison
  - params: {allowed_classes: [economy], long_haul_hours: 5.00}
    type: cabin_class
`))
	require.NoError(t, err)

	assert.Equal(t, a.Version(), b.Version())
	assert.Len(t, a.Version(), 64)
}

func TestVersion_ChangesWithThreshold(t *testing.T) {
	a, err := Load(LiteCatalog, []byte("rules:\n  - type: fare_comparison\n    max_over_lowest: 200\n"))
	require.NoError(t, err)
	b, err := Load(LiteCatalog, []byte("rules:\n  - type: fare_comparison\n    max_over_lowest: 201\n"))
	require.NoError(t, err)
	c, err := Load(LiteCatalog, []byte("rules:\n  - type: fare_comparison\n    max_over_lowest: 200\n    severity: advisory\n"))
	require.NoError(t, err)

	assert.NotEqual(t, a.Version(), b.Version())
	assert.NotEqual(t, a.Version(), c.Version())
}

func TestVersion_LabelDoesNotChangeHash(t *testing.T) {
	a, err := Load(ValidatorCatalog, []byte("version: \"1.0.0\"\nrules:\n  - type: duration_limit\n    max_consecutive_days: 5\n"))
	require.NoError(t, err)
	b, err := Load(ValidatorCatalog, []byte("version: \"1.1.0\"\nrules:\n  - type: duration_limit\n    max_consecutive_days: 5\n"))
	require.NoError(t, err)

	assert.Equal(t, a.Version(), b.Version())
	assert.Equal(t, ChangeNoOp, ReleaseOf(b).ChangeFrom(ReleaseOf(a)))
}

func TestVersion_CatalogIsPartOfHash(t *testing.T) {
	defs := []Definition{{Type: "advance_booking", Name: "advance_booking", Code: "advance_booking",
		Severity: types.SeverityError, Blocking: true, Params: map[string]any{"min_days": 3}}}

	lite, err := Version(LiteCatalog.Name, defs)
	require.NoError(t, err)
	validator, err := Version(ValidatorCatalog.Name, defs)
	require.NoError(t, err)
	assert.NotEqual(t, lite, validator)
}

func TestParseSemVer(t *testing.T) {
	assert.Equal(t, SemVer{Major: 2, Minor: 3, Patch: 1}, ParseSemVer("2.3.1"))
	assert.Equal(t, SemVer{Major: 4}, ParseSemVer("4"))
	assert.Equal(t, SemVer{Minor: 1}, ParseSemVer(""))
	assert.Equal(t, SemVer{Minor: 1}, ParseSemVer("v2.x"))
	assert.Equal(t, "1.2.0", ParseSemVer("1.2").String())
}

func TestRelease_ChangeFrom(t *testing.T) {
	base := Release{SemVer: SemVer{Major: 1, Minor: 2, Patch: 0}, Hash: "a"}

	cases := []struct {
		name   string
		target Release
		want   ChangeType
		compat bool
	}{
		{"same content", Release{SemVer: SemVer{Major: 9}, Hash: "a"}, ChangeNoOp, false},
		{"major bump", Release{SemVer: SemVer{Major: 2}, Hash: "b"}, ChangeBreaking, false},
		{"minor bump", Release{SemVer: SemVer{Major: 1, Minor: 3}, Hash: "b"}, ChangeFeature, true},
		{"patch bump", Release{SemVer: SemVer{Major: 1, Minor: 2, Patch: 1}, Hash: "b"}, ChangePatch, true},
		{"silent edit", Release{SemVer: base.SemVer, Hash: "b"}, ChangeConfigDrift, true},
		{"minor rollback", Release{SemVer: SemVer{Major: 1, Minor: 1}, Hash: "b"}, ChangeFeature, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.target.ChangeFrom(base))
			assert.Equal(t, tc.compat, tc.target.BackwardCompatible(base))
		})
	}
}

func TestPlanMigration(t *testing.T) {
	source := Release{SemVer: SemVer{Major: 1}, Hash: "a"}

	minor := PlanMigration(source, Release{SemVer: SemVer{Major: 1, Minor: 1}, Hash: "b"})
	assert.False(t, minor.BreakingChange)
	assert.False(t, minor.RequiresDowntime)
	assert.Len(t, minor.Steps, 5)

	major := PlanMigration(source, Release{SemVer: SemVer{Major: 2}, Hash: "c"})
	assert.True(t, major.BreakingChange)
	assert.Len(t, major.Steps, 6)
}

func TestSimulate(t *testing.T) {
	current, err := Load(LiteCatalog, []byte("rules:\n  - type: fare_comparison\n    max_over_lowest: 200\n"))
	require.NoError(t, err)
	proposed, err := Load(LiteCatalog, []byte(`
rules:
  - type: fare_comparison
    max_over_lowest: 120
  - type: fare_evidence
`))
	require.NoError(t, err)

	sims := Simulate(current, proposed, []types.TripContext{
		{SelectedFare: dec("150"), LowestFare: dec("100"), FareEvidenceAttached: ptr(true)},
		{SelectedFare: dec("110"), LowestFare: dec("100"), FareEvidenceAttached: ptr(true)},
	})
	require.Len(t, sims, 2)

	require.NoError(t, sims[0].Err)
	require.Len(t, sims[0].Diff.Changed, 1)
	assert.Equal(t, "fare_comparison", sims[0].Diff.Changed[0].Key)
	assert.True(t, sims[0].Diff.Changed[0].Before.Passed)
	assert.False(t, sims[0].Diff.Changed[0].After.Passed)
	require.Len(t, sims[0].Diff.Added, 1)
	assert.Equal(t, "fare_evidence", sims[0].Diff.Added[0].RuleID)

	assert.Empty(t, sims[1].Diff.Changed)
	assert.Equal(t, []string{"fare_comparison"}, sims[1].Diff.Unchanged)
}
