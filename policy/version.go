package policy

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/yairfalse/travelgate/types"
)

// SemVer is the human version label declared by a ruleset file
type SemVer struct {
	Major int `json:"major"`
	Minor int `json:"minor"`
	Patch int `json:"patch"`
}

// ParseSemVer reads a "major.minor.patch" label. Missing parts are zero;
// an empty or malformed label reads as 0.1.0.
func ParseSemVer(label string) SemVer {
	fallback := SemVer{Minor: 1}
	if strings.TrimSpace(label) == "" {
		return fallback
	}
	parts := strings.Split(strings.TrimSpace(label), ".")
	var nums [3]int
	for i := 0; i < len(parts) && i < 3; i++ {
		n, err := strconv.Atoi(parts[i])
		if err != nil || n < 0 {
			return fallback
		}
		nums[i] = n
	}
	return SemVer{Major: nums[0], Minor: nums[1], Patch: nums[2]}
}

func (v SemVer) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// ChangeType classifies the move from one release to another
type ChangeType string

const (
	ChangeNoOp        ChangeType = "no-op"
	ChangeBreaking    ChangeType = "breaking"
	ChangeFeature     ChangeType = "feature"
	ChangePatch       ChangeType = "patch"
	ChangeConfigDrift ChangeType = "config-drift"
)

// Release pairs a declared label with the content hash
type Release struct {
	SemVer
	Hash string `json:"hash"`
}

// ReleaseOf describes a loaded ruleset
func ReleaseOf[S any](rs *Ruleset[S]) Release {
	return Release{SemVer: ParseSemVer(rs.Label()), Hash: rs.Version()}
}

// BackwardCompatible reports whether r can replace previous without a
// breaking change
func (r Release) BackwardCompatible(previous Release) bool {
	return r.Major == previous.Major && r.Minor >= previous.Minor
}

// ChangeFrom classifies the change from previous to r. Content that
// changed without a label bump is config drift.
func (r Release) ChangeFrom(previous Release) ChangeType {
	switch {
	case r.Hash == previous.Hash:
		return ChangeNoOp
	case r.Major != previous.Major:
		return ChangeBreaking
	case r.Minor != previous.Minor:
		return ChangeFeature
	case r.Patch != previous.Patch:
		return ChangePatch
	default:
		return ChangeConfigDrift
	}
}

// MigrationPlan lists the rollout steps between two releases
type MigrationPlan struct {
	Source           Release  `json:"source"`
	Target           Release  `json:"target"`
	BreakingChange   bool     `json:"breaking_change"`
	RequiresDowntime bool     `json:"requires_downtime"`
	Steps            []string `json:"steps"`
}

// PlanMigration builds a rollout plan that keeps in-flight approvals pinned
func PlanMigration(source, target Release) MigrationPlan {
	plan := MigrationPlan{
		Source:         source,
		Target:         target,
		BreakingChange: target.Major != source.Major,
		Steps: []string{
			"Pin current policy version for in-flight approvals",
			"Deploy proposed policy in shadow mode for regression comparisons",
			"Replay recent historical decisions to surface deltas",
			"Promote proposed policy when deltas are understood and approved",
			"Archive previous policy version for rollback within retention window",
		},
	}
	if plan.BreakingChange {
		plan.Steps = append(plan.Steps, "Schedule staged rollout with opt-in cohorts to guard against breaking behavior")
	}
	return plan
}

// Simulation is one historical subject replayed under two rulesets
type Simulation[S any] struct {
	Subject  S                    `json:"subject"`
	Current  []types.PolicyResult `json:"current"`
	Proposed []types.PolicyResult `json:"proposed"`
	Diff     ResultDiff           `json:"diff"`
	Err      error                `json:"-"`
}

// Simulate replays subjects under the current and proposed rulesets. A
// subject that fails validation is reported with Err set; the replay
// continues with the next one.
func Simulate[S any](current, proposed *Ruleset[S], subjects []S) []Simulation[S] {
	out := make([]Simulation[S], 0, len(subjects))
	for _, subject := range subjects {
		sim := Simulation[S]{Subject: subject}
		sim.Current, sim.Err = current.Evaluate(subject)
		if sim.Err == nil {
			sim.Proposed, sim.Err = proposed.Evaluate(subject)
		}
		if sim.Err == nil {
			sim.Diff = DiffResults(sim.Current, sim.Proposed)
		}
		out = append(out, sim)
	}
	return out
}
