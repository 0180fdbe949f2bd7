package snapshot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/yairfalse/travelgate/policy"
	"github.com/yairfalse/travelgate/types"
)

// Capture records the state of subject at a decision point. When results is
// nil the ruleset active at decision time evaluates the subject first.
func Capture[S any](ctx context.Context, store *Store, tripID string, subject S, results []types.PolicyResult, rs *policy.Ruleset[S]) (*Snapshot, error) {
	version := ""
	if rs != nil {
		version = rs.Version()
	}

	if results == nil {
		if rs == nil {
			return nil, fmt.Errorf("capture trip %s: no results and no ruleset to evaluate", tripID)
		}
		evaluated, err := rs.Evaluate(subject)
		if err != nil {
			return nil, fmt.Errorf("capture trip %s: %w", tripID, err)
		}
		results = evaluated
	}

	return store.Append(ctx, tripID, version, subject, results)
}

// Diff compares two snapshots of the same trip
type Diff struct {
	policy.ResultDiff
	PolicyVersionChanged bool `json:"policy_version_changed"`
	InputChanged         bool `json:"input_changed"`
}

// Compare reports which rule results were added, removed, changed or kept
// going from a to b
func Compare(a, b Snapshot) Diff {
	return Diff{
		ResultDiff:           policy.DiffResults(a.Results, b.Results),
		PolicyVersionChanged: a.PolicyVersion != b.PolicyVersion,
		InputChanged:         !bytes.Equal(a.InputData, b.InputData),
	}
}

// RecheckResult is a stored snapshot re-evaluated under another ruleset
type RecheckResult struct {
	PolicyVersion string               `json:"policy_version"`
	Results       []types.PolicyResult `json:"results"`
	Diff          policy.ResultDiff    `json:"diff"`
}

// Recheck decodes the snapshot's stored input and evaluates it under rs.
// The stored snapshot is not modified.
func Recheck[S any](snap Snapshot, rs *policy.Ruleset[S]) (*RecheckResult, error) {
	var subject S
	if err := json.Unmarshal(snap.InputData, &subject); err != nil {
		return nil, fmt.Errorf("decode input of snapshot %s for trip %s: %w", snap.Key, snap.TripID, err)
	}

	results, err := rs.Evaluate(subject)
	if err != nil {
		return nil, fmt.Errorf("recheck snapshot %s for trip %s: %w", snap.Key, snap.TripID, err)
	}

	return &RecheckResult{
		PolicyVersion: rs.Version(),
		Results:       results,
		Diff:          policy.DiffResults(snap.Results, results),
	}, nil
}
