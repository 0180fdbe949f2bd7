package policy

import (
	"sort"

	"github.com/yairfalse/travelgate/types"
)

// ResultChange is one rule whose result differs between two evaluations
type ResultChange struct {
	Key    string             `json:"key"`
	Before types.PolicyResult `json:"before"`
	After  types.PolicyResult `json:"after"`
}

// ResultDiff is a per-rule comparison of two result lists, keyed by
// PolicyResult.Key
type ResultDiff struct {
	Added     []types.PolicyResult `json:"added,omitempty"`
	Removed   []types.PolicyResult `json:"removed,omitempty"`
	Changed   []ResultChange       `json:"changed,omitempty"`
	Unchanged []string             `json:"unchanged,omitempty"`
}

// Empty reports whether the two evaluations agree on every rule
func (d ResultDiff) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Changed) == 0
}

// DiffResults compares before and after rule by rule. A rule counts as
// changed when its outcome, severity, code or blocking flag differ; message
// wording alone is not a change.
func DiffResults(before, after []types.PolicyResult) ResultDiff {
	previous := indexResults(before)
	current := indexResults(after)

	var diff ResultDiff
	for _, result := range after {
		key := result.Key()
		old, ok := previous[key]
		switch {
		case !ok:
			diff.Added = append(diff.Added, result)
		case resultChanged(old, result):
			diff.Changed = append(diff.Changed, ResultChange{Key: key, Before: old, After: result})
		default:
			diff.Unchanged = append(diff.Unchanged, key)
		}
	}
	for _, result := range before {
		if _, ok := current[result.Key()]; !ok {
			diff.Removed = append(diff.Removed, result)
		}
	}
	sort.Strings(diff.Unchanged)
	return diff
}

func indexResults(results []types.PolicyResult) map[string]types.PolicyResult {
	index := make(map[string]types.PolicyResult, len(results))
	for _, result := range results {
		// first result for a key wins, matching evaluation order
		if _, dup := index[result.Key()]; !dup {
			index[result.Key()] = result
		}
	}
	return index
}

func resultChanged(a, b types.PolicyResult) bool {
	return a.Passed != b.Passed ||
		a.Severity != b.Severity ||
		a.Blocking != b.Blocking ||
		a.Code != b.Code
}
