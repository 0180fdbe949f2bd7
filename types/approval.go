package types

import (
	"fmt"
	"time"
)

// ApprovalLevel is the organizational tier required to decide
type ApprovalLevel string

const (
	LevelManager  ApprovalLevel = "manager"
	LevelDirector ApprovalLevel = "director"
	LevelBoard    ApprovalLevel = "board"
)

var levelOrder = []ApprovalLevel{LevelManager, LevelDirector, LevelBoard}

// Rank orders levels; unknown levels rank below manager
func (l ApprovalLevel) Rank() int {
	for i, level := range levelOrder {
		if level == l {
			return i
		}
	}
	return -1
}

// Valid reports whether l is a known level
func (l ApprovalLevel) Valid() bool {
	return l.Rank() >= 0
}

// Next returns the level one step up; board stays board
func (l ApprovalLevel) Next() ApprovalLevel {
	rank := l.Rank()
	if rank < 0 {
		return LevelManager
	}
	if rank+1 >= len(levelOrder) {
		return l
	}
	return levelOrder[rank+1]
}

// MaxLevel returns the higher of two levels
func MaxLevel(a, b ApprovalLevel) ApprovalLevel {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// ApprovalOutcome is the result of an approval decision
type ApprovalOutcome string

const (
	OutcomeApproved   ApprovalOutcome = "approved"
	OutcomeRejected   ApprovalOutcome = "rejected"
	OutcomeFlagged    ApprovalOutcome = "flagged"
	OutcomeOverridden ApprovalOutcome = "overridden"
)

// ApprovalEvent is an immutable audit record of one decision. PriorStatus
// and ResultingStatus hold trip or exception statuses depending on the owner.
type ApprovalEvent struct {
	ApproverID      string          `json:"approver_id"`
	ApprovalLevel   ApprovalLevel   `json:"approval_level"`
	Outcome         ApprovalOutcome `json:"outcome"`
	Timestamp       time.Time       `json:"timestamp"`
	PriorStatus     string          `json:"prior_status"`
	ResultingStatus string          `json:"resulting_status"`
	Justification   string          `json:"justification,omitempty"`
}

// Validate enforces the override justification requirement
func (e ApprovalEvent) Validate() error {
	if e.ApproverID == "" {
		return &ValidationError{Field: "approver_id", Reason: "is required"}
	}
	switch e.Outcome {
	case OutcomeApproved, OutcomeRejected, OutcomeFlagged:
	case OutcomeOverridden:
		if e.Justification == "" {
			return &ValidationError{Field: "justification", Reason: "override decisions require justification text"}
		}
	default:
		return &ValidationError{Field: "outcome", Reason: fmt.Sprintf("unknown outcome %q", e.Outcome)}
	}
	return nil
}
