// Package exception routes policy exception requests to the approval level
// they need, escalates requests left untouched for 48 hours and records
// approver decisions.
package exception

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/yairfalse/travelgate/types"
)

// Type is the policy area an exception is requested for
type Type string

const (
	TypeAdvanceBooking  Type = "advance_booking"
	TypeDrivingVsFlying Type = "driving_vs_flying"
	TypeHotelComparison Type = "hotel_comparison"
	TypeMealPerDiem     Type = "meal_per_diem"
	TypeLocalOvernight  Type = "local_overnight"
)

const (
	// MinJustificationRunes is the shortest accepted justification
	MinJustificationRunes = 50

	// EscalationAfter is how long a request may sit without a decision
	EscalationAfter = 48 * time.Hour
)

var baseLevels = map[Type]types.ApprovalLevel{
	TypeAdvanceBooking:  types.LevelManager,
	TypeDrivingVsFlying: types.LevelManager,
	TypeHotelComparison: types.LevelManager,
	TypeMealPerDiem:     types.LevelManager,
	TypeLocalOvernight:  types.LevelDirector,
}

var (
	directorFloor = decimal.NewFromInt(5000)
	boardFloor    = decimal.NewFromInt(20000)
)

// Valid reports whether t is a known exception type
func (t Type) Valid() bool {
	_, ok := baseLevels[t]
	return ok
}

// TypeFromRuleID maps a policy-lite rule id to the exception type that can
// waive it. Only advisory rules have an exception path.
func TypeFromRuleID(ruleID string) (Type, bool) {
	t := Type(ruleID)
	return t, t.Valid()
}

// RequiredLevel is the higher of the type's base level and the amount floor
func RequiredLevel(t Type, amount *decimal.Decimal) types.ApprovalLevel {
	level := baseLevels[t]
	if amount == nil {
		return level
	}
	switch {
	case amount.GreaterThanOrEqual(boardFloor):
		return types.MaxLevel(level, types.LevelBoard)
	case amount.GreaterThanOrEqual(directorFloor):
		return types.MaxLevel(level, types.LevelDirector)
	}
	return level
}

// Status is the lifecycle state of a request
type Status string

const (
	StatusPending   Status = "pending"
	StatusEscalated Status = "escalated"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
)

// Terminal reports whether no further transition is allowed
func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// Request is one exception request and its decision history
type Request struct {
	ID             string                `json:"id"`
	Type           Type                  `json:"type"`
	TripID         string                `json:"trip_id"`
	Requestor      string                `json:"requestor"`
	Justification  string                `json:"justification"`
	Amount         *decimal.Decimal      `json:"amount,omitempty"`
	SupportingDocs []string              `json:"supporting_docs,omitempty"`
	ApprovalLevel  types.ApprovalLevel   `json:"approval_level"`
	Status         Status                `json:"status"`
	CreatedAt      time.Time             `json:"created_at"`
	EscalatedAt    *time.Time            `json:"escalated_at,omitempty"`
	PolicyVersion  string                `json:"policy_version,omitempty"`
	Results        []types.PolicyResult  `json:"results,omitempty"`
	Trip           *types.TripContext    `json:"trip,omitempty"`
	Events         []types.ApprovalEvent `json:"events,omitempty"`
}

// anchor is the start of the current 48 hour window
func (r *Request) anchor() time.Time {
	if r.EscalatedAt != nil {
		return *r.EscalatedAt
	}
	return r.CreatedAt
}

// DueAt is when the request becomes eligible for escalation
func (r *Request) DueAt() time.Time {
	return r.anchor().Add(EscalationAfter)
}

// dueFor reports whether the request should escalate at now
func (r *Request) dueFor(now time.Time) bool {
	return !r.Status.Terminal() && len(r.Events) == 0 && !now.Before(r.DueAt())
}

// clone returns a deep copy safe to hand to callers
func (r *Request) clone() *Request {
	c := *r
	if r.Amount != nil {
		amount := *r.Amount
		c.Amount = &amount
	}
	if r.EscalatedAt != nil {
		at := *r.EscalatedAt
		c.EscalatedAt = &at
	}
	if r.Trip != nil {
		trip := *r.Trip
		c.Trip = &trip
	}
	c.SupportingDocs = append([]string(nil), r.SupportingDocs...)
	c.Results = append([]types.PolicyResult(nil), r.Results...)
	c.Events = append([]types.ApprovalEvent(nil), r.Events...)
	return &c
}

// CreateInput carries the fields of a new request
type CreateInput struct {
	Type           Type
	TripID         string
	Requestor      string
	Justification  string
	Amount         *decimal.Decimal
	SupportingDocs []string
	PolicyVersion  string
	Results        []types.PolicyResult
	// Trip is the policy-lite input the request is about. Decisions on a
	// request without results re-evaluate it.
	Trip *types.TripContext
}

// Validate checks the request before it is routed
func (in CreateInput) Validate() error {
	if !in.Type.Valid() {
		return &types.ValidationError{Field: "type", Reason: "unknown exception type " + string(in.Type)}
	}
	if in.Requestor == "" {
		return &types.ValidationError{Field: "requestor", Reason: "is required"}
	}
	if utf8.RuneCountInString(strings.TrimSpace(in.Justification)) < MinJustificationRunes {
		return &types.ValidationError{Field: "justification", Reason: "must be at least 50 characters"}
	}
	if in.Trip != nil && in.Trip.TripID != "" && in.TripID != "" && in.Trip.TripID != in.TripID {
		return &types.ValidationError{Field: "trip", Reason: "trip context belongs to " + in.Trip.TripID}
	}
	if in.Amount != nil && in.Amount.IsNegative() {
		return &types.ValidationError{Field: "amount", Reason: "must not be negative"}
	}
	return nil
}

// DecideInput is one approver decision
type DecideInput struct {
	RequestID  string
	ApproverID string
	Outcome    types.ApprovalOutcome
	Notes      string
}
