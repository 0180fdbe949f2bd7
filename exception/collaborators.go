package exception

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/yairfalse/travelgate/types"
)

// Clock supplies the router's notion of now
type Clock func() time.Time

// Authorizer decides whether an actor may decide at a level. The router
// trusts the answer as given.
type Authorizer interface {
	MayDecide(ctx context.Context, actorID string, level types.ApprovalLevel) (bool, error)
}

// AuthorizerFunc adapts a function to Authorizer
type AuthorizerFunc func(ctx context.Context, actorID string, level types.ApprovalLevel) (bool, error)

// MayDecide calls f
func (f AuthorizerFunc) MayDecide(ctx context.Context, actorID string, level types.ApprovalLevel) (bool, error) {
	return f(ctx, actorID, level)
}

// StaticAuthorizer grants each approver every level up to their own
type StaticAuthorizer map[string]types.ApprovalLevel

// NewStaticAuthorizer builds an authorizer from approver -> level names.
// Unknown level names grant nothing.
func NewStaticAuthorizer(approvers map[string]string) StaticAuthorizer {
	a := make(StaticAuthorizer, len(approvers))
	for actor, level := range approvers {
		a[actor] = types.ApprovalLevel(level)
	}
	return a
}

// MayDecide reports whether the actor's level is at least level
func (a StaticAuthorizer) MayDecide(_ context.Context, actorID string, level types.ApprovalLevel) (bool, error) {
	granted, ok := a[actorID]
	if !ok || !granted.Valid() {
		return false, nil
	}
	return granted.Rank() >= level.Rank(), nil
}

// Escalation describes one escalated request for notification
type Escalation struct {
	RequestID   string              `json:"request_id"`
	Type        Type                `json:"type"`
	TripID      string              `json:"trip_id"`
	Requestor   string              `json:"requestor"`
	Amount      *decimal.Decimal    `json:"amount,omitempty"`
	FromLevel   types.ApprovalLevel `json:"from_level"`
	ToLevel     types.ApprovalLevel `json:"to_level"`
	EscalatedAt time.Time           `json:"escalated_at"`
}

// Notifier is told about every escalation after it is committed
type Notifier interface {
	NotifyEscalation(ctx context.Context, e Escalation) error
}

// DecisionHook runs after a decision is validated and before it is
// committed. An error aborts the decision.
type DecisionHook func(ctx context.Context, req Request, event types.ApprovalEvent) error
