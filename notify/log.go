package notify

import (
	"context"
	"errors"

	"github.com/yairfalse/travelgate/exception"
	"github.com/yairfalse/travelgate/telemetry"
)

// LogNotifier writes escalations to the structured log. Used when no queue
// is configured.
type LogNotifier struct {
	logger *telemetry.Logger
}

// NewLogNotifier creates a notifier logging through logger
func NewLogNotifier(logger *telemetry.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// NotifyEscalation logs the escalation
func (n *LogNotifier) NotifyEscalation(ctx context.Context, e exception.Escalation) error {
	event := n.logger.WithContext(ctx).Warn().
		Str("request_id", e.RequestID).
		Str("type", string(e.Type)).
		Str("trip_id", e.TripID).
		Str("requestor", e.Requestor).
		Str("from_level", string(e.FromLevel)).
		Str("to_level", string(e.ToLevel)).
		Time("escalated_at", e.EscalatedAt)
	if e.Amount != nil {
		event = event.Str("amount", e.Amount.String())
	}
	event.Msg("exception request escalated, approver action needed")
	return nil
}

// Multi fans an escalation out to several notifiers, attempting every one
type Multi []exception.Notifier

// NotifyEscalation calls each notifier and joins their errors
func (m Multi) NotifyEscalation(ctx context.Context, e exception.Escalation) error {
	var errs []error
	for _, n := range m {
		if err := n.NotifyEscalation(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
