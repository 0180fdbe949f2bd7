// Package approval records trip-level approval decisions and captures a
// validation snapshot for each one.
package approval

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/yairfalse/travelgate/exception"
	"github.com/yairfalse/travelgate/policy"
	"github.com/yairfalse/travelgate/snapshot"
	"github.com/yairfalse/travelgate/telemetry"
	"github.com/yairfalse/travelgate/types"
)

// DecisionInput is one approver decision on a trip plan
type DecisionInput struct {
	ApproverID    string
	Level         types.ApprovalLevel
	Outcome       types.ApprovalOutcome
	Justification string
	// Timestamp defaults to the recorder clock
	Timestamp time.Time
}

// Recorder applies decisions to trip plans
type Recorder struct {
	store     *snapshot.Store
	registry  *policy.Registry[types.TripPlan]
	rulesetID string
	clock     func() time.Time
	logger    *telemetry.Logger
}

// NewRecorder creates a recorder. With a nil store decisions are applied
// without snapshots; otherwise the registry's rulesetID validates plans
// that carry no results yet.
func NewRecorder(store *snapshot.Store, registry *policy.Registry[types.TripPlan], rulesetID string) *Recorder {
	return &Recorder{
		store:     store,
		registry:  registry,
		rulesetID: rulesetID,
		clock:     time.Now,
		logger:    telemetry.NewLogger("approval-recorder"),
	}
}

// statusFor maps a decision outcome to the plan status it produces
func statusFor(outcome types.ApprovalOutcome) types.TripStatus {
	switch outcome {
	case types.OutcomeApproved, types.OutcomeOverridden:
		return types.TripApproved
	case types.OutcomeRejected:
		return types.TripRejected
	default:
		return types.TripSubmitted
	}
}

// Record appends an approval event to plan and updates its status. When a
// snapshot store is configured the updated plan is captured first; if the
// capture fails plan is left untouched.
func (r *Recorder) Record(ctx context.Context, plan *types.TripPlan, in DecisionInput) (types.ApprovalEvent, error) {
	ts := in.Timestamp
	if ts.IsZero() {
		ts = r.clock()
	}

	event := types.ApprovalEvent{
		ApproverID:      in.ApproverID,
		ApprovalLevel:   in.Level,
		Outcome:         in.Outcome,
		Timestamp:       ts.UTC(),
		PriorStatus:     string(plan.Status),
		ResultingStatus: string(statusFor(in.Outcome)),
		Justification:   strings.TrimSpace(in.Justification),
	}
	if err := event.Validate(); err != nil {
		return types.ApprovalEvent{}, err
	}

	updated := *plan
	updated.Status = statusFor(in.Outcome)
	updated.ApprovalHistory = append(append([]types.ApprovalEvent(nil), plan.ApprovalHistory...), event)

	if r.store != nil {
		snap, err := r.capture(ctx, updated)
		if err != nil {
			return types.ApprovalEvent{}, err
		}
		updated.ValidationResults = snap.Results
		updated.PolicyVersion = snap.PolicyVersion
	}

	*plan = updated
	r.logger.WithContext(ctx).Info().
		Str("trip_id", plan.TripID).
		Str("approver_id", event.ApproverID).
		Str("outcome", string(event.Outcome)).
		Str("status", string(plan.Status)).
		Msg("trip approval recorded")
	return event, nil
}

// capture snapshots plan. Results are kept only when the plan names the
// version that produced them; otherwise the active ruleset re-evaluates.
func (r *Recorder) capture(ctx context.Context, plan types.TripPlan) (*snapshot.Snapshot, error) {
	if plan.ValidationResults != nil && plan.PolicyVersion != "" {
		snap, err := r.store.Append(ctx, plan.TripID, plan.PolicyVersion, plan, plan.ValidationResults)
		if err != nil {
			return nil, fmt.Errorf("capture approval snapshot: %w", err)
		}
		return snap, nil
	}

	var rs *policy.Ruleset[types.TripPlan]
	if r.registry != nil {
		rs, _ = r.registry.Get(r.rulesetID)
	}
	if rs == nil {
		return nil, &types.ConfigError{Reason: fmt.Sprintf("no active ruleset %q to validate trip %s", r.rulesetID, plan.TripID)}
	}

	snap, err := snapshot.Capture(ctx, r.store, plan.TripID, plan, nil, rs)
	if err != nil {
		return nil, fmt.Errorf("capture approval snapshot: %w", err)
	}
	return snap, nil
}

// ExceptionHook captures every exception decision into the trip's
// snapshot chain before the router commits it. A request without results
// or without the version that produced them is evaluated by the active
// policy-lite ruleset rulesetID.
func ExceptionHook(store *snapshot.Store, registry *policy.Registry[types.TripContext], rulesetID string) exception.DecisionHook {
	return func(ctx context.Context, req exception.Request, _ types.ApprovalEvent) error {
		tripID := req.TripID
		if tripID == "" {
			tripID = "exception-" + req.ID
		}

		version, results := req.PolicyVersion, req.Results
		if results == nil || version == "" {
			trip := types.TripContext{TripID: req.TripID}
			if req.Trip != nil {
				trip = *req.Trip
			}
			if registry == nil {
				return &types.ConfigError{Reason: fmt.Sprintf("no active ruleset %q to evaluate exception %s", rulesetID, req.ID)}
			}
			evaluated, v, err := registry.EvaluateContext(ctx, rulesetID, trip)
			if err != nil {
				return fmt.Errorf("evaluate exception %s: %w", req.ID, err)
			}
			version, results = v, evaluated
		}

		if _, err := store.Append(ctx, tripID, version, req, results); err != nil {
			return fmt.Errorf("capture exception decision %s: %w", req.ID, err)
		}
		return nil
	}
}
