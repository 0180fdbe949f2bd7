package exception

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/btree"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/yairfalse/travelgate/internal/keylock"
	"github.com/yairfalse/travelgate/telemetry"
	"github.com/yairfalse/travelgate/types"
	"github.com/yairfalse/travelgate/wal"
)

// ErrNotFound is returned for an unknown request id
var ErrNotFound = errors.New("exception request not found")

// dueItem orders open requests by escalation time
type dueItem struct {
	at time.Time
	id string
}

func dueLess(a, b dueItem) bool {
	if !a.at.Equal(b.at) {
		return a.at.Before(b.at)
	}
	return a.id < b.id
}

// Option configures a Router
type Option func(*Router)

// WithClock replaces the wall clock
func WithClock(clock Clock) Option {
	return func(r *Router) { r.clock = clock }
}

// WithJournal persists every transition to w before it is applied
func WithJournal(w *wal.WAL) Option {
	return func(r *Router) { r.journal = w }
}

// WithNotifier sends escalation notices
func WithNotifier(n Notifier) Option {
	return func(r *Router) { r.notifier = n }
}

// WithDecisionHook runs hook before each decision commits
func WithDecisionHook(hook DecisionHook) Option {
	return func(r *Router) { r.hook = hook }
}

// WithMetrics records transitions on m
func WithMetrics(m *telemetry.Metrics) Option {
	return func(r *Router) { r.metrics = m }
}

// WithTracer sets the tracer for sweep and decision spans
func WithTracer(t trace.Tracer) Option {
	return func(r *Router) { r.tracer = t }
}

// WithLogger replaces the component logger
func WithLogger(l *telemetry.Logger) Option {
	return func(r *Router) { r.logger = l }
}

// WithIDGenerator replaces uuid request ids
func WithIDGenerator(newID func() string) Option {
	return func(r *Router) { r.newID = newID }
}

// Router owns the exception requests. Transitions on one request are
// serialized; different requests proceed independently.
type Router struct {
	mu       sync.RWMutex
	requests map[string]*Request
	due      *btree.BTreeG[dueItem]

	locks      *keylock.Locker
	authorizer Authorizer
	journal    *wal.WAL
	notifier   Notifier
	hook       DecisionHook
	clock      Clock
	newID      func() string

	logger  *telemetry.Logger
	metrics *telemetry.Metrics
	tracer  trace.Tracer
}

// NewRouter creates a router that asks authorizer about every decision
func NewRouter(authorizer Authorizer, opts ...Option) *Router {
	r := &Router{
		requests:   make(map[string]*Request),
		due:        btree.NewG[dueItem](32, dueLess),
		locks:      keylock.New(),
		authorizer: authorizer,
		clock:      time.Now,
		newID:      uuid.NewString,
		logger:     telemetry.NewLogger("exception-router"),
		metrics:    telemetry.NoopMetrics(),
		tracer:     telemetry.Tracer(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Create validates and routes a new request
func (r *Router) Create(ctx context.Context, in CreateInput) (*Request, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	req := &Request{
		ID:             r.newID(),
		Type:           in.Type,
		TripID:         in.TripID,
		Requestor:      in.Requestor,
		Justification:  in.Justification,
		Amount:         in.Amount,
		SupportingDocs: in.SupportingDocs,
		ApprovalLevel:  RequiredLevel(in.Type, in.Amount),
		Status:         StatusPending,
		CreatedAt:      r.clock().UTC(),
		PolicyVersion:  in.PolicyVersion,
		Results:        in.Results,
		Trip:           in.Trip,
	}
	if req.TripID == "" && in.Trip != nil {
		req.TripID = in.Trip.TripID
	}
	req = req.clone()

	unlock := r.locks.Lock(req.ID)
	defer unlock()

	if err := r.commit(wal.EntryCreated, nil, req); err != nil {
		return nil, err
	}

	r.logger.WithContext(ctx).Info().
		Str("request_id", req.ID).
		Str("type", string(req.Type)).
		Str("trip_id", req.TripID).
		Str("approval_level", string(req.ApprovalLevel)).
		Msg("exception request created")
	return req.clone(), nil
}

// Get returns a copy of the request
func (r *Router) Get(id string) (*Request, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	req, ok := r.requests[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	return req.clone(), nil
}

// List returns copies of all requests ordered by creation time
func (r *Router) List() []*Request {
	r.mu.RLock()
	out := make([]*Request, 0, len(r.requests))
	for _, req := range r.requests {
		out = append(out, req.clone())
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Escalate moves a request one level up when it has been open for 48
// hours without a decision. It reports whether anything changed; a request
// that is not yet due is left alone. Terminal requests return StateError.
func (r *Router) Escalate(ctx context.Context, id string) (bool, error) {
	unlock := r.locks.Lock(id)
	defer unlock()

	current, err := r.Get(id)
	if err != nil {
		return false, err
	}
	if current.Status.Terminal() {
		return false, &types.StateError{RequestID: id, Status: string(current.Status), Op: "escalate"}
	}

	now := r.clock().UTC()
	if !current.dueFor(now) {
		return false, nil
	}

	next := current.clone()
	next.Status = StatusEscalated
	next.ApprovalLevel = current.ApprovalLevel.Next()
	next.EscalatedAt = &now

	if err := r.commit(wal.EntryEscalated, current, next); err != nil {
		return false, err
	}

	from, to := string(current.ApprovalLevel), string(next.ApprovalLevel)
	telemetry.RecordEscalationEvent(trace.SpanFromContext(ctx), id, from, to)
	r.metrics.RecordEscalation(ctx, from, to)
	r.logger.LogEscalation(ctx, id, from, to)

	if r.notifier != nil {
		notice := Escalation{
			RequestID:   id,
			Type:        next.Type,
			TripID:      next.TripID,
			Requestor:   next.Requestor,
			Amount:      next.Amount,
			FromLevel:   current.ApprovalLevel,
			ToLevel:     next.ApprovalLevel,
			EscalatedAt: now,
		}
		// The escalation stands even if nobody hears about it
		if err := r.notifier.NotifyEscalation(ctx, notice); err != nil {
			r.logger.WithContext(ctx).Warn().Err(err).Str("request_id", id).Msg("escalation notification failed")
		}
	}
	return true, nil
}

// SweepResult summarizes one sweep
type SweepResult struct {
	Scanned   int      `json:"scanned"`
	Escalated []string `json:"escalated"`
}

// Sweep escalates every due request. Requests that turned terminal or
// were already escalated since the index was read are skipped silently.
func (r *Router) Sweep(ctx context.Context) (SweepResult, error) {
	start := time.Now()
	ctx, span := telemetry.StartSweep(ctx, r.tracer)

	now := r.clock().UTC()
	var ids []string
	r.mu.RLock()
	r.due.AscendLessThan(dueItem{at: now.Add(time.Nanosecond)}, func(item dueItem) bool {
		ids = append(ids, item.id)
		return true
	})
	r.mu.RUnlock()

	result := SweepResult{Scanned: len(ids)}
	var errs []error
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		escalated, err := r.Escalate(ctx, id)
		var stateErr *types.StateError
		switch {
		case errors.As(err, &stateErr), errors.Is(err, ErrNotFound):
			continue
		case err != nil:
			errs = append(errs, fmt.Errorf("escalate %s: %w", id, err))
		case escalated:
			result.Escalated = append(result.Escalated, id)
		}
	}

	telemetry.EndSweep(span, int64(result.Scanned), int64(len(result.Escalated)))
	r.metrics.RecordSweepDuration(ctx, len(result.Escalated), float64(time.Since(start).Milliseconds()))
	r.recordOpen(ctx)
	return result, errors.Join(errs...)
}

// Decide records an approver decision. Terminal requests return
// StateError and unauthorized approvers AuthorizationError; neither
// changes the request. A failing decision hook aborts the decision.
//
// The hook runs before the journal commit, so a commit failure leaves
// whatever the hook recorded without a matching decision. That case is
// logged with the trip id so the extra snapshot can be traced.
func (r *Router) Decide(ctx context.Context, in DecideInput) (req *Request, err error) {
	ctx, span := telemetry.StartDecision(ctx, r.tracer, in.RequestID, in.ApproverID)
	defer func() { telemetry.EndDecision(span, string(in.Outcome), err) }()

	unlock := r.locks.Lock(in.RequestID)
	defer unlock()

	current, err := r.Get(in.RequestID)
	if err != nil {
		return nil, err
	}
	if current.Status.Terminal() {
		return nil, &types.StateError{RequestID: in.RequestID, Status: string(current.Status), Op: "decide"}
	}

	var resulting Status
	switch in.Outcome {
	case types.OutcomeApproved:
		resulting = StatusApproved
	case types.OutcomeRejected:
		resulting = StatusRejected
	default:
		return nil, &types.ValidationError{Field: "outcome", Reason: fmt.Sprintf("exception decisions are approved or rejected, got %q", in.Outcome)}
	}

	allowed, err := r.authorizer.MayDecide(ctx, in.ApproverID, current.ApprovalLevel)
	if err != nil {
		return nil, fmt.Errorf("authorize %s on %s: %w", in.ApproverID, in.RequestID, err)
	}
	if !allowed {
		return nil, &types.AuthorizationError{RequestID: in.RequestID, ActorID: in.ApproverID, Level: current.ApprovalLevel}
	}

	event := types.ApprovalEvent{
		ApproverID:      in.ApproverID,
		ApprovalLevel:   current.ApprovalLevel,
		Outcome:         in.Outcome,
		Timestamp:       r.clock().UTC(),
		PriorStatus:     string(current.Status),
		ResultingStatus: string(resulting),
		Justification:   in.Notes,
	}
	if err := event.Validate(); err != nil {
		return nil, err
	}

	next := current.clone()
	next.Status = resulting
	next.Events = append(next.Events, event)

	if r.hook != nil {
		if err := r.hook(ctx, *next.clone(), event); err != nil {
			if r.journal != nil {
				_ = r.journal.AppendError(wal.EntryFailed, in.RequestID, next, err)
			}
			return nil, fmt.Errorf("decision hook for %s: %w", in.RequestID, err)
		}
	}

	if err := r.commit(wal.EntryDecided, current, next); err != nil {
		if r.hook != nil {
			r.logger.WithContext(ctx).Error().Err(err).
				Str("request_id", in.RequestID).
				Str("trip_id", next.TripID).
				Str("outcome", string(in.Outcome)).
				Msg("decision hook ran but the decision was not committed")
		}
		return nil, err
	}

	telemetry.RecordDecisionEvent(span, in.RequestID, in.ApproverID, string(in.Outcome), in.Notes)
	r.metrics.RecordDecision(ctx, string(event.ApprovalLevel), string(in.Outcome))
	r.logger.LogDecision(ctx, in.RequestID, in.ApproverID, string(in.Outcome))
	return next.clone(), nil
}

// commit journals next and then makes it the visible state. Journal
// writes happen under the router lock so their order matches apply order.
func (r *Router) commit(entryType wal.EntryType, previous, next *Request) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.journal != nil {
		if err := r.journal.Append(entryType, next.ID, next); err != nil {
			r.logger.LogStorageError(context.Background(), "journal_append", err)
			return fmt.Errorf("journal %s for %s: %w", entryType, next.ID, err)
		}
	}
	r.apply(previous, next)
	return nil
}

// apply replaces the stored request and its due-index entry. Caller holds mu.
func (r *Router) apply(previous, next *Request) {
	if previous != nil {
		r.due.Delete(dueItem{at: previous.DueAt(), id: previous.ID})
	}
	r.requests[next.ID] = next
	if !next.Status.Terminal() {
		r.due.ReplaceOrInsert(dueItem{at: next.DueAt(), id: next.ID})
	}
}

// recordOpen publishes open request counts per approval level
func (r *Router) recordOpen(ctx context.Context) {
	counts := map[types.ApprovalLevel]int64{
		types.LevelManager:  0,
		types.LevelDirector: 0,
		types.LevelBoard:    0,
	}
	r.mu.RLock()
	for _, req := range r.requests {
		if !req.Status.Terminal() {
			counts[req.ApprovalLevel]++
		}
	}
	r.mu.RUnlock()

	for level, count := range counts {
		r.metrics.RecordOpenRequests(ctx, string(level), count)
	}
}

// Recover rebuilds state from the journal. Later entries for a request
// replace earlier ones until it reaches a decision; a decided request is
// never reopened by a later entry. Failed decisions are ignored.
func (r *Router) Recover(dir string, config wal.Config) (int, error) {
	latest := make(map[string]*Request)
	err := wal.ReplayWithConfig(dir, config, time.Time{}, func(entry *wal.Entry) error {
		if entry.Type == wal.EntryFailed {
			return nil
		}
		var req Request
		if err := json.Unmarshal(entry.Data, &req); err != nil {
			return fmt.Errorf("journal entry %d: %w", entry.Sequence, err)
		}
		if prev, ok := latest[req.ID]; ok && prev.Status.Terminal() {
			if req.Status != prev.Status || len(req.Events) != len(prev.Events) {
				r.logger.Warn().
					Str("request_id", req.ID).
					Int64("sequence", entry.Sequence).
					Str("kept_status", string(prev.Status)).
					Str("skipped_status", string(req.Status)).
					Msg("journal entry after decision ignored")
			}
			return nil
		}
		latest[req.ID] = &req
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("recover exception journal: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, req := range latest {
		old, ok := r.requests[req.ID]
		switch {
		case !ok:
			r.apply(nil, req)
		case old.Status.Terminal():
			continue
		default:
			r.apply(old, req)
		}
	}
	return len(latest), nil
}

// Compact checkpoints every request into a fresh journal file and drops
// files past retention. Returns the number of files removed.
func (r *Router) Compact(ctx context.Context) (int, error) {
	if r.journal == nil {
		return 0, nil
	}

	r.mu.Lock()
	if err := r.journal.Rotate(); err != nil {
		r.mu.Unlock()
		return 0, fmt.Errorf("rotate exception journal: %w", err)
	}
	for _, req := range r.requests {
		if err := r.journal.Append(wal.EntryCheckpoint, req.ID, req); err != nil {
			r.mu.Unlock()
			return 0, fmt.Errorf("checkpoint %s: %w", req.ID, err)
		}
	}
	r.mu.Unlock()

	stats, err := r.journal.CleanupRetained()
	if err != nil {
		return stats.FilesRemoved, fmt.Errorf("clean exception journal: %w", err)
	}
	r.logger.WithContext(ctx).Info().
		Int("files_removed", stats.FilesRemoved).
		Int64("bytes_freed", stats.BytesFreed).
		Msg("exception journal compacted")
	return stats.FilesRemoved, nil
}
