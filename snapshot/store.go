package snapshot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/yairfalse/travelgate/canonical"
	"github.com/yairfalse/travelgate/internal/keylock"
	"github.com/yairfalse/travelgate/storage"
	"github.com/yairfalse/travelgate/telemetry"
	"github.com/yairfalse/travelgate/types"
)

// Clock supplies snapshot timestamps
type Clock func() time.Time

// Option configures a Store
type Option func(*Store)

// WithClock replaces the wall clock
func WithClock(clock Clock) Option {
	return func(s *Store) { s.clock = clock }
}

// WithMetrics records appends and verifications on m
func WithMetrics(m *telemetry.Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// WithTracer sets the tracer used for append and verify spans
func WithTracer(t trace.Tracer) Option {
	return func(s *Store) { s.tracer = t }
}

// Store appends and verifies snapshot chains over a storage backend.
// Appends to one trip are serialized; different trips proceed in parallel.
type Store struct {
	backend storage.Backend
	clock   Clock
	locks   *keylock.Locker
	logger  *telemetry.Logger
	metrics *telemetry.Metrics
	tracer  trace.Tracer
}

// NewStore creates a store over backend
func NewStore(backend storage.Backend, opts ...Option) *Store {
	s := &Store{
		backend: backend,
		clock:   time.Now,
		locks:   keylock.New(),
		logger:  telemetry.NewLogger("snapshot-store"),
		metrics: telemetry.NoopMetrics(),
		tracer:  telemetry.Tracer(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Backend returns the underlying storage backend
func (s *Store) Backend() storage.Backend {
	return s.backend
}

// Append records one validation run for tripID. The input is stored in
// canonical form and the new snapshot is linked to the trip's latest one.
// Oversized payloads are refused with SnapshotTooLargeError; nothing is
// truncated.
func (s *Store) Append(ctx context.Context, tripID, policyVersion string, input any, results []types.PolicyResult) (*Snapshot, error) {
	if tripID == "" || strings.Contains(tripID, "/") {
		return nil, &types.ValidationError{Field: "trip_id", Reason: "must be non-empty and must not contain '/'"}
	}

	ctx, span := telemetry.StartAppend(ctx, s.tracer, tripID)

	unlock := s.locks.Lock(tripID)
	defer unlock()

	snap, size, err := s.append(ctx, tripID, policyVersion, input, results)
	telemetry.EndAppend(span, snap.keyOrEmpty(), size, err)
	if err != nil {
		var tooLarge *types.SnapshotTooLargeError
		if errors.As(err, &tooLarge) {
			s.metrics.RecordSnapshotRejected(ctx, s.backend.Name(), "too_large")
		}
		return nil, err
	}

	s.metrics.RecordSnapshotAppended(ctx, s.backend.Name())
	s.logger.LogSnapshotAppended(ctx, tripID, snap.Key, snap.ChainHash, size)
	return snap, nil
}

func (s *Store) append(ctx context.Context, tripID, policyVersion string, input any, results []types.PolicyResult) (*Snapshot, int, error) {
	previous, lastTS, err := s.tip(ctx, tripID)
	if err != nil {
		return nil, 0, err
	}

	ts := s.clock().UTC()
	if !lastTS.IsZero() && !ts.After(lastTS) {
		ts = lastTS.Add(time.Nanosecond)
	}
	key := FormatKey(ts)

	inputJSON, err := canonical.Marshal(input)
	if err != nil {
		return nil, 0, fmt.Errorf("canonicalize input for trip %s: %w", tripID, err)
	}
	if results == nil {
		results = []types.PolicyResult{}
	}

	// Round-trip through canonical JSON so hashing sees exactly the values
	// verification will decode later.
	draft, err := canonical.Marshal(map[string]any{
		fieldTripID:        tripID,
		fieldTimestamp:     key,
		fieldPolicyVersion: policyVersion,
		fieldInputData:     json.RawMessage(inputJSON),
		fieldResults:       results,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("encode snapshot for trip %s: %w", tripID, err)
	}
	decoded, err := canonical.Decode(draft)
	if err != nil {
		return nil, 0, err
	}
	record := decoded.(map[string]any)

	snapshotHash, err := hashRecord(record)
	if err != nil {
		return nil, 0, err
	}
	record[fieldSnapshotHash] = snapshotHash
	record[fieldPreviousHash] = previous
	record[fieldChainHash] = ChainHash(previous, snapshotHash)

	data, err := canonical.Marshal(record)
	if err != nil {
		return nil, 0, err
	}
	if len(data) > MaxPayloadBytes {
		return nil, len(data), &types.SnapshotTooLargeError{TripID: tripID, Size: len(data), Limit: MaxPayloadBytes}
	}

	if err := s.backend.Create(ctx, tripID, key, data); err != nil {
		s.logger.LogStorageError(ctx, "snapshot_append", err)
		return nil, len(data), fmt.Errorf("store snapshot %s for trip %s: %w", key, tripID, err)
	}

	snap, err := decodeSnapshot(key, data)
	if err != nil {
		return nil, len(data), err
	}
	return &snap, len(data), nil
}

// tip returns the chain hash and timestamp of the trip's latest snapshot,
// or the genesis hash for an empty chain
func (s *Store) tip(ctx context.Context, tripID string) (string, time.Time, error) {
	records, err := s.backend.List(ctx, tripID)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("list snapshots for trip %s: %w", tripID, err)
	}
	if len(records) == 0 {
		return GenesisHash, time.Time{}, nil
	}

	last := records[len(records)-1]
	ts, err := time.Parse(keyLayout, last.Key)
	if err != nil {
		return "", time.Time{}, &types.ChainIntegrityError{TripID: tripID, Key: last.Key, Reason: "storage key is not a snapshot timestamp"}
	}
	value, err := canonical.Decode(last.Data)
	if err != nil {
		return "", time.Time{}, &types.ChainIntegrityError{TripID: tripID, Key: last.Key, Reason: "latest record is not valid JSON"}
	}
	record, ok := value.(map[string]any)
	if !ok {
		return "", time.Time{}, &types.ChainIntegrityError{TripID: tripID, Key: last.Key, Reason: "latest record is not an object"}
	}
	chain, ok := record[fieldChainHash].(string)
	if !ok || chain == "" {
		return "", time.Time{}, &types.ChainIntegrityError{TripID: tripID, Key: last.Key, Reason: "latest record has no chain_hash"}
	}
	return chain, ts, nil
}

// History returns the trip's snapshots in chain order
func (s *Store) History(ctx context.Context, tripID string) ([]Snapshot, error) {
	records, err := s.backend.List(ctx, tripID)
	if err != nil {
		return nil, fmt.Errorf("list snapshots for trip %s: %w", tripID, err)
	}

	history := make([]Snapshot, 0, len(records))
	for _, rec := range records {
		snap, err := decodeSnapshot(rec.Key, rec.Data)
		if err != nil {
			return nil, &types.ChainIntegrityError{TripID: tripID, Key: rec.Key, Reason: "record cannot be decoded"}
		}
		history = append(history, snap)
	}
	return history, nil
}

// Latest returns the trip's most recent snapshot, or nil for an empty chain
func (s *Store) Latest(ctx context.Context, tripID string) (*Snapshot, error) {
	history, err := s.History(ctx, tripID)
	if err != nil || len(history) == 0 {
		return nil, err
	}
	return &history[len(history)-1], nil
}

// VerifyChain recomputes every hash of the trip's chain from genesis. Any
// mismatch returns ChainIntegrityError naming the first bad record. The
// chain is never repaired.
func (s *Store) VerifyChain(ctx context.Context, tripID string) error {
	ctx, span := telemetry.StartVerify(ctx, s.tracer, tripID)

	records, err := s.backend.List(ctx, tripID)
	if err != nil {
		err = fmt.Errorf("list snapshots for trip %s: %w", tripID, err)
		telemetry.EndVerify(span, 0, err)
		return err
	}

	previous := GenesisHash
	for _, rec := range records {
		chain, err := verifyRecord(tripID, rec, previous)
		if err != nil {
			var integrity *types.ChainIntegrityError
			if errors.As(err, &integrity) {
				telemetry.RecordChainViolationEvent(span, tripID, rec.Key, integrity.Reason)
			}
			telemetry.EndVerify(span, len(records), err)
			s.metrics.RecordChainVerification(ctx, false)
			s.logger.LogChainViolation(ctx, tripID, rec.Key, err)
			return err
		}
		previous = chain
	}

	telemetry.EndVerify(span, len(records), nil)
	s.metrics.RecordChainVerification(ctx, true)
	s.logger.LogChainVerified(ctx, tripID, len(records))
	return nil
}

var allFields = append(append([]string(nil), hashedFields...), fieldSnapshotHash, fieldPreviousHash, fieldChainHash)

// verifyRecord checks one stored record against the expected predecessor
// and returns its chain hash
func verifyRecord(tripID string, rec storage.Record, previous string) (string, error) {
	fail := func(reason string) (string, error) {
		return "", &types.ChainIntegrityError{TripID: tripID, Key: rec.Key, Reason: reason}
	}

	value, err := canonical.Decode(rec.Data)
	if err != nil {
		return fail("record is not valid JSON")
	}
	record, ok := value.(map[string]any)
	if !ok {
		return fail("record is not an object")
	}
	normalized, err := canonical.Normalize(rec.Data)
	if err != nil || !bytes.Equal(normalized, rec.Data) {
		return fail("record bytes are not canonical")
	}
	if len(record) != len(allFields) {
		return fail("record has unexpected fields")
	}
	for _, f := range allFields {
		if _, ok := record[f]; !ok {
			return fail("record is missing " + f)
		}
	}

	if id, _ := record[fieldTripID].(string); id != tripID {
		return fail("trip_id does not match chain")
	}
	if ts, _ := record[fieldTimestamp].(string); ts != rec.Key {
		return fail("timestamp does not match storage key")
	}

	snapshotHash, err := hashRecord(record)
	if err != nil {
		return fail("record cannot be hashed")
	}
	if stored, _ := record[fieldSnapshotHash].(string); stored != snapshotHash {
		return fail("snapshot_hash mismatch")
	}
	if stored, _ := record[fieldPreviousHash].(string); stored != previous {
		return fail("previous_hash does not match prior chain_hash")
	}
	chain := ChainHash(previous, snapshotHash)
	if stored, _ := record[fieldChainHash].(string); stored != chain {
		return fail("chain_hash mismatch")
	}
	return chain, nil
}

func (s *Snapshot) keyOrEmpty() string {
	if s == nil {
		return ""
	}
	return s.Key
}
