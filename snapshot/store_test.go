package snapshot

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yairfalse/travelgate/storage"
	"github.com/yairfalse/travelgate/types"
)

var epoch = time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

func fixedClock(t time.Time) Clock {
	return func() time.Time { return t }
}

func failing(rule string) types.PolicyResult {
	return types.PolicyResult{
		RuleID:   rule,
		Code:     strings.ToUpper(rule),
		Message:  rule + " failed",
		Severity: types.SeverityError,
		Passed:   false,
		Blocking: true,
		Context:  map[string]any{"limit": 200},
	}
}

// tamperBackend flips one byte of one listed record
type tamperBackend struct {
	storage.Backend
	record int
	offset int
}

func (b *tamperBackend) List(ctx context.Context, tripID string) ([]storage.Record, error) {
	records, err := b.Backend.List(ctx, tripID)
	if err != nil || b.record >= len(records) {
		return records, err
	}
	data := append([]byte(nil), records[b.record].Data...)
	data[b.offset] ^= 0x01
	records[b.record].Data = data
	return records, nil
}

func TestAppend_LinksChain(t *testing.T) {
	store := NewStore(storage.NewMemoryStore(), WithClock(fixedClock(epoch)))
	ctx := context.Background()

	first, err := store.Append(ctx, "T-1", "v1", map[string]any{"fare": 250}, []types.PolicyResult{failing("fare_comparison")})
	require.NoError(t, err)
	assert.Equal(t, GenesisHash, first.PreviousHash)
	assert.Equal(t, ChainHash(first.PreviousHash, first.SnapshotHash), first.ChainHash)
	assert.Len(t, first.ChainHash, 64)

	second, err := store.Append(ctx, "T-1", "v1", map[string]any{"fare": 150}, nil)
	require.NoError(t, err)
	assert.Equal(t, first.ChainHash, second.PreviousHash)
	assert.NotNil(t, second.Results)

	third, err := store.Append(ctx, "T-1", "v2", map[string]any{"fare": 150}, nil)
	require.NoError(t, err)
	assert.Equal(t, second.ChainHash, third.PreviousHash)

	require.NoError(t, store.VerifyChain(ctx, "T-1"))
}

func TestAppend_TimestampsStrictlyIncrease(t *testing.T) {
	store := NewStore(storage.NewMemoryStore(), WithClock(fixedClock(epoch)))
	ctx := context.Background()

	var previous time.Time
	for i := 0; i < 5; i++ {
		snap, err := store.Append(ctx, "T-1", "v1", map[string]any{"i": i}, nil)
		require.NoError(t, err)
		assert.True(t, snap.Timestamp.After(previous), "snapshot %d at %s", i, snap.Timestamp)
		assert.Equal(t, FormatKey(snap.Timestamp), snap.Key)
		previous = snap.Timestamp
	}

	history, err := store.History(ctx, "T-1")
	require.NoError(t, err)
	require.Len(t, history, 5)
	assert.Equal(t, epoch, history[0].Timestamp)
	assert.Equal(t, epoch.Add(4*time.Nanosecond), history[4].Timestamp)
}

func TestAppend_ClockGoingBackwards(t *testing.T) {
	now := epoch
	store := NewStore(storage.NewMemoryStore(), WithClock(func() time.Time { return now }))
	ctx := context.Background()

	first, err := store.Append(ctx, "T-1", "v1", nil, nil)
	require.NoError(t, err)

	now = epoch.Add(-time.Hour)
	second, err := store.Append(ctx, "T-1", "v1", nil, nil)
	require.NoError(t, err)
	assert.True(t, second.Timestamp.After(first.Timestamp))
	require.NoError(t, store.VerifyChain(ctx, "T-1"))
}

func TestAppend_CanonicalInput(t *testing.T) {
	backend := storage.NewMemoryStore()
	ctx := context.Background()

	a, err := NewStore(backend, WithClock(fixedClock(epoch))).Append(ctx, "T-1", "v1", map[string]any{"b": 2.0, "a": 1}, nil)
	require.NoError(t, err)
	b, err := NewStore(backend, WithClock(fixedClock(epoch))).Append(ctx, "T-2", "v1", map[string]any{"a": 1, "b": 2}, nil)
	require.NoError(t, err)

	assert.Equal(t, `{"a":1,"b":2}`, string(a.InputData))
	assert.Equal(t, a.InputData, b.InputData)
}

func TestAppend_PayloadLimit(t *testing.T) {
	backend := storage.NewMemoryStore()
	store := NewStore(backend, WithClock(fixedClock(epoch)))
	ctx := context.Background()

	input := func(n int) map[string]any {
		return map[string]any{"note": strings.Repeat("x", n)}
	}

	_, err := store.Append(ctx, "T-0001", "v1", input(100), nil)
	require.NoError(t, err)
	existing, err := backend.List(ctx, "T-0001")
	require.NoError(t, err)
	base := len(existing[0].Data) - 100
	require.Less(t, base, MaxPayloadBytes)

	exact := MaxPayloadBytes - base
	_, err = store.Append(ctx, "T-0002", "v1", input(exact), nil)
	require.NoError(t, err)
	stored, err := backend.List(ctx, "T-0002")
	require.NoError(t, err)
	assert.Len(t, stored[0].Data, MaxPayloadBytes)

	_, err = store.Append(ctx, "T-0003", "v1", input(exact+1), nil)
	var tooLarge *types.SnapshotTooLargeError
	require.ErrorAs(t, err, &tooLarge)
	assert.Equal(t, MaxPayloadBytes+1, tooLarge.Size)
	assert.Equal(t, MaxPayloadBytes, tooLarge.Limit)

	rejected, err := backend.List(ctx, "T-0003")
	require.NoError(t, err)
	assert.Empty(t, rejected)
}

func TestAppend_InvalidTripID(t *testing.T) {
	store := NewStore(storage.NewMemoryStore())

	for _, id := range []string{"", "T/1"} {
		_, err := store.Append(context.Background(), id, "v1", nil, nil)
		var verr *types.ValidationError
		assert.ErrorAs(t, err, &verr, "trip id %q", id)
	}
}

// racingBackend claims every key already exists
type racingBackend struct{ storage.Backend }

func (racingBackend) Create(context.Context, string, string, []byte) error {
	return storage.ErrKeyExists
}

func TestAppend_NeverOverwrites(t *testing.T) {
	store := NewStore(racingBackend{storage.NewMemoryStore()})

	_, err := store.Append(context.Background(), "T-1", "v1", nil, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, storage.ErrKeyExists))
}

func TestAppend_ConcurrentSameTrip(t *testing.T) {
	store := NewStore(storage.NewMemoryStore(), WithClock(fixedClock(epoch)))
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := store.Append(ctx, "T-1", "v1", map[string]any{"i": i}, nil)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	history, err := store.History(ctx, "T-1")
	require.NoError(t, err)
	assert.Len(t, history, 20)
	require.NoError(t, store.VerifyChain(ctx, "T-1"))
}

func TestVerifyChain_DetectsEveryByteFlip(t *testing.T) {
	backend := storage.NewMemoryStore()
	ctx := context.Background()
	writer := NewStore(backend, WithClock(fixedClock(epoch)))

	_, err := writer.Append(ctx, "T-1", "v1", map[string]any{"fare": 250, "note": "café"}, []types.PolicyResult{failing("fare_comparison")})
	require.NoError(t, err)
	_, err = writer.Append(ctx, "T-1", "v1", map[string]any{"fare": 150}, nil)
	require.NoError(t, err)

	records, err := backend.List(ctx, "T-1")
	require.NoError(t, err)

	for r, rec := range records {
		for offset := range rec.Data {
			reader := NewStore(&tamperBackend{Backend: backend, record: r, offset: offset})
			err := reader.VerifyChain(ctx, "T-1")
			var integrity *types.ChainIntegrityError
			require.ErrorAs(t, err, &integrity, "record %d offset %d not detected", r, offset)
			assert.Equal(t, "T-1", integrity.TripID)
			assert.Equal(t, rec.Key, integrity.Key)
		}
	}
}

// reorderBackend swaps the first two records' payloads
type reorderBackend struct{ storage.Backend }

func (b reorderBackend) List(ctx context.Context, tripID string) ([]storage.Record, error) {
	records, err := b.Backend.List(ctx, tripID)
	if err != nil || len(records) < 2 {
		return records, err
	}
	records[0].Data, records[1].Data = records[1].Data, records[0].Data
	return records, nil
}

func TestVerifyChain_DetectsReorderedRecords(t *testing.T) {
	backend := storage.NewMemoryStore()
	ctx := context.Background()
	writer := NewStore(backend)

	_, err := writer.Append(ctx, "T-1", "v1", nil, nil)
	require.NoError(t, err)
	_, err = writer.Append(ctx, "T-1", "v1", nil, nil)
	require.NoError(t, err)

	err = NewStore(reorderBackend{backend}).VerifyChain(ctx, "T-1")
	var integrity *types.ChainIntegrityError
	require.ErrorAs(t, err, &integrity)
}

func TestVerifyChain_EmptyTrip(t *testing.T) {
	store := NewStore(storage.NewMemoryStore())
	assert.NoError(t, store.VerifyChain(context.Background(), "T-none"))
}

func TestAppend_RefusesToExtendCorruptTip(t *testing.T) {
	backend := storage.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, backend.Create(ctx, "T-1", FormatKey(epoch), []byte(`not json`)))

	_, err := NewStore(backend).Append(ctx, "T-1", "v1", nil, nil)
	var integrity *types.ChainIntegrityError
	require.ErrorAs(t, err, &integrity)
}

func TestLatest(t *testing.T) {
	store := NewStore(storage.NewMemoryStore())
	ctx := context.Background()

	latest, err := store.Latest(ctx, "T-1")
	require.NoError(t, err)
	assert.Nil(t, latest)

	_, err = store.Append(ctx, "T-1", "v1", nil, nil)
	require.NoError(t, err)
	want, err := store.Append(ctx, "T-1", "v2", nil, nil)
	require.NoError(t, err)

	latest, err = store.Latest(ctx, "T-1")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, want.ChainHash, latest.ChainHash)
	assert.Equal(t, "v2", latest.PolicyVersion)
}
