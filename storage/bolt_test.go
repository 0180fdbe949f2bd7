package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBolt(t *testing.T) (*BoltStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data", "travelgate.db")
	store, err := NewBoltStore(path)
	require.NoError(t, err)
	return store, path
}

func TestBoltStore_Contract(t *testing.T) {
	store, _ := newTestBolt(t)
	defer func() { _ = store.Close() }()

	runBackendContract(t, store)
}

func TestBoltStore_PersistsAcrossReopen(t *testing.T) {
	store, path := newTestBolt(t)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, "T-1", "k1", []byte(`{"n":1}`)))
	require.NoError(t, store.Create(ctx, "T-1", "k2", []byte(`{"n":2}`)))
	require.NoError(t, store.Close())

	reopened, err := NewBoltStore(path)
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	records, err := reopened.List(ctx, "T-1")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "k1", records[0].Key)

	err = reopened.Create(ctx, "T-1", "k2", []byte(`{}`))
	assert.ErrorIs(t, err, ErrKeyExists)
}

func TestBoltStore_Stats(t *testing.T) {
	store, _ := newTestBolt(t)
	defer func() { _ = store.Close() }()
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, "T-1", "k1", []byte(`{}`)))
	require.NoError(t, store.Create(ctx, "T-1", "k2", []byte(`{}`)))
	require.NoError(t, store.Create(ctx, "T-2", "k1", []byte(`{}`)))
	_ = store.Create(ctx, "T-2", "k1", []byte(`{}`)) // refused, not counted

	trips, records, size := store.Stats()
	assert.Equal(t, 2, trips)
	assert.Equal(t, int64(3), records)
	assert.Positive(t, size)
}
