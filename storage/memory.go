package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/btree"
)

type memoryEntry struct {
	tripID string
	key    string
	data   []byte
}

func memoryLess(a, b *memoryEntry) bool {
	if a.tripID != b.tripID {
		return a.tripID < b.tripID
	}
	return a.key < b.key
}

// MemoryStore is an in-process backend ordered by (trip, key). Used by
// tests and the CLI's memory backend.
type MemoryStore struct {
	mu    sync.RWMutex
	index *btree.BTreeG[*memoryEntry]
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		index: btree.NewG[*memoryEntry](32, memoryLess),
	}
}

// Name identifies the backend in logs and metrics
func (m *MemoryStore) Name() string {
	return "memory"
}

// Create stores a copy of data under key
func (m *MemoryStore) Create(ctx context.Context, tripID, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	entry := &memoryEntry{tripID: tripID, key: key}
	if m.index.Has(entry) {
		return fmt.Errorf("%s/%s: %w", tripID, key, ErrKeyExists)
	}

	entry.data = append([]byte(nil), data...)
	m.index.ReplaceOrInsert(entry)
	return nil
}

// List returns the trip's records in key order
func (m *MemoryStore) List(ctx context.Context, tripID string) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var records []Record
	m.index.AscendGreaterOrEqual(&memoryEntry{tripID: tripID}, func(e *memoryEntry) bool {
		if e.tripID != tripID {
			return false
		}
		records = append(records, Record{Key: e.key, Data: append([]byte(nil), e.data...)})
		return true
	})
	return records, nil
}

// Trips returns every trip id with stored snapshots
func (m *MemoryStore) Trips(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var trips []string
	m.index.Ascend(func(e *memoryEntry) bool {
		if len(trips) == 0 || trips[len(trips)-1] != e.tripID {
			trips = append(trips, e.tripID)
		}
		return true
	})
	return trips, nil
}
