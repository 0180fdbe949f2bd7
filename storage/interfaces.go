// Package storage holds the snapshot storage backends. Every backend offers
// the same two operations: a create-only keyed write and a listing of one
// trip's records ordered by key.
package storage

import (
	"context"
	"errors"
)

// ErrKeyExists is returned when a create would overwrite a stored record
var ErrKeyExists = errors.New("storage: key already exists")

// Record is one stored payload
type Record struct {
	Key  string
	Data []byte
}

// SnapshotWriter stores payloads. Create never overwrites: an existing key
// yields ErrKeyExists.
type SnapshotWriter interface {
	Create(ctx context.Context, tripID, key string, data []byte) error
}

// SnapshotReader lists a trip's payloads in ascending key order
type SnapshotReader interface {
	List(ctx context.Context, tripID string) ([]Record, error)
}

// Backend is the complete storage contract used by the snapshot store
type Backend interface {
	SnapshotWriter
	SnapshotReader
	Name() string
}

// TripLister enumerates every trip holding at least one record
type TripLister interface {
	Trips(ctx context.Context) ([]string, error)
}

// Lifecycle manages storage lifecycle
type Lifecycle interface {
	Close() error
}
