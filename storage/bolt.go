package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.etcd.io/bbolt"
)

// Bucket names in bbolt
var (
	bucketSnapshots = []byte("snapshots")
	bucketMeta      = []byte("meta")
)

var keyRecordCount = []byte("record_count")

// BoltStore keeps snapshots in a bbolt file, one nested bucket per trip
type BoltStore struct {
	mu sync.RWMutex

	db   *bbolt.DB
	path string
}

// NewBoltStore opens (or creates) the database at path
func NewBoltStore(path string) (*BoltStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create storage directory: %w", err)
		}
	}

	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, bucket := range [][]byte{bucketSnapshots, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &BoltStore{db: db, path: path}, nil
}

// Name identifies the backend in logs and metrics
func (s *BoltStore) Name() string {
	return "bolt"
}

// Close closes the storage
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// Create stores data under key in the trip's bucket
func (s *BoltStore) Create(ctx context.Context, tripID, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.db.Update(func(tx *bbolt.Tx) error {
		trip, err := tx.Bucket(bucketSnapshots).CreateBucketIfNotExists([]byte(tripID))
		if err != nil {
			return fmt.Errorf("open trip bucket %s: %w", tripID, err)
		}

		if trip.Get([]byte(key)) != nil {
			return fmt.Errorf("%s/%s: %w", tripID, key, ErrKeyExists)
		}
		if err := trip.Put([]byte(key), data); err != nil {
			return err
		}

		meta := tx.Bucket(bucketMeta)
		count := bytesToInt64(meta.Get(keyRecordCount)) + 1
		return meta.Put(keyRecordCount, int64ToBytes(count))
	})
}

// List returns the trip's records in key order
func (s *BoltStore) List(ctx context.Context, tripID string) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var records []Record
	err := s.db.View(func(tx *bbolt.Tx) error {
		trip := tx.Bucket(bucketSnapshots).Bucket([]byte(tripID))
		if trip == nil {
			return nil
		}

		c := trip.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			// bbolt slices are only valid inside the transaction
			data := make([]byte, len(v))
			copy(data, v)
			records = append(records, Record{Key: string(k), Data: data})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return records, nil
}

// Trips returns every trip id with stored snapshots
func (s *BoltStore) Trips(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var trips []string
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketSnapshots).ForEachBucket(func(k []byte) error {
			trips = append(trips, string(k))
			return nil
		})
	})
	return trips, err
}

// Stats reports trip count, record count and database size
func (s *BoltStore) Stats() (tripCount int, recordCount int64, dbSizeBytes int64) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_ = s.db.View(func(tx *bbolt.Tx) error {
		_ = tx.Bucket(bucketSnapshots).ForEachBucket(func([]byte) error {
			tripCount++
			return nil
		})
		recordCount = bytesToInt64(tx.Bucket(bucketMeta).Get(keyRecordCount))
		dbSizeBytes = tx.Size()
		return nil
	})

	return tripCount, recordCount, dbSizeBytes
}

func int64ToBytes(n int64) []byte {
	return []byte(fmt.Sprintf("%d", n))
}

func bytesToInt64(b []byte) int64 {
	var n int64
	if b != nil {
		_, _ = fmt.Sscanf(string(b), "%d", &n)
	}
	return n
}
