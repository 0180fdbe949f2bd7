// Package snapshot is the append-only, hash-chained audit store for
// validation runs. Each trip has one chain; every snapshot commits to the
// one before it, so any edit to stored bytes breaks verification.
package snapshot

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/yairfalse/travelgate/canonical"
	"github.com/yairfalse/travelgate/types"
)

// MaxPayloadBytes is the largest serialized snapshot accepted
const MaxPayloadBytes = 10240

// keyLayout is fixed width so lexical key order equals time order
const keyLayout = "2006-01-02T15:04:05.000000000Z"

// GenesisHash is the previous_hash of the first snapshot in a chain
var GenesisHash = strings.Repeat("0", 64)

// Record field names. The first five are covered by snapshot_hash.
const (
	fieldTripID        = "trip_id"
	fieldTimestamp     = "timestamp"
	fieldPolicyVersion = "policy_version"
	fieldInputData     = "input_data"
	fieldResults       = "results"
	fieldSnapshotHash  = "snapshot_hash"
	fieldPreviousHash  = "previous_hash"
	fieldChainHash     = "chain_hash"
)

var hashedFields = []string{fieldTripID, fieldTimestamp, fieldPolicyVersion, fieldInputData, fieldResults}

// Snapshot is one immutable validation record
type Snapshot struct {
	TripID        string               `json:"trip_id"`
	Timestamp     time.Time            `json:"timestamp"`
	PolicyVersion string               `json:"policy_version"`
	InputData     json.RawMessage      `json:"input_data"`
	Results       []types.PolicyResult `json:"results"`
	SnapshotHash  string               `json:"snapshot_hash"`
	PreviousHash  string               `json:"previous_hash"`
	ChainHash     string               `json:"chain_hash"`

	// Key is the storage key; it is not part of the record
	Key string `json:"-"`
}

// FormatKey renders a timestamp as a storage key
func FormatKey(ts time.Time) string {
	return ts.UTC().Format(keyLayout)
}

// ChainHash links a snapshot to its predecessor
func ChainHash(previousHash, snapshotHash string) string {
	return canonical.Hash([]byte(previousHash + snapshotHash))
}

// hashRecord computes snapshot_hash over the covered fields of a decoded
// record
func hashRecord(record map[string]any) (string, error) {
	body := make(map[string]any, len(hashedFields))
	for _, f := range hashedFields {
		body[f] = record[f]
	}
	return canonical.HashValue(body)
}

// decodeSnapshot turns stored bytes into a Snapshot
func decodeSnapshot(key string, data []byte) (Snapshot, error) {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, err
	}
	snap.Key = key
	return snap, nil
}
