//go:build !unix

package wal

import "os"

// flock is a no-op where flock(2) is unavailable; a single writer per
// journal directory is then up to the operator.
func flock(_ *os.File) error {
	return nil
}
