//go:build unix

package wal

import (
	"errors"
	"testing"
)

func TestOpen_SecondWriterIsLockedOut(t *testing.T) {
	dir := t.TempDir()

	w1, err := Open(dir)
	if err != nil {
		t.Fatalf("Failed to open WAL: %v", err)
	}

	if _, err := Open(dir); !errors.Is(err, ErrLocked) {
		t.Fatalf("Expected ErrLocked for a second writer, got %v", err)
	}
	if _, err := CleanupWithStats(dir, DefaultConfig()); !errors.Is(err, ErrLocked) {
		t.Errorf("Expected ErrLocked for cleanup next to a live writer, got %v", err)
	}

	if err := w1.Close(); err != nil {
		t.Fatalf("Failed to close WAL: %v", err)
	}

	w2, err := Open(dir)
	if err != nil {
		t.Fatalf("Reopen after close failed: %v", err)
	}
	_ = w2.Close()
}

func TestOpen_OtherPrefixIsIndependent(t *testing.T) {
	dir := t.TempDir()

	w1, err := Open(dir)
	if err != nil {
		t.Fatalf("Failed to open WAL: %v", err)
	}
	defer func() { _ = w1.Close() }()

	config := DefaultConfig()
	config.FilePrefix = "other"
	w2, err := OpenWithConfig(dir, config)
	if err != nil {
		t.Fatalf("Journal with another prefix should open: %v", err)
	}
	_ = w2.Close()
}
