package wal

import (
	"testing"
)

func TestLoadSequence_EmptyDirectory(t *testing.T) {
	dir := t.TempDir()

	w, err := Open(dir)
	if err != nil {
		t.Fatalf("Failed to open WAL: %v", err)
	}
	defer func() { _ = w.Close() }()

	if w.sequence != 0 {
		t.Errorf("Empty directory should start at sequence 0, got %d", w.sequence)
	}
}

func TestLoadSequence_ExistingEntries(t *testing.T) {
	dir := t.TempDir()

	w1, err := Open(dir)
	if err != nil {
		t.Fatalf("Failed to open WAL: %v", err)
	}
	_ = w1.Append(EntryCreated, "req-1", nil)
	_ = w1.Append(EntryCreated, "req-2", nil)
	_ = w1.Append(EntryEscalated, "req-1", nil)
	_ = w1.Close()

	// Reopening continues the sequence
	w2, err := Open(dir)
	if err != nil {
		t.Fatalf("Failed to open second WAL: %v", err)
	}
	defer func() { _ = w2.Close() }()

	if w2.sequence != 3 {
		t.Errorf("Expected sequence 3, got %d", w2.sequence)
	}

	_ = w2.Append(EntryDecided, "req-1", nil)
	if w2.sequence != 4 {
		t.Errorf("Expected sequence 4 after append, got %d", w2.sequence)
	}
}

func TestLoadSequence_MultipleFiles(t *testing.T) {
	dir := t.TempDir()

	w1, _ := Open(dir)
	_ = w1.Append(EntryCreated, "r1", nil)
	_ = w1.Append(EntryCreated, "r2", nil)
	_ = w1.Close()

	w2, _ := Open(dir)
	_ = w2.Append(EntryCreated, "r3", nil)
	_ = w2.Append(EntryCreated, "r4", nil)
	_ = w2.Append(EntryCreated, "r5", nil)
	_ = w2.Close()

	w3, err := Open(dir)
	if err != nil {
		t.Fatalf("Failed to open third WAL: %v", err)
	}
	defer func() { _ = w3.Close() }()

	if w3.sequence != 5 {
		t.Errorf("Expected sequence 5, got %d", w3.sequence)
	}
}
