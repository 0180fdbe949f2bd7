package wal

import (
	"testing"
)

func TestFileRotation_SequenceContinuity(t *testing.T) {
	dir := t.TempDir()

	config := DefaultConfig()
	config.MaxFileSize = 500 // small enough to force rotation

	w, err := OpenWithConfig(dir, config)
	if err != nil {
		t.Fatalf("Failed to open WAL: %v", err)
	}
	defer func() { _ = w.Close() }()

	for i := 0; i < 20; i++ {
		_ = w.Append(EntryCreated, "req", requestState{Justification: "some justification"})
	}

	if w.sequence != 20 {
		t.Errorf("Expected sequence 20, got %d", w.sequence)
	}

	files := journalFiles(t, dir)
	if len(files) < 2 {
		t.Fatalf("Expected rotation into several files, got %d", len(files))
	}

	count := 0
	for _, file := range files {
		forEachEntry(file, func(*Entry) { count++ })
	}
	if count != 20 {
		t.Errorf("Expected 20 entries across all files, got %d", count)
	}
}

func TestFileRotation_NoRotationWhenBelowLimit(t *testing.T) {
	dir := t.TempDir()

	config := DefaultConfig()
	config.MaxFileSize = 100 * 1024 * 1024

	w, err := OpenWithConfig(dir, config)
	if err != nil {
		t.Fatalf("Failed to open WAL: %v", err)
	}
	defer func() { _ = w.Close() }()

	for i := 0; i < 10; i++ {
		_ = w.Append(EntryCreated, "req", "data")
	}

	if files := w.listWALFiles(); len(files) != 1 {
		t.Errorf("Expected 1 WAL file (no rotation), got %d", len(files))
	}
}

func TestRotate_StartsNewFile(t *testing.T) {
	dir := t.TempDir()

	w, err := Open(dir)
	if err != nil {
		t.Fatalf("Failed to open WAL: %v", err)
	}
	defer func() { _ = w.Close() }()

	_ = w.Append(EntryCreated, "req-1", nil)
	before := w.CurrentFile()

	if err := w.Rotate(); err != nil {
		t.Fatalf("Rotate failed: %v", err)
	}
	_ = w.Append(EntryCheckpoint, "req-1", nil)

	if w.CurrentFile() == before {
		t.Error("Rotate kept writing to the same file")
	}
	if files := w.listWALFiles(); len(files) != 2 {
		t.Errorf("Expected 2 files after rotation, got %d", len(files))
	}
}
