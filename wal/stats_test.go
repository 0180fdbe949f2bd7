package wal

import (
	"os"
	"testing"
)

func TestGetStats_EmptyWAL(t *testing.T) {
	dir := t.TempDir()

	w, err := Open(dir)
	if err != nil {
		t.Fatalf("Failed to open WAL: %v", err)
	}
	defer func() { _ = w.Close() }()

	stats := w.GetStats()

	if stats.TotalFiles != 1 {
		t.Errorf("Expected 1 file, got %d", stats.TotalFiles)
	}
	if stats.LastSequence != 0 {
		t.Errorf("Expected sequence 0, got %d", stats.LastSequence)
	}
	if stats.SequenceCount != 0 {
		t.Errorf("Expected sequence count 0, got %d", stats.SequenceCount)
	}
}

func TestGetStats_WithEntries(t *testing.T) {
	dir := t.TempDir()

	w, err := Open(dir)
	if err != nil {
		t.Fatalf("Failed to open WAL: %v", err)
	}
	defer func() { _ = w.Close() }()

	for i := 0; i < 10; i++ {
		entryType := EntryCreated
		if i%2 == 1 {
			entryType = EntryEscalated
		}
		if err := w.Append(entryType, "req", nil); err != nil {
			t.Fatalf("Failed to append entry %d: %v", i, err)
		}
	}

	stats := w.GetStats()

	if stats.LastSequence != 10 {
		t.Errorf("Expected sequence 10, got %d", stats.LastSequence)
	}
	if stats.SequenceCount != 10 {
		t.Errorf("Expected sequence count 10, got %d", stats.SequenceCount)
	}
	if stats.TotalSizeBytes == 0 {
		t.Error("Expected non-zero total size")
	}
	if stats.EntriesByType[EntryCreated] != 5 || stats.EntriesByType[EntryEscalated] != 5 {
		t.Errorf("Unexpected entry breakdown: %v", stats.EntriesByType)
	}
}

func TestGetStats_MultipleFiles(t *testing.T) {
	dir := t.TempDir()

	config := DefaultConfig()
	config.MaxFileSize = 200

	w, err := OpenWithConfig(dir, config)
	if err != nil {
		t.Fatalf("Failed to open WAL: %v", err)
	}
	defer func() { _ = w.Close() }()

	for i := 0; i < 10; i++ {
		if err := w.Append(EntryCreated, "req", make([]byte, 80)); err != nil {
			t.Fatalf("Failed to append entry %d: %v", i, err)
		}
	}

	stats := w.GetStats()

	if stats.TotalFiles < 2 {
		t.Errorf("Expected rotation, got %d files", stats.TotalFiles)
	}
	if stats.FirstSequence != 1 {
		t.Errorf("Expected first sequence 1, got %d", stats.FirstSequence)
	}
	if stats.LastSequence != 10 {
		t.Errorf("Expected last sequence 10, got %d", stats.LastSequence)
	}
}

func TestGetStatsFromDir(t *testing.T) {
	dir := t.TempDir()

	w, err := Open(dir)
	if err != nil {
		t.Fatalf("Failed to open WAL: %v", err)
	}
	for i := 0; i < 5; i++ {
		if err := w.Append(EntryCreated, "req", nil); err != nil {
			t.Fatalf("Failed to append entry %d: %v", i, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Failed to close WAL: %v", err)
	}

	stats := GetStatsFromDir(dir, DefaultConfig())

	if stats.TotalFiles != 1 {
		t.Errorf("Expected 1 file, got %d", stats.TotalFiles)
	}
	if stats.FirstSequence != 1 {
		t.Errorf("Expected first sequence 1, got %d", stats.FirstSequence)
	}
	if stats.LastSequence != 5 {
		t.Errorf("Expected last sequence 5, got %d", stats.LastSequence)
	}
	if stats.SequenceCount != 5 {
		t.Errorf("Expected sequence count 5, got %d", stats.SequenceCount)
	}
}

func TestGetStats_SkipsCorruptedLines(t *testing.T) {
	dir := t.TempDir()

	w, _ := Open(dir)
	_ = w.Append(EntryCreated, "req-1", nil)
	path := w.CurrentFile()
	_ = w.Close()

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		t.Fatalf("Failed to open journal: %v", err)
	}
	_, _ = f.WriteString("{not json\n")
	_ = f.Close()

	stats := GetStatsFromDir(dir, DefaultConfig())
	if stats.LastSequence != 1 {
		t.Errorf("Expected last sequence 1, got %d", stats.LastSequence)
	}
}

func TestGetHealth(t *testing.T) {
	dir := t.TempDir()

	config := DefaultConfig()
	config.MaxFileSize = 100

	w, err := OpenWithConfig(dir, config)
	if err != nil {
		t.Fatalf("Failed to open WAL: %v", err)
	}
	defer func() { _ = w.Close() }()

	if health := w.GetHealth(); !health.Healthy {
		t.Errorf("Fresh journal should be healthy, issues: %v", health.Issues)
	}

	_ = w.Append(EntryCreated, "req", requestState{Justification: "long enough to fill the tiny file limit"})

	health := w.GetHealth()
	if health.Healthy {
		t.Error("Expected unhealthy journal over its size limit")
	}
	if !health.NeedsRotation {
		t.Error("Expected NeedsRotation")
	}
}
