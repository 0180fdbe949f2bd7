package wal

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func agedFile(t *testing.T, dir, name string, age time.Duration) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("test data"), 0600); err != nil {
		t.Fatalf("Failed to write %s: %v", name, err)
	}
	mod := time.Now().Add(-age)
	_ = os.Chtimes(path, mod, mod)
	return path
}

const day = 24 * time.Hour

func TestCleanupWithStats_MissingDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "absent")
	stats, err := CleanupWithStats(dir, DefaultConfig())
	if err != nil {
		t.Errorf("CleanupWithStats failed on missing directory: %v", err)
	}
	if stats.FilesRemoved != 0 {
		t.Errorf("Expected nothing removed, got %d", stats.FilesRemoved)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Error("Cleanup should not create the directory")
	}
}

func TestCleanupWithStats_AllFilesNew(t *testing.T) {
	dir := t.TempDir()

	w, _ := Open(dir)
	_ = w.Append(EntryCreated, "r1", nil)
	_ = w.Close()

	config := DefaultConfig()
	config.RetentionDays = 30

	if _, err := CleanupWithStats(dir, config); err != nil {
		t.Errorf("CleanupWithStats failed: %v", err)
	}
	if files := journalFiles(t, dir); len(files) != 1 {
		t.Errorf("Expected 1 file to remain, got %d", len(files))
	}
}

func TestCleanupWithStats_MixedAges(t *testing.T) {
	dir := t.TempDir()

	oldFile := agedFile(t, dir, "travelgate-20200101-120000-000000000001.wal", 60*day)
	recentFile := agedFile(t, dir, "travelgate-20240101-120000-000000000050.wal", 10*day)
	other := agedFile(t, dir, "other-20200101-120000-000000000001.wal", 60*day)

	config := DefaultConfig()
	config.RetentionDays = 30

	if _, err := CleanupWithStats(dir, config); err != nil {
		t.Errorf("CleanupWithStats failed: %v", err)
	}

	if _, err := os.Stat(recentFile); os.IsNotExist(err) {
		t.Error("Recent file was incorrectly removed")
	}
	if _, err := os.Stat(oldFile); !os.IsNotExist(err) {
		t.Error("Old file was not removed")
	}
	if _, err := os.Stat(other); os.IsNotExist(err) {
		t.Error("File with another prefix was removed")
	}
}

func TestCleanupWithStats_ReportsCorrectly(t *testing.T) {
	dir := t.TempDir()

	for _, name := range []string{
		"travelgate-20200101-120000-000000000001.wal",
		"travelgate-20200102-120000-000000000010.wal",
		"travelgate-20200103-120000-000000000020.wal",
	} {
		agedFile(t, dir, name, 60*day)
	}

	config := DefaultConfig()
	config.RetentionDays = 30

	stats, err := CleanupWithStats(dir, config)
	if err != nil {
		t.Errorf("CleanupWithStats failed: %v", err)
	}
	if stats.FilesRemoved != 3 {
		t.Errorf("Expected 3 files removed, got %d", stats.FilesRemoved)
	}
	if stats.BytesFreed != 27 {
		t.Errorf("Expected 27 bytes freed, got %d", stats.BytesFreed)
	}
	if stats.OldestRemoved.IsZero() {
		t.Error("Expected oldest removed time to be set")
	}
}

func TestCleanupWithStats_EmptyDirectory(t *testing.T) {
	stats, err := CleanupWithStats(t.TempDir(), DefaultConfig())
	if err != nil {
		t.Errorf("CleanupWithStats failed: %v", err)
	}
	if stats.FilesRemoved != 0 || stats.BytesFreed != 0 {
		t.Errorf("Expected nothing removed, got %+v", stats)
	}
}

func TestCleanupRetained_KeepsCurrentFile(t *testing.T) {
	dir := t.TempDir()

	config := DefaultConfig()
	config.RetentionDays = 0

	expired := agedFile(t, dir, "travelgate-20200101-120000-000000000001.wal", 60*day)

	w, err := OpenWithConfig(dir, config)
	if err != nil {
		t.Fatalf("Failed to open WAL: %v", err)
	}
	defer func() { _ = w.Close() }()
	_ = w.Append(EntryCheckpoint, "req-1", nil)

	// the live file is older than a zero-day retention too
	past := time.Now().Add(-time.Hour)
	_ = os.Chtimes(w.CurrentFile(), past, past)

	stats, err := w.CleanupRetained()
	if err != nil {
		t.Fatalf("CleanupRetained failed: %v", err)
	}
	if stats.FilesRemoved != 1 {
		t.Errorf("Expected 1 file removed, got %d", stats.FilesRemoved)
	}
	if _, err := os.Stat(expired); !os.IsNotExist(err) {
		t.Error("Expired file was not removed")
	}
	if _, err := os.Stat(w.CurrentFile()); err != nil {
		t.Errorf("Current file was removed: %v", err)
	}
}

func TestCalculateCutoffTime(t *testing.T) {
	now := time.Now()
	cutoff := calculateCutoffTime(30)

	diff := now.Sub(cutoff)
	expected := 30 * day

	// DST shifts can move AddDate by an hour
	if diff < expected-time.Hour-time.Minute || diff > expected+time.Hour+time.Minute {
		t.Errorf("Cutoff time incorrect: got %v, expected ~%v", diff, expected)
	}
}

func TestIsOlderThan(t *testing.T) {
	dir := t.TempDir()
	file := agedFile(t, dir, "test.wal", 10*day)

	if !isOlderThan(file, time.Now().AddDate(0, 0, -5)) {
		t.Error("File should be older than 5 days ago")
	}
	if isOlderThan(file, time.Now().AddDate(0, 0, -20)) {
		t.Error("File should not be older than 20 days ago")
	}
	if isOlderThan(filepath.Join(dir, "missing.wal"), time.Now()) {
		t.Error("Missing file should not count as old")
	}
}
