package wal

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// CleanupRetained removes expired files written before the current one.
// The router checkpoints every request into the current file first, so
// older files are audit history only.
func (w *WAL) CleanupRetained() (CleanupStats, error) {
	w.mu.Lock()
	current := w.file.Name()
	w.mu.Unlock()

	return cleanupFiles(listOldWALFiles(w.dir, w.config, current))
}

// listOldWALFiles finds WAL files older than retention period, never
// including keep
func listOldWALFiles(dir string, config Config, keep string) []string {
	cutoff := calculateCutoffTime(config.RetentionDays)
	var old []string
	for _, file := range findAllWALFiles(dir, config.FilePrefix) {
		if file == keep {
			continue
		}
		if isOlderThan(file, cutoff) {
			old = append(old, file)
		}
	}
	return old
}

// calculateCutoffTime returns the time before which files should be removed
func calculateCutoffTime(retentionDays int) time.Time {
	return time.Now().AddDate(0, 0, -retentionDays)
}

// findAllWALFiles returns all WAL files in directory, sorted by name
func findAllWALFiles(dir, prefix string) []string {
	files, err := filepath.Glob(filepath.Join(dir, prefix+"-*.wal"))
	if err != nil {
		return nil
	}
	return files
}

// isOlderThan checks if file modification time is before cutoff
func isOlderThan(path string, cutoff time.Time) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.ModTime().Before(cutoff)
}

// removeFiles deletes all files in the list
func removeFiles(files []string) error {
	for _, file := range files {
		if err := os.Remove(file); err != nil {
			return fmt.Errorf("failed to remove %s: %w", file, err)
		}
	}
	return nil
}

// CleanupStats tracks cleanup operation results
type CleanupStats struct {
	FilesRemoved  int       `json:"files_removed"`
	BytesFreed    int64     `json:"bytes_freed"`
	OldestRemoved time.Time `json:"oldest_removed"`
	NewestRemoved time.Time `json:"newest_removed"`
}

// CleanupWithStats removes files past retention from a directory no journal
// is writing to. It holds the directory lock while it runs, so it fails with
// ErrLocked next to an open WAL; a live journal uses CleanupRetained.
func CleanupWithStats(dir string, config Config) (CleanupStats, error) {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return CleanupStats{}, nil
	}
	lock, err := lockDir(dir, config)
	if err != nil {
		return CleanupStats{}, err
	}
	defer func() { _ = lock.Close() }()

	return cleanupFiles(listOldWALFiles(dir, config, ""))
}

func cleanupFiles(files []string) (CleanupStats, error) {
	stats := CleanupStats{}
	if len(files) == 0 {
		return stats, nil
	}

	stats.FilesRemoved = len(files)
	stats.BytesFreed = calculateTotalSize(files)
	stats.OldestRemoved, stats.NewestRemoved = findTimeRange(files)

	err := removeFiles(files)
	return stats, err
}

// calculateTotalSize sums file sizes
func calculateTotalSize(files []string) int64 {
	var total int64
	for _, file := range files {
		info, err := os.Stat(file)
		if err == nil {
			total += info.Size()
		}
	}
	return total
}

// findTimeRange returns oldest and newest file modification times
func findTimeRange(files []string) (oldest, newest time.Time) {
	for _, file := range files {
		info, err := os.Stat(file)
		if err != nil {
			continue
		}

		modTime := info.ModTime()
		if oldest.IsZero() || modTime.Before(oldest) {
			oldest = modTime
		}
		if modTime.After(newest) {
			newest = modTime
		}
	}
	return oldest, newest
}
