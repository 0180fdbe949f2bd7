package wal

import (
	"io"
	"path/filepath"
	"time"
)

// Stats represents journal statistics
type Stats struct {
	// File statistics
	TotalFiles      int       `json:"total_files"`
	TotalSizeBytes  int64     `json:"total_size_bytes"`
	OldestFile      time.Time `json:"oldest_file"`
	NewestFile      time.Time `json:"newest_file"`
	CurrentFileSize int64     `json:"current_file_size,omitempty"`

	// Sequence statistics
	SequenceCount int64 `json:"sequence_count"`
	FirstSequence int64 `json:"first_sequence"`
	LastSequence  int64 `json:"last_sequence"`

	// Entry breakdown
	EntriesPerFile map[string]int    `json:"entries_per_file"`
	EntriesByType  map[EntryType]int `json:"entries_by_type"`
}

// GetStats returns current WAL statistics
func (w *WAL) GetStats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()

	stats := collectDirStats(w.listWALFiles())
	stats.LastSequence = w.sequence
	stats.CurrentFileSize = w.getCurrentFileSize()
	stats.SequenceCount = sequenceCount(stats.FirstSequence, stats.LastSequence)
	return stats
}

// GetStatsFromDir returns statistics for a WAL directory (no active WAL needed)
func GetStatsFromDir(dir string, config Config) Stats {
	files := findAllWALFiles(dir, config.FilePrefix)
	stats := collectDirStats(files)
	stats.LastSequence = findLastSequenceInFiles(files)
	stats.SequenceCount = sequenceCount(stats.FirstSequence, stats.LastSequence)
	return stats
}

func collectDirStats(files []string) Stats {
	stats := Stats{
		TotalFiles:     len(files),
		EntriesPerFile: make(map[string]int),
		EntriesByType:  make(map[EntryType]int),
	}
	if len(files) == 0 {
		return stats
	}

	stats.TotalSizeBytes = calculateTotalSize(files)
	stats.OldestFile, stats.NewestFile = findTimeRange(files)
	stats.FirstSequence = findFirstSequenceInFiles(files)

	for _, file := range files {
		count := 0
		forEachEntry(file, func(e *Entry) {
			count++
			stats.EntriesByType[e.Type]++
		})
		stats.EntriesPerFile[filepath.Base(file)] = count
	}
	return stats
}

func sequenceCount(first, last int64) int64 {
	if first == 0 || last < first {
		return 0
	}
	return last - first + 1
}

// getCurrentFileSize returns size of current WAL file
func (w *WAL) getCurrentFileSize() int64 {
	info, err := w.file.Stat()
	if err != nil {
		return 0
	}
	return info.Size()
}

// forEachEntry calls fn for every readable entry, skipping corrupted lines
func forEachEntry(path string, fn func(*Entry)) {
	reader, err := NewReader(path)
	if err != nil {
		return
	}
	defer func() { _ = reader.Close() }()

	for {
		entry, err := reader.Next()
		if err == io.EOF {
			return
		}
		if err != nil {
			if reader.scanner.Err() != nil {
				return
			}
			continue
		}
		fn(entry)
	}
}

// findFirstSequenceInFiles finds the lowest sequence across files
func findFirstSequenceInFiles(files []string) int64 {
	var first int64
	for _, file := range files {
		forEachEntry(file, func(e *Entry) {
			if first == 0 || e.Sequence < first {
				first = e.Sequence
			}
		})
		if first != 0 {
			return first
		}
	}
	return first
}

// findLastSequenceInFiles finds highest sequence across files
func findLastSequenceInFiles(files []string) int64 {
	maxSeq := int64(0)
	for _, file := range files {
		forEachEntry(file, func(e *Entry) {
			if e.Sequence > maxSeq {
				maxSeq = e.Sequence
			}
		})
	}
	return maxSeq
}

// HealthStatus represents WAL health
type HealthStatus struct {
	Healthy          bool          `json:"healthy"`
	DiskUsagePercent float64       `json:"disk_usage_percent"`
	OldestFileAge    time.Duration `json:"oldest_file_age"`
	NeedsRotation    bool          `json:"needs_rotation"`
	NeedsCleanup     bool          `json:"needs_cleanup"`
	Issues           []string      `json:"issues"`
}

// GetHealth returns WAL health status
func (w *WAL) GetHealth() HealthStatus {
	w.mu.Lock()
	defer w.mu.Unlock()

	health := HealthStatus{Issues: []string{}}

	w.checkDiskUsage(&health)
	w.checkFileAge(&health)
	if w.shouldRotate() {
		health.NeedsRotation = true
		health.Issues = append(health.Issues, "file rotation needed")
	}

	health.Healthy = len(health.Issues) == 0
	return health
}

// checkDiskUsage checks current file size against the rotation limit
func (w *WAL) checkDiskUsage(health *HealthStatus) {
	if w.config.MaxFileSize <= 0 {
		return
	}
	size := w.getCurrentFileSize()
	health.DiskUsagePercent = float64(size) / float64(w.config.MaxFileSize) * 100

	if health.DiskUsagePercent > 90 {
		health.Issues = append(health.Issues, "current file >90% of max size")
	}
}

// checkFileAge checks oldest file age
func (w *WAL) checkFileAge(health *HealthStatus) {
	files := w.listWALFiles()
	if len(files) == 0 {
		return
	}

	oldest, _ := findTimeRange(files)
	health.OldestFileAge = time.Since(oldest)

	retention := time.Duration(w.config.RetentionDays) * 24 * time.Hour
	if health.OldestFileAge > retention {
		health.NeedsCleanup = true
		health.Issues = append(health.Issues, "old files exceed retention period")
	}
}
