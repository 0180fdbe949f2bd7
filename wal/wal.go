// Package wal is the write-ahead journal behind the exception router.
// Entries are JSON lines in size-rotated files; sequence numbers continue
// across files and restarts.
package wal

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// ErrLocked is returned when another journal already writes to the directory
var ErrLocked = errors.New("journal directory is locked by another writer")

// EntryType defines the type of WAL entry
type EntryType string

const (
	EntryCreated    EntryType = "created"
	EntryEscalated  EntryType = "escalated"
	EntryDecided    EntryType = "decided"
	EntryCheckpoint EntryType = "checkpoint"
	EntryFailed     EntryType = "failed"
)

// Entry represents a single WAL entry
type Entry struct {
	Timestamp time.Time       `json:"timestamp"`
	Sequence  int64           `json:"sequence"`
	Type      EntryType       `json:"type"`
	RequestID string          `json:"request_id,omitempty"`
	Data      json.RawMessage `json:"data"`
	Error     string          `json:"error,omitempty"`
}

// Config controls file naming, rotation and retention
type Config struct {
	FilePrefix    string
	MaxFileSize   int64
	RetentionDays int
}

// DefaultConfig returns the journal defaults
func DefaultConfig() Config {
	return Config{
		FilePrefix:    "travelgate",
		MaxFileSize:   64 * 1024 * 1024,
		RetentionDays: 30,
	}
}

// WAL provides write-ahead logging for audit and recovery
type WAL struct {
	mu       sync.Mutex
	file     *os.File
	writer   *bufio.Writer
	lock     *os.File
	sequence int64
	dir      string
	config   Config
}

// Open creates or opens a WAL in the specified directory
func Open(dir string) (*WAL, error) {
	return OpenWithConfig(dir, DefaultConfig())
}

// OpenWithConfig opens a WAL with explicit rotation settings. Only one WAL
// may be open on a directory; a second one fails with ErrLocked.
func OpenWithConfig(dir string, config Config) (*WAL, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create WAL directory: %w", err)
	}

	lock, err := lockDir(dir, config)
	if err != nil {
		return nil, err
	}

	w := &WAL{dir: dir, config: config, lock: lock}

	// Continue the sequence from existing files
	w.loadSequence()

	if err := w.openFile(); err != nil {
		_ = lock.Close()
		return nil, err
	}
	return w, nil
}

// lockDir takes the directory's writer lock
func lockDir(dir string, config Config) (*os.File, error) {
	path := filepath.Join(dir, config.FilePrefix+".lock")
	f, err := os.OpenFile(filepath.Clean(path), os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open WAL lock: %w", err)
	}
	if err := flock(f); err != nil {
		_ = f.Close()
		if errors.Is(err, ErrLocked) {
			return nil, fmt.Errorf("%s: %w", dir, ErrLocked)
		}
		return nil, fmt.Errorf("failed to lock WAL directory: %w", err)
	}
	return f, nil
}

// openFile starts a new journal file named after the next sequence so
// names sort in write order
func (w *WAL) openFile() error {
	filename := fmt.Sprintf("%s-%s-%012d.wal", w.config.FilePrefix, time.Now().UTC().Format("20060102-150405"), w.sequence+1)
	path := filepath.Join(w.dir, filename)

	file, err := os.OpenFile(filepath.Clean(path), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("failed to open WAL file: %w", err)
	}

	w.file = file
	w.writer = bufio.NewWriter(file)
	return nil
}

// Close flushes and closes the WAL and releases the directory lock
func (w *WAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.writer.Flush(); err != nil {
		_ = w.file.Close()
		_ = w.lock.Close()
		return err
	}
	return errors.Join(w.file.Close(), w.lock.Close())
}

// Append adds an entry to the WAL
func (w *WAL) Append(entryType EntryType, requestID string, data interface{}) error {
	return w.append(entryType, requestID, data, nil)
}

// AppendError adds an error entry to the WAL
func (w *WAL) AppendError(entryType EntryType, requestID string, data interface{}, errToLog error) error {
	return w.append(entryType, requestID, data, errToLog)
}

func (w *WAL) append(entryType EntryType, requestID string, data interface{}, errToLog error) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}

	if w.shouldRotate() {
		if err := w.rotate(); err != nil {
			return err
		}
	}

	entry := Entry{
		Timestamp: time.Now().UTC(),
		Sequence:  w.sequence + 1,
		Type:      entryType,
		RequestID: requestID,
		Data:      jsonData,
	}
	if errToLog != nil {
		entry.Error = errToLog.Error()
	}

	if err := w.writeEntry(entry); err != nil {
		return err
	}
	w.sequence++
	return nil
}

// Rotate closes the current file and starts a new one
func (w *WAL) Rotate() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rotate()
}

func (w *WAL) rotate() error {
	if err := w.writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush before rotation: %w", err)
	}
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("failed to close WAL file: %w", err)
	}
	return w.openFile()
}

// shouldRotate reports whether the current file reached MaxFileSize
func (w *WAL) shouldRotate() bool {
	if w.config.MaxFileSize <= 0 {
		return false
	}
	return w.getCurrentFileSize() >= w.config.MaxFileSize
}

// CurrentFile returns the path of the file being written
func (w *WAL) CurrentFile() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Name()
}

// writeEntry writes a single entry to the WAL
func (w *WAL) writeEntry(entry Entry) error {
	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal entry: %w", err)
	}

	if _, err := w.writer.Write(line); err != nil {
		return fmt.Errorf("failed to write entry: %w", err)
	}

	if _, err := w.writer.WriteString("\n"); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	// Flush immediately for durability
	if err := w.writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush: %w", err)
	}

	return w.file.Sync()
}

// loadSequence finds the last sequence number across existing files
func (w *WAL) loadSequence() {
	w.sequence = findLastSequenceInFiles(w.listWALFiles())
}

// listWALFiles returns the journal files in write order
func (w *WAL) listWALFiles() []string {
	return findAllWALFiles(w.dir, w.config.FilePrefix)
}

// Reader provides WAL replay functionality
type Reader struct {
	scanner *bufio.Scanner
	file    *os.File
}

// NewReader creates a WAL reader for the specified file
func NewReader(path string) (*Reader, error) {
	file, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open WAL file: %w", err)
	}

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	return &Reader{
		scanner: scanner,
		file:    file,
	}, nil
}

// Next reads the next entry from the WAL
func (r *Reader) Next() (*Entry, error) {
	if !r.scanner.Scan() {
		if err := r.scanner.Err(); err != nil {
			return nil, err
		}
		return nil, io.EOF
	}

	var entry Entry
	if err := json.Unmarshal(r.scanner.Bytes(), &entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal entry: %w", err)
	}

	return &entry, nil
}

// Close closes the reader
func (r *Reader) Close() error {
	return r.file.Close()
}

// Replay feeds every entry written after since to handler, in sequence
// order across all files of the default prefix
func Replay(dir string, since time.Time, handler func(*Entry) error) error {
	return ReplayWithConfig(dir, DefaultConfig(), since, handler)
}

// ReplayWithConfig is Replay for a custom file prefix
func ReplayWithConfig(dir string, config Config, since time.Time, handler func(*Entry) error) error {
	files := findAllWALFiles(dir, config.FilePrefix)

	var entries []*Entry
	for _, file := range files {
		fileEntries, err := readFile(file)
		if err != nil {
			return err
		}
		entries = append(entries, fileEntries...)
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Sequence < entries[j].Sequence })

	for _, entry := range entries {
		if !entry.Timestamp.After(since) {
			continue
		}
		if err := handler(entry); err != nil {
			return err
		}
	}
	return nil
}

func readFile(path string) ([]*Entry, error) {
	reader, err := NewReader(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = reader.Close() }()

	var entries []*Entry
	for {
		entry, err := reader.Next()
		if err == io.EOF {
			return entries, nil
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
		entries = append(entries, entry)
	}
}
