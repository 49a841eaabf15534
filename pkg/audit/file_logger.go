package audit

import (
	"context"
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

const activeFileName = "audit.log"

// FileLogger appends events as JSON lines to a file, rotating by size
type FileLogger struct {
	basePath string
	maxSize  int64
	maxFiles int

	mu      sync.Mutex
	file    *os.File
	encoder *json.Encoder
	now     func() time.Time
}

// FileLoggerConfig configures the file logger
type FileLoggerConfig struct {
	BasePath string
	MaxSize  int64 // bytes before rotation, default 100MB
	MaxFiles int   // rotated files kept, default 10
}

// NewFileLogger creates a new file-based audit logger
func NewFileLogger(config FileLoggerConfig) (*FileLogger, error) {
	if config.BasePath == "" {
		return nil, fmt.Errorf("audit log directory is required")
	}
	if err := os.MkdirAll(config.BasePath, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create audit log directory: %w", err)
	}

	l := &FileLogger{
		basePath: config.BasePath,
		maxSize:  config.MaxSize,
		maxFiles: config.MaxFiles,
		now:      time.Now,
	}
	if l.maxSize <= 0 {
		l.maxSize = 100 * 1024 * 1024
	}
	if l.maxFiles <= 0 {
		l.maxFiles = 10
	}

	if err := l.open(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *FileLogger) path() string {
	return filepath.Join(l.basePath, activeFileName)
}

func (l *FileLogger) open() error {
	file, err := os.OpenFile(l.path(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return fmt.Errorf("failed to open audit log file: %w", err)
	}
	l.file = file
	l.encoder = json.NewEncoder(file)
	return nil
}

// rotate renames the active file and trims old rotations. Caller holds mu.
func (l *FileLogger) rotate() error {
	if l.file != nil {
		if err := l.file.Close(); err != nil {
			return err
		}
		l.file = nil
	}

	rotated := filepath.Join(l.basePath, fmt.Sprintf("audit-%s.log", l.now().UTC().Format("20060102T150405.000000000")))
	if err := os.Rename(l.path(), rotated); err != nil {
		return fmt.Errorf("failed to rename log file: %w", err)
	}

	files, err := filepath.Glob(filepath.Join(l.basePath, "audit-*.log"))
	if err != nil {
		return err
	}
	// timestamps in the names sort chronologically
	sort.Strings(files)
	for len(files) > l.maxFiles {
		if err := os.Remove(files[0]); err != nil {
			return fmt.Errorf("failed to remove old audit log: %w", err)
		}
		files = files[1:]
	}

	return l.open()
}

// Log appends the event as one JSON line
func (l *FileLogger) Log(_ context.Context, event *AuditEvent) error {
	if err := prepare(event); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return fmt.Errorf("audit log file closed")
	}
	if info, err := l.file.Stat(); err == nil && info.Size() >= l.maxSize {
		if err := l.rotate(); err != nil {
			return fmt.Errorf("failed to rotate log file: %w", err)
		}
	}

	if err := l.encoder.Encode(event); err != nil {
		return fmt.Errorf("failed to write audit log: %w", err)
	}
	return nil
}

// Close closes the active file
func (l *FileLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// ReadLogs reads up to count events from the active file; count <= 0 reads all
func (l *FileLogger) ReadLogs(count int) ([]*AuditEvent, error) {
	file, err := os.Open(l.path())
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}
	defer file.Close()

	var events []*AuditEvent
	decoder := json.NewDecoder(file)
	for count <= 0 || len(events) < count {
		var event AuditEvent
		if err := decoder.Decode(&event); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("failed to decode audit log entry: %w", err)
		}
		events = append(events, &event)
	}
	return events, nil
}
