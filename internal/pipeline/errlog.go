package pipeline

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

var errorLogHeader = []string{"slide_id", "unit", "stage", "error_message", "datetime"}

// ErrorLogEntry is one row of the error log.
type ErrorLogEntry struct {
	SlideID string
	Unit    string
	Stage   Stage
	Message string
	Time    time.Time
}

// ErrorLog is an append-only CSV file, safe for concurrent use. Rows are
// flushed as they are written so that an interrupted run keeps its log.
type ErrorLog struct {
	mu   sync.Mutex
	f    *os.File
	w    *csv.Writer
	path string
	n    int
}

// OpenErrorLog opens path for appending, writing the header when the file is
// new or empty.
func OpenErrorLog(path string) (*ErrorLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create error log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open error log: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("stat error log: %w", err)
	}
	l := &ErrorLog{f: f, w: csv.NewWriter(f), path: path}
	if info.Size() == 0 {
		if err := l.write(errorLogHeader); err != nil {
			_ = f.Close()
			return nil, err
		}
	}
	return l, nil
}

// Path returns the log file location.
func (l *ErrorLog) Path() string { return l.path }

// Append writes one entry.
func (l *ErrorLog) Append(e ErrorLogEntry) error {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.write([]string{e.SlideID, e.Unit, string(e.Stage), e.Message, e.Time.Format(time.RFC3339)}); err != nil {
		return err
	}
	l.n++
	return nil
}

// Len returns the number of entries appended through l.
func (l *ErrorLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.n
}

func (l *ErrorLog) write(record []string) error {
	if err := l.w.Write(record); err != nil {
		return fmt.Errorf("write error log: %w", err)
	}
	l.w.Flush()
	if err := l.w.Error(); err != nil {
		return fmt.Errorf("write error log: %w", err)
	}
	return nil
}

// Close flushes and closes the file.
func (l *ErrorLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.w.Flush()
	return l.f.Close()
}
