// Package activity appends the device's activity stream to JSONL files,
// one event per line, rotating by size. The stream is the on-disk twin
// of the activities table: greppable, tailable, and served as the logs
// file category.
package activity

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const defaultMaxBytes = 4 << 20 // 4 MiB per segment

// Entry is one activity event on the wire and on disk.
type Entry struct {
	Time      time.Time `json:"time"`
	Kind      string    `json:"kind"`
	Detail    string    `json:"detail,omitempty"`
	SessionID uint64    `json:"session_id,omitempty"`
}

// Logger appends entries to a JSONL segment, rotating when the segment
// exceeds the size cap. Safe for concurrent use.
type Logger struct {
	mu        sync.Mutex
	dir       string
	maxBytes  int64
	f         *os.File
	size      int64
	sessionID uint64
	now       func() time.Time
	onRotate  func(name string)
}

// Option configures a Logger.
type Option func(*Logger)

// WithMaxBytes overrides the segment size cap.
func WithMaxBytes(n int64) Option {
	return func(l *Logger) { l.maxBytes = n }
}

// WithOnRotate registers a callback invoked with the name of each
// segment as it is closed out.
func WithOnRotate(fn func(name string)) Option {
	return func(l *Logger) { l.onRotate = fn }
}

// New creates a Logger writing segments under dir, creating it if
// needed. The first segment opens lazily on the first Log call.
func New(dir string, opts ...Option) (*Logger, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("activity: mkdir %s: %w", dir, err)
	}
	l := &Logger{dir: dir, maxBytes: defaultMaxBytes, now: time.Now}
	for _, o := range opts {
		o(l)
	}
	return l, nil
}

// SetSession tags subsequent entries with the session ID. Zero clears.
func (l *Logger) SetSession(id uint64) {
	l.mu.Lock()
	l.sessionID = id
	l.mu.Unlock()
}

// Log appends one entry.
func (l *Logger) Log(kind, detail string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	e := Entry{Time: l.now().UTC(), Kind: kind, Detail: detail, SessionID: l.sessionID}
	b, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("activity: encode entry: %w", err)
	}
	b = append(b, '\n')

	if l.f != nil && l.size+int64(len(b)) > l.maxBytes {
		if err := l.rotateLocked(); err != nil {
			return err
		}
	}
	if l.f == nil {
		if err := l.openLocked(); err != nil {
			return err
		}
	}

	n, err := l.f.Write(b)
	l.size += int64(n)
	if err != nil {
		return fmt.Errorf("activity: write entry: %w", err)
	}
	return nil
}

// Rotate closes the current segment and starts a new one on next Log.
func (l *Logger) Rotate() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rotateLocked()
}

// Close flushes and closes the current segment.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rotateLocked()
}

func (l *Logger) openLocked() error {
	name := fmt.Sprintf("activity_%s.jsonl", l.now().UTC().Format("20060102_150405.000"))
	f, err := os.OpenFile(filepath.Join(l.dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("activity: open segment: %w", err)
	}
	l.f = f
	l.size = 0
	return nil
}

func (l *Logger) rotateLocked() error {
	if l.f == nil {
		return nil
	}
	name := filepath.Base(l.f.Name())
	err := l.f.Close()
	l.f = nil
	l.size = 0
	if err != nil {
		return fmt.Errorf("activity: close segment: %w", err)
	}
	if l.onRotate != nil {
		l.onRotate(name)
	}
	return nil
}
