// Package csvsink appends decoded sensor rows to a session-scoped CSV file.
package csvsink

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const (
	// DefaultPrefix is prepended to every session file name
	DefaultPrefix = "nicla_orientation_"

	// sessionLayout gives file names second resolution
	sessionLayout = "20060102_150405"
)

// ErrClosed is returned when writing to a closed sink
var ErrClosed = errors.New("csv sink is closed")

// FileName returns the session file name for a session started at t.
func FileName(prefix string, t time.Time) string {
	return prefix + t.Format(sessionLayout) + ".csv"
}

// FormatRow renders fields as one CSV line. Values are written as received;
// only a field holding a comma, a double quote or a line break is quoted, with
// embedded quotes doubled. A row made of a single empty field is written as ""
// so it still reads back as one field.
func FormatRow(fields []string) string {
	if len(fields) == 1 && fields[0] == "" {
		return "\"\"\n"
	}
	var b strings.Builder
	for i, f := range fields {
		if i > 0 {
			b.WriteByte(',')
		}
		if !strings.ContainsAny(f, ",\"\r\n") {
			b.WriteString(f)
			continue
		}
		b.WriteByte('"')
		b.WriteString(strings.ReplaceAll(f, `"`, `""`))
		b.WriteByte('"')
	}
	b.WriteByte('\n')
	return b.String()
}

// Sink writes one CSV file for the lifetime of a BLE session.
// Every row is flushed and synced before WriteRow returns.
type Sink struct {
	mu            sync.Mutex
	path          string
	file          *os.File
	writer        *bufio.Writer
	headerWritten bool
	rows          int
	closed        bool
}

// Open creates (or truncates) the session file in dir. Sessions started in the
// same second share a name; the last one opened wins.
func Open(dir, prefix string, startedAt time.Time) (*Sink, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory %s: %w", dir, err)
	}

	path := filepath.Join(dir, FileName(prefix, startedAt))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open session file: %w", err)
	}

	return &Sink{
		path:   path,
		file:   f,
		writer: bufio.NewWriter(f),
	}, nil
}

// Path returns the session file path
func (s *Sink) Path() string {
	return s.path
}

// Rows returns the number of data rows written so far (header excluded)
func (s *Sink) Rows() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rows
}

// HeaderWritten reports whether the header row has been written
func (s *Sink) HeaderWritten() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.headerWritten
}

// WriteHeader writes the header row once per session. Later calls are no-ops
// and report false.
func (s *Sink) WriteHeader(fields []string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false, ErrClosed
	}
	if s.headerWritten {
		return false, nil
	}
	if err := s.writeLocked(fields); err != nil {
		return false, err
	}
	s.headerWritten = true
	return true, nil
}

// WriteRow appends one data row and forces it to stable storage.
func (s *Sink) WriteRow(fields []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if err := s.writeLocked(fields); err != nil {
		return err
	}
	s.rows++
	return nil
}

func (s *Sink) writeLocked(fields []string) error {
	if _, err := s.writer.WriteString(FormatRow(fields)); err != nil {
		return fmt.Errorf("write row: %w", err)
	}
	if err := s.writer.Flush(); err != nil {
		return fmt.Errorf("flush row: %w", err)
	}
	if err := s.file.Sync(); err != nil {
		return fmt.Errorf("sync %s: %w", s.path, err)
	}
	return nil
}

// Close flushes and closes the file. Safe to call more than once.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	flushErr := s.writer.Flush()
	if err := s.file.Close(); err != nil {
		return fmt.Errorf("close %s: %w", s.path, err)
	}
	return flushErr
}
