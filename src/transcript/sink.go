// Package transcript buffers accepted capture text and persists it as a
// timestamped capture file.
package transcript

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const (
	FilePrefix      = "capture_"
	ProcessedSuffix = "_processed"
	TimestampFormat = "2006-01-02-15-04-05"
	lineStampFormat = "15:04:05"
)

// ErrPersistence marks a failed transcript write.
var ErrPersistence = errors.New("transcript write failed")

// PersistenceError carries the destination that could not be written. The
// sink keeps its buffer so the caller can retry or save elsewhere.
type PersistenceError struct {
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%v: %s: %v", ErrPersistence, e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() []error { return []error{ErrPersistence, e.Err} }

// Header describes the session a transcript belongs to.
type Header struct {
	Started     time.Time
	Language    string
	CaptionMode bool
	Region      string
}

// Segment is one accepted residue.
type Segment struct {
	At   time.Time
	Text string
}

// Sink accumulates segments in memory until Finalize.
type Sink struct {
	mu       sync.Mutex
	dir      string
	header   Header
	segments []Segment
}

// NewSink returns a sink that writes into dir.
func NewSink(dir string, header Header) *Sink {
	if header.Started.IsZero() {
		header.Started = time.Now()
	}
	return &Sink{dir: dir, header: header}
}

// Append records residue. Empty residue is ignored.
func (s *Sink) Append(residue string, at time.Time) {
	if residue == "" {
		return
	}
	s.mu.Lock()
	s.segments = append(s.segments, Segment{At: at, Text: residue})
	s.mu.Unlock()
}

// Segments returns a copy of the buffered segments in append order.
func (s *Sink) Segments() []Segment {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Segment, len(s.segments))
	copy(out, s.segments)
	return out
}

// Len returns the number of buffered segments.
func (s *Sink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.segments)
}

// Text returns the logical transcript: residues concatenated verbatim, so a
// caption that grew across ticks reads as one piece of text.
func (s *Sink) Text() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var b strings.Builder
	for _, seg := range s.segments {
		b.WriteString(seg.Text)
	}
	return b.String()
}

// Dir returns the default output directory.
func (s *Sink) Dir() string { return s.dir }

// Finalize writes the transcript to the sink's directory and returns the
// file path. See FinalizeTo.
func (s *Sink) Finalize(name string) (string, error) {
	return s.FinalizeTo(s.dir, name)
}

// FinalizeTo writes the transcript into dir. An empty name selects
// capture_<timestamp>.txt; a name ending in .txt is used as is unless that
// file already exists, in which case the stem becomes a prefix; any other
// name becomes a prefix: <name>_capture_<timestamp>.txt. The write goes
// through a temp file and rename so a failed write never leaves a partial
// transcript behind.
func (s *Sink) FinalizeTo(dir, name string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(dir, FileName(name, s.header.Started))
	if _, err := os.Stat(path); err == nil && isExplicitName(name) {
		kept := path
		path = filepath.Join(dir, FileName(trimTxt(name), s.header.Started))
		log.Printf("Transcript: %s already exists, saving to %s", kept, path)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", &PersistenceError{Path: path, Err: err}
	}

	tmp, err := os.CreateTemp(dir, ".capture-*.tmp")
	if err != nil {
		return "", &PersistenceError{Path: path, Err: err}
	}
	tmpPath := tmp.Name()

	if _, err := tmp.WriteString(s.render()); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return "", &PersistenceError{Path: path, Err: err}
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return "", &PersistenceError{Path: path, Err: err}
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return "", &PersistenceError{Path: path, Err: err}
	}
	return path, nil
}

func (s *Sink) render() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Caption capture started: %s\n", s.header.Started.Format("2006-01-02 15:04:05"))
	if s.header.Language != "" {
		fmt.Fprintf(&b, "Language: %s\n", s.header.Language)
	}
	fmt.Fprintf(&b, "Caption mode: %t\n", s.header.CaptionMode)
	if s.header.Region != "" {
		fmt.Fprintf(&b, "Region: %s\n", s.header.Region)
	}
	b.WriteString("\n")
	for _, seg := range s.segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		fmt.Fprintf(&b, "[%s] %s\n", seg.At.Format(lineStampFormat), text)
	}
	return b.String()
}

// FileName builds the capture file name for a session started at started.
func FileName(name string, started time.Time) string {
	name = filepath.Base(strings.TrimSpace(name))
	if name == "." || name == string(filepath.Separator) {
		name = ""
	}
	if strings.HasSuffix(strings.ToLower(name), ".txt") {
		return name
	}
	base := FilePrefix + started.Format(TimestampFormat)
	if name != "" {
		base = name + "_" + base
	}
	return base + ".txt"
}

func isExplicitName(name string) bool {
	return strings.HasSuffix(strings.ToLower(strings.TrimSpace(name)), ".txt")
}

func trimTxt(name string) string {
	name = strings.TrimSpace(name)
	return name[:len(name)-len(".txt")]
}
