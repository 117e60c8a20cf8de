// Package framing turns raw transport bytes into complete newline-delimited
// UTF-8 protocol messages.
//
// The wire format is one message per line: UTF-8 text terminated by '\n',
// at most MaxMessageLen bytes before the delimiter, no binary payloads, no
// length prefix, no escaping. A message may arrive split across arbitrarily
// many reads (BLE notifications are MTU-sized), so a Splitter accumulates
// bytes until it sees the delimiter.
package framing

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// MaxMessageLen is the maximum accepted message size in bytes, excluding
// the trailing delimiter.
const MaxMessageLen = 512

// Sentinel errors surfaced as decode-error events.
var (
	// ErrOversize indicates a message exceeded MaxMessageLen before its
	// delimiter arrived. The offending bytes are discarded up to and
	// including the next delimiter.
	ErrOversize = errors.New("framing: message exceeds maximum length")

	// ErrInvalidUTF8 indicates a complete segment was not valid UTF-8.
	ErrInvalidUTF8 = errors.New("framing: message is not valid UTF-8")
)

// Result is one outcome of a Feed call: either a complete message or a
// decode error. Exactly one of Text/Err is set.
type Result struct {
	Text string
	Err  error
}

// Splitter reassembles a byte stream into complete messages.
//
// It is scoped to a single live connection: the caller must Reset (or
// allocate a fresh Splitter) on reconnect so that fragments from a dead
// connection are never stitched to a new one. Not safe for concurrent use;
// each connection feeds it from one goroutine.
type Splitter struct {
	buf        []byte
	max        int
	discarding bool
}

// NewSplitter returns a Splitter with the given per-message byte limit.
// A non-positive max uses MaxMessageLen.
func NewSplitter(max int) *Splitter {
	if max <= 0 {
		max = MaxMessageLen
	}
	return &Splitter{max: max}
}

// Feed appends p to the buffer and extracts every complete message.
//
// Complete segments are returned in arrival order. The trailing
// delimiter-less remainder is retained for the next call; after Feed
// returns the buffer never contains a delimiter. An oversize or malformed
// segment yields a Result carrying the error, and splitting resumes at the
// next delimiter.
func (s *Splitter) Feed(p []byte) []Result {
	var out []Result
	for _, b := range p {
		if b == '\n' {
			if s.discarding {
				s.discarding = false
				continue
			}
			if msg, ok := s.take(); ok {
				out = append(out, msg)
			}
			continue
		}
		if s.discarding {
			continue
		}
		s.buf = append(s.buf, b)
		if len(s.buf) > s.max {
			// Bound memory: drop the partial message and everything up to
			// the next delimiter.
			s.buf = s.buf[:0]
			s.discarding = true
			out = append(out, Result{Err: ErrOversize})
		}
	}
	return out
}

// take consumes the buffered segment as one message. Empty segments are
// dropped (keepalive blank lines), invalid UTF-8 becomes a decode error.
func (s *Splitter) take() (Result, bool) {
	seg := strings.TrimSpace(string(s.buf))
	s.buf = s.buf[:0]
	if seg == "" {
		return Result{}, false
	}
	if !utf8.ValidString(seg) {
		return Result{Err: ErrInvalidUTF8}, true
	}
	return Result{Text: seg}, true
}

// Pending returns the number of buffered bytes awaiting a delimiter.
func (s *Splitter) Pending() int {
	return len(s.buf)
}

// Reset discards all buffered state. Call on reconnect.
func (s *Splitter) Reset() {
	s.buf = s.buf[:0]
	s.discarding = false
}

// A DecodeError annotates a framing failure with the transport it came
// from, for activity logging.
type DecodeError struct {
	Transport string
	Err       error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("framing: %s: %v", e.Transport, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }
