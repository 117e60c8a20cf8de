package framing

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ChunkPrefix marks a message fragment carried inside the line protocol.
// Format: CHUNK:<seq>/<total>:<data>, 1-based sequence numbers.
const ChunkPrefix = "CHUNK:"

// defaultChunkTimeout bounds how long a partially received sequence is
// kept before being dropped.
const defaultChunkTimeout = 30 * time.Second

// responseHeaderReserve leaves room for the "CHUNK:nn/nn:" header when
// splitting outbound responses.
const responseHeaderReserve = 16

// ResponseChunkLen is the per-fragment budget for outbound responses,
// kept below MaxMessageLen so the header never tips a line over.
const ResponseChunkLen = 480

// IsChunk reports whether msg is a chunk fragment.
func IsChunk(msg string) bool {
	return strings.HasPrefix(msg, ChunkPrefix)
}

// Assembler reassembles CHUNK:n/N:data fragments into complete messages.
// Messages larger than the transport's per-line budget are carried as a
// numbered sequence of chunks; the assembler buffers them until all have
// arrived. A new sequence (different total) or a stale one (past the
// timeout) resets the buffer.
//
// Not safe for concurrent use; the router feeds it from its dispatch path.
type Assembler struct {
	parts    []string
	received map[int]bool
	total    int
	started  time.Time
	timeout  time.Duration
	now      func() time.Time
}

// NewAssembler returns an Assembler with the default 30 s sequence timeout.
func NewAssembler() *Assembler {
	return &Assembler{timeout: defaultChunkTimeout, now: time.Now}
}

// Feed consumes one CHUNK: message. It returns the reassembled message
// once every fragment of the sequence has arrived, or "" while still
// accumulating. Malformed fragments reset the buffer and return "".
func (a *Assembler) Feed(raw string) string {
	seq, total, data, err := parseChunk(raw)
	if err != nil {
		a.Reset()
		return ""
	}

	now := a.now()
	if total != a.total || (!a.started.IsZero() && now.Sub(a.started) > a.timeout) {
		a.Reset()
	}
	if a.parts == nil {
		a.parts = make([]string, total)
		a.received = make(map[int]bool, total)
		a.total = total
		a.started = now
	}
	if seq >= 1 && seq <= total {
		a.parts[seq-1] = data
		a.received[seq] = true
	}
	if len(a.received) == a.total {
		assembled := strings.Join(a.parts, "")
		a.Reset()
		return assembled
	}
	return ""
}

// Reset drops any partially accumulated sequence.
func (a *Assembler) Reset() {
	a.parts = nil
	a.received = nil
	a.total = 0
	a.started = time.Time{}
}

// parseChunk splits "CHUNK:n/N:data" into its parts.
func parseChunk(raw string) (seq, total int, data string, err error) {
	rest := strings.TrimPrefix(raw, ChunkPrefix)
	slash := strings.IndexByte(rest, '/')
	if slash < 0 {
		return 0, 0, "", fmt.Errorf("framing: chunk header missing '/'")
	}
	seq, err = strconv.Atoi(rest[:slash])
	if err != nil {
		return 0, 0, "", fmt.Errorf("framing: chunk seq: %w", err)
	}
	rest = rest[slash+1:]
	colon := strings.IndexByte(rest, ':')
	if colon < 0 {
		return 0, 0, "", fmt.Errorf("framing: chunk header missing ':'")
	}
	total, err = strconv.Atoi(rest[:colon])
	if err != nil {
		return 0, 0, "", fmt.Errorf("framing: chunk total: %w", err)
	}
	if total < 1 {
		return 0, 0, "", fmt.Errorf("framing: chunk total %d out of range", total)
	}
	return seq, total, rest[colon+1:], nil
}

// SplitResponse splits msg into CHUNK:n/N:data fragments when it exceeds
// max bytes. Messages within budget are returned unchanged as a single
// element. Split points respect UTF-8 rune boundaries.
func SplitResponse(msg string, max int) []string {
	if max <= responseHeaderReserve {
		max = MaxMessageLen - 32
	}
	if len(msg) <= max {
		return []string{msg}
	}

	budget := max - responseHeaderReserve
	var parts []string
	for len(msg) > 0 {
		n := budget
		if n > len(msg) {
			n = len(msg)
		}
		// Back off to a rune boundary so no fragment carries a torn rune.
		for n < len(msg) && n > 0 && !isRuneStart(msg[n]) {
			n--
		}
		parts = append(parts, msg[:n])
		msg = msg[n:]
	}

	out := make([]string, len(parts))
	for i, p := range parts {
		out[i] = fmt.Sprintf("%s%d/%d:%s", ChunkPrefix, i+1, len(parts), p)
	}
	return out
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
