package framing

import (
	"errors"
	"strings"
	"testing"
)

// collect feeds p in chunks of size n and returns all messages and errors.
func collect(t *testing.T, s *Splitter, p []byte, n int) ([]string, []error) {
	t.Helper()
	var msgs []string
	var errs []error
	for i := 0; i < len(p); i += n {
		end := i + n
		if end > len(p) {
			end = len(p)
		}
		for _, r := range s.Feed(p[i:end]) {
			if r.Err != nil {
				errs = append(errs, r.Err)
			} else {
				msgs = append(msgs, r.Text)
			}
		}
	}
	return msgs, errs
}

func TestFeed_ChunkSizeIndependence(t *testing.T) {
	input := []byte("CMD:ping\n{\"type\":\"note\",\"content\":\"hi\"}\nplain text note\n")
	want := []string{"CMD:ping", `{"type":"note","content":"hi"}`, "plain text note"}

	for _, n := range []int{1, 2, 3, 5, 7, 16, len(input)} {
		s := NewSplitter(0)
		msgs, errs := collect(t, s, input, n)
		if len(errs) != 0 {
			t.Fatalf("chunk size %d: unexpected errors %v", n, errs)
		}
		if len(msgs) != len(want) {
			t.Fatalf("chunk size %d: got %d messages, want %d", n, len(msgs), len(want))
		}
		for i := range want {
			if msgs[i] != want[i] {
				t.Errorf("chunk size %d: msg[%d] = %q, want %q", n, i, msgs[i], want[i])
			}
		}
		if s.Pending() != 0 {
			t.Errorf("chunk size %d: %d bytes left pending", n, s.Pending())
		}
	}
}

func TestFeed_PartialRetained(t *testing.T) {
	s := NewSplitter(0)
	if got := s.Feed([]byte("CMD:sta")); len(got) != 0 {
		t.Fatalf("premature emit: %v", got)
	}
	if s.Pending() != 7 {
		t.Fatalf("Pending = %d, want 7", s.Pending())
	}
	got := s.Feed([]byte("tus\n"))
	if len(got) != 1 || got[0].Text != "CMD:status" {
		t.Fatalf("got %v, want [CMD:status]", got)
	}
}

func TestFeed_OversizeDiscardsAndResumes(t *testing.T) {
	s := NewSplitter(16)
	big := strings.Repeat("x", 40)
	results := s.Feed([]byte(big))

	var oversize int
	for _, r := range results {
		if errors.Is(r.Err, ErrOversize) {
			oversize++
		}
		if r.Err == nil && len(r.Text) > 16 {
			t.Fatalf("emitted message longer than the limit: %q", r.Text)
		}
	}
	if oversize != 1 {
		t.Fatalf("got %d oversize events, want 1", oversize)
	}

	// Framing resumes at the next delimiter.
	results = s.Feed([]byte("tail\nCMD:ping\n"))
	var msgs []string
	for _, r := range results {
		if r.Err != nil {
			t.Fatalf("unexpected error after resume: %v", r.Err)
		}
		msgs = append(msgs, r.Text)
	}
	if len(msgs) != 1 || msgs[0] != "CMD:ping" {
		t.Fatalf("after resume got %v, want [CMD:ping]", msgs)
	}
}

func TestFeed_OversizeAcrossManyFeeds(t *testing.T) {
	s := NewSplitter(16)
	var oversize int
	for i := 0; i < 10; i++ {
		for _, r := range s.Feed([]byte("aaaaaaaa")) {
			if errors.Is(r.Err, ErrOversize) {
				oversize++
			}
		}
	}
	if oversize != 1 {
		t.Fatalf("got %d oversize events, want exactly 1 for one run", oversize)
	}
	if s.Pending() != 0 {
		t.Fatalf("buffer grew while discarding: %d bytes", s.Pending())
	}
}

func TestFeed_InvalidUTF8(t *testing.T) {
	s := NewSplitter(0)
	results := s.Feed([]byte{0xff, 0xfe, '\n', 'o', 'k', '\n'})
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if !errors.Is(results[0].Err, ErrInvalidUTF8) {
		t.Errorf("results[0].Err = %v, want ErrInvalidUTF8", results[0].Err)
	}
	if results[1].Text != "ok" {
		t.Errorf("results[1].Text = %q, want %q", results[1].Text, "ok")
	}
}

func TestFeed_EmptyLinesDropped(t *testing.T) {
	s := NewSplitter(0)
	results := s.Feed([]byte("\n\n  \nCMD:ping\n\n"))
	if len(results) != 1 || results[0].Text != "CMD:ping" {
		t.Fatalf("got %v, want single CMD:ping", results)
	}
}

func TestReset_DropsPartial(t *testing.T) {
	s := NewSplitter(0)
	s.Feed([]byte("half a mess"))
	s.Reset()
	results := s.Feed([]byte("age\n"))
	if len(results) != 1 || results[0].Text != "age" {
		t.Fatalf("got %v; stale bytes survived Reset", results)
	}
}
