package storage

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"testing"
)

func newTestLocal(t *testing.T) *Local {
	t.Helper()
	l, err := NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	return l
}

func TestLocalRoundTrip(t *testing.T) {
	l := newTestLocal(t)
	ctx := context.Background()

	w, err := l.Write(ctx, "recordings/a.wav")
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if _, err := io.WriteString(w, "audio bytes"); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	r, err := l.Read(ctx, "recordings/a.wav")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	defer r.Close()
	b, _ := io.ReadAll(r)
	if string(b) != "audio bytes" {
		t.Fatalf("content = %q", b)
	}

	n, err := l.Size(ctx, "recordings/a.wav")
	if err != nil || n != int64(len("audio bytes")) {
		t.Fatalf("Size = (%d, %v)", n, err)
	}
}

func TestLocalReadMissing(t *testing.T) {
	l := newTestLocal(t)
	_, err := l.Read(context.Background(), "nope.txt")
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("err = %v, want os.ErrNotExist", err)
	}
}

func TestLocalDeleteIdempotent(t *testing.T) {
	l := newTestLocal(t)
	ctx := context.Background()
	if err := l.Delete(ctx, "never/existed.txt"); err != nil {
		t.Fatalf("Delete missing: %v", err)
	}
}

func TestLocalList(t *testing.T) {
	l := newTestLocal(t)
	ctx := context.Background()

	for _, name := range []string{"uploads/b.txt", "uploads/a.txt"} {
		w, err := l.Write(ctx, name)
		if err != nil {
			t.Fatal(err)
		}
		io.WriteString(w, "x")
		w.Close()
	}

	names, err := l.List(ctx, "uploads")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if strings.Join(names, ",") != "a.txt,b.txt" {
		t.Fatalf("names = %v", names)
	}

	empty, err := l.List(ctx, "missing-dir")
	if err != nil || len(empty) != 0 {
		t.Fatalf("missing dir: (%v, %v)", empty, err)
	}
}
