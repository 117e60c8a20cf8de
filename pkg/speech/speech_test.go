package speech

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestTranscribeFunc(t *testing.T) {
	called := ""
	tr := TranscribeFunc(func(_ context.Context, path string) (string, error) {
		called = path
		return "hello", nil
	})
	got, err := tr.Transcribe(context.Background(), "/tmp/a.wav")
	if err != nil || got != "hello" {
		t.Fatalf("Transcribe = (%q, %v)", got, err)
	}
	if called != "/tmp/a.wav" {
		t.Fatalf("path = %q", called)
	}
}

func TestWhisper_EmptyArtifact(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty.wav")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	w := NewWhisper("test-key")
	_, err := w.Transcribe(context.Background(), path)
	if !errors.Is(err, ErrEmptyAudio) {
		t.Fatalf("err = %v, want ErrEmptyAudio", err)
	}
}

func TestWhisper_MissingArtifact(t *testing.T) {
	w := NewWhisper("test-key")
	_, err := w.Transcribe(context.Background(), filepath.Join(t.TempDir(), "nope.wav"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}
