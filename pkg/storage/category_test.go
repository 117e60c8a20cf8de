package storage

import (
	"errors"
	"testing"
	"time"
)

func TestParseCategory(t *testing.T) {
	for _, s := range []string{"recordings", "notes", "logs", "uploads"} {
		if _, err := ParseCategory(s); err != nil {
			t.Errorf("ParseCategory(%q): %v", s, err)
		}
	}
	if _, err := ParseCategory("secrets"); !errors.Is(err, ErrUnknownCategory) {
		t.Errorf("ParseCategory(secrets): err = %v", err)
	}
}

func TestDeletable(t *testing.T) {
	if !Recordings.Deletable() || !Uploads.Deletable() {
		t.Error("recordings and uploads must be deletable")
	}
	if Notes.Deletable() || Logs.Deletable() {
		t.Error("notes and logs must be protected")
	}
}

func TestCleanName(t *testing.T) {
	good := []string{"rec_001.wav", "a.txt", "UPPER-case_1.bin"}
	for _, n := range good {
		if got, err := CleanName(n); err != nil || got != n {
			t.Errorf("CleanName(%q) = (%q, %v)", n, got, err)
		}
	}
	bad := []string{"", ".", "..", "../etc/passwd", "a/b", `a\b`, ".hidden", "tab\there", "naïve.txt"}
	for _, n := range bad {
		if _, err := CleanName(n); !errors.Is(err, ErrBadName) {
			t.Errorf("CleanName(%q): err = %v, want ErrBadName", n, err)
		}
	}
}

func TestStampName(t *testing.T) {
	at := time.Date(2026, 8, 23, 14, 5, 9, 0, time.UTC)
	if got := StampName("rec", "wav", at); got != "rec_20260823_140509.wav" {
		t.Fatalf("StampName = %q", got)
	}
}
