package storage

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Category names an artifact class. Each category is one directory under
// the library root.
type Category string

const (
	Recordings Category = "recordings"
	Notes      Category = "notes"
	Logs       Category = "logs"
	Uploads    Category = "uploads"
)

// Categories lists every category.
var Categories = []Category{Recordings, Notes, Logs, Uploads}

// Sentinel errors.
var (
	// ErrUnknownCategory is returned for a category outside Categories.
	ErrUnknownCategory = errors.New("storage: unknown category")
	// ErrNotDeletable is returned when deleting from a protected category.
	ErrNotDeletable = errors.New("storage: category is not deletable")
	// ErrBadName is returned for a file name that fails sanitization.
	ErrBadName = errors.New("storage: invalid file name")
)

// ParseCategory validates a category string.
func ParseCategory(s string) (Category, error) {
	c := Category(s)
	for _, known := range Categories {
		if c == known {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownCategory, s)
}

// Deletable reports whether companions may delete files in the category.
// Notes and logs are append-only from the outside.
func (c Category) Deletable() bool {
	return c == Recordings || c == Uploads
}

func (c Category) String() string { return string(c) }

// CleanName validates a client-supplied file name: a single path element,
// no separators, no traversal, printable ASCII only.
func CleanName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || name == "." || name == ".." || len(name) > 255 {
		return "", fmt.Errorf("%w: %q", ErrBadName, name)
	}
	for _, r := range name {
		switch {
		case r == '/' || r == '\\' || r == 0:
			return "", fmt.Errorf("%w: %q", ErrBadName, name)
		case r < 0x20 || r > 0x7e:
			return "", fmt.Errorf("%w: %q", ErrBadName, name)
		}
	}
	if strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("%w: %q", ErrBadName, name)
	}
	return name, nil
}

// StampName builds a timestamped artifact name: <prefix>_<stamp>.<ext>.
func StampName(prefix, ext string, t time.Time) string {
	return fmt.Sprintf("%s_%s.%s", prefix, t.Format("20060102_150405"), ext)
}
