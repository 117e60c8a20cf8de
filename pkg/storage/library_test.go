package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
)

// memStore is a FileStore backed by a map, standing in for the offload
// target.
type memStore struct {
	files map[string][]byte
}

func newMemStore() *memStore { return &memStore{files: make(map[string][]byte)} }

func (m *memStore) Read(_ context.Context, path string) (io.ReadCloser, error) {
	b, ok := m.files[path]
	if !ok {
		return nil, errors.New("not found")
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (m *memStore) Write(_ context.Context, path string) (io.WriteCloser, error) {
	return &memWriter{m: m, path: path}, nil
}

func (m *memStore) Delete(_ context.Context, path string) error {
	delete(m.files, path)
	return nil
}

func (m *memStore) Exists(_ context.Context, path string) (bool, error) {
	_, ok := m.files[path]
	return ok, nil
}

func (m *memStore) List(_ context.Context, dir string) ([]string, error) {
	var names []string
	for p := range m.files {
		if strings.HasPrefix(p, dir+"/") {
			names = append(names, strings.TrimPrefix(p, dir+"/"))
		}
	}
	return names, nil
}

type memWriter struct {
	m    *memStore
	path string
	buf  bytes.Buffer
}

func (w *memWriter) Write(p []byte) (int, error) { return w.buf.Write(p) }
func (w *memWriter) Close() error {
	w.m.files[w.path] = w.buf.Bytes()
	return nil
}

func TestLibrarySaveOpen(t *testing.T) {
	lib := NewLibrary(newTestLocal(t), nil)
	ctx := context.Background()

	n, err := lib.Save(ctx, Uploads, "doc.txt", strings.NewReader("payload"))
	if err != nil || n != 7 {
		t.Fatalf("Save = (%d, %v)", n, err)
	}

	r, err := lib.Open(ctx, Uploads, "doc.txt")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()
	b, _ := io.ReadAll(r)
	if string(b) != "payload" {
		t.Fatalf("content = %q", b)
	}

	names, err := lib.List(ctx, Uploads)
	if err != nil || len(names) != 1 || names[0] != "doc.txt" {
		t.Fatalf("List = (%v, %v)", names, err)
	}
}

func TestLibraryDeleteProtected(t *testing.T) {
	lib := NewLibrary(newTestLocal(t), nil)
	ctx := context.Background()

	lib.Save(ctx, Notes, "n.txt", strings.NewReader("keep me"))
	if err := lib.Delete(ctx, Notes, "n.txt"); !errors.Is(err, ErrNotDeletable) {
		t.Fatalf("delete notes: err = %v, want ErrNotDeletable", err)
	}
	if err := lib.Delete(ctx, Logs, "l.jsonl"); !errors.Is(err, ErrNotDeletable) {
		t.Fatalf("delete logs: err = %v, want ErrNotDeletable", err)
	}

	lib.Save(ctx, Recordings, "r.wav", strings.NewReader("bytes"))
	if err := lib.Delete(ctx, Recordings, "r.wav"); err != nil {
		t.Fatalf("delete recording: %v", err)
	}
	ok, _ := lib.Exists(ctx, Recordings, "r.wav")
	if ok {
		t.Fatal("recording still present after delete")
	}
}

func TestLibraryOffload(t *testing.T) {
	offload := newMemStore()
	lib := NewLibrary(newTestLocal(t), offload)
	ctx := context.Background()

	lib.Save(ctx, Recordings, "r.wav", strings.NewReader("audio"))
	if err := lib.Offload(ctx, Recordings, "r.wav"); err != nil {
		t.Fatalf("Offload: %v", err)
	}
	if got := offload.files["recordings/r.wav"]; string(got) != "audio" {
		t.Fatalf("offloaded bytes = %q", got)
	}
}

func TestLibraryOffloadDisabled(t *testing.T) {
	lib := NewLibrary(newTestLocal(t), nil)
	ctx := context.Background()
	lib.Save(ctx, Recordings, "r.wav", strings.NewReader("audio"))
	if err := lib.Offload(ctx, Recordings, "r.wav"); err != nil {
		t.Fatalf("Offload without target: %v", err)
	}
}
