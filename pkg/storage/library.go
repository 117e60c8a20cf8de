package storage

import (
	"context"
	"fmt"
	"io"
	"path"
)

// Library is the category-aware artifact manager. It validates names,
// keeps each category in its own directory on the local store, and can
// mirror artifacts to an optional offload store.
type Library struct {
	local   *Local
	offload FileStore // nil when offload is disabled
}

// NewLibrary creates a Library on the local store. offload may be nil.
func NewLibrary(local *Local, offload FileStore) *Library {
	return &Library{local: local, offload: offload}
}

// Path returns the on-disk path of an artifact without checking that it
// exists.
func (lib *Library) Path(c Category, name string) string {
	return lib.local.resolve(path.Join(c.String(), name))
}

// Save writes r into the category under name and returns the byte count.
// The name must already be clean (see CleanName).
func (lib *Library) Save(ctx context.Context, c Category, name string, r io.Reader) (int64, error) {
	w, err := lib.local.Write(ctx, path.Join(c.String(), name))
	if err != nil {
		return 0, fmt.Errorf("storage: save %s/%s: %w", c, name, err)
	}
	n, err := io.Copy(w, r)
	if cerr := w.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return n, fmt.Errorf("storage: save %s/%s: %w", c, name, err)
	}
	return n, nil
}

// Open opens an artifact for reading.
func (lib *Library) Open(ctx context.Context, c Category, name string) (io.ReadCloser, error) {
	return lib.local.Read(ctx, path.Join(c.String(), name))
}

// Size returns the byte size of an artifact.
func (lib *Library) Size(ctx context.Context, c Category, name string) (int64, error) {
	return lib.local.Size(ctx, path.Join(c.String(), name))
}

// Exists reports whether an artifact is present on disk.
func (lib *Library) Exists(ctx context.Context, c Category, name string) (bool, error) {
	return lib.local.Exists(ctx, path.Join(c.String(), name))
}

// List returns the artifact names in a category, sorted.
func (lib *Library) List(ctx context.Context, c Category) ([]string, error) {
	return lib.local.List(ctx, c.String())
}

// Delete removes an artifact's bytes. Refuses protected categories.
// Missing files are not an error.
func (lib *Library) Delete(ctx context.Context, c Category, name string) error {
	if !c.Deletable() {
		return fmt.Errorf("%w: %s", ErrNotDeletable, c)
	}
	return lib.local.Delete(ctx, path.Join(c.String(), name))
}

// Offload copies an artifact to the offload store. No-op without one.
func (lib *Library) Offload(ctx context.Context, c Category, name string) error {
	if lib.offload == nil {
		return nil
	}
	p := path.Join(c.String(), name)
	r, err := lib.local.Read(ctx, p)
	if err != nil {
		return fmt.Errorf("storage: offload %s: %w", p, err)
	}
	defer r.Close()

	w, err := lib.offload.Write(ctx, p)
	if err != nil {
		return fmt.Errorf("storage: offload %s: %w", p, err)
	}
	if _, err := io.Copy(w, r); err != nil {
		w.Close()
		return fmt.Errorf("storage: offload %s: %w", p, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("storage: offload %s: %w", p, err)
	}
	return nil
}
