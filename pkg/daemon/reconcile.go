package daemon

import (
	"context"
	"fmt"

	"github.com/cortexcore/cortexd/pkg/storage"
	"github.com/cortexcore/cortexd/pkg/store"
)

// Reconcile aligns the file table with the bytes on disk after a crash
// or an unclean shutdown: rows without bytes are dropped, bytes without
// rows are registered. Runs once at startup before the transports come
// up.
func (d *Daemon) Reconcile(ctx context.Context) error {
	for _, cat := range storage.Categories {
		onDisk, err := d.library.List(ctx, cat)
		if err != nil {
			return fmt.Errorf("daemon: reconcile list %s: %w", cat, err)
		}
		present := make(map[string]bool, len(onDisk))
		for _, name := range onDisk {
			present[name] = true
		}

		rows, err := d.store.ListFiles(ctx, cat.String())
		if err != nil {
			return fmt.Errorf("daemon: reconcile rows %s: %w", cat, err)
		}
		tracked := make(map[string]bool, len(rows))
		for _, row := range rows {
			tracked[row.Name] = true
			if present[row.Name] {
				continue
			}
			// Row without bytes: the delete got interrupted after the
			// unlink, or the volume lost the file.
			d.log.Warn("dropping orphan file row", "category", cat.String(), "name", row.Name)
			if err := d.store.DeleteFile(ctx, cat.String(), row.Name); err != nil {
				return fmt.Errorf("daemon: drop orphan row %s/%s: %w", cat, row.Name, err)
			}
		}

		for _, name := range onDisk {
			if tracked[name] {
				continue
			}
			size, err := d.library.Size(ctx, cat, name)
			if err != nil {
				d.log.Warn("untracked file stat failed", "category", cat.String(), "name", name, "error", err)
				continue
			}
			d.log.Info("registering untracked file", "category", cat.String(), "name", name)
			if err := d.store.InsertFile(ctx, &store.FileRecord{
				Name:     name,
				Category: cat.String(),
				Size:     size,
			}); err != nil {
				return fmt.Errorf("daemon: register %s/%s: %w", cat, name, err)
			}
		}
	}
	return nil
}
