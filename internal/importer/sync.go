package importer

import (
	"context"
	"io/fs"
	"log/slog"
	"path/filepath"
)

// Result summarises one Sync pass.
type Result struct {
	Uploaded  int
	Unchanged int
	Removed   int
	Failed    int
}

// Sync walks the import directory and brings the remote tree up to date:
//   - new/changed files are uploaded
//   - files removed from disk are deleted remotely
//
// Hidden files and directories are skipped. Per-file failures are logged and
// counted; only a failure to walk the directory or read the state aborts.
func (im *Importer) Sync(ctx context.Context) (Result, error) {
	var res Result
	disk := make(map[string]struct{})

	err := filepath.WalkDir(im.dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		rel, ok := im.rel(p)
		if !ok {
			return nil
		}
		if hidden(rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}

		disk[rel] = struct{}{}
		uploaded, err := im.importFile(ctx, rel)
		switch {
		case err != nil:
			res.Failed++
			im.log.Warn("sync: import failed", slog.String("path", rel), slog.String("error", err.Error()))
		case uploaded:
			res.Uploaded++
		default:
			res.Unchanged++
		}
		return nil
	})
	if err != nil {
		return res, err
	}

	records, err := im.state.All()
	if err != nil {
		return res, err
	}
	for p := range records {
		if _, ok := disk[p]; ok {
			continue
		}
		if err := im.forget(ctx, p); err != nil {
			res.Failed++
			im.log.Warn("sync: remove failed", slog.String("path", p), slog.String("error", err.Error()))
			continue
		}
		res.Removed++
	}

	im.log.Info("sync: done",
		slog.Int("uploaded", res.Uploaded),
		slog.Int("unchanged", res.Unchanged),
		slog.Int("removed", res.Removed),
		slog.Int("failed", res.Failed))
	return res, nil
}
