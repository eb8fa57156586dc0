// Package importer copies a local directory tree into the contents store and
// keeps it there, either once (Sync) or continuously (Watch).
package importer

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/starford/nbgirder/internal/apperr"
	"github.com/starford/nbgirder/internal/checksum"
	"github.com/starford/nbgirder/internal/models"
	"github.com/starford/nbgirder/internal/notebook"
	"github.com/starford/nbgirder/internal/syncstate"
)

// Event kinds passed to an EventCallback.
const (
	Created = "created"
	Updated = "updated"
	Deleted = "deleted"
)

// EventCallback is called after an import changes the remote tree. path is the
// remote contents path.
type EventCallback func(kind, path string)

// Contents is the part of the contents manager the importer writes through.
type Contents interface {
	Save(ctx context.Context, model *models.Model, path string) (*models.Model, error)
	Delete(ctx context.Context, path string) error
}

// Importer mirrors Dir into Target.
type Importer struct {
	store  Contents
	state  syncstate.State
	dir    string
	target string
	log    *slog.Logger
	cb     EventCallback
}

// Options configures an Importer.
type Options struct {
	// Dir is the local directory to import.
	Dir string
	// Target is the contents directory files land in; empty means the root.
	Target string
	Logger *slog.Logger
	// OnChange, if set, is called after every remote change.
	OnChange EventCallback
}

// New creates an Importer.
func New(store Contents, state syncstate.State, opts Options) (*Importer, error) {
	if opts.Dir == "" {
		return nil, fmt.Errorf("importer: dir is required")
	}
	abs, err := filepath.Abs(opts.Dir)
	if err != nil {
		return nil, fmt.Errorf("importer: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("importer: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("importer: %s is not a directory", abs)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Importer{
		store:  store,
		state:  state,
		dir:    abs,
		target: strings.Trim(opts.Target, "/"),
		log:    logger,
		cb:     opts.OnChange,
	}, nil
}

func (im *Importer) notify(kind, remote string) {
	if im.cb != nil {
		im.cb(kind, remote)
	}
}

// remotePath maps a slash-separated local relative path into the target.
func (im *Importer) remotePath(rel string) string {
	if im.target == "" {
		return rel
	}
	return im.target + "/" + rel
}

// rel converts an absolute local path to a slash-separated path under Dir.
func (im *Importer) rel(abs string) (string, bool) {
	r, err := filepath.Rel(im.dir, abs)
	if err != nil || r == "." || strings.HasPrefix(r, "..") {
		return "", false
	}
	return filepath.ToSlash(r), true
}

// hidden reports whether any segment of a relative path starts with a dot.
func hidden(rel string) bool {
	for _, seg := range strings.Split(rel, "/") {
		if strings.HasPrefix(seg, ".") {
			return true
		}
	}
	return false
}

// importFile uploads one file when its checksum differs from the recorded one.
// It reports whether anything was uploaded.
func (im *Importer) importFile(ctx context.Context, rel string) (bool, error) {
	data, err := os.ReadFile(filepath.Join(im.dir, filepath.FromSlash(rel)))
	if err != nil {
		return false, err
	}
	sum := checksum.Sum(data)
	prev, err := im.state.Get(rel)
	if err != nil {
		return false, err
	}
	if prev != nil && prev.Checksum == sum {
		return false, nil
	}

	remote := im.remotePath(rel)
	saved, err := im.store.Save(ctx, im.model(rel, data), remote)
	if err != nil {
		return false, err
	}
	if saved.Message != nil {
		im.log.Warn("import: notebook saved with validation problems",
			slog.String("path", remote), slog.String("message", *saved.Message))
	}
	if err := im.state.Upsert(syncstate.Record{Path: rel, Checksum: sum, RemotePath: remote}); err != nil {
		return true, err
	}
	kind := Created
	if prev != nil {
		kind = Updated
	}
	im.log.Debug("import: uploaded", slog.String("path", rel), slog.String("remote", remote), slog.String("op", kind))
	im.notify(kind, remote)
	return true, nil
}

// model picks the representation for local bytes: notebooks that parse are sent
// as notebooks, UTF-8 as text and everything else as base64.
func (im *Importer) model(rel string, data []byte) *models.Model {
	if path.Ext(rel) == ".ipynb" {
		nb, err := notebook.Parse(data)
		if err == nil {
			m := &models.Model{Type: models.TypeNotebook, Content: nb}
			m.SetFormat(models.FormatJSON)
			return m
		}
		im.log.Warn("import: not a notebook, storing as file", slog.String("path", rel), slog.String("error", err.Error()))
	}
	if utf8.Valid(data) {
		m := &models.Model{Type: models.TypeFile, Content: string(data)}
		m.SetFormat(models.FormatText)
		return m
	}
	m := &models.Model{Type: models.TypeFile, Content: base64.StdEncoding.EncodeToString(data)}
	m.SetFormat(models.FormatBase64)
	return m
}

// forget deletes the remote copy of a local file and its record. A remote copy
// that is already gone is not an error.
func (im *Importer) forget(ctx context.Context, rel string) error {
	rec, err := im.state.Get(rel)
	if err != nil {
		return err
	}
	if rec == nil {
		return nil
	}
	if err := im.store.Delete(ctx, rec.RemotePath); err != nil && !errors.Is(err, apperr.ErrNotFound) {
		return err
	}
	if err := im.state.Delete(rel); err != nil {
		return err
	}
	im.log.Debug("import: removed", slog.String("path", rel), slog.String("remote", rec.RemotePath))
	im.notify(Deleted, rec.RemotePath)
	return nil
}

// forgetDir forgets every recorded file under the relative directory dir.
func (im *Importer) forgetDir(ctx context.Context, dir string) {
	records, err := im.state.All()
	if err != nil {
		im.log.Warn("import: list state failed", slog.String("error", err.Error()))
		return
	}
	prefix := dir + "/"
	for p := range records {
		if p == dir || strings.HasPrefix(p, prefix) {
			if err := im.forget(ctx, p); err != nil {
				im.log.Warn("import: remove failed", slog.String("path", p), slog.String("error", err.Error()))
			}
		}
	}
}
