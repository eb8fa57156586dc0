package contents

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/starford/nbgirder/internal/apperr"
	"github.com/starford/nbgirder/internal/girder"
	"github.com/starford/nbgirder/internal/models"
	"github.com/starford/nbgirder/internal/notebook"
)

// GetOptions controls what Get returns.
type GetOptions struct {
	Content bool
	// Type is the expected model type; empty infers it from the resource.
	Type string
	// Format is the encoding for file content: text, base64 or empty to try text
	// and fall back to base64.
	Format string
}

// Get builds the content model for path.
func (m *Manager) Get(ctx context.Context, path string, opts GetOptions) (*models.Model, error) {
	path = strings.Trim(path, "/")
	r, err := m.Resolve(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", path, err)
	}
	return m.get(ctx, path, r, opts)
}

func (m *Manager) get(ctx context.Context, path string, r *girder.Resource, opts GetOptions) (*models.Model, error) {
	gpath := m.girderPath(path)
	if r == nil || !knownKind(r.Kind) {
		return nil, apperr.New(apperr.ErrNotFound, "No such file or directory: %s", gpath)
	}

	switch {
	case opts.Type == models.TypeNotebook || (opts.Type == "" && strings.HasSuffix(path, ".ipynb")):
		if r.IsContainer() {
			if opts.Type != "" {
				return nil, apperr.New(apperr.ErrBadType, "%s is a directory, not a %s", gpath, opts.Type)
			}
			return m.dirModel(ctx, path, r, opts.Content, opts.Format)
		}
		if r.Kind == girder.KindItem {
			file, err := m.fileByName(ctx, r.ID, lastSegment(path))
			if err != nil {
				return nil, err
			}
			if file == nil {
				// An item without a same-named file is listed like any other item.
				if opts.Type == "" {
					return m.itemModel(ctx, path, r, opts.Content, opts.Format)
				}
				return nil, apperr.New(apperr.ErrNotFound, "No such file or directory: %s", gpath)
			}
			r = file
		}
		return m.notebookModel(ctx, path, r, opts.Content)
	case r.IsContainer():
		if opts.Type != "" && opts.Type != models.TypeDirectory {
			return nil, apperr.New(apperr.ErrBadType, "%s is a directory, not a %s", gpath, opts.Type)
		}
		return m.dirModel(ctx, path, r, opts.Content, opts.Format)
	case r.Kind == girder.KindItem:
		if opts.Type != "" && opts.Type != models.TypeFile && opts.Type != models.TypeNotebook {
			return nil, apperr.New(apperr.ErrBadType, "%s is a file, not a %s", gpath, opts.Type)
		}
		return m.itemModel(ctx, path, r, opts.Content, opts.Format)
	default:
		if opts.Type == models.TypeDirectory {
			return nil, apperr.New(apperr.ErrBadType, "%s is not a directory", gpath)
		}
		return m.fileModel(ctx, path, r, opts.Content, opts.Format)
	}
}

func knownKind(k girder.Kind) bool {
	switch k {
	case girder.KindUser, girder.KindCollection, girder.KindFolder, girder.KindItem, girder.KindFile:
		return true
	}
	return false
}

func (m *Manager) baseModel(ctx context.Context, path string, r *girder.Resource) (*models.Model, error) {
	w, err := m.writable(ctx, r)
	if err != nil {
		return nil, err
	}
	return &models.Model{
		Name:         r.DisplayName(),
		Path:         path,
		Created:      r.Created.Time,
		LastModified: r.ModifiedAt(),
		Writable:     w,
	}, nil
}

func (m *Manager) dirModel(ctx context.Context, path string, r *girder.Resource, content bool, format string) (*models.Model, error) {
	model, err := m.baseModel(ctx, path, r)
	if err != nil {
		return nil, err
	}
	model.Type = models.TypeDirectory
	if !content {
		return model, nil
	}

	children, err := m.listChildren(ctx, r)
	if err != nil {
		return nil, err
	}
	listing := make([]models.Model, 0, len(children))
	for i := range children {
		c := &children[i]
		name := c.DisplayName()
		if strings.HasPrefix(name, ".") {
			continue
		}
		child, err := m.get(ctx, joinPath(path, name), c, GetOptions{Format: format})
		if errors.Is(err, apperr.ErrNotFound) {
			m.log.Debug("skipping unreadable entry", slog.String("path", joinPath(path, name)), slog.String("error", err.Error()))
			continue
		}
		if err != nil {
			return nil, err
		}
		listing = append(listing, *child)
	}
	model.Content = listing
	model.SetFormat(models.FormatJSON)
	return model, nil
}

// itemModel treats an item holding exactly one file named like the path as that
// file. Any other item is a read-only directory of its files.
func (m *Manager) itemModel(ctx context.Context, path string, item *girder.Resource, content bool, format string) (*models.Model, error) {
	files, err := m.client.ListFiles(ctx, item.ID)
	if err != nil {
		return nil, fmt.Errorf("list files of %s: %w", item.ID, err)
	}
	name := lastSegment(path)
	if len(files) == 1 && files[0].Name == name {
		return m.fileModel(ctx, path, &files[0], content, format)
	}

	model, err := m.baseModel(ctx, path, item)
	if err != nil {
		return nil, err
	}
	model.Writable = false
	model.Type = models.TypeDirectory
	if !content {
		return model, nil
	}
	listing := make([]models.Model, 0, len(files))
	for i := range files {
		child, err := m.get(ctx, joinPath(path, files[i].Name), &files[i], GetOptions{Format: format})
		if err != nil {
			return nil, err
		}
		listing = append(listing, *child)
	}
	model.Content = listing
	model.SetFormat(models.FormatJSON)
	return model, nil
}

func (m *Manager) fileModel(ctx context.Context, path string, file *girder.Resource, content bool, format string) (*models.Model, error) {
	model, err := m.baseModel(ctx, path, file)
	if err != nil {
		return nil, err
	}
	model.Type = models.TypeFile
	model.SetMimetype(file.MimeType)
	size := file.Size
	model.Size = &size
	if !content {
		return model, nil
	}

	data, err := m.download(ctx, file.ID)
	if err != nil {
		return nil, err
	}
	switch format {
	case models.FormatText:
		if !utf8.Valid(data) {
			return nil, apperr.New(apperr.ErrBadFormat, "%s is not UTF-8 encoded", m.girderPath(path))
		}
		model.Content = string(data)
	case models.FormatBase64:
		model.Content = base64.StdEncoding.EncodeToString(data)
	default:
		if utf8.Valid(data) {
			model.Content = string(data)
			format = models.FormatText
		} else {
			model.Content = base64.StdEncoding.EncodeToString(data)
			format = models.FormatBase64
		}
	}
	model.SetFormat(format)
	return model, nil
}

// notebookModel reads the notebook stored in file r.
func (m *Manager) notebookModel(ctx context.Context, path string, r *girder.Resource, content bool) (*models.Model, error) {
	model, err := m.baseModel(ctx, path, r)
	if err != nil {
		return nil, err
	}
	model.Type = models.TypeNotebook
	size := r.Size
	model.Size = &size
	if !content {
		return model, nil
	}

	data, err := m.download(ctx, r.ID)
	if err != nil {
		return nil, err
	}
	nb, err := notebook.Parse(data)
	if err != nil {
		return nil, apperr.New(apperr.ErrBadFormat, "Unreadable Notebook: %s %v", m.girderPath(path), err)
	}
	model.Content = nb
	model.SetFormat(models.FormatJSON)
	if verr := notebook.Validate(nb); verr != nil {
		msg := verr.Error()
		model.Message = &msg
	}
	return model, nil
}

func (m *Manager) download(ctx context.Context, fileID string) ([]byte, error) {
	rc, err := m.client.Download(ctx, fileID)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", fileID, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", fileID, err)
	}
	return data, nil
}
