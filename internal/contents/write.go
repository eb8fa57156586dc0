package contents

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/starford/nbgirder/internal/apperr"
	"github.com/starford/nbgirder/internal/girder"
	"github.com/starford/nbgirder/internal/models"
	"github.com/starford/nbgirder/internal/notebook"
)

const notebookMimetype = "application/json"

const homeOnlyFolders = "The Girder user's home location may only contain folders. " +
	"Create or navigate to another folder before creating or uploading a file."

// Save writes model to path, creating intermediate folders as needed, and returns
// the stored model without content.
func (m *Manager) Save(ctx context.Context, model *models.Model, path string) (*models.Model, error) {
	path = strings.Trim(path, "/")
	gpath := m.girderPath(path)

	if model.Type == "" {
		return nil, apperr.New(apperr.ErrBadRequest, "No file type provided")
	}
	if model.Content == nil && model.Type != models.TypeDirectory {
		return nil, apperr.New(apperr.ErrBadRequest, "No file content provided")
	}
	if IsHidden(path) {
		return nil, apperr.New(apperr.ErrBadRequest, "Hidden files and folders are not allowed.")
	}

	var message *string
	err := func() error {
		switch model.Type {
		case models.TypeNotebook:
			nb, err := notebook.FromContent(model.Content)
			if err != nil {
				return apperr.New(apperr.ErrBadRequest, "Unreadable Notebook: %s %v", path, err)
			}
			if verr := notebook.Validate(nb); verr != nil {
				msg := verr.Error()
				message = &msg
			}
			data, err := notebook.Encode(nb)
			if err != nil {
				return err
			}
			return m.upload(ctx, gpath, data, notebookMimetype)
		case models.TypeFile:
			data, err := decodeFileContent(model, path)
			if err != nil {
				return err
			}
			mt := model.MimetypeValue()
			if mt == "" {
				mt = mimetype.Detect(data).String()
			}
			return m.upload(ctx, gpath, data, mt)
		case models.TypeDirectory:
			_, err := m.createFolders(ctx, gpath)
			return err
		default:
			return apperr.New(apperr.ErrBadRequest, "Unhandled contents type: %s", model.Type)
		}
	}()
	if err != nil {
		if err = remoteErr(err, path); apperr.Classified(err) {
			return nil, err
		}
		m.log.Error("error while saving file", slog.String("path", path), slog.String("error", err.Error()))
		return nil, apperr.New(apperr.ErrInternal, "Unexpected error while saving file: %s %v", path, err)
	}

	saved, err := m.Get(ctx, path, GetOptions{})
	if err != nil {
		return nil, err
	}
	saved.Message = message
	return saved, nil
}

// decodeFileContent turns model content into bytes: text is taken as UTF-8, any
// other format as base64.
func decodeFileContent(model *models.Model, path string) ([]byte, error) {
	s, ok := model.Content.(string)
	if !ok {
		return nil, apperr.New(apperr.ErrBadRequest, "File content for %s must be a string", path)
	}
	if model.FormatValue() == models.FormatText {
		return []byte(s), nil
	}
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, apperr.New(apperr.ErrBadFormat, "%s content is not base64 encoded", path)
	}
	return data, nil
}

func (m *Manager) upload(ctx context.Context, gpath string, data []byte, mimeType string) error {
	dir, name := parentDir(gpath), lastSegment(gpath)
	parent, err := m.createFolders(ctx, dir)
	if err != nil {
		return err
	}

	var item *girder.Resource
	switch parent.Kind {
	case girder.KindUser, girder.KindCollection:
		return apperr.New(apperr.ErrBadRequest, homeOnlyFolders)
	case girder.KindItem:
		single, err := m.singleFileItem(ctx, parent, parent.Name)
		if err != nil {
			return fmt.Errorf("list files of %s: %w", parent.ID, err)
		}
		if single && name != parent.Name {
			return apperr.New(apperr.ErrPermissionDenied, "Permission denied: %s is a file", dir)
		}
		item = parent
	}

	ok, err := m.writable(ctx, parent)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.New(apperr.ErrPermissionDenied, "Permission denied: %s", gpath)
	}

	if item == nil {
		if item, err = m.client.CreateItem(ctx, parent.ID, name); err != nil {
			return fmt.Errorf("create item %s: %w", name, err)
		}
	}
	existing, err := m.fileByName(ctx, item.ID, name)
	if err != nil {
		return err
	}

	size := int64(len(data))
	if existing == nil {
		_, err = m.client.UploadFile(ctx, item.ID, name, mimeType, bytes.NewReader(data), size)
	} else {
		_, err = m.client.UploadFileContents(ctx, existing.ID, bytes.NewReader(data), size)
	}
	if err != nil {
		return fmt.Errorf("upload %s: %w", gpath, err)
	}
	return nil
}

// createFolders walks gpath from its two-segment base, creating every missing
// folder, and returns the last resource. Existing items along the way are reused
// but nothing may be created below one.
func (m *Manager) createFolders(ctx context.Context, gpath string) (*girder.Resource, error) {
	parts := strings.Split(gpath, "/")
	if len(parts) < 2 {
		return nil, apperr.New(apperr.ErrNotFound, "No such file or directory: %s", gpath)
	}
	cur, err := m.client.Lookup(ctx, strings.Join(parts[:2], "/"))
	if err != nil {
		return nil, err
	}
	if cur == nil {
		return nil, apperr.New(apperr.ErrNotFound, "No such file or directory: %s", gpath)
	}

	for _, seg := range parts[2:] {
		if cur.Kind == girder.KindItem {
			return nil, apperr.New(apperr.ErrPermissionDenied, "Permission denied: %s", seg)
		}
		next, err := m.child(ctx, cur, seg)
		if err != nil {
			return nil, err
		}
		if next == nil {
			ok, err := m.writable(ctx, cur)
			if err != nil {
				return nil, err
			}
			if !ok {
				return nil, apperr.New(apperr.ErrPermissionDenied, "Permission denied: %s", seg)
			}
			if next, err = m.client.CreateFolder(ctx, cur.ID, cur.Kind, seg); err != nil {
				return nil, fmt.Errorf("create folder %s: %w", seg, err)
			}
		}
		cur = next
	}
	return cur, nil
}

// DeleteFile removes the file or directory at path. Non-empty folders are refused
// unless allowNonEmpty is set. An item left without files, whichever path its last
// file was deleted through, is deleted too. An empty item is deleted by its own path.
func (m *Manager) DeleteFile(ctx context.Context, path string, allowNonEmpty bool) error {
	path = strings.Trim(path, "/")
	gpath := m.girderPath(path)
	r, err := m.Resolve(ctx, path)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", path, err)
	}
	if r == nil {
		return apperr.New(apperr.ErrNotFound, "Path does not exist: %s", gpath)
	}

	switch r.Kind {
	case girder.KindFolder:
		children, err := m.listChildren(ctx, r)
		if err != nil {
			return err
		}
		if !allowNonEmpty && len(children) > 0 {
			return apperr.New(apperr.ErrNotEmpty, "Directory %s not empty", gpath)
		}
		if err := m.client.Delete(ctx, girder.KindFolder, r.ID); err != nil {
			return remoteErr(fmt.Errorf("delete folder %s: %w", gpath, err), path)
		}
	case girder.KindItem:
		files, err := m.client.ListFiles(ctx, r.ID)
		if err != nil {
			return fmt.Errorf("list files of %s: %w", r.ID, err)
		}
		if len(files) == 0 {
			if err := m.client.Delete(ctx, girder.KindItem, r.ID); err != nil {
				return remoteErr(fmt.Errorf("delete item %s: %w", gpath, err), path)
			}
			return nil
		}
		name := lastSegment(path)
		deleted := false
		for _, f := range files {
			if f.Name != name {
				continue
			}
			if err := m.client.Delete(ctx, girder.KindFile, f.ID); err != nil {
				return remoteErr(fmt.Errorf("delete file %s: %w", gpath, err), path)
			}
			deleted = true
		}
		if !deleted {
			return apperr.New(apperr.ErrNotFound, "File does not exist: %s", gpath)
		}
		if len(files) == 1 {
			if err := m.client.Delete(ctx, girder.KindItem, r.ID); err != nil {
				return remoteErr(fmt.Errorf("delete item %s: %w", gpath, err), path)
			}
		}
	case girder.KindFile:
		if err := m.client.Delete(ctx, girder.KindFile, r.ID); err != nil {
			return remoteErr(fmt.Errorf("delete file %s: %w", gpath, err), path)
		}
		rest, err := m.client.ListFiles(ctx, r.ItemID)
		if err != nil {
			return fmt.Errorf("list files of %s: %w", r.ItemID, err)
		}
		if len(rest) == 0 {
			if err := m.client.Delete(ctx, girder.KindItem, r.ItemID); err != nil {
				return remoteErr(fmt.Errorf("delete item of %s: %w", gpath, err), path)
			}
		}
	default:
		return apperr.New(apperr.ErrPermissionDenied, "Permission denied: %s", gpath)
	}
	return nil
}

// Delete removes path, honouring the configured non-empty folder policy.
func (m *Manager) Delete(ctx context.Context, path string) error {
	return m.DeleteFile(ctx, path, m.allowNonEmptyDelete)
}

// Rename gives the resource at oldPath the last segment of newPath. Both paths must
// share a parent directory.
func (m *Manager) Rename(ctx context.Context, oldPath, newPath string) (*models.Model, error) {
	oldPath, newPath = strings.Trim(oldPath, "/"), strings.Trim(newPath, "/")
	if IsHidden(newPath) {
		return nil, apperr.New(apperr.ErrBadRequest, "Hidden files and folders are not allowed.")
	}

	r, err := m.Resolve(ctx, oldPath)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", oldPath, err)
	}
	if r == nil {
		return nil, apperr.New(apperr.ErrNotFound, "Path does not exist: %s", m.girderPath(oldPath))
	}
	existing, err := m.Resolve(ctx, newPath)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", newPath, err)
	}
	if existing != nil {
		return nil, apperr.New(apperr.ErrConflict, "File already exists: %s", newPath)
	}
	if parentDir(oldPath) != parentDir(newPath) {
		return nil, apperr.New(apperr.ErrBadRequest, "Cannot move %s to %s: only renaming within a directory is supported", oldPath, newPath)
	}

	name := lastSegment(newPath)
	switch r.Kind {
	case girder.KindFolder, girder.KindFile:
		if _, err := m.client.Rename(ctx, r.Kind, r.ID, name); err != nil {
			return nil, remoteErr(fmt.Errorf("rename %s: %w", oldPath, err), oldPath)
		}
	case girder.KindItem:
		files, err := m.client.ListFiles(ctx, r.ID)
		if err != nil {
			return nil, fmt.Errorf("list files of %s: %w", r.ID, err)
		}
		if _, err := m.client.Rename(ctx, girder.KindItem, r.ID, name); err != nil {
			return nil, remoteErr(fmt.Errorf("rename %s: %w", oldPath, err), oldPath)
		}
		if len(files) == 1 && files[0].Name == r.Name {
			if _, err := m.client.Rename(ctx, girder.KindFile, files[0].ID, name); err != nil {
				return nil, remoteErr(fmt.Errorf("rename file of %s: %w", oldPath, err), oldPath)
			}
		}
	default:
		return nil, apperr.New(apperr.ErrPermissionDenied, "Permission denied: %s", m.girderPath(oldPath))
	}
	return m.Get(ctx, newPath, GetOptions{})
}
