package contents

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/starford/nbgirder/internal/apperr"
	"github.com/starford/nbgirder/internal/models"
	"github.com/starford/nbgirder/internal/notebook"
)

// Base names for NewUntitled.
const (
	UntitledNotebook  = "Untitled"
	UntitledFile      = "untitled"
	UntitledDirectory = "Untitled Folder"
)

var copyPattern = regexp.MustCompile(`-Copy\d*\.`)

// IncrementFilename returns the first name derived from filename that does not
// exist in dir: filename itself, then name<insert>1.ext, name<insert>2.ext and so on.
// Only the last extension of notebooks is split off; other names split at the
// first dot so "a.tar.gz" becomes "a1.tar.gz".
func (m *Manager) IncrementFilename(ctx context.Context, filename, dir, insert string) (string, error) {
	dir = strings.Trim(dir, "/")
	base, suffix := splitExt(filename)
	for i := 0; ; i++ {
		name := base + suffix
		if i > 0 {
			name = fmt.Sprintf("%s%s%d%s", base, insert, i, suffix)
		}
		exists, err := m.Exists(ctx, joinPath(dir, name))
		if err != nil {
			return "", err
		}
		if !exists {
			return name, nil
		}
	}
}

func splitExt(filename string) (string, string) {
	if i := strings.LastIndex(filename, "."); i >= 0 && filename[i+1:] == "ipynb" {
		return filename[:i], filename[i:]
	}
	if i := strings.Index(filename, "."); i >= 0 {
		return filename[:i], filename[i:]
	}
	return filename, ""
}

// NewUntitled creates an untitled file, notebook or directory in dir. typ may be
// empty, in which case ext ".ipynb" selects a notebook and anything else a file.
func (m *Manager) NewUntitled(ctx context.Context, dir, typ, ext string) (*models.Model, error) {
	dir = strings.Trim(dir, "/")
	ok, err := m.DirExists(ctx, dir)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.New(apperr.ErrNotFound, "No such directory: %s", dir)
	}

	if typ == "" {
		typ = models.TypeFile
		if ext == ".ipynb" {
			typ = models.TypeNotebook
		}
	}

	var untitled, insert string
	switch typ {
	case models.TypeDirectory:
		untitled, insert = UntitledDirectory, " "
	case models.TypeNotebook:
		untitled, ext = UntitledNotebook, ".ipynb"
	case models.TypeFile:
		untitled = UntitledFile
	default:
		return nil, apperr.New(apperr.ErrBadRequest, "Unexpected model type: %q", typ)
	}

	name, err := m.IncrementFilename(ctx, untitled+ext, dir, insert)
	if err != nil {
		return nil, err
	}
	return m.New(ctx, &models.Model{Type: typ}, joinPath(dir, name))
}

// New creates a new empty file, notebook or directory at path. Missing fields of
// model are filled in from the path: ".ipynb" paths become notebooks.
func (m *Manager) New(ctx context.Context, model *models.Model, path string) (*models.Model, error) {
	path = strings.Trim(path, "/")
	if model == nil {
		model = &models.Model{}
	}
	if model.Type == "" {
		model.Type = models.TypeFile
		if strings.HasSuffix(path, ".ipynb") {
			model.Type = models.TypeNotebook
		}
	}
	if model.Content == nil && model.Type != models.TypeDirectory {
		if model.Type == models.TypeNotebook {
			model.Content = notebook.New()
			model.SetFormat(models.FormatJSON)
		} else {
			model.Content = ""
			model.SetFormat(models.FormatText)
			model.Type = models.TypeFile
		}
	}
	return m.Save(ctx, model, path)
}

// Copy duplicates the file at fromPath. toPath may name a directory, in which case
// the copy gets a fresh "-Copy" name there, or the destination file itself. An
// empty toPath copies into the source's directory.
func (m *Manager) Copy(ctx context.Context, fromPath, toPath string) (*models.Model, error) {
	fromPath, toPath = strings.Trim(fromPath, "/"), strings.Trim(toPath, "/")
	fromDir, fromName := parentDir(fromPath), lastSegment(fromPath)

	model, err := m.Get(ctx, fromPath, GetOptions{Content: true})
	if err != nil {
		return nil, err
	}
	if model.Type == models.TypeDirectory {
		return nil, apperr.New(apperr.ErrBadRequest, "Can't copy directories")
	}

	if toPath == "" {
		toPath = fromDir
	}
	isDir, err := m.DirExists(ctx, toPath)
	if err != nil {
		return nil, err
	}
	if isDir {
		name := copyPattern.ReplaceAllString(fromName, ".")
		toName, err := m.IncrementFilename(ctx, name, toPath, "-Copy")
		if err != nil {
			return nil, err
		}
		toPath = joinPath(toPath, toName)
	}

	model.Name, model.Path = "", ""
	return m.Save(ctx, model, toPath)
}
