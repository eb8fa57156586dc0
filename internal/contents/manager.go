// Package contents maps notebook-server content operations onto a Girder resource
// hierarchy. Virtual paths are resolved below a configured root by repeated
// child-name lookups; folders, users and collections become directories, items and
// files become files.
package contents

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/starford/nbgirder/internal/apperr"
	"github.com/starford/nbgirder/internal/girder"
)

// DefaultRoot places content in the authenticated user's home.
const DefaultRoot = "user/{login}"

// Client is the subset of the Girder API the manager needs.
type Client interface {
	Me(ctx context.Context) (*girder.Resource, error)
	Lookup(ctx context.Context, path string) (*girder.Resource, error)
	GetFolder(ctx context.Context, id string) (*girder.Resource, error)
	GetItem(ctx context.Context, id string) (*girder.Resource, error)
	ListFolders(ctx context.Context, parentID string, parentType girder.Kind, name string) ([]girder.Resource, error)
	ListItems(ctx context.Context, folderID, name string) ([]girder.Resource, error)
	ListFiles(ctx context.Context, itemID string) ([]girder.Resource, error)
	CreateFolder(ctx context.Context, parentID string, parentType girder.Kind, name string) (*girder.Resource, error)
	CreateItem(ctx context.Context, folderID, name string) (*girder.Resource, error)
	UploadFile(ctx context.Context, itemID, name, mimeType string, content io.Reader, size int64) (*girder.Resource, error)
	UploadFileContents(ctx context.Context, fileID string, content io.Reader, size int64) (*girder.Resource, error)
	Download(ctx context.Context, fileID string) (io.ReadCloser, error)
	Delete(ctx context.Context, kind girder.Kind, id string) error
	Rename(ctx context.Context, kind girder.Kind, id, name string) (*girder.Resource, error)
}

// Options configures a Manager.
type Options struct {
	// Root is the Girder path virtual paths are resolved under. "{login}" is
	// replaced with the authenticated user's login. Defaults to DefaultRoot.
	Root string
	// AllowNonEmptyDelete lets Delete remove folders that still have children.
	AllowNonEmptyDelete bool
	Logger              *slog.Logger
}

// Manager implements the contents operations. It holds no mutable state after
// construction and is safe for concurrent use.
type Manager struct {
	client              Client
	root                string
	allowNonEmptyDelete bool
	log                 *slog.Logger
}

// New renders the root template and returns a ready Manager.
func New(ctx context.Context, client Client, opts Options) (*Manager, error) {
	root := opts.Root
	if root == "" {
		root = DefaultRoot
	}
	if strings.Contains(root, "{login}") {
		me, err := client.Me(ctx)
		if err != nil {
			return nil, fmt.Errorf("resolve root %q: %w", root, err)
		}
		root = strings.ReplaceAll(root, "{login}", me.Login)
	}
	root = strings.Trim(root, "/")
	if len(strings.Split(root, "/")) < 2 {
		return nil, fmt.Errorf("root %q must name a user or collection, e.g. user/<login>", root)
	}

	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		client:              client,
		root:                root,
		allowNonEmptyDelete: opts.AllowNonEmptyDelete,
		log:                 log,
	}, nil
}

// Root returns the rendered Girder root path.
func (m *Manager) Root() string {
	return m.root
}

func (m *Manager) girderPath(path string) string {
	return strings.TrimRight(m.root+"/"+path, "/")
}

// Resolve maps a virtual path to the Girder resource it names, or nil when the
// path does not exist.
func (m *Manager) Resolve(ctx context.Context, path string) (*girder.Resource, error) {
	return m.resolveGirder(ctx, m.girderPath(strings.Trim(path, "/")))
}

func (m *Manager) resolveGirder(ctx context.Context, gpath string) (*girder.Resource, error) {
	parts := strings.Split(gpath, "/")
	if len(parts) < 2 {
		return nil, nil
	}
	cur, err := m.client.Lookup(ctx, strings.Join(parts[:2], "/"))
	if err != nil || cur == nil {
		return nil, err
	}
	for _, seg := range parts[2:] {
		if seg == "" {
			return nil, nil
		}
		if cur, err = m.child(ctx, cur, seg); err != nil || cur == nil {
			return nil, err
		}
	}
	return cur, nil
}

// child looks up one named child: folders first, then items for folder parents,
// then files for item parents.
func (m *Manager) child(ctx context.Context, parent *girder.Resource, name string) (*girder.Resource, error) {
	switch parent.Kind {
	case girder.KindUser, girder.KindCollection, girder.KindFolder:
		folders, err := m.client.ListFolders(ctx, parent.ID, parent.Kind, name)
		if err != nil {
			return nil, absentOr(err)
		}
		if len(folders) > 0 {
			return &folders[0], nil
		}
		if parent.Kind != girder.KindFolder {
			return nil, nil
		}
		items, err := m.client.ListItems(ctx, parent.ID, name)
		if err != nil {
			return nil, absentOr(err)
		}
		if len(items) > 0 {
			return &items[0], nil
		}
	case girder.KindItem:
		return m.fileByName(ctx, parent.ID, name)
	}
	return nil, nil
}

func (m *Manager) fileByName(ctx context.Context, itemID, name string) (*girder.Resource, error) {
	files, err := m.client.ListFiles(ctx, itemID)
	if err != nil {
		return nil, absentOr(err)
	}
	for i := range files {
		if files[i].Name == name {
			return &files[i], nil
		}
	}
	return nil, nil
}

// listChildren returns the items (folder parents only) followed by the folders
// directly under r.
func (m *Manager) listChildren(ctx context.Context, r *girder.Resource) ([]girder.Resource, error) {
	var out []girder.Resource
	if r.Kind == girder.KindFolder {
		items, err := m.client.ListItems(ctx, r.ID, "")
		if err != nil {
			return nil, fmt.Errorf("list items of %s: %w", r.ID, err)
		}
		out = append(out, items...)
	}
	folders, err := m.client.ListFolders(ctx, r.ID, r.Kind, "")
	if err != nil {
		return nil, fmt.Errorf("list folders of %s: %w", r.ID, err)
	}
	return append(out, folders...), nil
}

// writable reports whether the session may modify r. Items and files inherit the
// access of their containing folder.
func (m *Manager) writable(ctx context.Context, r *girder.Resource) (bool, error) {
	switch r.Kind {
	case girder.KindUser, girder.KindCollection, girder.KindFolder:
		return r.AccessLevel >= girder.AccessWrite, nil
	case girder.KindItem:
		folder, err := m.client.GetFolder(ctx, r.FolderID)
		if err != nil {
			return false, fmt.Errorf("load folder of item %s: %w", r.ID, err)
		}
		return m.writable(ctx, folder)
	case girder.KindFile:
		item, err := m.client.GetItem(ctx, r.ItemID)
		if err != nil {
			return false, fmt.Errorf("load item of file %s: %w", r.ID, err)
		}
		return m.writable(ctx, item)
	}
	return false, apperr.New(apperr.ErrInternal, "Unexpected resource type: %s", r.Kind)
}

// DirExists reports whether path names a directory: a folder, user, collection or
// an item that is not a single-file container.
func (m *Manager) DirExists(ctx context.Context, path string) (bool, error) {
	path = strings.Trim(path, "/")
	r, err := m.Resolve(ctx, path)
	if err != nil || r == nil {
		return false, err
	}
	if r.IsContainer() {
		return true, nil
	}
	if r.Kind != girder.KindItem {
		return false, nil
	}
	single, err := m.singleFileItem(ctx, r, lastSegment(path))
	return !single, err
}

// FileExists reports whether path names a file: a file resource or an item holding
// a file with the same name.
func (m *Manager) FileExists(ctx context.Context, path string) (bool, error) {
	path = strings.Trim(path, "/")
	r, err := m.Resolve(ctx, path)
	if err != nil || r == nil {
		return false, err
	}
	switch r.Kind {
	case girder.KindFile:
		return true, nil
	case girder.KindItem:
		f, err := m.fileByName(ctx, r.ID, lastSegment(path))
		return f != nil, err
	}
	return false, nil
}

// Exists reports whether path names a file or a directory.
func (m *Manager) Exists(ctx context.Context, path string) (bool, error) {
	ok, err := m.FileExists(ctx, path)
	if err != nil || ok {
		return ok, err
	}
	return m.DirExists(ctx, path)
}

// IsHidden reports whether any segment of path starts with a dot.
func IsHidden(path string) bool {
	for _, seg := range strings.Split(strings.Trim(path, "/"), "/") {
		if strings.HasPrefix(seg, ".") {
			return true
		}
	}
	return false
}

func (m *Manager) singleFileItem(ctx context.Context, item *girder.Resource, name string) (bool, error) {
	files, err := m.client.ListFiles(ctx, item.ID)
	if err != nil {
		return false, err
	}
	return len(files) == 1 && files[0].Name == name, nil
}

// absentOr treats 400 and 404 answers during lookups as "no such child".
func absentOr(err error) error {
	if girder.IsNotFound(err) || girder.StatusOf(err) == 400 {
		return nil
	}
	return err
}

// remoteErr classifies a failed mutating call.
func remoteErr(err error, path string) error {
	if apperr.Classified(err) {
		return err
	}
	if girder.IsForbidden(err) {
		return apperr.New(apperr.ErrPermissionDenied, "Permission denied: %s", path)
	}
	return err
}

func lastSegment(path string) string {
	if i := strings.LastIndex(path, "/"); i >= 0 {
		return path[i+1:]
	}
	return path
}

func parentDir(path string) string {
	if i := strings.LastIndex(path, "/"); i >= 0 {
		return path[:i]
	}
	return ""
}

func joinPath(dir, name string) string {
	if dir == "" {
		return name
	}
	return dir + "/" + name
}
