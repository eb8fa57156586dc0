package contents

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"testing"

	"github.com/starford/nbgirder/internal/apperr"
	"github.com/starford/nbgirder/internal/girder"
	"github.com/starford/nbgirder/internal/models"
	"github.com/starford/nbgirder/internal/notebook"
	"github.com/starford/nbgirder/internal/testutil"
)

// testManager returns a manager rooted at the fake user's Private folder.
func testManager(t *testing.T) (*Manager, *testutil.FakeGirder) {
	t.Helper()
	fake := testutil.NewFakeGirder(t)
	return managerAt(t, fake, "user/{login}/Private"), fake
}

func managerAt(t *testing.T, fake *testutil.FakeGirder, root string) *Manager {
	t.Helper()
	ctx := context.Background()
	client, err := girder.New(ctx, girder.Config{APIURL: fake.URL(), APIKey: fake.APIKey})
	if err != nil {
		t.Fatalf("girder.New: %v", err)
	}
	m, err := New(ctx, client, Options{Root: root, AllowNonEmptyDelete: true})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return m
}

func privateID(t *testing.T, fake *testutil.FakeGirder) string {
	t.Helper()
	n, ok := fake.Find("user/jdoe/Private")
	if !ok {
		t.Fatal("Private folder missing")
	}
	return n.ID
}

func saveText(t *testing.T, m *Manager, path, text string) *models.Model {
	t.Helper()
	model := &models.Model{Type: models.TypeFile, Content: text}
	model.SetFormat(models.FormatText)
	saved, err := m.Save(context.Background(), model, path)
	if err != nil {
		t.Fatalf("Save(%s): %v", path, err)
	}
	return saved
}

func TestNewRendersLogin(t *testing.T) {
	m, _ := testManager(t)
	if m.Root() != "user/jdoe/Private" {
		t.Fatalf("root = %q", m.Root())
	}
}

func TestNewRejectsShortRoot(t *testing.T) {
	fake := testutil.NewFakeGirder(t)
	client, _ := girder.New(context.Background(), girder.Config{APIURL: fake.URL(), Token: fake.Token})
	if _, err := New(context.Background(), client, Options{Root: "user"}); err == nil {
		t.Fatal("expected error for a one-segment root")
	}
}

func TestNewWithoutLoginSkipsIdentity(t *testing.T) {
	fake := testutil.NewFakeGirder(t)
	client, _ := girder.New(context.Background(), girder.Config{APIURL: fake.URL()})
	m, err := New(context.Background(), client, Options{Root: "/collection/shared/"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if m.Root() != "collection/shared" {
		t.Fatalf("root = %q", m.Root())
	}
	if fake.Hits() != 0 {
		t.Fatalf("expected no requests, got %d", fake.Hits())
	}
}

func TestNestedWriteCreatesFolders(t *testing.T) {
	m, fake := testManager(t)
	ctx := context.Background()

	saved := saveText(t, m, "a/b/c.txt", "hello")
	if saved.Type != models.TypeFile || saved.Content != nil || saved.Path != "a/b/c.txt" {
		t.Fatalf("saved = %+v", saved)
	}

	for _, p := range []string{"user/jdoe/Private/a", "user/jdoe/Private/a/b"} {
		n, ok := fake.Find(p)
		if !ok || n.Kind != "folder" {
			t.Fatalf("%s: found=%v kind=%q", p, ok, n.Kind)
		}
	}

	got, err := m.Get(ctx, "a/b/c.txt", GetOptions{Content: true, Format: models.FormatText})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Type != models.TypeFile || got.Content != "hello" || got.FormatValue() != models.FormatText {
		t.Fatalf("got = %+v", got)
	}
	if got.Name != "c.txt" || !got.Writable {
		t.Fatalf("name=%q writable=%v", got.Name, got.Writable)
	}
}

func TestTextRoundTrip(t *testing.T) {
	m, _ := testManager(t)
	ctx := context.Background()

	for _, text := range []string{"plain", "", "ünïcödé ✓\nsecond line\n", "{\"json\": true}"} {
		saveText(t, m, "round.txt", text)
		got, err := m.Get(ctx, "round.txt", GetOptions{Content: true, Format: models.FormatText})
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got.Content != text {
			t.Errorf("content = %q, want %q", got.Content, text)
		}
	}
}

func TestExistsChecks(t *testing.T) {
	m, fake := testManager(t)
	ctx := context.Background()
	fake.AddFolder(privateID(t, fake), "data")
	saveText(t, m, "data/x.txt", "x")

	dir, _ := m.DirExists(ctx, "data")
	file, _ := m.FileExists(ctx, "data")
	if !dir || file {
		t.Errorf("folder: dir=%v file=%v", dir, file)
	}

	dir, _ = m.DirExists(ctx, "data/x.txt")
	file, _ = m.FileExists(ctx, "data/x.txt")
	if dir || !file {
		t.Errorf("file: dir=%v file=%v", dir, file)
	}

	dir, _ = m.DirExists(ctx, "")
	if !dir {
		t.Error("root should be a directory")
	}

	ok, err := m.Exists(ctx, "nope/missing.txt")
	if err != nil || ok {
		t.Errorf("missing: exists=%v err=%v", ok, err)
	}
}

func TestIsHidden(t *testing.T) {
	if !IsHidden("a/.git/config") || !IsHidden(".env") {
		t.Error("expected hidden")
	}
	if IsHidden("a/b.txt") || IsHidden("") {
		t.Error("expected visible")
	}
}

func TestNotebookRoundTrip(t *testing.T) {
	m, fake := testManager(t)
	ctx := context.Background()

	nb := notebook.New()
	nb["cells"] = []any{map[string]any{
		"cell_type": "markdown",
		"metadata":  map[string]any{},
		"source":    "# Title",
	}}
	saved, err := m.Save(ctx, &models.Model{Type: models.TypeNotebook, Content: map[string]any(nb)}, "nb.ipynb")
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if saved.Type != models.TypeNotebook || saved.Message != nil {
		t.Fatalf("saved = %+v", saved)
	}

	stored, ok := fake.Find("user/jdoe/Private/nb.ipynb/nb.ipynb")
	if !ok || stored.MimeType != "application/json" {
		t.Fatalf("stored file = %+v", stored)
	}
	if !strings.HasPrefix(string(stored.Data), "{\n \"cells\"") {
		t.Errorf("stored layout = %q", stored.Data)
	}

	got, err := m.Get(ctx, "nb.ipynb", GetOptions{Content: true})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Type != models.TypeNotebook || got.FormatValue() != models.FormatJSON {
		t.Fatalf("got = %+v", got)
	}
	content, ok := got.Content.(notebook.Notebook)
	if !ok {
		t.Fatalf("content type = %T", got.Content)
	}
	if cells := content["cells"].([]any); len(cells) != 1 {
		t.Fatalf("cells = %v", cells)
	}
	if got.Message != nil {
		t.Errorf("unexpected validation message %q", *got.Message)
	}
}

func TestNotebookValidationMessage(t *testing.T) {
	m, _ := testManager(t)
	nb := notebook.New()
	nb["nbformat"] = 3
	saved, err := m.Save(context.Background(), &models.Model{Type: models.TypeNotebook, Content: nb}, "old.ipynb")
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if saved.Message == nil || !strings.Contains(*saved.Message, "nbformat") {
		t.Fatalf("message = %v", saved.Message)
	}
}

func TestUnreadableNotebook(t *testing.T) {
	m, fake := testManager(t)
	fake.AddItemWithFile(privateID(t, fake), "bad.ipynb", "application/json", []byte("not json"))

	_, err := m.Get(context.Background(), "bad.ipynb", GetOptions{Content: true})
	if !errors.Is(err, apperr.ErrBadFormat) {
		t.Fatalf("err = %v, want bad format", err)
	}
	if !strings.Contains(err.Error(), "Unreadable Notebook") {
		t.Errorf("message = %q", err.Error())
	}

	model, err := m.Get(context.Background(), "bad.ipynb", GetOptions{})
	if err != nil || model.Type != models.TypeNotebook {
		t.Fatalf("metadata-only read: %+v, %v", model, err)
	}
}

func TestNotebookNamedFolderIsDirectory(t *testing.T) {
	m, fake := testManager(t)
	fake.AddFolder(privateID(t, fake), "odd.ipynb")

	model, err := m.Get(context.Background(), "odd.ipynb", GetOptions{})
	if err != nil || model.Type != models.TypeDirectory {
		t.Fatalf("got %+v, %v", model, err)
	}
	if _, err := m.Get(context.Background(), "odd.ipynb", GetOptions{Type: models.TypeNotebook}); !errors.Is(err, apperr.ErrBadType) {
		t.Fatalf("explicit notebook type: err = %v", err)
	}
}

func TestGetFormats(t *testing.T) {
	m, fake := testManager(t)
	ctx := context.Background()
	binary := []byte{0xff, 0x00, 0xfe, 0x10}
	fake.AddItemWithFile(privateID(t, fake), "blob.bin", "application/octet-stream", binary)
	want := base64.StdEncoding.EncodeToString(binary)

	auto, err := m.Get(ctx, "blob.bin", GetOptions{Content: true})
	if err != nil {
		t.Fatal(err)
	}
	if auto.FormatValue() != models.FormatBase64 || auto.Content != want {
		t.Errorf("auto = %s %v", auto.FormatValue(), auto.Content)
	}
	if auto.MimetypeValue() != "application/octet-stream" || *auto.Size != 4 {
		t.Errorf("mimetype=%q size=%d", auto.MimetypeValue(), *auto.Size)
	}

	b64, err := m.Get(ctx, "blob.bin", GetOptions{Content: true, Format: models.FormatBase64})
	if err != nil || b64.Content != want {
		t.Errorf("base64 = %v, %v", b64, err)
	}

	if _, err := m.Get(ctx, "blob.bin", GetOptions{Content: true, Format: models.FormatText}); !errors.Is(err, apperr.ErrBadFormat) {
		t.Errorf("text on binary: err = %v", err)
	}
}

func TestGetTypeMismatch(t *testing.T) {
	m, fake := testManager(t)
	ctx := context.Background()
	fake.AddFolder(privateID(t, fake), "dir")
	saveText(t, m, "f.txt", "x")

	if _, err := m.Get(ctx, "dir", GetOptions{Type: models.TypeFile}); !errors.Is(err, apperr.ErrBadType) {
		t.Errorf("dir as file: %v", err)
	}
	if _, err := m.Get(ctx, "f.txt", GetOptions{Type: models.TypeDirectory}); !errors.Is(err, apperr.ErrBadType) {
		t.Errorf("file as dir: %v", err)
	}
	_, err := m.Get(ctx, "missing", GetOptions{})
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("missing: %v", err)
	}
	if !strings.Contains(err.Error(), "No such file or directory: user/jdoe/Private/missing") {
		t.Errorf("message = %q", err.Error())
	}
}

func TestDirectoryListing(t *testing.T) {
	m, fake := testManager(t)
	ctx := context.Background()
	dirID := fake.AddFolder(privateID(t, fake), "proj")
	fake.AddFolder(dirID, "sub")
	fake.AddFolder(dirID, ".hidden")
	fake.AddItemWithFile(dirID, "readme.md", "text/markdown", []byte("# hi"))
	fake.AddItemWithFile(dirID, ".secret", "text/plain", []byte("x"))

	model, err := m.Get(ctx, "proj", GetOptions{Content: true})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if model.Type != models.TypeDirectory || model.FormatValue() != models.FormatJSON {
		t.Fatalf("model = %+v", model)
	}
	listing := model.Listing()
	if len(listing) != 2 {
		t.Fatalf("listing = %+v", listing)
	}
	if listing[0].Name != "readme.md" || listing[0].Type != models.TypeFile || listing[0].Path != "proj/readme.md" {
		t.Errorf("first entry = %+v", listing[0])
	}
	if listing[1].Name != "sub" || listing[1].Type != models.TypeDirectory {
		t.Errorf("second entry = %+v", listing[1])
	}
	for _, c := range listing {
		if c.Content != nil {
			t.Errorf("%s: child content should be omitted", c.Name)
		}
	}

	empty, err := m.Get(ctx, "proj/sub", GetOptions{Content: true})
	if err != nil {
		t.Fatal(err)
	}
	if l, ok := empty.Content.([]models.Model); !ok || l == nil || len(l) != 0 {
		t.Errorf("empty listing = %#v", empty.Content)
	}
}

func TestRootListingUsesBareNames(t *testing.T) {
	m, _ := testManager(t)
	saveText(t, m, "top.txt", "x")
	root, err := m.Get(context.Background(), "", GetOptions{Content: true})
	if err != nil {
		t.Fatal(err)
	}
	listing := root.Listing()
	if len(listing) != 1 || listing[0].Path != "top.txt" {
		t.Fatalf("listing = %+v", listing)
	}
}

func TestMultiFileItemIsReadOnlyDirectory(t *testing.T) {
	m, fake := testManager(t)
	ctx := context.Background()
	itemID := fake.AddItem(privateID(t, fake), "bundle")
	fake.AddFile(itemID, "a.csv", "text/csv", []byte("1,2"))
	fake.AddFile(itemID, "b.csv", "text/csv", []byte("3,4"))

	model, err := m.Get(ctx, "bundle", GetOptions{Content: true})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if model.Type != models.TypeDirectory || model.Writable {
		t.Fatalf("model = %+v", model)
	}
	listing := model.Listing()
	if len(listing) != 2 || listing[0].Path != "bundle/a.csv" {
		t.Fatalf("listing = %+v", listing)
	}

	if ok, _ := m.DirExists(ctx, "bundle"); !ok {
		t.Error("multi-file item should be a directory")
	}
	if ok, _ := m.FileExists(ctx, "bundle/b.csv"); !ok {
		t.Error("file inside item should exist")
	}
	got, err := m.Get(ctx, "bundle/b.csv", GetOptions{Content: true})
	if err != nil || got.Content != "3,4" {
		t.Fatalf("nested file = %+v, %v", got, err)
	}
}

func TestSaveValidation(t *testing.T) {
	m, _ := testManager(t)
	ctx := context.Background()

	cases := []struct {
		model *models.Model
		path  string
		want  string
	}{
		{&models.Model{Content: "x"}, "a.txt", "No file type provided"},
		{&models.Model{Type: models.TypeFile}, "a.txt", "No file content provided"},
		{&models.Model{Type: models.TypeFile, Content: "x"}, "dir/.hidden", "Hidden files and folders are not allowed."},
		{&models.Model{Type: "symlink", Content: "x"}, "a.txt", "Unhandled contents type: symlink"},
	}
	for _, tc := range cases {
		_, err := m.Save(ctx, tc.model, tc.path)
		if !errors.Is(err, apperr.ErrBadRequest) || err.Error() != tc.want {
			t.Errorf("Save(%s) err = %v, want %q", tc.path, err, tc.want)
		}
	}

	bad := &models.Model{Type: models.TypeFile, Content: "%%%"}
	bad.SetFormat(models.FormatBase64)
	if _, err := m.Save(ctx, bad, "x.bin"); !errors.Is(err, apperr.ErrBadFormat) {
		t.Errorf("invalid base64: err = %v", err)
	}
}

func TestSaveDirectory(t *testing.T) {
	m, fake := testManager(t)
	saved, err := m.Save(context.Background(), &models.Model{Type: models.TypeDirectory}, "x/y")
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if saved.Type != models.TypeDirectory || saved.Name != "y" {
		t.Fatalf("saved = %+v", saved)
	}
	if _, ok := fake.Find("user/jdoe/Private/x/y"); !ok {
		t.Fatal("folder not created")
	}
}

func TestSaveBelowItemIsDenied(t *testing.T) {
	m, fake := testManager(t)
	itemID := fake.AddItem(privateID(t, fake), "bundle")
	fake.AddFile(itemID, "a.csv", "text/csv", []byte("1"))
	fake.AddFile(itemID, "b.csv", "text/csv", []byte("2"))

	_, err := m.Save(context.Background(), &models.Model{Type: models.TypeDirectory}, "bundle/sub/deeper")
	if !errors.Is(err, apperr.ErrPermissionDenied) {
		t.Fatalf("err = %v, want permission denied", err)
	}

	// Files may be added to an existing item directly.
	saveText(t, m, "bundle/c.csv", "3")
	if names := fake.Children(itemID); len(names) != 3 {
		t.Fatalf("item files = %v", names)
	}
}

func TestSaveIntoUserHomeRefused(t *testing.T) {
	fake := testutil.NewFakeGirder(t)
	m := managerAt(t, fake, DefaultRoot)
	ctx := context.Background()

	model := &models.Model{Type: models.TypeFile, Content: "x"}
	model.SetFormat(models.FormatText)
	_, err := m.Save(ctx, model, "x.txt")
	if !errors.Is(err, apperr.ErrBadRequest) || !strings.Contains(err.Error(), "home location may only contain folders") {
		t.Fatalf("err = %v", err)
	}

	if _, err := m.Save(ctx, &models.Model{Type: models.TypeDirectory}, "work"); err != nil {
		t.Fatalf("folders are allowed in the home: %v", err)
	}
	root, err := m.Get(ctx, "", GetOptions{Content: true})
	if err != nil {
		t.Fatal(err)
	}
	if root.Name != "jdoe" || len(root.Listing()) != 2 {
		t.Fatalf("root = %+v", root)
	}
}

func TestReadOnlyFolder(t *testing.T) {
	m, fake := testManager(t)
	ctx := context.Background()
	saveText(t, m, "a.txt", "x")
	fake.SetAccess(privateID(t, fake), testutil.AccessRead)

	model, err := m.Get(ctx, "a.txt", GetOptions{})
	if err != nil || model.Writable {
		t.Fatalf("model = %+v, %v", model, err)
	}
	if _, err := m.Save(ctx, &models.Model{Type: models.TypeDirectory}, "sub"); !errors.Is(err, apperr.ErrPermissionDenied) {
		t.Errorf("mkdir: err = %v", err)
	}
	text := &models.Model{Type: models.TypeFile, Content: "y"}
	text.SetFormat(models.FormatText)
	if _, err := m.Save(ctx, text, "b.txt"); !errors.Is(err, apperr.ErrPermissionDenied) {
		t.Errorf("upload: err = %v", err)
	}
	if err := m.Delete(ctx, "a.txt"); !errors.Is(err, apperr.ErrPermissionDenied) {
		t.Errorf("delete: err = %v", err)
	}
}

func TestSaveOverwrites(t *testing.T) {
	m, fake := testManager(t)
	saveText(t, m, "a.txt", "one")
	saveText(t, m, "a.txt", "two")

	item, ok := fake.Find("user/jdoe/Private/a.txt")
	if !ok {
		t.Fatal("item missing")
	}
	if names := fake.Children(item.ID); len(names) != 1 {
		t.Fatalf("files = %v", names)
	}
	got, _ := m.Get(context.Background(), "a.txt", GetOptions{Content: true})
	if got.Content != "two" {
		t.Fatalf("content = %v", got.Content)
	}
}

func TestSaveSniffsMimetype(t *testing.T) {
	m, fake := testManager(t)
	png := append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 32)...)
	model := &models.Model{Type: models.TypeFile, Content: base64.StdEncoding.EncodeToString(png)}
	model.SetFormat(models.FormatBase64)
	if _, err := m.Save(context.Background(), model, "pic.png"); err != nil {
		t.Fatalf("Save: %v", err)
	}
	f, _ := fake.Find("user/jdoe/Private/pic.png/pic.png")
	if f.MimeType != "image/png" {
		t.Fatalf("mimetype = %q", f.MimeType)
	}

	explicit := &models.Model{Type: models.TypeFile, Content: "a,b"}
	explicit.SetFormat(models.FormatText)
	explicit.SetMimetype("text/csv")
	if _, err := m.Save(context.Background(), explicit, "t.csv"); err != nil {
		t.Fatal(err)
	}
	f, _ = fake.Find("user/jdoe/Private/t.csv/t.csv")
	if f.MimeType != "text/csv" {
		t.Fatalf("mimetype = %q", f.MimeType)
	}
}

func TestSaveWrapsUnexpectedErrors(t *testing.T) {
	m, fake := testManager(t)
	fake.Fail("POST", "/file", 500)

	model := &models.Model{Type: models.TypeFile, Content: "x"}
	model.SetFormat(models.FormatText)
	_, err := m.Save(context.Background(), model, "a.txt")
	if !errors.Is(err, apperr.ErrInternal) {
		t.Fatalf("err = %v, want internal", err)
	}
	if !strings.HasPrefix(err.Error(), "Unexpected error while saving file: a.txt") {
		t.Errorf("message = %q", err.Error())
	}
}

func TestDeleteSoleFileRemovesItem(t *testing.T) {
	m, fake := testManager(t)
	ctx := context.Background()
	saveText(t, m, "a.txt", "x")

	if err := m.Delete(ctx, "a.txt"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok := fake.Find("user/jdoe/Private/a.txt"); ok {
		t.Fatal("item should be gone")
	}
	err := m.Delete(ctx, "a.txt")
	if !errors.Is(err, apperr.ErrNotFound) || !strings.Contains(err.Error(), "Path does not exist") {
		t.Fatalf("second delete: %v", err)
	}
}

func TestDeleteFolder(t *testing.T) {
	m, fake := testManager(t)
	ctx := context.Background()
	saveText(t, m, "dir/inner/a.txt", "x")

	err := m.DeleteFile(ctx, "dir", false)
	if !errors.Is(err, apperr.ErrNotEmpty) {
		t.Fatalf("err = %v, want not empty", err)
	}
	if err := m.DeleteFile(ctx, "dir", true); err != nil {
		t.Fatalf("DeleteFile: %v", err)
	}
	if _, ok := fake.Find("user/jdoe/Private/dir"); ok {
		t.Fatal("folder should be gone")
	}

	if _, err := m.Save(ctx, &models.Model{Type: models.TypeDirectory}, "empty"); err != nil {
		t.Fatal(err)
	}
	if err := m.DeleteFile(ctx, "empty", false); err != nil {
		t.Fatalf("empty folder: %v", err)
	}
}

func TestDeleteFromMultiFileItem(t *testing.T) {
	m, fake := testManager(t)
	ctx := context.Background()
	itemID := fake.AddItem(privateID(t, fake), "bundle")
	fake.AddFile(itemID, "a.csv", "text/csv", []byte("1"))
	fake.AddFile(itemID, "b.csv", "text/csv", []byte("2"))

	if err := m.Delete(ctx, "bundle/a.csv"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if names := fake.Children(itemID); len(names) != 1 || names[0] != "b.csv" {
		t.Fatalf("files = %v", names)
	}
	if err := m.Delete(ctx, "bundle"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("delete item without matching file: %v", err)
	}
}

func TestDeleteRootRefused(t *testing.T) {
	fake := testutil.NewFakeGirder(t)
	m := managerAt(t, fake, DefaultRoot)
	if err := m.Delete(context.Background(), ""); !errors.Is(err, apperr.ErrPermissionDenied) {
		t.Fatalf("err = %v", err)
	}
}

func TestRenameFile(t *testing.T) {
	m, fake := testManager(t)
	ctx := context.Background()
	saveText(t, m, "a.txt", "x")

	model, err := m.Rename(ctx, "a.txt", "b.txt")
	if err != nil {
		t.Fatalf("Rename: %v", err)
	}
	if model.Name != "b.txt" || model.Type != models.TypeFile {
		t.Fatalf("model = %+v", model)
	}
	if r, _ := m.Resolve(ctx, "a.txt"); r != nil {
		t.Error("old path still resolves")
	}
	if _, ok := fake.Find("user/jdoe/Private/b.txt/b.txt"); !ok {
		t.Error("contained file was not renamed")
	}
}

func TestRenameFolder(t *testing.T) {
	m, fake := testManager(t)
	saveText(t, m, "old/a.txt", "x")
	if _, err := m.Rename(context.Background(), "old", "new"); err != nil {
		t.Fatalf("Rename: %v", err)
	}
	if _, ok := fake.Find("user/jdoe/Private/new/a.txt"); !ok {
		t.Fatal("renamed folder lost its children")
	}
}

func TestRenameItemKeepsDivergentFileName(t *testing.T) {
	m, fake := testManager(t)
	itemID := fake.AddItem(privateID(t, fake), "data")
	fake.AddFile(itemID, "raw.bin", "application/octet-stream", []byte{1})

	if _, err := m.Rename(context.Background(), "data", "data2"); err != nil {
		t.Fatalf("Rename: %v", err)
	}
	if _, ok := fake.Find("user/jdoe/Private/data2/raw.bin"); !ok {
		t.Fatal("file name should be unchanged")
	}
}

func TestRenameErrors(t *testing.T) {
	m, _ := testManager(t)
	ctx := context.Background()
	saveText(t, m, "a.txt", "x")
	saveText(t, m, "b.txt", "y")
	saveText(t, m, "dir/c.txt", "z")

	if _, err := m.Rename(ctx, "a.txt", "b.txt"); !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("conflict: %v", err)
	}
	if _, err := m.Rename(ctx, "missing.txt", "z.txt"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("missing: %v", err)
	}
	if _, err := m.Rename(ctx, "a.txt", "dir/a.txt"); !errors.Is(err, apperr.ErrBadRequest) {
		t.Errorf("move: %v", err)
	}
	if _, err := m.Rename(ctx, "a.txt", ".a.txt"); !errors.Is(err, apperr.ErrBadRequest) {
		t.Errorf("hidden: %v", err)
	}
}

func TestNewUntitled(t *testing.T) {
	m, _ := testManager(t)
	ctx := context.Background()

	steps := []struct {
		typ, ext, want string
	}{
		{"", ".ipynb", "Untitled.ipynb"},
		{models.TypeNotebook, "", "Untitled1.ipynb"},
		{"", ".txt", "untitled.txt"},
		{models.TypeFile, ".txt", "untitled1.txt"},
		{models.TypeDirectory, "", "Untitled Folder"},
		{models.TypeDirectory, "", "Untitled Folder 1"},
	}
	for _, s := range steps {
		model, err := m.NewUntitled(ctx, "", s.typ, s.ext)
		if err != nil {
			t.Fatalf("NewUntitled(%q, %q): %v", s.typ, s.ext, err)
		}
		if model.Name != s.want {
			t.Errorf("NewUntitled(%q, %q) = %q, want %q", s.typ, s.ext, model.Name, s.want)
		}
	}

	nb, err := m.Get(ctx, "Untitled.ipynb", GetOptions{Content: true})
	if err != nil {
		t.Fatal(err)
	}
	if err := notebook.Validate(nb.Content.(notebook.Notebook)); err != nil {
		t.Errorf("new notebook invalid: %v", err)
	}

	if _, err := m.NewUntitled(ctx, "nowhere", "", ".txt"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("missing dir: %v", err)
	}
}

func TestIncrementFilenameSplitsAtFirstDot(t *testing.T) {
	m, _ := testManager(t)
	saveText(t, m, "a.tar.gz", "x")
	name, err := m.IncrementFilename(context.Background(), "a.tar.gz", "", "")
	if err != nil || name != "a1.tar.gz" {
		t.Fatalf("name = %q, %v", name, err)
	}
}

func TestCopy(t *testing.T) {
	m, _ := testManager(t)
	ctx := context.Background()
	saveText(t, m, "a.txt", "payload")

	first, err := m.Copy(ctx, "a.txt", "")
	if err != nil || first.Name != "a-Copy1.txt" {
		t.Fatalf("first copy = %+v, %v", first, err)
	}
	second, err := m.Copy(ctx, "a-Copy1.txt", "")
	if err != nil || second.Name != "a-Copy2.txt" {
		t.Fatalf("second copy = %+v, %v", second, err)
	}
	got, _ := m.Get(ctx, "a-Copy2.txt", GetOptions{Content: true})
	if got.Content != "payload" {
		t.Errorf("copied content = %v", got.Content)
	}

	if _, err := m.Save(ctx, &models.Model{Type: models.TypeDirectory}, "dest"); err != nil {
		t.Fatal(err)
	}
	into, err := m.Copy(ctx, "a.txt", "dest")
	if err != nil || into.Path != "dest/a.txt" {
		t.Fatalf("copy into dir = %+v, %v", into, err)
	}
	if _, err := m.Copy(ctx, "dest", ""); !errors.Is(err, apperr.ErrBadRequest) {
		t.Errorf("copy dir: %v", err)
	}
}

func TestCopyNotebook(t *testing.T) {
	m, _ := testManager(t)
	ctx := context.Background()
	if _, err := m.New(ctx, nil, "nb.ipynb"); err != nil {
		t.Fatal(err)
	}
	cp, err := m.Copy(ctx, "nb.ipynb", "")
	if err != nil {
		t.Fatalf("Copy: %v", err)
	}
	if cp.Name != "nb-Copy1.ipynb" || cp.Type != models.TypeNotebook {
		t.Fatalf("copy = %+v", cp)
	}
}

func TestCollectionRoot(t *testing.T) {
	fake := testutil.NewFakeGirder(t)
	coll := fake.AddCollection("shared")
	fake.AddFolder(coll, "data")
	m := managerAt(t, fake, "collection/shared")
	ctx := context.Background()

	if ok, _ := m.DirExists(ctx, "data"); !ok {
		t.Fatal("collection folder should be a directory")
	}
	saveText(t, m, "data/x.txt", "x")
	if _, ok := fake.Find("collection/shared/data/x.txt/x.txt"); !ok {
		t.Fatal("file not stored in collection")
	}
	model := &models.Model{Type: models.TypeFile, Content: "x"}
	model.SetFormat(models.FormatText)
	if _, err := m.Save(ctx, model, "top.txt"); !errors.Is(err, apperr.ErrBadRequest) {
		t.Fatalf("file at collection root: %v", err)
	}
}

func TestDeleteThroughItemPathRemovesItem(t *testing.T) {
	m, fake := testManager(t)
	ctx := context.Background()
	saveText(t, m, "a.txt", "x")

	if err := m.Delete(ctx, "a.txt/a.txt"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok := fake.Find("user/jdoe/Private/a.txt"); ok {
		t.Fatal("empty item left behind")
	}
	if _, err := m.Get(ctx, "a.txt", GetOptions{}); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("Get after delete: %v", err)
	}

	itemID := fake.AddItem(privateID(t, fake), "bundle")
	fake.AddFile(itemID, "a.csv", "text/csv", []byte("1"))
	fake.AddFile(itemID, "b.csv", "text/csv", []byte("2"))
	if err := m.Delete(ctx, "bundle/a.csv"); err != nil {
		t.Fatal(err)
	}
	if _, ok := fake.Find("user/jdoe/Private/bundle"); !ok {
		t.Fatal("item with a remaining file was deleted")
	}
	if err := m.Delete(ctx, "bundle/b.csv"); err != nil {
		t.Fatal(err)
	}
	if _, ok := fake.Find("user/jdoe/Private/bundle"); ok {
		t.Fatal("item should go with its last file")
	}
}

func TestDeleteEmptyItem(t *testing.T) {
	m, fake := testManager(t)
	fake.AddItem(privateID(t, fake), "stray")

	if err := m.Delete(context.Background(), "stray"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok := fake.Find("user/jdoe/Private/stray"); ok {
		t.Fatal("empty item still present")
	}
}

func TestSaveBelowSingleFileItemIsDenied(t *testing.T) {
	m, fake := testManager(t)
	ctx := context.Background()
	saveText(t, m, "a.txt", "x")

	model := &models.Model{Type: models.TypeFile, Content: "y"}
	model.SetFormat(models.FormatText)
	if _, err := m.Save(ctx, model, "a.txt/b.txt"); !errors.Is(err, apperr.ErrPermissionDenied) {
		t.Fatalf("err = %v, want permission denied", err)
	}
	if _, ok := fake.Find("user/jdoe/Private/a.txt/b.txt"); ok {
		t.Fatal("file was added next to the single file")
	}

	got, err := m.Get(ctx, "a.txt", GetOptions{Content: true, Format: models.FormatText})
	if err != nil {
		t.Fatal(err)
	}
	if got.Type != models.TypeFile || got.Content != "x" {
		t.Fatalf("a.txt = %+v", got)
	}
}

func TestNotebookItemWithOtherFileIsListed(t *testing.T) {
	m, fake := testManager(t)
	ctx := context.Background()
	itemID := fake.AddItem(privateID(t, fake), "x.ipynb")
	fake.AddFile(itemID, "raw.json", "application/json", []byte("{}"))

	root, err := m.Get(ctx, "", GetOptions{Content: true})
	if err != nil {
		t.Fatal(err)
	}
	listing := root.Listing()
	if len(listing) != 1 || listing[0].Name != "x.ipynb" || listing[0].Type != models.TypeDirectory || listing[0].Writable {
		t.Fatalf("listing = %+v", listing)
	}

	if _, err := m.Get(ctx, "x.ipynb", GetOptions{Type: models.TypeNotebook}); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("explicit notebook get: %v", err)
	}
}
