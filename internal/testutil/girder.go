package testutil

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// Fake access levels, mirroring Girder's.
const (
	AccessRead  = 0
	AccessWrite = 1
	AccessAdmin = 2
)

// FakeNode is one resource held by FakeGirder.
type FakeNode struct {
	ID         string
	Kind       string
	Name       string
	Login      string
	ParentID   string
	ParentType string
	MimeType   string
	Data       []byte
	Access     int
	Created    time.Time
	Updated    time.Time
}

type fakeUpload struct {
	id       string
	size     int64
	fileID   string // set when replacing contents of an existing file
	itemID   string
	name     string
	mimeType string
}

type fakeFailure struct {
	method string
	prefix string
	status int
}

// FakeGirder is an in-memory Girder REST server covering the endpoints the
// contents adapter uses. All resources are visible to a single session user.
type FakeGirder struct {
	Server *httptest.Server
	APIKey string
	Token  string

	mu       sync.Mutex
	nodes    map[string]*FakeNode
	uploads  map[string]*fakeUpload
	me       string
	failures []fakeFailure
	hits     int
	clock    time.Time
}

// NewFakeGirder starts a fake server with one user (login "jdoe") owning a
// "Private" folder. The server is closed when the test ends.
func NewFakeGirder(t *testing.T) *FakeGirder {
	t.Helper()
	f := &FakeGirder{
		APIKey:  "test-api-key",
		Token:   "test-token",
		nodes:   make(map[string]*FakeNode),
		uploads: make(map[string]*fakeUpload),
		clock:   time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	f.me = f.AddUser("jdoe")
	f.AddFolder(f.me, "Private")

	f.Server = httptest.NewServer(f.routes())
	t.Cleanup(f.Server.Close)
	return f
}

// URL returns the API base URL.
func (f *FakeGirder) URL() string {
	return f.Server.URL
}

// UserID returns the id of the session user.
func (f *FakeGirder) UserID() string {
	return f.me
}

// Hits returns the number of requests served so far.
func (f *FakeGirder) Hits() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hits
}

// Fail makes every request whose method matches and whose path starts with prefix
// answer with status. An empty method matches any method.
func (f *FakeGirder) Fail(method, prefix string, status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures = append(f.failures, fakeFailure{method: method, prefix: prefix, status: status})
}

// ClearFailures removes all injected failures.
func (f *FakeGirder) ClearFailures() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures = nil
}

// AddUser creates a user with admin access.
func (f *FakeGirder) AddUser(login string) string {
	return f.add(&FakeNode{Kind: "user", Login: login, Access: AccessAdmin})
}

// AddCollection creates a collection with admin access.
func (f *FakeGirder) AddCollection(name string) string {
	return f.add(&FakeNode{Kind: "collection", Name: name, Access: AccessAdmin})
}

// AddFolder creates a folder under a user, collection or folder. Access is
// inherited from the parent.
func (f *FakeGirder) AddFolder(parentID, name string) string {
	f.mu.Lock()
	parent := f.nodes[parentID]
	f.mu.Unlock()
	if parent == nil {
		panic("testutil: unknown parent " + parentID)
	}
	return f.add(&FakeNode{Kind: "folder", Name: name, ParentID: parentID, ParentType: parent.Kind, Access: parent.Access})
}

// AddItem creates an item in a folder.
func (f *FakeGirder) AddItem(folderID, name string) string {
	return f.add(&FakeNode{Kind: "item", Name: name, ParentID: folderID, ParentType: "folder"})
}

// AddFile creates a file in an item.
func (f *FakeGirder) AddFile(itemID, name, mimeType string, data []byte) string {
	return f.add(&FakeNode{Kind: "file", Name: name, ParentID: itemID, ParentType: "item", MimeType: mimeType, Data: data})
}

// AddItemWithFile creates an item holding a single file of the same name and
// returns the item id and file id.
func (f *FakeGirder) AddItemWithFile(folderID, name, mimeType string, data []byte) (string, string) {
	itemID := f.AddItem(folderID, name)
	return itemID, f.AddFile(itemID, name, mimeType, data)
}

// SetAccess changes the access level of a user, collection or folder.
func (f *FakeGirder) SetAccess(id string, level int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if n := f.nodes[id]; n != nil {
		n.Access = level
	}
}

// Node returns a copy of the node with the given id.
func (f *FakeGirder) Node(id string) (FakeNode, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.nodes[id]
	if !ok {
		return FakeNode{}, false
	}
	return *n, true
}

// Find resolves a slash separated path like "user/jdoe/Private/a.txt".
func (f *FakeGirder) Find(path string) (FakeNode, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := f.lookup(path)
	if n == nil {
		return FakeNode{}, false
	}
	return *n, true
}

// Children returns the names of the direct children of id, sorted.
func (f *FakeGirder) Children(id string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var names []string
	for _, n := range f.nodes {
		if n.ParentID == id {
			names = append(names, n.Name)
		}
	}
	sort.Strings(names)
	return names
}

func (f *FakeGirder) add(n *FakeNode) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	n.ID = newObjectID()
	n.Created = f.tick()
	n.Updated = n.Created
	f.nodes[n.ID] = n
	return n.ID
}

func (f *FakeGirder) tick() time.Time {
	f.clock = f.clock.Add(time.Second)
	return f.clock
}

func newObjectID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:24]
}

// --- HTTP surface ---

func (f *FakeGirder) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(f.count, f.inject)

	r.Post("/api_key/token", f.handleToken)
	r.Group(func(r chi.Router) {
		r.Use(f.auth)

		r.Get("/user/me", f.handleMe)
		r.Get("/resource/lookup", f.handleLookup)

		r.Get("/folder", f.handleListFolders)
		r.Post("/folder", f.handleCreateFolder)
		r.Get("/folder/{id}", f.handleGet("folder"))

		r.Get("/item", f.handleListItems)
		r.Post("/item", f.handleCreateItem)
		r.Get("/item/{id}", f.handleGet("item"))
		r.Get("/item/{id}/files", f.handleListFiles)

		r.Post("/file", f.handleInitUpload)
		r.Post("/file/chunk", f.handleChunk)
		r.Put("/file/{id}/contents", f.handleReplaceContents)
		r.Get("/file/{id}/download", f.handleDownload)

		for _, kind := range []string{"folder", "item", "file"} {
			r.Delete("/"+kind+"/{id}", f.handleDelete(kind))
			r.Put("/"+kind+"/{id}", f.handleRename(kind))
		}
	})
	return r
}

func (f *FakeGirder) count(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.hits++
		f.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (f *FakeGirder) inject(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		var status int
		for _, fl := range f.failures {
			if (fl.method == "" || fl.method == r.Method) && strings.HasPrefix(r.URL.Path, fl.prefix) {
				status = fl.status
				break
			}
		}
		f.mu.Unlock()
		if status != 0 {
			fakeError(w, status, "injected failure")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (f *FakeGirder) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tok := r.Header.Get("Girder-Token")
		if tok == "" && r.URL.Path == "/user/me" {
			fakeJSON(w, http.StatusOK, nil)
			return
		}
		if tok != f.Token {
			fakeError(w, http.StatusUnauthorized, "You must be logged in.")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (f *FakeGirder) handleToken(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("key") != f.APIKey {
		fakeError(w, http.StatusBadRequest, "Invalid API key.")
		return
	}
	fakeJSON(w, http.StatusOK, map[string]any{"authToken": map[string]any{"token": f.Token}})
}

func (f *FakeGirder) handleMe(w http.ResponseWriter, _ *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fakeJSON(w, http.StatusOK, f.doc(f.nodes[f.me]))
}

func (f *FakeGirder) handleLookup(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := f.lookup(r.URL.Query().Get("path"))
	if n == nil {
		if r.URL.Query().Get("test") == "true" {
			fakeJSON(w, http.StatusOK, nil)
			return
		}
		fakeError(w, http.StatusBadRequest, "Path not found: "+r.URL.Query().Get("path"))
		return
	}
	fakeJSON(w, http.StatusOK, f.doc(n))
}

func (f *FakeGirder) handleGet(kind string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		n := f.nodes[chi.URLParam(r, "id")]
		if n == nil || n.Kind != kind {
			fakeError(w, http.StatusBadRequest, "Invalid "+kind+" id.")
			return
		}
		fakeJSON(w, http.StatusOK, f.doc(n))
	}
}

func (f *FakeGirder) handleListFolders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.nodes[q.Get("parentId")] == nil {
		fakeError(w, http.StatusBadRequest, "Invalid parent id.")
		return
	}
	fakeJSON(w, http.StatusOK, f.list(q.Get("parentId"), "folder", q.Get("name")))
}

func (f *FakeGirder) handleListItems(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f.mu.Lock()
	defer f.mu.Unlock()
	if p := f.nodes[q.Get("folderId")]; p == nil || p.Kind != "folder" {
		fakeError(w, http.StatusBadRequest, "Invalid folder id.")
		return
	}
	fakeJSON(w, http.StatusOK, f.list(q.Get("folderId"), "item", q.Get("name")))
}

func (f *FakeGirder) handleListFiles(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := chi.URLParam(r, "id")
	if p := f.nodes[id]; p == nil || p.Kind != "item" {
		fakeError(w, http.StatusBadRequest, "Invalid item id.")
		return
	}
	fakeJSON(w, http.StatusOK, f.list(id, "file", ""))
}

func (f *FakeGirder) handleCreateFolder(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f.mu.Lock()
	defer f.mu.Unlock()
	parent := f.nodes[q.Get("parentId")]
	if parent == nil || parent.Kind != q.Get("parentType") {
		fakeError(w, http.StatusBadRequest, "Invalid parent.")
		return
	}
	if parent.Access < AccessWrite {
		fakeError(w, http.StatusForbidden, "Write access denied.")
		return
	}
	name := strings.TrimSpace(q.Get("name"))
	if name == "" {
		fakeError(w, http.StatusBadRequest, "Folder name must not be empty.")
		return
	}
	if existing := f.child(parent.ID, "folder", name); existing != nil {
		if q.Get("reuseExisting") == "true" {
			fakeJSON(w, http.StatusOK, f.doc(existing))
			return
		}
		fakeError(w, http.StatusBadRequest, "A folder with that name already exists here.")
		return
	}
	n := &FakeNode{ID: newObjectID(), Kind: "folder", Name: name, ParentID: parent.ID, ParentType: parent.Kind, Access: parent.Access}
	n.Created = f.tick()
	n.Updated = n.Created
	f.nodes[n.ID] = n
	fakeJSON(w, http.StatusOK, f.doc(n))
}

func (f *FakeGirder) handleCreateItem(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f.mu.Lock()
	defer f.mu.Unlock()
	folder := f.nodes[q.Get("folderId")]
	if folder == nil || folder.Kind != "folder" {
		fakeError(w, http.StatusBadRequest, "Invalid folder id.")
		return
	}
	if folder.Access < AccessWrite {
		fakeError(w, http.StatusForbidden, "Write access denied.")
		return
	}
	name := q.Get("name")
	if existing := f.child(folder.ID, "item", name); existing != nil && q.Get("reuseExisting") == "true" {
		fakeJSON(w, http.StatusOK, f.doc(existing))
		return
	}
	n := &FakeNode{ID: newObjectID(), Kind: "item", Name: name, ParentID: folder.ID, ParentType: "folder"}
	n.Created = f.tick()
	n.Updated = n.Created
	f.nodes[n.ID] = n
	fakeJSON(w, http.StatusOK, f.doc(n))
}

func (f *FakeGirder) handleInitUpload(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	size, err := strconv.ParseInt(q.Get("size"), 10, 64)
	if err != nil {
		fakeError(w, http.StatusBadRequest, "Invalid size.")
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	item := f.nodes[q.Get("parentId")]
	if item == nil || item.Kind != "item" || q.Get("parentType") != "item" {
		fakeError(w, http.StatusBadRequest, "Invalid parent.")
		return
	}
	if f.itemAccess(item) < AccessWrite {
		fakeError(w, http.StatusForbidden, "Write access denied.")
		return
	}
	up := &fakeUpload{id: newObjectID(), size: size, itemID: item.ID, name: q.Get("name"), mimeType: q.Get("mimeType")}
	if size == 0 {
		fakeJSON(w, http.StatusOK, f.doc(f.finish(up, nil)))
		return
	}
	f.uploads[up.id] = up
	fakeJSON(w, http.StatusOK, map[string]any{"_id": up.id, "_modelType": "upload", "size": size, "received": 0})
}

func (f *FakeGirder) handleReplaceContents(w http.ResponseWriter, r *http.Request) {
	size, err := strconv.ParseInt(r.URL.Query().Get("size"), 10, 64)
	if err != nil {
		fakeError(w, http.StatusBadRequest, "Invalid size.")
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	file := f.nodes[chi.URLParam(r, "id")]
	if file == nil || file.Kind != "file" {
		fakeError(w, http.StatusBadRequest, "Invalid file id.")
		return
	}
	if f.itemAccess(f.nodes[file.ParentID]) < AccessWrite {
		fakeError(w, http.StatusForbidden, "Write access denied.")
		return
	}
	up := &fakeUpload{id: newObjectID(), size: size, fileID: file.ID}
	if size == 0 {
		fakeJSON(w, http.StatusOK, f.doc(f.finish(up, nil)))
		return
	}
	f.uploads[up.id] = up
	fakeJSON(w, http.StatusOK, map[string]any{"_id": up.id, "_modelType": "upload", "size": size, "received": 0})
}

func (f *FakeGirder) handleChunk(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	data, err := io.ReadAll(r.Body)
	if err != nil {
		fakeError(w, http.StatusBadRequest, "Unreadable chunk.")
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	up := f.uploads[q.Get("uploadId")]
	if up == nil {
		fakeError(w, http.StatusBadRequest, "Invalid upload id.")
		return
	}
	if q.Get("offset") != "0" || int64(len(data)) != up.size {
		fakeError(w, http.StatusBadRequest, "Chunk does not match the declared upload size.")
		return
	}
	delete(f.uploads, up.id)
	fakeJSON(w, http.StatusOK, f.doc(f.finish(up, data)))
}

// finish materializes an upload. Callers hold f.mu.
func (f *FakeGirder) finish(up *fakeUpload, data []byte) *FakeNode {
	if data == nil {
		data = []byte{}
	}
	if up.fileID != "" {
		n := f.nodes[up.fileID]
		n.Data = data
		n.Updated = f.tick()
		return n
	}
	n := &FakeNode{ID: newObjectID(), Kind: "file", Name: up.name, ParentID: up.itemID, ParentType: "item", MimeType: up.mimeType, Data: data}
	n.Created = f.tick()
	n.Updated = n.Created
	f.nodes[n.ID] = n
	return n
}

func (f *FakeGirder) handleDownload(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	n := f.nodes[chi.URLParam(r, "id")]
	var data []byte
	var mime string
	if n != nil && n.Kind == "file" {
		data = append([]byte(nil), n.Data...)
		mime = n.MimeType
	}
	f.mu.Unlock()
	if n == nil || n.Kind != "file" {
		fakeError(w, http.StatusBadRequest, "Invalid file id.")
		return
	}
	if mime == "" {
		mime = "application/octet-stream"
	}
	w.Header().Set("Content-Type", mime)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (f *FakeGirder) handleDelete(kind string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		n := f.nodes[chi.URLParam(r, "id")]
		if n == nil || n.Kind != kind {
			fakeError(w, http.StatusBadRequest, "Invalid "+kind+" id.")
			return
		}
		if f.writeAccess(n) < AccessWrite {
			fakeError(w, http.StatusForbidden, "Write access denied.")
			return
		}
		f.remove(n.ID)
		fakeJSON(w, http.StatusOK, map[string]any{"message": "Deleted " + kind + " " + n.Name + "."})
	}
}

func (f *FakeGirder) handleRename(kind string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		n := f.nodes[chi.URLParam(r, "id")]
		if n == nil || n.Kind != kind {
			fakeError(w, http.StatusBadRequest, "Invalid "+kind+" id.")
			return
		}
		if f.writeAccess(n) < AccessWrite {
			fakeError(w, http.StatusForbidden, "Write access denied.")
			return
		}
		if name := r.URL.Query().Get("name"); name != "" {
			n.Name = name
			n.Updated = f.tick()
		}
		fakeJSON(w, http.StatusOK, f.doc(n))
	}
}

// --- in-memory helpers; callers hold f.mu ---

func (f *FakeGirder) remove(id string) {
	for cid, c := range f.nodes {
		if c.ParentID == id {
			f.remove(cid)
		}
	}
	delete(f.nodes, id)
}

func (f *FakeGirder) child(parentID, kind, name string) *FakeNode {
	for _, n := range f.nodes {
		if n.ParentID == parentID && n.Kind == kind && n.Name == name {
			return n
		}
	}
	return nil
}

func (f *FakeGirder) list(parentID, kind, name string) []map[string]any {
	var found []*FakeNode
	for _, n := range f.nodes {
		if n.ParentID == parentID && n.Kind == kind && (name == "" || n.Name == name) {
			found = append(found, n)
		}
	}
	sort.Slice(found, func(i, j int) bool { return found[i].Name < found[j].Name })
	out := make([]map[string]any, 0, len(found))
	for _, n := range found {
		out = append(out, f.doc(n))
	}
	return out
}

func (f *FakeGirder) lookup(path string) *FakeNode {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) < 2 {
		return nil
	}
	var cur *FakeNode
	for _, n := range f.nodes {
		if n.Kind != parts[0] {
			continue
		}
		if (n.Kind == "user" && n.Login == parts[1]) || (n.Kind == "collection" && n.Name == parts[1]) {
			cur = n
			break
		}
	}
	for _, seg := range parts[2:] {
		if cur == nil {
			return nil
		}
		var next *FakeNode
		switch cur.Kind {
		case "user", "collection":
			next = f.child(cur.ID, "folder", seg)
		case "folder":
			if next = f.child(cur.ID, "folder", seg); next == nil {
				next = f.child(cur.ID, "item", seg)
			}
		case "item":
			next = f.child(cur.ID, "file", seg)
		}
		cur = next
	}
	return cur
}

func (f *FakeGirder) itemAccess(item *FakeNode) int {
	if item == nil {
		return AccessRead
	}
	if folder := f.nodes[item.ParentID]; folder != nil {
		return folder.Access
	}
	return AccessRead
}

func (f *FakeGirder) writeAccess(n *FakeNode) int {
	switch n.Kind {
	case "item":
		return f.itemAccess(n)
	case "file":
		return f.itemAccess(f.nodes[n.ParentID])
	}
	// Deleting or renaming a folder needs write access on the folder itself.
	return n.Access
}

func (f *FakeGirder) doc(n *FakeNode) map[string]any {
	if n == nil {
		return nil
	}
	d := map[string]any{
		"_id":        n.ID,
		"_modelType": n.Kind,
		"created":    n.Created.Format("2006-01-02T15:04:05.000000+00:00"),
		"updated":    n.Updated.Format("2006-01-02T15:04:05.000000+00:00"),
	}
	switch n.Kind {
	case "user":
		d["login"] = n.Login
		d["_accessLevel"] = n.Access
		delete(d, "updated")
	case "collection":
		d["name"] = n.Name
		d["_accessLevel"] = n.Access
	case "folder":
		d["name"] = n.Name
		d["parentId"] = n.ParentID
		d["parentCollection"] = n.ParentType
		d["_accessLevel"] = n.Access
	case "item":
		d["name"] = n.Name
		d["folderId"] = n.ParentID
		var size int
		for _, c := range f.nodes {
			if c.ParentID == n.ID {
				size += len(c.Data)
			}
		}
		d["size"] = size
	case "file":
		d["name"] = n.Name
		d["itemId"] = n.ParentID
		d["mimeType"] = n.MimeType
		d["size"] = len(n.Data)
	}
	return d
}

func fakeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func fakeError(w http.ResponseWriter, status int, msg string) {
	fakeJSON(w, status, map[string]any{"message": msg, "type": "rest", "status": fmt.Sprint(status)})
}
