package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/nbgirder/internal/apperr"
	"github.com/starford/nbgirder/internal/contents"
	"github.com/starford/nbgirder/internal/models"
	"github.com/starford/nbgirder/internal/sse"
)

const maxBodyBytes = 50 << 20

// Contents is the content store the handlers serve.
type Contents interface {
	Get(ctx context.Context, path string, opts contents.GetOptions) (*models.Model, error)
	Save(ctx context.Context, model *models.Model, path string) (*models.Model, error)
	Delete(ctx context.Context, path string) error
	Rename(ctx context.Context, oldPath, newPath string) (*models.Model, error)
	NewUntitled(ctx context.Context, dir, typ, ext string) (*models.Model, error)
	Copy(ctx context.Context, fromPath, toPath string) (*models.Model, error)
	FileExists(ctx context.Context, path string) (bool, error)
	DirExists(ctx context.Context, path string) (bool, error)
}

// Publisher receives change notifications.
type Publisher interface {
	PublishChange(kind, path, oldPath string)
}

// Handler holds API route handlers.
type Handler struct {
	svc    Contents
	events Publisher
}

// NewHandler creates a Handler. events may be nil.
func NewHandler(svc Contents, events Publisher) *Handler {
	return &Handler{svc: svc, events: events}
}

func (h *Handler) publish(kind, path, oldPath string) {
	if h.events != nil {
		h.events.PublishChange(kind, path, oldPath)
	}
}

// contentPath extracts the virtual path from the URL (everything after /contents/).
// chi matches on RawPath when the request carried escapes Path cannot represent,
// such as encoded slashes; only then is the wildcard still escaped.
func contentPath(r *http.Request) string {
	raw := strings.Trim(chi.URLParam(r, "*"), "/")
	if raw == "" || r.URL.RawPath == "" {
		return raw
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

func location(path string) string {
	return (&url.URL{Path: "/api/contents/" + path}).EscapedPath()
}

// decodeBody decodes an optional JSON body into v and validates it. An empty body
// leaves v untouched.
func decodeBody(w http.ResponseWriter, r *http.Request, v interface{ Validate() error }) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return apperr.New(apperr.ErrBadRequest, "Invalid JSON in body of request")
	}
	return v.Validate()
}

// GetContents handles GET /api/contents/*.
//
//	@Summary		Get a file, notebook or directory model
//	@Tags			contents
//	@Produce		json
//	@Param			path	path		string	true	"Virtual path"
//	@Param			type	query		string	false	"Expected type"	Enums(file, directory, notebook)
//	@Param			format	query		string	false	"Content format"	Enums(text, base64)
//	@Param			content	query		int		false	"0 to omit content"
//	@Success		200		{object}	models.Model
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/contents/{path} [get]
func (h *Handler) GetContents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := GetQuery{Type: q.Get("type"), Format: q.Get("format"), Content: q.Get("content")}
	if err := query.Validate(); err != nil {
		writeError(w, r, err)
		return
	}

	model, err := h.svc.Get(r.Context(), contentPath(r), contents.GetOptions{
		Content: query.Content != "0",
		Type:    query.Type,
		Format:  query.Format,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, model)
}

// SaveContents handles PUT /api/contents/*.
//
//	@Summary		Save or upload a model
//	@Tags			contents
//	@Accept			json
//	@Produce		json
//	@Param			path	path		string		true	"Virtual path"
//	@Param			body	body		SaveRequest	true	"Model to save"
//	@Success		200		{object}	models.Model
//	@Success		201		{object}	models.Model
//	@Failure		400		{object}	errResponse
//	@Failure		403		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/contents/{path} [put]
func (h *Handler) SaveContents(w http.ResponseWriter, r *http.Request) {
	path := contentPath(r)
	var req SaveRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.CopyFrom != "" {
		writeError(w, r, apperr.New(apperr.ErrBadRequest, "Cannot copy with PUT, only POST"))
		return
	}

	existed, err := h.svc.FileExists(r.Context(), path)
	if err != nil {
		writeError(w, r, err)
		return
	}
	model, err := h.svc.Save(r.Context(), req.Model(), path)
	if err != nil {
		writeError(w, r, err)
		return
	}

	w.Header().Set("Location", location(model.Path))
	if existed {
		h.publish(sse.Updated, model.Path, "")
		writeJSON(w, http.StatusOK, model)
		return
	}
	h.publish(sse.Created, model.Path, "")
	writeJSON(w, http.StatusCreated, model)
}

// CreateContents handles POST /api/contents/* on a directory: a new untitled
// model, or a copy when copy_from is set.
//
//	@Summary		Create an untitled model or copy a file into a directory
//	@Tags			contents
//	@Accept			json
//	@Produce		json
//	@Param			path	path		string			true	"Directory path"
//	@Param			body	body		CreateRequest	false	"What to create"
//	@Success		201		{object}	models.Model
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/contents/{path} [post]
func (h *Handler) CreateContents(w http.ResponseWriter, r *http.Request) {
	dir := contentPath(r)
	var req CreateRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	ok, err := h.svc.DirExists(r.Context(), dir)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !ok {
		writeError(w, r, apperr.New(apperr.ErrNotFound, "No such directory: %s", dir))
		return
	}

	var model *models.Model
	if req.CopyFrom != "" {
		model, err = h.svc.Copy(r.Context(), req.CopyFrom, dir)
	} else {
		model, err = h.svc.NewUntitled(r.Context(), dir, req.Type, req.Ext)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}

	h.publish(sse.Created, model.Path, "")
	w.Header().Set("Location", location(model.Path))
	writeJSON(w, http.StatusCreated, model)
}

// RenameContents handles PATCH /api/contents/*.
//
//	@Summary		Rename a file or directory
//	@Tags			contents
//	@Accept			json
//	@Produce		json
//	@Param			path	path		string			true	"Current path"
//	@Param			body	body		RenameRequest	true	"New path"
//	@Success		200		{object}	models.Model
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/contents/{path} [patch]
func (h *Handler) RenameContents(w http.ResponseWriter, r *http.Request) {
	path := contentPath(r)
	var req RenameRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	model, err := h.svc.Rename(r.Context(), path, req.Path)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.publish(sse.Renamed, model.Path, path)
	w.Header().Set("Location", location(model.Path))
	writeJSON(w, http.StatusOK, model)
}

// DeleteContents handles DELETE /api/contents/*.
//
//	@Summary		Delete a file or directory
//	@Tags			contents
//	@Param			path	path	string	true	"Virtual path"
//	@Success		204		"Deleted"
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/contents/{path} [delete]
func (h *Handler) DeleteContents(w http.ResponseWriter, r *http.Request) {
	path := contentPath(r)
	if err := h.svc.Delete(r.Context(), path); err != nil {
		writeError(w, r, err)
		return
	}
	h.publish(sse.Deleted, path, "")
	w.WriteHeader(http.StatusNoContent)
}

// base64Model wraps raw bytes as a file model.
func base64Model(data []byte, mimetype string) *models.Model {
	m := &models.Model{Type: models.TypeFile, Content: base64.StdEncoding.EncodeToString(data)}
	m.SetFormat(models.FormatBase64)
	m.SetMimetype(mimetype)
	return m
}
