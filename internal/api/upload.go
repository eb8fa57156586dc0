package api

import (
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/starford/nbgirder/internal/apperr"
	"github.com/starford/nbgirder/internal/sse"
)

// uploadName validates that the client filename is a plain name: no path
// separators, no traversal, not hidden.
func uploadName(name string) (string, error) {
	if name == "" {
		return "", apperr.New(apperr.ErrBadRequest, "filename is required")
	}
	if strings.ContainsAny(name, `/\`) || name == ".." || path.Base(name) != name {
		return "", apperr.New(apperr.ErrBadRequest, "invalid filename: %s", name)
	}
	if strings.HasPrefix(name, ".") {
		return "", apperr.New(apperr.ErrBadRequest, "Hidden files and folders are not allowed.")
	}
	return name, nil
}

// Upload handles POST /api/upload/* (multipart/form-data, field "file"). The file
// is stored in the directory named by the path under its own filename.
//
//	@Summary		Upload a binary file into a directory
//	@Tags			contents
//	@Accept			multipart/form-data
//	@Produce		json
//	@Param			path	path		string	true	"Directory path"
//	@Param			file	formData	file	true	"File to upload"
//	@Success		201		{object}	models.Model
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/upload/{path} [post]
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	dir := contentPath(r)
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	if err := r.ParseMultipartForm(maxBodyBytes); err != nil {
		writeError(w, r, apperr.New(apperr.ErrBadRequest, "file too large or invalid multipart"))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, apperr.New(apperr.ErrBadRequest, "missing 'file' field in multipart form"))
		return
	}
	defer file.Close()

	name, err := uploadName(header.Filename)
	if err != nil {
		writeError(w, r, err)
		return
	}
	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, r, apperr.New(apperr.ErrBadRequest, "failed to read upload"))
		return
	}

	target := name
	if dir != "" {
		target = dir + "/" + name
	}
	// Multipart parts usually carry a generic type; let the store sniff it instead.
	mt := header.Header.Get("Content-Type")
	if mt == "application/octet-stream" {
		mt = ""
	}
	model, err := h.svc.Save(r.Context(), base64Model(data, mt), target)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.publish(sse.Created, model.Path, "")
	w.Header().Set("Location", location(model.Path))
	writeJSON(w, http.StatusCreated, model)
}
