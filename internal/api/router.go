package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(h *Handler, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	for _, pattern := range []string{"/contents", "/contents/*"} {
		r.Get(pattern, h.GetContents)
		r.Put(pattern, h.SaveContents)
		r.Post(pattern, h.CreateContents)
		r.Patch(pattern, h.RenameContents)
		r.Delete(pattern, h.DeleteContents)
	}

	r.Post("/upload", h.Upload)
	r.Post("/upload/*", h.Upload)

	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
