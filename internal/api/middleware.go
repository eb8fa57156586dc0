// Package api implements the Jupyter-style contents REST API using chi.
package api

import (
	"net/http"
	"strings"

	"github.com/rs/cors"
)

// AuthMiddleware returns middleware that validates a shared token.
// If enabled is false, all requests pass through.
// Otherwise the token must arrive as "Authorization: Bearer <token>",
// "Authorization: token <token>" or, for EventSource clients that cannot set
// headers, a "token" query parameter.
func AuthMiddleware(enabled bool, token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !enabled {
				next.ServeHTTP(w, r)
				return
			}
			if requestToken(r) != token {
				writeJSON(w, http.StatusUnauthorized, errorBody("unauthorized", "unauthorized"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func requestToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	for _, scheme := range []string{"Bearer ", "token "} {
		if strings.HasPrefix(auth, scheme) {
			return strings.TrimPrefix(auth, scheme)
		}
	}
	return r.URL.Query().Get("token")
}

// CORS allows browser clients from origins to call the API. No origins means
// cross-origin requests are not answered with CORS headers.
func CORS(origins []string) func(http.Handler) http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "Last-Event-ID"},
		ExposedHeaders:   []string{"Location"},
		AllowCredentials: true,
		MaxAge:           300,
	}).Handler
}
