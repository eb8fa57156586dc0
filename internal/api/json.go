package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/nbgirder/internal/apperr"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", slog.String("error", err.Error()))
	}
}

// errResponse mirrors the Jupyter server error body.
type errResponse struct {
	Message string `json:"message"`
	Reason  string `json:"reason"`
}

func errorBody(msg, reason string) errResponse {
	return errResponse{Message: msg, Reason: reason}
}

// writeError answers with the status of a classified error, or 500 for anything
// else. Unclassified details are logged rather than sent.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var ae *apperr.Error
	if errors.As(err, &ae) {
		writeJSON(w, ae.StatusCode(), errorBody(ae.Message, ae.Reason()))
		return
	}
	var verrs validation.Errors
	if errors.As(err, &verrs) {
		writeJSON(w, http.StatusBadRequest, errorBody(verrs.Error(), apperr.ErrBadRequest.Error()))
		return
	}
	slog.Error("request failed",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()))
	writeJSON(w, http.StatusInternalServerError, errorBody("internal error", apperr.ErrInternal.Error()))
}
