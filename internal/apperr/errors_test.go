package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestErrorMatchesSentinel(t *testing.T) {
	err := New(ErrConflict, "File already exists: %s", "a.txt")
	if !errors.Is(err, ErrConflict) {
		t.Fatal("errors.Is(err, ErrConflict) = false")
	}
	if errors.Is(err, ErrNotFound) {
		t.Error("conflict error should not match ErrNotFound")
	}
	if err.Error() != "File already exists: a.txt" {
		t.Errorf("message = %q", err.Error())
	}
	if err.Reason() != "conflict" {
		t.Errorf("reason = %q", err.Reason())
	}
}

func TestStatusMapping(t *testing.T) {
	cases := map[error]int{
		ErrNotFound:         http.StatusNotFound,
		ErrBadType:          http.StatusBadRequest,
		ErrBadFormat:        http.StatusBadRequest,
		ErrBadRequest:       http.StatusBadRequest,
		ErrNotEmpty:         http.StatusBadRequest,
		ErrPermissionDenied: http.StatusForbidden,
		ErrConflict:         http.StatusConflict,
		ErrInternal:         http.StatusInternalServerError,
	}
	for kind, want := range cases {
		if got := New(kind, "x").StatusCode(); got != want {
			t.Errorf("%v: status = %d, want %d", kind, got, want)
		}
	}
	if got := Status(errors.New("boom")); got != http.StatusInternalServerError {
		t.Errorf("unclassified status = %d", got)
	}
}

func TestClassifiedThroughWrapping(t *testing.T) {
	wrapped := fmt.Errorf("save: %w", New(ErrPermissionDenied, "Permission denied: x"))
	if !Classified(wrapped) {
		t.Error("wrapped *Error should be classified")
	}
	if Status(wrapped) != http.StatusForbidden {
		t.Errorf("status = %d", Status(wrapped))
	}
	if Classified(errors.New("plain")) {
		t.Error("plain error should not be classified")
	}
}
