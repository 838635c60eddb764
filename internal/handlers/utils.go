package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fintrack/apiserver/internal/services"
	"github.com/fintrack/apiserver/internal/store"
)

type contextKey string

const contextSubjectKey contextKey = "sub"

// Stable machine-checkable error codes, one per error kind.
const (
	codeValidation     = "validation_error"
	codeAuthentication = "authentication_error"
	codeConflict       = "conflict"
	codeNotFound       = "not_found"
	codeInternal       = "internal_error"
	codeUnavailable    = "unavailable"
)

// ErrorResponse is the error payload every endpoint returns on failure.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
	Field string `json:"field,omitempty"`
}

// MessageResponse is a simple confirmation payload.
type MessageResponse struct {
	Message string `json:"message"`
}

func userIDFromContext(ctx context.Context) (int, error) {
	subject, ok := ctx.Value(contextSubjectKey).(int)
	if !ok || subject < 1 {
		return 0, errors.New("missing subject")
	}
	return subject, nil
}

// Healthz reports process liveness.
func Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message, Code: codeForStatus(status)})
}

// writeServiceError maps the service error taxonomy to fixed HTTP
// statuses. Unclassified errors surface as the fallback message only; no
// internal detail crosses the boundary.
func writeServiceError(w http.ResponseWriter, err error, fallback string) {
	var validationErr *services.ValidationError
	switch {
	case errors.As(err, &validationErr):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error: validationErr.Message,
			Code:  codeValidation,
			Field: validationErr.Field,
		})
	case errors.Is(err, services.ErrEmailTaken):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, services.ErrInvalidCredentials), errors.Is(err, services.ErrInvalidToken):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "transaction not found")
	default:
		writeError(w, http.StatusInternalServerError, fallback)
	}
}

func codeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return codeValidation
	case http.StatusUnauthorized:
		return codeAuthentication
	case http.StatusNotFound:
		return codeNotFound
	case http.StatusConflict:
		return codeConflict
	case http.StatusServiceUnavailable:
		return codeUnavailable
	default:
		return codeInternal
	}
}
