package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/desertthunder/shelves/internal/shared"
)

const maxBodyBytes = 4 << 20

type errorResponse struct {
	Error       string `json:"error"`
	NeedsReauth bool   `json:"needsReauth,omitempty"`
}

type validator interface {
	Validate() error
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// statusFor maps sentinel errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, shared.ErrInvalidAlbumURL),
		errors.Is(err, shared.ErrInvalidPayload),
		errors.Is(err, shared.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, shared.ErrNotAuthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, shared.ErrAlbumNotFound),
		errors.Is(err, shared.ErrUserNotFound),
		errors.Is(err, shared.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, shared.ErrStoreUnavailable),
		errors.Is(err, shared.ErrServiceUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, shared.ErrMissingCredentials):
		return http.StatusInternalServerError
	case errors.Is(err, shared.ErrAPIRequest):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// message is the client-facing text for err. Internal failures are not echoed.
func message(err error, status int) string {
	switch {
	case errors.Is(err, shared.ErrInvalidAlbumURL):
		return "Invalid Spotify album URL"
	case errors.Is(err, shared.ErrAlbumNotFound):
		return "Album not found"
	case errors.Is(err, shared.ErrUserNotFound):
		return "User not found"
	case errors.Is(err, shared.ErrNotAuthenticated):
		return "Not authenticated"
	case status == http.StatusBadRequest:
		return err.Error()
	case status == http.StatusServiceUnavailable:
		return "Storage unavailable"
	default:
		return "Internal server error"
	}
}

func (a *apiHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= 500 {
		a.deps.Logger.Error("request failed", "path", r.URL.Path, "error", err)
	} else {
		a.deps.Logger.Debug("request rejected", "path", r.URL.Path, "status", status, "error", err)
	}
	writeJSON(w, status, errorResponse{Error: message(err, status)})
}

// decodeJSON reads a single JSON object into v, rejecting unknown fields, then validates it.
func decodeJSON(r *http.Request, v validator) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrInvalidPayload, err)
	}
	if dec.More() {
		return fmt.Errorf("%w: trailing data after JSON object", shared.ErrInvalidPayload)
	}
	return v.Validate()
}
