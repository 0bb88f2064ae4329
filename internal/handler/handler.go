// Package handler holds the HTTP handlers of the dashboard API.
package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"

	"github.com/pantrynav/pantrynav/internal/handler/dto"
)

// Handler serves the fallback routes of the router.
type Handler struct{}

func New() *Handler {
	return &Handler{}
}

func (h *Handler) NotFound(w http.ResponseWriter, _ *http.Request) {
	writeError(w, http.StatusNotFound, "NOT_FOUND", "resource not found")
}

func (h *Handler) MethodNotAllowed(w http.ResponseWriter, _ *http.Request) {
	writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Headers are sent; a failed encode means the client went away.
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, dto.ErrorResponse{Error: message, Code: code})
}

// requestError is a decode failure with the response it maps to.
type requestError struct {
	status int
	code   string
	msg    string
}

func (e *requestError) Error() string { return e.msg }

func badRequest(format string, args ...any) error {
	return &requestError{http.StatusBadRequest, "INVALID_JSON", fmt.Sprintf(format, args...)}
}

// decodeJSON reads exactly one JSON object into dst. A Content-Type other
// than application/json is rejected; a missing one is accepted.
func decodeJSON(r *http.Request, dst any) error {
	if ct := r.Header.Get("Content-Type"); ct != "" {
		if mt, _, err := mime.ParseMediaType(ct); err != nil || mt != "application/json" {
			return &requestError{http.StatusUnsupportedMediaType, "UNSUPPORTED_MEDIA_TYPE", "Content-Type must be application/json"}
		}
	}

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	err := dec.Decode(dst)

	var maxErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxErr):
		return &requestError{http.StatusRequestEntityTooLarge, "BODY_TOO_LARGE", "request body too large"}
	case errors.Is(err, io.EOF):
		return badRequest("Invalid JSON: request body is empty")
	case err != nil:
		return badRequest("Invalid JSON: %v", err)
	case dec.More():
		return badRequest("Invalid JSON: request body must contain a single JSON object")
	}
	return nil
}

func writeDecodeError(w http.ResponseWriter, err error) {
	var re *requestError
	if errors.As(err, &re) {
		writeError(w, re.status, re.code, re.msg)
		return
	}
	writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid JSON: "+err.Error())
}
