package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/Strob0t/CaseForge/internal/domain"
	"github.com/Strob0t/CaseForge/internal/resilience"
)

// readJSON decodes a size-limited JSON body into T. On failure it writes a
// 400 or 413 naming the problem and returns false.
func readJSON[T any](w http.ResponseWriter, r *http.Request, bodyLimit int64) (T, bool) {
	var v T
	r.Body = http.MaxBytesReader(w, r.Body, bodyLimit)
	err := json.NewDecoder(r.Body).Decode(&v)
	if err == nil {
		return v, true
	}

	var (
		tooLarge  *http.MaxBytesError
		syntaxErr *json.SyntaxError
		typeErr   *json.UnmarshalTypeError
	)
	switch {
	case errors.As(err, &tooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
	case errors.Is(err, io.EOF):
		writeError(w, http.StatusBadRequest, "request body is required")
	case errors.As(err, &syntaxErr):
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON at offset %d", syntaxErr.Offset))
	case errors.As(err, &typeErr) && typeErr.Field != "":
		writeError(w, http.StatusBadRequest, fmt.Sprintf("%s must be %s", typeErr.Field, typeErr.Type))
	default:
		writeError(w, http.StatusBadRequest, "invalid request body")
	}
	return v, false
}

func urlParam(r *http.Request, name string) string {
	return chi.URLParam(r, name)
}

// requireField writes a 400 and returns false when value is empty.
func requireField(w http.ResponseWriter, value, fieldName string) bool {
	if value == "" {
		writeError(w, http.StatusBadRequest, fieldName+" is required")
		return false
	}
	return true
}

type errorResponse struct {
	Error string `json:"error"`
	// Partial holds the work completed before the failure, if any.
	Partial any `json:"partial,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to write JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// domainStatus maps the domain error classes onto an HTTP status and a
// client-facing message. notFoundMsg is used when err carries no better
// description of what is missing.
func domainStatus(err error, notFoundMsg string) (int, string) {
	var pnf *domain.ParentNotFoundError
	switch {
	case errors.As(err, &pnf):
		return http.StatusNotFound, pnf.Error()
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, notFoundMsg
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict, "project was modified concurrently, retry the request"
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest, strings.TrimSuffix(err.Error(), ": "+domain.ErrValidation.Error())
	case errors.Is(err, domain.ErrUnavailable):
		return http.StatusServiceUnavailable, "store unavailable, retry later"
	case errors.Is(err, resilience.ErrCircuitOpen):
		return http.StatusServiceUnavailable, "upstream service is failing, retry later"
	case errors.Is(err, domain.ErrUpstream):
		return http.StatusBadGateway, err.Error()
	}
	return http.StatusInternalServerError, "internal server error"
}

func writeDomainError(w http.ResponseWriter, err error, notFoundMsg string) {
	writePartialError(w, err, notFoundMsg, nil)
}

// writePartialError is writeDomainError with partial attached to the body.
// A nil partial is omitted.
func writePartialError(w http.ResponseWriter, err error, notFoundMsg string, partial any) {
	status, msg := domainStatus(err, notFoundMsg)
	switch status {
	case http.StatusInternalServerError:
		slog.Error("request failed", "error", err)
	case http.StatusBadGateway, http.StatusServiceUnavailable:
		slog.Warn("dependency failed", "status", status, "error", err)
		if status == http.StatusServiceUnavailable {
			w.Header().Set("Retry-After", "1")
		}
	}
	writeJSON(w, status, errorResponse{Error: msg, Partial: partial})
}
