package web

// errors.go provides unified error response handling for the web layer.
//
// Errors are logged with full technical detail server-side, mapped through
// core.MapError to a user-facing message, and rendered as JSON for API
// callers or as an HTML alert for pages.

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/JonMunkholm/spendcheck/internal/core"
	"github.com/JonMunkholm/spendcheck/internal/logging"
	"github.com/JonMunkholm/spendcheck/internal/store"
	"github.com/JonMunkholm/spendcheck/internal/web/templates"
)

// ErrorResponse is the JSON body of every API error.
// Code is machine-readable; Message and Action are meant for people.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// statusFor picks the HTTP status for an error returned by core or store.
func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrRunNotFound),
		errors.Is(err, core.ErrArtifactNotFound),
		errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrTooManyRuns):
		return http.StatusTooManyRequests
	case errors.Is(err, core.ErrIllegalTransition),
		errors.Is(err, core.ErrPendingFixes):
		return http.StatusConflict
	case core.IsUnrecoverable(err):
		return http.StatusInternalServerError
	case core.IsInputError(err), core.IsRangeError(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// respondError logs err and writes the mapped response.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := core.MapError(err)

	logger := logging.WithFields(r.Context(),
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"code", msg.Code,
		"error", err.Error(),
	)
	if status >= http.StatusInternalServerError {
		logger.Error("request error")
	} else {
		logger.Warn("request rejected")
	}

	// Client errors carry the technical detail, it names the offending
	// row or field. Server errors never do.
	detail := msg.Message
	if status < http.StatusInternalServerError {
		detail = err.Error()
	}

	if wantsJSON(r) {
		writeJSON(w, status, ErrorResponse{
			Error:   detail,
			Message: msg.Message,
			Action:  msg.Action,
			Code:    msg.Code,
		})
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	templates.ErrorAlert(msg.Message, msg.Action, msg.Code).Render(r.Context(), w)
}

// writeError writes an error that did not come from core, such as a
// malformed body or an exhausted rate limit.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	logging.WithFields(r.Context(), "path", r.URL.Path, "status", status, "code", code).
		Warn("request rejected", "reason", message)
	writeJSON(w, status, ErrorResponse{
		Error:   message,
		Message: message,
		Code:    code,
	})
}

// writeJSON encodes v as the response body.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// wantsJSON checks if the client prefers a JSON response.
func wantsJSON(r *http.Request) bool {
	if strings.Contains(r.Header.Get("Accept"), "application/json") {
		return true
	}
	if strings.Contains(r.Header.Get("Content-Type"), "application/json") {
		return true
	}
	// API routes default to JSON
	return strings.HasPrefix(r.URL.Path, "/api/")
}
