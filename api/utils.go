package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"

	"scribe/core"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// errorResponse is the JSON body for all error replies.
type errorResponse struct {
	Error string `json:"error"`
}

var sensitivePatterns = []*regexp.Regexp{
	// Connection strings with credentials
	regexp.MustCompile(`(?i)(mongodb|redis|postgres|mysql)(\+srv)?://[^\s]+`),
	// Absolute file paths
	regexp.MustCompile(`(/[a-zA-Z0-9._-]+){2,}`),
	// Private network addresses
	regexp.MustCompile(`\b(10|127|192\.168|172\.(1[6-9]|2[0-9]|3[01]))(\.\d{1,3}){2,3}(:\d+)?\b`),
	// Key/token material
	regexp.MustCompile(`(?i)(api[_-]?key|token|secret|password|bearer)[=:\s]+[^\s]+`),
}

// sanitizeErrorMessage strips internals from error text before it is
// sent to a client. The full error is still logged server-side.
func sanitizeErrorMessage(msg string) string {
	for _, pattern := range sensitivePatterns {
		msg = pattern.ReplaceAllString(msg, "[redacted]")
	}
	// Drop anything that looks like a stack trace.
	if idx := strings.Index(msg, "goroutine "); idx >= 0 {
		msg = msg[:idx]
	}
	msg = strings.TrimSpace(msg)
	if len(msg) > core.MaxErrorMessageLength {
		msg = msg[:core.MaxErrorMessageLength-3] + "..."
	}
	return msg
}

// writeJSON sends a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError logs the full error and sends a sanitized message.
func writeError(w http.ResponseWriter, logger *zap.SugaredLogger, status int, message string, err error) {
	if err != nil {
		logger.Errorw("Request failed", "status", status, "message", message, "error", err)
		message = fmt.Sprintf("%s: %s", message, sanitizeErrorMessage(err.Error()))
	}
	writeJSON(w, status, errorResponse{Error: message})
}

// decodeJSONBody decodes a request body with a size limit and strict
// field checking, mapping decode failures to client-friendly messages.
func (a *API) decodeJSONBody(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	limit := a.config.Server.JSONBodyLimit
	if limit <= 0 {
		limit = 1 << 20
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		var syntaxErr *json.SyntaxError
		var typeErr *json.UnmarshalTypeError
		var maxBytesErr *http.MaxBytesError

		switch {
		case errors.As(err, &syntaxErr):
			return fmt.Errorf("malformed JSON at offset %d", syntaxErr.Offset)
		case errors.As(err, &typeErr):
			return fmt.Errorf("invalid value for field %q", typeErr.Field)
		case errors.As(err, &maxBytesErr):
			return fmt.Errorf("request body exceeds %d bytes", limit)
		case errors.Is(err, io.EOF):
			return fmt.Errorf("request body is empty")
		case strings.HasPrefix(err.Error(), "json: unknown field"):
			field := strings.TrimPrefix(err.Error(), "json: unknown field ")
			return fmt.Errorf("unknown field %s", field)
		default:
			return fmt.Errorf("invalid request body: %w", err)
		}
	}

	// Reject trailing garbage after the JSON value.
	if dec.More() {
		return fmt.Errorf("request body must contain a single JSON object")
	}
	return nil
}

// validateUUID checks that an ID path parameter is a valid UUID.
func validateUUID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("invalid id format")
	}
	return nil
}
