// Package shared centralizes JSON response envelopes so every handler emits
// the same shapes for success and failure.
package shared

import (
	"encoding/json"
	"net/http"

	dErrors "tunecast/pkg/domain-errors"
)

// ErrorResponse is the uniform failure envelope. No unhandled error ever
// reaches the caller with a different shape.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

// WriteJSON writes v as JSON with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError translates a domain error into the uniform failure envelope.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	WriteJSON(w, dErrors.ToHTTPStatus(code), ErrorResponse{
		Success: false,
		Error:   string(code),
		Message: dErrors.MessageOf(err),
	})
}
