// internal/utils/response.go

// Package utils holds HTTP response helpers shared by the handlers and the router.
package utils

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
)

// genericErrorDetail replaces raw error text outside development mode.
const genericErrorDetail = "Something went wrong"

// Envelope is the body shape of every JSON response.
type Envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// RespondWithJSON writes payload as JSON with the given status code.
func RespondWithJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}

// RespondWithSuccess writes a successful envelope.
func RespondWithSuccess(w http.ResponseWriter, code int, data any, message string) {
	RespondWithJSON(w, code, Envelope{Success: true, Data: data, Message: message})
}

// RespondWithError writes a failed envelope without error detail.
func RespondWithError(w http.ResponseWriter, code int, message string) {
	RespondWithJSON(w, code, Envelope{Success: false, Message: message})
}

// RespondWithInternalError writes a failed envelope whose error field carries
// err's text in development mode and a generic string otherwise.
func RespondWithInternalError(w http.ResponseWriter, code int, message string, err error, development bool) {
	detail := genericErrorDetail
	if development && err != nil {
		detail = err.Error()
	}
	RespondWithJSON(w, code, Envelope{Success: false, Message: message, Error: detail})
}

// ParseJSONRequest decodes the request body into target. An empty body
// leaves target untouched.
func ParseJSONRequest(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(target); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
