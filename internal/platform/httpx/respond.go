// Package httpx provides JSON response utilities using the portal envelope.
package httpx

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// Envelope is the response shape shared by every portal endpoint.
type Envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Total   *int   `json:"total,omitempty"`
	Error   string `json:"error,omitempty"`
	Details string `json:"details,omitempty"`
}

// JSON sends a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// OK sends a successful envelope wrapping data.
func OK(w http.ResponseWriter, data any) {
	JSON(w, http.StatusOK, Envelope{Success: true, Data: data})
}

// OKList sends a successful envelope with a total count for collection responses.
func OKList(w http.ResponseWriter, data any, total int) {
	JSON(w, http.StatusOK, Envelope{Success: true, Data: data, Total: &total})
}

// Created sends a successful envelope with a 201 status.
func Created(w http.ResponseWriter, data any) {
	JSON(w, http.StatusCreated, Envelope{Success: true, Data: data})
}

// Responder maps errors to envelopes. Diagnostic details are only exposed
// outside production.
type Responder struct {
	Logger        *slog.Logger
	ExposeDetails bool
}

// Fail sends a failure envelope with the given user-facing message.
func (re Responder) Fail(w http.ResponseWriter, status int, message string, err error) {
	body := Envelope{Success: false, Error: message}
	if err != nil {
		if re.ExposeDetails {
			body.Details = err.Error()
		}
		if status >= http.StatusInternalServerError && re.Logger != nil {
			re.Logger.Error("request failed", slog.Int("status", status), slog.Any("error", err))
		}
	}
	JSON(w, status, body)
}

// DecodeJSON decodes a JSON request body into the target struct.
func DecodeJSON(r *http.Request, target any) error {
	return json.NewDecoder(r.Body).Decode(target)
}
