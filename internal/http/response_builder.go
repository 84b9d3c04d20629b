// Package http exposes the paylog services as a JSON API.
//
// This file implements a small builder for JSON responses and the two error
// shapes the API speaks: the success/error envelope of the account endpoints
// and the detail/field-map shape of the resource endpoints.

package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sort"

	"paylog/internal/core"
)

// JSONResponseBuilder provides a fluent API for building JSON responses.
type JSONResponseBuilder struct {
	statusCode int
	body       any
	headers    map[string]string
}

// NewJSONResponse creates a new response builder with default 200 status.
func NewJSONResponse() *JSONResponseBuilder {
	return &JSONResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

// Status sets the HTTP status code for the response.
func (b *JSONResponseBuilder) Status(code int) *JSONResponseBuilder {
	b.statusCode = code
	return b
}

// Header adds a custom header to the response.
func (b *JSONResponseBuilder) Header(name, value string) *JSONResponseBuilder {
	b.headers[name] = value
	return b
}

// Body sets the value encoded as the response body. A nil body writes no
// content.
func (b *JSONResponseBuilder) Body(v any) *JSONResponseBuilder {
	b.body = v
	return b
}

// Write sends the built response to the http.ResponseWriter.
func (b *JSONResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	if b.body == nil {
		w.WriteHeader(b.statusCode)
		return
	}

	payload, err := json.Marshal(b.body)
	if err != nil {
		slog.Error("Failed to encode response", "component", "http", "error", err)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"detail":"Internal server error."}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(b.statusCode)
	_, _ = w.Write(payload)
	_, _ = w.Write([]byte("\n"))
}

// envelope is the success/error wrapper of the account endpoints.
type envelope struct {
	Success bool           `json:"success"`
	Message string         `json:"message,omitempty"`
	Data    any            `json:"data,omitempty"`
	Error   *envelopeError `json:"error,omitempty"`
}

type envelopeError struct {
	Message string              `json:"message"`
	Details map[string][]string `json:"details,omitempty"`
}

// SuccessResponse wraps data in the success envelope.
func SuccessResponse(message string, data any) *JSONResponseBuilder {
	return NewJSONResponse().Body(envelope{Success: true, Message: message, Data: data})
}

// errorStyle selects how an error is rendered.
type errorStyle int

const (
	// styleEnvelope renders {"success": false, "error": {...}}.
	styleEnvelope errorStyle = iota
	// styleDetail renders {"detail": msg} or a field map.
	styleDetail
)

const msgInternal = "Internal server error."

// statusFor maps an error kind to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, core.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, core.ErrTooManyAttempts):
		return http.StatusTooManyRequests
	case errors.Is(err, core.ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		// delivery failures included
		return http.StatusInternalServerError
	}
}

// publicMessage is the text shown to clients. Errors without a domain kind
// never leak their message.
func publicMessage(err error) string {
	var verr *core.ValidationError
	if errors.As(err, &verr) {
		return verr.Message
	}
	var kerr *core.KindError
	if errors.As(err, &kerr) {
		return kerr.Message
	}
	return msgInternal
}

// fieldDetails converts field messages into the list-per-field shape.
func fieldDetails(err error) map[string][]string {
	var verr *core.ValidationError
	if !errors.As(err, &verr) || len(verr.Fields) == 0 {
		return nil
	}
	keys := make([]string, 0, len(verr.Fields))
	for k := range verr.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make(map[string][]string, len(keys))
	for _, k := range keys {
		out[k] = []string{verr.Fields[k]}
	}
	return out
}

// ErrorResponse renders err in the given style.
func ErrorResponse(style errorStyle, err error) *JSONResponseBuilder {
	status := statusFor(err)
	b := NewJSONResponse().Status(status)
	if status == http.StatusUnauthorized {
		b.Header("WWW-Authenticate", `Bearer realm="api"`)
	}

	if style == styleEnvelope {
		return b.Body(envelope{Error: &envelopeError{Message: publicMessage(err), Details: fieldDetails(err)}})
	}
	if details := fieldDetails(err); details != nil {
		return b.Body(details)
	}
	return b.Body(map[string]string{"detail": publicMessage(err)})
}

// DetailResponse renders {"detail": message} with status.
func DetailResponse(status int, message string) *JSONResponseBuilder {
	return NewJSONResponse().Status(status).Body(map[string]string{"detail": message})
}
