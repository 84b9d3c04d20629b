package core

import (
	"errors"
	"sort"
	"strings"
)

// Error kinds. Every error returned by services wraps exactly one of these so
// transports can map it without inspecting messages.
var (
	ErrValidation      = errors.New("validation failed")
	ErrConflict        = errors.New("conflict")
	ErrNotFound        = errors.New("not found")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrForbidden       = errors.New("forbidden")
	ErrUnavailable     = errors.New("service unavailable")
	ErrTooManyAttempts = errors.New("too many attempts")
	ErrDelivery        = errors.New("delivery failed")
)

// ValidationError carries per-field messages. It matches ErrValidation.
type ValidationError struct {
	Message string
	Fields  map[string]string
}

// NewFieldError builds a ValidationError for a single field.
func NewFieldError(field, msg string) *ValidationError {
	return &ValidationError{
		Message: "Invalid request data.",
		Fields:  map[string]string{field: msg},
	}
}

// NewValidationError builds a ValidationError without field details.
func NewValidationError(msg string) *ValidationError {
	return &ValidationError{Message: msg}
}

// Add records a field message, keeping the first one reported per field.
func (e *ValidationError) Add(field, msg string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	if _, ok := e.Fields[field]; !ok {
		e.Fields[field] = msg
	}
}

// Empty reports whether no field errors were recorded.
func (e *ValidationError) Empty() bool {
	return len(e.Fields) == 0
}

// OrNil returns nil when nothing was recorded, so callers can `return v.OrNil()`.
func (e *ValidationError) OrNil() error {
	if e == nil || (e.Empty() && e.Message == "") {
		return nil
	}
	if e.Message == "" {
		e.Message = "Invalid request data."
	}
	return e
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return e.Message
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return e.Message + " (" + strings.Join(parts, "; ") + ")"
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// KindError attaches a user-facing message to one of the error kinds.
type KindError struct {
	Kind    error
	Message string
}

func (e *KindError) Error() string { return e.Message }

func (e *KindError) Unwrap() error { return e.Kind }

// Conflict, NotFound and friends build KindErrors with a message.
func Conflict(msg string) error        { return &KindError{Kind: ErrConflict, Message: msg} }
func NotFound(msg string) error        { return &KindError{Kind: ErrNotFound, Message: msg} }
func Unauthorized(msg string) error    { return &KindError{Kind: ErrUnauthorized, Message: msg} }
func Forbidden(msg string) error       { return &KindError{Kind: ErrForbidden, Message: msg} }
func Unavailable(msg string) error     { return &KindError{Kind: ErrUnavailable, Message: msg} }
func TooManyAttempts(msg string) error { return &KindError{Kind: ErrTooManyAttempts, Message: msg} }
func DeliveryFailed(msg string) error  { return &KindError{Kind: ErrDelivery, Message: msg} }
