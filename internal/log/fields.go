package log

import (
	"errors"

	"paylog/internal/core"
)

// Common field names for structured logging
const (
	FieldComponent     = "component"
	FieldRequestID     = "request_id"
	FieldClientIP      = "client_ip"
	FieldMethod        = "method"
	FieldPath          = "path"
	FieldQuery         = "query"
	FieldStatusCode    = "status_code"
	FieldDuration      = "duration_ms"
	FieldDurationHuman = "duration_human"
	FieldUserAgent     = "user_agent"
	FieldSuccess       = "success"
	FieldError         = "error"
	FieldErrorType     = "error_type"
	FieldOperation     = "operation"
	FieldUserID        = "user_id"
	FieldEntityID      = "id"
	FieldDirection     = "type"
	FieldAmount        = "amount"
	FieldCurrency      = "currency"
	FieldBalance       = "balance"
	FieldChatKind      = "chat_type"
	FieldOTPChannel    = "channel"
)

// Components defines standard component names
const (
	ComponentApp       = "app"
	ComponentHTTP      = "http"
	ComponentAuth      = "auth"
	ComponentOTP       = "otp"
	ComponentLedger    = "ledger"
	ComponentDebtor    = "debtor"
	ComponentBalance   = "balance"
	ComponentChat      = "chat"
	ComponentCatalog   = "catalog"
	ComponentStorage   = "storage"
	ComponentAMQP      = "amqp"
	ComponentTelegram  = "telegram"
	ComponentSecurity  = "security"
	ComponentRateLimit = "rate_limit"
	ComponentCLI       = "cli"
)

// Operations defines standard operation names
const (
	OpCreate    = "create"
	OpRead      = "read"
	OpUpdate    = "update"
	OpDelete    = "delete"
	OpList      = "list"
	OpRecompute = "recompute"
	OpAudit     = "audit"
	OpSendOTP   = "send_otp"
	OpVerifyOTP = "verify_otp"
	OpPublish   = "publish"
	OpMigrate   = "migrate"
	OpShutdown  = "shutdown"
	OpStartup   = "startup"
)

// ErrorTypes defines standard error type categories
const (
	ErrorTypeValidation      = "validation_error"
	ErrorTypeConfiguration   = "configuration_error"
	ErrorTypeDatabase        = "database_error"
	ErrorTypeAuth            = "auth_error"
	ErrorTypeForbidden       = "forbidden_error"
	ErrorTypeNotFound        = "not_found_error"
	ErrorTypeConflict        = "conflict_error"
	ErrorTypeUnavailable     = "unavailable_error"
	ErrorTypeTooManyAttempts = "too_many_attempts_error"
	ErrorTypeDelivery        = "delivery_error"
	ErrorTypeInternal        = "internal_error"
)

// ErrorType classifies err by the domain error kind it wraps.
func ErrorType(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, core.ErrValidation):
		return ErrorTypeValidation
	case errors.Is(err, core.ErrUnauthorized):
		return ErrorTypeAuth
	case errors.Is(err, core.ErrForbidden):
		return ErrorTypeForbidden
	case errors.Is(err, core.ErrNotFound):
		return ErrorTypeNotFound
	case errors.Is(err, core.ErrConflict):
		return ErrorTypeConflict
	case errors.Is(err, core.ErrUnavailable):
		return ErrorTypeUnavailable
	case errors.Is(err, core.ErrTooManyAttempts):
		return ErrorTypeTooManyAttempts
	case errors.Is(err, core.ErrDelivery):
		return ErrorTypeDelivery
	default:
		return ErrorTypeInternal
	}
}

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

// NewFields creates a new LogFields instance
func NewFields() LogFields {
	return make(LogFields)
}

// WithComponent adds component field
func (f LogFields) WithComponent(component string) LogFields {
	f[FieldComponent] = component
	return f
}

// WithRequestID adds request ID field
func (f LogFields) WithRequestID(requestID string) LogFields {
	if requestID != "" {
		f[FieldRequestID] = requestID
	}
	return f
}

// WithClientIP adds client IP field
func (f LogFields) WithClientIP(ip string) LogFields {
	f[FieldClientIP] = ip
	return f
}

// WithError adds the error and its type
func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
		f[FieldErrorType] = ErrorType(err)
	}
	return f
}

// WithOperation adds operation field
func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

// WithUser adds the authenticated user id
func (f LogFields) WithUser(userID int64) LogFields {
	if userID > 0 {
		f[FieldUserID] = userID
	}
	return f
}

// WithBalance adds a balance and its currency label, null for an empty set
func (f LogFields) WithBalance(b core.Balance) LogFields {
	f[FieldBalance] = core.FormatAmount(b.Total)
	if b.Currency != nil {
		f[FieldCurrency] = b.Currency.Code
	} else {
		f[FieldCurrency] = nil
	}
	return f
}

// WithHTTPRequest adds HTTP request fields
func (f LogFields) WithHTTPRequest(method, path, query, userAgent string) LogFields {
	f[FieldMethod] = method
	f[FieldPath] = path
	if query != "" {
		f[FieldQuery] = query
	}
	if userAgent != "" {
		f[FieldUserAgent] = userAgent
	}
	return f
}

// WithHTTPResponse adds HTTP response fields
func (f LogFields) WithHTTPResponse(statusCode int, durationMs int64) LogFields {
	f[FieldStatusCode] = statusCode
	f[FieldDuration] = durationMs
	f[FieldSuccess] = statusCode < 400
	return f
}

// ToSlice converts LogFields to a slice for slog
func (f LogFields) ToSlice() []any {
	slice := make([]any, 0, len(f)*2)
	for k, v := range f {
		slice = append(slice, k, v)
	}
	return slice
}
