package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unique error identifier
type ErrorCode string

const (
	// Request shape
	ErrCodeValidation      ErrorCode = "VALIDATION_ERROR"
	ErrCodeMissingRequired ErrorCode = "MISSING_REQUIRED"
	ErrCodeUnknownEvent    ErrorCode = "UNKNOWN_EVENT"

	// Resource
	ErrCodeNotFound ErrorCode = "NOT_FOUND"
	ErrCodeConflict ErrorCode = "CONFLICT"

	// Lifecycle
	ErrCodeState ErrorCode = "STATE_ERROR"

	// Challenge send rejections
	ErrCodePlayerNotFound ErrorCode = "PLAYER_NOT_FOUND"
	ErrCodePlayerOffline  ErrorCode = "PLAYER_OFFLINE"
	ErrCodeSelfChallenge  ErrorCode = "SELF_CHALLENGE"
	ErrCodePlayerInGame   ErrorCode = "PLAYER_IN_GAME"

	// Rate Limiting
	ErrCodeRateLimitExceeded ErrorCode = "RATE_LIMIT_EXCEEDED"

	// Connection
	ErrCodeConnectionClosed ErrorCode = "CONNECTION_CLOSED"
	ErrCodeSendBufferFull   ErrorCode = "SEND_BUFFER_FULL"

	// Internal
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
	ErrCodeDatabase ErrorCode = "DATABASE_ERROR"
	ErrCodeExternal ErrorCode = "EXTERNAL_SERVICE_ERROR"
)

// AppError is a structured error that can be returned to clients
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details any       `json:"details,omitempty"`
	cause   error
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s (cause: %v)", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.cause
}

// WithCause adds a cause to the error
func (e *AppError) WithCause(err error) *AppError {
	e.cause = err
	return e
}

// WithDetails adds details to the error
func (e *AppError) WithDetails(details any) *AppError {
	e.Details = details
	return e
}

// New creates a new AppError
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with an AppError
func Wrap(code ErrorCode, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		cause:   cause,
	}
}

// Common error constructors

func ValidationError(message string) *AppError {
	return New(ErrCodeValidation, message)
}

func MissingRequired(field string) *AppError {
	return New(ErrCodeMissingRequired, fmt.Sprintf("%s is required", field))
}

func UnknownEvent(name string) *AppError {
	return New(ErrCodeUnknownEvent, fmt.Sprintf("Unknown event %q", name))
}

func NotFound(resource string) *AppError {
	return New(ErrCodeNotFound, fmt.Sprintf("%s not found", resource))
}

func Conflict(message string) *AppError {
	return New(ErrCodeConflict, message)
}

func StateError(message string) *AppError {
	return New(ErrCodeState, message)
}

func PlayerNotFound() *AppError {
	return New(ErrCodePlayerNotFound, "Player does not exist")
}

func PlayerOffline() *AppError {
	return New(ErrCodePlayerOffline, "Player is not online")
}

func SelfChallenge() *AppError {
	return New(ErrCodeSelfChallenge, "Cannot send a challenge to yourself")
}

func PlayerInGame() *AppError {
	return New(ErrCodePlayerInGame, "Player is in a game")
}

func RateLimitExceeded() *AppError {
	return New(ErrCodeRateLimitExceeded, "Rate limit exceeded")
}

func ConnectionClosed() *AppError {
	return New(ErrCodeConnectionClosed, "Connection closed")
}

func SendBufferFull() *AppError {
	return New(ErrCodeSendBufferFull, "Connection send buffer full")
}

func Internal(message string) *AppError {
	return New(ErrCodeInternal, message)
}

func Database(cause error) *AppError {
	return Wrap(ErrCodeDatabase, "Database error", cause)
}

func External(service string, cause error) *AppError {
	return Wrap(ErrCodeExternal, fmt.Sprintf("External service error: %s", service), cause)
}

// IsAppError checks if an error is an AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// AsAppError converts an error to an AppError if possible
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// GetCode returns the error code if the error is an AppError, otherwise returns ErrCodeInternal
func GetCode(err error) ErrorCode {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code
	}
	return ErrCodeInternal
}

// HasCode reports whether err is an AppError carrying code.
func HasCode(err error, code ErrorCode) bool {
	appErr, ok := AsAppError(err)
	return ok && appErr.Code == code
}

// Public returns an AppError safe to show to a client. Non-AppErrors are
// replaced with a generic internal error so internals never leak.
func Public(err error) *AppError {
	appErr, ok := AsAppError(err)
	if !ok {
		return Internal("An unexpected error occurred")
	}
	switch appErr.Code {
	case ErrCodeDatabase, ErrCodeExternal:
		return Internal("An unexpected error occurred")
	}
	return &AppError{Code: appErr.Code, Message: appErr.Message, Details: appErr.Details}
}
