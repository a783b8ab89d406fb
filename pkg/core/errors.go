package core

import (
	"errors"
	"fmt"
)

// Error represents an OmniGuide API error.
type Error struct {
	Type       ErrorType `json:"type"`
	Message    string    `json:"message"`
	Param      string    `json:"param,omitempty"`
	Code       string    `json:"code,omitempty"`
	RequestID  string    `json:"request_id,omitempty"`
	RetryAfter *int      `json:"retry_after,omitempty"`
	Fallback   *Fallback `json:"fallback,omitempty"`

	cause error
}

// Fallback is the substitute text shown when the gateway answered with
// something that could not be understood.
type Fallback struct {
	Analysis string `json:"analysis"`
	Speech   string `json:"speech"`
}

// Fallback text used for malformed gateway results.
const (
	FallbackAnalysis = "I'm sorry, I couldn't process that correctly."
	FallbackSpeech   = "I'm having trouble understanding the scene right now."
)

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s (code: %s)", e.Type, e.Message, e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// ErrorType categorizes errors.
type ErrorType string

const (
	ErrInvalidRequest ErrorType = "invalid_request_error"
	ErrNotFound       ErrorType = "not_found_error"
	ErrRateLimit      ErrorType = "rate_limit_error"
	ErrAPI            ErrorType = "api_error"
	ErrOverloaded     ErrorType = "overloaded_error"
	ErrGateway        ErrorType = "gateway_error"
	ErrMalformed      ErrorType = "malformed_result"
	ErrStorage        ErrorType = "storage_error"
)

// NewInvalidRequestError creates an invalid request error.
func NewInvalidRequestError(message string) *Error {
	return &Error{
		Type:    ErrInvalidRequest,
		Message: message,
	}
}

// NewInvalidRequestErrorWithParam creates an invalid request error with a parameter.
func NewInvalidRequestErrorWithParam(message, param string) *Error {
	return &Error{
		Type:    ErrInvalidRequest,
		Message: message,
		Param:   param,
	}
}

// NewNotFoundError creates a not found error.
func NewNotFoundError(message string) *Error {
	return &Error{
		Type:    ErrNotFound,
		Message: message,
	}
}

// NewRateLimitError creates a rate limit error.
func NewRateLimitError(message string, retryAfter int) *Error {
	return &Error{
		Type:       ErrRateLimit,
		Message:    message,
		RetryAfter: &retryAfter,
	}
}

// NewAPIError creates a generic API error.
func NewAPIError(message string) *Error {
	return &Error{
		Type:    ErrAPI,
		Message: message,
	}
}

// NewOverloadedError creates an overloaded error.
func NewOverloadedError(message string) *Error {
	return &Error{
		Type:    ErrOverloaded,
		Message: message,
	}
}

// NewGatewayError wraps a failure of the analysis gateway.
func NewGatewayError(underlying error) *Error {
	return &Error{
		Type:    ErrGateway,
		Message: "Failed to analyze scene",
		cause:   underlying,
	}
}

// NewMalformedResultError reports a gateway reply that could not be parsed
// and carries the fallback text.
func NewMalformedResultError(underlying error) *Error {
	return &Error{
		Type:     ErrMalformed,
		Message:  "Failed to analyze scene",
		Fallback: &Fallback{Analysis: FallbackAnalysis, Speech: FallbackSpeech},
		cause:    underlying,
	}
}

// NewStorageError wraps a session store failure.
func NewStorageError(op string, underlying error) *Error {
	return &Error{
		Type:    ErrStorage,
		Message: fmt.Sprintf("session store %s failed", op),
		cause:   underlying,
	}
}

// IsRetryable returns true if the error is retryable.
func (e *Error) IsRetryable() bool {
	switch e.Type {
	case ErrRateLimit, ErrOverloaded, ErrAPI, ErrGateway, ErrStorage:
		return true
	default:
		return false
	}
}

// Unwrap returns the underlying error for error wrapping.
func (e *Error) Unwrap() error {
	return e.cause
}

// AsError extracts a *Error from err's chain.
func AsError(err error) (*Error, bool) {
	var coreErr *Error
	if errors.As(err, &coreErr) && coreErr != nil {
		return coreErr, true
	}
	return nil, false
}
