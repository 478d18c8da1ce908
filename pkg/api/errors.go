package api

import (
	"errors"
	"fmt"
)

// ErrorType represents the category of an API error.
type ErrorType string

const (
	ErrorTypeServerError       ErrorType = "server_error"
	ErrorTypeInvalidRequest    ErrorType = "invalid_request"
	ErrorTypeNotFound          ErrorType = "not_found"
	ErrorTypeUpstreamAuth      ErrorType = "upstream_auth_error"
	ErrorTypeUpstreamProtocol  ErrorType = "upstream_protocol_error"
	ErrorTypeUpstreamTransport ErrorType = "upstream_transport_error"
	ErrorTypeContentFiltered   ErrorType = "content_filtered"
)

// Stable numeric error codes reported to callers.
const (
	CodeSystemError          = -1000
	CodeNoRouteMatching      = -1002
	CodeRequestParamsInvalid = -2000
	CodeRequestFailed        = -2001
	CodeTokenExpired         = -2002
	CodeContentFiltered      = -2006
)

// APIError represents a structured API error with type, code, param, and message.
// It optionally wraps the error that caused it.
type APIError struct {
	Type    ErrorType `json:"type"`
	Code    int       `json:"code"`
	Param   string    `json:"param,omitempty"`
	Message string    `json:"message"`

	// Timeout marks transport errors caused by an expired deadline.
	Timeout bool `json:"-"`

	cause error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Param != "" {
		return fmt.Sprintf("%s: %s (param: %s)", e.Type, e.Message, e.Param)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *APIError) Unwrap() error {
	return e.cause
}

// WithCause attaches the underlying error and returns e.
func (e *APIError) WithCause(err error) *APIError {
	e.cause = err
	return e
}

// Retryable reports whether a failed upstream attempt with this error
// may be repeated. Upstream auth errors are retryable here because the
// failing access token has been evicted by the time the error surfaces;
// a rejected refresh token is marked permanent by the credential layer.
func (e *APIError) Retryable() bool {
	switch e.Type {
	case ErrorTypeUpstreamAuth, ErrorTypeUpstreamProtocol, ErrorTypeUpstreamTransport:
		return true
	default:
		return false
	}
}

// ErrorResponse wraps an APIError for JSON serialization as the top-level error response.
type ErrorResponse struct {
	Error *APIError `json:"error"`
}

// AsAPIError extracts an *APIError from err, wrapping unknown errors as
// server errors.
func AsAPIError(err error) *APIError {
	if err == nil {
		return nil
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return NewServerError(err.Error()).WithCause(err)
}

// NewInvalidRequestError creates an APIError for invalid request parameters.
func NewInvalidRequestError(param, message string) *APIError {
	return &APIError{
		Type:    ErrorTypeInvalidRequest,
		Code:    CodeRequestParamsInvalid,
		Param:   param,
		Message: message,
	}
}

// NewNotFoundError creates an APIError for routes or resources that do not exist.
func NewNotFoundError(message string) *APIError {
	return &APIError{
		Type:    ErrorTypeNotFound,
		Code:    CodeNoRouteMatching,
		Message: message,
	}
}

// NewServerError creates an APIError for internal server errors.
func NewServerError(message string) *APIError {
	return &APIError{
		Type:    ErrorTypeServerError,
		Code:    CodeSystemError,
		Message: message,
	}
}

// NewUpstreamAuthError creates an APIError for a credential the upstream rejected.
func NewUpstreamAuthError(message string) *APIError {
	return &APIError{
		Type:    ErrorTypeUpstreamAuth,
		Code:    CodeTokenExpired,
		Message: message,
	}
}

// NewUpstreamProtocolError creates an APIError for an upstream response
// that does not follow the expected protocol.
func NewUpstreamProtocolError(message string) *APIError {
	return &APIError{
		Type:    ErrorTypeUpstreamProtocol,
		Code:    CodeRequestFailed,
		Message: message,
	}
}

// NewUpstreamTransportError creates an APIError for connection failures
// and timeouts talking to the upstream.
func NewUpstreamTransportError(message string, timeout bool) *APIError {
	return &APIError{
		Type:    ErrorTypeUpstreamTransport,
		Code:    CodeRequestFailed,
		Message: message,
		Timeout: timeout,
	}
}

// NewContentFilteredError creates an APIError for content the upstream
// refused on compliance grounds.
func NewContentFilteredError(message string) *APIError {
	return &APIError{
		Type:    ErrorTypeContentFiltered,
		Code:    CodeContentFiltered,
		Message: message,
	}
}
