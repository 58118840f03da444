package api

import (
	"errors"
	"fmt"
)

// ErrorCode is the canonical error kind. Vendor failures are classified
// into one of these codes by the adapters.
type ErrorCode string

const (
	ErrorCodeInvalidAPIKey       ErrorCode = "invalid_api_key"
	ErrorCodeInvalidRequest      ErrorCode = "invalid_request"
	ErrorCodeModelNotFound       ErrorCode = "model_not_found"
	ErrorCodeRateLimitExceeded   ErrorCode = "rate_limit_exceeded"
	ErrorCodeServerError         ErrorCode = "server_error"
	ErrorCodeUnknownError        ErrorCode = "unknown_error"
	ErrorCodeUnsupportedProvider ErrorCode = "unsupported_provider"
	ErrorCodeNotFound            ErrorCode = "not_found"
	ErrorCodeCancelled           ErrorCode = "cancelled"
)

// APIError is a classified error. Details holds the original vendor or
// underlying message when the error was translated from elsewhere.
type APIError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Param   string    `json:"param,omitempty"`
	Details string    `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Param != "" {
		return fmt.Sprintf("%s: %s (param: %s)", e.Code, e.Message, e.Param)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Info converts the error into the form persisted in message metadata.
func (e *APIError) Info() *ErrorInfo {
	return &ErrorInfo{
		Message: e.Message,
		Code:    e.Code,
		Details: e.Details,
	}
}

// ErrorResponse wraps an APIError for JSON serialization as the top-level error response.
type ErrorResponse struct {
	Error *APIError `json:"error"`
}

// NewInvalidRequestError creates an APIError for invalid request parameters.
func NewInvalidRequestError(param, message string) *APIError {
	return &APIError{
		Code:    ErrorCodeInvalidRequest,
		Param:   param,
		Message: message,
	}
}

// NewInvalidAPIKeyError creates an APIError for a missing or rejected credential.
func NewInvalidAPIKeyError(message string) *APIError {
	return &APIError{
		Code:    ErrorCodeInvalidAPIKey,
		Message: message,
	}
}

// NewNotFoundError creates an APIError for resources that cannot be found.
func NewNotFoundError(message string) *APIError {
	return &APIError{
		Code:    ErrorCodeNotFound,
		Message: message,
	}
}

// NewUnsupportedProviderError creates an APIError for an unknown provider id.
func NewUnsupportedProviderError(provider ProviderID) *APIError {
	return &APIError{
		Code:    ErrorCodeUnsupportedProvider,
		Param:   "provider",
		Message: fmt.Sprintf("provider %q is not supported", provider),
	}
}

// NewServerError creates an APIError for internal or upstream server errors.
func NewServerError(message string) *APIError {
	return &APIError{
		Code:    ErrorCodeServerError,
		Message: message,
	}
}

// NewCancelledError creates an APIError for a request aborted by the caller.
func NewCancelledError(message string) *APIError {
	return &APIError{
		Code:    ErrorCodeCancelled,
		Message: message,
	}
}

// NewVendorError creates an APIError of the given code that keeps the
// vendor's own message as details.
func NewVendorError(code ErrorCode, message, details string) *APIError {
	return &APIError{
		Code:    code,
		Message: message,
		Details: details,
	}
}

// AsAPIError returns the APIError in err's chain. Any other error is
// reported as unknown_error with its text kept as details.
func AsAPIError(err error) *APIError {
	if err == nil {
		return nil
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return &APIError{
		Code:    ErrorCodeUnknownError,
		Message: "unexpected error",
		Details: err.Error(),
	}
}

// CodeOf returns the canonical code of err, or the empty code for nil.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	return AsAPIError(err).Code
}
