package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"

	"github.com/rhuss/byok/pkg/api"
)

// maxErrorBody bounds how much of a vendor error body is read.
const maxErrorBody = 4096

// vendorErrorBody matches the error envelope used by both OpenAI
// ({"error":{"message":...}}) and Anthropic ({"type":"error","error":{...}}).
type vendorErrorBody struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// ClassifyHTTPError converts a non-2xx vendor response into a canonical
// APIError. The vendor's own message is kept as details.
func ClassifyHTTPError(resp *http.Response) *api.APIError {
	return ClassifyStatus(resp.StatusCode, ExtractErrorMessage(resp.Body))
}

// ClassifyStatus maps a vendor HTTP status onto a canonical error kind.
func ClassifyStatus(status int, vendorMessage string) *api.APIError {
	details := vendorMessage
	if details == "" {
		details = fmt.Sprintf("HTTP %d", status)
	}

	switch {
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return api.NewVendorError(api.ErrorCodeInvalidRequest, "the provider rejected the request", details)

	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return api.NewVendorError(api.ErrorCodeInvalidAPIKey, "the provider rejected the API key", details)

	case status == http.StatusNotFound:
		return api.NewVendorError(api.ErrorCodeModelNotFound, "the requested model was not found", details)

	case status == http.StatusTooManyRequests:
		return api.NewVendorError(api.ErrorCodeRateLimitExceeded, "the provider rate limit was exceeded", details)

	case status >= http.StatusInternalServerError:
		return api.NewVendorError(api.ErrorCodeServerError,
			fmt.Sprintf("the provider failed (HTTP %d)", status), details)

	default:
		return api.NewVendorError(api.ErrorCodeUnknownError,
			fmt.Sprintf("unexpected provider response (HTTP %d)", status), details)
	}
}

// ClassifyNetworkError converts a transport failure into an APIError.
// Timeouts and connection failures are server errors, caller
// cancellation is reported as cancelled.
func ClassifyNetworkError(err error) *api.APIError {
	if errors.Is(err, context.Canceled) {
		return api.NewVendorError(api.ErrorCodeCancelled, "the request was cancelled", err.Error())
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return api.NewVendorError(api.ErrorCodeServerError, "the provider did not respond in time", err.Error())
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return api.NewVendorError(api.ErrorCodeServerError, "could not reach the provider", err.Error())
	}
	return api.NewVendorError(api.ErrorCodeUnknownError, "provider call failed", err.Error())
}

// ClassifyStreamError maps an in-band streaming error, identified by the
// vendor's error type string, onto a canonical kind.
func ClassifyStreamError(vendorType, message string) *api.APIError {
	switch vendorType {
	case "invalid_request_error":
		return api.NewVendorError(api.ErrorCodeInvalidRequest, "the provider rejected the request", message)
	case "authentication_error", "permission_error":
		return api.NewVendorError(api.ErrorCodeInvalidAPIKey, "the provider rejected the API key", message)
	case "not_found_error":
		return api.NewVendorError(api.ErrorCodeModelNotFound, "the requested model was not found", message)
	case "rate_limit_error":
		return api.NewVendorError(api.ErrorCodeRateLimitExceeded, "the provider rate limit was exceeded", message)
	case "api_error", "overloaded_error", "server_error":
		return api.NewVendorError(api.ErrorCodeServerError, "the provider failed mid-stream", message)
	default:
		return api.NewVendorError(api.ErrorCodeUnknownError, "the provider reported an error", message)
	}
}

// ExtractErrorMessage reads a vendor error envelope and returns its message.
// A body that is not an envelope is returned as plain text.
func ExtractErrorMessage(body io.Reader) string {
	if body == nil {
		return ""
	}

	data, err := io.ReadAll(io.LimitReader(body, maxErrorBody))
	if err != nil || len(data) == 0 {
		return ""
	}

	var env vendorErrorBody
	if err := json.Unmarshal(data, &env); err == nil && env.Error.Message != "" {
		return env.Error.Message
	}

	return Truncate(string(data), 200)
}
