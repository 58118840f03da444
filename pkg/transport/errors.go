package transport

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/rhuss/byok/pkg/api"
	"github.com/rhuss/byok/pkg/credentials"
	"github.com/rhuss/byok/pkg/storage"
)

// StatusClientClosedRequest reports a request the client abandoned.
const StatusClientClosedRequest = 499

// HTTPStatusFromError maps a canonical error code to an HTTP status.
func HTTPStatusFromError(err *api.APIError) int {
	switch err.Code {
	case api.ErrorCodeInvalidRequest, api.ErrorCodeUnsupportedProvider:
		return http.StatusBadRequest
	case api.ErrorCodeInvalidAPIKey:
		return http.StatusUnauthorized
	case api.ErrorCodeNotFound, api.ErrorCodeModelNotFound:
		return http.StatusNotFound
	case api.ErrorCodeRateLimitExceeded:
		return http.StatusTooManyRequests
	case api.ErrorCodeCancelled:
		return StatusClientClosedRequest
	default:
		return http.StatusInternalServerError
	}
}

// ToAPIError converts any error into a canonical one. Storage and
// credential sentinels get their own codes; everything else goes through
// api.AsAPIError.
func ToAPIError(err error) *api.APIError {
	var apiErr *api.APIError
	switch {
	case errors.As(err, &apiErr):
		return apiErr
	case errors.Is(err, storage.ErrNotFound):
		return api.NewNotFoundError(err.Error())
	case errors.Is(err, storage.ErrConflict), errors.Is(err, storage.ErrInvalidTransition):
		return api.NewInvalidRequestError("", err.Error())
	case errors.Is(err, credentials.ErrDecrypt):
		return newInternalError("stored credential could not be decrypted")
	}
	return api.AsAPIError(err)
}

func newInternalError(msg string) *api.APIError {
	return api.NewServerError(msg)
}

// WriteErrorResponse writes a JSON error response using the ErrorResponse
// wrapper format from pkg/api.
func WriteErrorResponse(w http.ResponseWriter, apiErr *api.APIError, statusCode int) {
	WriteJSON(w, statusCode, api.ErrorResponse{Error: apiErr})
}

// WriteAPIError writes an APIError response, deriving the HTTP status code
// from the error code.
func WriteAPIError(w http.ResponseWriter, apiErr *api.APIError) {
	WriteErrorResponse(w, apiErr, HTTPStatusFromError(apiErr))
}

// WriteError converts err with ToAPIError and writes it.
func WriteError(w http.ResponseWriter, err error) {
	WriteAPIError(w, ToAPIError(err))
}

// WriteJSON encodes v as the response body with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("writing JSON response failed", "error", err)
	}
}
