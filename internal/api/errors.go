package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	apperr "github.com/alreadydone/alreadydone-server/internal/errors"
	"github.com/alreadydone/alreadydone-server/internal/store"
)

// codeRateLimited is only produced by the transport layer.
const codeRateLimited = "RATE_LIMITED"

// APIError is a custom error type that implements huma.StatusError.
// It maps domain errors to HTTP responses with consistent structure.
type APIError struct { //nolint:revive // API prefix is intentional for clarity
	status  int
	Code    string `json:"code" doc:"Machine-readable error code"`
	Message string `json:"message" doc:"Human-readable error message"`
	Details any    `json:"details,omitempty" doc:"Additional error details"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return e.Message
}

// GetStatus implements huma.StatusError.
func (e *APIError) GetStatus() int {
	return e.status
}

// ContentType returns the content type for the error response.
func (e *APIError) ContentType(_ string) string {
	return "application/json"
}

// RegisterErrorHandler configures huma to use domain errors.
// Call this after creating the huma.API but before registering routes.
func RegisterErrorHandler() {
	huma.NewError = newError
}

func newError(status int, message string, errs ...error) huma.StatusError {
	details := map[string]string{}
	for _, err := range errs {
		// Domain errors carry their own status.
		var domainErr *apperr.Error
		if errors.As(err, &domainErr) {
			return &APIError{
				status:  domainErr.HTTPStatus(),
				Code:    string(domainErr.Code),
				Message: domainErr.Message,
				Details: domainErr.Details,
			}
		}

		if errors.Is(err, store.ErrNotFound) {
			return &APIError{
				status:  http.StatusNotFound,
				Code:    string(apperr.CodeNotFound),
				Message: err.Error(),
			}
		}

		// Schema violations found by huma before the handler ran.
		var detailer huma.ErrorDetailer
		if errors.As(err, &detailer) {
			d := detailer.ErrorDetail()
			details[fieldName(d.Location)] = d.Message
		}
	}

	// Request validation is always a 400 so clients see one status for
	// malformed input, whether huma or a service rejected it.
	if status == http.StatusUnprocessableEntity || (status == http.StatusBadRequest && len(details) > 0) {
		e := &APIError{status: http.StatusBadRequest, Code: string(apperr.CodeValidation), Message: message}
		if len(details) > 0 {
			e.Details = details
		}
		return e
	}

	return &APIError{
		status:  status,
		Code:    statusToCode(status),
		Message: message,
	}
}

// fieldName turns "body.energyWord" into "energyWord".
func fieldName(location string) string {
	for _, prefix := range []string{"body.", "query.", "path.", "header."} {
		if rest, ok := strings.CutPrefix(location, prefix); ok {
			return rest
		}
	}
	return location
}

// statusToCode maps HTTP status codes to our domain error codes.
func statusToCode(status int) string {
	switch status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity, http.StatusRequestEntityTooLarge:
		return string(apperr.CodeValidation)
	case http.StatusNotFound:
		return string(apperr.CodeNotFound)
	case http.StatusConflict:
		return string(apperr.CodeConflict)
	case http.StatusTooManyRequests:
		return codeRateLimited
	case http.StatusBadGateway:
		return string(apperr.CodeUpstream)
	case http.StatusServiceUnavailable:
		return string(apperr.CodeNotConfigured)
	default:
		return string(apperr.CodeInternal)
	}
}
