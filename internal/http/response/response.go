// Package response writes JSON bodies for the handlers that bypass huma:
// multipart uploads, audio streams and the Stripe webhook.
package response

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	apperr "github.com/alreadydone/alreadydone-server/internal/errors"
	"github.com/alreadydone/alreadydone-server/internal/store"
)

// ErrorBody matches what huma operations return for a failed request.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// JSON writes data with the given status.
func JSON(w http.ResponseWriter, status int, data any, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil && logger != nil {
		logger.Error("failed to encode JSON response", "error", err)
	}
}

// Error renders err as an ErrorBody. Domain errors keep their code and
// status, store not-found becomes 404, anything else is a 500 whose cause
// is logged but not returned.
func Error(w http.ResponseWriter, err error, logger *slog.Logger) {
	var domainErr *apperr.Error
	if errors.As(err, &domainErr) {
		if !domainErr.Code.ClientSide() && logger != nil {
			logger.Error("request failed", "code", domainErr.Code, "error", err)
		}
		JSON(w, domainErr.HTTPStatus(), ErrorBody{
			Code:    string(domainErr.Code),
			Message: domainErr.Message,
			Details: domainErr.Details,
		}, logger)
		return
	}

	if errors.Is(err, store.ErrNotFound) {
		JSON(w, http.StatusNotFound, ErrorBody{Code: string(apperr.CodeNotFound), Message: err.Error()}, logger)
		return
	}

	if logger != nil {
		logger.Error("unhandled error", "error", err)
	}
	JSON(w, http.StatusInternalServerError, ErrorBody{
		Code:    string(apperr.CodeInternal),
		Message: "internal server error",
	}, logger)
}
