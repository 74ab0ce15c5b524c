package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"shopbot-api/internal/catalog"
	"shopbot-api/internal/upstream"
	"shopbot-api/pkg/apierror"
	"shopbot-api/pkg/response"
)

// writeError maps domain errors onto API errors and writes the response.
// Unmapped errors are logged and reported as 500.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	apiErr := toAPIError(err)
	if apiErr.StatusCode >= http.StatusInternalServerError {
		logger.Warn("request failed",
			"path", r.URL.Path,
			"status", apiErr.StatusCode,
			"error", err)
	}
	response.Error(w, apiErr)
}

func toAPIError(err error) *apierror.Error {
	var apiErr *apierror.Error
	var contractErr *upstream.ContractError

	switch {
	case errors.As(err, &apiErr):
		return apiErr
	case errors.Is(err, catalog.ErrItemNotFound):
		return apierror.NotFound("Item not found")
	case errors.Is(err, upstream.ErrNotInMatch):
		return apierror.NotFound("Player is not in a match")
	case errors.Is(err, upstream.ErrMaintenance):
		return apierror.Maintenance()
	case errors.Is(err, upstream.ErrUnavailable):
		return apierror.Forbidden("Account session is unavailable, log in again")
	case errors.Is(err, catalog.ErrNotLoaded):
		return apierror.ServiceUnavailable("Item catalog is not loaded yet")
	case errors.Is(err, catalog.ErrClosed):
		return apierror.ServiceUnavailable("Service is shutting down")
	case errors.As(err, &contractErr):
		return apierror.BadGateway("")
	case errors.Is(err, context.DeadlineExceeded):
		return apierror.ServiceUnavailable("Upstream request timed out")
	default:
		return apierror.InternalError("an unexpected error occurred")
	}
}
