package http

import (
	"errors"
	"net/http"

	"github.com/learnhub/learnhub/internal/domain/shared"
	"github.com/learnhub/learnhub/pkg/logger"
)

// handleError maps an application error onto a status code and error code.
func (s *Server) handleError(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message := classify(err)
	if status >= http.StatusInternalServerError {
		logger.FromContext(r.Context()).Error("request failed",
			logger.String("path", r.URL.Path),
			logger.Int("status", status),
			logger.Err(err),
		)
	}
	if status == http.StatusTooManyRequests {
		w.Header().Set("Retry-After", "1")
	}
	s.writeError(w, r, status, code, message, nil)
}

func classify(err error) (status int, code, message string) {
	var de *shared.DomainError
	detail := err.Error()
	if errors.As(err, &de) && de.Message != "" {
		detail = de.Message
	}

	switch {
	case shared.IsValidation(err):
		return http.StatusBadRequest, "validation_error", detail
	case shared.IsNotFound(err):
		return http.StatusNotFound, "not_found", detail
	case errors.Is(err, shared.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized", detail
	case errors.Is(err, shared.ErrForbidden):
		return http.StatusForbidden, "forbidden", detail
	case shared.IsConflict(err), shared.IsAlreadyExists(err):
		return http.StatusConflict, "conflict", "The resource was modified concurrently, please retry"
	case errors.Is(err, shared.ErrRateLimited):
		return http.StatusTooManyRequests, "rate_limited", detail
	case shared.IsExternalService(err):
		return http.StatusBadGateway, "upstream_error", "The code execution service is unavailable"
	default:
		return http.StatusInternalServerError, "internal_error", "An unexpected error occurred"
	}
}
