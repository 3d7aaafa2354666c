package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/gdmt-audit-server/internal/domain"
	"github.com/gdmt-audit-server/internal/middleware"
)

// statusFor maps service errors onto HTTP status and API error code.
func statusFor(err error) (int, string) {
	var validation *domain.ValidationError
	switch {
	case errors.As(err, &validation), errors.Is(err, domain.ErrInvalidSnapshot):
		return http.StatusBadRequest, domain.ErrCodeValidation
	case errors.Is(err, domain.ErrInvalidDomain), errors.Is(err, domain.ErrInvalidEvent):
		return http.StatusBadRequest, domain.ErrCodeInvalidInput
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrUnknownPathway):
		return http.StatusNotFound, domain.ErrCodeNotFound
	case errors.Is(err, domain.ErrTemplateNotFound):
		return http.StatusInternalServerError, domain.ErrCodeConfiguration
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, domain.ErrCodeInternal
	default:
		return http.StatusInternalServerError, domain.ErrCodeInternal
	}
}

// writeError aborts the request with a standardized error body.
func (s *Server) writeError(c *gin.Context, err error) {
	status, code := statusFor(err)
	message := err.Error()
	if status >= http.StatusInternalServerError {
		s.logger.WithError(err).WithField("correlation_id", c.GetString(middleware.CorrelationIDKey)).
			Error("Request failed")
		message = http.StatusText(status)
	}
	c.AbortWithStatusJSON(status, domain.NewAPIError(code, message, "", c.GetString(middleware.CorrelationIDKey)))
}

// badRequest aborts with an INVALID_INPUT error.
func badRequest(c *gin.Context, message string, err error) {
	details := ""
	if err != nil {
		details = err.Error()
	}
	c.AbortWithStatusJSON(http.StatusBadRequest, domain.NewAPIError(
		domain.ErrCodeInvalidInput, message, details, c.GetString(middleware.CorrelationIDKey)))
}
