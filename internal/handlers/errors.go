package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	apperrors "trade-confirmation-backend/internal/errors"
)

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	var validation *apperrors.ValidationError
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperrors.ErrInvalidInput), errors.As(err, &validation):
		return http.StatusBadRequest
	case errors.Is(err, apperrors.ErrInvalidTransition), errors.Is(err, apperrors.ErrConcurrencyConflict):
		return http.StatusConflict
	case errors.Is(err, apperrors.ErrNoMatchingRule):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, logger zerolog.Logger, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Error().Err(err).Str("path", c.FullPath()).Msg("Request failed")
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// uuidParam parses a path parameter, answering 400 itself when it is not a
// UUID.
func uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return uuid.Nil, false
	}
	return id, true
}
