package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/stormdotcom/invo-gen-fastapi/internal/converter"
	"github.com/stormdotcom/invo-gen-fastapi/internal/template"
	"github.com/stormdotcom/invo-gen-fastapi/internal/totals"
	"github.com/stormdotcom/invo-gen-fastapi/internal/validation"
)

const (
	msgInternal          = "internal server error"
	msgInvalidBody       = "invalid request body"
	msgValidation        = "validation failed"
	msgTemplateNotFound  = "template not found"
	msgConversionTimeout = "document conversion timed out"
	msgTooLarge          = "upload exceeds the size limit"

	// statusClientClosedRequest is logged when the client went away before
	// the response was ready. Nothing is written.
	statusClientClosedRequest = 499
)

type errorResponse struct {
	Error         string `json:"error"`
	Details       any    `json:"details,omitempty"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

// sendError logs err and writes a JSON error body with message.
func (s *Server) sendError(c *gin.Context, status int, message string, details any, err error) {
	log := s.logger.With(
		zap.String("correlation_id", GetCorrelationID(c)),
		zap.String("path", c.Request.URL.Path),
		zap.Int("status", status),
	)
	if status >= http.StatusInternalServerError {
		log.Error(message, zap.Error(err))
	} else {
		log.Info(message, zap.Error(err))
	}

	c.AbortWithStatusJSON(status, errorResponse{
		Error:         message,
		Details:       details,
		CorrelationID: GetCorrelationID(c),
	})
}

// handleError maps err to a status code. Internal details are logged and
// never echoed to the client.
func (s *Server) handleError(c *gin.Context, err error) {
	var ve validation.ValidationErrors
	var single *validation.ValidationError
	var maxBytes *http.MaxBytesError

	switch {
	case errors.As(err, &ve):
		s.sendError(c, http.StatusBadRequest, msgValidation, []*validation.ValidationError(ve), err)
	case errors.As(err, &single):
		s.sendError(c, http.StatusBadRequest, msgValidation, []*validation.ValidationError{single}, err)
	case errors.Is(err, totals.ErrAmountOutOfRange):
		s.sendError(c, http.StatusBadRequest, totals.ErrAmountOutOfRange.Error(), nil, err)
	case errors.Is(err, template.ErrTemplateNotFound):
		s.sendError(c, http.StatusNotFound, msgTemplateNotFound, nil, err)
	case errors.Is(err, template.ErrBadExtension):
		s.sendError(c, http.StatusBadRequest, template.ErrBadExtension.Error(), nil, err)
	case errors.Is(err, template.ErrFormatMismatch):
		s.sendError(c, http.StatusBadRequest, template.ErrFormatMismatch.Error(), nil, err)
	case errors.Is(err, template.ErrInvalidTemplate):
		s.sendError(c, http.StatusBadRequest, template.ErrInvalidTemplate.Error(), nil, err)
	case errors.As(err, &maxBytes):
		s.sendError(c, http.StatusRequestEntityTooLarge, msgTooLarge, nil, err)
	case errors.Is(err, converter.ErrConversionTimeout):
		s.sendError(c, http.StatusGatewayTimeout, msgConversionTimeout, nil, err)
	case errors.Is(err, context.Canceled):
		s.logger.Info("client went away",
			zap.String("correlation_id", GetCorrelationID(c)),
			zap.String("path", c.Request.URL.Path))
		c.AbortWithStatus(statusClientClosedRequest)
	default:
		s.sendError(c, http.StatusInternalServerError, msgInternal, nil, err)
	}
}
