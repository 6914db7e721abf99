package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/mops/backend/internal/domain/integration"
	"github.com/mops/backend/internal/domain/shared"
	"github.com/mops/backend/internal/interfaces/http/dto"
)

// defaultOrgID is the development fallback used when no X-Org-ID header is
// present. Deployments front this API with a gateway that always sets it.
var defaultOrgID = uuid.MustParse("00000000-0000-0000-0000-000000000001")

// BaseHandler provides common handler utilities
type BaseHandler struct{}

// getRequestID extracts the request ID from the context
func getRequestID(c *gin.Context) string {
	if id := c.GetString("request_id"); id != "" {
		return id
	}
	return c.GetHeader("X-Request-ID")
}

// getOrgID extracts the calling organization from the X-Org-ID header
func getOrgID(c *gin.Context) (uuid.UUID, error) {
	raw := c.GetHeader("X-Org-ID")
	if raw == "" {
		return defaultOrgID, nil
	}
	return uuid.Parse(raw)
}

// getUserID extracts the acting user from the X-User-ID header, when present
func getUserID(c *gin.Context) (uuid.UUID, bool) {
	raw := c.GetHeader("X-User-ID")
	if raw == "" {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// parseIDParam parses a UUID path parameter
func parseIDParam(c *gin.Context, name string) (uuid.UUID, error) {
	return uuid.Parse(c.Param(name))
}

// Success sends a success response
func (h *BaseHandler) Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(data))
}

// SuccessWithMeta sends a success response with pagination meta
func (h *BaseHandler) SuccessWithMeta(c *gin.Context, data any, total int64, page, pageSize int) {
	c.JSON(http.StatusOK, dto.NewSuccessResponseWithMeta(data, total, page, pageSize))
}

// Created sends a 201 created response
func (h *BaseHandler) Created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, dto.NewSuccessResponse(data))
}

// NoContent sends a 204 no content response
func (h *BaseHandler) NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// Error sends an error response with the given status code
func (h *BaseHandler) Error(c *gin.Context, statusCode int, code, message string) {
	c.JSON(statusCode, dto.NewErrorResponseWithRequestID(code, message, getRequestID(c)))
}

// BadRequest sends a 400 bad request response
func (h *BaseHandler) BadRequest(c *gin.Context, message string) {
	h.Error(c, http.StatusBadRequest, dto.ErrCodeBadRequest, message)
}

// NotFound sends a 404 not found response
func (h *BaseHandler) NotFound(c *gin.Context, message string) {
	h.Error(c, http.StatusNotFound, dto.ErrCodeNotFound, message)
}

// InternalError sends a 500 internal server error response
func (h *BaseHandler) InternalError(c *gin.Context, message string) {
	h.Error(c, http.StatusInternalServerError, dto.ErrCodeInternal, message)
}

// HandleError converts domain and sentinel errors to HTTP responses
func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	if err == nil {
		return
	}

	var domainErr *shared.DomainError
	if errors.As(err, &domainErr) {
		code := dto.NormalizeErrorCode(domainErr.Code)
		h.Error(c, dto.GetHTTPStatus(code), code, domainErr.Message)
		return
	}

	switch {
	case errors.Is(err, integration.ErrIntegrationNotFound),
		errors.Is(err, integration.ErrTemplateNotFound),
		errors.Is(err, integration.ErrConflictNotFound),
		errors.Is(err, integration.ErrWizardSessionNotFound):
		h.Error(c, http.StatusNotFound, dto.ErrCodeNotFound, err.Error())
	case errors.Is(err, integration.ErrProviderNotFound),
		errors.Is(err, integration.ErrFamilyNotFound),
		errors.Is(err, integration.ErrInvalidSyncFrequency),
		errors.Is(err, integration.ErrInvalidConflictChoice),
		errors.Is(err, integration.ErrConflictNotManual):
		h.Error(c, http.StatusBadRequest, dto.ErrCodeInvalidInput, err.Error())
	case errors.Is(err, integration.ErrWizardInvalidStep),
		errors.Is(err, integration.ErrWizardMissingFields),
		errors.Is(err, integration.ErrWizardNotTested),
		errors.Is(err, integration.ErrWizardNoSelection),
		errors.Is(err, integration.ErrWizardAlreadyCommitted):
		h.Error(c, http.StatusUnprocessableEntity, dto.ErrCodeWizardStep, err.Error())
	case errors.Is(err, integration.ErrInvalidTransition):
		h.Error(c, http.StatusUnprocessableEntity, dto.ErrCodeInvalidState, err.Error())
	default:
		h.InternalError(c, "An unexpected error occurred")
	}
}
