package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	appintegration "github.com/mops/backend/internal/application/integration"
	"github.com/mops/backend/internal/interfaces/http/dto"
)

// TemplateHandler serves the provider catalog: templates, provider
// descriptors and pre-flight configuration validation.
type TemplateHandler struct {
	BaseHandler
	service *appintegration.IntegrationService
}

// NewTemplateHandler creates a new TemplateHandler
func NewTemplateHandler(service *appintegration.IntegrationService) *TemplateHandler {
	return &TemplateHandler{service: service}
}

// RegisterRoutes registers all catalog routes
func (h *TemplateHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/templates", h.ListTemplates)
	rg.POST("/templates/validate-config", h.ValidateConfig)
	rg.GET("/providers", h.ListProviders)
}

// ListTemplates lists connection templates, optionally filtered by family
func (h *TemplateHandler) ListTemplates(c *gin.Context) {
	templates, err := h.service.ListTemplates(c.Request.Context(), c.Query("family"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, templates)
}

// ListProviders lists the registered providers for one family
func (h *TemplateHandler) ListProviders(c *gin.Context) {
	providers, err := h.service.ListProviders(c.Query("family"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, providers)
}

// ValidateConfig checks a configuration against a template without
// creating anything
func (h *TemplateHandler) ValidateConfig(c *gin.Context) {
	var req appintegration.ValidateConfigurationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Error(c, http.StatusBadRequest, dto.ErrCodeInvalidJSON, "Invalid request body: "+err.Error())
		return
	}

	result, err := h.service.ValidateConfiguration(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}
