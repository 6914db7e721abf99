package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	appintegration "github.com/mops/backend/internal/application/integration"
	"github.com/mops/backend/internal/interfaces/http/dto"
)

// IntegrationHandler handles integration lifecycle and query endpoints
type IntegrationHandler struct {
	BaseHandler
	service *appintegration.IntegrationService
}

// NewIntegrationHandler creates a new IntegrationHandler
func NewIntegrationHandler(service *appintegration.IntegrationService) *IntegrationHandler {
	return &IntegrationHandler{service: service}
}

// RegisterRoutes registers all integration routes
func (h *IntegrationHandler) RegisterRoutes(rg *gin.RouterGroup) {
	integrations := rg.Group("/integrations")
	{
		integrations.GET("", h.List)
		integrations.POST("", h.Create)
		integrations.GET("/:id", h.Get)
		integrations.PUT("/:id", h.Update)
		integrations.DELETE("/:id", h.Delete)
		integrations.POST("/:id/connect", h.Connect)
		integrations.POST("/:id/disconnect", h.Disconnect)
		integrations.POST("/:id/test", h.TestConnection)
		integrations.POST("/:id/sync", h.TriggerSync)
		integrations.PUT("/:id/mapping", h.UpdateMapping)
		integrations.GET("/:id/health", h.Health)
		integrations.GET("/:id/events", h.Events)
		integrations.GET("/:id/conflicts", h.ListConflicts)
	}

	conflicts := rg.Group("/conflicts")
	{
		conflicts.POST("/:id/resolve", h.ResolveConflict)
		conflicts.DELETE("/:id", h.DiscardConflict)
	}
}

// List returns a filtered, sorted, paginated page of integrations
func (h *IntegrationHandler) List(c *gin.Context) {
	orgID, err := getOrgID(c)
	if err != nil {
		h.BadRequest(c, "Invalid organization ID")
		return
	}

	var filter appintegration.IntegrationListFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		h.BadRequest(c, "Invalid list parameters")
		return
	}

	items, total, err := h.service.List(c.Request.Context(), orgID, filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize < 1 {
		pageSize = 20
	}
	h.SuccessWithMeta(c, items, total, page, pageSize)
}

// Create creates a new integration in pending status
func (h *IntegrationHandler) Create(c *gin.Context) {
	orgID, err := getOrgID(c)
	if err != nil {
		h.BadRequest(c, "Invalid organization ID")
		return
	}

	var req appintegration.CreateIntegrationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Error(c, http.StatusBadRequest, dto.ErrCodeInvalidJSON, "Invalid request body: "+err.Error())
		return
	}
	if userID, ok := getUserID(c); ok {
		req.CreatedBy = &userID
	}

	resp, err := h.service.Create(c.Request.Context(), orgID, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, resp)
}

// Get returns one integration with credentials redacted
func (h *IntegrationHandler) Get(c *gin.Context) {
	orgID, id, ok := h.orgAndID(c)
	if !ok {
		return
	}

	resp, err := h.service.Get(c.Request.Context(), orgID, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// Update applies a partial update to an integration
func (h *IntegrationHandler) Update(c *gin.Context) {
	orgID, id, ok := h.orgAndID(c)
	if !ok {
		return
	}

	var req appintegration.UpdateIntegrationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Error(c, http.StatusBadRequest, dto.ErrCodeInvalidJSON, "Invalid request body: "+err.Error())
		return
	}
	if userID, ok := getUserID(c); ok {
		req.UpdatedBy = &userID
	}

	resp, err := h.service.Update(c.Request.Context(), orgID, id, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// Delete removes an integration with its event history and pending conflicts
func (h *IntegrationHandler) Delete(c *gin.Context) {
	orgID, id, ok := h.orgAndID(c)
	if !ok {
		return
	}

	if err := h.service.Delete(c.Request.Context(), orgID, id); err != nil {
		h.HandleError(c, err)
		return
	}
	h.NoContent(c)
}

// Connect moves an integration into connected status
func (h *IntegrationHandler) Connect(c *gin.Context) {
	orgID, id, ok := h.orgAndID(c)
	if !ok {
		return
	}

	resp, err := h.service.Connect(c.Request.Context(), orgID, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// Disconnect moves an integration into disconnected status
func (h *IntegrationHandler) Disconnect(c *gin.Context) {
	orgID, id, ok := h.orgAndID(c)
	if !ok {
		return
	}

	resp, err := h.service.Disconnect(c.Request.Context(), orgID, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// TestConnection runs an on-demand connection test against the provider
func (h *IntegrationHandler) TestConnection(c *gin.Context) {
	orgID, id, ok := h.orgAndID(c)
	if !ok {
		return
	}

	resp, err := h.service.TestConnection(c.Request.Context(), orgID, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// TriggerSync starts a manual sync for an integration
func (h *IntegrationHandler) TriggerSync(c *gin.Context) {
	orgID, id, ok := h.orgAndID(c)
	if !ok {
		return
	}

	resp, err := h.service.TriggerSync(c.Request.Context(), orgID, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// UpdateMapping validates and persists a replacement data mapping
func (h *IntegrationHandler) UpdateMapping(c *gin.Context) {
	orgID, id, ok := h.orgAndID(c)
	if !ok {
		return
	}

	var req appintegration.UpdateMappingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Error(c, http.StatusBadRequest, dto.ErrCodeInvalidJSON, "Invalid request body: "+err.Error())
		return
	}

	resp, err := h.service.UpdateMapping(c.Request.Context(), orgID, id, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// Health returns a freshly computed health report for an integration
func (h *IntegrationHandler) Health(c *gin.Context) {
	orgID, id, ok := h.orgAndID(c)
	if !ok {
		return
	}

	report, err := h.service.Health(c.Request.Context(), orgID, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, report)
}

// Events returns recent event-log entries for an integration, newest first
func (h *IntegrationHandler) Events(c *gin.Context) {
	orgID, id, ok := h.orgAndID(c)
	if !ok {
		return
	}

	var query struct {
		Limit int `form:"limit"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		h.BadRequest(c, "Invalid limit parameter")
		return
	}

	events, err := h.service.Events(c.Request.Context(), orgID, id, query.Limit)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, events)
}

// ListConflicts returns conflicts queued for manual review, oldest first
func (h *IntegrationHandler) ListConflicts(c *gin.Context) {
	orgID, id, ok := h.orgAndID(c)
	if !ok {
		return
	}

	conflicts, err := h.service.ListConflicts(c.Request.Context(), orgID, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, conflicts)
}

// ResolveConflict applies a reviewer's choice to a queued conflict
func (h *IntegrationHandler) ResolveConflict(c *gin.Context) {
	orgID, id, ok := h.orgAndID(c)
	if !ok {
		return
	}

	var req appintegration.ResolveConflictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Error(c, http.StatusBadRequest, dto.ErrCodeInvalidJSON, "Invalid request body: "+err.Error())
		return
	}

	resp, err := h.service.ResolveConflict(c.Request.Context(), orgID, id, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// DiscardConflict drops a queued conflict without writing anything back
func (h *IntegrationHandler) DiscardConflict(c *gin.Context) {
	orgID, id, ok := h.orgAndID(c)
	if !ok {
		return
	}

	if err := h.service.DiscardConflict(c.Request.Context(), orgID, id); err != nil {
		h.HandleError(c, err)
		return
	}
	h.NoContent(c)
}

// orgAndID extracts the organization header and the :id path parameter,
// writing the error response itself when either is invalid.
func (h *IntegrationHandler) orgAndID(c *gin.Context) (uuid.UUID, uuid.UUID, bool) {
	org, err := getOrgID(c)
	if err != nil {
		h.BadRequest(c, "Invalid organization ID")
		return uuid.Nil, uuid.Nil, false
	}
	id, err := parseIDParam(c, "id")
	if err != nil {
		h.BadRequest(c, "Invalid ID")
		return uuid.Nil, uuid.Nil, false
	}
	return org, id, true
}
