package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	appintegration "github.com/mops/backend/internal/application/integration"
	"github.com/mops/backend/internal/interfaces/http/dto"
)

// WizardHandler handles the step-by-step connection wizard endpoints.
// Sessions live in memory on the service side; every response carries the
// full wizard state so clients stay stateless.
type WizardHandler struct {
	BaseHandler
	service *appintegration.WizardService
}

// NewWizardHandler creates a new WizardHandler
func NewWizardHandler(service *appintegration.WizardService) *WizardHandler {
	return &WizardHandler{service: service}
}

// RegisterRoutes registers all wizard routes
func (h *WizardHandler) RegisterRoutes(rg *gin.RouterGroup) {
	wizard := rg.Group("/wizard")
	{
		wizard.POST("/start", h.Start)
		wizard.POST("/start-edit", h.StartEdit)
		wizard.GET("/:id", h.State)
		wizard.DELETE("/:id", h.Abandon)
		wizard.PUT("/:id/field", h.SetField)
		wizard.PUT("/:id/name", h.SetName)
		wizard.PUT("/:id/frequency", h.SetFrequency)
		wizard.POST("/:id/test", h.Test)
		wizard.PUT("/:id/objects", h.SelectObjects)
		wizard.PUT("/:id/mapping", h.SetMapping)
		wizard.POST("/:id/next", h.Next)
		wizard.POST("/:id/back", h.Back)
		wizard.POST("/:id/confirm", h.Confirm)
	}
}

// Start opens a wizard session for connecting a new provider
func (h *WizardHandler) Start(c *gin.Context) {
	orgID, err := getOrgID(c)
	if err != nil {
		h.BadRequest(c, "Invalid organization ID")
		return
	}

	var req struct {
		Family      string `json:"family" binding:"required"`
		ProviderKey string `json:"provider_key" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Error(c, http.StatusBadRequest, dto.ErrCodeInvalidJSON, "Invalid request body: "+err.Error())
		return
	}

	userID, _ := getUserID(c)
	state, err := h.service.Start(orgID, userID, req.Family, req.ProviderKey)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, state)
}

// StartEdit opens a wizard session seeded from an existing integration
func (h *WizardHandler) StartEdit(c *gin.Context) {
	orgID, err := getOrgID(c)
	if err != nil {
		h.BadRequest(c, "Invalid organization ID")
		return
	}

	var req struct {
		IntegrationID uuid.UUID `json:"integration_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Error(c, http.StatusBadRequest, dto.ErrCodeInvalidJSON, "Invalid request body: "+err.Error())
		return
	}

	userID, _ := getUserID(c)
	state, err := h.service.StartEdit(c.Request.Context(), orgID, userID, req.IntegrationID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, state)
}

// State returns the current session state
func (h *WizardHandler) State(c *gin.Context) {
	orgID, sessionID, ok := h.orgAndSession(c)
	if !ok {
		return
	}

	state, err := h.service.State(orgID, sessionID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, state)
}

// Abandon drops a session without committing anything
func (h *WizardHandler) Abandon(c *gin.Context) {
	orgID, sessionID, ok := h.orgAndSession(c)
	if !ok {
		return
	}

	if err := h.service.Abandon(orgID, sessionID); err != nil {
		h.HandleError(c, err)
		return
	}
	h.NoContent(c)
}

// SetField records one connection field value
func (h *WizardHandler) SetField(c *gin.Context) {
	orgID, sessionID, ok := h.orgAndSession(c)
	if !ok {
		return
	}

	var req struct {
		Key   string `json:"key" binding:"required"`
		Value string `json:"value"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Error(c, http.StatusBadRequest, dto.ErrCodeInvalidJSON, "Invalid request body: "+err.Error())
		return
	}

	state, err := h.service.SetField(orgID, sessionID, req.Key, req.Value)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, state)
}

// SetName sets the integration display name
func (h *WizardHandler) SetName(c *gin.Context) {
	orgID, sessionID, ok := h.orgAndSession(c)
	if !ok {
		return
	}

	var req struct {
		Name string `json:"name" binding:"required,min=1,max=200"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Error(c, http.StatusBadRequest, dto.ErrCodeInvalidJSON, "Invalid request body: "+err.Error())
		return
	}

	state, err := h.service.SetName(orgID, sessionID, req.Name)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, state)
}

// SetFrequency sets the sync frequency
func (h *WizardHandler) SetFrequency(c *gin.Context) {
	orgID, sessionID, ok := h.orgAndSession(c)
	if !ok {
		return
	}

	var req struct {
		Frequency string `json:"frequency" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Error(c, http.StatusBadRequest, dto.ErrCodeInvalidJSON, "Invalid request body: "+err.Error())
		return
	}

	state, err := h.service.SetFrequency(orgID, sessionID, req.Frequency)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, state)
}

// Test verifies the entered credentials against the provider and, on
// success, introspects the remote schema
func (h *WizardHandler) Test(c *gin.Context) {
	orgID, sessionID, ok := h.orgAndSession(c)
	if !ok {
		return
	}

	state, err := h.service.Test(c.Request.Context(), orgID, sessionID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, state)
}

// SelectObjects records which introspected objects the integration will sync
func (h *WizardHandler) SelectObjects(c *gin.Context) {
	orgID, sessionID, ok := h.orgAndSession(c)
	if !ok {
		return
	}

	var req struct {
		Objects []string `json:"objects" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Error(c, http.StatusBadRequest, dto.ErrCodeInvalidJSON, "Invalid request body: "+err.Error())
		return
	}

	state, err := h.service.SelectObjects(orgID, sessionID, req.Objects)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, state)
}

// SetMapping replaces the session's field mapping
func (h *WizardHandler) SetMapping(c *gin.Context) {
	orgID, sessionID, ok := h.orgAndSession(c)
	if !ok {
		return
	}

	var req appintegration.UpdateMappingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Error(c, http.StatusBadRequest, dto.ErrCodeInvalidJSON, "Invalid request body: "+err.Error())
		return
	}

	state, err := h.service.SetMapping(orgID, sessionID, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, state)
}

// Next advances the wizard to the next step
func (h *WizardHandler) Next(c *gin.Context) {
	orgID, sessionID, ok := h.orgAndSession(c)
	if !ok {
		return
	}

	state, err := h.service.Next(orgID, sessionID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, state)
}

// Back returns the wizard to the previous step
func (h *WizardHandler) Back(c *gin.Context) {
	orgID, sessionID, ok := h.orgAndSession(c)
	if !ok {
		return
	}

	state, err := h.service.Back(orgID, sessionID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, state)
}

// Confirm commits the session, persisting the assembled integration
func (h *WizardHandler) Confirm(c *gin.Context) {
	orgID, sessionID, ok := h.orgAndSession(c)
	if !ok {
		return
	}

	resp, err := h.service.Confirm(c.Request.Context(), orgID, sessionID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, resp)
}

func (h *WizardHandler) orgAndSession(c *gin.Context) (uuid.UUID, uuid.UUID, bool) {
	orgID, err := getOrgID(c)
	if err != nil {
		h.BadRequest(c, "Invalid organization ID")
		return uuid.Nil, uuid.Nil, false
	}
	sessionID, err := parseIDParam(c, "id")
	if err != nil {
		h.BadRequest(c, "Invalid session ID")
		return uuid.Nil, uuid.Nil, false
	}
	return orgID, sessionID, true
}
