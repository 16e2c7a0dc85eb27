// Package handler exposes the lead queue over HTTP.
package handler

import (
	"net/http"
	"strconv"

	"leaddesk_backend/internal/queue/domain"
	"leaddesk_backend/internal/queue/repository"
	"leaddesk_backend/internal/queue/service"
	"leaddesk_backend/internal/queue/transport"
	"leaddesk_backend/platform/httpkit"
	"leaddesk_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
)

// Handler handles HTTP requests for the lead queue.
type Handler struct {
	svc *service.Service
	val *validator.Validator
}

// New creates a new queue handler.
func New(svc *service.Service, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

// RegisterRoutes registers the queue routes.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.List)
	rg.POST("", h.Enqueue)
	rg.GET("/:id", h.GetByID)
	rg.POST("/:id/assign", h.Assign)
	rg.POST("/:id/auto-assign", h.AutoAssign)
	rg.POST("/:id/decline", h.Decline)
	rg.PATCH("/:id/status", h.UpdateStatus)
}

// Enqueue handles POST /api/v1/queue
func (h *Handler) Enqueue(c *gin.Context) {
	var req transport.EnqueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	entry, err := h.svc.Enqueue(c.Request.Context(), req.LeadID, req.CompanyID)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.Created(c, transport.ToEntryResponse(entry))
}

// List handles GET /api/v1/queue
func (h *Handler) List(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}
	companyID := identity.CompanyID()
	if companyID == nil {
		httpkit.Error(c, http.StatusForbidden, "no company in token", nil)
		return
	}

	params := repository.ListParams{
		CompanyID: *companyID,
		Limit:     parseIntQuery(c, "limit", 50),
		Offset:    parseIntQuery(c, "offset", 0),
	}
	if raw := c.Query("status"); raw != "" {
		status := domain.Status(raw)
		if !domain.IsValid(status) {
			httpkit.Error(c, http.StatusBadRequest, "unknown status filter", nil)
			return
		}
		params.Status = &status
	}

	items, total, err := h.svc.List(c.Request.Context(), params)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.ToListResponse(items, total))
}

// GetByID handles GET /api/v1/queue/:id
func (h *Handler) GetByID(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	entry, err := h.svc.Get(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.ToEntryResponse(entry))
}

// Assign handles POST /api/v1/queue/:id/assign
func (h *Handler) Assign(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	var req transport.AssignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	entry, err := h.svc.ManualAssign(c.Request.Context(), id, req.HandlerID, identity.UserID())
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.ToEntryResponse(entry))
}

// AutoAssign handles POST /api/v1/queue/:id/auto-assign
func (h *Handler) AutoAssign(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	entry, err := h.svc.AutoAssign(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.ToEntryResponse(entry))
}

// Decline handles POST /api/v1/queue/:id/decline
func (h *Handler) Decline(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	var req transport.DeclineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	entry, err := h.svc.Decline(c.Request.Context(), id, req.Reason)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.ToEntryResponse(entry))
}

// UpdateStatus handles PATCH /api/v1/queue/:id/status
func (h *Handler) UpdateStatus(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	var req transport.UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	entry, err := h.svc.UpdateStatus(c.Request.Context(), id, domain.Status(req.Status))
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.ToEntryResponse(entry))
}

func parseIntQuery(c *gin.Context, key string, fallback int) int {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
