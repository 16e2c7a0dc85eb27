// Package handler exposes addon subscriptions over HTTP.
package handler

import (
	"net/http"

	"leaddesk_backend/internal/addons/domain"
	"leaddesk_backend/internal/addons/service"
	"leaddesk_backend/internal/addons/transport"
	"leaddesk_backend/platform/httpkit"
	"leaddesk_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
)

// Handler handles HTTP requests for addon subscriptions.
type Handler struct {
	svc *service.Service
	val *validator.Validator
}

// New creates a new addons handler.
func New(svc *service.Service, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

// RegisterRoutes registers the addon routes.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.List)
	rg.POST("", h.Purchase)
	rg.GET("/:id", h.GetByID)
	rg.GET("/:id/usage", h.GetUsage)
	rg.GET("/:id/events", h.ListEvents)
	rg.POST("/:id/usage", h.ReportUsage)
	rg.POST("/:id/renew", h.Renew)
	rg.POST("/:id/cancel", h.Cancel)
}

// Purchase handles POST /api/v1/addons
func (h *Handler) Purchase(c *gin.Context) {
	var req transport.PurchaseRequest
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

	sub, err := h.svc.Purchase(c.Request.Context(), service.PurchaseParams{
		OwnerUserID:   identity.UserID(),
		CompanyID:     req.CompanyID,
		Type:          domain.Type(req.Type),
		ScopeID:       req.ScopeID,
		PeriodDays:    req.PeriodDays,
		AutoRenew:     req.AutoRenew,
		CreditsAmount: req.CreditsAmount,
	})
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.Created(c, transport.ToSubscriptionResponse(sub))
}

// List handles GET /api/v1/addons
func (h *Handler) List(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	subs, err := h.svc.ListByOwner(c.Request.Context(), identity.UserID())
	if httpkit.HandleError(c, err) {
		return
	}

	out := make([]transport.SubscriptionResponse, 0, len(subs))
	for _, sub := range subs {
		out = append(out, transport.ToSubscriptionResponse(sub))
	}
	httpkit.OK(c, gin.H{"items": out})
}

// GetByID handles GET /api/v1/addons/:id
func (h *Handler) GetByID(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	sub, err := h.svc.Get(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.ToSubscriptionResponse(sub))
}

// GetUsage handles GET /api/v1/addons/:id/usage
func (h *Handler) GetUsage(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	usage, err := h.svc.GetUsage(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.ToUsageResponse(usage))
}

// ListEvents handles GET /api/v1/addons/:id/events
func (h *Handler) ListEvents(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	items, err := h.svc.ListEvents(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, gin.H{"items": transport.ToEventResponses(items)})
}

// ReportUsage handles POST /api/v1/addons/:id/usage
func (h *Handler) ReportUsage(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	var req transport.ReportUsageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	sub, usage, err := h.svc.ReportUsage(c.Request.Context(), id, req.Amount)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, gin.H{
		"subscription": transport.ToSubscriptionResponse(sub),
		"usage":        transport.ToUsageResponse(usage),
	})
}

// Renew handles POST /api/v1/addons/:id/renew
func (h *Handler) Renew(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	sub, err := h.svc.Renew(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.ToSubscriptionResponse(sub))
}

// Cancel handles POST /api/v1/addons/:id/cancel
func (h *Handler) Cancel(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	sub, err := h.svc.Cancel(c.Request.Context(), id, identity.UserID())
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.ToSubscriptionResponse(sub))
}
