// Package handler exposes billing plans and adjustments over HTTP.
package handler

import (
	"net/http"

	"leaddesk_backend/internal/billing/repository"
	"leaddesk_backend/internal/billing/service"
	"leaddesk_backend/internal/billing/transport"
	"leaddesk_backend/platform/httpkit"
	"leaddesk_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
)

// Handler handles HTTP requests for billing.
type Handler struct {
	svc *service.Service
	val *validator.Validator
}

// New creates a new billing handler.
func New(svc *service.Service, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

// RegisterRoutes registers the billing routes.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/plans", h.ListPlans)
	rg.POST("/plans", h.CreatePlan)
	rg.GET("/plans/:id", h.GetPlan)
	rg.POST("/plans/:id/settle", h.Settle)
	rg.GET("/adjustments", h.ListAdjustments)
}

// CreatePlan handles POST /api/v1/billing/plans
func (h *Handler) CreatePlan(c *gin.Context) {
	var req transport.CreatePlanRequest
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

	plan, err := h.svc.CreatePlan(c.Request.Context(), service.PlanParams{
		OwnerUserID:       identity.UserID(),
		CategoryID:        req.CategoryID,
		Locality:          req.Locality,
		BaseQuota:         req.BaseQuota,
		CarryoverEnabled:  req.CarryoverEnabled,
		GuaranteeEnabled:  req.GuaranteeEnabled,
		GuaranteedMinimum: req.GuaranteedMinimum,
	})
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.Created(c, transport.ToPlanResponse(plan))
}

// GetPlan handles GET /api/v1/billing/plans/:id
func (h *Handler) GetPlan(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	plan, err := h.svc.GetPlan(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.ToPlanResponse(plan))
}

// ListPlans handles GET /api/v1/billing/plans
func (h *Handler) ListPlans(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	plans, err := h.svc.ListPlans(c.Request.Context(), identity.UserID())
	if httpkit.HandleError(c, err) {
		return
	}

	out := make([]transport.PlanResponse, 0, len(plans))
	for _, plan := range plans {
		out = append(out, transport.ToPlanResponse(plan))
	}
	httpkit.OK(c, gin.H{"items": out})
}

// Settle handles POST /api/v1/billing/plans/:id/settle
func (h *Handler) Settle(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	var req transport.SettleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	adj, err := h.svc.Settle(c.Request.Context(), id, req.PeriodStart, req.PeriodEnd)
	if httpkit.HandleError(c, err) {
		return
	}
	if adj == nil {
		httpkit.OK(c, gin.H{"skipped": true})
		return
	}

	httpkit.OK(c, transport.ToAdjustmentResponse(*adj))
}

// ListAdjustments handles GET /api/v1/billing/adjustments
func (h *Handler) ListAdjustments(c *gin.Context) {
	params := repository.ListAdjustmentsParams{}
	if raw := c.Query("planId"); raw != "" {
		planID, err := uuid.Parse(raw)
		if err != nil {
			httpkit.Error(c, http.StatusBadRequest, "invalid planId", nil)
			return
		}
		params.PlanID = &planID
	}
	if raw := c.Query("status"); raw != "" {
		status := repository.AdjustmentStatus(raw)
		if status != repository.StatusPending && status != repository.StatusApplied {
			httpkit.Error(c, http.StatusBadRequest, "unknown status filter", nil)
			return
		}
		params.Status = &status
	}

	items, err := h.svc.ListAdjustments(c.Request.Context(), params)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, gin.H{"items": transport.ToAdjustmentResponses(items)})
}
