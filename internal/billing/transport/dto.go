// Package transport defines the HTTP request and response shapes of
// billing reconciliation.
package transport

import (
	"time"

	"leaddesk_backend/internal/billing/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ── Requests ──────────────────────────────────────────────────────────────────

// CreatePlanRequest registers a billing plan.
type CreatePlanRequest struct {
	CategoryID        *uuid.UUID `json:"categoryId,omitempty"`
	Locality          *string    `json:"locality,omitempty" validate:"omitempty,min=1,max=200"`
	BaseQuota         int        `json:"baseQuota" validate:"min=0"`
	CarryoverEnabled  bool       `json:"carryoverEnabled"`
	GuaranteeEnabled  bool       `json:"guaranteeEnabled"`
	GuaranteedMinimum int        `json:"guaranteedMinimum" validate:"min=0"`
}

// SettleRequest reconciles one plan period.
type SettleRequest struct {
	PeriodStart time.Time `json:"periodStart" validate:"required"`
	PeriodEnd   time.Time `json:"periodEnd" validate:"required"`
}

// ── Responses ─────────────────────────────────────────────────────────────────

// PlanResponse is one billing plan on the wire.
type PlanResponse struct {
	ID                uuid.UUID  `json:"id"`
	OwnerUserID       uuid.UUID  `json:"ownerUserId"`
	CategoryID        *uuid.UUID `json:"categoryId,omitempty"`
	Locality          *string    `json:"locality,omitempty"`
	BaseQuota         int        `json:"baseQuota"`
	CarryoverEnabled  bool       `json:"carryoverEnabled"`
	CarryoverBalance  int        `json:"carryoverBalance"`
	GuaranteeEnabled  bool       `json:"guaranteeEnabled"`
	GuaranteedMinimum int        `json:"guaranteedMinimum"`
	CreatedAt         time.Time  `json:"createdAt"`
}

// AdjustmentResponse is one reconciliation adjustment on the wire.
type AdjustmentResponse struct {
	ID              uuid.UUID       `json:"id"`
	PlanID          uuid.UUID       `json:"planId"`
	PeriodStart     time.Time       `json:"periodStart"`
	PeriodEnd       time.Time       `json:"periodEnd"`
	Expected        int             `json:"expected"`
	Delivered       int             `json:"delivered"`
	RealValueFactor decimal.Decimal `json:"realValueFactor"`
	Kind            string          `json:"kind"`
	CreditAmount    decimal.Decimal `json:"creditAmount"`
	Status          string          `json:"status"`
	Note            string          `json:"note"`
	CreatedAt       time.Time       `json:"createdAt"`
}

// ToPlanResponse maps a plan to its wire shape.
func ToPlanResponse(plan repository.Plan) PlanResponse {
	return PlanResponse{
		ID:                plan.ID,
		OwnerUserID:       plan.OwnerUserID,
		CategoryID:        plan.CategoryID,
		Locality:          plan.Locality,
		BaseQuota:         plan.BaseQuota,
		CarryoverEnabled:  plan.CarryoverEnabled,
		CarryoverBalance:  plan.CarryoverBalance,
		GuaranteeEnabled:  plan.GuaranteeEnabled,
		GuaranteedMinimum: plan.GuaranteedMinimum,
		CreatedAt:         plan.CreatedAt,
	}
}

// ToAdjustmentResponse maps an adjustment to its wire shape.
func ToAdjustmentResponse(adj repository.Adjustment) AdjustmentResponse {
	return AdjustmentResponse{
		ID:              adj.ID,
		PlanID:          adj.PlanID,
		PeriodStart:     adj.PeriodStart,
		PeriodEnd:       adj.PeriodEnd,
		Expected:        adj.Expected,
		Delivered:       adj.Delivered,
		RealValueFactor: adj.RealValueFactor,
		Kind:            string(adj.Kind),
		CreditAmount:    adj.CreditAmount,
		Status:          string(adj.Status),
		Note:            adj.Note,
		CreatedAt:       adj.CreatedAt,
	}
}

// ToAdjustmentResponses maps a listing to its wire shape.
func ToAdjustmentResponses(items []repository.Adjustment) []AdjustmentResponse {
	out := make([]AdjustmentResponse, 0, len(items))
	for _, adj := range items {
		out = append(out, ToAdjustmentResponse(adj))
	}
	return out
}
