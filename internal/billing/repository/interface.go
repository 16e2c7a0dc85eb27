package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Plan is a per-owner expected-volume contract with optional category and
// locality scope.
type Plan struct {
	ID                uuid.UUID
	OwnerUserID       uuid.UUID
	CategoryID        *uuid.UUID
	Locality          *string
	BaseQuota         int
	CarryoverEnabled  bool
	CarryoverBalance  int
	GuaranteeEnabled  bool
	GuaranteedMinimum int
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// AdjustmentKind classifies the outcome of one settled period.
type AdjustmentKind string

const (
	KindNone      AdjustmentKind = "none"
	KindCredit    AdjustmentKind = "credit"
	KindSurcharge AdjustmentKind = "surcharge"
)

// AdjustmentStatus is pending until the adjustment's financial effect has
// been applied; applied is terminal.
type AdjustmentStatus string

const (
	StatusPending AdjustmentStatus = "pending"
	StatusApplied AdjustmentStatus = "applied"
)

// Adjustment is the reconciliation result of one (plan, period) pair.
type Adjustment struct {
	ID              uuid.UUID
	PlanID          uuid.UUID
	PeriodStart     time.Time
	PeriodEnd       time.Time
	Expected        int
	Delivered       int
	RealValueFactor decimal.Decimal
	Kind            AdjustmentKind
	CreditAmount    decimal.Decimal
	Status          AdjustmentStatus
	Note            string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// SettleParams carries one settlement write: the adjustment upsert and
// the plan's carryover write-back, committed together.
type SettleParams struct {
	PlanID          uuid.UUID
	PeriodStart     time.Time
	PeriodEnd       time.Time
	Expected        int
	Delivered       int
	RealValueFactor decimal.Decimal
	Kind            AdjustmentKind
	CreditAmount    decimal.Decimal
	Note            string
	// WriteCarryover controls whether NextCarryover is written back.
	WriteCarryover bool
	NextCarryover  int
}

// RefundParams carries one quiet-market refund application. The four
// effects (balance, ledger, adjustment status, notification) commit
// atomically.
type RefundParams struct {
	AdjustmentID uuid.UUID
	PlanID       uuid.UUID
	OwnerUserID  uuid.UUID
	Amount       decimal.Decimal
	Title        string
	Content      string
	DeepLink     *string
}

// ListAdjustmentsParams filters adjustment listings.
type ListAdjustmentsParams struct {
	PlanID *uuid.UUID
	Status *AdjustmentStatus
	Limit  int
	Offset int
}

// Store defines the billing persistence operations.
type Store interface {
	CreatePlan(ctx context.Context, plan Plan) (Plan, error)
	GetPlan(ctx context.Context, id uuid.UUID) (Plan, error)
	ListPlansByOwner(ctx context.Context, ownerUserID uuid.UUID) ([]Plan, error)
	// ListAllPlans feeds the monthly reconciliation sweep.
	ListAllPlans(ctx context.Context) ([]Plan, error)
	// CountDelivered counts COMPLETED queue entries whose lead matches the
	// plan's category/locality scope within [periodStart, periodEnd).
	CountDelivered(ctx context.Context, plan Plan, periodStart, periodEnd time.Time) (int, error)
	GetAdjustment(ctx context.Context, planID uuid.UUID, periodStart, periodEnd time.Time) (Adjustment, error)
	// Settle upserts the adjustment keyed on (plan, period) and writes the
	// carryover back, in one transaction. An applied adjustment is never
	// rewritten; it is returned unchanged with created=false.
	Settle(ctx context.Context, params SettleParams) (Adjustment, bool, error)
	ListAdjustments(ctx context.Context, params ListAdjustmentsParams) ([]Adjustment, error)
	// ListQuietMarketPending returns pending credit adjustments with zero
	// delivered volume, paired with their plan owner.
	ListQuietMarketPending(ctx context.Context) ([]QuietMarketAdjustment, error)
	// ApplyRefund commits the refund's four effects or none of them.
	ApplyRefund(ctx context.Context, params RefundParams) error
}

// QuietMarketAdjustment pairs a refundable adjustment with its owner.
type QuietMarketAdjustment struct {
	Adjustment  Adjustment
	OwnerUserID uuid.UUID
}
