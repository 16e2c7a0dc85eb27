// Package service provides business logic for billing reconciliation.
package service

import (
	"context"
	"fmt"
	"time"

	"leaddesk_backend/internal/billing/repository"
	"leaddesk_backend/internal/events"
	"leaddesk_backend/platform/apperr"
	"leaddesk_backend/platform/logger"

	"github.com/google/uuid"
)

// Clock abstracts time for deterministic reconciliation tests.
type Clock func() time.Time

// Service owns period settlement and refund application.
type Service struct {
	repo     repository.Store
	eventBus events.Bus
	log      *logger.Logger
	now      Clock
}

// New creates a new billing service.
func New(repo repository.Store, eventBus events.Bus, log *logger.Logger) *Service {
	return &Service{repo: repo, eventBus: eventBus, log: log, now: time.Now}
}

// SetClock overrides the time source. Test use only.
func (s *Service) SetClock(clock Clock) {
	s.now = clock
}

// PlanParams carries a plan creation.
type PlanParams struct {
	OwnerUserID       uuid.UUID
	CategoryID        *uuid.UUID
	Locality          *string
	BaseQuota         int
	CarryoverEnabled  bool
	GuaranteeEnabled  bool
	GuaranteedMinimum int
}

// CreatePlan registers a new billing plan.
func (s *Service) CreatePlan(ctx context.Context, params PlanParams) (repository.Plan, error) {
	if params.BaseQuota < 0 {
		return repository.Plan{}, apperr.Validation("base quota cannot be negative")
	}
	if params.GuaranteeEnabled && params.GuaranteedMinimum <= 0 {
		return repository.Plan{}, apperr.Validation("guaranteed minimum must be positive when the guarantee is enabled")
	}

	return s.repo.CreatePlan(ctx, repository.Plan{
		OwnerUserID:       params.OwnerUserID,
		CategoryID:        params.CategoryID,
		Locality:          params.Locality,
		BaseQuota:         params.BaseQuota,
		CarryoverEnabled:  params.CarryoverEnabled,
		GuaranteeEnabled:  params.GuaranteeEnabled,
		GuaranteedMinimum: params.GuaranteedMinimum,
	})
}

// GetPlan returns one plan.
func (s *Service) GetPlan(ctx context.Context, id uuid.UUID) (repository.Plan, error) {
	return s.repo.GetPlan(ctx, id)
}

// ListPlans returns an owner's plans.
func (s *Service) ListPlans(ctx context.Context, ownerUserID uuid.UUID) ([]repository.Plan, error) {
	return s.repo.ListPlansByOwner(ctx, ownerUserID)
}

// ListAdjustments returns settled adjustments.
func (s *Service) ListAdjustments(ctx context.Context, params repository.ListAdjustmentsParams) ([]repository.Adjustment, error) {
	return s.repo.ListAdjustments(ctx, params)
}

// Settle reconciles one plan for one period. Re-running for a settled
// period reproduces the same adjustment fields; an applied adjustment is
// returned untouched. Returns nil when the period is skipped because the
// expected volume is zero.
func (s *Service) Settle(ctx context.Context, planID uuid.UUID, periodStart, periodEnd time.Time) (*repository.Adjustment, error) {
	if !periodEnd.After(periodStart) {
		return nil, apperr.Validation("period end must be after period start")
	}

	plan, err := s.repo.GetPlan(ctx, planID)
	if err != nil {
		return nil, err
	}

	expected := plan.BaseQuota
	if plan.CarryoverEnabled {
		expected += plan.CarryoverBalance
	}

	// A re-settle must reuse the expected volume the first run recorded;
	// the plan's carryover balance has already advanced past this period.
	existing, err := s.repo.GetAdjustment(ctx, planID, periodStart, periodEnd)
	switch {
	case err == nil:
		if existing.Status == repository.StatusApplied {
			return &existing, nil
		}
		expected = existing.Expected
	case !apperr.Is(err, apperr.KindNotFound):
		return nil, err
	}

	delivered, err := s.repo.CountDelivered(ctx, plan, periodStart, periodEnd)
	if err != nil {
		return nil, err
	}

	outcome := computeSettlement(plan, expected, delivered)
	if outcome.Skip {
		s.log.Info("settlement skipped, zero expected volume", "planId", plan.ID, "periodStart", periodStart)
		return nil, nil
	}

	adj, created, err := s.repo.Settle(ctx, repository.SettleParams{
		PlanID:          plan.ID,
		PeriodStart:     periodStart,
		PeriodEnd:       periodEnd,
		Expected:        outcome.Expected,
		Delivered:       outcome.Delivered,
		RealValueFactor: outcome.RealValueFactor,
		Kind:            outcome.Kind,
		CreditAmount:    outcome.CreditAmount,
		Note:            outcome.Note,
		WriteCarryover:  plan.CarryoverEnabled,
		NextCarryover:   outcome.NextCarryover,
	})
	if err != nil {
		return nil, err
	}

	if created {
		s.eventBus.Publish(ctx, events.AdjustmentSettled{
			BaseEvent:    events.NewBaseEvent(),
			AdjustmentID: adj.ID,
			PlanID:       plan.ID,
			OwnerUserID:  plan.OwnerUserID,
			Kind:         string(adj.Kind),
			CreditAmount: adj.CreditAmount,
		})
	}
	return &adj, nil
}

// RunMonthlyReconciliation settles the just-closed calendar month for
// every plan, then applies quiet-market refunds. One failing plan never
// stops the sweep.
func (s *Service) RunMonthlyReconciliation(ctx context.Context) error {
	periodStart, periodEnd := previousMonth(s.now())

	plans, err := s.repo.ListAllPlans(ctx)
	if err != nil {
		return fmt.Errorf("list plans: %w", err)
	}

	settled := 0
	for _, plan := range plans {
		if _, err := s.Settle(ctx, plan.ID, periodStart, periodEnd); err != nil {
			s.log.Warn("settlement failed", "planId", plan.ID, "periodStart", periodStart, "error", err)
			continue
		}
		settled++
	}
	s.log.Info("monthly reconciliation completed",
		"periodStart", periodStart, "plans", len(plans), "settled", settled)

	return s.ApplyQuietMarketRefunds(ctx)
}

// ApplyQuietMarketRefunds applies every pending zero-delivery credit:
// balance increment, ledger entry, adjustment status, and owner
// notification commit atomically per adjustment.
func (s *Service) ApplyQuietMarketRefunds(ctx context.Context) error {
	items, err := s.repo.ListQuietMarketPending(ctx)
	if err != nil {
		return fmt.Errorf("list quiet market adjustments: %w", err)
	}

	applied := 0
	for _, item := range items {
		adj := item.Adjustment
		deepLink := "/billing/adjustments/" + adj.ID.String()
		err := s.repo.ApplyRefund(ctx, repository.RefundParams{
			AdjustmentID: adj.ID,
			PlanID:       adj.PlanID,
			OwnerUserID:  item.OwnerUserID,
			Amount:       adj.CreditAmount,
			Title:        "Quiet market refund applied",
			Content: fmt.Sprintf("No leads were delivered between %s and %s; %s credits were refunded.",
				adj.PeriodStart.Format("2006-01-02"), adj.PeriodEnd.Format("2006-01-02"), adj.CreditAmount.String()),
			DeepLink: &deepLink,
		})
		if err != nil {
			s.log.Warn("quiet market refund failed", "adjustmentId", adj.ID, "error", err)
			continue
		}
		applied++

		s.eventBus.Publish(ctx, events.RefundApplied{
			BaseEvent:    events.NewBaseEvent(),
			AdjustmentID: adj.ID,
			PlanID:       adj.PlanID,
			OwnerUserID:  item.OwnerUserID,
			Amount:       adj.CreditAmount,
		})
	}

	s.log.Info("quiet market refund sweep completed", "pending", len(items), "applied", applied)
	return nil
}

// previousMonth returns the just-closed calendar month in UTC as a
// half-open interval.
func previousMonth(now time.Time) (time.Time, time.Time) {
	year, month, _ := now.UTC().Date()
	end := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	return end.AddDate(0, -1, 0), end
}
