// Package service provides business logic for the addon lifecycle machine.
package service

import (
	"context"
	"fmt"
	"time"

	"leaddesk_backend/internal/addons/domain"
	"leaddesk_backend/internal/addons/repository"
	"leaddesk_backend/internal/events"
	"leaddesk_backend/internal/ledger"
	"leaddesk_backend/platform/apperr"
	"leaddesk_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// lifecycleConcurrency bounds the periodic sweep; subscriptions share no
// state, so evaluations run independently.
const lifecycleConcurrency = 8

// defaultPeriodDays is the validity window length when a purchase does
// not specify one.
const defaultPeriodDays = 30

// LedgerAppender records credit top-ups on renewal.
type LedgerAppender interface {
	Append(ctx context.Context, ownerUserID uuid.UUID, kind ledger.Kind, amount decimal.Decimal, referenceID *uuid.UUID, note string) (ledger.Entry, error)
}

// Clock abstracts time for deterministic lifecycle tests.
type Clock func() time.Time

// Service owns addon subscription state transitions.
type Service struct {
	repo     repository.Store
	ledger   LedgerAppender
	eventBus events.Bus
	log      *logger.Logger
	now      Clock
}

// New creates a new addons service.
func New(repo repository.Store, ledgerRepo LedgerAppender, eventBus events.Bus, log *logger.Logger) *Service {
	return &Service{repo: repo, ledger: ledgerRepo, eventBus: eventBus, log: log, now: time.Now}
}

// SetClock overrides the time source. Test use only.
func (s *Service) SetClock(clock Clock) {
	s.now = clock
}

// PurchaseParams carries one addon purchase.
type PurchaseParams struct {
	OwnerUserID   uuid.UUID
	CompanyID     *uuid.UUID
	Type          domain.Type
	ScopeID       string
	PeriodDays    int
	AutoRenew     bool
	CreditsAmount int64
}

// Purchase creates an ACTIVE subscription with a fresh validity window
// and its usage record.
func (s *Service) Purchase(ctx context.Context, params PurchaseParams) (domain.Subscription, error) {
	if !domain.IsValidType(params.Type) {
		return domain.Subscription{}, apperr.Validation("unknown addon type")
	}
	if params.ScopeID == "" {
		return domain.Subscription{}, apperr.Validation("scope is required")
	}
	if params.Type == domain.TypeCredits && params.CreditsAmount <= 0 {
		return domain.Subscription{}, apperr.Validation("credits amount must be positive")
	}
	if params.PeriodDays <= 0 {
		params.PeriodDays = defaultPeriodDays
	}

	now := s.now()
	validUntil := now.AddDate(0, 0, params.PeriodDays)
	sub := domain.Subscription{
		OwnerUserID:   params.OwnerUserID,
		CompanyID:     params.CompanyID,
		Type:          params.Type,
		ScopeID:       params.ScopeID,
		Status:        domain.StatusActive,
		ValidFrom:     now,
		ValidUntil:    validUntil,
		GraceUntil:    validUntil.Add(domain.GracePeriod),
		AutoRenew:     params.AutoRenew,
		CreditsAmount: params.CreditsAmount,
	}
	return s.repo.Create(ctx, sub)
}

// Get returns one subscription.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (domain.Subscription, error) {
	return s.repo.GetByID(ctx, id)
}

// GetUsage returns a subscription's usage record.
func (s *Service) GetUsage(ctx context.Context, id uuid.UUID) (domain.Usage, error) {
	return s.repo.GetUsage(ctx, id)
}

// ListByOwner returns an owner's subscriptions.
func (s *Service) ListByOwner(ctx context.Context, ownerUserID uuid.UUID) ([]domain.Subscription, error) {
	return s.repo.ListByOwner(ctx, ownerUserID)
}

// ListEvents returns a subscription's lifecycle log.
func (s *Service) ListEvents(ctx context.Context, id uuid.UUID) ([]repository.LifecycleEvent, error) {
	return s.repo.ListEvents(ctx, id)
}

// Evaluate re-derives a subscription's lifecycle state from its validity
// window and usage, persisting the transition when it changed. CANCELLED
// is never left.
func (s *Service) Evaluate(ctx context.Context, id uuid.UUID) (domain.Subscription, error) {
	sub, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return domain.Subscription{}, err
	}

	var usage domain.Usage
	if sub.Type == domain.TypeCredits {
		usage, err = s.repo.GetUsage(ctx, id)
		if err != nil {
			return domain.Subscription{}, err
		}
	}

	next := domain.NextStatus(sub, usage, s.now())
	if next == sub.Status {
		return sub, nil
	}

	updated, err := s.repo.TransitionStatus(ctx, id, sub.Status, next, "evaluated")
	if err != nil {
		return domain.Subscription{}, err
	}
	s.publishStateChange(ctx, updated, sub.Status, next)
	return updated, nil
}

// ReportUsage consumes amount units. The usage update and any resulting
// transition commit atomically; threshold notifications are published
// after commit and fire once per threshold.
func (s *Service) ReportUsage(ctx context.Context, id uuid.UUID, amount int64) (domain.Subscription, domain.Usage, error) {
	if amount <= 0 {
		return domain.Subscription{}, domain.Usage{}, apperr.Validation("usage amount must be positive")
	}

	report, err := s.repo.ReportUsage(ctx, id, amount, s.now())
	if err != nil {
		return domain.Subscription{}, domain.Usage{}, err
	}

	for _, threshold := range report.CrossedThresholds {
		s.eventBus.Publish(ctx, events.UsageThresholdReached{
			BaseEvent:      events.NewBaseEvent(),
			SubscriptionID: report.Subscription.ID,
			OwnerUserID:    report.Subscription.OwnerUserID,
			Threshold:      threshold,
			PercentUsed:    report.Usage.PercentUsed,
		})
	}
	if report.Transition != nil {
		s.publishStateChange(ctx, report.Subscription, report.Transition.From, report.Transition.To)
	}
	return report.Subscription, report.Usage, nil
}

// Renew installs a fresh one-period validity window and reactivates the
// subscription. Any failure forces EXPIRED and notifies the owner; a
// renewal never leaves an ambiguous state behind.
func (s *Service) Renew(ctx context.Context, id uuid.UUID) (domain.Subscription, error) {
	sub, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return domain.Subscription{}, err
	}
	if sub.Status != domain.StatusGraceMode {
		return domain.Subscription{}, apperr.Conflict("subscription is " + string(sub.Status) + ", expected GRACE_MODE")
	}

	now := s.now()
	validFrom, validUntil, graceUntil := domain.RenewWindow(sub, now)
	renewed, err := s.repo.Renew(ctx, repository.RenewParams{
		SubscriptionID: sub.ID,
		ValidFrom:      validFrom,
		ValidUntil:     validUntil,
		GraceUntil:     graceUntil,
		ResetUsage:     sub.Type == domain.TypeCredits,
	})
	if err != nil {
		s.forceExpired(ctx, sub, err)
		return domain.Subscription{}, err
	}

	if renewed.Type == domain.TypeCredits && renewed.CreditsAmount > 0 {
		refID := renewed.ID
		if _, err := s.ledger.Append(ctx, renewed.OwnerUserID, ledger.KindTopUp,
			decimal.NewFromInt(renewed.CreditsAmount), &refID, "addon renewal top-up"); err != nil {
			s.log.Warn("renewal top-up ledger entry failed", "subscriptionId", renewed.ID, "error", err)
		}
	}

	s.eventBus.Publish(ctx, events.AddonRenewed{
		BaseEvent:      events.NewBaseEvent(),
		SubscriptionID: renewed.ID,
		OwnerUserID:    renewed.OwnerUserID,
		ValidUntil:     renewed.ValidUntil,
	})
	return renewed, nil
}

// Cancel terminates a subscription. Only the owner may cancel, the state
// is terminal, and no automatic process ever reverses it.
func (s *Service) Cancel(ctx context.Context, id, actingUserID uuid.UUID) (domain.Subscription, error) {
	sub, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return domain.Subscription{}, err
	}
	if sub.OwnerUserID != actingUserID {
		return domain.Subscription{}, apperr.Forbidden("only the owner may cancel a subscription")
	}
	if sub.Status == domain.StatusCancelled {
		return domain.Subscription{}, apperr.Conflict("subscription is already cancelled")
	}

	updated, err := s.repo.TransitionStatus(ctx, id, sub.Status, domain.StatusCancelled, "cancelled")
	if err != nil {
		return domain.Subscription{}, err
	}
	s.publishStateChange(ctx, updated, sub.Status, domain.StatusCancelled)
	return updated, nil
}

// RunLifecycleCheck sweeps every open subscription through Evaluate.
// Evaluations are independent, so the sweep fans out with bounded
// concurrency; one failing subscription never stops the rest.
func (s *Service) RunLifecycleCheck(ctx context.Context) error {
	subs, err := s.repo.ListOpen(ctx)
	if err != nil {
		return fmt.Errorf("list open subscriptions: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(lifecycleConcurrency)
	for _, sub := range subs {
		g.Go(func() error {
			if _, err := s.Evaluate(gctx, sub.ID); err != nil {
				s.log.Warn("lifecycle evaluation failed", "subscriptionId", sub.ID, "error", err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	s.log.Info("lifecycle check completed", "subscriptions", len(subs))
	return nil
}

// RunAutoRenewals renews every auto-renew subscription whose grace window
// closed. Failures are contained per subscription: the failing one is
// forced EXPIRED inside Renew, the sweep continues.
func (s *Service) RunAutoRenewals(ctx context.Context) error {
	subs, err := s.repo.ListRenewalDue(ctx, s.now())
	if err != nil {
		return fmt.Errorf("list renewal candidates: %w", err)
	}

	renewed := 0
	for _, sub := range subs {
		if _, err := s.Renew(ctx, sub.ID); err != nil {
			s.log.Warn("auto-renewal failed", "subscriptionId", sub.ID, "error", err)
			continue
		}
		renewed++
	}

	s.log.Info("auto-renewal sweep completed", "due", len(subs), "renewed", renewed)
	return nil
}

// RunUpsellReminders fires expiry reminders at fixed offsets (7 days,
// 3 days, expiry day, grace). The reminder table's primary key is the
// idempotency guard: re-running the sweep never duplicates a reminder
// within the same validity period.
func (s *Service) RunUpsellReminders(ctx context.Context) error {
	now := s.now()
	subs, err := s.repo.ListApproachingExpiry(ctx, now)
	if err != nil {
		return fmt.Errorf("list expiring subscriptions: %w", err)
	}

	sent := 0
	for _, sub := range subs {
		window := domain.DueReminderWindow(sub, now)
		if window == "" {
			continue
		}

		claimed, err := s.repo.MarkReminderSent(ctx, sub.ID, window, sub.ValidUntil)
		if err != nil {
			s.log.Warn("reminder claim failed", "subscriptionId", sub.ID, "window", window, "error", err)
			continue
		}
		if !claimed {
			continue
		}

		s.eventBus.Publish(ctx, events.UpsellReminderDue{
			BaseEvent:      events.NewBaseEvent(),
			SubscriptionID: sub.ID,
			OwnerUserID:    sub.OwnerUserID,
			Window:         window,
			ValidUntil:     sub.ValidUntil,
		})
		sent++
	}

	s.log.Info("upsell reminder sweep completed", "candidates", len(subs), "sent", sent)
	return nil
}

// forceExpired is the renewal failure path: the subscription must not
// linger in GRACE_MODE with a closed grace window.
func (s *Service) forceExpired(ctx context.Context, sub domain.Subscription, cause error) {
	if _, err := s.repo.TransitionStatus(ctx, sub.ID, sub.Status, domain.StatusExpired, "renewal_failed"); err != nil {
		s.log.Error("could not force subscription to EXPIRED after renewal failure",
			"subscriptionId", sub.ID, "error", err)
	}
	s.eventBus.Publish(ctx, events.AddonRenewalFailed{
		BaseEvent:      events.NewBaseEvent(),
		SubscriptionID: sub.ID,
		OwnerUserID:    sub.OwnerUserID,
		Reason:         cause.Error(),
	})
}

func (s *Service) publishStateChange(ctx context.Context, sub domain.Subscription, from, to domain.Status) {
	s.log.StateTransition("addon_subscription", sub.ID.String(), string(from), string(to))
	s.eventBus.Publish(ctx, events.AddonStateChanged{
		BaseEvent:      events.NewBaseEvent(),
		SubscriptionID: sub.ID,
		OwnerUserID:    sub.OwnerUserID,
		AddonType:      string(sub.Type),
		FromStatus:     string(from),
		ToStatus:       string(to),
	})
}
