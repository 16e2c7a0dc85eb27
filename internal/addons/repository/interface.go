package repository

import (
	"context"
	"time"

	"leaddesk_backend/internal/addons/domain"

	"github.com/google/uuid"
)

// LifecycleEvent is one immutable row of the subscription event log.
type LifecycleEvent struct {
	ID             uuid.UUID
	SubscriptionID uuid.UUID
	EventType      string
	FromStatus     domain.Status
	ToStatus       domain.Status
	CreatedAt      time.Time
}

// StatusTransition records the endpoints of one persisted transition.
type StatusTransition struct {
	From domain.Status
	To   domain.Status
}

// UsageReport is the outcome of one usage write: the post-write state,
// any thresholds newly crossed, and the transition that resulted, if any.
type UsageReport struct {
	Subscription      domain.Subscription
	Usage             domain.Usage
	CrossedThresholds []int
	Transition        *StatusTransition
}

// RenewParams carries one renewal write.
type RenewParams struct {
	SubscriptionID uuid.UUID
	ValidFrom      time.Time
	ValidUntil     time.Time
	GraceUntil     time.Time
	// ResetUsage restores the full credits balance for credits-type
	// subscriptions.
	ResetUsage bool
}

// Store defines the addon persistence operations. Status writes are
// conditional on the expected prior status and surface a state-conflict
// error when another writer got there first. ReportUsage and Renew are
// single transactions: every constituent write lands or none do.
type Store interface {
	Create(ctx context.Context, sub domain.Subscription) (domain.Subscription, error)
	GetByID(ctx context.Context, id uuid.UUID) (domain.Subscription, error)
	GetUsage(ctx context.Context, subscriptionID uuid.UUID) (domain.Usage, error)
	ListByOwner(ctx context.Context, ownerUserID uuid.UUID) ([]domain.Subscription, error)
	// ListOpen returns every subscription not yet CANCELLED, for the
	// periodic lifecycle sweep.
	ListOpen(ctx context.Context) ([]domain.Subscription, error)
	// ListRenewalDue returns GRACE_MODE auto-renew subscriptions whose
	// grace window has closed.
	ListRenewalDue(ctx context.Context, now time.Time) ([]domain.Subscription, error)
	// ListApproachingExpiry returns candidates for upsell reminders:
	// open subscriptions expiring within the reminder horizon or in grace.
	ListApproachingExpiry(ctx context.Context, now time.Time) ([]domain.Subscription, error)
	// TransitionStatus moves from -> to and appends the lifecycle event
	// in one transaction.
	TransitionStatus(ctx context.Context, id uuid.UUID, from, to domain.Status, eventType string) (domain.Subscription, error)
	// ReportUsage applies amount to the usage record, persists any
	// resulting lifecycle transition, and appends its event, atomically.
	ReportUsage(ctx context.Context, id uuid.UUID, amount int64, now time.Time) (UsageReport, error)
	// Renew installs a new validity window, resets the status to ACTIVE,
	// and optionally restores the usage balance, atomically.
	Renew(ctx context.Context, params RenewParams) (domain.Subscription, error)
	// MarkReminderSent claims the (subscription, window, period) reminder
	// slot. Returns false when the slot was already claimed.
	MarkReminderSent(ctx context.Context, subscriptionID uuid.UUID, window string, periodKey time.Time) (bool, error)
	ListEvents(ctx context.Context, subscriptionID uuid.UUID) ([]LifecycleEvent, error)
}
