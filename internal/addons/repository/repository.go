// Package repository provides database operations for addon subscriptions.
package repository

import (
	"context"
	"errors"
	"time"

	"leaddesk_backend/internal/addons/domain"
	"leaddesk_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const subscriptionColumns = `id, owner_user_id, company_id, addon_type, scope_id, status,
	valid_from, valid_until, grace_until, auto_renew, credits_amount, created_at, updated_at`

const usageColumns = `subscription_id, consumed, remaining, percent_used,
	notified_20, notified_50, notified_80, updated_at`

// Repository is the pgx-backed Store.
type Repository struct {
	pool *pgxpool.Pool
}

// New creates a new addon repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubscription(row rowScanner) (domain.Subscription, error) {
	var sub domain.Subscription
	err := row.Scan(
		&sub.ID, &sub.OwnerUserID, &sub.CompanyID, &sub.Type, &sub.ScopeID, &sub.Status,
		&sub.ValidFrom, &sub.ValidUntil, &sub.GraceUntil, &sub.AutoRenew, &sub.CreditsAmount,
		&sub.CreatedAt, &sub.UpdatedAt,
	)
	return sub, err
}

func scanUsage(row rowScanner) (domain.Usage, error) {
	var usage domain.Usage
	err := row.Scan(
		&usage.SubscriptionID, &usage.Consumed, &usage.Remaining, &usage.PercentUsed,
		&usage.Notified20, &usage.Notified50, &usage.Notified80, &usage.UpdatedAt,
	)
	return usage, err
}

// Create persists a subscription with its usage record and the purchase
// event in one transaction.
func (r *Repository) Create(ctx context.Context, sub domain.Subscription) (domain.Subscription, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return domain.Subscription{}, err
	}
	defer tx.Rollback(ctx)

	created, err := scanSubscription(tx.QueryRow(ctx, `
		INSERT INTO addon_subscriptions
			(id, owner_user_id, company_id, addon_type, scope_id, status,
			 valid_from, valid_until, grace_until, auto_renew, credits_amount)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING `+subscriptionColumns+`
	`, uuid.New(), sub.OwnerUserID, sub.CompanyID, sub.Type, sub.ScopeID, sub.Status,
		sub.ValidFrom, sub.ValidUntil, sub.GraceUntil, sub.AutoRenew, sub.CreditsAmount))
	if err != nil {
		return domain.Subscription{}, err
	}

	remaining := int64(0)
	if created.Type == domain.TypeCredits {
		remaining = created.CreditsAmount
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO addon_usage (subscription_id, remaining) VALUES ($1, $2)
	`, created.ID, remaining); err != nil {
		return domain.Subscription{}, err
	}

	if err := appendEvent(ctx, tx, created.ID, "purchased", created.Status, created.Status); err != nil {
		return domain.Subscription{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Subscription{}, err
	}
	return created, nil
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (domain.Subscription, error) {
	sub, err := scanSubscription(r.pool.QueryRow(ctx, `
		SELECT `+subscriptionColumns+` FROM addon_subscriptions WHERE id = $1
	`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Subscription{}, apperr.NotFound("subscription not found")
	}
	if err != nil {
		return domain.Subscription{}, err
	}
	return sub, nil
}

func (r *Repository) GetUsage(ctx context.Context, subscriptionID uuid.UUID) (domain.Usage, error) {
	usage, err := scanUsage(r.pool.QueryRow(ctx, `
		SELECT `+usageColumns+` FROM addon_usage WHERE subscription_id = $1
	`, subscriptionID))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Usage{}, apperr.NotFound("usage record not found")
	}
	if err != nil {
		return domain.Usage{}, err
	}
	return usage, nil
}

func (r *Repository) ListByOwner(ctx context.Context, ownerUserID uuid.UUID) ([]domain.Subscription, error) {
	return r.list(ctx, `
		SELECT `+subscriptionColumns+` FROM addon_subscriptions
		WHERE owner_user_id = $1
		ORDER BY created_at DESC
	`, ownerUserID)
}

func (r *Repository) ListOpen(ctx context.Context) ([]domain.Subscription, error) {
	return r.list(ctx, `
		SELECT `+subscriptionColumns+` FROM addon_subscriptions
		WHERE status <> 'CANCELLED'
		ORDER BY created_at ASC
	`)
}

func (r *Repository) ListRenewalDue(ctx context.Context, now time.Time) ([]domain.Subscription, error) {
	return r.list(ctx, `
		SELECT `+subscriptionColumns+` FROM addon_subscriptions
		WHERE status = 'GRACE_MODE' AND auto_renew = true AND grace_until <= $1
		ORDER BY grace_until ASC
	`, now)
}

// ListApproachingExpiry covers the full reminder horizon: anything open
// that expires within 7 days or already sits in its grace window.
func (r *Repository) ListApproachingExpiry(ctx context.Context, now time.Time) ([]domain.Subscription, error) {
	return r.list(ctx, `
		SELECT `+subscriptionColumns+` FROM addon_subscriptions
		WHERE status IN ('ACTIVE', 'LOW_BALANCE', 'GRACE_MODE')
			AND valid_until <= $1 + INTERVAL '7 days'
			AND grace_until >= $1
		ORDER BY valid_until ASC
	`, now)
}

func (r *Repository) list(ctx context.Context, query string, args ...any) ([]domain.Subscription, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.Subscription, 0)
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, sub)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return items, nil
}

// TransitionStatus moves from -> to, conditional on the subscription still
// holding the expected status, and appends the lifecycle event. A lost
// race surfaces as a state-conflict error.
func (r *Repository) TransitionStatus(ctx context.Context, id uuid.UUID, from, to domain.Status, eventType string) (domain.Subscription, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return domain.Subscription{}, err
	}
	defer tx.Rollback(ctx)

	sub, err := scanSubscription(tx.QueryRow(ctx, `
		UPDATE addon_subscriptions
		SET status = $3, updated_at = now()
		WHERE id = $1 AND status = $2
		RETURNING `+subscriptionColumns+`
	`, id, from, to))
	if errors.Is(err, pgx.ErrNoRows) {
		return r.conflictOrNotFound(ctx, id, from)
	}
	if err != nil {
		return domain.Subscription{}, err
	}

	if err := appendEvent(ctx, tx, id, eventType, from, to); err != nil {
		return domain.Subscription{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Subscription{}, err
	}
	return sub, nil
}

// ReportUsage applies one consumption write. The usage row is locked for
// the duration so concurrent reports serialize; the updated record, any
// resulting transition, and its event row commit together.
func (r *Repository) ReportUsage(ctx context.Context, id uuid.UUID, amount int64, now time.Time) (UsageReport, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return UsageReport{}, err
	}
	defer tx.Rollback(ctx)

	sub, err := scanSubscription(tx.QueryRow(ctx, `
		SELECT `+subscriptionColumns+` FROM addon_subscriptions WHERE id = $1 FOR UPDATE
	`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return UsageReport{}, apperr.NotFound("subscription not found")
	}
	if err != nil {
		return UsageReport{}, err
	}

	usage, err := scanUsage(tx.QueryRow(ctx, `
		SELECT `+usageColumns+` FROM addon_usage WHERE subscription_id = $1 FOR UPDATE
	`, id))
	if err != nil {
		return UsageReport{}, err
	}

	usage = domain.ApplyUsage(sub, usage, amount)
	crossed, usage := domain.CrossedThresholds(usage)

	if _, err := tx.Exec(ctx, `
		UPDATE addon_usage
		SET consumed = $2, remaining = $3, percent_used = $4,
			notified_20 = $5, notified_50 = $6, notified_80 = $7, updated_at = now()
		WHERE subscription_id = $1
	`, id, usage.Consumed, usage.Remaining, usage.PercentUsed,
		usage.Notified20, usage.Notified50, usage.Notified80); err != nil {
		return UsageReport{}, err
	}

	report := UsageReport{Subscription: sub, Usage: usage, CrossedThresholds: crossed}

	if next := domain.NextStatus(sub, usage, now); next != sub.Status {
		updated, err := scanSubscription(tx.QueryRow(ctx, `
			UPDATE addon_subscriptions SET status = $2, updated_at = now()
			WHERE id = $1
			RETURNING `+subscriptionColumns+`
		`, id, next))
		if err != nil {
			return UsageReport{}, err
		}
		if err := appendEvent(ctx, tx, id, "usage_evaluated", sub.Status, next); err != nil {
			return UsageReport{}, err
		}
		report.Transition = &StatusTransition{From: sub.Status, To: next}
		report.Subscription = updated
	}

	if err := tx.Commit(ctx); err != nil {
		return UsageReport{}, err
	}
	return report, nil
}

// Renew installs the new validity window. Only GRACE_MODE subscriptions
// renew; anything else lost the race or was never eligible.
func (r *Repository) Renew(ctx context.Context, params RenewParams) (domain.Subscription, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return domain.Subscription{}, err
	}
	defer tx.Rollback(ctx)

	sub, err := scanSubscription(tx.QueryRow(ctx, `
		UPDATE addon_subscriptions
		SET status = 'ACTIVE', valid_from = $2, valid_until = $3, grace_until = $4, updated_at = now()
		WHERE id = $1 AND status = 'GRACE_MODE'
		RETURNING `+subscriptionColumns+`
	`, params.SubscriptionID, params.ValidFrom, params.ValidUntil, params.GraceUntil))
	if errors.Is(err, pgx.ErrNoRows) {
		return r.conflictOrNotFound(ctx, params.SubscriptionID, domain.StatusGraceMode)
	}
	if err != nil {
		return domain.Subscription{}, err
	}

	if params.ResetUsage {
		if _, err := tx.Exec(ctx, `
			UPDATE addon_usage
			SET consumed = 0, remaining = $2, percent_used = 0,
				notified_20 = false, notified_50 = false, notified_80 = false, updated_at = now()
			WHERE subscription_id = $1
		`, sub.ID, sub.CreditsAmount); err != nil {
			return domain.Subscription{}, err
		}
	}

	if err := appendEvent(ctx, tx, sub.ID, "renewed", domain.StatusGraceMode, domain.StatusActive); err != nil {
		return domain.Subscription{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Subscription{}, err
	}
	return sub, nil
}

// MarkReminderSent claims the reminder slot. The primary key on
// (subscription_id, window_key, period_key) makes the claim idempotent.
func (r *Repository) MarkReminderSent(ctx context.Context, subscriptionID uuid.UUID, window string, periodKey time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO addon_reminders (subscription_id, window_key, period_key)
		VALUES ($1, $2, $3)
		ON CONFLICT (subscription_id, window_key, period_key) DO NOTHING
	`, subscriptionID, window, periodKey)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *Repository) ListEvents(ctx context.Context, subscriptionID uuid.UUID) ([]LifecycleEvent, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, subscription_id, event_type, from_status, to_status, created_at
		FROM addon_events
		WHERE subscription_id = $1
		ORDER BY created_at ASC
	`, subscriptionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]LifecycleEvent, 0)
	for rows.Next() {
		var event LifecycleEvent
		if err := rows.Scan(
			&event.ID, &event.SubscriptionID, &event.EventType, &event.FromStatus, &event.ToStatus, &event.CreatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, event)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return items, nil
}

func appendEvent(ctx context.Context, tx pgx.Tx, subscriptionID uuid.UUID, eventType string, from, to domain.Status) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO addon_events (subscription_id, event_type, from_status, to_status)
		VALUES ($1, $2, $3, $4)
	`, subscriptionID, eventType, from, to)
	return err
}

func (r *Repository) conflictOrNotFound(ctx context.Context, id uuid.UUID, expected domain.Status) (domain.Subscription, error) {
	var status string
	err := r.pool.QueryRow(ctx, `SELECT status FROM addon_subscriptions WHERE id = $1`, id).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Subscription{}, apperr.NotFound("subscription not found")
	}
	if err != nil {
		return domain.Subscription{}, err
	}
	return domain.Subscription{}, apperr.Conflict("subscription is " + status + ", expected " + string(expected))
}

var _ Store = (*Repository)(nil)
