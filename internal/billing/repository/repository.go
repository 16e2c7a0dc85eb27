// Package repository provides database operations for billing plans and
// reconciliation adjustments.
package repository

import (
	"context"
	"errors"
	"time"

	"leaddesk_backend/internal/ledger"
	"leaddesk_backend/internal/notification/inapp"
	"leaddesk_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const planColumns = `id, owner_user_id, category_id, locality, base_quota,
	carryover_enabled, carryover_balance, guarantee_enabled, guaranteed_minimum,
	created_at, updated_at`

const adjustmentColumns = `id, plan_id, period_start, period_end, expected, delivered,
	real_value_factor, kind, credit_amount, status, note, created_at, updated_at`

// Repository is the pgx-backed Store. Refund application composes the
// ledger and notification repositories into one transaction.
type Repository struct {
	pool          *pgxpool.Pool
	ledger        *ledger.Repository
	notifications *inapp.Repository
}

// New creates a new billing repository.
func New(pool *pgxpool.Pool, ledgerRepo *ledger.Repository, notifications *inapp.Repository) *Repository {
	return &Repository{pool: pool, ledger: ledgerRepo, notifications: notifications}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPlan(row rowScanner) (Plan, error) {
	var plan Plan
	err := row.Scan(
		&plan.ID, &plan.OwnerUserID, &plan.CategoryID, &plan.Locality, &plan.BaseQuota,
		&plan.CarryoverEnabled, &plan.CarryoverBalance, &plan.GuaranteeEnabled, &plan.GuaranteedMinimum,
		&plan.CreatedAt, &plan.UpdatedAt,
	)
	return plan, err
}

func scanAdjustment(row rowScanner) (Adjustment, error) {
	var adj Adjustment
	err := row.Scan(
		&adj.ID, &adj.PlanID, &adj.PeriodStart, &adj.PeriodEnd, &adj.Expected, &adj.Delivered,
		&adj.RealValueFactor, &adj.Kind, &adj.CreditAmount, &adj.Status, &adj.Note,
		&adj.CreatedAt, &adj.UpdatedAt,
	)
	return adj, err
}

func (r *Repository) CreatePlan(ctx context.Context, plan Plan) (Plan, error) {
	created, err := scanPlan(r.pool.QueryRow(ctx, `
		INSERT INTO billing_plans
			(id, owner_user_id, category_id, locality, base_quota,
			 carryover_enabled, carryover_balance, guarantee_enabled, guaranteed_minimum)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING `+planColumns+`
	`, uuid.New(), plan.OwnerUserID, plan.CategoryID, plan.Locality, plan.BaseQuota,
		plan.CarryoverEnabled, plan.CarryoverBalance, plan.GuaranteeEnabled, plan.GuaranteedMinimum))
	if err != nil {
		return Plan{}, err
	}
	return created, nil
}

func (r *Repository) GetPlan(ctx context.Context, id uuid.UUID) (Plan, error) {
	plan, err := scanPlan(r.pool.QueryRow(ctx, `
		SELECT `+planColumns+` FROM billing_plans WHERE id = $1
	`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Plan{}, apperr.NotFound("billing plan not found")
	}
	if err != nil {
		return Plan{}, err
	}
	return plan, nil
}

func (r *Repository) ListPlansByOwner(ctx context.Context, ownerUserID uuid.UUID) ([]Plan, error) {
	return r.listPlans(ctx, `
		SELECT `+planColumns+` FROM billing_plans
		WHERE owner_user_id = $1 ORDER BY created_at ASC
	`, ownerUserID)
}

func (r *Repository) ListAllPlans(ctx context.Context) ([]Plan, error) {
	return r.listPlans(ctx, `
		SELECT `+planColumns+` FROM billing_plans ORDER BY created_at ASC
	`)
}

func (r *Repository) listPlans(ctx context.Context, query string, args ...any) ([]Plan, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]Plan, 0)
	for rows.Next() {
		plan, err := scanPlan(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, plan)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return items, nil
}

// CountDelivered is the delivered-volume query: COMPLETED queue entries
// whose lead falls inside the plan's scope, completed within the period.
// A plan without category or locality scope counts everything.
func (r *Repository) CountDelivered(ctx context.Context, plan Plan, periodStart, periodEnd time.Time) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM lead_queue_entries q
		JOIN leads l ON l.id = q.lead_id
		WHERE q.status = 'COMPLETED'
			AND q.completed_at >= $1 AND q.completed_at < $2
			AND ($3::uuid IS NULL OR l.category_id = $3)
			AND ($4::text IS NULL OR l.locality = $4)
	`, periodStart, periodEnd, plan.CategoryID, plan.Locality).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (r *Repository) GetAdjustment(ctx context.Context, planID uuid.UUID, periodStart, periodEnd time.Time) (Adjustment, error) {
	adj, err := scanAdjustment(r.pool.QueryRow(ctx, `
		SELECT `+adjustmentColumns+` FROM billing_adjustments
		WHERE plan_id = $1 AND period_start = $2 AND period_end = $3
	`, planID, periodStart, periodEnd))
	if errors.Is(err, pgx.ErrNoRows) {
		return Adjustment{}, apperr.NotFound("adjustment not found")
	}
	if err != nil {
		return Adjustment{}, err
	}
	return adj, nil
}

// Settle upserts the adjustment and writes the plan's carryover balance in
// one transaction. The conditional update skips applied adjustments, so an
// applied period can never be rewritten.
func (r *Repository) Settle(ctx context.Context, params SettleParams) (Adjustment, bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Adjustment{}, false, err
	}
	defer tx.Rollback(ctx)

	var existedBefore bool
	err = tx.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM billing_adjustments
			WHERE plan_id = $1 AND period_start = $2 AND period_end = $3
		)
	`, params.PlanID, params.PeriodStart, params.PeriodEnd).Scan(&existedBefore)
	if err != nil {
		return Adjustment{}, false, err
	}

	adj, err := scanAdjustment(tx.QueryRow(ctx, `
		INSERT INTO billing_adjustments
			(id, plan_id, period_start, period_end, expected, delivered,
			 real_value_factor, kind, credit_amount, note)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (plan_id, period_start, period_end) DO UPDATE
		SET expected = EXCLUDED.expected, delivered = EXCLUDED.delivered,
			real_value_factor = EXCLUDED.real_value_factor, kind = EXCLUDED.kind,
			credit_amount = EXCLUDED.credit_amount, note = EXCLUDED.note, updated_at = now()
		WHERE billing_adjustments.status = 'pending'
		RETURNING `+adjustmentColumns+`
	`, uuid.New(), params.PlanID, params.PeriodStart, params.PeriodEnd, params.Expected,
		params.Delivered, params.RealValueFactor, params.Kind, params.CreditAmount, params.Note))
	if errors.Is(err, pgx.ErrNoRows) {
		// Applied adjustment: terminal, return it untouched.
		applied, err := r.GetAdjustment(ctx, params.PlanID, params.PeriodStart, params.PeriodEnd)
		if err != nil {
			return Adjustment{}, false, err
		}
		return applied, false, nil
	}
	if err != nil {
		return Adjustment{}, false, err
	}

	if params.WriteCarryover {
		if _, err := tx.Exec(ctx, `
			UPDATE billing_plans SET carryover_balance = $2, updated_at = now() WHERE id = $1
		`, params.PlanID, params.NextCarryover); err != nil {
			return Adjustment{}, false, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return Adjustment{}, false, err
	}
	return adj, !existedBefore, nil
}

func (r *Repository) ListAdjustments(ctx context.Context, params ListAdjustmentsParams) ([]Adjustment, error) {
	limit := params.Limit
	if limit <= 0 || limit > 100 {
		limit = 25
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+adjustmentColumns+` FROM billing_adjustments
		WHERE ($1::uuid IS NULL OR plan_id = $1)
			AND ($2::text IS NULL OR status = $2)
		ORDER BY period_start DESC, created_at DESC
		LIMIT $3 OFFSET $4
	`, params.PlanID, params.Status, limit, params.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]Adjustment, 0, limit)
	for rows.Next() {
		adj, err := scanAdjustment(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, adj)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return items, nil
}

func (r *Repository) ListQuietMarketPending(ctx context.Context) ([]QuietMarketAdjustment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT a.id, a.plan_id, a.period_start, a.period_end, a.expected, a.delivered,
			a.real_value_factor, a.kind, a.credit_amount, a.status, a.note,
			a.created_at, a.updated_at, p.owner_user_id
		FROM billing_adjustments a
		JOIN billing_plans p ON p.id = a.plan_id
		WHERE a.status = 'pending' AND a.kind = 'credit' AND a.delivered = 0
		ORDER BY a.period_start ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]QuietMarketAdjustment, 0)
	for rows.Next() {
		var item QuietMarketAdjustment
		adj := &item.Adjustment
		if err := rows.Scan(
			&adj.ID, &adj.PlanID, &adj.PeriodStart, &adj.PeriodEnd, &adj.Expected, &adj.Delivered,
			&adj.RealValueFactor, &adj.Kind, &adj.CreditAmount, &adj.Status, &adj.Note,
			&adj.CreatedAt, &adj.UpdatedAt, &item.OwnerUserID,
		); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return items, nil
}

// ApplyRefund runs the quiet-market refund as one transaction: mark the
// adjustment applied (conditional on pending), increment the balance,
// append the ledger entry, write the notification. A lost race on the
// adjustment status aborts everything with a state-conflict error.
func (r *Repository) ApplyRefund(ctx context.Context, params RefundParams) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE billing_adjustments SET status = 'applied', updated_at = now()
		WHERE id = $1 AND status = 'pending'
	`, params.AdjustmentID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.Conflict("adjustment is not pending")
	}

	refID := params.AdjustmentID
	if _, err := r.ledger.CreditInTx(ctx, tx, params.OwnerUserID, params.Amount, ledger.KindRefund, &refID, params.Note()); err != nil {
		return err
	}

	resourceType := "billing_adjustment"
	if _, err := r.notifications.CreateInTx(ctx, tx, inapp.CreateParams{
		UserID:       params.OwnerUserID,
		Title:        params.Title,
		Content:      params.Content,
		ResourceID:   &refID,
		ResourceType: &resourceType,
		Category:     "billing",
		DeepLink:     params.DeepLink,
	}); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// Note is the ledger line text for a refund.
func (p RefundParams) Note() string {
	return "quiet market refund for plan " + p.PlanID.String()
}

var _ Store = (*Repository)(nil)
