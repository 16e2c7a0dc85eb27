// Package ledger keeps the per-owner credit balance and its append-only
// entry log. Writes that must be atomic with other tables (refunds,
// top-ups) run through the InTx variants on a caller-owned transaction.
package ledger

import (
	"context"
	"errors"
	"time"

	"leaddesk_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Kind classifies a ledger entry.
type Kind string

const (
	KindRefund    Kind = "refund"
	KindCredit    Kind = "credit"
	KindTopUp     Kind = "top_up"
	KindSurcharge Kind = "surcharge"
)

// Entry is one immutable ledger line.
type Entry struct {
	ID          uuid.UUID
	OwnerUserID uuid.UUID
	Kind        Kind
	Amount      decimal.Decimal
	ReferenceID *uuid.UUID
	Note        string
	CreatedAt   time.Time
}

// Repository persists credit balances and ledger entries.
type Repository struct {
	pool *pgxpool.Pool
}

// New creates a new ledger repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Balance returns the owner's current credit balance. An owner without a
// balance row has a zero balance, not an error.
func (r *Repository) Balance(ctx context.Context, ownerUserID uuid.UUID) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := r.pool.QueryRow(ctx, `
		SELECT balance FROM credit_balances WHERE owner_user_id = $1
	`, ownerUserID).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, err
	}
	return balance, nil
}

// CreditInTx increments the owner's balance and appends the matching
// ledger entry inside the caller's transaction. The caller commits.
func (r *Repository) CreditInTx(ctx context.Context, tx pgx.Tx, ownerUserID uuid.UUID, amount decimal.Decimal, kind Kind, referenceID *uuid.UUID, note string) (Entry, error) {
	if amount.IsNegative() {
		return Entry{}, apperr.Validation("credit amount cannot be negative")
	}

	_, err := tx.Exec(ctx, `
		INSERT INTO credit_balances (owner_user_id, balance, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (owner_user_id)
		DO UPDATE SET balance = credit_balances.balance + EXCLUDED.balance, updated_at = now()
	`, ownerUserID, amount)
	if err != nil {
		return Entry{}, err
	}

	return r.appendInTx(ctx, tx, ownerUserID, kind, amount, referenceID, note)
}

// Append records a ledger entry that does not touch the balance, such as
// a surcharge forwarded to external invoicing.
func (r *Repository) Append(ctx context.Context, ownerUserID uuid.UUID, kind Kind, amount decimal.Decimal, referenceID *uuid.UUID, note string) (Entry, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Entry{}, err
	}
	defer tx.Rollback(ctx)

	entry, err := r.appendInTx(ctx, tx, ownerUserID, kind, amount, referenceID, note)
	if err != nil {
		return Entry{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Entry{}, err
	}
	return entry, nil
}

// AppendInTx records a ledger entry inside the caller's transaction.
func (r *Repository) AppendInTx(ctx context.Context, tx pgx.Tx, ownerUserID uuid.UUID, kind Kind, amount decimal.Decimal, referenceID *uuid.UUID, note string) (Entry, error) {
	return r.appendInTx(ctx, tx, ownerUserID, kind, amount, referenceID, note)
}

func (r *Repository) appendInTx(ctx context.Context, tx pgx.Tx, ownerUserID uuid.UUID, kind Kind, amount decimal.Decimal, referenceID *uuid.UUID, note string) (Entry, error) {
	var entry Entry
	err := tx.QueryRow(ctx, `
		INSERT INTO ledger_entries (id, owner_user_id, kind, amount, reference_id, note, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		RETURNING id, owner_user_id, kind, amount, reference_id, note, created_at
	`, uuid.New(), ownerUserID, kind, amount, referenceID, note).Scan(
		&entry.ID, &entry.OwnerUserID, &entry.Kind, &entry.Amount, &entry.ReferenceID, &entry.Note, &entry.CreatedAt,
	)
	if err != nil {
		return Entry{}, err
	}
	return entry, nil
}

// List returns an owner's ledger entries, newest first.
func (r *Repository) List(ctx context.Context, ownerUserID uuid.UUID, limit, offset int) ([]Entry, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, owner_user_id, kind, amount, reference_id, note, created_at
		FROM ledger_entries
		WHERE owner_user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, ownerUserID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]Entry, 0)
	for rows.Next() {
		var entry Entry
		if err := rows.Scan(
			&entry.ID, &entry.OwnerUserID, &entry.Kind, &entry.Amount, &entry.ReferenceID, &entry.Note, &entry.CreatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, entry)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return items, nil
}
