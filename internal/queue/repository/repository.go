// Package repository provides database operations for the lead queue.
package repository

import (
	"context"
	"errors"

	"leaddesk_backend/internal/queue/domain"
	"leaddesk_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const entryColumns = `id, lead_id, company_id, handler_id, status, position, assignment_kind,
	fallback, score, notes, decline_reason, completed_at, created_at, updated_at`

// Repository is the pgx-backed EntryStore.
type Repository struct {
	pool *pgxpool.Pool
}

// New creates a new queue repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanEntry(row pgx.Row) (Entry, error) {
	var entry Entry
	err := row.Scan(
		&entry.ID, &entry.LeadID, &entry.CompanyID, &entry.HandlerID, &entry.Status, &entry.Position,
		&entry.AssignmentKind, &entry.Fallback, &entry.Score, &entry.Notes, &entry.DeclineReason,
		&entry.CompletedAt, &entry.CreatedAt, &entry.UpdatedAt,
	)
	return entry, err
}

// Insert creates a new PENDING entry at the back of the company's queue.
// The partial unique index on (lead_id, company_id) makes a second enqueue
// a no-op; the existing live entry is returned unchanged.
func (r *Repository) Insert(ctx context.Context, leadID, companyID uuid.UUID, notes string) (Entry, bool, error) {
	entry, err := scanEntry(r.pool.QueryRow(ctx, `
		INSERT INTO lead_queue_entries (lead_id, company_id, position, notes)
		SELECT $1, $2,
			(SELECT COUNT(*) + 1 FROM lead_queue_entries WHERE company_id = $2 AND status = 'PENDING'),
			$3
		ON CONFLICT (lead_id, company_id) WHERE status <> 'DECLINED' DO NOTHING
		RETURNING `+entryColumns+`
	`, leadID, companyID, notes))
	if err == nil {
		return entry, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Entry{}, false, err
	}

	// Conflict: hand back the live entry for this pair.
	existing, err := scanEntry(r.pool.QueryRow(ctx, `
		SELECT `+entryColumns+`
		FROM lead_queue_entries
		WHERE lead_id = $1 AND company_id = $2 AND status <> 'DECLINED'
	`, leadID, companyID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Entry{}, false, apperr.NotFound("queue entry not found")
	}
	if err != nil {
		return Entry{}, false, err
	}
	return existing, false, nil
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (Entry, error) {
	entry, err := scanEntry(r.pool.QueryRow(ctx, `
		SELECT `+entryColumns+`
		FROM lead_queue_entries WHERE id = $1
	`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Entry{}, apperr.NotFound("queue entry not found")
	}
	if err != nil {
		return Entry{}, err
	}
	return entry, nil
}

func (r *Repository) List(ctx context.Context, params ListParams) ([]Entry, int, error) {
	limit := params.Limit
	if limit <= 0 || limit > 100 {
		limit = 25
	}

	var total int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM lead_queue_entries
		WHERE company_id = $1 AND ($2::text IS NULL OR status = $2)
	`, params.CompanyID, params.Status).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+entryColumns+`
		FROM lead_queue_entries
		WHERE company_id = $1 AND ($2::text IS NULL OR status = $2)
		ORDER BY position ASC, created_at ASC
		LIMIT $3 OFFSET $4
	`, params.CompanyID, params.Status, limit, params.Offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	items := make([]Entry, 0, limit)
	for rows.Next() {
		var entry Entry
		if err := rows.Scan(
			&entry.ID, &entry.LeadID, &entry.CompanyID, &entry.HandlerID, &entry.Status, &entry.Position,
			&entry.AssignmentKind, &entry.Fallback, &entry.Score, &entry.Notes, &entry.DeclineReason,
			&entry.CompletedAt, &entry.CreatedAt, &entry.UpdatedAt,
		); err != nil {
			return nil, 0, err
		}
		items = append(items, entry)
	}
	if rows.Err() != nil {
		return nil, 0, rows.Err()
	}

	return items, total, nil
}

// Assign transitions an entry to ASSIGNED, conditional on it still being
// PENDING. A lost race surfaces as a state-conflict error, never as a
// silent overwrite.
func (r *Repository) Assign(ctx context.Context, params AssignParams) (Entry, error) {
	entry, err := scanEntry(r.pool.QueryRow(ctx, `
		UPDATE lead_queue_entries
		SET handler_id = $2, status = 'ASSIGNED', assignment_kind = $3, fallback = $4,
			score = $5, updated_at = now()
		WHERE id = $1 AND status = 'PENDING'
		RETURNING `+entryColumns+`
	`, params.EntryID, params.HandlerID, params.Kind, params.Fallback, params.Score))
	if errors.Is(err, pgx.ErrNoRows) {
		return r.conflictOrNotFound(ctx, params.EntryID, string(domain.StatusPending))
	}
	if err != nil {
		return Entry{}, err
	}
	return entry, nil
}

// Decline transitions to DECLINED from any non-terminal routing state.
func (r *Repository) Decline(ctx context.Context, id uuid.UUID, reason string) (Entry, error) {
	entry, err := scanEntry(r.pool.QueryRow(ctx, `
		UPDATE lead_queue_entries
		SET status = 'DECLINED', decline_reason = $2, updated_at = now()
		WHERE id = $1 AND status IN ('PENDING', 'ASSIGNED')
		RETURNING `+entryColumns+`
	`, id, reason))
	if errors.Is(err, pgx.ErrNoRows) {
		return r.conflictOrNotFound(ctx, id, "PENDING or ASSIGNED")
	}
	if err != nil {
		return Entry{}, err
	}
	return entry, nil
}

// UpdateStatus applies a transition conditional on the expected prior
// status. COMPLETED additionally stamps completed_at for reconciliation.
func (r *Repository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to domain.Status) (Entry, error) {
	entry, err := scanEntry(r.pool.QueryRow(ctx, `
		UPDATE lead_queue_entries
		SET status = $3,
			completed_at = CASE WHEN $3 = 'COMPLETED' THEN now() ELSE completed_at END,
			updated_at = now()
		WHERE id = $1 AND status = $2
		RETURNING `+entryColumns+`
	`, id, from, to))
	if errors.Is(err, pgx.ErrNoRows) {
		return r.conflictOrNotFound(ctx, id, string(from))
	}
	if err != nil {
		return Entry{}, err
	}
	return entry, nil
}

// conflictOrNotFound distinguishes a missing entry from one that exists but
// left the expected state.
func (r *Repository) conflictOrNotFound(ctx context.Context, id uuid.UUID, expected string) (Entry, error) {
	var status string
	err := r.pool.QueryRow(ctx, `SELECT status FROM lead_queue_entries WHERE id = $1`, id).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return Entry{}, apperr.NotFound("queue entry not found")
	}
	if err != nil {
		return Entry{}, err
	}
	return Entry{}, apperr.Conflict("queue entry is " + status + ", expected " + expected)
}

var _ EntryStore = (*Repository)(nil)
