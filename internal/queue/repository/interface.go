package repository

import (
	"context"
	"time"

	"leaddesk_backend/internal/queue/domain"

	"github.com/google/uuid"
)

// Entry is one lead's routing record within one company.
type Entry struct {
	ID             uuid.UUID
	LeadID         uuid.UUID
	CompanyID      uuid.UUID
	HandlerID      *uuid.UUID
	Status         domain.Status
	Position       int
	AssignmentKind *string
	Fallback       bool
	Score          *float64
	Notes          string
	DeclineReason  *string
	CompletedAt    *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// AssignParams captures one assignment write. The repository only applies
// it when the entry is still PENDING.
type AssignParams struct {
	EntryID   uuid.UUID
	HandlerID uuid.UUID
	Kind      string
	Fallback  bool
	Score     *float64
}

// ListParams filters company queue listings.
type ListParams struct {
	CompanyID uuid.UUID
	Status    *domain.Status
	Limit     int
	Offset    int
}

// EntryStore defines the queue persistence operations. Conditional writes
// return a state-conflict error when the entry left the expected state, so
// two concurrent writers cannot race past the same check.
type EntryStore interface {
	// Insert creates a queue entry, or returns the existing live entry for
	// the same (lead, company) pair. The boolean reports whether a new row
	// was created.
	Insert(ctx context.Context, leadID, companyID uuid.UUID, notes string) (Entry, bool, error)
	GetByID(ctx context.Context, id uuid.UUID) (Entry, error)
	List(ctx context.Context, params ListParams) ([]Entry, int, error)
	// Assign transitions PENDING -> ASSIGNED.
	Assign(ctx context.Context, params AssignParams) (Entry, error)
	// Decline transitions PENDING or ASSIGNED -> DECLINED.
	Decline(ctx context.Context, id uuid.UUID, reason string) (Entry, error)
	// UpdateStatus applies an externally driven transition, conditional on
	// the expected prior status.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to domain.Status) (Entry, error)
}
