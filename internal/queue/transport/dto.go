// Package transport defines the HTTP request and response shapes of the
// lead queue.
package transport

import (
	"time"

	"leaddesk_backend/internal/queue/repository"

	"github.com/google/uuid"
)

// ── Requests ──────────────────────────────────────────────────────────────────

// EnqueueRequest places a lead in a company's queue.
type EnqueueRequest struct {
	LeadID    uuid.UUID `json:"leadId" validate:"required"`
	CompanyID uuid.UUID `json:"companyId" validate:"required"`
}

// AssignRequest is a director's manual handler pick for a queue entry.
type AssignRequest struct {
	HandlerID uuid.UUID `json:"handlerId" validate:"required"`
}

// DeclineRequest declines a queue entry with a mandatory reason.
type DeclineRequest struct {
	Reason string `json:"reason" validate:"required,min=1,max=1000"`
}

// UpdateStatusRequest progresses a queue entry.
type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=IN_PROGRESS COMPLETED"`
}

// ── Responses ─────────────────────────────────────────────────────────────────

// EntryResponse is one queue entry on the wire.
type EntryResponse struct {
	ID             uuid.UUID  `json:"id"`
	LeadID         uuid.UUID  `json:"leadId"`
	CompanyID      uuid.UUID  `json:"companyId"`
	HandlerID      *uuid.UUID `json:"handlerId,omitempty"`
	Status         string     `json:"status"`
	Position       int        `json:"position"`
	AssignmentKind *string    `json:"assignmentKind,omitempty"`
	Fallback       bool       `json:"fallback"`
	Score          *float64   `json:"score,omitempty"`
	DeclineReason  *string    `json:"declineReason,omitempty"`
	CompletedAt    *time.Time `json:"completedAt,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

// ListResponse is a page of queue entries.
type ListResponse struct {
	Items []EntryResponse `json:"items"`
	Total int             `json:"total"`
}

// ToEntryResponse maps a repository entry to its wire shape.
func ToEntryResponse(e repository.Entry) EntryResponse {
	return EntryResponse{
		ID:             e.ID,
		LeadID:         e.LeadID,
		CompanyID:      e.CompanyID,
		HandlerID:      e.HandlerID,
		Status:         string(e.Status),
		Position:       e.Position,
		AssignmentKind: e.AssignmentKind,
		Fallback:       e.Fallback,
		Score:          e.Score,
		DeclineReason:  e.DeclineReason,
		CompletedAt:    e.CompletedAt,
		CreatedAt:      e.CreatedAt,
		UpdatedAt:      e.UpdatedAt,
	}
}

// ToListResponse maps a repository page to its wire shape.
func ToListResponse(items []repository.Entry, total int) ListResponse {
	out := make([]EntryResponse, 0, len(items))
	for _, e := range items {
		out = append(out, ToEntryResponse(e))
	}
	return ListResponse{Items: out, Total: total}
}
