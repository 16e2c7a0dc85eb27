// Package transport defines the HTTP request and response shapes of the
// addon lifecycle.
package transport

import (
	"time"

	"leaddesk_backend/internal/addons/domain"
	"leaddesk_backend/internal/addons/repository"

	"github.com/google/uuid"
)

// ── Requests ──────────────────────────────────────────────────────────────────

// PurchaseRequest creates a new subscription.
type PurchaseRequest struct {
	CompanyID     *uuid.UUID `json:"companyId,omitempty"`
	Type          string     `json:"type" validate:"required,oneof=region category credits"`
	ScopeID       string     `json:"scopeId" validate:"required,min=1,max=200"`
	PeriodDays    int        `json:"periodDays" validate:"omitempty,min=1,max=365"`
	AutoRenew     bool       `json:"autoRenew"`
	CreditsAmount int64      `json:"creditsAmount" validate:"min=0"`
}

// ReportUsageRequest consumes units against a subscription.
type ReportUsageRequest struct {
	Amount int64 `json:"amount" validate:"required,min=1"`
}

// ── Responses ─────────────────────────────────────────────────────────────────

// SubscriptionResponse is one subscription on the wire.
type SubscriptionResponse struct {
	ID            uuid.UUID  `json:"id"`
	OwnerUserID   uuid.UUID  `json:"ownerUserId"`
	CompanyID     *uuid.UUID `json:"companyId,omitempty"`
	Type          string     `json:"type"`
	ScopeID       string     `json:"scopeId"`
	Status        string     `json:"status"`
	ValidFrom     time.Time  `json:"validFrom"`
	ValidUntil    time.Time  `json:"validUntil"`
	GraceUntil    time.Time  `json:"graceUntil"`
	AutoRenew     bool       `json:"autoRenew"`
	CreditsAmount int64      `json:"creditsAmount"`
	CreatedAt     time.Time  `json:"createdAt"`
}

// UsageResponse is a subscription's consumption record.
type UsageResponse struct {
	SubscriptionID uuid.UUID `json:"subscriptionId"`
	Consumed       int64     `json:"consumed"`
	Remaining      int64     `json:"remaining"`
	PercentUsed    float64   `json:"percentUsed"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// EventResponse is one lifecycle log line.
type EventResponse struct {
	ID         uuid.UUID `json:"id"`
	EventType  string    `json:"eventType"`
	FromStatus string    `json:"fromStatus"`
	ToStatus   string    `json:"toStatus"`
	CreatedAt  time.Time `json:"createdAt"`
}

// ToSubscriptionResponse maps a domain subscription to its wire shape.
func ToSubscriptionResponse(sub domain.Subscription) SubscriptionResponse {
	return SubscriptionResponse{
		ID:            sub.ID,
		OwnerUserID:   sub.OwnerUserID,
		CompanyID:     sub.CompanyID,
		Type:          string(sub.Type),
		ScopeID:       sub.ScopeID,
		Status:        string(sub.Status),
		ValidFrom:     sub.ValidFrom,
		ValidUntil:    sub.ValidUntil,
		GraceUntil:    sub.GraceUntil,
		AutoRenew:     sub.AutoRenew,
		CreditsAmount: sub.CreditsAmount,
		CreatedAt:     sub.CreatedAt,
	}
}

// ToUsageResponse maps a usage record to its wire shape.
func ToUsageResponse(usage domain.Usage) UsageResponse {
	return UsageResponse{
		SubscriptionID: usage.SubscriptionID,
		Consumed:       usage.Consumed,
		Remaining:      usage.Remaining,
		PercentUsed:    usage.PercentUsed,
		UpdatedAt:      usage.UpdatedAt,
	}
}

// ToEventResponses maps the lifecycle log to its wire shape.
func ToEventResponses(items []repository.LifecycleEvent) []EventResponse {
	out := make([]EventResponse, 0, len(items))
	for _, e := range items {
		out = append(out, EventResponse{
			ID:         e.ID,
			EventType:  e.EventType,
			FromStatus: string(e.FromStatus),
			ToStatus:   string(e.ToStatus),
			CreatedAt:  e.CreatedAt,
		})
	}
	return out
}
