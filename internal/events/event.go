// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"time"

	"leaddesk_backend/platform/events"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
)

// Re-export platform functions
var NewBaseEvent = events.NewBaseEvent

// =============================================================================
// Lead Queue Events
// =============================================================================

// LeadQueued is published when a lead lands in a company's internal queue.
type LeadQueued struct {
	BaseEvent
	QueueEntryID uuid.UUID `json:"queueEntryId"`
	LeadID       uuid.UUID `json:"leadId"`
	CompanyID    uuid.UUID `json:"companyId"`
	Position     int       `json:"position"`
}

func (e LeadQueued) EventName() string { return "queue.lead.queued" }

// LeadAssigned is published when a queue entry is assigned to a handler,
// either by scoring or manually by the director. Fallback marks a
// no-match director assignment.
type LeadAssigned struct {
	BaseEvent
	QueueEntryID  uuid.UUID `json:"queueEntryId"`
	LeadID        uuid.UUID `json:"leadId"`
	CompanyID     uuid.UUID `json:"companyId"`
	HandlerID     uuid.UUID `json:"handlerId"`
	HandlerUserID uuid.UUID `json:"handlerUserId"`
	Kind          string    `json:"kind"`
	Fallback      bool      `json:"fallback"`
	Score         *float64  `json:"score,omitempty"`
}

func (e LeadAssigned) EventName() string { return "queue.lead.assigned" }

// LeadDeclined is published when a queue entry is declined.
type LeadDeclined struct {
	BaseEvent
	QueueEntryID uuid.UUID `json:"queueEntryId"`
	LeadID       uuid.UUID `json:"leadId"`
	CompanyID    uuid.UUID `json:"companyId"`
	Reason       string    `json:"reason"`
}

func (e LeadDeclined) EventName() string { return "queue.lead.declined" }

// =============================================================================
// Addon Lifecycle Events
// =============================================================================

// AddonStateChanged is published after a lifecycle transition was persisted.
type AddonStateChanged struct {
	BaseEvent
	SubscriptionID uuid.UUID `json:"subscriptionId"`
	OwnerUserID    uuid.UUID `json:"ownerUserId"`
	AddonType      string    `json:"addonType"`
	FromStatus     string    `json:"fromStatus"`
	ToStatus       string    `json:"toStatus"`
}

func (e AddonStateChanged) EventName() string { return "addons.subscription.state_changed" }

// UsageThresholdReached is published the first time consumption crosses one
// of the 20/50/80 percent thresholds.
type UsageThresholdReached struct {
	BaseEvent
	SubscriptionID uuid.UUID `json:"subscriptionId"`
	OwnerUserID    uuid.UUID `json:"ownerUserId"`
	Threshold      int       `json:"threshold"`
	PercentUsed    float64   `json:"percentUsed"`
}

func (e UsageThresholdReached) EventName() string { return "addons.usage.threshold_reached" }

// AddonRenewed is published after a successful automatic renewal.
type AddonRenewed struct {
	BaseEvent
	SubscriptionID uuid.UUID `json:"subscriptionId"`
	OwnerUserID    uuid.UUID `json:"ownerUserId"`
	ValidUntil     time.Time `json:"validUntil"`
}

func (e AddonRenewed) EventName() string { return "addons.subscription.renewed" }

// AddonRenewalFailed is published when automatic renewal fails and the
// subscription was forced to EXPIRED.
type AddonRenewalFailed struct {
	BaseEvent
	SubscriptionID uuid.UUID `json:"subscriptionId"`
	OwnerUserID    uuid.UUID `json:"ownerUserId"`
	Reason         string    `json:"reason"`
}

func (e AddonRenewalFailed) EventName() string { return "addons.subscription.renewal_failed" }

// UpsellReminderDue is published when a reminder window fires for a
// subscription approaching or past expiry.
type UpsellReminderDue struct {
	BaseEvent
	SubscriptionID uuid.UUID `json:"subscriptionId"`
	OwnerUserID    uuid.UUID `json:"ownerUserId"`
	Window         string    `json:"window"`
	ValidUntil     time.Time `json:"validUntil"`
}

func (e UpsellReminderDue) EventName() string { return "addons.subscription.upsell_reminder" }

// =============================================================================
// Billing Events
// =============================================================================

// AdjustmentSettled is published after a billing period was reconciled.
type AdjustmentSettled struct {
	BaseEvent
	AdjustmentID uuid.UUID       `json:"adjustmentId"`
	PlanID       uuid.UUID       `json:"planId"`
	OwnerUserID  uuid.UUID       `json:"ownerUserId"`
	Kind         string          `json:"kind"`
	CreditAmount decimal.Decimal `json:"creditAmount"`
}

func (e AdjustmentSettled) EventName() string { return "billing.adjustment.settled" }

// RefundApplied is published after a quiet-market refund was committed.
type RefundApplied struct {
	BaseEvent
	AdjustmentID uuid.UUID       `json:"adjustmentId"`
	PlanID       uuid.UUID       `json:"planId"`
	OwnerUserID  uuid.UUID       `json:"ownerUserId"`
	Amount       decimal.Decimal `json:"amount"`
}

func (e RefundApplied) EventName() string { return "billing.refund.applied" }
