// Package domain provides the pure lifecycle rules of addon subscriptions.
// Everything here is side-effect free so the state machine can be tested
// without a database.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Type classifies an addon subscription.
type Type string

const (
	TypeRegion   Type = "region"
	TypeCategory Type = "category"
	TypeCredits  Type = "credits"
)

// IsValidType reports whether the value is a known addon type.
func IsValidType(t Type) bool {
	switch t {
	case TypeRegion, TypeCategory, TypeCredits:
		return true
	}
	return false
}

// Status is the lifecycle state of a subscription.
type Status string

const (
	StatusActive     Status = "ACTIVE"
	StatusLowBalance Status = "LOW_BALANCE"
	StatusGraceMode  Status = "GRACE_MODE"
	StatusExpired    Status = "EXPIRED"
	StatusDepleted   Status = "DEPLETED"
	StatusCancelled  Status = "CANCELLED"
)

// Subscription is one paid entitlement with its validity window.
type Subscription struct {
	ID            uuid.UUID
	OwnerUserID   uuid.UUID
	CompanyID     *uuid.UUID
	Type          Type
	ScopeID       string
	Status        Status
	ValidFrom     time.Time
	ValidUntil    time.Time
	GraceUntil    time.Time
	AutoRenew     bool
	CreditsAmount int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Usage tracks consumption against one subscription. The notified flags
// make threshold notifications fire exactly once per crossing.
type Usage struct {
	SubscriptionID uuid.UUID
	Consumed       int64
	Remaining      int64
	PercentUsed    float64
	Notified20     bool
	Notified50     bool
	Notified80     bool
	UpdatedAt      time.Time
}

// usageReference is the denominator for percent-used on non-credits
// subscriptions, which have no declared amount.
const usageReference = 100

// GracePeriod is the post-expiry window granted on purchase and renewal.
const GracePeriod = 7 * 24 * time.Hour

// NextStatus computes the lifecycle state a subscription should be in at
// the given instant. CANCELLED is terminal. Past grace, EXPIRED wins over
// every usage-derived state; within validity or grace, DEPLETED and
// LOW_BALANCE take precedence over GRACE_MODE.
func NextStatus(sub Subscription, usage Usage, now time.Time) Status {
	if sub.Status == StatusCancelled {
		return StatusCancelled
	}

	var timeCandidate Status
	if now.After(sub.ValidUntil) {
		if now.After(sub.GraceUntil) {
			return StatusExpired
		}
		timeCandidate = StatusGraceMode
	}

	if sub.Type == TypeCredits {
		if usage.Remaining <= 0 {
			return StatusDepleted
		}
		if usage.PercentUsed >= 80 && sub.Status == StatusActive {
			return StatusLowBalance
		}
	}

	if timeCandidate != "" {
		return timeCandidate
	}
	return sub.Status
}

// ApplyUsage recomputes a usage record after consuming amount units.
// Credits subscriptions draw down the declared amount and never go below
// zero remaining; other types keep remaining untouched and measure
// percent-used against a fixed reference of 100.
func ApplyUsage(sub Subscription, usage Usage, amount int64) Usage {
	usage.Consumed += amount

	total := int64(usageReference)
	if sub.Type == TypeCredits {
		total = sub.CreditsAmount
		usage.Remaining = sub.CreditsAmount - usage.Consumed
		if usage.Remaining < 0 {
			usage.Remaining = 0
		}
	}
	if total > 0 {
		usage.PercentUsed = float64(usage.Consumed) / float64(total) * 100
	} else {
		usage.PercentUsed = 100
	}
	return usage
}

// CrossedThresholds returns the notification thresholds newly crossed by
// the usage record, lowest first, and the record with its flags set.
func CrossedThresholds(usage Usage) ([]int, Usage) {
	var crossed []int
	if usage.PercentUsed >= 20 && !usage.Notified20 {
		usage.Notified20 = true
		crossed = append(crossed, 20)
	}
	if usage.PercentUsed >= 50 && !usage.Notified50 {
		usage.Notified50 = true
		crossed = append(crossed, 50)
	}
	if usage.PercentUsed >= 80 && !usage.Notified80 {
		usage.Notified80 = true
		crossed = append(crossed, 80)
	}
	return crossed, usage
}

// RenewalDue reports whether a subscription qualifies for automatic
// renewal at the given instant.
func RenewalDue(sub Subscription, now time.Time) bool {
	return sub.Status == StatusGraceMode && sub.AutoRenew && !now.Before(sub.GraceUntil)
}

// RenewWindow computes the next validity window: one period of the same
// length, starting where the old one ended, with a fresh grace tail.
func RenewWindow(sub Subscription, now time.Time) (validFrom, validUntil, graceUntil time.Time) {
	period := sub.ValidUntil.Sub(sub.ValidFrom)
	validFrom = sub.ValidUntil
	validUntil = validFrom.Add(period)
	// A long-lapsed window would renew into the past; anchor on now instead.
	if !validUntil.After(now) {
		validFrom = now
		validUntil = now.Add(period)
	}
	return validFrom, validUntil, validUntil.Add(GracePeriod)
}

// Reminder windows, fired at fixed offsets from expiry.
const (
	ReminderExpiry7d  = "expiry_7d"
	ReminderExpiry3d  = "expiry_3d"
	ReminderExpiryDay = "expiry_day"
	ReminderGrace     = "grace"
)

// DueReminderWindow returns the reminder window a subscription sits in at
// the given instant, or "" when none applies. Each window fires at most
// once per validity period; deduplication is the caller's concern.
func DueReminderWindow(sub Subscription, now time.Time) string {
	switch sub.Status {
	case StatusCancelled, StatusExpired, StatusDepleted:
		return ""
	}

	if now.After(sub.ValidUntil) {
		if now.After(sub.GraceUntil) {
			return ""
		}
		return ReminderGrace
	}

	until := sub.ValidUntil.Sub(now)
	switch {
	case sameDay(now, sub.ValidUntil):
		return ReminderExpiryDay
	case until <= 3*24*time.Hour:
		return ReminderExpiry3d
	case until <= 7*24*time.Hour:
		return ReminderExpiry7d
	}
	return ""
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}
