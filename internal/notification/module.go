// Package notification turns domain events into in-app notifications.
// The module subscribes to events and inverts the dependency: queue,
// addons and billing never talk to the notification store directly.
package notification

import (
	"context"
	"fmt"

	"leaddesk_backend/internal/events"
	apphttp "leaddesk_backend/internal/http"
	notifhandler "leaddesk_backend/internal/notification/handler"
	"leaddesk_backend/internal/notification/inapp"
	"leaddesk_backend/platform/logger"

	"github.com/jackc/pgx/v5/pgxpool"
)

// inAppSender is the slice of inapp.Service the event handlers need.
type inAppSender interface {
	Send(ctx context.Context, p inapp.SendParams) error
}

type Module struct {
	inAppService *inapp.Service
	inApp        inAppSender
	log          *logger.Logger
}

func NewModule(pool *pgxpool.Pool, log *logger.Logger) *Module {
	repo := inapp.NewRepository(pool)
	svc := inapp.NewService(repo, log)
	return &Module{
		inAppService: svc,
		inApp:        svc,
		log:          log,
	}
}

func (m *Module) Name() string { return "notification" }

func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	h := notifhandler.NewHTTPHandler(m.inAppService)
	h.RegisterRoutes(ctx.Protected.Group("/notifications"))
}

// InAppService exposes the in-app notification service for modules that
// must write a notification inside their own transaction.
func (m *Module) InAppService() *inapp.Service { return m.inAppService }

// RegisterHandlers subscribes the module to every event it reacts to.
// Refund notifications are deliberately absent: billing writes them in
// the same transaction as the ledger credit.
func (m *Module) RegisterHandlers(bus *events.InMemoryBus) {
	bus.Subscribe(events.LeadAssigned{}.EventName(), m)
	bus.Subscribe(events.LeadDeclined{}.EventName(), m)

	bus.Subscribe(events.AddonStateChanged{}.EventName(), m)
	bus.Subscribe(events.UsageThresholdReached{}.EventName(), m)
	bus.Subscribe(events.AddonRenewed{}.EventName(), m)
	bus.Subscribe(events.AddonRenewalFailed{}.EventName(), m)
	bus.Subscribe(events.UpsellReminderDue{}.EventName(), m)
}

// Handle dispatches events to their specific handlers.
func (m *Module) Handle(ctx context.Context, event events.Event) error {
	switch e := event.(type) {
	case events.LeadAssigned:
		return m.handleLeadAssigned(ctx, e)
	case events.LeadDeclined:
		return m.handleLeadDeclined(ctx, e)
	case events.AddonStateChanged:
		return m.handleAddonStateChanged(ctx, e)
	case events.UsageThresholdReached:
		return m.handleUsageThresholdReached(ctx, e)
	case events.AddonRenewed:
		return m.handleAddonRenewed(ctx, e)
	case events.AddonRenewalFailed:
		return m.handleAddonRenewalFailed(ctx, e)
	case events.UpsellReminderDue:
		return m.handleUpsellReminderDue(ctx, e)
	default:
		m.log.Warn("unhandled event type", "event", event.EventName())
		return nil
	}
}

func (m *Module) handleLeadAssigned(ctx context.Context, e events.LeadAssigned) error {
	title := "New lead assigned to you"
	content := "A lead from your company queue was assigned to you."
	if e.Fallback {
		title = "Lead needs a handler"
		content = "No matching handler was available, so this lead was routed to you as director."
	}

	return m.inApp.Send(ctx, inapp.SendParams{
		UserID:       e.HandlerUserID,
		Title:        title,
		Content:      content,
		ResourceID:   &e.QueueEntryID,
		ResourceType: "queue_entry",
		Category:     "info",
		DeepLink:     fmt.Sprintf("/queue/%s", e.QueueEntryID),
	})
}

func (m *Module) handleLeadDeclined(ctx context.Context, e events.LeadDeclined) error {
	// Declines go back to whoever watches the queue, not to a single user.
	// There is no per-company broadcast channel yet, so just log it.
	m.log.Info("lead declined",
		"queueEntryId", e.QueueEntryID,
		"companyId", e.CompanyID,
		"reason", e.Reason)
	return nil
}

func (m *Module) handleAddonStateChanged(ctx context.Context, e events.AddonStateChanged) error {
	var title, content, category string
	switch e.ToStatus {
	case "GRACE_MODE":
		title = "Addon entered grace period"
		content = fmt.Sprintf("Your %s addon has expired and is now in its grace period. Renew to keep it active.", e.AddonType)
		category = "warning"
	case "EXPIRED":
		title = "Addon expired"
		content = fmt.Sprintf("Your %s addon has expired.", e.AddonType)
		category = "error"
	case "DEPLETED":
		title = "Addon credits depleted"
		content = "Your credits addon has no remaining balance. Top up to continue."
		category = "error"
	default:
		// ACTIVE and LOW_BALANCE transitions are covered by renewal and
		// threshold notifications.
		return nil
	}

	return m.inApp.Send(ctx, inapp.SendParams{
		UserID:       e.OwnerUserID,
		Title:        title,
		Content:      content,
		ResourceID:   &e.SubscriptionID,
		ResourceType: "addon_subscription",
		Category:     category,
		DeepLink:     fmt.Sprintf("/addons/%s", e.SubscriptionID),
	})
}

func (m *Module) handleUsageThresholdReached(ctx context.Context, e events.UsageThresholdReached) error {
	category := "info"
	if e.Threshold >= 80 {
		category = "warning"
	}

	return m.inApp.Send(ctx, inapp.SendParams{
		UserID:       e.OwnerUserID,
		Title:        fmt.Sprintf("Addon usage passed %d%%", e.Threshold),
		Content:      fmt.Sprintf("You have used %.0f%% of your addon credits.", e.PercentUsed),
		ResourceID:   &e.SubscriptionID,
		ResourceType: "addon_subscription",
		Category:     category,
		DeepLink:     fmt.Sprintf("/addons/%s", e.SubscriptionID),
	})
}

func (m *Module) handleAddonRenewed(ctx context.Context, e events.AddonRenewed) error {
	return m.inApp.Send(ctx, inapp.SendParams{
		UserID:       e.OwnerUserID,
		Title:        "Addon renewed",
		Content:      fmt.Sprintf("Your addon was renewed automatically and is valid until %s.", e.ValidUntil.Format("2 January 2006")),
		ResourceID:   &e.SubscriptionID,
		ResourceType: "addon_subscription",
		Category:     "success",
		DeepLink:     fmt.Sprintf("/addons/%s", e.SubscriptionID),
	})
}

func (m *Module) handleAddonRenewalFailed(ctx context.Context, e events.AddonRenewalFailed) error {
	return m.inApp.Send(ctx, inapp.SendParams{
		UserID:       e.OwnerUserID,
		Title:        "Addon renewal failed",
		Content:      "Automatic renewal of your addon failed and the subscription has expired. Purchase a new addon to continue.",
		ResourceID:   &e.SubscriptionID,
		ResourceType: "addon_subscription",
		Category:     "error",
		DeepLink:     fmt.Sprintf("/addons/%s", e.SubscriptionID),
	})
}

func (m *Module) handleUpsellReminderDue(ctx context.Context, e events.UpsellReminderDue) error {
	var content string
	switch e.Window {
	case "grace":
		content = "Your addon is in its grace period. Renew now before it expires for good."
	case "expiry_day":
		content = "Your addon expires today."
	case "expiry_3d":
		content = fmt.Sprintf("Your addon expires on %s, in less than 3 days.", e.ValidUntil.Format("2 January 2006"))
	default:
		content = fmt.Sprintf("Your addon expires on %s.", e.ValidUntil.Format("2 January 2006"))
	}

	return m.inApp.Send(ctx, inapp.SendParams{
		UserID:       e.OwnerUserID,
		Title:        "Addon expiring soon",
		Content:      content,
		ResourceID:   &e.SubscriptionID,
		ResourceType: "addon_subscription",
		Category:     "warning",
		DeepLink:     fmt.Sprintf("/addons/%s", e.SubscriptionID),
	})
}

var _ apphttp.Module = (*Module)(nil)
var _ events.Handler = (*Module)(nil)
