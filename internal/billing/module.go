// Package billing provides the reconciliation domain module.
package billing

import (
	"leaddesk_backend/internal/billing/handler"
	"leaddesk_backend/internal/billing/repository"
	"leaddesk_backend/internal/billing/service"
	"leaddesk_backend/internal/events"
	apphttp "leaddesk_backend/internal/http"
	"leaddesk_backend/internal/ledger"
	"leaddesk_backend/internal/notification/inapp"
	"leaddesk_backend/platform/logger"
	"leaddesk_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module represents the billing reconciliation domain module.
type Module struct {
	handler *handler.Handler
	service *service.Service
}

// NewModule creates a new billing module with all dependencies wired.
func NewModule(pool *pgxpool.Pool, ledgerRepo *ledger.Repository, notifications *inapp.Repository, eventBus events.Bus, val *validator.Validator, log *logger.Logger) *Module {
	repo := repository.New(pool, ledgerRepo, notifications)
	svc := service.New(repo, eventBus, log)
	h := handler.New(svc, val)

	return &Module{handler: h, service: svc}
}

// Name returns the module name for logging.
func (m *Module) Name() string {
	return "billing"
}

// Service returns the service layer for external use (scheduler ticks).
func (m *Module) Service() *service.Service {
	return m.service
}

// RegisterRoutes registers the module's routes.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	billing := ctx.Protected.Group("/billing")
	m.handler.RegisterRoutes(billing)
}

// Compile-time check that Module implements http.Module.
var _ apphttp.Module = (*Module)(nil)
