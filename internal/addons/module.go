// Package addons provides the addon lifecycle domain module.
package addons

import (
	"leaddesk_backend/internal/addons/handler"
	"leaddesk_backend/internal/addons/repository"
	"leaddesk_backend/internal/addons/service"
	"leaddesk_backend/internal/events"
	apphttp "leaddesk_backend/internal/http"
	"leaddesk_backend/internal/ledger"
	"leaddesk_backend/platform/logger"
	"leaddesk_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module represents the addon lifecycle domain module.
type Module struct {
	handler *handler.Handler
	service *service.Service
}

// NewModule creates a new addons module with all dependencies wired.
func NewModule(pool *pgxpool.Pool, ledgerRepo *ledger.Repository, eventBus events.Bus, val *validator.Validator, log *logger.Logger) *Module {
	repo := repository.New(pool)
	svc := service.New(repo, ledgerRepo, eventBus, log)
	h := handler.New(svc, val)

	return &Module{handler: h, service: svc}
}

// Name returns the module name for logging.
func (m *Module) Name() string {
	return "addons"
}

// Service returns the service layer for external use (scheduler ticks).
func (m *Module) Service() *service.Service {
	return m.service
}

// RegisterRoutes registers the module's routes.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	subs := ctx.Protected.Group("/addons")
	m.handler.RegisterRoutes(subs)
}

// Compile-time check that Module implements http.Module.
var _ apphttp.Module = (*Module)(nil)
