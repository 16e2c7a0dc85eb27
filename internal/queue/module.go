// Package queue provides the lead queue allocator domain module.
package queue

import (
	"leaddesk_backend/internal/directory"
	"leaddesk_backend/internal/events"
	apphttp "leaddesk_backend/internal/http"
	"leaddesk_backend/internal/queue/handler"
	"leaddesk_backend/internal/queue/repository"
	"leaddesk_backend/internal/queue/service"
	"leaddesk_backend/platform/logger"
	"leaddesk_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module represents the lead queue domain module.
type Module struct {
	handler *handler.Handler
	service *service.Service
}

// NewModule creates a new queue module with all dependencies wired.
func NewModule(pool *pgxpool.Pool, dir *directory.Repository, eventBus events.Bus, val *validator.Validator, log *logger.Logger) *Module {
	repo := repository.New(pool)
	svc := service.New(repo, dir, eventBus, log)
	h := handler.New(svc, val)

	return &Module{handler: h, service: svc}
}

// Name returns the module name for logging.
func (m *Module) Name() string {
	return "queue"
}

// Service returns the service layer for external use.
func (m *Module) Service() *service.Service {
	return m.service
}

// RegisterRoutes registers the module's routes.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	entries := ctx.Protected.Group("/queue")
	m.handler.RegisterRoutes(entries)
}

// Compile-time check that Module implements http.Module.
var _ apphttp.Module = (*Module)(nil)
