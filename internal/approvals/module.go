// Package approvals provides the operator approval surface: the work queue
// of held quotes and the decide endpoint that feeds decisions back into the
// worker.
package approvals

import (
	apphttp "orcazap_backend/internal/http"
	"orcazap_backend/internal/quoting"
	"orcazap_backend/platform/logger"
	"orcazap_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module represents the approvals domain module
type Module struct {
	handler *Handler
}

// NewModule creates a new approvals module with all dependencies wired
func NewModule(pool *pgxpool.Pool, queue DecisionEnqueuer, val *validator.Validator, log *logger.Logger) *Module {
	repo := quoting.NewRepository(pool)
	return &Module{
		handler: NewHandler(repo, pool, queue, val, log),
	}
}

// Name returns the module name for logging
func (m *Module) Name() string {
	return "approvals"
}

// RegisterRoutes registers the module's routes
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.Protected.Group("/approvals"))
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
