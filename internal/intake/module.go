package intake

import (
	apphttp "orcazap_backend/internal/http"
	"orcazap_backend/platform/config"
	"orcazap_backend/platform/httpkit"
	"orcazap_backend/platform/logger"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/time/rate"
)

// ModuleConfig combines the config interfaces the intake module needs.
type ModuleConfig interface {
	config.WhatsAppConfig
	config.RateLimitConfig
}

// Module represents the intake domain module
type Module struct {
	handler   *Handler
	service   *Service
	repo      *Repository
	limiter   *httpkit.IPRateLimiter
	appSecret string
}

// NewModule creates a new intake module with all dependencies wired
func NewModule(pool *pgxpool.Pool, queue Enqueuer, cfg ModuleConfig, log *logger.Logger) *Module {
	repo := NewRepository(pool)
	svc := NewService(repo, queue, log)

	return &Module{
		handler:   NewHandler(svc, cfg, log),
		service:   svc,
		repo:      repo,
		limiter:   httpkit.NewIPRateLimiter(rate.Limit(cfg.GetWebhookRatePerSecond()), cfg.GetWebhookRateBurst(), log),
		appSecret: cfg.GetWhatsAppAppSecret(),
	}
}

// Name returns the module name for logging
func (m *Module) Name() string {
	return "intake"
}

// RegisterRoutes registers the webhook routes on the public router with the
// webhook rate limit applied.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	grp := ctx.Public.Group("")
	grp.Use(m.limiter.RateLimit())
	m.handler.RegisterRoutes(grp, m.appSecret)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
