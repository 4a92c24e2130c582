package api

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/learnhub/learnhub/internal/app"
	"github.com/learnhub/learnhub/internal/app/maintenance"
	iauth "github.com/learnhub/learnhub/internal/auth"
	"github.com/learnhub/learnhub/internal/cache"
	"github.com/learnhub/learnhub/internal/handlers"
	"github.com/learnhub/learnhub/internal/middleware"
	"github.com/learnhub/learnhub/internal/realtime"
	"github.com/learnhub/learnhub/internal/services"
)

// Dependencies bundles the services the HTTP layer is built on.
type Dependencies struct {
	DB        *gorm.DB
	Config    *app.Config
	JWT       *iauth.JWTService
	Sessions  *iauth.SessionManager
	Login     *iauth.LoginService
	Audit     *services.AuditService
	Jobs      *maintenance.Jobs
	Hub       *realtime.Hub
	Cache     cache.Store
	RateStore middleware.RateStore
}

func (d Dependencies) validate() error {
	switch {
	case d.DB == nil:
		return errors.New("router: database handle must be provided")
	case d.Config == nil:
		return errors.New("router: config must be provided")
	case d.JWT == nil:
		return errors.New("router: jwt service must be provided")
	case d.Sessions == nil:
		return errors.New("router: session manager must be provided")
	case d.Login == nil:
		return errors.New("router: login service must be provided")
	case d.Audit == nil:
		return errors.New("router: audit service must be provided")
	case d.Jobs == nil:
		return errors.New("router: maintenance jobs must be provided")
	case d.Hub == nil:
		return errors.New("router: realtime hub must be provided")
	}
	return nil
}

// NewRouter builds the Gin engine, wires middleware and registers every route.
func NewRouter(deps Dependencies) (*gin.Engine, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	cfg := deps.Config

	r := gin.New()

	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS())

	registerHealthRoutes(r, cfg, deps)

	api := r.Group("/api")
	requireAuth := middleware.Auth(deps.JWT, deps.Sessions)

	authHandler, err := handlers.NewAuthHandler(deps.Login)
	if err != nil {
		return nil, err
	}
	streamHandler, err := handlers.NewStreamHandler(deps.Hub)
	if err != nil {
		return nil, err
	}
	requests, window := cfg.Auth.LoginRateLimit()
	registerAuthRoutes(api, authRouteDeps{
		AuthHandler:   authHandler,
		StreamHandler: streamHandler,
		RequireAuth:   requireAuth,
		LoginLimit:    middleware.RateLimit(deps.RateStore, requests, window),
	})

	maintenanceHandler, err := handlers.NewMaintenanceHandler(deps.Jobs)
	if err != nil {
		return nil, err
	}
	registerMaintenanceRoutes(api, maintenanceHandler, middleware.MaintenanceAuth(middleware.MaintenanceAuthConfig{
		Secret:             cfg.Maintenance.Trigger.Secret,
		SchedulerUserAgent: cfg.Maintenance.Trigger.SchedulerUserAgent,
		Development:        cfg.Server.IsDevelopment(),
	}))

	adminHandler, err := handlers.NewAdminSessionHandler(deps.Sessions)
	if err != nil {
		return nil, err
	}
	auditHandler, err := handlers.NewAuditHandler(deps.Audit)
	if err != nil {
		return nil, err
	}
	registerAdminRoutes(api, adminRouteDeps{
		Sessions:    adminHandler,
		Audit:       auditHandler,
		RequireAuth: requireAuth,
	})

	if cfg.Monitoring.Prometheus.Enabled {
		endpoint := strings.TrimSpace(cfg.Monitoring.Prometheus.Endpoint)
		if endpoint == "" {
			endpoint = "/metrics"
		}
		r.GET(endpoint, gin.WrapH(promhttp.Handler()))
	}

	r.NoRoute(middleware.NotFoundHandler)

	return r, nil
}
