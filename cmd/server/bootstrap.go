package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/learnhub/learnhub/internal/api"
	"github.com/learnhub/learnhub/internal/app"
	"github.com/learnhub/learnhub/internal/app/maintenance"
	iauth "github.com/learnhub/learnhub/internal/auth"
	"github.com/learnhub/learnhub/internal/auth/providers"
	"github.com/learnhub/learnhub/internal/cache"
	"github.com/learnhub/learnhub/internal/database"
	"github.com/learnhub/learnhub/internal/events"
	"github.com/learnhub/learnhub/internal/middleware"
	"github.com/learnhub/learnhub/internal/realtime"
	"github.com/learnhub/learnhub/internal/services"
	"github.com/learnhub/learnhub/pkg/logger"
)

// runtimeStack bundles long-lived services used by the HTTP server.
type runtimeStack struct {
	DB        *gorm.DB
	Redis     *cache.RedisStore
	Kafka     *events.KafkaPublisher
	Hub       *realtime.Hub
	Sessions  *iauth.SessionManager
	Login     *iauth.LoginService
	Jobs      *maintenance.Jobs
	Scheduler *maintenance.Scheduler
	Router    *gin.Engine
}

// bootstrapRuntime initialises databases, caches, services, and the HTTP router.
func bootstrapRuntime(ctx context.Context, cfg *app.Config, log *zap.Logger) (*runtimeStack, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if strings.TrimSpace(cfg.Auth.JWT.Secret) == "" {
		return nil, errors.New("auth.jwt.secret must be configured")
	}

	if cfg.UnguardedMaintenanceTrigger() {
		log.Warn("maintenance.trigger.secret is not set; maintenance endpoints trust the scheduler User-Agent",
			zap.String("environment", cfg.Server.Environment),
			zap.String("user_agent_prefix", cfg.Maintenance.Trigger.SchedulerUserAgent),
		)
	}

	stack := &runtimeStack{}
	var err error
	success := false

	defer func() {
		if !success {
			if shutdownErr := stack.Shutdown(context.Background(), log); shutdownErr != nil {
				log.Warn("release partially initialised runtime", zap.Error(shutdownErr))
			}
		}
	}()

	// enable gin debug mode
	if debug, _ := os.LookupEnv("GIN_DEBUG"); debug != "true" {
		gin.SetMode(gin.ReleaseMode)
	}

	stack.DB, err = initialiseDatabase(cfg)
	if err != nil {
		return nil, err
	}

	dbStore := cache.NewDatabaseStore(stack.DB)
	var store cache.Store = dbStore
	if cfg.Cache.Redis.Enabled {
		if stack.Redis, err = cache.NewRedisStore(ctx, cfg.Cache.RedisClientConfig()); err != nil {
			log.Warn("redis unavailable; falling back to database-backed cache", zap.Error(err))
		} else {
			store = stack.Redis
			log.Info("redis connected", zap.String("addr", cfg.Cache.Redis.Address))
		}
	}

	auditSvc, err := services.NewAuditService(stack.DB)
	if err != nil {
		return nil, fmt.Errorf("initialise audit service: %w", err)
	}

	stack.Hub = realtime.NewHub()
	publishers := []events.Publisher{
		events.NewAuditPublisher(auditSvc),
		events.NewNotifierPublisher(stack.Hub),
	}
	if cfg.Events.Kafka.Enabled {
		if stack.Kafka, err = events.NewKafkaPublisher(cfg.Events.KafkaPublisherConfig()); err != nil {
			return nil, fmt.Errorf("initialise kafka publisher: %w", err)
		}
		publishers = append(publishers, stack.Kafka)
		log.Info("kafka event stream enabled", zap.String("topic", cfg.Events.Kafka.Topic))
	}
	publisher := events.FanOut(publishers...)

	jwtSvc, err := iauth.NewJWTService(cfg.Auth.JWTServiceConfig())
	if err != nil {
		return nil, fmt.Errorf("initialise jwt service: %w", err)
	}

	sessionCfg := cfg.Auth.SessionManagerConfig()
	sessionCfg.Cache = iauth.NewSessionCache(store)
	sessionCfg.Events = publisher
	stack.Sessions, err = iauth.NewSessionManager(stack.DB, sessionCfg)
	if err != nil {
		return nil, fmt.Errorf("initialise session manager: %w", err)
	}

	local, err := providers.NewLocalProvider(stack.DB, cfg.Auth.LocalProviderConfig())
	if err != nil {
		return nil, fmt.Errorf("initialise local provider: %w", err)
	}

	stack.Login, err = iauth.NewLoginService(local, stack.Sessions, jwtSvc, publisher)
	if err != nil {
		return nil, fmt.Errorf("initialise login service: %w", err)
	}

	stack.Jobs, err = maintenance.NewJobs(stack.Sessions, auditSvc,
		maintenance.WithAuditRetentionDays(cfg.Maintenance.AuditRetentionDays),
		maintenance.WithCachePurger(dbStore),
	)
	if err != nil {
		return nil, fmt.Errorf("initialise maintenance jobs: %w", err)
	}

	if cfg.Maintenance.Scheduler.Enabled {
		stack.Scheduler, err = maintenance.NewScheduler(stack.Jobs, maintenance.SchedulerConfig{
			HourlySpec: cfg.Maintenance.HourlySpec,
			DailySpec:  cfg.Maintenance.DailyReset.Spec,
			Timezone:   cfg.Maintenance.DailyReset.Timezone,
		})
		if err != nil {
			return nil, fmt.Errorf("initialise maintenance scheduler: %w", err)
		}
		if err := stack.Scheduler.Start(); err != nil {
			return nil, fmt.Errorf("start maintenance scheduler: %w", err)
		}
	}

	stack.Router, err = api.NewRouter(api.Dependencies{
		DB:        stack.DB,
		Config:    cfg,
		JWT:       jwtSvc,
		Sessions:  stack.Sessions,
		Login:     stack.Login,
		Audit:     auditSvc,
		Jobs:      stack.Jobs,
		Hub:       stack.Hub,
		Cache:     store,
		RateStore: middleware.NewCacheRateStore(store),
	})
	if err != nil {
		return nil, fmt.Errorf("build api router: %w", err)
	}

	success = true
	return stack, nil
}

// Shutdown stops background jobs, disconnects devices and releases resources.
func (s *runtimeStack) Shutdown(ctx context.Context, log *zap.Logger) error {
	if s == nil {
		return nil
	}

	if s.Scheduler != nil {
		select {
		case <-s.Scheduler.Stop().Done():
		case <-ctx.Done():
			log.Warn("maintenance jobs still running at shutdown")
		}
		s.Scheduler = nil
	}

	if s.Hub != nil {
		s.Hub.TerminateAll("shutdown")
	}

	var err error
	if s.Kafka != nil {
		err = multierr.Append(err, s.Kafka.Close())
		s.Kafka = nil
	}
	if s.Redis != nil {
		err = multierr.Append(err, s.Redis.Close())
		s.Redis = nil
	}
	if s.DB != nil {
		err = multierr.Append(err, closeDatabase(s.DB))
		s.DB = nil
	}
	return err
}

func initialiseDatabase(cfg *app.Config) (*gorm.DB, error) {
	dbCfg := cfg.Database.ConnectionConfig()
	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := database.AutoMigrateAndSeed(db, cfg.Auth.SeedOptions()); err != nil {
		_ = closeDatabase(db)
		return nil, fmt.Errorf("auto-migrate database: %w", err)
	}

	log := logger.WithModule("database")
	log.Info("database connected", zap.String("driver", dbCfg.Driver))

	return db, nil
}

func closeDatabase(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("obtain sql db: %w", err)
	}
	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}
