package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/learnhub/learnhub/internal/auth"
	"github.com/learnhub/learnhub/internal/auth/providers"
	"github.com/learnhub/learnhub/internal/database"
)

func TestLoadConfigFromFile(t *testing.T) {
	cfg, err := LoadConfig("testdata")
	require.NoError(t, err)

	require.Equal(t, 9090, cfg.Server.Port)
	require.True(t, cfg.Server.IsDevelopment())
	require.Equal(t, 15*time.Second, cfg.Server.ShutdownTimeout)

	require.Equal(t, "postgres", cfg.Database.Driver)
	require.True(t, cfg.Database.Postgres.Enabled)
	require.Equal(t, "db.example.com", cfg.Database.Postgres.Host)
	require.Equal(t, 20, cfg.Database.Pool.MaxOpenConns)
	require.Equal(t, 30*time.Minute, cfg.Database.Pool.ConnMaxLifetime)

	require.True(t, cfg.Cache.Redis.Enabled)
	require.Equal(t, "redis.internal:6379", cfg.Cache.Redis.Address)
	require.Equal(t, 2*time.Second, cfg.Cache.Redis.Timeout)
	require.Equal(t, "learnhub:", cfg.Cache.Redis.Prefix)

	require.Equal(t, "jwt-secret", cfg.Auth.JWT.Secret)
	require.Equal(t, "learnhub", cfg.Auth.JWT.Issuer)
	require.Equal(t, 12*time.Hour, cfg.Auth.JWT.TTL)
	require.Equal(t, 32, cfg.Auth.Session.AnchorBytes)
	require.Equal(t, 9, cfg.Auth.Session.DeviceBytes)
	require.Equal(t, 2*time.Minute, cfg.Auth.Session.LogoutGrace)
	require.Equal(t, 7, cfg.Auth.Local.LockoutThreshold)
	require.Equal(t, 20*time.Minute, cfg.Auth.Local.LockoutDuration)
	require.Equal(t, 10, cfg.Auth.RateLimit.Requests)
	require.Equal(t, "admin", cfg.Auth.BootstrapAdmin.Username)

	require.Equal(t, "cron-secret", cfg.Maintenance.Trigger.Secret)
	require.Equal(t, "vercel-cron/", cfg.Maintenance.Trigger.SchedulerUserAgent)
	require.True(t, cfg.Maintenance.Scheduler.Enabled)
	require.Equal(t, "@hourly", cfg.Maintenance.HourlySpec)
	require.Equal(t, "0 3 * * *", cfg.Maintenance.DailyReset.Spec)
	require.Equal(t, "Europe/Berlin", cfg.Maintenance.DailyReset.Timezone)
	require.Equal(t, 30, cfg.Maintenance.AuditRetentionDays)

	require.True(t, cfg.Events.Kafka.Enabled)
	require.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Events.Kafka.Brokers)
	require.Equal(t, "sessions", cfg.Events.Kafka.Topic)

	require.True(t, cfg.Monitoring.Prometheus.Enabled)
	require.Equal(t, "/metrics", cfg.Monitoring.Prometheus.Endpoint)
}

func TestLoadConfigDefaultsAndEnvironment(t *testing.T) {
	t.Setenv("LEARNHUB_SERVER_PORT", "9191")
	t.Setenv("LEARNHUB_EVENTS_KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("LEARNHUB_MAINTENANCE_TRIGGER_SECRET", "from-env")

	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	require.Equal(t, 9191, cfg.Server.Port)
	require.False(t, cfg.Server.IsDevelopment())
	require.Equal(t, "sqlite", cfg.Database.Driver)
	require.Equal(t, "./data/learnhub.sqlite", cfg.Database.Path)
	require.Equal(t, 24*time.Hour, cfg.Auth.JWT.TTL)
	require.Equal(t, time.Minute, cfg.Auth.Session.LogoutGrace)
	require.False(t, cfg.Maintenance.Scheduler.Enabled)
	require.Equal(t, "Asia/Kolkata", cfg.Maintenance.DailyReset.Timezone)
	require.Equal(t, "from-env", cfg.Maintenance.Trigger.Secret)
	require.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Events.Kafka.Brokers)
	require.False(t, cfg.Events.Kafka.Enabled)
}

func TestAuthConfigAdapters(t *testing.T) {
	cfg := AuthConfig{
		JWT: JWTSettings{
			Secret: "secret",
			Issuer: "issuer",
			TTL:    30 * time.Minute,
		},
		Session: SessionSettings{
			AnchorBytes: 32,
			DeviceBytes: 12,
			LogoutGrace: 5 * time.Minute,
		},
		Local: LocalAuthSettings{
			LockoutThreshold: 4,
			LockoutDuration:  10 * time.Minute,
		},
		RateLimit: RateLimitSettings{Requests: 3, Window: time.Second},
		BootstrapAdmin: BootstrapAdminSeed{
			Username: " admin ",
			Email:    "admin@example.com",
			Password: "pw",
		},
	}

	require.Equal(t, auth.JWTConfig{
		Secret:         "secret",
		Issuer:         "issuer",
		AccessTokenTTL: 30 * time.Minute,
	}, cfg.JWTServiceConfig())

	require.Equal(t, auth.SessionConfig{
		AnchorBytes: 32,
		DeviceBytes: 12,
		LogoutGrace: 5 * time.Minute,
	}, cfg.SessionManagerConfig())

	require.Equal(t, providers.LocalConfig{
		LockoutThreshold: 4,
		LockoutDuration:  10 * time.Minute,
	}, cfg.LocalProviderConfig())

	requests, window := cfg.LoginRateLimit()
	require.Equal(t, 3, requests)
	require.Equal(t, time.Second, window)

	require.Equal(t, database.SeedOptions{Admin: &database.AdminSeed{
		Username: "admin",
		Email:    "admin@example.com",
		Password: "pw",
	}}, cfg.SeedOptions())
}

func TestAuthConfigAdaptersFallback(t *testing.T) {
	var cfg AuthConfig

	require.Equal(t, auth.DefaultAccessTokenTTL, cfg.JWTServiceConfig().AccessTokenTTL)
	require.Equal(t, auth.DefaultLogoutGrace, cfg.SessionManagerConfig().LogoutGrace)

	localCfg := cfg.LocalProviderConfig()
	require.Equal(t, defaultLockoutThreshold, localCfg.LockoutThreshold)
	require.Equal(t, defaultLockoutDuration, localCfg.LockoutDuration)

	requests, window := cfg.LoginRateLimit()
	require.Equal(t, defaultRateLimit, requests)
	require.Equal(t, defaultRateWindow, window)

	require.Nil(t, cfg.SeedOptions().Admin)
}

func TestDatabaseConnectionConfig(t *testing.T) {
	sqlite := DatabaseConfig{Path: " ./data/app.sqlite "}.ConnectionConfig()
	require.Equal(t, "sqlite", sqlite.Driver)
	require.Equal(t, "./data/app.sqlite", sqlite.Path)

	pg := DatabaseConfig{
		Driver:   "PostgreSQL",
		Postgres: DBAuthConfig{Host: "db", Port: 5432, Database: "learnhub", Username: "app", Password: "pw"},
		Pool:     PoolConfig{MaxOpenConns: 10},
	}.ConnectionConfig()
	require.Equal(t, "postgres", pg.Driver)
	require.Equal(t, "db", pg.Host)
	require.Equal(t, "learnhub", pg.Name)
	require.Equal(t, "app", pg.User)
	require.Equal(t, 10, pg.MaxOpenConns)

	mysql := DatabaseConfig{Driver: "mariadb", MySQL: DBAuthConfig{Host: "maria", Port: 3306}}.ConnectionConfig()
	require.Equal(t, "mysql", mysql.Driver)
	require.Equal(t, "maria", mysql.Host)

	require.Equal(t, "oracle", DatabaseConfig{Driver: "oracle"}.ConnectionConfig().Driver)
}

func TestKafkaPublisherConfig(t *testing.T) {
	cfg := EventsConfig{Kafka: KafkaSettings{
		Brokers:      []string{" k1:9092 ", "", "k2:9092"},
		Topic:        " sessions ",
		ClientID:     "learnhub",
		WriteTimeout: time.Second,
	}}.KafkaPublisherConfig()

	require.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Brokers)
	require.Equal(t, "sessions", cfg.Topic)
	require.Equal(t, time.Second, cfg.WriteTimeout)
}

func TestUnguardedMaintenanceTrigger(t *testing.T) {
	cfg := &Config{Server: ServerConfig{Environment: "production"}}
	require.True(t, cfg.UnguardedMaintenanceTrigger())

	cfg.Maintenance.Trigger.Secret = "cron-secret"
	require.False(t, cfg.UnguardedMaintenanceTrigger())

	cfg.Maintenance.Trigger.Secret = "  "
	cfg.Server.Environment = "development"
	require.False(t, cfg.UnguardedMaintenanceTrigger())
}
