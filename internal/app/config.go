package app

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Config represents the runtime configuration for the LearnHub backend.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Cache       CacheConfig       `mapstructure:"cache"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Maintenance MaintenanceConfig `mapstructure:"maintenance"`
	Events      EventsConfig      `mapstructure:"events"`
	Monitoring  MonitoringConfig  `mapstructure:"monitoring"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	LogLevel        string        `mapstructure:"log_level"`
	Environment     string        `mapstructure:"environment"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// IsDevelopment reports whether the server runs in the development environment.
func (s ServerConfig) IsDevelopment() bool {
	return strings.EqualFold(strings.TrimSpace(s.Environment), "development")
}

// UnguardedMaintenanceTrigger reports whether the maintenance endpoints accept callers without a
// shared secret outside development, relying only on the scheduler User-Agent.
func (c *Config) UnguardedMaintenanceTrigger() bool {
	return strings.TrimSpace(c.Maintenance.Trigger.Secret) == "" && !c.Server.IsDevelopment()
}

// DatabaseConfig describes connection options for the supported databases.
type DatabaseConfig struct {
	Driver   string       `mapstructure:"driver"`
	Path     string       `mapstructure:"path"`
	DSN      string       `mapstructure:"dsn"`
	Postgres DBAuthConfig `mapstructure:"postgres"`
	MySQL    DBAuthConfig `mapstructure:"mysql"`
	Pool     PoolConfig   `mapstructure:"pool"`
}

// DBAuthConfig represents host based database parameters.
type DBAuthConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// PoolConfig tunes the database connection pool.
type PoolConfig struct {
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// CacheConfig describes cache backends.
type CacheConfig struct {
	Redis RedisCacheConfig `mapstructure:"redis"`
}

// RedisCacheConfig holds Redis connection options.
type RedisCacheConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Address  string        `mapstructure:"address"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TLS      bool          `mapstructure:"tls"`
	Timeout  time.Duration `mapstructure:"timeout"`
	Prefix   string        `mapstructure:"prefix"`
}

// AuthConfig captures all authentication-related settings.
type AuthConfig struct {
	JWT            JWTSettings        `mapstructure:"jwt"`
	Session        SessionSettings    `mapstructure:"session"`
	Local          LocalAuthSettings  `mapstructure:"local"`
	RateLimit      RateLimitSettings  `mapstructure:"rate_limit"`
	BootstrapAdmin BootstrapAdminSeed `mapstructure:"bootstrap_admin"`
}

// JWTSettings configures JWT access tokens.
type JWTSettings struct {
	Secret string        `mapstructure:"secret"`
	Issuer string        `mapstructure:"issuer"`
	TTL    time.Duration `mapstructure:"access_token_ttl"`
}

// SessionSettings configures session handles and delayed logout.
type SessionSettings struct {
	AnchorBytes int           `mapstructure:"anchor_bytes"`
	DeviceBytes int           `mapstructure:"device_bytes"`
	LogoutGrace time.Duration `mapstructure:"logout_grace"`
}

// LocalAuthSettings defines controls for the local auth provider.
type LocalAuthSettings struct {
	LockoutThreshold int           `mapstructure:"lockout_threshold"`
	LockoutDuration  time.Duration `mapstructure:"lockout_duration"`
}

// RateLimitSettings bounds login attempts per client address.
type RateLimitSettings struct {
	Requests int           `mapstructure:"requests"`
	Window   time.Duration `mapstructure:"window"`
}

// BootstrapAdminSeed describes the administrator account created on first start.
type BootstrapAdminSeed struct {
	Username string `mapstructure:"username"`
	Email    string `mapstructure:"email"`
	Password string `mapstructure:"password"`
}

// MaintenanceConfig controls the hourly cleanup and daily reset jobs.
type MaintenanceConfig struct {
	Trigger            TriggerConfig    `mapstructure:"trigger"`
	Scheduler          SchedulerConfig  `mapstructure:"scheduler"`
	HourlySpec         string           `mapstructure:"hourly_spec"`
	DailyReset         DailyResetConfig `mapstructure:"daily_reset"`
	AuditRetentionDays int              `mapstructure:"audit_retention_days"`
}

// TriggerConfig controls who may invoke the maintenance endpoints.
type TriggerConfig struct {
	Secret             string `mapstructure:"secret"`
	SchedulerUserAgent string `mapstructure:"scheduler_user_agent"`
}

// SchedulerConfig toggles the in-process cron scheduler.
type SchedulerConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// DailyResetConfig places the daily reset in a civil timezone.
type DailyResetConfig struct {
	Spec     string `mapstructure:"spec"`
	Timezone string `mapstructure:"timezone"`
}

// EventsConfig configures session event sinks.
type EventsConfig struct {
	Kafka KafkaSettings `mapstructure:"kafka"`
}

// KafkaSettings holds Kafka producer options.
type KafkaSettings struct {
	Enabled      bool          `mapstructure:"enabled"`
	Brokers      []string      `mapstructure:"brokers"`
	Topic        string        `mapstructure:"topic"`
	ClientID     string        `mapstructure:"client_id"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// MonitoringConfig enables health checks and metrics.
type MonitoringConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
	Health     HealthConfig     `mapstructure:"health_check"`
}

// PrometheusConfig toggles metrics endpoints.
type PrometheusConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
}

// HealthConfig toggles health endpoints.
type HealthConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// LoadConfig initialises application configuration using Viper with sensible defaults.
// A .env file in the working directory is loaded first when present.
func LoadConfig(paths ...string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config: load .env: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AddConfigPath("./config")
	for _, path := range paths {
		v.AddConfigPath(path)
	}

	setDefaults(v)

	v.SetEnvPrefix("LEARNHUB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var cfgErr viper.ConfigFileNotFoundError
		if !errors.As(err, &cfgErr) {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config, decodeHook()); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.environment", "production")
	v.SetDefault("server.shutdown_timeout", "15s")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/learnhub.sqlite")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.postgres.enabled", false)
	v.SetDefault("database.postgres.host", "")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.database", "")
	v.SetDefault("database.postgres.username", "")
	v.SetDefault("database.postgres.password", "")
	v.SetDefault("database.mysql.enabled", false)
	v.SetDefault("database.mysql.host", "")
	v.SetDefault("database.mysql.port", 3306)
	v.SetDefault("database.mysql.database", "")
	v.SetDefault("database.mysql.username", "")
	v.SetDefault("database.mysql.password", "")
	v.SetDefault("database.pool.max_open_conns", 0)
	v.SetDefault("database.pool.max_idle_conns", 0)
	v.SetDefault("database.pool.conn_max_lifetime", "0s")

	v.SetDefault("cache.redis.enabled", false)
	v.SetDefault("cache.redis.address", "127.0.0.1:6379")
	v.SetDefault("cache.redis.username", "")
	v.SetDefault("cache.redis.password", "")
	v.SetDefault("cache.redis.db", 0)
	v.SetDefault("cache.redis.tls", false)
	v.SetDefault("cache.redis.timeout", "5s")
	v.SetDefault("cache.redis.prefix", "learnhub:")

	v.SetDefault("auth.jwt.secret", "")
	v.SetDefault("auth.jwt.issuer", "learnhub")
	v.SetDefault("auth.jwt.access_token_ttl", "24h")
	v.SetDefault("auth.session.anchor_bytes", 24)
	v.SetDefault("auth.session.device_bytes", 9)
	v.SetDefault("auth.session.logout_grace", "1m")
	v.SetDefault("auth.local.lockout_threshold", 5)
	v.SetDefault("auth.local.lockout_duration", "15m")
	v.SetDefault("auth.rate_limit.requests", 20)
	v.SetDefault("auth.rate_limit.window", "1m")
	v.SetDefault("auth.bootstrap_admin.username", "")
	v.SetDefault("auth.bootstrap_admin.email", "")
	v.SetDefault("auth.bootstrap_admin.password", "")

	v.SetDefault("maintenance.trigger.secret", "")
	v.SetDefault("maintenance.trigger.scheduler_user_agent", "vercel-cron/")
	v.SetDefault("maintenance.scheduler.enabled", false)
	v.SetDefault("maintenance.hourly_spec", "@hourly")
	v.SetDefault("maintenance.daily_reset.spec", "0 3 * * *")
	v.SetDefault("maintenance.daily_reset.timezone", "Asia/Kolkata")
	v.SetDefault("maintenance.audit_retention_days", 90)

	v.SetDefault("events.kafka.enabled", false)
	v.SetDefault("events.kafka.brokers", []string{"127.0.0.1:9092"})
	v.SetDefault("events.kafka.topic", "learnhub.sessions")
	v.SetDefault("events.kafka.client_id", "learnhub")
	v.SetDefault("events.kafka.write_timeout", "5s")

	v.SetDefault("monitoring.prometheus.enabled", true)
	v.SetDefault("monitoring.prometheus.endpoint", "/metrics")
	v.SetDefault("monitoring.health_check.enabled", true)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}
