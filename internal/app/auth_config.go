package app

import (
	"strings"
	"time"

	"github.com/learnhub/learnhub/internal/auth"
	"github.com/learnhub/learnhub/internal/auth/providers"
	"github.com/learnhub/learnhub/internal/database"
)

const (
	defaultLockoutThreshold = 5
	defaultLockoutDuration  = 15 * time.Minute
	defaultRateLimit        = 20
	defaultRateWindow       = time.Minute
)

// JWTServiceConfig converts AuthConfig into the parameters expected by the JWT service.
func (c AuthConfig) JWTServiceConfig() auth.JWTConfig {
	ttl := c.JWT.TTL
	if ttl <= 0 {
		ttl = auth.DefaultAccessTokenTTL
	}

	return auth.JWTConfig{
		Secret:         c.JWT.Secret,
		Issuer:         c.JWT.Issuer,
		AccessTokenTTL: ttl,
	}
}

// SessionManagerConfig converts AuthConfig into SessionManager parameters. Cache and event
// sinks are attached by the caller.
func (c AuthConfig) SessionManagerConfig() auth.SessionConfig {
	grace := c.Session.LogoutGrace
	if grace <= 0 {
		grace = auth.DefaultLogoutGrace
	}

	return auth.SessionConfig{
		AnchorBytes: c.Session.AnchorBytes,
		DeviceBytes: c.Session.DeviceBytes,
		LogoutGrace: grace,
	}
}

// LocalProviderConfig converts AuthConfig into LocalProvider parameters.
func (c AuthConfig) LocalProviderConfig() providers.LocalConfig {
	duration := c.Local.LockoutDuration
	if duration <= 0 {
		duration = defaultLockoutDuration
	}

	threshold := c.Local.LockoutThreshold
	if threshold <= 0 {
		threshold = defaultLockoutThreshold
	}

	return providers.LocalConfig{
		LockoutThreshold: threshold,
		LockoutDuration:  duration,
	}
}

// LoginRateLimit returns the per-address request budget for the login endpoints.
func (c AuthConfig) LoginRateLimit() (int, time.Duration) {
	requests := c.RateLimit.Requests
	if requests <= 0 {
		requests = defaultRateLimit
	}
	window := c.RateLimit.Window
	if window <= 0 {
		window = defaultRateWindow
	}
	return requests, window
}

// SeedOptions converts the bootstrap admin settings into database seed options. No admin is
// seeded unless both a username and a password are configured.
func (c AuthConfig) SeedOptions() database.SeedOptions {
	username := strings.TrimSpace(c.BootstrapAdmin.Username)
	if username == "" || c.BootstrapAdmin.Password == "" {
		return database.SeedOptions{}
	}
	return database.SeedOptions{
		Admin: &database.AdminSeed{
			Username: username,
			Email:    strings.TrimSpace(c.BootstrapAdmin.Email),
			Password: c.BootstrapAdmin.Password,
		},
	}
}
