package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/learnhub/learnhub/internal/api"
	"github.com/learnhub/learnhub/internal/app"
	"github.com/learnhub/learnhub/internal/app/maintenance"
	iauth "github.com/learnhub/learnhub/internal/auth"
	"github.com/learnhub/learnhub/internal/auth/providers"
	"github.com/learnhub/learnhub/internal/cache"
	sharedtestutil "github.com/learnhub/learnhub/internal/database/testutil"
	"github.com/learnhub/learnhub/internal/events"
	"github.com/learnhub/learnhub/internal/middleware"
	"github.com/learnhub/learnhub/internal/models"
	"github.com/learnhub/learnhub/internal/realtime"
	"github.com/learnhub/learnhub/internal/services"
	"github.com/learnhub/learnhub/pkg/response"
)

// MaintenanceSecret is the bearer secret accepted by the maintenance endpoints in tests.
const MaintenanceSecret = "maintenance-test-secret"

// Clock is a manually advanced time source shared by every service in the Env.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Env encapsulates a fully-wired API instance backed by an in-memory database for handler tests.
type Env struct {
	T            *testing.T
	DB           *gorm.DB
	Router       *gin.Engine
	Clock        *Clock
	JWT          *iauth.JWTService
	Sessions     *iauth.SessionManager
	LoginService *iauth.LoginService
	Local        *providers.LocalProvider
	Audit        *services.AuditService
	Hub          *realtime.Hub
	Config       *app.Config
}

// NewEnv provisions a fresh handler test environment with migrations applied.
func NewEnv(t *testing.T) *Env {
	t.Helper()

	gin.SetMode(gin.TestMode)

	db := sharedtestutil.MustOpenTestDB(t, sharedtestutil.WithAutoMigrate())
	clock := &Clock{now: time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)}

	cfg := &app.Config{
		Server: app.ServerConfig{Environment: "test"},
		Auth: app.AuthConfig{
			JWT: app.JWTSettings{
				Secret: "test-suite-super-secret-key-32-bytes!!",
				Issuer: "test-suite",
				TTL:    time.Hour,
			},
			RateLimit: app.RateLimitSettings{Requests: 1000, Window: time.Minute},
		},
		Maintenance: app.MaintenanceConfig{
			Trigger: app.TriggerConfig{Secret: MaintenanceSecret},
		},
		Monitoring: app.MonitoringConfig{
			Prometheus: app.PrometheusConfig{Enabled: true, Endpoint: "/metrics"},
			Health:     app.HealthConfig{Enabled: true},
		},
	}

	jwtCfg := cfg.Auth.JWTServiceConfig()
	jwtCfg.Clock = clock.Now
	jwtSvc, err := iauth.NewJWTService(jwtCfg)
	require.NoError(t, err)

	audit, err := services.NewAuditServiceWithClock(db, clock.Now)
	require.NoError(t, err)

	hub := realtime.NewHub()
	store := cache.NewMemoryStoreWithClock(clock.Now)

	sessionCfg := cfg.Auth.SessionManagerConfig()
	sessionCfg.Clock = clock.Now
	sessionCfg.Cache = iauth.NewSessionCache(store)
	sessionCfg.Events = events.FanOut(events.NewAuditPublisher(audit), events.NewNotifierPublisher(hub))
	sessions, err := iauth.NewSessionManager(db, sessionCfg)
	require.NoError(t, err)

	localCfg := cfg.Auth.LocalProviderConfig()
	localCfg.Clock = clock.Now
	local, err := providers.NewLocalProvider(db, localCfg)
	require.NoError(t, err)

	login, err := iauth.NewLoginService(local, sessions, jwtSvc, sessionCfg.Events)
	require.NoError(t, err)

	jobs, err := maintenance.NewJobs(sessions, audit)
	require.NoError(t, err)

	router, err := api.NewRouter(api.Dependencies{
		DB:        db,
		Config:    cfg,
		JWT:       jwtSvc,
		Sessions:  sessions,
		Login:     login,
		Audit:     audit,
		Jobs:      jobs,
		Hub:       hub,
		Cache:     store,
		RateStore: middleware.NewCacheRateStore(store),
	})
	require.NoError(t, err)

	return &Env{
		T:            t,
		DB:           db,
		Router:       router,
		Clock:        clock,
		JWT:          jwtSvc,
		Sessions:     sessions,
		LoginService: login,
		Local:        local,
		Audit:        audit,
		Hub:          hub,
		Config:       cfg,
	}
}

// SeedUser registers an account whose password is username + "-pw".
func (e *Env) SeedUser(username string, role models.Role) *models.User {
	e.T.Helper()

	user, err := e.Local.Register(context.Background(), providers.RegisterInput{
		Username: username,
		Email:    username + "@example.com",
		Password: Password(username),
		FullName: username,
		Role:     role,
	})
	require.NoError(e.T, err)
	return user
}

// Password returns the password SeedUser assigns to username.
func Password(username string) string {
	return username + "-pw"
}

// UserPayload captures the subset of user fields returned from auth endpoints.
type UserPayload struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	Role     string `json:"role"`
}

// LoginResult bundles the JSON response from a successful POST /api/auth/login.
type LoginResult struct {
	SessionToken string      `json:"session_token"`
	ExpiresIn    int         `json:"expires_in"`
	User         UserPayload `json:"user"`
}

// Login signs in with the seeded password and expects a new session.
func (e *Env) Login(username string) LoginResult {
	e.T.Helper()

	w := e.Request(http.MethodPost, "/api/auth/login", Credentials(username, Password(username)), "")
	require.Equal(e.T, http.StatusOK, w.Code, w.Body.String())

	resp := DecodeResponse(e.T, w)
	require.True(e.T, resp.Success, w.Body.String())

	var result LoginResult
	DecodeInto(e.T, resp.Data, &result)
	require.NotEmpty(e.T, result.SessionToken)
	require.Greater(e.T, result.ExpiresIn, 0)
	require.Equal(e.T, username, result.User.Username)

	return result
}

// Credentials builds a login request body.
func Credentials(identifier, secret string) map[string]string {
	return map[string]string{
		"identifier": identifier,
		"secret":     secret,
	}
}

// APIResponse represents the canonical API envelope returned by handlers.
type APIResponse struct {
	Success bool                `json:"success"`
	Data    json.RawMessage     `json:"data"`
	Error   *response.ErrorInfo `json:"error"`
	Meta    *response.Meta      `json:"meta"`
}

// DecodeResponse parses the standard API response object from a recorder.
func DecodeResponse(t *testing.T, w *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

// DecodeInto unmarshals the data payload into the provided destination.
func DecodeInto[T any](t *testing.T, raw json.RawMessage, dest *T) {
	t.Helper()
	if dest == nil {
		t.Fatal("destination must not be nil")
	}
	require.NoError(t, json.Unmarshal(raw, dest))
}

// Request executes an HTTP request against the test router, applying JSON encoding and auth headers automatically.
func (e *Env) Request(method, path string, body any, token string) *httptest.ResponseRecorder {
	e.T.Helper()
	return e.RequestWithHeaders(method, path, body, token, nil)
}

// RequestWithHeaders is Request with extra request headers.
func (e *Env) RequestWithHeaders(method, path string, body any, token string, headers map[string]string) *httptest.ResponseRecorder {
	e.T.Helper()

	buf := bytes.NewBuffer(nil)
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(e.T, err)
		buf = bytes.NewBuffer(data)
	}

	req, err := http.NewRequest(method, path, buf)
	require.NoError(e.T, err)

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	w := httptest.NewRecorder()
	e.Router.ServeHTTP(w, req)
	return w
}
