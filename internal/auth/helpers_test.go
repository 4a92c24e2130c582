package auth

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/learnhub/learnhub/internal/auth/providers"
	"github.com/learnhub/learnhub/internal/cache"
	"github.com/learnhub/learnhub/internal/database/testutil"
	"github.com/learnhub/learnhub/internal/events"
	"github.com/learnhub/learnhub/internal/models"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recordingPublisher) Publish(_ context.Context, event events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recordingPublisher) ofType(t events.Type) []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []events.Event
	for _, e := range r.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

type authFixture struct {
	db       *gorm.DB
	clock    *testClock
	sessions *SessionManager
	login    *LoginService
	local    *providers.LocalProvider
	jwt      *JWTService
	events   *recordingPublisher
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()

	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	clock := newTestClock()
	recorder := &recordingPublisher{}

	sessions, err := NewSessionManager(db, SessionConfig{
		Clock:  clock.Now,
		Cache:  NewSessionCache(cache.NewMemoryStoreWithClock(clock.Now)),
		Events: recorder,
	})
	require.NoError(t, err)

	local, err := providers.NewLocalProvider(db, providers.LocalConfig{Clock: clock.Now})
	require.NoError(t, err)

	jwtSvc, err := NewJWTService(JWTConfig{Secret: "test-secret", Issuer: "learnhub", Clock: clock.Now})
	require.NoError(t, err)

	login, err := NewLoginService(local, sessions, jwtSvc, recorder)
	require.NoError(t, err)

	return &authFixture{
		db:       db,
		clock:    clock,
		sessions: sessions,
		login:    login,
		local:    local,
		jwt:      jwtSvc,
		events:   recorder,
	}
}

func (f *authFixture) seedUser(t *testing.T, username string, role models.Role) *models.User {
	t.Helper()
	user, err := f.local.Register(context.Background(), providers.RegisterInput{
		Username: username,
		Email:    username + "@example.com",
		Password: username + "-pw",
		Role:     role,
	})
	require.NoError(t, err)
	return user
}

func (f *authFixture) reload(t *testing.T, userID string) models.User {
	t.Helper()
	var user models.User
	require.NoError(t, f.db.Take(&user, "id = ?", userID).Error)
	return user
}

func (f *authFixture) requireValid(t *testing.T, handle string) *Principal {
	t.Helper()
	validation, err := f.sessions.ValidateSession(context.Background(), handle)
	require.NoError(t, err)
	require.True(t, validation.Valid, "expected handle to be valid")
	return validation.Principal
}

func (f *authFixture) requireInvalid(t *testing.T, handle string) {
	t.Helper()
	validation, err := f.sessions.ValidateSession(context.Background(), handle)
	require.NoError(t, err)
	require.False(t, validation.Valid, "expected handle to be invalid")
}

// requireSessionColumnsPaired asserts that no row has is_active without session_id or vice versa.
func requireSessionColumnsPaired(t *testing.T, db *gorm.DB) {
	t.Helper()
	var broken int64
	require.NoError(t, db.Model(&models.User{}).
		Where("(is_active = ? AND session_id IS NULL) OR (is_active = ? AND session_id IS NOT NULL)", true, false).
		Count(&broken).Error)
	require.Zero(t, broken, "found rows with unpaired session columns")
}

func loginRequest(username string) LoginRequest {
	return LoginRequest{Identifier: username, Secret: username + "-pw", IPAddress: "203.0.113.5", UserAgent: "test-agent"}
}
