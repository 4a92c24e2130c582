package providers

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/learnhub/learnhub/internal/database/testutil"
	"github.com/learnhub/learnhub/internal/models"
	"github.com/learnhub/learnhub/pkg/crypto"
)

func TestAuthenticateSuccessResetsCounters(t *testing.T) {
	db := setupDB(t)
	current := time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC)
	now := func() time.Time { return current }

	provider := newLocalProvider(t, db, LocalConfig{Clock: now})
	user := seedUser(t, db, "alice", "password123", func(u *models.User) {
		u.FailedAttempts = 3
	})

	result, err := provider.Authenticate(context.Background(), AuthenticateInput{
		Identifier: "ALICE@example.com",
		Password:   "password123",
		IPAddress:  "127.0.0.1",
	})
	require.NoError(t, err)
	require.Equal(t, user.ID, result.ID)

	var updated models.User
	require.NoError(t, db.Take(&updated, "id = ?", user.ID).Error)

	require.Equal(t, 0, updated.FailedAttempts)
	require.Nil(t, updated.LockedUntil)
	require.False(t, updated.IsActive, "authentication alone must not start a session")
	require.Nil(t, updated.SessionID)
}

func TestAuthenticateUnknownIdentifier(t *testing.T) {
	db := setupDB(t)
	provider := newLocalProvider(t, db, LocalConfig{})

	err := tryAuthenticate(provider, "nobody", "whatever")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	err = tryAuthenticate(provider, "   ", "whatever")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestAuthenticateInvalidPasswordLocksAccount(t *testing.T) {
	db := setupDB(t)
	current := time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)
	now := func() time.Time { return current }

	provider := newLocalProvider(t, db, LocalConfig{
		LockoutThreshold: 3,
		LockoutDuration:  10 * time.Minute,
		Clock:            now,
	})
	user := seedUser(t, db, "bob", "correct", func(u *models.User) {
		u.FailedAttempts = 1
	})

	err := tryAuthenticate(provider, "bob", "wrong")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	err = tryAuthenticate(provider, "bob", "wrong")
	require.ErrorIs(t, err, ErrAccountLocked)

	var updated models.User
	require.NoError(t, db.Take(&updated, "id = ?", user.ID).Error)

	require.Equal(t, 3, updated.FailedAttempts)
	require.NotNil(t, updated.LockedUntil)
	require.WithinDuration(t, current.Add(10*time.Minute), *updated.LockedUntil, time.Second)
}

func TestAuthenticateLockedAccount(t *testing.T) {
	db := setupDB(t)
	current := time.Date(2024, 1, 2, 11, 0, 0, 0, time.UTC)
	now := func() time.Time { return current }

	provider := newLocalProvider(t, db, LocalConfig{Clock: now})

	lockUntil := current.Add(5 * time.Minute)
	seedUser(t, db, "charlie", "correct", func(u *models.User) {
		u.LockedUntil = &lockUntil
		u.FailedAttempts = 5
	})

	err := tryAuthenticate(provider, "charlie@example.com", "correct")
	require.ErrorIs(t, err, ErrAccountLocked)

	current = current.Add(6 * time.Minute)
	_, err = provider.Authenticate(context.Background(), AuthenticateInput{Identifier: "charlie", Password: "correct"})
	require.NoError(t, err)
}

func TestAuthenticateDisabledAccount(t *testing.T) {
	db := setupDB(t)
	provider := newLocalProvider(t, db, LocalConfig{})

	seedUser(t, db, "diana", "correct", func(u *models.User) {
		u.Disabled = true
	})

	err := tryAuthenticate(provider, "diana", "correct")
	require.ErrorIs(t, err, ErrAccountDisabled)
}

func TestLookup(t *testing.T) {
	db := setupDB(t)
	provider := newLocalProvider(t, db, LocalConfig{})
	user := seedUser(t, db, "erin", "pw", nil)

	found, err := provider.Lookup(context.Background(), "Erin")
	require.NoError(t, err)
	require.Equal(t, user.ID, found.ID)

	_, err = provider.Lookup(context.Background(), "ghost")
	require.ErrorIs(t, err, ErrUserNotFound)
}

func TestRegisterHashesPasswordAndDefaultsRole(t *testing.T) {
	db := setupDB(t)
	provider := newLocalProvider(t, db, LocalConfig{})

	user, err := provider.Register(context.Background(), RegisterInput{
		Username: "eve",
		Email:    "Eve@Example.com",
		Password: "secret",
	})
	require.NoError(t, err)

	require.NotEqual(t, "secret", user.Password)
	require.True(t, crypto.VerifyPassword(user.Password, "secret"))
	require.Equal(t, models.RoleStudent, user.Role)
	require.Equal(t, "eve@example.com", user.Email)

	teacher, err := provider.Register(context.Background(), RegisterInput{
		Username: "tom",
		Email:    "tom@example.com",
		Password: "secret",
		Role:     models.RoleTeacher,
	})
	require.NoError(t, err)
	require.Equal(t, models.RoleTeacher, teacher.Role)

	_, err = provider.Register(context.Background(), RegisterInput{
		Username: "mallory",
		Email:    "mallory@example.com",
		Password: "secret",
		Role:     models.Role("owner"),
	})
	require.Error(t, err)
}

func tryAuthenticate(provider *LocalProvider, identifier, password string) error {
	_, err := provider.Authenticate(context.Background(), AuthenticateInput{
		Identifier: identifier,
		Password:   password,
	})
	return err
}

func newLocalProvider(t *testing.T, db *gorm.DB, cfg LocalConfig) *LocalProvider {
	t.Helper()
	provider, err := NewLocalProvider(db, cfg)
	require.NoError(t, err)
	return provider
}

func seedUser(t *testing.T, db *gorm.DB, username, password string, mutate func(*models.User)) *models.User {
	t.Helper()

	hashed, err := crypto.HashPassword(password)
	require.NoError(t, err)

	user := &models.User{
		Username: username,
		Email:    username + "@example.com",
		Password: hashed,
		Role:     models.RoleStudent,
	}
	if mutate != nil {
		mutate(user)
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()
	return testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
}
