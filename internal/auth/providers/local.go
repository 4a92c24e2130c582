package providers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/learnhub/learnhub/internal/models"
	"github.com/learnhub/learnhub/pkg/crypto"
)

var (
	// ErrInvalidCredentials is returned when the supplied identity/password pair is invalid.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	// ErrAccountLocked signals that the user has exceeded the permitted failed attempts.
	ErrAccountLocked = errors.New("auth: account locked")
	// ErrAccountDisabled signals that the user has been deactivated.
	ErrAccountDisabled = errors.New("auth: account disabled")
	// ErrUserNotFound is returned by Lookup for unknown identifiers.
	ErrUserNotFound = errors.New("auth: user not found")
)

const (
	defaultLockoutThreshold = 5
	defaultLockoutDuration  = 15 * time.Minute
)

// LocalConfig defines tunable behaviour for the local provider.
type LocalConfig struct {
	LockoutThreshold int
	LockoutDuration  time.Duration
	Clock            func() time.Time
}

// AuthenticateInput contains metadata required to authenticate a local user.
type AuthenticateInput struct {
	Identifier string
	Password   string
	IPAddress  string
	UserAgent  string
}

// RegisterInput captures the details required to register a new local user.
type RegisterInput struct {
	Username string
	Email    string
	Password string
	FullName string
	Role     models.Role
}

// LocalProvider implements username/password authentication with account lockout controls.
type LocalProvider struct {
	db        *gorm.DB
	clock     func() time.Time
	threshold int
	duration  time.Duration
}

// NewLocalProvider builds a provider with sane defaults.
func NewLocalProvider(db *gorm.DB, cfg LocalConfig) (*LocalProvider, error) {
	if db == nil {
		return nil, errors.New("local provider: db is required")
	}

	threshold := cfg.LockoutThreshold
	if threshold <= 0 {
		threshold = defaultLockoutThreshold
	}

	duration := cfg.LockoutDuration
	if duration <= 0 {
		duration = defaultLockoutDuration
	}

	clock := time.Now
	if cfg.Clock != nil {
		clock = cfg.Clock
	}

	return &LocalProvider{
		db:        db,
		clock:     clock,
		threshold: threshold,
		duration:  duration,
	}, nil
}

// Lookup resolves a username or email (case-insensitive) to a user.
func (p *LocalProvider) Lookup(ctx context.Context, identifier string) (*models.User, error) {
	identity := strings.TrimSpace(identifier)
	if identity == "" {
		return nil, ErrUserNotFound
	}

	var user models.User
	err := p.db.WithContext(ctx).
		Where("LOWER(username) = LOWER(?) OR LOWER(email) = LOWER(?)", identity, identity).
		Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("local provider: query user: %w", err)
	}
	return &user, nil
}

// Authenticate verifies the supplied credentials and returns the associated user when successful.
// Unknown identifiers still pay for a bcrypt comparison.
func (p *LocalProvider) Authenticate(ctx context.Context, input AuthenticateInput) (*models.User, error) {
	if strings.TrimSpace(input.Identifier) == "" || input.Password == "" {
		return nil, ErrInvalidCredentials
	}

	user, err := p.Lookup(ctx, input.Identifier)
	if errors.Is(err, ErrUserNotFound) {
		crypto.BurnPasswordCheck(input.Password)
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	now := p.clock()

	if user.Disabled {
		crypto.BurnPasswordCheck(input.Password)
		return nil, ErrAccountDisabled
	}

	if user.Locked(now) {
		crypto.BurnPasswordCheck(input.Password)
		return nil, ErrAccountLocked
	}

	if !crypto.VerifyPassword(user.Password, input.Password) {
		return nil, p.handleFailedAttempt(ctx, user, now)
	}

	if user.FailedAttempts != 0 || user.LockedUntil != nil {
		user.FailedAttempts = 0
		user.LockedUntil = nil
		if err := p.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", user.ID).Updates(map[string]any{
			"failed_attempts": 0,
			"locked_until":    nil,
		}).Error; err != nil {
			return nil, fmt.Errorf("local provider: reset lock state: %w", err)
		}
	}

	return user, nil
}

func (p *LocalProvider) handleFailedAttempt(ctx context.Context, user *models.User, now time.Time) error {
	// An expired lockout starts a fresh count.
	if user.LockedUntil != nil && !user.Locked(now) {
		user.FailedAttempts = 0
		user.LockedUntil = nil
	}
	user.FailedAttempts++

	updates := map[string]any{
		"failed_attempts": user.FailedAttempts,
		"locked_until":    nil,
	}

	if user.FailedAttempts >= p.threshold {
		lockUntil := now.Add(p.duration)
		user.LockedUntil = &lockUntil
		updates["locked_until"] = lockUntil
	}

	if err := p.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", user.ID).Updates(updates).Error; err != nil {
		return fmt.Errorf("local provider: update failed attempts: %w", err)
	}

	if user.Locked(now) {
		return ErrAccountLocked
	}

	return ErrInvalidCredentials
}

// Register creates a new local user with a hashed password. Role defaults to student.
func (p *LocalProvider) Register(ctx context.Context, input RegisterInput) (*models.User, error) {
	if strings.TrimSpace(input.Username) == "" || strings.TrimSpace(input.Email) == "" || input.Password == "" {
		return nil, errors.New("local provider: username, email and password are required")
	}

	role := input.Role
	if role == "" {
		role = models.RoleStudent
	}
	if !role.Valid() {
		return nil, fmt.Errorf("local provider: invalid role %q", role)
	}

	hashed, err := crypto.HashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("local provider: hash password: %w", err)
	}

	user := &models.User{
		Username: strings.TrimSpace(input.Username),
		Email:    strings.ToLower(strings.TrimSpace(input.Email)),
		Password: hashed,
		FullName: strings.TrimSpace(input.FullName),
		Role:     role,
	}

	if err := p.db.WithContext(ctx).Create(user).Error; err != nil {
		return nil, fmt.Errorf("local provider: create user: %w", err)
	}

	return user, nil
}
