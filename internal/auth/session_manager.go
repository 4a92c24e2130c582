package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"

	"github.com/learnhub/learnhub/internal/events"
	"github.com/learnhub/learnhub/internal/models"
	"github.com/learnhub/learnhub/pkg/crypto"
	"github.com/learnhub/learnhub/pkg/logger"
	"github.com/learnhub/learnhub/pkg/metrics"
)

const (
	// ValidationCacheTTL bounds how long a positive validation may be served without a store read.
	ValidationCacheTTL = 30 * time.Second
	// DefaultLogoutGrace is how long a scheduled logout waits before the hourly cleanup ends it.
	DefaultLogoutGrace = time.Minute
	// StoreWriteTimeout bounds session store calls that outlive the request that started them.
	StoreWriteTimeout = 10 * time.Second

	maxSessionWriteAttempts = 3
)

var (
	// ErrUserNotFound indicates that no account matches the supplied identifier.
	ErrUserNotFound = errors.New("session: user not found")
	// errSessionClaimed is returned by claimSession when the account already holds a live session.
	errSessionClaimed = errors.New("session: already claimed")
)

// SessionConfig describes tunable behaviour for the SessionManager.
type SessionConfig struct {
	AnchorBytes int
	DeviceBytes int
	LogoutGrace time.Duration
	Clock       func() time.Time
	Cache       SessionCache
	Events      events.Publisher
}

// Session is the result of a successful createSession.
type Session struct {
	UserID    string
	Role      models.Role
	Handle    string
	CreatedAt time.Time
	// Joined is true when an exempt-role login attached to an already live anchor.
	Joined bool
}

// Principal is the identity attached to a validated session.
type Principal struct {
	UserID   string      `json:"uid"`
	Username string      `json:"username"`
	Email    string      `json:"email"`
	FullName string      `json:"full_name"`
	Role     models.Role `json:"role"`
	Since    time.Time   `json:"since"`
}

// Validation is the outcome of ValidateSession.
type Validation struct {
	Valid     bool
	Principal *Principal
}

// SessionManager owns the per-user session slot. It holds no session state between calls;
// every decision is made against the users table.
type SessionManager struct {
	db          *gorm.DB
	anchorBytes int
	deviceBytes int
	grace       time.Duration
	now         func() time.Time
	cache       SessionCache
	events      events.Publisher
	group       singleflight.Group
	log         *zap.Logger
}

// NewSessionManager constructs a session manager backed by the provided database.
func NewSessionManager(db *gorm.DB, cfg SessionConfig) (*SessionManager, error) {
	if db == nil {
		return nil, errors.New("session manager: db is required")
	}

	anchorBytes := cfg.AnchorBytes
	if anchorBytes <= 0 {
		anchorBytes = defaultAnchorBytes
	}
	if anchorBytes < minAnchorBytes {
		return nil, fmt.Errorf("session manager: anchor must be at least %d bytes", minAnchorBytes)
	}

	deviceBytes := cfg.DeviceBytes
	if deviceBytes <= 0 {
		deviceBytes = defaultDeviceBytes
	}

	grace := cfg.LogoutGrace
	if grace <= 0 {
		grace = DefaultLogoutGrace
	}

	clock := time.Now
	if cfg.Clock != nil {
		clock = cfg.Clock
	}

	publisher := cfg.Events
	if publisher == nil {
		publisher = events.Nop{}
	}

	return &SessionManager{
		db:          db,
		anchorBytes: anchorBytes,
		deviceBytes: deviceBytes,
		grace:       grace,
		now:         clock,
		cache:       cfg.Cache,
		events:      publisher,
		log:         logger.WithModule("sessions"),
	}, nil
}

// CreateSession starts a session for the user. Enforced roles always receive a fresh anchor,
// which invalidates every handle issued before. Exempt roles join the live anchor when present.
func (m *SessionManager) CreateSession(ctx context.Context, userID string) (Session, error) {
	ctx, cancel := detached(ctx)
	defer cancel()

	user, err := m.loadUser(ctx, userID)
	if err != nil {
		return Session{}, err
	}

	if models.EnforcesSingleSession(user.Role) {
		return m.replaceSession(ctx, user)
	}
	return m.createOrJoinSession(ctx, user)
}

// claimSession atomically moves an inactive account to a new live session. It fails with
// errSessionClaimed when the account is already live, so concurrent logins cannot both win.
func (m *SessionManager) claimSession(ctx context.Context, user *models.User) (Session, error) {
	anchor, err := m.newAnchor()
	if err != nil {
		return Session{}, err
	}
	now := m.now()

	result := m.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ? AND (is_active = ? OR session_id IS NULL)", user.ID, false).
		Updates(sessionStartColumns(anchor, now))
	if result.Error != nil {
		return Session{}, fmt.Errorf("session manager: claim session: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return Session{}, errSessionClaimed
	}

	m.evict(ctx, user.SessionID)
	metrics.ActiveSessions.Inc()
	return m.started(ctx, user, anchor, now, false)
}

func (m *SessionManager) replaceSession(ctx context.Context, user *models.User) (Session, error) {
	anchor, err := m.newAnchor()
	if err != nil {
		return Session{}, err
	}
	now := m.now()

	result := m.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", user.ID).
		Updates(sessionStartColumns(anchor, now))
	if result.Error != nil {
		return Session{}, fmt.Errorf("session manager: create session: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return Session{}, ErrUserNotFound
	}

	m.evict(ctx, user.SessionID)
	if !user.SessionState().IsActive() {
		metrics.ActiveSessions.Inc()
	}
	return m.started(ctx, user, anchor, now, false)
}

func (m *SessionManager) createOrJoinSession(ctx context.Context, user *models.User) (Session, error) {
	for attempt := 0; attempt < maxSessionWriteAttempts; attempt++ {
		session, err := m.claimSession(ctx, user)
		if err == nil {
			return session, nil
		}
		if !errors.Is(err, errSessionClaimed) {
			return Session{}, err
		}

		current, err := m.loadUser(ctx, user.ID)
		if err != nil {
			return Session{}, err
		}
		state := current.SessionState()
		if !state.IsActive() {
			user = current
			continue
		}

		now := m.now()
		result := m.db.WithContext(ctx).Model(&models.User{}).
			Where("id = ? AND is_active = ? AND session_id = ?", current.ID, true, state.Anchor()).
			Updates(map[string]any{
				"last_login_at":       now,
				"logout_scheduled_at": nil,
			})
		if result.Error != nil {
			return Session{}, fmt.Errorf("session manager: join session: %w", result.Error)
		}
		if result.RowsAffected == 1 {
			return m.started(ctx, current, state.Anchor(), now, true)
		}
		user = current
	}
	return Session{}, errors.New("session manager: session changed concurrently, retry login")
}

func (m *SessionManager) started(ctx context.Context, user *models.User, anchor string, now time.Time, joined bool) (Session, error) {
	device, err := crypto.GenerateToken(m.deviceBytes)
	if err != nil {
		return Session{}, fmt.Errorf("session manager: generate device nonce: %w", err)
	}

	eventType := events.SessionCreated
	if joined {
		eventType = events.SessionJoined
	}
	m.publish(ctx, events.Event{
		Type:       eventType,
		UserID:     user.ID,
		Username:   user.Username,
		Role:       user.Role,
		SessionRef: events.SessionRef(anchor),
	})
	m.log.Info("session started",
		zap.String("user_id", user.ID),
		zap.String("role", user.Role.String()),
		zap.Bool("joined", joined),
	)

	return Session{
		UserID:    user.ID,
		Role:      user.Role,
		Handle:    FormatSessionHandle(anchor, device),
		CreatedAt: now,
		Joined:    joined,
	}, nil
}

// ValidateSession reports whether the handle belongs to a live session. Mismatched, unknown and
// malformed handles are reported as invalid rather than as errors; only store failures error.
func (m *SessionManager) ValidateSession(ctx context.Context, handle string) (Validation, error) {
	anchor, _, err := ParseSessionHandle(handle)
	if err != nil {
		metrics.SessionValidations.WithLabelValues("invalid", "input").Inc()
		return Validation{}, nil
	}

	if m.cache != nil {
		principal, err := m.cache.Get(ctx, anchor)
		switch {
		case err == nil:
			metrics.SessionValidations.WithLabelValues("valid", "cache").Inc()
			return Validation{Valid: true, Principal: principal}, nil
		case !errors.Is(err, errSessionCacheMiss):
			m.log.Warn("session cache read failed", zap.Error(err))
		}
	}

	// Shared by every caller of the anchor; detached from the request that started it.
	shared := context.WithoutCancel(ctx)
	value, err, _ := m.group.Do(anchor, func() (any, error) {
		lookupCtx, cancel := context.WithTimeout(shared, StoreWriteTimeout)
		defer cancel()
		return m.validateFromStore(lookupCtx, anchor)
	})
	if err != nil {
		metrics.SessionValidations.WithLabelValues("error", "store").Inc()
		return Validation{}, err
	}

	validation := value.(Validation)
	if validation.Valid {
		metrics.SessionValidations.WithLabelValues("valid", "store").Inc()
	} else {
		metrics.SessionValidations.WithLabelValues("invalid", "store").Inc()
	}
	return validation, nil
}

func (m *SessionManager) validateFromStore(ctx context.Context, anchor string) (Validation, error) {
	var user models.User
	err := m.db.WithContext(ctx).Where("session_id = ?", anchor).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Validation{}, nil
	}
	if err != nil {
		return Validation{}, fmt.Errorf("session manager: validate session: %w", err)
	}

	if user.SessionInconsistent() {
		m.correctInconsistent(ctx, &user)
		return Validation{}, nil
	}

	state := user.SessionState()
	// Collations may fold case, so the stored anchor is compared exactly here.
	if !state.IsActive() || !crypto.ConstantTimeEqual(state.Anchor(), anchor) || user.Disabled {
		return Validation{}, nil
	}

	principal := &Principal{
		UserID:   user.ID,
		Username: user.Username,
		Email:    user.Email,
		FullName: user.FullName,
		Role:     user.Role,
		Since:    state.Since(),
	}
	if m.cache != nil {
		if err := m.cache.Set(ctx, anchor, principal, ValidationCacheTTL); err != nil {
			m.log.Warn("session cache write failed", zap.Error(err))
		}
	}
	return Validation{Valid: true, Principal: principal}, nil
}

func (m *SessionManager) correctInconsistent(ctx context.Context, user *models.User) {
	result := m.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ? AND is_active = ? AND session_id = ?", user.ID, user.IsActive, *user.SessionID).
		Updates(models.Inactive().Columns())
	if result.Error != nil {
		m.log.Error("session correction failed", zap.String("user_id", user.ID), zap.Error(result.Error))
		return
	}
	if result.RowsAffected > 0 {
		m.log.Warn("corrected inconsistent session row", zap.String("user_id", user.ID))
		m.evict(ctx, user.SessionID)
		m.publish(ctx, events.Event{Type: events.SessionRepaired, UserID: user.ID, Username: user.Username, Count: 1})
	}
}

// EndSession clears the user's session. Unknown users and already-ended sessions are a no-op.
func (m *SessionManager) EndSession(ctx context.Context, userID string) error {
	ctx, cancel := detached(ctx)
	defer cancel()
	return m.endSession(ctx, userID, events.ReasonEnded)
}

func (m *SessionManager) endSession(ctx context.Context, userID, reason string) error {
	if strings.TrimSpace(userID) == "" {
		return nil
	}

	for attempt := 0; attempt < maxSessionWriteAttempts; attempt++ {
		user, err := m.loadUser(ctx, userID)
		if errors.Is(err, ErrUserNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		query := m.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", user.ID)
		if user.SessionID != nil {
			query = query.Where("session_id = ?", *user.SessionID)
		} else {
			query = query.Where("session_id IS NULL")
		}

		result := query.Updates(sessionEndColumns())
		if result.Error != nil {
			return fmt.Errorf("session manager: end session: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			continue
		}

		m.evict(ctx, user.SessionID)
		state := user.SessionState()
		if state.IsActive() {
			metrics.ActiveSessions.Dec()
			m.publish(ctx, events.Event{
				Type:       events.SessionEnded,
				UserID:     user.ID,
				Username:   user.Username,
				Role:       user.Role,
				SessionRef: events.SessionRef(state.Anchor()),
				Reason:     reason,
			})
			m.log.Info("session ended", zap.String("user_id", user.ID), zap.String("reason", reason))
		}
		return nil
	}
	return errors.New("session manager: session changed concurrently while ending")
}

// ScheduleDelayedLogoutCleanup marks the live session for the next hourly cleanup. The session
// stays live until then. Users without a live session are left untouched.
func (m *SessionManager) ScheduleDelayedLogoutCleanup(ctx context.Context, userID string) error {
	ctx, cancel := detached(ctx)
	defer cancel()

	now := m.now()
	result := m.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ? AND is_active = ? AND session_id IS NOT NULL", userID, true).
		Update("logout_scheduled_at", now)
	if result.Error != nil {
		return fmt.Errorf("session manager: schedule logout: %w", result.Error)
	}
	if result.RowsAffected > 0 {
		m.publish(ctx, events.Event{Type: events.SessionLogoutScheduled, UserID: userID})
	}
	return nil
}

// CleanupScheduledLogouts ends every session whose logout marker is older than the grace period
// and returns the number of sessions ended. Markers left on rows without a live session are
// cleared but not counted.
func (m *SessionManager) CleanupScheduledLogouts(ctx context.Context) (int64, error) {
	cutoff := m.now().Add(-m.grace)
	scope := func(db *gorm.DB) *gorm.DB {
		return db.Where("logout_scheduled_at IS NOT NULL AND logout_scheduled_at < ?", cutoff)
	}
	return m.bulkEnd(ctx, scope, events.SessionsCleanup, events.ReasonCleanup, true)
}

// ResetAllSessions ends every session regardless of role and returns the number of sessions ended.
func (m *SessionManager) ResetAllSessions(ctx context.Context) (int64, error) {
	scope := func(db *gorm.DB) *gorm.DB {
		return db.Where("(is_active = ? OR session_id IS NOT NULL OR logout_scheduled_at IS NOT NULL)", true)
	}
	return m.bulkEnd(ctx, scope, events.SessionsReset, events.ReasonReset, false)
}

// RepairInconsistent clears rows whose is_active flag and session_id disagree.
func (m *SessionManager) RepairInconsistent(ctx context.Context) (int64, error) {
	scope := func(db *gorm.DB) *gorm.DB {
		return db.Where("((is_active = ? AND session_id IS NULL) OR (is_active = ? AND session_id IS NOT NULL))", true, false)
	}

	anchors, err := m.pluckAnchors(ctx, scope)
	if err != nil {
		return 0, err
	}
	result := scope(m.db.WithContext(ctx).Model(&models.User{})).Updates(models.Inactive().Columns())
	if result.Error != nil {
		return 0, fmt.Errorf("session manager: repair sessions: %w", result.Error)
	}

	m.evictMany(ctx, anchors)
	if result.RowsAffected > 0 {
		m.log.Warn("repaired inconsistent session rows", zap.Int64("rows", result.RowsAffected))
		m.publish(ctx, events.Event{Type: events.SessionRepaired, Count: result.RowsAffected})
		m.refreshActiveGauge(ctx)
	}
	return result.RowsAffected, nil
}

// bulkEnd ends every live session matched by scope. With perSession set, a SessionEnded event is
// published for each ended session in addition to the summary event.
func (m *SessionManager) bulkEnd(ctx context.Context, scope func(*gorm.DB) *gorm.DB, eventType events.Type, reason string, perSession bool) (int64, error) {
	live := func(db *gorm.DB) *gorm.DB {
		return scope(db).Where("(is_active = ? OR session_id IS NOT NULL)", true)
	}

	var ending []models.User
	err := live(m.db.WithContext(ctx).Model(&models.User{})).
		Select("id", "username", "role", "is_active", "session_id").
		Find(&ending).Error
	if err != nil {
		return 0, fmt.Errorf("session manager: collect sessions: %w", err)
	}
	anchors := make([]string, 0, len(ending))
	for _, user := range ending {
		if user.SessionID != nil {
			anchors = append(anchors, *user.SessionID)
		}
	}

	result := live(m.db.WithContext(ctx).Model(&models.User{})).Updates(sessionEndColumns())
	if result.Error != nil {
		return 0, fmt.Errorf("session manager: %s: %w", reason, result.Error)
	}
	ended := result.RowsAffected

	stale := scope(m.db.WithContext(ctx).Model(&models.User{})).
		Where("logout_scheduled_at IS NOT NULL").
		Update("logout_scheduled_at", nil)
	if stale.Error != nil {
		m.log.Warn("stale logout marker cleanup failed", zap.String("reason", reason), zap.Error(stale.Error))
	}

	m.evictMany(ctx, anchors)
	if perSession {
		for _, user := range ending {
			state := user.SessionState()
			if !state.IsActive() {
				continue
			}
			m.publish(ctx, events.Event{
				Type:       events.SessionEnded,
				UserID:     user.ID,
				Username:   user.Username,
				Role:       user.Role,
				SessionRef: events.SessionRef(state.Anchor()),
				Reason:     reason,
			})
		}
	}
	m.publish(ctx, events.Event{Type: eventType, Count: ended, Reason: reason})
	m.refreshActiveGauge(ctx)
	m.log.Info("sessions ended in bulk", zap.String("reason", reason), zap.Int64("rows", ended))
	return ended, nil
}

// ListActive returns users with a live session, optionally filtered by role.
func (m *SessionManager) ListActive(ctx context.Context, role *models.Role) ([]models.User, error) {
	query := m.db.WithContext(ctx).
		Where("is_active = ? AND session_id IS NOT NULL", true).
		Order("last_login_at DESC")
	if role != nil {
		query = query.Where("role = ?", *role)
	}

	var users []models.User
	if err := query.Find(&users).Error; err != nil {
		return nil, fmt.Errorf("session manager: list active: %w", err)
	}
	return users, nil
}

// CountActive returns the number of users with a live session.
func (m *SessionManager) CountActive(ctx context.Context) (int64, error) {
	var count int64
	err := m.db.WithContext(ctx).Model(&models.User{}).
		Where("is_active = ? AND session_id IS NOT NULL", true).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("session manager: count active: %w", err)
	}
	return count, nil
}

func (m *SessionManager) loadUser(ctx context.Context, userID string) (*models.User, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, ErrUserNotFound
	}
	var user models.User
	err := m.db.WithContext(ctx).Take(&user, "id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("session manager: load user: %w", err)
	}
	return &user, nil
}

func (m *SessionManager) pluckAnchors(ctx context.Context, scope func(*gorm.DB) *gorm.DB) ([]string, error) {
	var anchors []string
	err := scope(m.db.WithContext(ctx).Model(&models.User{})).
		Where("session_id IS NOT NULL").
		Pluck("session_id", &anchors).Error
	if err != nil {
		return nil, fmt.Errorf("session manager: collect anchors: %w", err)
	}
	return anchors, nil
}

// detached keeps ctx values but drops its cancellation, so a session write started by a request
// still commits after the client goes away.
func detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), StoreWriteTimeout)
}

func (m *SessionManager) newAnchor() (string, error) {
	anchor, err := crypto.GenerateToken(m.anchorBytes)
	if err != nil {
		return "", fmt.Errorf("session manager: generate anchor: %w", err)
	}
	return anchor, nil
}

func (m *SessionManager) evict(ctx context.Context, anchor *string) {
	if anchor == nil {
		return
	}
	m.evictMany(ctx, []string{*anchor})
}

func (m *SessionManager) evictMany(ctx context.Context, anchors []string) {
	if m.cache == nil || len(anchors) == 0 {
		return
	}
	if err := m.cache.Delete(ctx, anchors...); err != nil {
		m.log.Warn("session cache eviction failed", zap.Int("anchors", len(anchors)), zap.Error(err))
	}
}

func (m *SessionManager) publish(ctx context.Context, event events.Event) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = m.now()
	}
	if err := m.events.Publish(ctx, event); err != nil {
		m.log.Warn("session event delivery failed", zap.String("event", string(event.Type)), zap.Error(err))
	}
}

func (m *SessionManager) refreshActiveGauge(ctx context.Context) {
	count, err := m.CountActive(ctx)
	if err != nil {
		m.log.Warn("active session count failed", zap.Error(err))
		return
	}
	metrics.ActiveSessions.Set(float64(count))
}

func sessionStartColumns(anchor string, now time.Time) map[string]any {
	cols := models.Active(anchor, now).Columns()
	cols["last_login_at"] = now
	cols["logout_scheduled_at"] = nil
	return cols
}

func sessionEndColumns() map[string]any {
	cols := models.Inactive().Columns()
	cols["logout_scheduled_at"] = nil
	return cols
}
