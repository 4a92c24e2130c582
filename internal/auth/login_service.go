package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/learnhub/learnhub/internal/auth/providers"
	"github.com/learnhub/learnhub/internal/events"
	"github.com/learnhub/learnhub/internal/models"
	"github.com/learnhub/learnhub/pkg/logger"
	"github.com/learnhub/learnhub/pkg/metrics"
)

// LoginOutcome is the terminal state of a login attempt.
type LoginOutcome int

const (
	OutcomeSessionCreated LoginOutcome = iota + 1
	OutcomeConflictDetected
	OutcomeCredentialsInvalid
	OutcomeNoConflictToForce
)

func (o LoginOutcome) String() string {
	switch o {
	case OutcomeSessionCreated:
		return "SESSION_CREATED"
	case OutcomeConflictDetected:
		return "CONFLICT_DETECTED"
	case OutcomeCredentialsInvalid:
		return "CREDENTIALS_INVALID"
	case OutcomeNoConflictToForce:
		return "NO_CONFLICT_TO_FORCE"
	default:
		return "UNKNOWN"
	}
}

// CredentialChecker verifies credentials and resolves identifiers.
type CredentialChecker interface {
	Authenticate(ctx context.Context, input providers.AuthenticateInput) (*models.User, error)
	Lookup(ctx context.Context, identifier string) (*models.User, error)
}

// LoginRequest carries submitted credentials and client metadata.
type LoginRequest struct {
	Identifier string
	Secret     string
	IPAddress  string
	UserAgent  string
}

// LoginResult is returned by AttemptLogin and ForceLogin. Token and Session are only set
// when Outcome is OutcomeSessionCreated.
type LoginResult struct {
	Outcome LoginOutcome
	Token   string
	Session Session
	User    *models.User
}

// CredentialResult is the outcome of CheckCredentials.
type CredentialResult struct {
	OK   bool
	User *models.User
}

// SessionStatus is the informational view returned by SessionStatus.
type SessionStatus struct {
	IsActive bool
	Role     models.Role
}

// LoginService runs the login conflict protocol on top of the session manager.
type LoginService struct {
	credentials CredentialChecker
	sessions    *SessionManager
	tokens      *JWTService
	events      events.Publisher
	log         *zap.Logger
}

// NewLoginService wires the credential checker, session manager and token issuer together.
func NewLoginService(credentials CredentialChecker, sessions *SessionManager, tokens *JWTService, publisher events.Publisher) (*LoginService, error) {
	if credentials == nil {
		return nil, errors.New("login service: credential checker is required")
	}
	if sessions == nil {
		return nil, errors.New("login service: session manager is required")
	}
	if tokens == nil {
		return nil, errors.New("login service: jwt service is required")
	}
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &LoginService{
		credentials: credentials,
		sessions:    sessions,
		tokens:      tokens,
		events:      publisher,
		log:         logger.WithModule("auth"),
	}, nil
}

// CheckCredentials verifies the identifier/secret pair. Unknown identifiers, wrong secrets, locked
// and disabled accounts are indistinguishable; only store failures return an error.
func (s *LoginService) CheckCredentials(ctx context.Context, identifier, secret string) (CredentialResult, error) {
	return s.checkCredentials(ctx, LoginRequest{Identifier: identifier, Secret: secret})
}

func (s *LoginService) checkCredentials(ctx context.Context, req LoginRequest) (CredentialResult, error) {
	user, err := s.credentials.Authenticate(ctx, providers.AuthenticateInput{
		Identifier: req.Identifier,
		Password:   req.Secret,
		IPAddress:  req.IPAddress,
		UserAgent:  req.UserAgent,
	})
	switch {
	case err == nil:
		return CredentialResult{OK: true, User: user}, nil
	case errors.Is(err, providers.ErrInvalidCredentials),
		errors.Is(err, providers.ErrAccountLocked),
		errors.Is(err, providers.ErrAccountDisabled):
		s.publish(ctx, req, events.Event{Type: events.LoginFailed, Username: strings.TrimSpace(req.Identifier), Reason: rejectionReason(err)})
		return CredentialResult{}, nil
	default:
		return CredentialResult{}, fmt.Errorf("login service: check credentials: %w", err)
	}
}

// AttemptLogin signs the user in unless an enforced-role account already holds a live session,
// in which case it reports a conflict without touching the existing session.
func (s *LoginService) AttemptLogin(ctx context.Context, req LoginRequest) (LoginResult, error) {
	ctx, cancel := detached(ctx)
	defer cancel()

	result, err := s.attemptLogin(ctx, req)
	s.observe("login", result, err)
	return result, err
}

func (s *LoginService) attemptLogin(ctx context.Context, req LoginRequest) (LoginResult, error) {
	creds, err := s.checkCredentials(ctx, req)
	if err != nil {
		return LoginResult{}, err
	}
	if !creds.OK {
		return LoginResult{Outcome: OutcomeCredentialsInvalid}, nil
	}
	user := creds.User

	var session Session
	if models.EnforcesSingleSession(user.Role) {
		if user.SessionState().IsActive() {
			return s.conflict(ctx, req, user), nil
		}
		session, err = s.sessions.claimSession(ctx, user)
		if errors.Is(err, errSessionClaimed) {
			return s.conflict(ctx, req, user), nil
		}
	} else {
		session, err = s.sessions.CreateSession(ctx, user.ID)
	}
	if err != nil {
		return LoginResult{}, err
	}

	return s.issue(ctx, user, session)
}

// ForceLogin re-verifies the credentials, ends the existing session and starts a new one.
// When the other session has already ended it reports OutcomeNoConflictToForce.
func (s *LoginService) ForceLogin(ctx context.Context, req LoginRequest) (LoginResult, error) {
	ctx, cancel := detached(ctx)
	defer cancel()

	result, err := s.forceLogin(ctx, req)
	s.observe("force_login", result, err)
	return result, err
}

func (s *LoginService) forceLogin(ctx context.Context, req LoginRequest) (LoginResult, error) {
	creds, err := s.checkCredentials(ctx, req)
	if err != nil {
		return LoginResult{}, err
	}
	if !creds.OK {
		return LoginResult{Outcome: OutcomeCredentialsInvalid}, nil
	}
	user := creds.User

	if !user.SessionState().IsActive() {
		return LoginResult{Outcome: OutcomeNoConflictToForce, User: user}, nil
	}

	if err := s.sessions.endSession(ctx, user.ID, events.ReasonForced); err != nil {
		return LoginResult{}, err
	}
	session, err := s.sessions.CreateSession(ctx, user.ID)
	if err != nil {
		return LoginResult{}, err
	}

	s.publish(ctx, req, events.Event{
		Type:     events.SessionForced,
		UserID:   user.ID,
		Username: user.Username,
		Role:     user.Role,
	})
	s.log.Info("forced login displaced existing session", zap.String("user_id", user.ID))

	return s.issue(ctx, user, session)
}

// SessionStatus reports whether the account currently holds a live session. Unknown identifiers
// report an inactive student so the endpoint does not reveal which accounts exist.
func (s *LoginService) SessionStatus(ctx context.Context, identifier string) (SessionStatus, error) {
	user, err := s.credentials.Lookup(ctx, identifier)
	if errors.Is(err, providers.ErrUserNotFound) {
		return SessionStatus{IsActive: false, Role: models.RoleStudent}, nil
	}
	if err != nil {
		return SessionStatus{}, fmt.Errorf("login service: session status: %w", err)
	}
	return SessionStatus{IsActive: user.SessionState().IsActive(), Role: user.Role}, nil
}

// Logout schedules the session for delayed cleanup; the session stays live until the next
// hourly cleanup run.
func (s *LoginService) Logout(ctx context.Context, userID string) error {
	return s.sessions.ScheduleDelayedLogoutCleanup(ctx, userID)
}

// TokenTTL is the lifetime of issued session tokens.
func (s *LoginService) TokenTTL() time.Duration {
	return s.tokens.TTL()
}

func (s *LoginService) issue(ctx context.Context, user *models.User, session Session) (LoginResult, error) {
	token, err := s.tokens.GenerateAccessToken(AccessTokenInput{
		UserID:    user.ID,
		SessionID: session.Handle,
		Role:      user.Role,
	})
	if err != nil {
		if !session.Joined {
			if endErr := s.sessions.EndSession(ctx, user.ID); endErr != nil {
				s.log.Error("failed to release session after token error", zap.String("user_id", user.ID), zap.Error(endErr))
			}
		}
		return LoginResult{}, fmt.Errorf("login service: issue token: %w", err)
	}

	return LoginResult{
		Outcome: OutcomeSessionCreated,
		Token:   token,
		Session: session,
		User:    user,
	}, nil
}

func (s *LoginService) conflict(ctx context.Context, req LoginRequest, user *models.User) LoginResult {
	s.publish(ctx, req, events.Event{
		Type:     events.SessionConflict,
		UserID:   user.ID,
		Username: user.Username,
		Role:     user.Role,
	})
	return LoginResult{Outcome: OutcomeConflictDetected, User: user}
}

func (s *LoginService) publish(ctx context.Context, req LoginRequest, event events.Event) {
	event.IPAddress = req.IPAddress
	event.UserAgent = req.UserAgent
	if event.OccurredAt.IsZero() {
		event.OccurredAt = s.sessions.now()
	}
	if err := s.events.Publish(ctx, event); err != nil {
		s.log.Warn("login event delivery failed", zap.String("event", string(event.Type)), zap.Error(err))
	}
}

func (s *LoginService) observe(endpoint string, result LoginResult, err error) {
	outcome := result.Outcome.String()
	if err != nil {
		outcome = "ERROR"
	}
	metrics.LoginOutcomes.WithLabelValues(endpoint, outcome).Inc()
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, providers.ErrAccountLocked):
		return "locked"
	case errors.Is(err, providers.ErrAccountDisabled):
		return "disabled"
	default:
		return "invalid_credentials"
	}
}
