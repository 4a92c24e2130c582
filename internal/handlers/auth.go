package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	iauth "github.com/learnhub/learnhub/internal/auth"
	"github.com/learnhub/learnhub/internal/middleware"
	"github.com/learnhub/learnhub/internal/models"
	appErrors "github.com/learnhub/learnhub/pkg/errors"
	"github.com/learnhub/learnhub/pkg/logger"
	"github.com/learnhub/learnhub/pkg/response"
)

// AuthHandler exposes the login conflict protocol over HTTP.
type AuthHandler struct {
	login *iauth.LoginService
	log   *zap.Logger
}

// NewAuthHandler constructs an AuthHandler.
func NewAuthHandler(login *iauth.LoginService) (*AuthHandler, error) {
	if login == nil {
		return nil, errors.New("auth handler: login service is required")
	}
	return &AuthHandler{login: login, log: logger.WithModule("http.auth")}, nil
}

type credentialsRequest struct {
	Identifier string `json:"identifier" validate:"required,notblank,max=254"`
	Secret     string `json:"secret" validate:"required,max=1024"`
}

type userPayload struct {
	ID       string      `json:"id"`
	Username string      `json:"username"`
	Email    string      `json:"email"`
	FullName string      `json:"full_name"`
	Role     models.Role `json:"role"`
}

type loginResponse struct {
	SessionToken string      `json:"session_token"`
	ExpiresIn    int         `json:"expires_in"`
	User         userPayload `json:"user"`
}

// Login handles POST /api/auth/login.
func (h *AuthHandler) Login(c *gin.Context) {
	h.handle(c, "login", h.login.AttemptLogin)
}

// ForceLogin handles POST /api/auth/force-login. It is only meaningful after Login reported a
// conflict; the credentials are checked again before the other session is ended.
func (h *AuthHandler) ForceLogin(c *gin.Context) {
	h.handle(c, "force_login", h.login.ForceLogin)
}

func (h *AuthHandler) handle(c *gin.Context, op string, run func(ctx context.Context, req iauth.LoginRequest) (iauth.LoginResult, error)) {
	var body credentialsRequest
	if !bindAndValidate(c, &body) {
		return
	}

	result, err := run(requestContext(c), iauth.LoginRequest{
		Identifier: strings.TrimSpace(body.Identifier),
		Secret:     body.Secret,
		IPAddress:  c.ClientIP(),
		UserAgent:  c.Request.UserAgent(),
	})
	if err != nil {
		h.log.Error("login failed", zap.String("op", op), zap.Error(err))
		response.Error(c, appErrors.ErrInternalServer)
		return
	}

	switch result.Outcome {
	case iauth.OutcomeSessionCreated:
		response.Success(c, http.StatusOK, loginResponse{
			SessionToken: result.Token,
			ExpiresIn:    h.expiresIn(),
			User:         toUserPayload(result.User),
		})
	case iauth.OutcomeConflictDetected:
		response.ErrorWithData(c, appErrors.ErrSessionConflict, gin.H{
			"conflict":   true,
			"identifier": strings.TrimSpace(body.Identifier),
		})
	case iauth.OutcomeNoConflictToForce:
		response.ErrorWithData(c, appErrors.ErrNoConflictToForce, gin.H{"no_conflict": true})
	case iauth.OutcomeCredentialsInvalid:
		response.ErrorWithData(c, appErrors.ErrInvalidCredentials, gin.H{"invalid": true})
	default:
		h.log.Error("unexpected login outcome", zap.String("op", op), zap.Stringer("outcome", result.Outcome))
		response.Error(c, appErrors.ErrInternalServer)
	}
}

func (h *AuthHandler) expiresIn() int {
	return int(h.login.TokenTTL().Seconds())
}

// Logout handles POST /api/auth/logout. The session is scheduled for cleanup rather than ended,
// so the response never depends on whether the cleanup has happened yet.
func (h *AuthHandler) Logout(c *gin.Context) {
	userID := c.GetString(middleware.CtxUserIDKey)
	if userID == "" {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	if err := h.login.Logout(requestContext(c), userID); err != nil {
		h.log.Error("schedule logout failed", zap.String("user_id", userID), zap.Error(err))
		response.Error(c, appErrors.ErrInternalServer)
		return
	}
	response.Success(c, http.StatusOK, gin.H{})
}

// SessionStatus handles GET /api/auth/session-status?identifier=.
func (h *AuthHandler) SessionStatus(c *gin.Context) {
	identifier := strings.TrimSpace(c.Query("identifier"))
	if identifier == "" {
		response.Error(c, appErrors.NewBadRequest("identifier is required"))
		return
	}

	status, err := h.login.SessionStatus(requestContext(c), identifier)
	if err != nil {
		h.log.Error("session status lookup failed", zap.Error(err))
		response.Error(c, appErrors.ErrInternalServer)
		return
	}
	response.Success(c, http.StatusOK, gin.H{
		"is_active": status.IsActive,
		"role":      status.Role,
	})
}

// Me returns the principal attached to the validated session.
func (h *AuthHandler) Me(c *gin.Context) {
	value, ok := c.Get(middleware.CtxPrincipalKey)
	principal, _ := value.(*iauth.Principal)
	if !ok || principal == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	response.Success(c, http.StatusOK, principal)
}

func toUserPayload(user *models.User) userPayload {
	if user == nil {
		return userPayload{}
	}
	return userPayload{
		ID:       user.ID,
		Username: user.Username,
		Email:    user.Email,
		FullName: user.FullName,
		Role:     user.Role,
	}
}
