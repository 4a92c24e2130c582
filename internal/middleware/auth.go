package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	iauth "github.com/learnhub/learnhub/internal/auth"
	"github.com/learnhub/learnhub/pkg/errors"
	"github.com/learnhub/learnhub/pkg/logger"
	"github.com/learnhub/learnhub/pkg/response"
)

const (
	CtxClaimsKey    = "authClaims"
	CtxUserIDKey    = "userID"
	CtxSessionIDKey = "sessionID"
	CtxRoleKey      = "role"
	CtxPrincipalKey = "authUser"
)

// SessionValidator checks that a session handle still belongs to a live session.
type SessionValidator interface {
	ValidateSession(ctx context.Context, handle string) (iauth.Validation, error)
}

// Auth enforces JWT authentication and confirms the embedded session handle is still live.
// A token whose session has been replaced or ended is rejected with SESSION_EXPIRED even
// while its signature and expiry are valid.
func Auth(jwt *iauth.JWTService, sessions SessionValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			c.Header("WWW-Authenticate", "Bearer")
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}

		claims, err := jwt.ValidateAccessToken(token)
		if err != nil {
			// Normalise all validation failures to 401
			c.Header("WWW-Authenticate", "Bearer")
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}

		validation, err := sessions.ValidateSession(c.Request.Context(), claims.SessionID)
		if err != nil {
			logger.WithModule("http").Error("session validation failed",
				zap.String("user_id", claims.UserID),
				zap.Error(err),
			)
			response.Error(c, errors.ErrInternalServer)
			c.Abort()
			return
		}
		if !validation.Valid || validation.Principal == nil || validation.Principal.UserID != claims.UserID {
			response.Error(c, errors.ErrSessionExpired)
			c.Abort()
			return
		}

		// Propagate identity into request context
		c.Set(CtxClaimsKey, claims)
		c.Set(CtxUserIDKey, claims.UserID)
		c.Set(CtxSessionIDKey, claims.SessionID)
		c.Set(CtxRoleKey, validation.Principal.Role)
		c.Set(CtxPrincipalKey, validation.Principal)

		c.Next()
	}
}

// bearerToken reads the Authorization header. Browsers cannot set headers on WebSocket
// upgrades, so those requests may carry the token in the access_token query parameter.
func bearerToken(c *gin.Context) (string, bool) {
	authz := c.GetHeader("Authorization")
	if len(authz) >= 8 && strings.EqualFold(authz[:7], "Bearer ") {
		token := strings.TrimSpace(authz[7:])
		return token, token != ""
	}

	if strings.EqualFold(c.GetHeader("Upgrade"), "websocket") {
		token := strings.TrimSpace(c.Query("access_token"))
		return token, token != ""
	}
	return "", false
}
