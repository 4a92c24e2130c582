package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	iauth "github.com/learnhub/learnhub/internal/auth"
	"github.com/learnhub/learnhub/internal/middleware"
	"github.com/learnhub/learnhub/internal/models"
	appErrors "github.com/learnhub/learnhub/pkg/errors"
	"github.com/learnhub/learnhub/pkg/logger"
	"github.com/learnhub/learnhub/pkg/response"
)

// AdminSessionHandler lets administrators inspect and end live sessions.
type AdminSessionHandler struct {
	sessions *iauth.SessionManager
	log      *zap.Logger
}

// NewAdminSessionHandler constructs an AdminSessionHandler.
func NewAdminSessionHandler(sessions *iauth.SessionManager) (*AdminSessionHandler, error) {
	if sessions == nil {
		return nil, errors.New("admin session handler: session manager is required")
	}
	return &AdminSessionHandler{sessions: sessions, log: logger.WithModule("http.admin")}, nil
}

type activeSessionPayload struct {
	UserID            string      `json:"user_id"`
	Username          string      `json:"username"`
	Email             string      `json:"email"`
	Role              models.Role `json:"role"`
	Since             *time.Time  `json:"since,omitempty"`
	LogoutScheduledAt *time.Time  `json:"logout_scheduled_at,omitempty"`
}

// ListActive handles GET /api/admin/sessions?role=.
func (h *AdminSessionHandler) ListActive(c *gin.Context) {
	var filter *models.Role
	if raw := strings.TrimSpace(c.Query("role")); raw != "" {
		role, err := models.ParseRole(raw)
		if err != nil {
			response.Error(c, appErrors.NewBadRequest("role must be one of: student, teacher, admin"))
			return
		}
		filter = &role
	}

	users, err := h.sessions.ListActive(requestContext(c), filter)
	if err != nil {
		h.log.Error("list active sessions failed", zap.Error(err))
		response.Error(c, appErrors.ErrInternalServer)
		return
	}

	payload := make([]activeSessionPayload, 0, len(users))
	for _, user := range users {
		payload = append(payload, activeSessionPayload{
			UserID:            user.ID,
			Username:          user.Username,
			Email:             user.Email,
			Role:              user.Role,
			Since:             user.LastLoginAt,
			LogoutScheduledAt: user.LogoutScheduledAt,
		})
	}
	response.SuccessWithMeta(c, http.StatusOK, payload, &response.Meta{Total: len(payload)})
}

// End handles POST /api/admin/users/:id/sessions/end. Ending an already ended session succeeds.
func (h *AdminSessionHandler) End(c *gin.Context) {
	userID := strings.TrimSpace(c.Param("id"))
	if userID == "" {
		response.Error(c, appErrors.NewBadRequest("user id is required"))
		return
	}

	if err := h.sessions.EndSession(requestContext(c), userID); err != nil {
		h.log.Error("end session failed", zap.String("user_id", userID), zap.Error(err))
		response.Error(c, appErrors.ErrInternalServer)
		return
	}

	h.log.Info("session ended by administrator",
		zap.String("user_id", userID),
		zap.String("admin_id", c.GetString(middleware.CtxUserIDKey)),
	)
	response.Success(c, http.StatusOK, gin.H{"ended": true})
}
