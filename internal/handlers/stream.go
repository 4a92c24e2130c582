package handlers

import (
	"errors"

	"github.com/gin-gonic/gin"

	iauth "github.com/learnhub/learnhub/internal/auth"
	"github.com/learnhub/learnhub/internal/events"
	"github.com/learnhub/learnhub/internal/middleware"
	"github.com/learnhub/learnhub/internal/realtime"
	appErrors "github.com/learnhub/learnhub/pkg/errors"
	"github.com/learnhub/learnhub/pkg/response"
)

// StreamHandler upgrades authenticated requests into the session notice stream.
type StreamHandler struct {
	hub *realtime.Hub
}

// NewStreamHandler constructs a StreamHandler.
func NewStreamHandler(hub *realtime.Hub) (*StreamHandler, error) {
	if hub == nil {
		return nil, errors.New("stream handler: hub is required")
	}
	return &StreamHandler{hub: hub}, nil
}

// Stream handles GET /api/auth/stream. It must run after Auth so the session handle in
// the context is known to be live.
func (h *StreamHandler) Stream(c *gin.Context) {
	userID := c.GetString(middleware.CtxUserIDKey)
	anchor, _, err := iauth.ParseSessionHandle(c.GetString(middleware.CtxSessionIDKey))
	if userID == "" || err != nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	h.hub.Serve(userID, events.SessionRef(anchor), c.Writer, c.Request)
}
