package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/learnhub/learnhub/internal/services"
	appErrors "github.com/learnhub/learnhub/pkg/errors"
	"github.com/learnhub/learnhub/pkg/response"
)

type AuditHandler struct {
	svc *services.AuditService
}

func NewAuditHandler(svc *services.AuditService) (*AuditHandler, error) {
	if svc == nil {
		return nil, errors.New("audit handler: service is required")
	}
	return &AuditHandler{svc: svc}, nil
}

// GET /api/admin/audit
func (h *AuditHandler) List(c *gin.Context) {
	page := parseIntQuery(c, "page", 1)
	per := parseIntQuery(c, "per_page", 50)

	var filters services.AuditFilters
	filters.UserID = c.Query("user_id")
	filters.Action = c.Query("action")
	filters.Result = c.Query("result")

	if s := c.Query("since"); s != "" {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			filters.Since = &t
		}
	}
	if u := c.Query("until"); u != "" {
		if t, err := time.Parse(time.RFC3339, u); err == nil {
			filters.Until = &t
		}
	}

	logs, total, err := h.svc.List(requestContext(c), services.AuditListOptions{Page: page, PageSize: per, Filters: filters})
	if err != nil {
		response.Error(c, appErrors.ErrInternalServer)
		return
	}

	response.SuccessWithMeta(c, http.StatusOK, logs, &response.Meta{Page: page, PerPage: per, Total: int(total)})
}
