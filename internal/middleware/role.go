package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/learnhub/learnhub/internal/models"
	"github.com/learnhub/learnhub/pkg/errors"
	"github.com/learnhub/learnhub/pkg/response"
)

// RequireRole allows the request through only when the authenticated user holds one of the
// supplied roles. It must run after Auth.
func RequireRole(roles ...models.Role) gin.HandlerFunc {
	allowed := make(map[models.Role]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}

	return func(c *gin.Context) {
		value, ok := c.Get(CtxRoleKey)
		if !ok {
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}
		role, _ := value.(models.Role)
		if _, ok := allowed[role]; !ok {
			response.Error(c, errors.ErrForbidden)
			c.Abort()
			return
		}
		c.Next()
	}
}
