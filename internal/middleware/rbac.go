package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/edu-portal-api/internal/models"
	appErrors "github.com/noah-isme/edu-portal-api/pkg/errors"
	"github.com/noah-isme/edu-portal-api/pkg/response"
)

// RequireRoles lets the request through when the caller holds any of roles.
func RequireRoles(roles ...models.UserRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := ClaimsFrom(c)
		if !ok {
			response.Error(c, appErrors.ErrUnauthenticated)
			c.Abort()
			return
		}

		user := claims.ActingUser()
		for _, role := range roles {
			if user.HasRole(role) {
				c.Next()
				return
			}
		}

		response.Error(c, appErrors.ErrUnauthorized)
		c.Abort()
	}
}

// RequireReviewer admits admins and chapter leads. Chapter scoping is enforced per subject
// by the services.
func RequireReviewer() gin.HandlerFunc {
	return RequireRoles(models.RoleAdmin, models.RoleChapterLead)
}
