package middleware

import (
	"fmt"
	"net/http"
	"slices"
	"strings"

	"github.com/gin-gonic/gin"
)

// RequireRole admits tokens whose role claim is one of roles. It must run
// after OAuth2Auth.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := c.Get(UserIDKey); !ok {
			respondWithBearerError(c, "invalid_token", "Access token required")
			return
		}

		role := c.GetString(RoleKey)
		if !slices.Contains(roles, role) {
			c.JSON(http.StatusForbidden, gin.H{
				"error":             "insufficient_role",
				"error_description": fmt.Sprintf("Role %q may not access this resource (requires %s)", role, strings.Join(roles, " or ")),
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
