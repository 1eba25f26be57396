package middleware

import (
	"net/http"
	"slices"

	"tutorbook/models"

	"github.com/gin-gonic/gin"
)

// RequireRole lets the request through only for the given roles. It must
// run after JWTAuthMiddleware.
func RequireRole(roles ...models.Actor) gin.HandlerFunc {
	return func(c *gin.Context) {
		role, _ := c.Get(RoleKey)
		actor, ok := role.(models.Actor)
		if !ok || !slices.Contains(roles, actor) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "This endpoint is not available for your role"})
			return
		}
		c.Next()
	}
}
