package middleware

import (
	"net/http"
	"strings"

	"tutorbook/models"
	"tutorbook/utils"

	"github.com/gin-gonic/gin"
)

// Context keys set by JWTAuthMiddleware.
const (
	SubjectKey = "subjectID"
	RoleKey    = "role"
)

// JWTAuthMiddleware validates the bearer token issued by the identity
// service and stores its subject and role on the context.
func JWTAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Missing or invalid Authorization header"})
			return
		}
		tokenString := strings.TrimPrefix(authHeader, "Bearer ")

		subject, role, err := utils.ExtractIdentity(tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			return
		}
		switch models.Actor(role) {
		case models.ActorLearner, models.ActorTutor, models.ActorOperator:
		default:
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unknown role in token"})
			return
		}

		c.Set(SubjectKey, subject)
		c.Set(RoleKey, models.Actor(role))
		c.Next()
	}
}
