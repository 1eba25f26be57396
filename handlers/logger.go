package handlers

import (
	"net/http"
	"strconv"
	"time"

	"tutorbook/middleware"
	"tutorbook/models"
	"tutorbook/services/booking"
	"tutorbook/utils"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// getLogger returns the process logger tagged with the request route.
func getLogger(c *gin.Context) *zap.Logger {
	return utils.GetLogger().With(zap.String("path", c.FullPath()), zap.String("method", c.Request.Method))
}

// callerFrom reads the identity JWTAuthMiddleware stored on the context.
func callerFrom(c *gin.Context) (booking.Caller, bool) {
	subject := c.GetString(middleware.SubjectKey)
	role, _ := c.Get(middleware.RoleKey)
	actor, ok := role.(models.Actor)
	if subject == "" || !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
		return booking.Caller{}, false
	}
	return booking.Caller{ID: subject, Role: actor}, true
}

func bindJSON(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		utils.JSONError(c, http.StatusBadRequest, utils.KindValidation, "invalid request payload: "+err.Error())
		return false
	}
	return true
}

func queryTime(c *gin.Context, key string) (time.Time, bool) {
	raw := c.Query(key)
	if raw == "" {
		return time.Time{}, true
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		utils.JSONError(c, http.StatusBadRequest, utils.KindValidation, key+" must be RFC3339")
		return time.Time{}, false
	}
	return t, true
}

func queryInt(c *gin.Context, key string, def int) int {
	n, err := strconv.Atoi(c.Query(key))
	if err != nil || n <= 0 {
		return def
	}
	return n
}
