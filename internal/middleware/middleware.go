package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	HeaderUserID    = "X-User-ID"
	HeaderRequestID = "X-Request-ID"

	ctxUserID    = "userID"
	ctxRequestID = "requestID"
)

// RequestID tags every request with an id, reusing the caller's if present.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(ctxRequestID, id)
		c.Header(HeaderRequestID, id)
		c.Next()
	}
}

// RequireUser reads the opaque user id set by the upstream gateway. Requests
// without one are rejected.
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := strings.TrimSpace(c.GetHeader(HeaderUserID))
		if userID == "" {
			log.Warn().Str("path", c.Request.URL.Path).Str("requestID", GetRequestID(c)).Msg("Request without user id")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing " + HeaderUserID + " header"})
			return
		}
		c.Set(ctxUserID, userID)
		c.Next()
	}
}

func GetUserID(c *gin.Context) string {
	return c.GetString(ctxUserID)
}

func GetRequestID(c *gin.Context) string {
	return c.GetString(ctxRequestID)
}
