package server

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/compas-coach/compas/internal/logging"
)

const (
	passcodeHeader  = "X-PASSCODE"
	passcodeQuery   = "passcode"
	requestIDHeader = "X-Request-ID"
	requestIDKey    = "request_id"
)

// PasscodeMiddleware rejects requests whose X-PASSCODE header (or passcode
// query parameter) does not match. An empty passcode disables the check.
func PasscodeMiddleware(passcode string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if passcode == "" {
			c.Next()
			return
		}
		got := c.GetHeader(passcodeHeader)
		if got == "" {
			got = c.Query(passcodeQuery)
		}
		if subtle.ConstantTimeCompare([]byte(got), []byte(passcode)) != 1 {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorised"})
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequestIDMiddleware tags each request with an id, reusing the caller's
// X-Request-ID when present.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

// AccessLogMiddleware logs one line per request.
func AccessLogMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logging.Logger().Info(
			"http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start).Round(time.Millisecond),
			"request_id", c.GetString(requestIDKey),
		)
	}
}
