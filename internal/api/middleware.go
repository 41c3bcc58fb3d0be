package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
)

const (
	requestIDHeader = "X-Request-ID"
	requestIDKey    = "request_id"
)

// RequestLoggingMiddleware tags each request with an X-Request-ID, echoing the
// caller's when present, and logs the outcome under that id.
func RequestLoggingMiddleware(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		reqID := c.GetHeader(requestIDHeader)
		if reqID == "" {
			reqID = ulid.Make().String()
		}
		c.Set(requestIDKey, reqID)
		c.Header(requestIDHeader, reqID)

		c.Next()

		logger.WithFields(logrus.Fields{
			requestIDKey: reqID,
			"method":     c.Request.Method,
			"route":      c.FullPath(),
			"status":     c.Writer.Status(),
			"latency_ms": time.Since(start).Milliseconds(),
			"client_ip":  c.ClientIP(),
		}).Info("Request handled")
	}
}
