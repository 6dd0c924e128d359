// internal/middleware/middleware.go
package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"challenge-orchestrator/internal/client"
)

// RequestID assigns a correlation id to every request, honoring one supplied
// by the caller, and threads it through the request context so outbound
// collaborator calls carry it.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(client.CorrelationHeader)
		if id == "" {
			id = uuid.New().String()
		}
		c.Header(client.CorrelationHeader, id)
		c.Request = c.Request.WithContext(client.WithCorrelationID(c.Request.Context(), id))
		c.Next()
	}
}

// Logger logs one line per request with latency and status.
func Logger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		log.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("correlation_id", client.CorrelationID(c.Request.Context())))
	}
}

// Recovery converts panics into 500s instead of dropping the connection.
func Recovery(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error("panic recovered",
					zap.Any("panic", r),
					zap.String("path", c.Request.URL.Path))
				c.AbortWithStatusJSON(500, gin.H{"error": "internal server error"})
			}
		}()
		c.Next()
	}
}
