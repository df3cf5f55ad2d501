package nbi

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/signalsfoundry/geofence-simulator/internal/logging"
)

const requestIDHeader = "X-Request-ID"

// RequestIDMiddleware ensures a request_id is present on the request
// context, taking it from the X-Request-ID header when the caller supplies
// one, echoes it on the response, and attaches a per-request logger
// annotated with request_id, method and route.
func RequestIDMiddleware(base logging.Logger) gin.HandlerFunc {
	if base == nil {
		base = logging.Noop()
	}
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		if incoming := strings.TrimSpace(c.GetHeader(requestIDHeader)); incoming != "" {
			ctx = logging.ContextWithRequestID(ctx, incoming)
		}

		ctx, reqLog := logging.WithRequestLogger(ctx, base.With(
			logging.String("method", c.Request.Method),
			logging.String("route", routeOf(c)),
		))
		ctx = logging.ContextWithLogger(ctx, reqLog)
		c.Request = c.Request.WithContext(ctx)
		c.Header(requestIDHeader, logging.RequestIDFromContext(ctx))

		c.Next()
	}
}

// LoggingMiddleware logs end-to-end request duration, status and response
// size with the request-scoped logger.
func LoggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		ctx := c.Request.Context()
		logging.FromContextOr(ctx, nil).Info(ctx, "http request",
			logging.String("path", c.Request.URL.RequestURI()),
			logging.Int("status", c.Writer.Status()),
			logging.Int("bytes", c.Writer.Size()),
			logging.Duration("duration", time.Since(start)),
		)
	}
}

// CORSMiddleware allows every origin, as observers are served from
// arbitrary hosts.
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type, Accept, "+requestIDHeader)
		h.Set("Access-Control-Expose-Headers", requestIDHeader)
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func routeOf(c *gin.Context) string {
	if route := c.FullPath(); route != "" {
		return route
	}
	return "unmatched"
}
