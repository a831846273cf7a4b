package server

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"call-insights-go/internal/logger"
	"call-insights-go/internal/metrics"
)

const requestIDKey = "request_id"

// requestLogger tags the request with an id, then logs and counts it once the
// handler chain is done.
func requestLogger(log *logger.Logger, m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		reqID := logger.RequestID(c.Request)
		c.Set(requestIDKey, reqID)
		c.Header(logger.RequestIDHeader, reqID)

		start := time.Now()
		c.Next()
		elapsed := time.Since(start)

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		m.HTTPRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).Inc()
		m.HTTPRequestDuration.WithLabelValues(c.Request.Method, route).Observe(elapsed.Seconds())

		entry := log.WithRequest(c.Request, reqID).
			WithField("status", status).
			WithField("duration_ms", elapsed.Milliseconds())
		switch {
		case status >= http.StatusInternalServerError:
			entry.Error("request failed")
		case status >= http.StatusBadRequest:
			entry.Warn("request rejected")
		case route == "/healthz" || route == "/metrics":
			entry.Debug("request served")
		default:
			entry.Info("request served")
		}
	}
}

// recovery turns a handler panic into the failure envelope.
func recovery(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				log.WithField("error", fmt.Sprintf("%v", err)).
					WithField("stack", string(debug.Stack())).
					WithField("path", c.Request.URL.Path).
					WithField("method", c.Request.Method).
					Error("panic recovered")
				c.AbortWithStatusJSON(http.StatusInternalServerError, failure("Internal server error"))
			}
		}()
		c.Next()
	}
}

// cors allows every origin, method and header.
func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "*")
		h.Set("Access-Control-Expose-Headers", logger.RequestIDHeader+", Content-Disposition")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
