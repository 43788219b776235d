package logging

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

var requestLogEnabled atomic.Bool

// SetRequestLogEnabled toggles per-request access log lines. Error and
// warning lines for failed requests are emitted regardless.
func SetRequestLogEnabled(enabled bool) {
	requestLogEnabled.Store(enabled)
}

// GinLogrusLogger returns a Gin middleware handler that logs HTTP requests
// and responses using logrus. It captures request details including method,
// path, status code, latency and client IP, and attaches structured fields
// for downstream analysis. A request ID is derived from the X-Request-Id
// header (or generated) and propagated via the response headers.
func GinLogrusLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		requestID := c.Request.Header.Get("X-Request-Id")
		if strings.TrimSpace(requestID) == "" {
			requestID = uuid.NewString()
		}
		c.Set("request_id", requestID)
		c.Writer.Header().Set("X-Request-Id", requestID)

		c.Next()

		latency := time.Since(start)
		if latency > time.Minute {
			latency = latency.Truncate(time.Second)
		} else {
			latency = latency.Truncate(time.Millisecond)
		}

		statusCode := c.Writer.Status()
		clientIP := c.ClientIP()
		method := c.Request.Method

		errorMessage := c.Errors.ByType(gin.ErrorTypePrivate).String()
		timestamp := time.Now().Format("2006/01/02 - 15:04:05")
		logLine := fmt.Sprintf("[GIN] %s | %3d | %13v | %15s | %-7s %q", timestamp, statusCode, latency, clientIP, method, path)
		if errorMessage != "" {
			logLine = logLine + " | " + errorMessage
		}

		entry := log.WithFields(log.Fields{
			"status":     statusCode,
			"latency_ms": latency.Milliseconds(),
			"client_ip":  clientIP,
			"method":     method,
			"path":       path,
			"request_id": requestID,
		})
		switch {
		case statusCode >= http.StatusInternalServerError:
			entry.Error(logLine)
		case statusCode >= http.StatusBadRequest:
			entry.Warn(logLine)
		case requestLogEnabled.Load():
			entry.Info(logLine)
		}
	}
}

// GinLogrusRecovery returns a Gin middleware handler that recovers from
// panics and logs them using logrus, returning a 500 to the client.
func GinLogrusRecovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		log.WithFields(log.Fields{
			"panic": recovered,
			"stack": string(debug.Stack()),
			"path":  c.Request.URL.Path,
		}).Error("recovered from panic")

		c.AbortWithStatus(http.StatusInternalServerError)
	})
}

// GetGinRequestID returns the request ID stored on the Gin context by
// GinLogrusLogger, or an empty string when absent.
func GetGinRequestID(c *gin.Context) string {
	if c == nil {
		return ""
	}
	if v, ok := c.Get("request_id"); ok {
		if id, okStr := v.(string); okStr {
			return id
		}
	}
	return ""
}
