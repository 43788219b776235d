// Package middleware provides HTTP middleware components for the LingoRelay
// server. This file contains Prometheus metrics middleware for observability.
package middleware

import (
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lingorelay/lingorelay/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// httpRequestsTotal counts the total number of HTTP requests processed.
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lingorelay_http_requests_total",
			Help: "Total number of HTTP requests processed",
		},
		[]string{"method", "path", "status"},
	)

	// httpRequestDurationSeconds tracks the duration of HTTP requests.
	httpRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lingorelay_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// activeConnections tracks the number of currently active connections.
	activeConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "lingorelay_active_connections",
			Help: "Number of currently active HTTP connections",
		},
	)

	// httpMetricsRegistered ensures HTTP collectors are only registered once.
	httpMetricsRegistered atomic.Bool
)

// registerHTTPMetrics registers the HTTP collectors alongside the lifecycle
// collectors. Safe to call multiple times.
func registerHTTPMetrics() {
	metrics.Register()
	if !httpMetricsRegistered.CompareAndSwap(false, true) {
		return
	}
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDurationSeconds,
		activeConnections,
	)
}

// PrometheusMiddleware records request counts, latency, and in-flight
// connections. It is a no-op while metrics are disabled.
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !metrics.Enabled() {
			c.Next()
			return
		}
		registerHTTPMetrics()

		start := time.Now()
		path := normalizePath(c.Request.URL.Path)
		method := c.Request.Method

		activeConnections.Inc()
		defer activeConnections.Dec()

		c.Next()

		status := strconv.Itoa(c.Writer.Status())
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpRequestDurationSeconds.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	}
}

// normalizePath normalizes URL paths to prevent high cardinality in metrics.
func normalizePath(path string) string {
	switch {
	case path == "/":
		return "/"
	case path == "/healthz":
		return "/healthz"
	case path == "/metrics":
		return "/metrics"
	case path == "/v1/models" || path == "/models":
		return "/v1/models"
	case path == "/v1/chat/completions" || path == "/chat/completions":
		return "/v1/chat/completions"
	default:
		if len(path) > 50 {
			return path[:50] + "..."
		}
		return path
	}
}

// MetricsHandler returns the Prometheus HTTP handler for the /metrics
// endpoint. It answers 404 while metrics are disabled.
func MetricsHandler() gin.HandlerFunc {
	handler := promhttp.Handler()
	return func(c *gin.Context) {
		if !metrics.Enabled() {
			c.AbortWithStatus(http.StatusNotFound)
			return
		}
		registerHTTPMetrics()
		handler.ServeHTTP(c.Writer, c.Request)
	}
}
