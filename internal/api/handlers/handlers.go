// Package handlers provides the shared API handler functionality for the
// LingoRelay server: the base handler wiring, the OpenAI-compatible error
// envelope, and keep-alive helpers used across endpoint handlers.
package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lingorelay/lingorelay/internal/backend"
	"github.com/lingorelay/lingorelay/internal/config"
	"github.com/lingorelay/lingorelay/internal/interfaces"
	"github.com/lingorelay/lingorelay/internal/metrics"
	"github.com/lingorelay/lingorelay/internal/pipeline"
	"golang.org/x/net/context"
)

// ErrorResponse represents a standard error response format for the API.
type ErrorResponse struct {
	// Error contains detailed information about the error that occurred.
	Error ErrorDetail `json:"error"`
}

// ErrorDetail provides specific information about an error that occurred.
type ErrorDetail struct {
	// Message is a human-readable message providing more details about the error.
	Message string `json:"message"`

	// Type is the category of error that occurred (e.g., "invalid_request_error").
	Type string `json:"type"`

	// Code is a short code identifying the error, if applicable.
	Code string `json:"code,omitempty"`
}

// BuildErrorResponseBody builds an OpenAI-compatible JSON error response body.
// If errText is already valid JSON, it is returned as-is to preserve upstream
// error payloads.
func BuildErrorResponseBody(status int, errText string) []byte {
	if status <= 0 {
		status = http.StatusInternalServerError
	}
	if strings.TrimSpace(errText) == "" {
		errText = http.StatusText(status)
	}

	trimmed := strings.TrimSpace(errText)
	if trimmed != "" && json.Valid([]byte(trimmed)) {
		return []byte(trimmed)
	}

	errType := "invalid_request_error"
	var code string
	switch status {
	case http.StatusUnauthorized:
		errType = "authentication_error"
		code = "invalid_api_key"
	case http.StatusForbidden:
		errType = "permission_error"
		code = "insufficient_quota"
	case http.StatusTooManyRequests:
		errType = "rate_limit_error"
		code = "rate_limit_exceeded"
	case http.StatusNotFound:
		errType = "invalid_request_error"
		code = "model_not_found"
	default:
		if status >= http.StatusInternalServerError {
			errType = "server_error"
			code = "internal_server_error"
		}
	}

	payload, err := json.Marshal(ErrorResponse{
		Error: ErrorDetail{
			Message: errText,
			Type:    errType,
			Code:    code,
		},
	})
	if err != nil {
		return []byte(fmt.Sprintf(`{"error":{"message":%q,"type":"server_error","code":"internal_server_error"}}`, errText))
	}
	return payload
}

// BaseAPIHandler contains the shared collaborators for API endpoint
// handlers: the configuration, the upstream client, the chunk pipeline
// orchestrator, and the lifecycle recorder.
type BaseAPIHandler struct {
	// Cfg holds the current application configuration.
	Cfg *config.Config

	// Backend is the upstream translation client.
	Backend *backend.Client

	// Orchestrator drives non-streaming translation runs.
	Orchestrator *pipeline.Orchestrator

	// Recorder receives lifecycle events for streaming runs handled
	// directly by the endpoint handlers.
	Recorder *metrics.Recorder
}

// NewBaseAPIHandlers creates a new base handler instance.
func NewBaseAPIHandlers(cfg *config.Config, client *backend.Client, orchestrator *pipeline.Orchestrator, recorder *metrics.Recorder) *BaseAPIHandler {
	return &BaseAPIHandler{
		Cfg:          cfg,
		Backend:      client,
		Orchestrator: orchestrator,
		Recorder:     recorder,
	}
}

// UpdateConfig swaps the handler configuration and upstream client after a
// hot reload.
func (h *BaseAPIHandler) UpdateConfig(cfg *config.Config) {
	h.Cfg = cfg
	h.Backend = backend.New(cfg.Backend)
	h.Orchestrator = pipeline.New(h.Backend, h.Recorder, cfg.Chunking)
}

// NonStreamingKeepAliveInterval returns the keep-alive interval for
// non-streaming responses. Returning 0 disables keep-alives.
func NonStreamingKeepAliveInterval(cfg *config.Config) time.Duration {
	seconds := 0
	if cfg != nil {
		seconds = cfg.NonStreamKeepAliveInterval
	}
	if seconds <= 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}

// StartNonStreamingKeepAlive emits blank lines on the configured interval
// while a non-streaming response (typically a long chunked run) is being
// produced. It returns a stop function that must be called before writing
// the final response.
func (h *BaseAPIHandler) StartNonStreamingKeepAlive(c *gin.Context, ctx context.Context) func() {
	if h == nil || c == nil {
		return func() {}
	}
	interval := NonStreamingKeepAliveInterval(h.Cfg)
	if interval <= 0 {
		return func() {}
	}
	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		return func() {}
	}
	if ctx == nil {
		ctx = context.Background()
	}

	stopChan := make(chan struct{})
	var stopOnce sync.Once
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stopChan:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				_, _ = c.Writer.Write([]byte("\n"))
				flusher.Flush()
			}
		}
	}()

	return func() {
		stopOnce.Do(func() {
			close(stopChan)
		})
		wg.Wait()
	}
}

// WriteErrorResponse writes an error message to the response writer using
// the HTTP status embedded in the message.
func (h *BaseAPIHandler) WriteErrorResponse(c *gin.Context, msg *interfaces.ErrorMessage) {
	status := http.StatusInternalServerError
	if msg != nil && msg.StatusCode > 0 {
		status = msg.StatusCode
	}
	if msg != nil && msg.Addon != nil {
		for key, values := range msg.Addon {
			if len(values) == 0 {
				continue
			}
			c.Writer.Header().Del(key)
			for _, value := range values {
				c.Writer.Header().Add(key, value)
			}
		}
	}

	errText := http.StatusText(status)
	if msg != nil && msg.Error != nil {
		if v := strings.TrimSpace(msg.Error.Error()); v != "" {
			errText = v
		}
	}

	body := BuildErrorResponseBody(status, errText)
	if !c.Writer.Written() {
		c.Writer.Header().Set("Content-Type", "application/json")
	}
	c.Status(status)
	_, _ = c.Writer.Write(body)
}
