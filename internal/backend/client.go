// Package backend implements the client for the upstream translation
// service. The upstream accepts chat-shaped JSON requests but differs from
// the OpenAI contract in response shape and streaming semantics: a
// non-streaming call returns the translated text inside the upstream's own
// JSON envelope, and a streaming call delivers raw text bytes with no SSE
// framing. The API layer is responsible for adapting both into
// OpenAI-compatible responses.
package backend

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/lingorelay/lingorelay/internal/config"
	"github.com/lingorelay/lingorelay/internal/logging"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

const translateEndpoint = "/translate"

// streamReadSize bounds a single read from the upstream byte stream. Each
// read becomes exactly one StreamChunk, and downstream exactly one SSE
// frame; no rebatching happens on top of what the connection delivers.
const streamReadSize = 4096

// StreamChunk is one delivered piece of an upstream byte stream. Payload
// and Err are mutually exclusive; an Err chunk terminates the stream.
type StreamChunk struct {
	Payload []byte
	Err     error
}

// statusErr carries an upstream non-2xx status alongside the response body.
type statusErr struct {
	code int
	msg  string
}

func (e statusErr) Error() string {
	if strings.TrimSpace(e.msg) == "" {
		return fmt.Sprintf("upstream status %d", e.code)
	}
	return e.msg
}

// StatusCode returns the upstream HTTP status code.
func (e statusErr) StatusCode() int { return e.code }

// Client talks to the upstream translation service.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// New creates a backend client from the given configuration.
func New(cfg config.BackendConfig) *Client {
	timeout := time.Duration(0)
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	return &Client{
		baseURL:    strings.TrimSuffix(strings.TrimSpace(cfg.BaseURL), "/"),
		apiKey:     strings.TrimSpace(cfg.APIKey),
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *Client) applyHeaders(req *http.Request, streaming bool) {
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if streaming {
		req.Header.Set("Accept", "application/octet-stream")
	} else {
		req.Header.Set("Accept", "application/json")
	}
}

// SendChat performs a non-streaming call and returns the raw upstream
// response body. Non-2xx statuses are returned as an error exposing
// StatusCode().
func (c *Client) SendChat(ctx context.Context, payload []byte) ([]byte, error) {
	endpoint := c.baseURL + translateEndpoint
	start := time.Now()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	c.applyHeaders(httpReq, false)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		log.WithFields(log.Fields{
			"endpoint":   endpoint,
			"duration":   time.Since(start).String(),
			"http_error": err.Error(),
		}).Warn("backend: request error")
		return nil, err
	}
	defer func() { _ = httpResp.Body.Close() }()

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, err
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		fields := log.Fields{
			"endpoint": endpoint,
			"status":   httpResp.StatusCode,
			"duration": time.Since(start).String(),
		}
		if logging.VerboseEnabled() {
			fields["body"] = snippet(data)
		}
		log.WithFields(fields).Info("backend: upstream non-2xx")
		return nil, statusErr{code: httpResp.StatusCode, msg: string(data)}
	}

	log.WithFields(log.Fields{
		"endpoint": endpoint,
		"status":   httpResp.StatusCode,
		"duration": time.Since(start).String(),
	}).Debug("backend: upstream ok")
	return data, nil
}

// SendChatStream performs a streaming call. On success it returns a channel
// delivering one StreamChunk per upstream read; the channel is closed when
// the upstream stream ends. A nil channel with a nil error means the
// upstream returned success with no body at all.
//
// The reader goroutine stops when ctx is cancelled.
func (c *Client) SendChatStream(ctx context.Context, payload []byte) (<-chan StreamChunk, error) {
	endpoint := c.baseURL + translateEndpoint

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	c.applyHeaders(httpReq, true)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		data, _ := io.ReadAll(httpResp.Body)
		_ = httpResp.Body.Close()
		log.WithFields(log.Fields{
			"endpoint": endpoint,
			"status":   httpResp.StatusCode,
		}).Info("backend: stream bootstrap non-2xx")
		return nil, statusErr{code: httpResp.StatusCode, msg: string(data)}
	}

	if httpResp.Body == nil || httpResp.Body == http.NoBody {
		if httpResp.Body != nil {
			_ = httpResp.Body.Close()
		}
		return nil, nil
	}

	out := make(chan StreamChunk)
	go func() {
		defer close(out)
		defer func() { _ = httpResp.Body.Close() }()

		buf := make([]byte, streamReadSize)
		for {
			n, errRead := httpResp.Body.Read(buf)
			if n > 0 {
				piece := make([]byte, n)
				copy(piece, buf[:n])
				select {
				case <-ctx.Done():
					return
				case out <- StreamChunk{Payload: piece}:
				}
			}
			if errRead != nil {
				if errRead != io.EOF {
					select {
					case <-ctx.Done():
					case out <- StreamChunk{Err: errRead}:
					}
				}
				return
			}
		}
	}()
	return out, nil
}

// snippet truncates body captures for verbose logging.
func snippet(data []byte) string {
	const max = 512
	if len(data) <= max {
		return string(data)
	}
	return string(data[:max]) + "..."
}

// ExtractContent pulls the translated text out of an upstream non-streaming
// response. The upstream envelope places it at message.content; older
// deployments used an OpenAI-style choices array or a bare content field,
// so those are accepted as fallbacks.
func ExtractContent(body []byte) string {
	if v := gjson.GetBytes(body, "message.content"); v.Exists() {
		return v.String()
	}
	if v := gjson.GetBytes(body, "choices.0.message.content"); v.Exists() {
		return v.String()
	}
	return gjson.GetBytes(body, "content").String()
}
