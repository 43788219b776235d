// Package openai provides HTTP handlers for the OpenAI-compatible API
// endpoints. This package implements model listing and chat completion
// functionality, supporting both streaming and non-streaming responses.
// Oversized requests are routed through the chunked translation pipeline
// and always answered as a single non-streamed completion: streaming is
// unavailable above the chunk threshold by contract.
package openai

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lingorelay/lingorelay/internal/api/handlers"
	"github.com/lingorelay/lingorelay/internal/interfaces"
	"github.com/lingorelay/lingorelay/internal/logging"
	"github.com/lingorelay/lingorelay/internal/pipeline"
	"github.com/lingorelay/lingorelay/internal/registry"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// OpenAIAPIHandler contains the handlers for the OpenAI-compatible API
// endpoints.
type OpenAIAPIHandler struct {
	*handlers.BaseAPIHandler
}

// NewOpenAIAPIHandler creates a new OpenAI-compatible API handler instance.
func NewOpenAIAPIHandler(apiHandlers *handlers.BaseAPIHandler) *OpenAIAPIHandler {
	return &OpenAIAPIHandler{
		BaseAPIHandler: apiHandlers,
	}
}

// Models handles the /v1/models endpoint. It returns the registered models
// in OpenAI-compatible list format.
func (h *OpenAIAPIHandler) Models(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"object": "list",
		"data":   registry.GetGlobalRegistry().GetAvailableModels(),
	})
}

// ChatCompletions handles the /v1/chat/completions endpoint. It validates
// the request, then dispatches: oversized input goes through the chunked
// pipeline (always non-streamed), small streaming requests go through the
// streaming transcoder, and everything else is a single non-streamed call.
func (h *OpenAIAPIHandler) ChatCompletions(c *gin.Context) {
	rawJSON, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, handlers.ErrorResponse{
			Error: handlers.ErrorDetail{
				Message: fmt.Sprintf("Invalid request: %v", err),
				Type:    "invalid_request_error",
			},
		})
		return
	}

	if errMsg := validateChatRequest(rawJSON); errMsg != nil {
		h.WriteErrorResponse(c, errMsg)
		return
	}

	requestID := logging.GetGinRequestID(c)
	if requestID == "" {
		requestID = uuid.NewString()
	}

	streamRequested := gjson.GetBytes(rawJSON, "stream").Type == gjson.True
	if pipeline.NeedsChunking(rawJSON) {
		if streamRequested {
			// Documented contract: above the chunk threshold the streaming
			// flag is ignored and the client receives one aggregated body.
			log.WithFields(log.Fields{
				"request_id": requestID,
			}).Info("chat: streaming unavailable above chunk threshold, responding non-streamed")
		}
		h.handleNonStreaming(c, requestID, rawJSON)
		return
	}
	if streamRequested {
		h.handleStreaming(c, requestID, rawJSON)
		return
	}
	h.handleNonStreaming(c, requestID, rawJSON)
}

// validateChatRequest rejects malformed requests before any backend call.
// No lifecycle event is recorded for these: no run ever started.
func validateChatRequest(rawJSON []byte) *interfaces.ErrorMessage {
	model := gjson.GetBytes(rawJSON, "model").String()
	if model == "" {
		return &interfaces.ErrorMessage{StatusCode: http.StatusBadRequest, Error: fmt.Errorf("missing model")}
	}
	if !registry.GetGlobalRegistry().IsSupported(model) {
		return &interfaces.ErrorMessage{StatusCode: http.StatusNotFound, Error: fmt.Errorf("model %s is not supported", model)}
	}
	messages := gjson.GetBytes(rawJSON, "messages")
	if !messages.IsArray() || len(messages.Array()) == 0 {
		return &interfaces.ErrorMessage{StatusCode: http.StatusBadRequest, Error: fmt.Errorf("messages must be a non-empty array")}
	}
	for _, msg := range messages.Array() {
		if msg.Get("content").Type != gjson.String {
			return &interfaces.ErrorMessage{StatusCode: http.StatusBadRequest, Error: fmt.Errorf("message content must be a string")}
		}
	}
	return nil
}

// handleNonStreaming produces a single aggregated JSON response, emitting
// keep-alive blank lines while a long run is in flight.
func (h *OpenAIAPIHandler) handleNonStreaming(c *gin.Context, requestID string, rawJSON []byte) {
	c.Header("Content-Type", "application/json")

	ctx := c.Request.Context()
	stopKeepAlive := h.StartNonStreamingKeepAlive(c, ctx)

	resp, errMsg := h.Orchestrator.Translate(ctx, requestID, rawJSON)
	stopKeepAlive()
	if errMsg != nil {
		h.WriteErrorResponse(c, errMsg)
		return
	}
	_, _ = c.Writer.Write(resp)
}

// handleStreaming transcodes the upstream byte stream into OpenAI-style
// chat.completion.chunk SSE frames. One frame is emitted per upstream
// read; nothing is rebatched.
func (h *OpenAIAPIHandler) handleStreaming(c *gin.Context, requestID string, rawJSON []byte) {
	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, handlers.ErrorResponse{
			Error: handlers.ErrorDetail{
				Message: "Streaming not supported",
				Type:    "server_error",
			},
		})
		return
	}

	model := gjson.GetBytes(rawJSON, "model").String()
	text := pipeline.ExtractText(rawJSON)
	h.Recorder.Start(requestID, len([]rune(text)), model)

	ctx := c.Request.Context()
	payload, _ := sjson.SetBytes(rawJSON, "stream", true)
	chunks, err := h.Backend.SendChatStream(ctx, payload)
	if err != nil {
		h.Recorder.Fail(requestID, err.Error())
		h.WriteErrorResponse(c, backendStreamError(err))
		return
	}

	h.setSSEHeaders(c)
	flusher.Flush()

	// Upstream success with no body: the client observes a stream that ends
	// with no data frames rather than an error.
	if chunks == nil {
		h.Recorder.Complete(requestID, 0)
		return
	}

	streamID := "chatcmpl-" + uuid.NewString()
	created := time.Now().Unix()

	for {
		select {
		case <-ctx.Done():
			h.Recorder.Fail(requestID, ctx.Err().Error())
			return
		case chunk, okChunk := <-chunks:
			if !okChunk {
				// Source exhausted: terminal frame, then the DONE sentinel.
				writeOpenAISSEData(c.Writer, buildChunkFrame(streamID, model, created, "", true))
				_, _ = c.Writer.Write([]byte("data: [DONE]\n\n"))
				flusher.Flush()
				h.Recorder.Complete(requestID, 0)
				return
			}
			if chunk.Err != nil {
				log.WithFields(log.Fields{
					"request_id": requestID,
					"error":      chunk.Err.Error(),
				}).Error("chat: stream transcode failed")
				h.Recorder.Fail(requestID, chunk.Err.Error())
				// Surface the failure in-stream as a terminal error frame and
				// end without the [DONE] sentinel, so clients can distinguish
				// an aborted stream from a completed one. Frames already
				// flushed remain delivered; the cause stays internal.
				writeOpenAISSEData(c.Writer, handlers.BuildErrorResponseBody(http.StatusBadGateway, "translation pipeline failed"))
				flusher.Flush()
				return
			}
			if len(chunk.Payload) == 0 {
				continue
			}
			writeOpenAISSEData(c.Writer, buildChunkFrame(streamID, model, created, string(chunk.Payload), false))
			flusher.Flush()
		}
	}
}

func (h *OpenAIAPIHandler) setSSEHeaders(c *gin.Context) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache, no-transform")
	c.Header("Connection", "keep-alive")
	c.Header("Access-Control-Allow-Origin", "*")
	if h.Cfg != nil && h.Cfg.Streaming.DisableProxyBuffering {
		c.Header("X-Accel-Buffering", "no") // Disable proxy buffering for SSE
	}
}

func backendStreamError(err error) *interfaces.ErrorMessage {
	status := http.StatusBadGateway
	if se, ok := err.(interface{ StatusCode() int }); ok {
		if code := se.StatusCode(); code > 0 {
			status = code
		}
	}
	return &interfaces.ErrorMessage{StatusCode: status, Error: err}
}

// Chunk frame shaping for the chat.completion.chunk SSE contract.
type chunkDelta struct {
	Content string `json:"content,omitempty"`
}

type chunkChoice struct {
	Index        int        `json:"index"`
	Delta        chunkDelta `json:"delta"`
	FinishReason *string    `json:"finish_reason"`
}

type chunkFrame struct {
	ID      string        `json:"id"`
	Object  string        `json:"object"`
	Created int64         `json:"created"`
	Model   string        `json:"model"`
	Choices []chunkChoice `json:"choices"`
}

// buildChunkFrame renders one chat.completion.chunk JSON payload. Terminal
// frames carry an empty delta and finish_reason "stop"; delta frames carry
// the content piece and a null finish_reason.
func buildChunkFrame(id, model string, created int64, content string, terminal bool) []byte {
	frame := chunkFrame{
		ID:      id,
		Object:  "chat.completion.chunk",
		Created: created,
		Model:   model,
		Choices: []chunkChoice{{Index: 0, Delta: chunkDelta{Content: content}}},
	}
	if terminal {
		stop := "stop"
		frame.Choices[0].FinishReason = &stop
	}
	data, err := json.Marshal(frame)
	if err != nil {
		return nil
	}
	return data
}
