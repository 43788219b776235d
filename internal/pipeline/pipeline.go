// Package pipeline implements the chunked long-text translation pipeline:
// it splits oversized input into bounded segments, drives them through the
// backend strictly one at a time, and reassembles the ordered outputs into
// a single OpenAI-compatible chat completion response.
//
// Chunked runs are always materialized as one non-streamed response, even
// when the client asked for streaming: above the length threshold the
// streaming flag is deliberately ignored. This is a documented contract,
// not an accident.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lingorelay/lingorelay/internal/backend"
	"github.com/lingorelay/lingorelay/internal/config"
	"github.com/lingorelay/lingorelay/internal/interfaces"
	"github.com/lingorelay/lingorelay/internal/segment"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// ChunkThreshold is the hard, caller-visible input size above which a
// request is translated in segments. It is a fixed contract, not a
// configuration knob.
const ChunkThreshold = 2000

// approxCharsPerToken is the heuristic divisor used for usage accounting.
// It is an approximation by design, not a tokenizer.
const approxCharsPerToken = 4

// Backend is the single-call capability the pipeline drives. Implemented by
// the backend client.
type Backend interface {
	SendChat(ctx context.Context, payload []byte) ([]byte, error)
}

// Lifecycle receives run lifecycle events keyed by request id. Implemented
// by the metrics recorder.
type Lifecycle interface {
	Start(requestID string, textLength int, model string)
	Complete(requestID string, segments int)
	Fail(requestID string, message string)
}

// Orchestrator drives translation runs through the backend.
type Orchestrator struct {
	backend  Backend
	recorder Lifecycle
	chunking config.ChunkingConfig
}

// New creates an Orchestrator with the given collaborators and chunking
// parameters.
func New(backend Backend, recorder Lifecycle, chunking config.ChunkingConfig) *Orchestrator {
	return &Orchestrator{
		backend:  backend,
		recorder: recorder,
		chunking: chunking,
	}
}

// ExtractText concatenates the string contents of the request's messages,
// joined by newlines. The joined length, separator characters included, is
// what is measured against ChunkThreshold: a multi-message request counts
// one extra character per message boundary.
func ExtractText(rawJSON []byte) string {
	messages := gjson.GetBytes(rawJSON, "messages")
	if !messages.IsArray() {
		return ""
	}
	var parts []string
	messages.ForEach(func(_, msg gjson.Result) bool {
		if content := msg.Get("content"); content.Type == gjson.String {
			parts = append(parts, content.String())
		}
		return true
	})
	return strings.Join(parts, "\n")
}

// NeedsChunking reports whether the request's extracted text exceeds the
// chunk threshold.
func NeedsChunking(rawJSON []byte) bool {
	return len([]rune(ExtractText(rawJSON))) > ChunkThreshold
}

// Translate handles a non-streaming request end to end: under the
// threshold it issues one backend call, above it the request goes through
// the chunked pipeline. The returned bytes are a complete OpenAI-style
// chat completion body.
func (o *Orchestrator) Translate(ctx context.Context, requestID string, rawJSON []byte) ([]byte, *interfaces.ErrorMessage) {
	if NeedsChunking(rawJSON) {
		return o.TranslateChunked(ctx, requestID, rawJSON)
	}
	return o.translateSingle(ctx, requestID, rawJSON)
}

// translateSingle issues one non-streamed backend call for a request under
// the chunk threshold and wraps the upstream output in the response shape.
func (o *Orchestrator) translateSingle(ctx context.Context, requestID string, rawJSON []byte) ([]byte, *interfaces.ErrorMessage) {
	text := ExtractText(rawJSON)
	model := gjson.GetBytes(rawJSON, "model").String()
	o.recorder.Start(requestID, len([]rune(text)), model)

	payload, _ := sjson.SetBytes(rawJSON, "stream", false)
	body, err := o.backend.SendChat(ctx, payload)
	if err != nil {
		o.recorder.Fail(requestID, err.Error())
		return nil, backendErrorMessage(err)
	}

	content := backend.ExtractContent(body)
	o.recorder.Complete(requestID, 0)
	return buildChatCompletion(model, content, len([]rune(text))), nil
}

// TranslateChunked runs the segmentation pipeline: classify, segment,
// process strictly sequentially in index order, aggregate. Any single
// segment failure aborts the whole run with no partial result and no
// retry.
func (o *Orchestrator) TranslateChunked(ctx context.Context, requestID string, rawJSON []byte) ([]byte, *interfaces.ErrorMessage) {
	text := ExtractText(rawJSON)
	model := gjson.GetBytes(rawJSON, "model").String()
	textLen := len([]rune(text))

	o.recorder.Start(requestID, textLen, model)
	log.WithFields(log.Fields{
		"request_id":  requestID,
		"model":       model,
		"text_length": textLen,
	}).Info("pipeline: chunked run started")

	structured := segment.IsStructured(text)
	var segments []segment.Segment
	if structured {
		segments = segment.SplitStructured(text, o.structuredOptions())
	} else {
		segments = segment.Split(text, o.plainOptions())
	}
	if len(segments) == 0 {
		o.recorder.Fail(requestID, "no segments produced")
		return nil, &interfaces.ErrorMessage{
			StatusCode: http.StatusInternalServerError,
			Error:      fmt.Errorf("translation pipeline failed"),
		}
	}

	delay := time.Duration(o.chunking.SegmentDelayMs) * time.Millisecond
	outputs := make([]string, 0, len(segments))
	for _, seg := range segments {
		payload := buildSegmentPayload(rawJSON, model, seg.Content)
		body, err := o.backend.SendChat(ctx, payload)
		if err != nil {
			log.WithFields(log.Fields{
				"request_id": requestID,
				"segment":    seg.Index,
				"total":      seg.TotalSegments,
				"error":      err.Error(),
			}).Error("pipeline: segment call failed, aborting run")
			o.recorder.Fail(requestID, fmt.Sprintf("segment %d/%d: %s", seg.Index+1, seg.TotalSegments, err.Error()))
			return nil, backendErrorMessage(err)
		}
		outputs = append(outputs, backend.ExtractContent(body))

		// Courtesy pause between segments, skipped after the last. This is
		// rate limiting, not a correctness requirement.
		if delay > 0 && seg.Index < seg.TotalSegments-1 {
			if errWait := waitForDuration(ctx, delay); errWait != nil {
				o.recorder.Fail(requestID, errWait.Error())
				return nil, &interfaces.ErrorMessage{
					StatusCode: http.StatusInternalServerError,
					Error:      fmt.Errorf("translation pipeline failed"),
				}
			}
		}
	}

	separator := " "
	if structured {
		separator = "\n\n"
	}
	merged := strings.Join(outputs, separator)

	o.recorder.Complete(requestID, len(segments))
	log.WithFields(log.Fields{
		"request_id": requestID,
		"segments":   len(segments),
		"structured": structured,
	}).Info("pipeline: chunked run completed")

	return buildChatCompletion(model, merged, textLen), nil
}

func (o *Orchestrator) plainOptions() segment.Options {
	opts := segment.PlainOptions()
	if o.chunking.PlainMaxChars > 0 {
		opts.MaxChars = o.chunking.PlainMaxChars
	}
	if o.chunking.OverlapChars > 0 {
		opts.OverlapChars = o.chunking.OverlapChars
	}
	return opts
}

func (o *Orchestrator) structuredOptions() segment.Options {
	opts := segment.StructuredOptions()
	if o.chunking.StructuredMaxChars > 0 {
		opts.MaxChars = o.chunking.StructuredMaxChars
	}
	return opts
}

// buildSegmentPayload wraps one segment into a single-message request that
// preserves the original model, temperature, and max-token settings.
func buildSegmentPayload(rawJSON []byte, model, content string) []byte {
	payload := []byte(`{}`)
	payload, _ = sjson.SetBytes(payload, "model", model)
	payload, _ = sjson.SetBytes(payload, "messages.0.role", "user")
	payload, _ = sjson.SetBytes(payload, "messages.0.content", content)
	payload, _ = sjson.SetBytes(payload, "stream", false)
	if temp := gjson.GetBytes(rawJSON, "temperature"); temp.Exists() {
		payload, _ = sjson.SetBytes(payload, "temperature", temp.Float())
	}
	if maxTokens := gjson.GetBytes(rawJSON, "max_tokens"); maxTokens.Exists() {
		payload, _ = sjson.SetBytes(payload, "max_tokens", maxTokens.Int())
	}
	return payload
}

// backendErrorMessage maps any backend call failure to the generic external
// failure surface. The real cause is logged and recorded; clients only see
// that translation failed.
func backendErrorMessage(err error) *interfaces.ErrorMessage {
	status := http.StatusBadGateway
	if se, ok := err.(interface{ StatusCode() int }); ok {
		if code := se.StatusCode(); code > 0 {
			status = code
		}
	}
	return &interfaces.ErrorMessage{
		StatusCode: status,
		Error:      fmt.Errorf("translation pipeline failed"),
	}
}

func waitForDuration(ctx context.Context, wait time.Duration) error {
	if wait <= 0 {
		return nil
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Response shaping types for the non-streamed chat completion body.
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatChoice struct {
	Index        int         `json:"index"`
	Message      chatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type chatCompletion struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Created int64        `json:"created"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
	Usage   chatUsage    `json:"usage"`
}

// buildChatCompletion wraps merged output into an OpenAI-style completion
// body with approximate usage accounting.
func buildChatCompletion(model, content string, promptChars int) []byte {
	prompt := approxTokens(promptChars)
	completion := approxTokens(len([]rune(content)))
	resp := chatCompletion{
		ID:      "chatcmpl-" + uuid.NewString(),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   model,
		Choices: []chatChoice{{
			Index:        0,
			Message:      chatMessage{Role: "assistant", Content: content},
			FinishReason: "stop",
		}},
		Usage: chatUsage{
			PromptTokens:     prompt,
			CompletionTokens: completion,
			TotalTokens:      prompt + completion,
		},
	}
	data, err := json.Marshal(resp)
	if err != nil {
		// Marshalling a value type of plain fields cannot fail in practice.
		return []byte(`{}`)
	}
	return data
}

func approxTokens(chars int) int {
	if chars <= 0 {
		return 0
	}
	return (chars + approxCharsPerToken - 1) / approxCharsPerToken
}
