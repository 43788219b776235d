package pipeline

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/lingorelay/lingorelay/internal/config"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

type stubBackend struct {
	calls    [][]byte
	failAt   int // 1-based call number to fail at; 0 disables
	response func(call int, payload []byte) []byte
}

func (b *stubBackend) SendChat(_ context.Context, payload []byte) ([]byte, error) {
	b.calls = append(b.calls, payload)
	call := len(b.calls)
	if b.failAt > 0 && call == b.failAt {
		return nil, fmt.Errorf("upstream exploded")
	}
	if b.response != nil {
		return b.response(call, payload), nil
	}
	body, _ := sjson.SetBytes([]byte(`{}`), "message.content", fmt.Sprintf("out-%d", call))
	return body, nil
}

type stubRecorder struct {
	started   []string
	completed map[string]int
	failed    map[string]string
}

func newStubRecorder() *stubRecorder {
	return &stubRecorder{completed: map[string]int{}, failed: map[string]string{}}
}

func (r *stubRecorder) Start(id string, _ int, _ string) { r.started = append(r.started, id) }
func (r *stubRecorder) Complete(id string, segments int) { r.completed[id] = segments }
func (r *stubRecorder) Fail(id string, message string)   { r.failed[id] = message }

func chatRequest(t *testing.T, content string) []byte {
	t.Helper()
	raw := []byte(`{"model":"lingo-translate"}`)
	raw, _ = sjson.SetBytes(raw, "messages.0.role", "user")
	raw, _ = sjson.SetBytes(raw, "messages.0.content", content)
	return raw
}

func longText(minChars int) string {
	var b strings.Builder
	for i := 0; b.Len() < minChars; i++ {
		fmt.Fprintf(&b, "Plain sentence number %d for the pipeline. ", i)
	}
	return b.String()[:minChars]
}

func TestTranslate_SingleCallUnderThreshold(t *testing.T) {
	backend := &stubBackend{}
	rec := newStubRecorder()
	o := New(backend, rec, config.ChunkingConfig{})

	resp, errMsg := o.Translate(context.Background(), "req-1", chatRequest(t, "short text"))
	if errMsg != nil {
		t.Fatalf("unexpected error: %v", errMsg.Error)
	}
	if len(backend.calls) != 1 {
		t.Fatalf("expected 1 backend call, got %d", len(backend.calls))
	}
	if gjson.GetBytes(backend.calls[0], "stream").Bool() {
		t.Fatal("single path must send stream=false")
	}
	if got := gjson.GetBytes(resp, "choices.0.message.content").String(); got != "out-1" {
		t.Fatalf("unexpected content: %q", got)
	}
	if got := gjson.GetBytes(resp, "object").String(); got != "chat.completion" {
		t.Fatalf("unexpected object: %q", got)
	}
	if got := gjson.GetBytes(resp, "choices.0.finish_reason").String(); got != "stop" {
		t.Fatalf("unexpected finish_reason: %q", got)
	}
	if segments, ok := rec.completed["req-1"]; !ok || segments != 0 {
		t.Fatalf("expected completed with 0 segments, got %v %v", segments, ok)
	}
}

func TestTranslateChunked_SequentialAggregation(t *testing.T) {
	backend := &stubBackend{}
	rec := newStubRecorder()
	o := New(backend, rec, config.ChunkingConfig{PlainMaxChars: 500, OverlapChars: 50})

	resp, errMsg := o.Translate(context.Background(), "req-2", chatRequest(t, longText(2100)))
	if errMsg != nil {
		t.Fatalf("unexpected error: %v", errMsg.Error)
	}
	if len(backend.calls) < 2 {
		t.Fatalf("expected multiple backend calls, got %d", len(backend.calls))
	}
	// Outputs are joined with a single space in call order.
	var wantParts []string
	for i := range backend.calls {
		wantParts = append(wantParts, fmt.Sprintf("out-%d", i+1))
	}
	want := strings.Join(wantParts, " ")
	if got := gjson.GetBytes(resp, "choices.0.message.content").String(); got != want {
		t.Fatalf("unexpected aggregate: %q want %q", got, want)
	}
	if segments := rec.completed["req-2"]; segments != len(backend.calls) {
		t.Fatalf("completed segments = %d, want %d", segments, len(backend.calls))
	}
	if len(rec.failed) != 0 {
		t.Fatalf("unexpected failures: %v", rec.failed)
	}
}

func TestTranslateChunked_SegmentPayloadPreservesSettings(t *testing.T) {
	backend := &stubBackend{}
	o := New(backend, newStubRecorder(), config.ChunkingConfig{PlainMaxChars: 500, OverlapChars: 50})

	raw := chatRequest(t, longText(1200))
	raw, _ = sjson.SetBytes(raw, "temperature", 0.3)
	raw, _ = sjson.SetBytes(raw, "max_tokens", 256)

	if _, errMsg := o.TranslateChunked(context.Background(), "req-3", raw); errMsg != nil {
		t.Fatalf("unexpected error: %v", errMsg.Error)
	}
	for i, payload := range backend.calls {
		if got := gjson.GetBytes(payload, "model").String(); got != "lingo-translate" {
			t.Fatalf("call %d model %q", i, got)
		}
		if got := gjson.GetBytes(payload, "temperature").Float(); got != 0.3 {
			t.Fatalf("call %d temperature %v", i, got)
		}
		if got := gjson.GetBytes(payload, "max_tokens").Int(); got != 256 {
			t.Fatalf("call %d max_tokens %v", i, got)
		}
		if n := len(gjson.GetBytes(payload, "messages").Array()); n != 1 {
			t.Fatalf("call %d has %d messages, want 1", i, n)
		}
		if gjson.GetBytes(payload, "stream").Bool() {
			t.Fatalf("call %d requested streaming", i)
		}
	}
}

func TestTranslateChunked_FailureAbortsRunWithoutPartialResult(t *testing.T) {
	backend := &stubBackend{failAt: 3}
	rec := newStubRecorder()
	o := New(backend, rec, config.ChunkingConfig{PlainMaxChars: 300, OverlapChars: 30})

	resp, errMsg := o.TranslateChunked(context.Background(), "req-4", chatRequest(t, longText(1400)))
	if errMsg == nil {
		t.Fatal("expected error")
	}
	if resp != nil {
		t.Fatalf("expected no partial result, got %q", resp)
	}
	if len(backend.calls) != 3 {
		t.Fatalf("expected run to abort at call 3, got %d calls", len(backend.calls))
	}
	msg, ok := rec.failed["req-4"]
	if !ok {
		t.Fatal("expected a failed lifecycle event")
	}
	if !strings.Contains(msg, "upstream exploded") {
		t.Fatalf("failure message lacks cause: %q", msg)
	}
	if _, ok = rec.completed["req-4"]; ok {
		t.Fatal("failed run must not record completion")
	}
	// The external error is generic; the cause stays internal.
	if errMsg.Error.Error() != "translation pipeline failed" {
		t.Fatalf("unexpected external error: %v", errMsg.Error)
	}
}

func TestTranslateChunked_StructuredJoinsWithParagraphBreaks(t *testing.T) {
	blocks := []string{
		"1\n00:00:01,000 --> 00:00:03,000\nFirst line",
		"2\n00:00:04,000 --> 00:00:06,000\nSecond line",
	}
	// Pad past the chunk threshold with more cues so the run chunks.
	for i := 3; i < 80; i++ {
		blocks = append(blocks, fmt.Sprintf("%d\n00:00:%02d,000 --> 00:00:%02d,500\nCue number %d speaks here", i, i%60, i%60, i))
	}
	text := strings.Join(blocks, "\n\n")
	if len([]rune(text)) <= ChunkThreshold {
		t.Fatalf("test input must exceed threshold, got %d", len([]rune(text)))
	}

	backend := &stubBackend{}
	rec := newStubRecorder()
	o := New(backend, rec, config.ChunkingConfig{StructuredMaxChars: 800})

	resp, errMsg := o.Translate(context.Background(), "req-5", chatRequest(t, text))
	if errMsg != nil {
		t.Fatalf("unexpected error: %v", errMsg.Error)
	}
	if len(backend.calls) < 2 {
		t.Fatalf("expected chunked structured run, got %d calls", len(backend.calls))
	}
	content := gjson.GetBytes(resp, "choices.0.message.content").String()
	if !strings.Contains(content, "\n\n") {
		t.Fatalf("structured outputs must join with paragraph breaks: %q", content)
	}
}

func TestTranslate_UsageUsesCharacterHeuristic(t *testing.T) {
	backend := &stubBackend{response: func(int, []byte) []byte {
		body, _ := sjson.SetBytes([]byte(`{}`), "message.content", strings.Repeat("x", 40))
		return body
	}}
	o := New(backend, newStubRecorder(), config.ChunkingConfig{})

	input := strings.Repeat("y", 100)
	resp, errMsg := o.Translate(context.Background(), "req-6", chatRequest(t, input))
	if errMsg != nil {
		t.Fatalf("unexpected error: %v", errMsg.Error)
	}
	if got := gjson.GetBytes(resp, "usage.prompt_tokens").Int(); got != 25 {
		t.Fatalf("prompt_tokens = %d, want 25", got)
	}
	if got := gjson.GetBytes(resp, "usage.completion_tokens").Int(); got != 10 {
		t.Fatalf("completion_tokens = %d, want 10", got)
	}
	if got := gjson.GetBytes(resp, "usage.total_tokens").Int(); got != 35 {
		t.Fatalf("total_tokens = %d, want 35", got)
	}
}

func TestNeedsChunking_Threshold(t *testing.T) {
	under := chatRequest(t, strings.Repeat("a", ChunkThreshold))
	if NeedsChunking(under) {
		t.Fatal("text at the threshold must not chunk")
	}
	over := chatRequest(t, strings.Repeat("a", ChunkThreshold+1))
	if !NeedsChunking(over) {
		t.Fatal("text above the threshold must chunk")
	}
}

func TestNeedsChunking_SeparatorsCountTowardThreshold(t *testing.T) {
	raw := []byte(`{"model":"m"}`)
	raw, _ = sjson.SetBytes(raw, "messages.0.role", "system")
	raw, _ = sjson.SetBytes(raw, "messages.0.content", strings.Repeat("a", 1000))
	raw, _ = sjson.SetBytes(raw, "messages.1.role", "user")
	raw, _ = sjson.SetBytes(raw, "messages.1.content", strings.Repeat("b", 1000))

	// 2000 content chars plus the joining newline crosses the threshold.
	if !NeedsChunking(raw) {
		t.Fatal("message separator must count toward the threshold")
	}
	if got := len([]rune(ExtractText(raw))); got != ChunkThreshold+1 {
		t.Fatalf("joined length = %d, want %d", got, ChunkThreshold+1)
	}
}

func TestExtractText_ConcatenatesMessageContents(t *testing.T) {
	raw := []byte(`{"model":"m","messages":[{"role":"system","content":"a"},{"role":"user","content":"b"}]}`)
	if got := ExtractText(raw); got != "a\nb" {
		t.Fatalf("unexpected text: %q", got)
	}
	if got := ExtractText([]byte(`{"model":"m"}`)); got != "" {
		t.Fatalf("expected empty, got %q", got)
	}
}
