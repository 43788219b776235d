package openai

import (
	"bytes"
	"net/http"
)

// writeOpenAISSEData writes one SSE event carrying the payload. Multi-line
// payloads become multiple data: lines within the same event. Empty or
// whitespace-only payloads are skipped entirely so no blank event reaches
// the client. Returns whether anything was written.
func writeOpenAISSEData(w http.ResponseWriter, payload []byte) bool {
	if len(bytes.TrimSpace(payload)) == 0 {
		return false
	}
	lines := bytes.Split(bytes.TrimRight(payload, "\n"), []byte("\n"))
	for _, line := range lines {
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		_, _ = w.Write([]byte("data: "))
		_, _ = w.Write(line)
		_, _ = w.Write([]byte("\n"))
	}
	_, _ = w.Write([]byte("\n"))
	return true
}
