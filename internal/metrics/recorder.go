// Package metrics implements the per-request lifecycle recorder. The
// recorder is a passive event sink: the pipeline and the streaming
// transcoder emit started/completed/failed events keyed by request id, and
// the recorder keeps the latest snapshot per id. Counters are mirrored to
// Prometheus when metrics are enabled.
package metrics

import (
	"sync"
	"time"
)

// Run status values recorded in snapshots.
const (
	StatusStarted   = "started"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Snapshot is the latest recorded state of one request.
type Snapshot struct {
	RequestID  string
	Model      string
	TextLength int
	Segments   int
	Status     string
	Error      string
	StartedAt  time.Time
	UpdatedAt  time.Time
}

// Recorder owns the process-wide request id to snapshot mapping. Entries
// are created on Start and mutated in place on Complete/Fail. The map is
// bounded by a TTL sweep on insert plus the explicit Clear operation, so it
// never grows without limit.
type Recorder struct {
	mu      sync.Mutex
	entries map[string]*Snapshot

	// ttl bounds how long a terminal entry is retained; <= 0 disables the
	// sweep and callers must Clear explicitly.
	ttl time.Duration
}

// NewRecorder creates a Recorder. Entries in a terminal state older than
// ttl are evicted lazily on subsequent writes; ttl <= 0 keeps entries until
// Clear is called.
func NewRecorder(ttl time.Duration) *Recorder {
	return &Recorder{
		entries: make(map[string]*Snapshot),
		ttl:     ttl,
	}
}

// Start records the beginning of a run for the given request id.
func (r *Recorder) Start(requestID string, textLength int, model string) {
	now := time.Now()
	r.mu.Lock()
	r.sweepLocked(now)
	r.entries[requestID] = &Snapshot{
		RequestID:  requestID,
		Model:      model,
		TextLength: textLength,
		Status:     StatusStarted,
		StartedAt:  now,
		UpdatedAt:  now,
	}
	r.mu.Unlock()
	recordRunStarted(model)
}

// Complete marks the run for requestID as completed with the given segment
// count (zero for non-chunked runs). Unknown ids are ignored.
func (r *Recorder) Complete(requestID string, segments int) {
	r.mu.Lock()
	entry, ok := r.entries[requestID]
	var model string
	if ok {
		entry.Status = StatusCompleted
		entry.Segments = segments
		entry.UpdatedAt = time.Now()
		model = entry.Model
	}
	r.mu.Unlock()
	if ok {
		recordRunCompleted(model, segments)
	}
}

// Fail marks the run for requestID as failed with a human-readable message.
// Unknown ids are ignored.
func (r *Recorder) Fail(requestID string, message string) {
	r.mu.Lock()
	entry, ok := r.entries[requestID]
	var model string
	if ok {
		entry.Status = StatusFailed
		entry.Error = message
		entry.UpdatedAt = time.Now()
		model = entry.Model
	}
	r.mu.Unlock()
	if ok {
		recordRunFailed(model)
	}
}

// Get returns a copy of the snapshot for requestID, if present.
func (r *Recorder) Get(requestID string) (Snapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[requestID]
	if !ok {
		return Snapshot{}, false
	}
	return *entry, true
}

// Len returns the number of retained snapshots.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Clear removes all retained snapshots.
func (r *Recorder) Clear() {
	r.mu.Lock()
	r.entries = make(map[string]*Snapshot)
	r.mu.Unlock()
}

// sweepLocked evicts terminal entries older than the TTL. Entries still in
// the started state are kept: their owner request is in flight.
func (r *Recorder) sweepLocked(now time.Time) {
	if r.ttl <= 0 {
		return
	}
	for id, entry := range r.entries {
		if entry.Status == StatusStarted {
			continue
		}
		if now.Sub(entry.UpdatedAt) > r.ttl {
			delete(r.entries, id)
		}
	}
}
