// Package registry maintains the set of model identifiers this server
// accepts and advertises. The registry backs both request validation and
// the /v1/models listing.
package registry

import (
	"strings"
	"sync"
	"time"
)

// ModelInfo describes a single model entry in OpenAI-compatible shape.
type ModelInfo struct {
	// ID is the model identifier clients send in requests.
	ID string

	// DisplayName is a human-readable name for the model.
	DisplayName string

	// Created is the registration time in epoch seconds.
	Created int64

	// OwnedBy identifies the owning organization in model listings.
	OwnedBy string
}

// defaultModels is the built-in set used when the configuration does not
// list any models.
var defaultModels = []string{
	"lingo-translate",
	"lingo-translate-lite",
}

// ModelRegistry holds the registered models behind a read/write lock so the
// config watcher can swap the set while requests are being served.
type ModelRegistry struct {
	mu     sync.RWMutex
	models []*ModelInfo
}

var (
	globalRegistry     *ModelRegistry
	globalRegistryOnce sync.Once
)

// GetGlobalRegistry returns the process-wide model registry, creating it
// with the default model set on first use.
func GetGlobalRegistry() *ModelRegistry {
	globalRegistryOnce.Do(func() {
		globalRegistry = &ModelRegistry{}
		globalRegistry.SetModels(nil)
	})
	return globalRegistry
}

// SetModels replaces the registered model set. An empty or nil list
// installs the built-in defaults.
func (r *ModelRegistry) SetModels(ids []string) {
	if len(ids) == 0 {
		ids = defaultModels
	}
	now := time.Now().Unix()
	models := make([]*ModelInfo, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		models = append(models, &ModelInfo{
			ID:          id,
			DisplayName: id,
			Created:     now,
			OwnedBy:     "lingorelay",
		})
	}
	r.mu.Lock()
	r.models = models
	r.mu.Unlock()
}

// IsSupported reports whether the given model ID is registered.
func (r *ModelRegistry) IsSupported(id string) bool {
	id = strings.TrimSpace(id)
	if id == "" {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, m := range r.models {
		if m.ID == id {
			return true
		}
	}
	return false
}

// GetAvailableModels returns the registered models as OpenAI-compatible
// list entries for the /v1/models endpoint.
func (r *ModelRegistry) GetAvailableModels() []map[string]any {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]map[string]any, 0, len(r.models))
	for _, m := range r.models {
		out = append(out, map[string]any{
			"id":       m.ID,
			"object":   "model",
			"created":  m.Created,
			"owned_by": m.OwnedBy,
		})
	}
	return out
}
