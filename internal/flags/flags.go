// Package flags provides feature flags loaded from configuration.
// Unknown flags read as disabled. The flag set can be swapped wholesale when
// the config file changes on disk.
package flags

import (
	"maps"
	"sync"

	"github.com/zjrosen/forkchat/internal/log"
)

// Flag name constants for type-safe flag access.
const (
	// FlagAutoTitle controls whether a brand-new thread gets an LLM-generated
	// title after its first reply.
	FlagAutoTitle = "auto-title"

	// FlagTokenEstimates controls whether prompts are measured with the local
	// tokenizer before each model call.
	FlagTokenEstimates = "token-estimates"
)

// Defaults returns the flag values used when the config sets none.
func Defaults() map[string]bool {
	return map[string]bool{
		FlagAutoTitle:      true,
		FlagTokenEstimates: false,
	}
}

// Registry holds feature flag state loaded from configuration.
type Registry struct {
	mu    sync.RWMutex
	flags map[string]bool
}

// New creates a Registry from a config map.
// If flags is nil, an empty registry is created (all flags disabled).
func New(flags map[string]bool) *Registry {
	r := &Registry{flags: copyFlags(flags)}
	log.Debug(log.CatConfig, "Feature flags initialized", "count", len(r.flags), "flags", r.All())
	return r
}

// Enabled returns true if the named flag is enabled.
// Returns false for unknown flags and on a nil registry.
func (r *Registry) Enabled(name string) bool {
	if r == nil {
		return false
	}
	r.mu.RLock()
	value, exists := r.flags[name]
	r.mu.RUnlock()
	if !exists {
		log.Debug(log.CatConfig, "Unknown flag accessed", "flag", name, "result", false)
		return false
	}
	return value
}

// Replace swaps in a new flag set.
func (r *Registry) Replace(flags map[string]bool) {
	if r == nil {
		return
	}
	next := copyFlags(flags)
	r.mu.Lock()
	r.flags = next
	r.mu.Unlock()
	log.Info(log.CatConfig, "Feature flags reloaded", "flags", next)
}

// All returns a copy of all flags.
// Returns an empty map if the registry is nil.
func (r *Registry) All() map[string]bool {
	if r == nil {
		return make(map[string]bool)
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return copyFlags(r.flags)
}

func copyFlags(flags map[string]bool) map[string]bool {
	out := make(map[string]bool, len(flags))
	maps.Copy(out, flags)
	return out
}
