package llm

import (
	"fmt"
	"sort"
	"sync"
)

// ErrUnknownProvider is returned when a provider ID or type is not registered.
var ErrUnknownProvider = fmt.Errorf("unknown provider")

// Factory builds an Invoker from its configuration.
type Factory func(cfg ProviderConfig) (Invoker, error)

var (
	factoriesMu sync.RWMutex
	factories   = make(map[ProviderType]Factory)
)

// RegisterProvider registers a factory for the given type.
// This should be called in init() functions of provider packages.
func RegisterProvider(t ProviderType, factory Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[t] = factory
}

// NewInvoker creates an Invoker for cfg.Type.
// Returns ErrUnknownProvider if the type is not registered.
func NewInvoker(cfg ProviderConfig) (Invoker, error) {
	factoriesMu.RLock()
	factory, ok := factories[cfg.Type]
	factoriesMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: type %s", ErrUnknownProvider, cfg.Type)
	}
	return factory(cfg)
}

// RegisteredProviders returns the registered provider types, sorted.
func RegisteredProviders() []ProviderType {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	types := make([]ProviderType, 0, len(factories))
	for t := range factories {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// Router maps provider IDs to invokers.
type Router struct {
	mu       sync.RWMutex
	invokers map[string]Invoker
}

// NewRouter creates an empty Router.
func NewRouter() *Router {
	return &Router{invokers: make(map[string]Invoker)}
}

// NewRouterFromConfigs builds a Router with one invoker per config.
func NewRouterFromConfigs(cfgs []ProviderConfig) (*Router, error) {
	r := NewRouter()
	for _, cfg := range cfgs {
		inv, err := NewInvoker(cfg)
		if err != nil {
			return nil, fmt.Errorf("provider %s: %w", cfg.ID, err)
		}
		r.Add(cfg.ID, inv)
	}
	return r, nil
}

// Add registers inv under id, replacing any previous invoker.
func (r *Router) Add(id string, inv Invoker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.invokers[id] = inv
}

// Invoker returns the invoker for id.
// Returns ErrUnknownProvider if none is registered.
func (r *Router) Invoker(id string) (Invoker, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	inv, ok := r.invokers[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, id)
	}
	return inv, nil
}

// IDs returns the registered provider IDs, sorted.
func (r *Router) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.invokers))
	for id := range r.invokers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
