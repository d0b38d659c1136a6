package domain

import "maps"

// ThreadSettings is a partial per-thread configuration. A nil field means the
// thread does not override that setting and the application default applies.
type ThreadSettings struct {
	ProviderID    *string
	ModelID       *string
	SystemPrompt  *string
	ContextWindow *int // number of most recent messages sent to the model
	MaxTokens     *int
	ExtraParams   map[string]any
}

// IsEmpty reports whether no field is set.
func (s *ThreadSettings) IsEmpty() bool {
	if s == nil {
		return true
	}
	return s.ProviderID == nil && s.ModelID == nil && s.SystemPrompt == nil &&
		s.ContextWindow == nil && s.MaxTokens == nil && len(s.ExtraParams) == 0
}

// Clone returns a deep copy of the settings.
func (s *ThreadSettings) Clone() *ThreadSettings {
	if s == nil {
		return nil
	}
	out := &ThreadSettings{
		ProviderID:    clonePtr(s.ProviderID),
		ModelID:       clonePtr(s.ModelID),
		SystemPrompt:  clonePtr(s.SystemPrompt),
		ContextWindow: clonePtr(s.ContextWindow),
		MaxTokens:     clonePtr(s.MaxTokens),
	}
	if s.ExtraParams != nil {
		out.ExtraParams = maps.Clone(s.ExtraParams)
	}
	return out
}

// Validate rejects negative limits.
func (s *ThreadSettings) Validate() error {
	if s == nil {
		return nil
	}
	if s.ContextWindow != nil && *s.ContextWindow < 0 {
		return &ValidationError{Field: "context_window", Reason: "must not be negative"}
	}
	if s.MaxTokens != nil && *s.MaxTokens < 0 {
		return &ValidationError{Field: "max_tokens", Reason: "must not be negative"}
	}
	return nil
}

// ResolvedSettings is a fully specified configuration used for one generation.
type ResolvedSettings struct {
	ProviderID    string
	ModelID       string
	SystemPrompt  string
	ContextWindow int // 0 means unbounded
	MaxTokens     int // 0 means provider default
	ExtraParams   map[string]any
}

// Resolve overlays the thread's overrides on defaults.
func (s *ThreadSettings) Resolve(defaults ResolvedSettings) ResolvedSettings {
	out := defaults
	if s == nil {
		return out
	}
	if s.ProviderID != nil {
		out.ProviderID = *s.ProviderID
	}
	if s.ModelID != nil {
		out.ModelID = *s.ModelID
	}
	if s.SystemPrompt != nil {
		out.SystemPrompt = *s.SystemPrompt
	}
	if s.ContextWindow != nil {
		out.ContextWindow = *s.ContextWindow
	}
	if s.MaxTokens != nil {
		out.MaxTokens = *s.MaxTokens
	}
	if len(s.ExtraParams) > 0 {
		merged := make(map[string]any, len(defaults.ExtraParams)+len(s.ExtraParams))
		maps.Copy(merged, defaults.ExtraParams)
		maps.Copy(merged, s.ExtraParams)
		out.ExtraParams = merged
	}
	return out
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Ptr returns a pointer to v. Convenient for building ThreadSettings literals.
func Ptr[T any](v T) *T {
	return &v
}
