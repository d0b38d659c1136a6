package presentation

import (
	"time"

	"github.com/zjrosen/forkchat/internal/chat/domain"
	"github.com/zjrosen/forkchat/internal/chat/orchestrator"
)

// ThreadDTO represents a thread for presentation
type ThreadDTO struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	ActiveRootID *int64    `json:"active_root_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// FileDTO is attachment metadata; blobs are never printed.
type FileDTO struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	MimeType string `json:"mime_type,omitempty"`
	Size     int64  `json:"size"`
}

// BranchPosition is a message's 1-based place among its siblings.
type BranchPosition struct {
	Current int `json:"current"`
	Total   int `json:"total"`
}

// MessageDTO represents one message of a thread
type MessageDTO struct {
	ID        int64           `json:"id"`
	ParentID  *int64          `json:"parent_id"` // null for roots
	Role      string          `json:"role"`
	Content   string          `json:"content"`
	Model     string          `json:"model,omitempty"`
	Error     string          `json:"error,omitempty"`
	Files     []FileDTO       `json:"files,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	Branch    *BranchPosition `json:"branch,omitempty"`
}

// ConversationDTO is a thread with its active path.
type ConversationDTO struct {
	Thread     ThreadDTO    `json:"thread"`
	Messages   []MessageDTO `json:"messages"`
	Generating bool         `json:"generating,omitempty"`
}

// BranchDTO lists the siblings of a message.
type BranchDTO struct {
	MessageID int64        `json:"message_id"`
	Current   int          `json:"current"`
	Total     int          `json:"total"`
	Siblings  []MessageDTO `json:"siblings"`
}

// TokensDTO is the token accounting of one generation.
type TokensDTO struct {
	Prompt     int  `json:"prompt"`
	Completion int  `json:"completion"`
	Estimated  bool `json:"estimated,omitempty"`
}

// SendResultDTO represents the outcome of a send or regeneration
type SendResultDTO struct {
	ThreadID      string      `json:"thread_id"`
	State         string      `json:"state"`
	ThreadCreated bool        `json:"thread_created,omitempty"`
	UserMessage   *MessageDTO `json:"user_message,omitempty"`
	Assistant     *MessageDTO `json:"assistant,omitempty"`
	Tokens        *TokensDTO  `json:"tokens,omitempty"`
}

// EditDTO represents an edit with the content it replaced.
type EditDTO struct {
	Original string         `json:"original"`
	Message  MessageDTO     `json:"message"`
	Branched bool           `json:"branched"`
	Reply    *SendResultDTO `json:"reply,omitempty"`
}

// DeletedDTO reports a deletion. Count includes the item itself.
type DeletedDTO struct {
	Kind  string `json:"kind"`
	ID    string `json:"id"`
	Count int    `json:"count"`
}

// SettingsDTO shows a thread's overrides next to the values in effect.
type SettingsDTO struct {
	ThreadID  string              `json:"thread_id,omitempty"`
	Overrides map[string]any      `json:"overrides"`
	Resolved  ResolvedSettingsDTO `json:"resolved"`
}

// ResolvedSettingsDTO is the fully resolved configuration of a thread.
type ResolvedSettingsDTO struct {
	Provider      string         `json:"provider"`
	Model         string         `json:"model"`
	SystemPrompt  string         `json:"system_prompt,omitempty"`
	ContextWindow int            `json:"context_window"`
	MaxTokens     int            `json:"max_tokens"`
	ExtraParams   map[string]any `json:"extra_params,omitempty"`
}

// FromDomainThread converts a domain thread to a DTO
func FromDomainThread(t *domain.Thread) ThreadDTO {
	dto := ThreadDTO{
		ID:        string(t.ID()),
		Title:     t.Title(),
		CreatedAt: t.CreatedAt(),
		UpdatedAt: t.UpdatedAt(),
	}
	if root := t.ActiveRootID(); root != nil {
		id := int64(*root)
		dto.ActiveRootID = &id
	}
	return dto
}

// FromDomainThreads converts a slice of domain threads to DTOs
func FromDomainThreads(threads []*domain.Thread) []ThreadDTO {
	dtos := make([]ThreadDTO, len(threads))
	for i, t := range threads {
		dtos[i] = FromDomainThread(t)
	}
	return dtos
}

// FromDomainMessage converts a domain message to a DTO
func FromDomainMessage(m *domain.Message) MessageDTO {
	dto := MessageDTO{
		ID:        int64(m.ID()),
		Role:      m.Role().String(),
		Content:   m.Content(),
		Model:     m.Model(),
		Error:     m.ErrorText(),
		CreatedAt: m.CreatedAt(),
	}
	if p := m.ParentID(); p != nil {
		id := int64(*p)
		dto.ParentID = &id
	}
	for _, f := range m.Files() {
		dto.Files = append(dto.Files, FileDTO{
			ID:       string(f.ID),
			Name:     f.Name,
			MimeType: f.MimeType,
			Size:     f.Size,
		})
	}
	return dto
}

// FromDomainMessages converts a transcript to DTOs. branches, when non-nil,
// supplies the sibling position of each message by id.
func FromDomainMessages(path []*domain.Message, branches map[domain.MessageID]domain.BranchInfo) []MessageDTO {
	dtos := make([]MessageDTO, len(path))
	for i, m := range path {
		dtos[i] = FromDomainMessage(m)
		if info, ok := branches[m.ID()]; ok && info.HasAlternatives() {
			dtos[i].Branch = &BranchPosition{Current: info.Current, Total: info.Total}
		}
	}
	return dtos
}

// FromBranchInfo converts the sibling listing of id.
func FromBranchInfo(id domain.MessageID, info domain.BranchInfo) BranchDTO {
	return BranchDTO{
		MessageID: int64(id),
		Current:   info.Current,
		Total:     info.Total,
		Siblings:  FromDomainMessages(info.Siblings, nil),
	}
}

// FromSendResult converts an orchestrator result. Nil yields nil.
func FromSendResult(r *orchestrator.SendResult) *SendResultDTO {
	if r == nil {
		return nil
	}
	dto := &SendResultDTO{
		ThreadID:      string(r.ThreadID),
		State:         string(r.State),
		ThreadCreated: r.ThreadCreated,
	}
	if r.UserMessage != nil {
		m := FromDomainMessage(r.UserMessage)
		dto.UserMessage = &m
	}
	if r.Assistant != nil {
		m := FromDomainMessage(r.Assistant)
		dto.Assistant = &m
	}
	if r.Tokens.Total() > 0 {
		dto.Tokens = &TokensDTO{
			Prompt:     r.Tokens.PromptTokens,
			Completion: r.Tokens.CompletionTokens,
			Estimated:  r.Tokens.Estimated,
		}
	}
	return dto
}

// FromEditResult converts an edit outcome; original is the content before
// the edit.
func FromEditResult(original string, mode orchestrator.EditMode, r *orchestrator.EditResult) EditDTO {
	return EditDTO{
		Original: original,
		Message:  FromDomainMessage(r.Message),
		Branched: mode == orchestrator.EditAsBranch,
		Reply:    FromSendResult(r.Reply),
	}
}

// FromSettings converts a thread's overrides and resolved settings.
func FromSettings(threadID domain.ThreadID, overrides *domain.ThreadSettings, resolved domain.ResolvedSettings) SettingsDTO {
	return SettingsDTO{
		ThreadID:  string(threadID),
		Overrides: overrideMap(overrides),
		Resolved: ResolvedSettingsDTO{
			Provider:      resolved.ProviderID,
			Model:         resolved.ModelID,
			SystemPrompt:  resolved.SystemPrompt,
			ContextWindow: resolved.ContextWindow,
			MaxTokens:     resolved.MaxTokens,
			ExtraParams:   resolved.ExtraParams,
		},
	}
}

func overrideMap(s *domain.ThreadSettings) map[string]any {
	out := make(map[string]any)
	if s == nil {
		return out
	}
	if s.ProviderID != nil {
		out["provider"] = *s.ProviderID
	}
	if s.ModelID != nil {
		out["model"] = *s.ModelID
	}
	if s.SystemPrompt != nil {
		out["system_prompt"] = *s.SystemPrompt
	}
	if s.ContextWindow != nil {
		out["context_window"] = *s.ContextWindow
	}
	if s.MaxTokens != nil {
		out["max_tokens"] = *s.MaxTokens
	}
	if len(s.ExtraParams) > 0 {
		out["extra_params"] = s.ExtraParams
	}
	return out
}
