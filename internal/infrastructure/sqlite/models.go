package sqlite

import (
	"encoding/json"
	"time"

	"github.com/zjrosen/forkchat/internal/chat/domain"
)

// ThreadModel represents the database row for the threads table.
// Timestamps are stored as Unix milliseconds.
type ThreadModel struct {
	ID           string
	Title        string
	ActiveRootID *int64 // nullable
	CreatedAt    int64
	UpdatedAt    int64
}

// toThreadModel converts a domain Thread entity to a database ThreadModel.
func toThreadModel(t *domain.Thread) *ThreadModel {
	return &ThreadModel{
		ID:           string(t.ID()),
		Title:        t.Title(),
		ActiveRootID: fromMessageIDPtr(t.ActiveRootID()),
		CreatedAt:    t.CreatedAt().UnixMilli(),
		UpdatedAt:    t.UpdatedAt().UnixMilli(),
	}
}

// toDomain converts a database ThreadModel to a domain Thread entity.
func (m *ThreadModel) toDomain() *domain.Thread {
	return domain.ReconstituteThread(
		domain.ThreadID(m.ID),
		m.Title,
		toMessageIDPtr(m.ActiveRootID),
		time.UnixMilli(m.CreatedAt),
		time.UnixMilli(m.UpdatedAt),
	)
}

// MessageModel represents the database row for the messages table.
type MessageModel struct {
	ID            int64
	ThreadID      string
	ParentID      *int64 // nullable, null for roots
	ActiveChildID *int64 // nullable, null means newest child
	Role          string
	Content       string
	Model         *string // nullable
	Error         *string // nullable
	CreatedAt     int64
}

// toDomain converts a database MessageModel to a domain Message entity.
func (m *MessageModel) toDomain() *domain.Message {
	var model, errText string
	if m.Model != nil {
		model = *m.Model
	}
	if m.Error != nil {
		errText = *m.Error
	}
	return domain.ReconstituteMessage(
		domain.MessageID(m.ID),
		domain.ThreadID(m.ThreadID),
		toMessageIDPtr(m.ParentID),
		toMessageIDPtr(m.ActiveChildID),
		domain.Role(m.Role),
		m.Content,
		model,
		errText,
		time.UnixMilli(m.CreatedAt),
	)
}

// FileModel represents the metadata columns of the files table.
// The blob column is only read by FileRepository.Open.
type FileModel struct {
	ID        string
	MessageID int64
	FileName  string
	MimeType  string
	Size      int64
	CreatedAt int64
}

func (m *FileModel) toDomain() domain.FileRef {
	return domain.FileRef{
		ID:        domain.FileID(m.ID),
		MessageID: domain.MessageID(m.MessageID),
		Name:      m.FileName,
		MimeType:  m.MimeType,
		Size:      m.Size,
		CreatedAt: time.UnixMilli(m.CreatedAt),
	}
}

// SettingsModel represents the database row for the thread_settings table.
type SettingsModel struct {
	ThreadID      string
	ProviderID    *string // nullable
	ModelID       *string // nullable
	SystemPrompt  *string // nullable
	ContextWindow *int64  // nullable
	MaxTokens     *int64  // nullable
	ExtraParams   *string // nullable, JSON encoded
	UpdatedAt     int64
}

// toSettingsModel converts domain ThreadSettings to a database SettingsModel.
func toSettingsModel(threadID domain.ThreadID, s *domain.ThreadSettings) (*SettingsModel, error) {
	m := &SettingsModel{
		ThreadID:     string(threadID),
		ProviderID:   s.ProviderID,
		ModelID:      s.ModelID,
		SystemPrompt: s.SystemPrompt,
		UpdatedAt:    time.Now().UnixMilli(),
	}
	if s.ContextWindow != nil {
		v := int64(*s.ContextWindow)
		m.ContextWindow = &v
	}
	if s.MaxTokens != nil {
		v := int64(*s.MaxTokens)
		m.MaxTokens = &v
	}
	if len(s.ExtraParams) > 0 {
		data, err := json.Marshal(s.ExtraParams)
		if err != nil {
			return nil, err
		}
		extra := string(data)
		m.ExtraParams = &extra
	}
	return m, nil
}

// toDomain converts a database SettingsModel to domain ThreadSettings.
func (m *SettingsModel) toDomain() *domain.ThreadSettings {
	s := &domain.ThreadSettings{
		ProviderID:   m.ProviderID,
		ModelID:      m.ModelID,
		SystemPrompt: m.SystemPrompt,
	}
	if m.ContextWindow != nil {
		v := int(*m.ContextWindow)
		s.ContextWindow = &v
	}
	if m.MaxTokens != nil {
		v := int(*m.MaxTokens)
		s.MaxTokens = &v
	}
	if m.ExtraParams != nil {
		_ = json.Unmarshal([]byte(*m.ExtraParams), &s.ExtraParams)
	}
	return s
}

func toMessageIDPtr(v *int64) *domain.MessageID {
	if v == nil {
		return nil
	}
	id := domain.MessageID(*v)
	return &id
}

func fromMessageIDPtr(id *domain.MessageID) *int64 {
	if id == nil {
		return nil
	}
	v := int64(*id)
	return &v
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
