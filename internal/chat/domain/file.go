package domain

import "time"

// FileID identifies a stored attachment.
type FileID string

// MaxFileSize bounds a single attachment blob.
const MaxFileSize = 32 << 20

// FileRef is the identity and metadata of an attachment. The blob itself is
// loaded separately through FileRepository.
type FileRef struct {
	ID        FileID
	MessageID MessageID
	Name      string
	MimeType  string
	Size      int64
	CreatedAt time.Time
}

// FileUpload is an attachment to be stored with a message.
type FileUpload struct {
	Name     string
	MimeType string
	Data     []byte
}

// Validate checks name and size limits.
func (f FileUpload) Validate() error {
	if f.Name == "" {
		return &ValidationError{Field: "file.name", Reason: "is required"}
	}
	if len(f.Data) > MaxFileSize {
		return &ValidationError{Field: "file.data", Reason: "exceeds maximum attachment size"}
	}
	return nil
}

// FileEdits describes attachment changes applied together with a content edit.
type FileEdits struct {
	Add    []FileUpload
	Remove []FileID
}

// IsEmpty reports whether the edit changes nothing.
func (e *FileEdits) IsEmpty() bool {
	return e == nil || (len(e.Add) == 0 && len(e.Remove) == 0)
}
