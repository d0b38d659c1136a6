package testutil

import "github.com/zjrosen/forkchat/internal/chat/domain"

// messageData holds all data for a message to be inserted.
type messageData struct {
	label    string
	thread   domain.ThreadID
	parent   string // label of the parent, "" for a root
	role     domain.Role
	content  string
	model    string
	errText  string
	files    []domain.FileUpload
	explicit bool // parent set through Parent or Root
}

// MessageOption configures a message added with WithUser or WithAssistant.
type MessageOption func(*messageData)

// Parent places the message under the message with the given label.
// Without Parent (or Root) a message continues the previously added message.
func Parent(label string) MessageOption {
	return func(m *messageData) {
		m.parent = label
		m.explicit = true
	}
}

// Root makes the message a root of its thread.
func Root() MessageOption {
	return func(m *messageData) {
		m.parent = ""
		m.explicit = true
	}
}

// InThread overrides the thread the message is created in.
func InThread(id domain.ThreadID) MessageOption {
	return func(m *messageData) {
		m.thread = id
	}
}

// Model sets the producing model.
func Model(model string) MessageOption {
	return func(m *messageData) {
		m.model = model
	}
}

// Failed marks an assistant message as a recorded generation failure.
func Failed(errText string) MessageOption {
	return func(m *messageData) {
		m.errText = errText
	}
}

// Attach adds an attachment.
func Attach(name, mimeType string, data []byte) MessageOption {
	return func(m *messageData) {
		m.files = append(m.files, domain.FileUpload{Name: name, MimeType: mimeType, Data: data})
	}
}
