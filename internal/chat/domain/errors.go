package domain

import (
	"errors"
	"fmt"
)

// ErrCancelled marks a generation that was pre-empted or explicitly stopped.
// It is never shown to the user as a failure.
var ErrCancelled = errors.New("generation cancelled")

// ValidationError reports a malformed request. It is returned before any
// persistence happens.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid request: " + e.Reason
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NotFoundError reports a reference to a nonexistent entity.
type NotFoundError struct {
	Kind string // "thread", "message", "settings", "file", "provider"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

// GenerationError wraps a failure of the model invocation. The orchestrator
// records it in the transcript as an assistant message and also returns it.
type GenerationError struct {
	Model string
	Err   error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation with %s failed: %v", e.Model, e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether err is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsGeneration reports whether err is (or wraps) a GenerationError.
func IsGeneration(err error) bool {
	var ge *GenerationError
	return errors.As(err, &ge)
}

// MessageNotFound builds the NotFoundError for a message ID.
func MessageNotFound(id MessageID) error {
	return &NotFoundError{Kind: "message", ID: fmt.Sprint(int64(id))}
}

// ThreadNotFound builds the NotFoundError for a thread ID.
func ThreadNotFound(id ThreadID) error {
	return &NotFoundError{Kind: "thread", ID: string(id)}
}
