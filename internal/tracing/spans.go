package tracing

// Span attribute keys.
const (
	AttrThreadID     = "chat.thread.id"
	AttrMessageID    = "chat.message.id"
	AttrParentID     = "chat.parent.id"
	AttrModel        = "chat.model"
	AttrProvider     = "chat.provider"
	AttrRegenerate   = "chat.regenerate"
	AttrStream       = "chat.stream"
	AttrOutcome      = "chat.outcome"
	AttrChunks       = "chat.chunks"
	AttrPathLength   = "chat.path.length"
	AttrPromptTokens = "llm.prompt_tokens"
	AttrTotalTokens  = "llm.total_tokens"

	AttrErrorMessage = "error.message"
	AttrErrorType    = "error.type"
)

// Span names.
const (
	SpanSend         = "chat.send"
	SpanGenerate     = "chat.generate"
	SpanRegenerate   = "chat.regenerate"
	SpanEdit         = "chat.edit"
	SpanSwitchBranch = "chat.switch_branch"
	SpanActivePath   = "chat.active_path"
	SpanTitle        = "chat.title"
)

// Event names for span events.
const (
	EventThreadCreated   = "thread.created"
	EventUserPersisted   = "user_message.persisted"
	EventFirstChunk      = "stream.first_chunk"
	EventCancelled       = "generation.cancelled"
	EventAssistantStored = "assistant_message.persisted"
)
