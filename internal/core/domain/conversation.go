package domain

import "time"

// MessageRole identifies the author of a conversation message.
type MessageRole string

// Message roles.
const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// Conversation owns an ordered list of messages. Messages are
// append-only; within one conversation they are appended in strict
// send order.
type Conversation struct {
	// ID is the unique identifier for the conversation.
	ID string

	// Title is a short human-readable label.
	Title string

	// CreatedAt is when the conversation was started.
	CreatedAt time.Time

	// UpdatedAt is when the last message was appended.
	UpdatedAt time.Time
}

// Citation references a specific chunk an assistant answer draws from.
type Citation struct {
	// ChunkID is the cited chunk.
	ChunkID string `json:"chunk_id"`

	// ItemID is the item owning the cited chunk.
	ItemID string `json:"item_id"`

	// Index is the citation marker used in the answer text, e.g. 1
	// for "[1]".
	Index int `json:"index"`

	// Snippet is a short excerpt of the cited chunk.
	Snippet string `json:"snippet"`
}

// Message is a single conversation turn. Assistant messages carry zero
// or more citations, each referencing a specific chunk.
type Message struct {
	// ID is the unique identifier for the message.
	ID string

	// ConversationID links to the owning Conversation.
	ConversationID string

	// Role is the message author.
	Role MessageRole

	// Content is the message text.
	Content string

	// Citations are the chunks an assistant answer draws from.
	// Always empty for user messages.
	Citations []Citation

	// Verified reports whether the grounding check confirmed the
	// answer is supported by its citations. Unverified answers are
	// surfaced as such, never presented as grounded.
	Verified bool

	// CreatedAt is when the message was appended.
	CreatedAt time.Time
}
