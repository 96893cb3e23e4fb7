package models

import "time"

// ChatEventKind is the kind of a normalized chat-platform event.
type ChatEventKind string

const (
	ChatEventMessage  ChatEventKind = "message"
	ChatEventReply    ChatEventKind = "reply"
	ChatEventReaction ChatEventKind = "reaction"
)

// ChatEvent is one normalized event from the gateway bridge.
// The bridge owns the platform connection and role resolution; this service
// only ever sees events in this shape.
type ChatEvent struct {
	EventID         string        `json:"event_id"`
	Kind            ChatEventKind `json:"kind"`
	ServerID        string        `json:"server_id"`
	ChannelID       string        `json:"channel_id"`
	AuthorID        string        `json:"author_id"`
	AuthorName      string        `json:"author_name,omitempty"`
	AuthorIsBot     bool          `json:"author_is_bot,omitempty"`
	AuthorIsCurator bool          `json:"author_is_curator,omitempty"`
	MessageID       string        `json:"message_id,omitempty"`
	// TargetMessageID is the replied-to message for replies and the reacted
	// message for reactions; empty for plain messages.
	TargetMessageID string    `json:"target_message_id,omitempty"`
	TargetAuthorID  string    `json:"target_author_id,omitempty"`
	Content         string    `json:"content,omitempty"`
	Emoji           string    `json:"emoji,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
}
