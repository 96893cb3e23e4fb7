package models

import "time"

// HelpRequestState models the tracking-record lifecycle. A record opens as
// awaiting and closes exactly once, either answered or abandoned.
type HelpRequestState string

const (
	HelpRequestAwaiting  HelpRequestState = "awaiting"
	HelpRequestAnswered  HelpRequestState = "answered"
	HelpRequestAbandoned HelpRequestState = "abandoned"
)

// ResponseKind is how a curator closed a help request.
type ResponseKind string

const (
	ResponseMessage  ResponseKind = "message"
	ResponseReply    ResponseKind = "reply"
	ResponseReaction ResponseKind = "reaction"
)

// HelpRequest is one help-request lifecycle: opened by keyword detection,
// closed by the first qualifying curator response or abandoned by timeout.
// At most one record may be awaiting per (channel_id, requester_id); the
// schema enforces this with a partial unique index.
type HelpRequest struct {
	ID               string   `json:"id" db:"id"`
	ServerID         string   `json:"server_id" db:"server_id"`
	ChannelID        string   `json:"channel_id" db:"channel_id"`
	RequesterID      string   `json:"requester_id" db:"requester_id"`
	RequesterName    string   `json:"requester_name" db:"requester_name"`
	MentionMessageID string   `json:"mention_message_id" db:"mention_message_id"`
	MentionedRoleID  *string  `json:"mentioned_role_id,omitempty" db:"mentioned_role_id"`
	MentionedUserIDs []string `json:"mentioned_user_ids,omitempty" db:"mentioned_user_ids"`
	Excerpt          string   `json:"excerpt" db:"excerpt"`

	// MentionedAt anchors latency; repeat requests only bump LastNudgedAt.
	MentionedAt  time.Time `json:"mentioned_at" db:"mentioned_at"`
	LastNudgedAt time.Time `json:"last_nudged_at" db:"last_nudged_at"`
	NudgeCount   int       `json:"nudge_count" db:"nudge_count"`

	// Response fields, written only by the correlator.
	ResponderID    *string       `json:"responder_id,omitempty" db:"responder_id"`
	RespondedAt    *time.Time    `json:"responded_at,omitempty" db:"responded_at"`
	ResponseKind   *ResponseKind `json:"response_kind,omitempty" db:"response_kind"`
	LatencySeconds *int64        `json:"latency_seconds,omitempty" db:"latency_seconds"`

	// EscalationTier is written only by the scheduler and never decreases.
	EscalationTier int `json:"escalation_tier" db:"escalation_tier"`

	State     HelpRequestState `json:"state" db:"state"`
	CreatedAt time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt time.Time        `json:"updated_at" db:"updated_at"`
}

// Open reports whether the record still awaits a response.
func (r *HelpRequest) Open() bool {
	return r.State == HelpRequestAwaiting
}
