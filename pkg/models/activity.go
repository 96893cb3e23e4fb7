package models

import "time"

// ActivityKind is the kind of one observed curator action.
type ActivityKind string

const (
	ActivityMessage          ActivityKind = "message"
	ActivityReaction         ActivityKind = "reaction"
	ActivityReply            ActivityKind = "reply"
	ActivityTaskVerification ActivityKind = "task_verification"
)

// ActivityRecord is one append-only row in the ClickHouse activity ledger.
// Points are resolved from the weight configuration at write time, so later
// weight changes never re-score history.
type ActivityRecord struct {
	EventID        string       `json:"event_id"`
	ServerID       string       `json:"server_id"`
	ChannelID      string       `json:"channel_id"`
	CuratorID      string       `json:"curator_id"`
	PlatformUserID string       `json:"platform_user_id"`
	Kind           ActivityKind `json:"kind"`
	Points         int32        `json:"points"`
	Detail         string       `json:"detail,omitempty"`
	Timestamp      time.Time    `json:"timestamp"`
}

// ActivityTotals aggregates ledger rows for one curator over one window.
type ActivityTotals struct {
	CuratorID         string `json:"curator_id"`
	Messages          int64  `json:"messages"`
	Reactions         int64  `json:"reactions"`
	Replies           int64  `json:"replies"`
	TaskVerifications int64  `json:"task_verifications"`
	Points            int64  `json:"points"`
}
