package models

import "time"

// RatingTier pairs a minimum score with the label and color assigned to it.
// Tiers are evaluated highest threshold first; the last tier carries
// MinScore 0 so the mapping is exhaustive.
type RatingTier struct {
	MinScore int64  `json:"min_score"`
	Label    string `json:"label"`
	Color    string `json:"color"`
}

// RatingSnapshot is the per-curator, per-period rating aggregate. Snapshots
// are replaced wholesale each computation, never incrementally mutated.
type RatingSnapshot struct {
	CuratorID   string    `json:"curator_id" db:"curator_id"`
	ServerID    string    `json:"server_id" db:"server_id"`
	PeriodStart time.Time `json:"period_start" db:"period_start"`
	PeriodEnd   time.Time `json:"period_end" db:"period_end"`

	// Activity side
	Messages          int64 `json:"messages" db:"messages"`
	Reactions         int64 `json:"reactions" db:"reactions"`
	Replies           int64 `json:"replies" db:"replies"`
	TaskVerifications int64 `json:"task_verifications" db:"task_verifications"`
	ActivityPoints    int64 `json:"activity_points" db:"activity_points"`

	// Response side
	ResponseCount     int64    `json:"response_count" db:"response_count"`
	AvgLatencySeconds *float64 `json:"avg_latency_seconds,omitempty" db:"avg_latency_seconds"`
	ResponseModifier  int64    `json:"response_modifier" db:"response_modifier"`

	FinalScore int64  `json:"final_score" db:"final_score"`
	TierLabel  string `json:"tier_label" db:"tier_label"`
	TierColor  string `json:"tier_color" db:"tier_color"`

	ComputedAt time.Time `json:"computed_at" db:"computed_at"`
}
