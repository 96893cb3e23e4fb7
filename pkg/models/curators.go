package models

import "time"

// Curator represents a registered curator on a monitored server.
// Curators are never hard-deleted while activity references them; IsActive
// is flipped off instead.
type Curator struct {
	ID             string   `json:"id" db:"id"`
	ServerID       string   `json:"server_id" db:"server_id"`
	PlatformUserID string   `json:"platform_user_id" db:"platform_user_id"`
	DisplayName    string   `json:"display_name" db:"display_name"`
	CuratorType    string   `json:"curator_type" db:"curator_type"`
	FactionTags    []string `json:"faction_tags,omitempty" db:"faction_tags"`

	// Status
	IsActive      bool       `json:"is_active" db:"is_active"`
	LastSeenAt    *time.Time `json:"last_seen_at,omitempty" db:"last_seen_at"`
	DeactivatedAt *time.Time `json:"deactivated_at,omitempty" db:"deactivated_at"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// CuratorSummary is the roster projection served to the dashboard: the
// curator plus current-period aggregates.
type CuratorSummary struct {
	Curator
	ActivityPoints int64    `json:"activity_points"`
	ResponseCount  int64    `json:"response_count"`
	FinalScore     int64    `json:"final_score"`
	TierLabel      string   `json:"tier_label,omitempty"`
	AvgLatency     *float64 `json:"avg_latency_seconds,omitempty"`
}
