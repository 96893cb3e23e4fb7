package testutil

import (
	"database/sql/driver"
	"strings"
	"time"

	"lookout/pkg/models"
)

// DatabaseFixtures provides test data fixtures for database testing
type DatabaseFixtures struct{}

// NewDatabaseFixtures creates a new database fixtures helper
func NewDatabaseFixtures() *DatabaseFixtures {
	return &DatabaseFixtures{}
}

// OpenHelpRequest creates an awaiting help request with no response fields set
func (f *DatabaseFixtures) OpenHelpRequest() *models.HelpRequest {
	mentionedAt := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	return &models.HelpRequest{
		ID:               "req-open-test",
		ServerID:         "srv-123",
		ChannelID:        "chan-771",
		RequesterID:      "user-42",
		RequesterName:    "newcomer",
		MentionMessageID: "msg-1001",
		MentionedRoleID:  nil, // NULL pointer
		Excerpt:          "куратор помогите с квестом",
		MentionedAt:      mentionedAt,
		LastNudgedAt:     mentionedAt,
		NudgeCount:       0,
		ResponderID:      nil, // NULL pointer
		RespondedAt:      nil, // NULL pointer
		ResponseKind:     nil, // NULL pointer
		LatencySeconds:   nil, // NULL pointer
		EscalationTier:   0,
		State:            models.HelpRequestAwaiting,
		CreatedAt:        mentionedAt,
		UpdatedAt:        mentionedAt,
	}
}

// AnsweredHelpRequest creates a closed help request with all response fields set
func (f *DatabaseFixtures) AnsweredHelpRequest() *models.HelpRequest {
	mentionedAt := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	respondedAt := mentionedAt.Add(37 * time.Second)
	responderID := "cur-7"
	roleID := "role-curators"
	kind := models.ResponseReply
	latency := int64(37)

	return &models.HelpRequest{
		ID:               "req-answered-test",
		ServerID:         "srv-123",
		ChannelID:        "chan-771",
		RequesterID:      "user-42",
		RequesterName:    "newcomer",
		MentionMessageID: "msg-1001",
		MentionedRoleID:  &roleID,
		MentionedUserIDs: []string{"user-curator-1"},
		Excerpt:          "куратор помогите с квестом",
		MentionedAt:      mentionedAt,
		LastNudgedAt:     mentionedAt,
		NudgeCount:       1,
		ResponderID:      &responderID,
		RespondedAt:      &respondedAt,
		ResponseKind:     &kind,
		LatencySeconds:   &latency,
		EscalationTier:   1,
		State:            models.HelpRequestAnswered,
		CreatedAt:        mentionedAt,
		UpdatedAt:        respondedAt,
	}
}

// ActiveCurator creates a registered active curator
func (f *DatabaseFixtures) ActiveCurator() *models.Curator {
	lastSeen := time.Date(2025, 3, 14, 8, 55, 0, 0, time.UTC)
	return &models.Curator{
		ID:             "cur-7",
		ServerID:       "srv-123",
		PlatformUserID: "user-curator-1",
		DisplayName:    "Вика",
		CuratorType:    "curator",
		FactionTags:    []string{"north"},
		IsActive:       true,
		LastSeenAt:     &lastSeen,
		DeactivatedAt:  nil, // NULL pointer
		CreatedAt:      time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC),
		UpdatedAt:      lastSeen,
	}
}

// GetHelpRequestColumns returns the column names for help request queries
func (f *DatabaseFixtures) GetHelpRequestColumns() []string {
	return []string{
		"id", "server_id", "channel_id", "requester_id", "requester_name",
		"mention_message_id", "mentioned_role_id", "mentioned_user_ids", "excerpt",
		"mentioned_at", "last_nudged_at", "nudge_count",
		"responder_id", "responded_at", "response_kind", "latency_seconds",
		"escalation_tier", "state", "created_at", "updated_at",
	}
}

// GetHelpRequestRowData returns row data for a given HelpRequest model
func (f *DatabaseFixtures) GetHelpRequestRowData(r *models.HelpRequest) []driver.Value {
	var kind interface{}
	if r.ResponseKind != nil {
		kind = string(*r.ResponseKind)
	}
	return []driver.Value{
		r.ID, r.ServerID, r.ChannelID, r.RequesterID, r.RequesterName,
		r.MentionMessageID, r.MentionedRoleID, PGTextArray(r.MentionedUserIDs), r.Excerpt,
		r.MentionedAt, r.LastNudgedAt, r.NudgeCount,
		r.ResponderID, r.RespondedAt, kind, r.LatencySeconds,
		r.EscalationTier, string(r.State), r.CreatedAt, r.UpdatedAt,
	}
}

// PGTextArray renders a string slice as a Postgres text[] literal, the wire
// form pq.StringArray scans from
func PGTextArray(values []string) string {
	if len(values) == 0 {
		return "{}"
	}
	return "{" + strings.Join(values, ",") + "}"
}

// GetCuratorColumns returns the column names for curator queries
func (f *DatabaseFixtures) GetCuratorColumns() []string {
	return []string{
		"id", "server_id", "platform_user_id", "display_name", "curator_type",
		"is_active", "last_seen_at", "deactivated_at", "created_at", "updated_at",
	}
}

// GetCuratorRowData returns row data for a given Curator model
func (f *DatabaseFixtures) GetCuratorRowData(c *models.Curator) []driver.Value {
	return []driver.Value{
		c.ID, c.ServerID, c.PlatformUserID, c.DisplayName, c.CuratorType,
		c.IsActive, c.LastSeenAt, c.DeactivatedAt, c.CreatedAt, c.UpdatedAt,
	}
}

// ActivityTotalsData creates test activity aggregates as the ClickHouse
// rollup query returns them
func (f *DatabaseFixtures) ActivityTotalsData() []map[string]interface{} {
	return []map[string]interface{}{
		{
			"curator_id":         "cur-7",
			"messages":           int64(40),
			"reactions":          int64(12),
			"replies":            int64(9),
			"task_verifications": int64(2),
			"points":             int64(160),
		},
		{
			"curator_id":         "cur-8",
			"messages":           int64(5),
			"reactions":          int64(3),
			"replies":            int64(1),
			"task_verifications": int64(0),
			"points":             int64(20),
		},
	}
}

// GetActivityTotalsColumns returns column names for activity rollup queries
func (f *DatabaseFixtures) GetActivityTotalsColumns() []string {
	return []string{"curator_id", "messages", "reactions", "replies", "task_verifications", "points"}
}

// NullTimeValue represents a nullable time value for SQL mocking
type NullTimeValue struct {
	Time  time.Time
	Valid bool
}

// Match implements sqlmock.Argument interface
func (n NullTimeValue) Match(v driver.Value) bool {
	switch val := v.(type) {
	case time.Time:
		return n.Valid && val.Equal(n.Time)
	case nil:
		return !n.Valid
	default:
		return false
	}
}

// NullStringValue represents a nullable string value for SQL mocking
type NullStringValue struct {
	String string
	Valid  bool
}

// Match implements sqlmock.Argument interface
func (n NullStringValue) Match(v driver.Value) bool {
	switch val := v.(type) {
	case string:
		return n.Valid && val == n.String
	case nil:
		return !n.Valid
	default:
		return false
	}
}

// NullIntValue represents a nullable int value for SQL mocking
type NullIntValue struct {
	Int   int
	Valid bool
}

// Match implements sqlmock.Argument interface
func (n NullIntValue) Match(v driver.Value) bool {
	switch val := v.(type) {
	case int:
		return n.Valid && val == n.Int
	case int64:
		return n.Valid && int64(n.Int) == val
	case nil:
		return !n.Valid
	default:
		return false
	}
}

// AnyTime matches any time.Time argument in sqlmock expectations
type AnyTime struct{}

// Match implements sqlmock.Argument interface
func (AnyTime) Match(v driver.Value) bool {
	_, ok := v.(time.Time)
	return ok
}
