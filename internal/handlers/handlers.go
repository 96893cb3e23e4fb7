package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lib/pq"

	"lookout/pkg/models"
	"lookout/pkg/pagination"
)

const leaderboardCacheTTL = time.Minute

// GetServers returns every registered server.
func GetServers(c *gin.Context) {
	rows, err := db.QueryContext(c.Request.Context(), `
		SELECT id, name, curator_role_id, help_channel_ids, task_channel_ids,
		       is_active, created_at, updated_at
		FROM servers
		ORDER BY name`)
	if err != nil {
		logger.WithError(err).Error("Failed to list servers")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list servers"})
		return
	}
	defer rows.Close()

	var servers []models.MonitoredServer
	for rows.Next() {
		var server models.MonitoredServer
		if err := rows.Scan(&server.ID, &server.Name, &server.CuratorRoleID,
			pq.Array(&server.HelpChannelIDs), pq.Array(&server.TaskChannelIDs),
			&server.IsActive, &server.CreatedAt, &server.UpdatedAt); err != nil {
			logger.WithError(err).Error("Failed to scan server")
			continue
		}
		servers = append(servers, server)
	}

	c.JSON(http.StatusOK, gin.H{"servers": servers})
}

// GetCurators returns one server's roster enriched with the running period's
// rating aggregates. Curators without a snapshot yet come back zeroed.
func GetCurators(c *gin.Context) {
	serverID := c.Query("server_id")
	if serverID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "server_id is required"})
		return
	}

	periodStart, _ := appConfig.Rating.PeriodBounds(time.Now().UTC())

	rows, err := db.QueryContext(c.Request.Context(), `
		SELECT c.id, c.server_id, c.platform_user_id, c.display_name, c.curator_type,
		       c.faction_tags, c.is_active, c.last_seen_at, c.deactivated_at,
		       c.created_at, c.updated_at,
		       COALESCE(rs.activity_points, 0), COALESCE(rs.response_count, 0),
		       COALESCE(rs.final_score, 0), COALESCE(rs.tier_label, ''), rs.avg_latency_seconds
		FROM curators c
		LEFT JOIN rating_snapshots rs ON rs.curator_id = c.id AND rs.period_start = $2
		WHERE c.server_id = $1
		ORDER BY COALESCE(rs.final_score, 0) DESC, c.display_name`,
		serverID, periodStart)
	if err != nil {
		logger.WithError(err).Error("Failed to list curators")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list curators"})
		return
	}
	defer rows.Close()

	var curators []models.CuratorSummary
	for rows.Next() {
		var cur models.CuratorSummary
		if err := rows.Scan(&cur.ID, &cur.ServerID, &cur.PlatformUserID, &cur.DisplayName,
			&cur.CuratorType, pq.Array(&cur.FactionTags), &cur.IsActive, &cur.LastSeenAt,
			&cur.DeactivatedAt, &cur.CreatedAt, &cur.UpdatedAt,
			&cur.ActivityPoints, &cur.ResponseCount, &cur.FinalScore, &cur.TierLabel,
			&cur.AvgLatency); err != nil {
			logger.WithError(err).Error("Failed to scan curator")
			continue
		}
		curators = append(curators, cur)
	}

	c.JSON(http.StatusOK, gin.H{"curators": curators, "period_start": periodStart})
}

// GetCuratorRating returns one curator's snapshot for the period containing
// the optional ?period=YYYY-MM-DD anchor. Default is the running period.
func GetCuratorRating(c *gin.Context) {
	curatorID := c.Param("id")
	if _, err := uuid.Parse(curatorID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid curator id"})
		return
	}

	anchor := time.Now().UTC()
	if raw := c.Query("period"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid period, expected YYYY-MM-DD"})
			return
		}
		anchor = parsed
	}
	periodStart, _ := appConfig.Rating.PeriodBounds(anchor)

	var snap models.RatingSnapshot
	err := db.QueryRowContext(c.Request.Context(), `
		SELECT curator_id, server_id, period_start, period_end,
		       messages, reactions, replies, task_verifications, activity_points,
		       response_count, avg_latency_seconds, response_modifier,
		       final_score, tier_label, tier_color, computed_at
		FROM rating_snapshots
		WHERE curator_id = $1 AND period_start = $2`,
		curatorID, periodStart).Scan(
		&snap.CuratorID, &snap.ServerID, &snap.PeriodStart, &snap.PeriodEnd,
		&snap.Messages, &snap.Reactions, &snap.Replies, &snap.TaskVerifications,
		&snap.ActivityPoints, &snap.ResponseCount, &snap.AvgLatencySeconds,
		&snap.ResponseModifier, &snap.FinalScore, &snap.TierLabel, &snap.TierColor,
		&snap.ComputedAt)
	if errors.Is(err, sql.ErrNoRows) {
		c.JSON(http.StatusNotFound, gin.H{"error": "No rating recorded for this period"})
		return
	}
	if err != nil {
		logger.WithError(err).Error("Failed to get curator rating")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get curator rating"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"rating": snap})
}

type leaderboardEntry struct {
	Rank        int    `json:"rank"`
	CuratorName string `json:"curator_name"`
	models.RatingSnapshot
}

// GetLeaderboard returns one server's standings for the running period, best
// score first. Pages are cached in Redis for a minute when a client is
// configured.
func GetLeaderboard(c *gin.Context) {
	serverID := c.Query("server_id")
	if serverID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "server_id is required"})
		return
	}
	limit := pagination.DefaultLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit"})
			return
		}
		limit = pagination.ClampLimit(parsed)
	}

	periodStart, periodEnd := appConfig.Rating.PeriodBounds(time.Now().UTC())

	cacheKey := fmt.Sprintf("lookout:leaderboard:%s:%s:%d",
		serverID, periodStart.Format("2006-01-02"), limit)
	if redisClient != nil {
		if cached, err := redisClient.Get(c.Request.Context(), cacheKey).Bytes(); err == nil {
			c.Data(http.StatusOK, "application/json; charset=utf-8", cached)
			return
		}
	}

	rows, err := db.QueryContext(c.Request.Context(), `
		SELECT cu.display_name,
		       rs.curator_id, rs.server_id, rs.period_start, rs.period_end,
		       rs.messages, rs.reactions, rs.replies, rs.task_verifications, rs.activity_points,
		       rs.response_count, rs.avg_latency_seconds, rs.response_modifier,
		       rs.final_score, rs.tier_label, rs.tier_color, rs.computed_at
		FROM rating_snapshots rs
		JOIN curators cu ON cu.id = rs.curator_id
		WHERE rs.server_id = $1 AND rs.period_start = $2
		ORDER BY rs.final_score DESC, cu.display_name
		LIMIT $3`,
		serverID, periodStart, limit)
	if err != nil {
		logger.WithError(err).Error("Failed to get leaderboard")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get leaderboard"})
		return
	}
	defer rows.Close()

	var entries []leaderboardEntry
	for rows.Next() {
		var entry leaderboardEntry
		if err := rows.Scan(&entry.CuratorName,
			&entry.CuratorID, &entry.ServerID, &entry.PeriodStart, &entry.PeriodEnd,
			&entry.Messages, &entry.Reactions, &entry.Replies, &entry.TaskVerifications,
			&entry.ActivityPoints, &entry.ResponseCount, &entry.AvgLatencySeconds,
			&entry.ResponseModifier, &entry.FinalScore, &entry.TierLabel, &entry.TierColor,
			&entry.ComputedAt); err != nil {
			logger.WithError(err).Error("Failed to scan leaderboard row")
			continue
		}
		entry.Rank = len(entries) + 1
		entries = append(entries, entry)
	}

	response := gin.H{
		"server_id":    serverID,
		"period_start": periodStart,
		"period_end":   periodEnd,
		"entries":      entries,
	}

	if redisClient != nil {
		if payload, err := json.Marshal(response); err == nil {
			if err := redisClient.Set(c.Request.Context(), cacheKey, payload, leaderboardCacheTTL).Err(); err != nil {
				logger.WithError(err).Debug("Failed to cache leaderboard")
			}
		}
	}

	c.JSON(http.StatusOK, response)
}

// ListHelpRequests returns tracking records, newest first, with keyset
// pagination (first/after forward, last/before backward).
func ListHelpRequests(c *gin.Context) {
	state := c.Query("state")
	switch models.HelpRequestState(state) {
	case "", models.HelpRequestAwaiting, models.HelpRequestAnswered, models.HelpRequestAbandoned:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid state filter"})
		return
	}
	serverID := c.Query("server_id")

	req := &pagination.Request{}
	if raw := c.Query("first"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid first"})
			return
		}
		req.First = int32(parsed)
	}
	if raw := c.Query("last"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid last"})
			return
		}
		req.Last = int32(parsed)
	}
	if after := c.Query("after"); after != "" {
		req.After = &after
	}
	if before := c.Query("before"); before != "" {
		req.Before = &before
	}
	params, err := pagination.Parse(req)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid cursor"})
		return
	}

	var conditions []string
	var args []interface{}
	if serverID != "" {
		args = append(args, serverID)
		conditions = append(conditions, fmt.Sprintf("server_id = $%d", len(args)))
	}
	if state != "" {
		args = append(args, state)
		conditions = append(conditions, fmt.Sprintf("state = $%d", len(args)))
	}

	countQuery := "SELECT COUNT(*) FROM help_requests"
	if len(conditions) > 0 {
		countQuery += " WHERE " + strings.Join(conditions, " AND ")
	}
	var total int32
	if err := db.QueryRowContext(c.Request.Context(), countQuery, args...).Scan(&total); err != nil {
		logger.WithError(err).Error("Failed to count help requests")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list help requests"})
		return
	}

	builder := &pagination.KeysetBuilder{
		TimestampColumn: "mentioned_at",
		IDColumn:        "id",
	}
	if condition, cursorArgs := builder.Condition(params, len(args)+1); condition != "" {
		conditions = append(conditions, condition)
		args = append(args, cursorArgs...)
	}

	query := `
		SELECT id, server_id, channel_id, requester_id, requester_name,
		       mention_message_id, mentioned_role_id, mentioned_user_ids, excerpt,
		       mentioned_at, last_nudged_at, nudge_count,
		       responder_id, responded_at, response_kind, latency_seconds,
		       escalation_tier, state, created_at, updated_at
		FROM help_requests`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " " + builder.OrderBy(params)
	query += fmt.Sprintf(" LIMIT %d", params.Limit+1)

	rows, err := db.QueryContext(c.Request.Context(), query, args...)
	if err != nil {
		logger.WithError(err).Error("Failed to list help requests")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list help requests"})
		return
	}
	defer rows.Close()

	var requests []models.HelpRequest
	for rows.Next() {
		var r models.HelpRequest
		if err := rows.Scan(&r.ID, &r.ServerID, &r.ChannelID, &r.RequesterID, &r.RequesterName,
			&r.MentionMessageID, &r.MentionedRoleID, pq.Array(&r.MentionedUserIDs), &r.Excerpt,
			&r.MentionedAt, &r.LastNudgedAt, &r.NudgeCount,
			&r.ResponderID, &r.RespondedAt, &r.ResponseKind, &r.LatencySeconds,
			&r.EscalationTier, &r.State, &r.CreatedAt, &r.UpdatedAt); err != nil {
			logger.WithError(err).Error("Failed to scan help request")
			continue
		}
		requests = append(requests, r)
	}

	fetched := len(requests)
	if fetched > params.Limit {
		requests = requests[:params.Limit]
	}
	if params.Direction == pagination.Backward {
		for i, j := 0, len(requests)-1; i < j; i, j = i+1, j-1 {
			requests[i], requests[j] = requests[j], requests[i]
		}
	}

	var startCursor, endCursor string
	if len(requests) > 0 {
		first := requests[0]
		last := requests[len(requests)-1]
		startCursor = pagination.EncodeCursor(first.MentionedAt, first.ID)
		endCursor = pagination.EncodeCursor(last.MentionedAt, last.ID)
	}

	c.JSON(http.StatusOK, gin.H{
		"requests":   requests,
		"pagination": pagination.BuildResponse(fetched, params.Limit, params.Direction, total, startCursor, endCursor),
	})
}

// GetHelpRequest returns one tracking record.
func GetHelpRequest(c *gin.Context) {
	requestID := c.Param("id")
	if _, err := uuid.Parse(requestID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request id"})
		return
	}

	var r models.HelpRequest
	err := db.QueryRowContext(c.Request.Context(), `
		SELECT id, server_id, channel_id, requester_id, requester_name,
		       mention_message_id, mentioned_role_id, mentioned_user_ids, excerpt,
		       mentioned_at, last_nudged_at, nudge_count,
		       responder_id, responded_at, response_kind, latency_seconds,
		       escalation_tier, state, created_at, updated_at
		FROM help_requests
		WHERE id = $1`, requestID).Scan(
		&r.ID, &r.ServerID, &r.ChannelID, &r.RequesterID, &r.RequesterName,
		&r.MentionMessageID, &r.MentionedRoleID, pq.Array(&r.MentionedUserIDs), &r.Excerpt,
		&r.MentionedAt, &r.LastNudgedAt, &r.NudgeCount,
		&r.ResponderID, &r.RespondedAt, &r.ResponseKind, &r.LatencySeconds,
		&r.EscalationTier, &r.State, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Help request not found"})
		return
	}
	if err != nil {
		logger.WithError(err).Error("Failed to get help request")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get help request"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"request": r})
}

type activityBreakdown struct {
	CuratorID string `json:"curator_id"`
	Kind      string `json:"kind"`
	Events    int64  `json:"events"`
	Points    int64  `json:"points"`
}

// trailingDays parses the optional ?days window, default 7, 1-90 allowed.
func trailingDays(c *gin.Context) (int, bool) {
	days := 7
	if raw := c.Query("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 90 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid days, expected 1-90"})
			return 0, false
		}
		days = parsed
	}
	return days, true
}

// GetActivitySummary returns per-curator, per-kind event counts from the
// ClickHouse ledger over the trailing N days.
func GetActivitySummary(c *gin.Context) {
	serverID := c.Query("server_id")
	if serverID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "server_id is required"})
		return
	}

	days, ok := trailingDays(c)
	if !ok {
		return
	}
	since := time.Now().UTC().AddDate(0, 0, -days)

	rows, err := chdb.QueryContext(c.Request.Context(), `
		SELECT curator_id, kind, count() AS events, sum(points) AS points
		FROM curator_activity
		WHERE server_id = ? AND timestamp >= ?
		GROUP BY curator_id, kind
		ORDER BY curator_id, kind`,
		serverID, since)
	if err != nil {
		logger.WithError(err).Error("Failed to query activity summary")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get activity summary"})
		return
	}
	defer rows.Close()

	var breakdown []activityBreakdown
	for rows.Next() {
		var row activityBreakdown
		if err := rows.Scan(&row.CuratorID, &row.Kind, &row.Events, &row.Points); err != nil {
			logger.WithError(err).Error("Failed to scan activity row")
			continue
		}
		breakdown = append(breakdown, row)
	}

	c.JSON(http.StatusOK, gin.H{
		"server_id": serverID,
		"since":     since,
		"activity":  breakdown,
	})
}

// GetActivityTotals returns per-curator ledger rollups over the trailing N
// days, the same aggregates the rating engine consumes.
func GetActivityTotals(c *gin.Context) {
	serverID := c.Query("server_id")
	if serverID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "server_id is required"})
		return
	}
	days, ok := trailingDays(c)
	if !ok {
		return
	}
	now := time.Now().UTC()
	since := now.AddDate(0, 0, -days)

	totals, err := ledger.TotalsBetween(c.Request.Context(), serverID, since, now)
	if err != nil {
		logger.WithError(err).Error("Failed to get activity totals")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get activity totals"})
		return
	}

	rollup := make([]models.ActivityTotals, 0, len(totals))
	for _, t := range totals {
		rollup = append(rollup, t)
	}
	sort.Slice(rollup, func(i, j int) bool {
		if rollup[i].Points != rollup[j].Points {
			return rollup[i].Points > rollup[j].Points
		}
		return rollup[i].CuratorID < rollup[j].CuratorID
	})

	c.JSON(http.StatusOK, gin.H{"server_id": serverID, "since": since, "totals": rollup})
}
