package handlers

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"lookout/internal/config"
	"lookout/pkg/kafka"
	"lookout/pkg/logging"
	"lookout/pkg/models"
)

const excerptLimit = 1000

// Correlator owns the help-request lifecycle in Postgres: opening tracked
// records when a help request is detected and closing them when a curator
// responds. All transitions are single-statement compare-and-swap updates so
// concurrent consumers and the escalation sweep never double-apply. A partial
// unique index on (channel_id, requester_id) WHERE state='awaiting' backs the
// one-open-record-per-requester-per-channel rule.
type Correlator struct {
	db      *sql.DB
	cfg     config.CorrelatorConfig
	tracker *trackerPublisher
	logger  logging.Logger
	metrics *LookoutMetrics
}

func NewCorrelator(db *sql.DB, cfg config.CorrelatorConfig, producer kafka.ProducerInterface, trackerTopic string, logger logging.Logger, metrics *LookoutMetrics) *Correlator {
	return &Correlator{
		db:      db,
		cfg:     cfg,
		tracker: newTrackerPublisher(producer, trackerTopic, logger, metrics),
		logger:  logger,
		metrics: metrics,
	}
}

// ClosedRequest is one tracked record closed by a qualifying response.
type ClosedRequest struct {
	ID             string
	ServerID       string
	ChannelID      string
	RequesterID    string
	MentionedAt    time.Time
	LatencySeconds int64
}

// OpenOrExtend records a detected help request. If the requester already has
// an awaiting record in the channel the existing record is extended instead:
// the nudge count goes up, the original mention timestamp stays put so
// latency and escalation keep measuring from the first ask. Returns the
// record id and whether a new record was opened.
func (c *Correlator) OpenOrExtend(ctx context.Context, event *models.ChatEvent, det Detection, curatorRoleID string) (string, bool, error) {
	var roleID *string
	if det.MentionsRole(curatorRoleID) && curatorRoleID != "" {
		roleID = &curatorRoleID
	}
	mentionedUsers := det.MentionedUsers
	if mentionedUsers == nil {
		mentionedUsers = []string{}
	}

	var (
		id          string
		mentionedAt time.Time
		nudgeCount  int
	)
	err := c.db.QueryRowContext(ctx, `
		INSERT INTO help_requests (server_id, channel_id, requester_id, requester_name,
			mention_message_id, mentioned_role_id, mentioned_user_ids, excerpt,
			mentioned_at, last_nudged_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
		ON CONFLICT (channel_id, requester_id) WHERE state = 'awaiting' DO UPDATE SET
			last_nudged_at = GREATEST(help_requests.last_nudged_at, EXCLUDED.last_nudged_at),
			nudge_count = help_requests.nudge_count + 1,
			updated_at = NOW()
		RETURNING id, mentioned_at, nudge_count`,
		event.ServerID, event.ChannelID, event.AuthorID, event.AuthorName,
		event.MessageID, roleID, pq.Array(mentionedUsers), truncateExcerpt(event.Content),
		event.Timestamp).Scan(&id, &mentionedAt, &nudgeCount)
	if err != nil {
		return "", false, fmt.Errorf("open help request %s/%s: %w", event.ChannelID, event.AuthorID, err)
	}

	opened := nudgeCount == 0
	transition := "opened"
	if !opened {
		transition = "extended"
	}
	countHelpTransition(c.metrics, event.ServerID, transition)
	c.logger.WithFields(logging.Fields{
		"request_id":  id,
		"server_id":   event.ServerID,
		"channel_id":  event.ChannelID,
		"requester":   event.AuthorID,
		"transition":  transition,
		"nudge_count": nudgeCount,
	}).Info("Help request tracked")

	if opened {
		c.tracker.publish(kafka.EventHelpRequestOpened, event.ServerID, event.ChannelID, &id, nil, map[string]interface{}{
			"requester_id":   event.AuthorID,
			"requester_name": event.AuthorName,
			"keyword_hit":    det.KeywordHit,
			"mentioned_at":   mentionedAt.UTC().Format(time.RFC3339Nano),
		})
	}
	return id, opened, nil
}

// CloseOnResponse attempts to close awaiting records against a curator event.
// Which records qualify depends on the event kind:
//
//   - reply: the record whose requester authored the replied-to message, or
//     whose mention message is the reply target
//   - reaction: the record whose mention message was reacted to (only when
//     reactions are configured as qualifying responses)
//   - message: every awaiting record in the channel asked before the message
//
// A requester can never close their own record. Records already closed by a
// concurrent response stay closed with the first responder; this call then
// returns them as not matched.
func (c *Correlator) CloseOnResponse(ctx context.Context, event *models.ChatEvent, curator *models.Curator) ([]ClosedRequest, error) {
	var (
		rows *sql.Rows
		err  error
		kind models.ResponseKind
	)

	switch event.Kind {
	case models.ChatEventReply:
		kind = models.ResponseReply
		rows, err = c.db.QueryContext(ctx, `
			UPDATE help_requests
			SET responder_id = $1, responded_at = $2, response_kind = 'reply',
				latency_seconds = GREATEST(0, FLOOR(EXTRACT(EPOCH FROM ($2::timestamptz - mentioned_at)))::bigint),
				state = 'answered', updated_at = NOW()
			WHERE channel_id = $3 AND state = 'awaiting' AND requester_id <> $4
				AND (requester_id = $5 OR mention_message_id = $6)
			RETURNING id, server_id, channel_id, requester_id, mentioned_at, latency_seconds`,
			curator.ID, event.Timestamp, event.ChannelID, event.AuthorID,
			event.TargetAuthorID, event.TargetMessageID)
	case models.ChatEventReaction:
		if !c.cfg.ReactionCloses {
			return nil, nil
		}
		kind = models.ResponseReaction
		rows, err = c.db.QueryContext(ctx, `
			UPDATE help_requests
			SET responder_id = $1, responded_at = $2, response_kind = 'reaction',
				latency_seconds = GREATEST(0, FLOOR(EXTRACT(EPOCH FROM ($2::timestamptz - mentioned_at)))::bigint),
				state = 'answered', updated_at = NOW()
			WHERE channel_id = $3 AND state = 'awaiting' AND requester_id <> $4
				AND mention_message_id = $5
			RETURNING id, server_id, channel_id, requester_id, mentioned_at, latency_seconds`,
			curator.ID, event.Timestamp, event.ChannelID, event.AuthorID,
			event.TargetMessageID)
	case models.ChatEventMessage:
		kind = models.ResponseMessage
		rows, err = c.db.QueryContext(ctx, `
			UPDATE help_requests
			SET responder_id = $1, responded_at = $2, response_kind = 'message',
				latency_seconds = GREATEST(0, FLOOR(EXTRACT(EPOCH FROM ($2::timestamptz - mentioned_at)))::bigint),
				state = 'answered', updated_at = NOW()
			WHERE channel_id = $3 AND state = 'awaiting' AND requester_id <> $4
				AND mentioned_at < $2
			RETURNING id, server_id, channel_id, requester_id, mentioned_at, latency_seconds`,
			curator.ID, event.Timestamp, event.ChannelID, event.AuthorID)
	default:
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("close help requests in %s: %w", event.ChannelID, err)
	}
	defer func() { _ = rows.Close() }()

	var closed []ClosedRequest
	for rows.Next() {
		var rec ClosedRequest
		if err := rows.Scan(&rec.ID, &rec.ServerID, &rec.ChannelID, &rec.RequesterID,
			&rec.MentionedAt, &rec.LatencySeconds); err != nil {
			return closed, fmt.Errorf("scan closed help request: %w", err)
		}
		closed = append(closed, rec)
	}
	if err := rows.Err(); err != nil {
		return closed, fmt.Errorf("close help requests in %s: %w", event.ChannelID, err)
	}

	for _, rec := range closed {
		if event.Timestamp.Before(rec.MentionedAt) {
			// Latency already clamped to zero in SQL; flag the skewed clock.
			c.logger.WithFields(logging.Fields{
				"request_id":   rec.ID,
				"mentioned_at": rec.MentionedAt,
				"responded_at": event.Timestamp,
			}).Warn("Response timestamp precedes mention, latency clamped to zero")
		}
		countHelpTransition(c.metrics, rec.ServerID, "answered")
		observeResponseLatency(c.metrics, rec.ServerID, rec.LatencySeconds)
		c.logger.WithFields(logging.Fields{
			"request_id":      rec.ID,
			"server_id":       rec.ServerID,
			"channel_id":      rec.ChannelID,
			"requester":       rec.RequesterID,
			"responder":       curator.ID,
			"response_kind":   kind,
			"latency_seconds": rec.LatencySeconds,
		}).Info("Help request answered")
		requestID := rec.ID
		curatorID := curator.ID
		c.tracker.publish(kafka.EventHelpRequestAnswered, rec.ServerID, rec.ChannelID, &requestID, &curatorID, map[string]interface{}{
			"requester_id":    rec.RequesterID,
			"responder_id":    curator.PlatformUserID,
			"response_kind":   string(kind),
			"latency_seconds": rec.LatencySeconds,
		})
	}
	return closed, nil
}

func countHelpTransition(metrics *LookoutMetrics, serverID, transition string) {
	if metrics == nil || metrics.HelpRequests == nil {
		return
	}
	metrics.HelpRequests.WithLabelValues(serverID, transition).Inc()
}

func observeResponseLatency(metrics *LookoutMetrics, serverID string, latencySeconds int64) {
	if metrics == nil || metrics.ResponseLatency == nil {
		return
	}
	metrics.ResponseLatency.WithLabelValues(serverID).Observe(float64(latencySeconds))
}

func truncateExcerpt(content string) string {
	runes := []rune(content)
	if len(runes) <= excerptLimit {
		return content
	}
	return string(runes[:excerptLimit])
}
