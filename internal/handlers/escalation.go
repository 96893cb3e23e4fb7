package handlers

import (
	"context"
	"database/sql"
	"time"

	"lookout/internal/config"
	"lookout/internal/notify"
	"lookout/pkg/kafka"
	"lookout/pkg/logging"
)

// notifyTimeout bounds a single alert or digest delivery.
const notifyTimeout = 10 * time.Second

// NotificationSink delivers escalation alerts and rating digests. The notify
// dispatcher implements it; tests substitute a recorder.
type NotificationSink interface {
	Alert(ctx context.Context, alert notify.Alert) error
	Digest(ctx context.Context, digest notify.Digest) error
}

// Escalator runs the periodic sweep over awaiting help requests: advancing
// records across reminder tiers, abandoning the ones nobody ever answered
// and repairing duplicate open records.
//
// Tier advancement is a compare-and-swap on (state, escalation_tier), and the
// notification goes out only after the advance committed. A crash between the
// two loses at most one reminder; it can never duplicate one.
type Escalator struct {
	db      *sql.DB
	cfg     config.EscalationConfig
	roster  *Roster
	sink    NotificationSink
	tracker *trackerPublisher
	logger  logging.Logger
	metrics *LookoutMetrics
}

func NewEscalator(db *sql.DB, cfg config.EscalationConfig, roster *Roster, sink NotificationSink, producer kafka.ProducerInterface, trackerTopic string, logger logging.Logger, metrics *LookoutMetrics) *Escalator {
	return &Escalator{
		db:      db,
		cfg:     cfg,
		roster:  roster,
		sink:    sink,
		tracker: newTrackerPublisher(producer, trackerTopic, logger, metrics),
		logger:  logger,
		metrics: metrics,
	}
}

type escalationCandidate struct {
	id            string
	serverID      string
	channelID     string
	requesterID   string
	requesterName string
	excerpt       string
	mentionedAt   time.Time
	roleID        *string
	tier          int
}

// RunSweep executes one sweep pass at the given instant. Each step logs its
// own failures and the sweep moves on; an unreachable database or sink must
// never take the loop down.
func (e *Escalator) RunSweep(ctx context.Context, now time.Time) {
	e.repairDuplicates(ctx)
	if e.cfg.AbandonAfter > 0 {
		e.abandonStale(ctx, now)
	}
	e.escalateDue(ctx, now)
	e.refreshOpenGauge(ctx)
}

// tierFor returns the highest tier whose boundary the age has crossed,
// 1-based; 0 means no boundary crossed yet.
func (e *Escalator) tierFor(age time.Duration) int {
	tier := 0
	for i, t := range e.cfg.Tiers {
		if age >= t.After {
			tier = i + 1
		}
	}
	return tier
}

func (e *Escalator) escalateDue(ctx context.Context, now time.Time) {
	if len(e.cfg.Tiers) == 0 {
		return
	}
	due, err := e.dueCandidates(ctx, now)
	if err != nil {
		e.logger.WithError(err).Error("Escalation sweep query failed")
		return
	}

	for _, c := range due {
		target := e.tierFor(now.Sub(c.mentionedAt))
		if target <= c.tier {
			continue
		}

		res, err := e.db.ExecContext(ctx, `
			UPDATE help_requests
			SET escalation_tier = $1, updated_at = NOW()
			WHERE id = $2 AND state = 'awaiting' AND escalation_tier = $3`,
			target, c.id, c.tier)
		if err != nil {
			e.logger.WithError(err).WithFields(logging.Fields{"request_id": c.id}).Error("Failed to advance escalation tier")
			continue
		}
		advanced, err := res.RowsAffected()
		if err != nil || advanced == 0 {
			// Answered or advanced by a concurrent pass; the closed state wins.
			continue
		}
		e.sendAlert(ctx, c, target, now)
	}
}

func (e *Escalator) dueCandidates(ctx context.Context, now time.Time) ([]escalationCandidate, error) {
	cutoff := now.Add(-e.cfg.Tiers[0].After)
	rows, err := e.db.QueryContext(ctx, `
		SELECT id, server_id, channel_id, requester_id, requester_name, excerpt,
		       mentioned_at, mentioned_role_id, escalation_tier
		FROM help_requests
		WHERE state = 'awaiting' AND mentioned_at <= $1 AND escalation_tier < $2
		ORDER BY mentioned_at`,
		cutoff, len(e.cfg.Tiers))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var due []escalationCandidate
	for rows.Next() {
		var c escalationCandidate
		if err := rows.Scan(&c.id, &c.serverID, &c.channelID, &c.requesterID,
			&c.requesterName, &c.excerpt, &c.mentionedAt, &c.roleID, &c.tier); err != nil {
			return nil, err
		}
		due = append(due, c)
	}
	return due, rows.Err()
}

func (e *Escalator) sendAlert(ctx context.Context, c escalationCandidate, tier int, now time.Time) {
	label := e.cfg.Tiers[tier-1].Label
	alert := notify.Alert{
		ServerID:      c.serverID,
		ChannelID:     c.channelID,
		RequesterID:   c.requesterID,
		RequesterName: c.requesterName,
		Excerpt:       c.excerpt,
		Elapsed:       now.Sub(c.mentionedAt),
		Tier:          tier,
		TierLabel:     label,
		MentionedAt:   c.mentionedAt,
	}
	if server, err := e.roster.Server(ctx, c.serverID); err == nil && server != nil {
		alert.ServerName = server.Name
		alert.RoleID = server.CuratorRoleID
	}
	if c.roleID != nil && *c.roleID != "" {
		alert.RoleID = *c.roleID
	}

	sendCtx, cancel := context.WithTimeout(ctx, notifyTimeout)
	defer cancel()
	status := "sent"
	if err := e.sink.Alert(sendCtx, alert); err != nil {
		// Tier already advanced: one reminder lost, never repeated.
		status = "error"
		e.logger.WithError(err).WithFields(logging.Fields{
			"request_id": c.id,
			"tier":       tier,
		}).Warn("Failed to deliver escalation alert")
	}
	if e.metrics != nil && e.metrics.EscalationAlerts != nil {
		e.metrics.EscalationAlerts.WithLabelValues(label, status).Inc()
	}

	e.logger.WithFields(logging.Fields{
		"request_id":  c.id,
		"server_id":   c.serverID,
		"channel_id":  c.channelID,
		"requester":   c.requesterID,
		"tier":        tier,
		"tier_label":  label,
		"waited_secs": int64(now.Sub(c.mentionedAt).Seconds()),
	}).Info("Help request escalated")

	requestID := c.id
	e.tracker.publish(kafka.EventHelpRequestEscalated, c.serverID, c.channelID, &requestID, nil, map[string]interface{}{
		"tier":            tier,
		"tier_label":      label,
		"elapsed_seconds": int64(now.Sub(c.mentionedAt).Seconds()),
	})
}

func (e *Escalator) abandonStale(ctx context.Context, now time.Time) {
	cutoff := now.Add(-e.cfg.AbandonAfter)
	rows, err := e.db.QueryContext(ctx, `
		UPDATE help_requests
		SET state = 'abandoned', updated_at = NOW()
		WHERE state = 'awaiting' AND mentioned_at < $1
		RETURNING id, server_id, channel_id, requester_id`,
		cutoff)
	if err != nil {
		e.logger.WithError(err).Error("Abandon sweep failed")
		return
	}
	defer func() { _ = rows.Close() }()

	type abandoned struct{ id, serverID, channelID, requesterID string }
	var stale []abandoned
	for rows.Next() {
		var a abandoned
		if err := rows.Scan(&a.id, &a.serverID, &a.channelID, &a.requesterID); err != nil {
			e.logger.WithError(err).Error("Abandon sweep scan failed")
			return
		}
		stale = append(stale, a)
	}
	if err := rows.Err(); err != nil {
		e.logger.WithError(err).Error("Abandon sweep failed")
		return
	}

	for _, a := range stale {
		countHelpTransition(e.metrics, a.serverID, "abandoned")
		e.logger.WithFields(logging.Fields{
			"request_id": a.id,
			"server_id":  a.serverID,
			"channel_id": a.channelID,
			"requester":  a.requesterID,
		}).Info("Help request abandoned")
		requestID := a.id
		e.tracker.publish(kafka.EventHelpRequestAbandoned, a.serverID, a.channelID, &requestID, nil, map[string]interface{}{
			"requester_id":  a.requesterID,
			"abandon_after": e.cfg.AbandonAfter.String(),
		})
	}
}

// repairDuplicates closes all but the earliest awaiting record per
// (channel, requester). The partial unique index prevents new duplicates;
// this cleans up rows that predate it or slipped in through manual edits.
func (e *Escalator) repairDuplicates(ctx context.Context) {
	rows, err := e.db.QueryContext(ctx, `
		WITH ranked AS (
			SELECT id, ROW_NUMBER() OVER (
				PARTITION BY channel_id, requester_id
				ORDER BY mentioned_at, created_at
			) AS rn
			FROM help_requests
			WHERE state = 'awaiting'
		)
		UPDATE help_requests
		SET state = 'abandoned', updated_at = NOW()
		WHERE id IN (SELECT id FROM ranked WHERE rn > 1)
		RETURNING id, channel_id, requester_id`)
	if err != nil {
		e.logger.WithError(err).Error("Duplicate repair failed")
		return
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var id, channelID, requesterID string
		if err := rows.Scan(&id, &channelID, &requesterID); err != nil {
			e.logger.WithError(err).Error("Duplicate repair scan failed")
			return
		}
		e.logger.WithFields(logging.Fields{
			"request_id": id,
			"channel_id": channelID,
			"requester":  requesterID,
		}).Warn("Closed duplicate open help request, keeping earliest")
	}
	if err := rows.Err(); err != nil {
		e.logger.WithError(err).Error("Duplicate repair failed")
	}
}

func (e *Escalator) refreshOpenGauge(ctx context.Context) {
	if e.metrics == nil || e.metrics.OpenRequests == nil {
		return
	}
	rows, err := e.db.QueryContext(ctx, `
		SELECT server_id, COUNT(*)
		FROM help_requests
		WHERE state = 'awaiting'
		GROUP BY server_id`)
	if err != nil {
		e.logger.WithError(err).Error("Open request gauge query failed")
		return
	}
	defer func() { _ = rows.Close() }()

	e.metrics.OpenRequests.Reset()
	for rows.Next() {
		var serverID string
		var open int64
		if err := rows.Scan(&serverID, &open); err != nil {
			e.logger.WithError(err).Error("Open request gauge scan failed")
			return
		}
		e.metrics.OpenRequests.WithLabelValues(serverID).Set(float64(open))
	}
	if err := rows.Err(); err != nil {
		e.logger.WithError(err).Error("Open request gauge query failed")
	}
}
