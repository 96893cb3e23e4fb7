package handlers

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"lookout/internal/config"
	"lookout/internal/notify"
	"lookout/pkg/kafka"
	"lookout/pkg/logging"
	"lookout/pkg/models"
)

// RatingEngine recomputes per-curator rating snapshots from the activity
// ledger and the answered-request history. Snapshots for the running period
// are replaced wholesale on every cycle, so the computation is a pure
// function of ledger rows and tracking records: re-running it over the same
// window always lands on the same numbers.
//
// When a cycle observes that the period rolled over, the previous period is
// recomputed one final time and its standings go out as a digest.
type RatingEngine struct {
	db         *sql.DB
	ledger     *ActivityLedger
	cfg        config.RatingConfig
	adminEmail string
	sink       NotificationSink
	tracker    *trackerPublisher
	logger     logging.Logger
	metrics    *LookoutMetrics

	mu              sync.Mutex
	lastPeriodStart time.Time
}

func NewRatingEngine(db *sql.DB, ledger *ActivityLedger, cfg config.RatingConfig, adminEmail string, sink NotificationSink, producer kafka.ProducerInterface, trackerTopic string, logger logging.Logger, metrics *LookoutMetrics) *RatingEngine {
	return &RatingEngine{
		db:         db,
		ledger:     ledger,
		cfg:        cfg,
		adminEmail: adminEmail,
		sink:       sink,
		tracker:    newTrackerPublisher(producer, trackerTopic, logger, metrics),
		logger:     logger,
		metrics:    metrics,
	}
}

type serverRef struct {
	id   string
	name string
}

type curatorRef struct {
	id          string
	displayName string
}

type responseStats struct {
	count      int64
	sumLatency int64
	modifier   int64
}

// RunCycle recomputes the current period and, on the first cycle after a
// period rollover, finalizes the previous one.
func (e *RatingEngine) RunCycle(ctx context.Context, now time.Time) {
	start, end := e.cfg.PeriodBounds(now)

	e.mu.Lock()
	prev := e.lastPeriodStart
	e.lastPeriodStart = start
	e.mu.Unlock()

	if !prev.IsZero() && !prev.Equal(start) {
		prevStart, prevEnd := e.cfg.PeriodBounds(prev)
		e.finalizePeriod(ctx, prevStart, prevEnd, now)
	}

	if err := e.recomputeWindow(ctx, start, end, now); err != nil {
		e.countRun("error")
		e.logger.WithError(err).Error("Rating recompute failed")
		return
	}
	e.countRun("ok")
}

func (e *RatingEngine) recomputeWindow(ctx context.Context, start, end, now time.Time) error {
	servers, err := e.activeServers(ctx)
	if err != nil {
		return err
	}

	for _, server := range servers {
		snapshots, err := e.computeServer(ctx, server, start, end, now)
		if err != nil {
			// One broken server must not starve the rest of the fleet.
			e.logger.WithError(err).WithFields(logging.Fields{"server_id": server.id}).Error("Failed to compute server ratings")
			continue
		}
		for _, snap := range snapshots {
			if err := e.upsertSnapshot(ctx, snap); err != nil {
				e.logger.WithError(err).WithFields(logging.Fields{
					"server_id":  snap.ServerID,
					"curator_id": snap.CuratorID,
				}).Error("Failed to store rating snapshot")
			}
		}
		e.logger.WithFields(logging.Fields{
			"server_id":    server.id,
			"curators":     len(snapshots),
			"period_start": start,
			"period_end":   end,
		}).Debug("Server ratings recomputed")
	}
	return nil
}

func (e *RatingEngine) computeServer(ctx context.Context, server serverRef, start, end, now time.Time) ([]models.RatingSnapshot, error) {
	totals, err := e.ledger.TotalsBetween(ctx, server.id, start, end)
	if err != nil {
		return nil, fmt.Errorf("activity totals for %s: %w", server.id, err)
	}
	responses, err := e.responseStats(ctx, server.id, start, end)
	if err != nil {
		return nil, err
	}
	curators, err := e.activeCurators(ctx, server.id)
	if err != nil {
		return nil, err
	}

	snapshots := make([]models.RatingSnapshot, 0, len(curators))
	for _, cur := range curators {
		activity := totals[cur.id]
		response := responses[cur.id]

		score := activity.Points + response.modifier
		if score < 0 {
			score = 0
		}
		tier := e.cfg.TierFor(score)

		snap := models.RatingSnapshot{
			CuratorID:         cur.id,
			ServerID:          server.id,
			PeriodStart:       start,
			PeriodEnd:         end,
			Messages:          activity.Messages,
			Reactions:         activity.Reactions,
			Replies:           activity.Replies,
			TaskVerifications: activity.TaskVerifications,
			ActivityPoints:    activity.Points,
			ResponseCount:     response.count,
			ResponseModifier:  response.modifier,
			FinalScore:        score,
			TierLabel:         tier.Label,
			TierColor:         tier.Color,
			ComputedAt:        now,
		}
		if response.count > 0 {
			avg := float64(response.sumLatency) / float64(response.count)
			snap.AvgLatencySeconds = &avg
		}
		snapshots = append(snapshots, snap)
	}
	return snapshots, nil
}

// responseStats folds every answered record of the window onto the modifier
// step curve, per responder.
func (e *RatingEngine) responseStats(ctx context.Context, serverID string, start, end time.Time) (map[string]responseStats, error) {
	rows, err := e.db.QueryContext(ctx, `
		SELECT responder_id, latency_seconds
		FROM help_requests
		WHERE server_id = $1 AND state = 'answered'
			AND responder_id IS NOT NULL AND latency_seconds IS NOT NULL
			AND responded_at >= $2 AND responded_at < $3`,
		serverID, start, end)
	if err != nil {
		return nil, fmt.Errorf("response stats for %s: %w", serverID, err)
	}
	defer func() { _ = rows.Close() }()

	stats := make(map[string]responseStats)
	for rows.Next() {
		var responderID string
		var latency int64
		if err := rows.Scan(&responderID, &latency); err != nil {
			return nil, fmt.Errorf("scan response stats: %w", err)
		}
		s := stats[responderID]
		s.count++
		s.sumLatency += latency
		s.modifier += e.cfg.ModifierFor(latency)
		stats[responderID] = s
	}
	return stats, rows.Err()
}

func (e *RatingEngine) activeServers(ctx context.Context) ([]serverRef, error) {
	rows, err := e.db.QueryContext(ctx, `
		SELECT id, name FROM servers WHERE is_active = TRUE ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list active servers: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var servers []serverRef
	for rows.Next() {
		var s serverRef
		if err := rows.Scan(&s.id, &s.name); err != nil {
			return nil, fmt.Errorf("scan server: %w", err)
		}
		servers = append(servers, s)
	}
	return servers, rows.Err()
}

func (e *RatingEngine) activeCurators(ctx context.Context, serverID string) ([]curatorRef, error) {
	rows, err := e.db.QueryContext(ctx, `
		SELECT id, display_name FROM curators
		WHERE server_id = $1 AND is_active = TRUE
		ORDER BY id`,
		serverID)
	if err != nil {
		return nil, fmt.Errorf("list curators for %s: %w", serverID, err)
	}
	defer func() { _ = rows.Close() }()

	var curators []curatorRef
	for rows.Next() {
		var c curatorRef
		if err := rows.Scan(&c.id, &c.displayName); err != nil {
			return nil, fmt.Errorf("scan curator: %w", err)
		}
		curators = append(curators, c)
	}
	return curators, rows.Err()
}

func (e *RatingEngine) upsertSnapshot(ctx context.Context, snap models.RatingSnapshot) error {
	_, err := e.db.ExecContext(ctx, `
		INSERT INTO rating_snapshots (curator_id, server_id, period_start, period_end,
			messages, reactions, replies, task_verifications, activity_points,
			response_count, avg_latency_seconds, response_modifier, final_score,
			tier_label, tier_color, computed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (curator_id, period_start) DO UPDATE SET
			period_end = EXCLUDED.period_end,
			messages = EXCLUDED.messages,
			reactions = EXCLUDED.reactions,
			replies = EXCLUDED.replies,
			task_verifications = EXCLUDED.task_verifications,
			activity_points = EXCLUDED.activity_points,
			response_count = EXCLUDED.response_count,
			avg_latency_seconds = EXCLUDED.avg_latency_seconds,
			response_modifier = EXCLUDED.response_modifier,
			final_score = EXCLUDED.final_score,
			tier_label = EXCLUDED.tier_label,
			tier_color = EXCLUDED.tier_color,
			computed_at = EXCLUDED.computed_at`,
		snap.CuratorID, snap.ServerID, snap.PeriodStart, snap.PeriodEnd,
		snap.Messages, snap.Reactions, snap.Replies, snap.TaskVerifications,
		snap.ActivityPoints, snap.ResponseCount, snap.AvgLatencySeconds,
		snap.ResponseModifier, snap.FinalScore, snap.TierLabel, snap.TierColor,
		snap.ComputedAt)
	return err
}

func (e *RatingEngine) finalizePeriod(ctx context.Context, start, end, now time.Time) {
	e.logger.WithFields(logging.Fields{
		"period_start": start,
		"period_end":   end,
	}).Info("Finalizing rating period")

	if err := e.recomputeWindow(ctx, start, end, now); err != nil {
		e.logger.WithError(err).Error("Final recompute of closed period failed")
		return
	}
	e.sendDigests(ctx, start, end)
}

func (e *RatingEngine) sendDigests(ctx context.Context, start, end time.Time) {
	servers, err := e.activeServers(ctx)
	if err != nil {
		e.logger.WithError(err).Error("Digest server list failed")
		return
	}

	for _, server := range servers {
		digest, err := e.buildDigest(ctx, server, start, end)
		if err != nil {
			e.logger.WithError(err).WithFields(logging.Fields{"server_id": server.id}).Error("Failed to build rating digest")
			continue
		}
		if len(digest.Entries) == 0 {
			continue
		}

		sendCtx, cancel := context.WithTimeout(ctx, notifyTimeout)
		if err := e.sink.Digest(sendCtx, digest); err != nil {
			e.logger.WithError(err).WithFields(logging.Fields{"server_id": server.id}).Warn("Failed to deliver rating digest")
		}
		cancel()

		e.tracker.publish(kafka.EventRatingFinalized, server.id, "", nil, nil, map[string]interface{}{
			"period_start": start.Format(time.RFC3339),
			"period_end":   end.Format(time.RFC3339),
			"curators":     len(digest.Entries),
		})
	}
}

func (e *RatingEngine) buildDigest(ctx context.Context, server serverRef, start, end time.Time) (notify.Digest, error) {
	digest := notify.Digest{
		ServerID:       server.id,
		ServerName:     server.name,
		PeriodStart:    start,
		PeriodEnd:      end,
		RecipientEmail: e.adminEmail,
	}

	rows, err := e.db.QueryContext(ctx, `
		SELECT c.display_name, rs.final_score, rs.tier_label, rs.tier_color,
		       rs.response_count, rs.avg_latency_seconds, rs.activity_points
		FROM rating_snapshots rs
		JOIN curators c ON c.id = rs.curator_id
		WHERE rs.server_id = $1 AND rs.period_start = $2
		ORDER BY rs.final_score DESC, c.display_name`,
		server.id, start)
	if err != nil {
		return digest, fmt.Errorf("digest rows for %s: %w", server.id, err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var entry notify.DigestEntry
		var points int64
		if err := rows.Scan(&entry.CuratorName, &entry.FinalScore, &entry.TierLabel,
			&entry.TierColor, &entry.ResponseCount, &entry.AvgLatencySeconds, &points); err != nil {
			return digest, fmt.Errorf("scan digest row: %w", err)
		}
		digest.Entries = append(digest.Entries, entry)
		digest.TotalPoints += points
		digest.TotalResponses += entry.ResponseCount
	}
	return digest, rows.Err()
}

func (e *RatingEngine) countRun(status string) {
	if e.metrics == nil || e.metrics.RatingRuns == nil {
		return
	}
	e.metrics.RatingRuns.WithLabelValues(status).Inc()
}
