package handlers

import (
	"context"
	"fmt"
	"time"

	"lookout/internal/config"
	"lookout/pkg/database"
	"lookout/pkg/logging"
	"lookout/pkg/models"
)

const activityInsertQuery = `INSERT INTO curator_activity (event_id, server_id, channel_id, curator_id, platform_user_id, kind, points, detail, timestamp)`

// clickhouseBatch is the slice of driver.Batch the ledger writer needs.
type clickhouseBatch interface {
	Append(v ...interface{}) error
	Send() error
}

// clickhouseRows is the slice of driver.Rows the aggregate readers need.
type clickhouseRows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Close() error
	Err() error
}

// clickhouseConn narrows the native connection so tests can fake it.
type clickhouseConn interface {
	PrepareBatch(ctx context.Context, query string) (clickhouseBatch, error)
	Query(ctx context.Context, query string, args ...interface{}) (clickhouseRows, error)
	Exec(ctx context.Context, query string, args ...interface{}) error
}

// nativeClickhouse adapts the driver connection to clickhouseConn.
type nativeClickhouse struct {
	conn database.ClickHouseNativeConn
}

func (n nativeClickhouse) PrepareBatch(ctx context.Context, query string) (clickhouseBatch, error) {
	return n.conn.PrepareBatch(ctx, query)
}

func (n nativeClickhouse) Query(ctx context.Context, query string, args ...interface{}) (clickhouseRows, error) {
	return n.conn.Query(ctx, query, args...)
}

func (n nativeClickhouse) Exec(ctx context.Context, query string, args ...interface{}) error {
	return n.conn.Exec(ctx, query, args...)
}

// ActivityLedger is the append-only record of observed curator actions,
// backed by ClickHouse. Points are resolved from the configured weights at
// write time so later weight changes never re-score history.
type ActivityLedger struct {
	ch      clickhouseConn
	weights config.ActivityWeights
	logger  logging.Logger
	metrics *LookoutMetrics
}

func NewActivityLedger(conn database.ClickHouseNativeConn, weights config.ActivityWeights, logger logging.Logger, metrics *LookoutMetrics) *ActivityLedger {
	return &ActivityLedger{
		ch:      nativeClickhouse{conn: conn},
		weights: weights,
		logger:  logger,
		metrics: metrics,
	}
}

// Record appends one activity row. Zero Points means "resolve from the
// configured weights"; an explicit value is written as-is.
func (l *ActivityLedger) Record(ctx context.Context, record models.ActivityRecord) error {
	if record.Points == 0 {
		record.Points = l.weights.PointsFor(record.Kind)
	}
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now().UTC()
	}

	batch, err := l.ch.PrepareBatch(ctx, activityInsertQuery)
	if err != nil {
		l.countActivity(record.Kind, "error")
		return fmt.Errorf("prepare activity batch: %w", err)
	}
	if err := batch.Append(
		record.EventID,
		record.ServerID,
		record.ChannelID,
		record.CuratorID,
		record.PlatformUserID,
		string(record.Kind),
		record.Points,
		record.Detail,
		record.Timestamp,
	); err != nil {
		l.countActivity(record.Kind, "error")
		return fmt.Errorf("append activity row: %w", err)
	}
	if err := batch.Send(); err != nil {
		l.countActivity(record.Kind, "error")
		return fmt.Errorf("send activity batch: %w", err)
	}

	l.countActivity(record.Kind, "recorded")
	l.logger.WithFields(logging.Fields{
		"server_id":  record.ServerID,
		"curator_id": record.CuratorID,
		"kind":       record.Kind,
		"points":     record.Points,
	}).Debug("Recorded curator activity")
	return nil
}

func (l *ActivityLedger) countActivity(kind models.ActivityKind, status string) {
	if l.metrics != nil {
		l.metrics.ActivityRecords.WithLabelValues(string(kind), status).Inc()
	}
}

// TotalsBetween aggregates ledger rows per curator for one server over
// [start, end). Counts are cast so they scan into signed integers.
func (l *ActivityLedger) TotalsBetween(ctx context.Context, serverID string, start, end time.Time) (map[string]models.ActivityTotals, error) {
	rows, err := l.ch.Query(ctx, `
		SELECT curator_id,
		       toInt64(countIf(kind = 'message')) AS messages,
		       toInt64(countIf(kind = 'reaction')) AS reactions,
		       toInt64(countIf(kind = 'reply')) AS replies,
		       toInt64(countIf(kind = 'task_verification')) AS task_verifications,
		       toInt64(sum(points)) AS points
		FROM curator_activity
		WHERE server_id = ? AND timestamp >= ? AND timestamp < ?
		GROUP BY curator_id`, serverID, start, end)
	if err != nil {
		return nil, fmt.Errorf("query activity totals: %w", err)
	}
	defer rows.Close()

	totals := make(map[string]models.ActivityTotals)
	for rows.Next() {
		var t models.ActivityTotals
		if err := rows.Scan(&t.CuratorID, &t.Messages, &t.Reactions, &t.Replies, &t.TaskVerifications, &t.Points); err != nil {
			return nil, fmt.Errorf("scan activity totals: %w", err)
		}
		totals[t.CuratorID] = t
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate activity totals: %w", err)
	}
	return totals, nil
}

// DeleteOlderThan prunes ledger rows beyond the retention horizon.
// ALTER DELETE is an asynchronous mutation; acceptance is enough here.
func (l *ActivityLedger) DeleteOlderThan(ctx context.Context, cutoff time.Time) error {
	if err := l.ch.Exec(ctx, `ALTER TABLE curator_activity DELETE WHERE timestamp < ?`, cutoff); err != nil {
		return fmt.Errorf("prune activity ledger: %w", err)
	}
	return nil
}
