package handlers

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strconv"

	"lookout/pkg/logging"
	"lookout/pkg/models"
)

// taskReportPattern matches completed-task reports like "сделано 7 задач".
var taskReportPattern = regexp.MustCompile(`(?i)(\d+)\s*задач`)

// taskVerifyEmoji marks a report as checked by another curator.
const taskVerifyEmoji = "✅"

// TaskDesk handles curator task reports in configured report channels: a
// report message opens a pending row, a verification reaction from a second
// curator confirms it and credits the verifier in the activity ledger.
type TaskDesk struct {
	db      *sql.DB
	ledger  *ActivityLedger
	logger  logging.Logger
	metrics *LookoutMetrics
}

func NewTaskDesk(db *sql.DB, ledger *ActivityLedger, logger logging.Logger, metrics *LookoutMetrics) *TaskDesk {
	return &TaskDesk{db: db, ledger: ledger, logger: logger, metrics: metrics}
}

// ParseTasksCount extracts the reported number of completed tasks.
// Returns 0 when the content is not a task report.
func ParseTasksCount(content string) int {
	match := taskReportPattern.FindStringSubmatch(content)
	if match == nil {
		return 0
	}
	count, err := strconv.Atoi(match[1])
	if err != nil || count <= 0 {
		return 0
	}
	return count
}

// SubmitReport records a pending task report. Redeliveries and edits of the
// same message are deduplicated on the report message id. Returns whether a
// new report was stored.
func (t *TaskDesk) SubmitReport(ctx context.Context, event *models.ChatEvent, curator *models.Curator) (bool, error) {
	count := ParseTasksCount(event.Content)
	if count == 0 {
		return false, nil
	}

	res, err := t.db.ExecContext(ctx, `
		INSERT INTO task_reports (server_id, channel_id, curator_id, report_message_id, tasks_count, excerpt)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (report_message_id) DO NOTHING`,
		event.ServerID, event.ChannelID, curator.ID, event.MessageID, count,
		truncateExcerpt(event.Content))
	if err != nil {
		return false, fmt.Errorf("submit task report %s: %w", event.MessageID, err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("submit task report %s: %w", event.MessageID, err)
	}
	if inserted == 0 {
		return false, nil
	}

	t.logger.WithFields(logging.Fields{
		"server_id":   event.ServerID,
		"channel_id":  event.ChannelID,
		"curator_id":  curator.ID,
		"message_id":  event.MessageID,
		"tasks_count": count,
	}).Info("Task report submitted")
	return true, nil
}

// VerifyByReaction confirms a pending report when a different active curator
// reacts with the verification emoji, crediting the verifier with a
// task_verification activity. Self-verification matches no row and is
// silently ignored, as are reactions on anything but a pending report.
func (t *TaskDesk) VerifyByReaction(ctx context.Context, event *models.ChatEvent, verifier *models.Curator) (bool, error) {
	if event.Emoji != taskVerifyEmoji {
		return false, nil
	}

	var (
		reportID   string
		reporterID string
		tasksCount int
	)
	err := t.db.QueryRowContext(ctx, `
		UPDATE task_reports
		SET status = 'verified', verified_by = $1, verified_at = $2, updated_at = NOW()
		WHERE report_message_id = $3 AND status = 'pending' AND curator_id <> $1
		RETURNING id, curator_id, tasks_count`,
		verifier.ID, event.Timestamp, event.TargetMessageID).Scan(&reportID, &reporterID, &tasksCount)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("verify task report %s: %w", event.TargetMessageID, err)
	}

	t.logger.WithFields(logging.Fields{
		"report_id":   reportID,
		"server_id":   event.ServerID,
		"reporter_id": reporterID,
		"verified_by": verifier.ID,
		"tasks_count": tasksCount,
	}).Info("Task report verified")

	record := models.ActivityRecord{
		EventID:        event.EventID,
		ServerID:       event.ServerID,
		ChannelID:      event.ChannelID,
		CuratorID:      verifier.ID,
		PlatformUserID: verifier.PlatformUserID,
		Kind:           models.ActivityTaskVerification,
		Detail:         fmt.Sprintf("report %s: %d задач", reportID, tasksCount),
		Timestamp:      event.Timestamp,
	}
	if err := t.ledger.Record(ctx, record); err != nil {
		return true, fmt.Errorf("credit verification of %s: %w", reportID, err)
	}
	return true, nil
}
