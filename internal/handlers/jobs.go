package handlers

import (
	"context"
	"database/sql"
	"time"

	"lookout/internal/config"
	"lookout/pkg/kafka"
	"lookout/pkg/logging"
)

// JobDeps carries the shared infrastructure the background jobs run on.
type JobDeps struct {
	DB       *sql.DB
	Roster   *Roster
	Ledger   *ActivityLedger
	Producer kafka.ProducerInterface
	Sink     NotificationSink
	Config   config.Config
	Logger   logging.Logger
	Metrics  *LookoutMetrics
}

// JobManager runs the periodic background work: escalation sweeps, rating
// recomputes and retention cleanup.
type JobManager struct {
	db                *sql.DB
	escalator         *Escalator
	rating            *RatingEngine
	ledger            *ActivityLedger
	sweepInterval     time.Duration
	recomputeInterval time.Duration
	retentionDays     int
	logger            logging.Logger
	stopCh            chan struct{}
}

// NewJobManager wires the escalator and the rating engine onto the shared
// connections.
func NewJobManager(deps JobDeps) *JobManager {
	escalator := NewEscalator(deps.DB, deps.Config.Escalation, deps.Roster, deps.Sink,
		deps.Producer, deps.Config.TrackerEventsTopic, deps.Logger, deps.Metrics)
	rating := NewRatingEngine(deps.DB, deps.Ledger, deps.Config.Rating, deps.Config.AdminEmail,
		deps.Sink, deps.Producer, deps.Config.TrackerEventsTopic, deps.Logger, deps.Metrics)

	return &JobManager{
		db:                deps.DB,
		escalator:         escalator,
		rating:            rating,
		ledger:            deps.Ledger,
		sweepInterval:     deps.Config.Escalation.SweepInterval,
		recomputeInterval: deps.Config.Rating.RecomputeInterval,
		retentionDays:     deps.Config.RetentionDays,
		logger:            deps.Logger,
		stopCh:            make(chan struct{}),
	}
}

// Start begins all background jobs
func (jm *JobManager) Start(ctx context.Context) {
	jm.logger.Info("Starting lookout job manager")

	go jm.runEscalationSweeps(ctx)
	go jm.runRatingCycles(ctx)
	go jm.runRetentionCleanup(ctx)
}

// Stop stops all background jobs
func (jm *JobManager) Stop() {
	jm.logger.Info("Stopping lookout job manager")
	close(jm.stopCh)
}

func (jm *JobManager) runEscalationSweeps(ctx context.Context) {
	ticker := time.NewTicker(jm.sweepInterval)
	defer ticker.Stop()

	jm.logger.Info("Starting escalation sweep job")

	for {
		select {
		case <-ctx.Done():
			return
		case <-jm.stopCh:
			return
		case <-ticker.C:
			jm.escalator.RunSweep(ctx, time.Now().UTC())
		}
	}
}

// runRatingCycles recomputes the running period. The first cycle fires
// immediately so a restart inside a period serves fresh standings without
// waiting out a full interval.
func (jm *JobManager) runRatingCycles(ctx context.Context) {
	ticker := time.NewTicker(jm.recomputeInterval)
	defer ticker.Stop()

	jm.logger.Info("Starting rating recompute job")

	jm.rating.RunCycle(ctx, time.Now().UTC())

	for {
		select {
		case <-ctx.Done():
			return
		case <-jm.stopCh:
			return
		case <-ticker.C:
			jm.rating.RunCycle(ctx, time.Now().UTC())
		}
	}
}

func (jm *JobManager) runRetentionCleanup(ctx context.Context) {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	jm.logger.Info("Starting retention cleanup job")

	for {
		select {
		case <-ctx.Done():
			return
		case <-jm.stopCh:
			return
		case <-ticker.C:
			jm.pruneExpired(ctx, time.Now().UTC())
		}
	}
}

// pruneExpired drops closed help requests and ledger rows older than the
// retention window. Records still awaiting a response are never pruned.
func (jm *JobManager) pruneExpired(ctx context.Context, now time.Time) {
	if jm.retentionDays <= 0 {
		return
	}
	cutoff := now.AddDate(0, 0, -jm.retentionDays)

	result, err := jm.db.ExecContext(ctx, `
		DELETE FROM help_requests
		WHERE state <> 'awaiting' AND updated_at < $1`,
		cutoff)
	if err != nil {
		jm.logger.WithError(err).Error("Failed to prune closed help requests")
	} else if pruned, _ := result.RowsAffected(); pruned > 0 {
		jm.logger.WithFields(logging.Fields{
			"pruned": pruned,
			"cutoff": cutoff,
		}).Info("Pruned closed help requests")
	}

	if err := jm.ledger.DeleteOlderThan(ctx, cutoff); err != nil {
		jm.logger.WithError(err).Error("Failed to prune activity ledger")
	}
}
