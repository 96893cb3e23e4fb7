package handlers

import (
	"database/sql"

	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"

	"lookout/internal/config"
	"lookout/pkg/logging"
)

var (
	db          *sql.DB
	chdb        *sql.DB
	ledger      *ActivityLedger
	redisClient goredis.UniversalClient
	appConfig   config.Config
	logger      logging.Logger
	metrics     *LookoutMetrics
)

// LookoutMetrics holds Prometheus metrics for the correlation engine.
// A nil collector (as in tests) disables instrumentation.
type LookoutMetrics struct {
	ChatEvents       *prometheus.CounterVec
	HelpRequests     *prometheus.CounterVec
	EscalationAlerts *prometheus.CounterVec
	ActivityRecords  *prometheus.CounterVec
	TrackerEvents    *prometheus.CounterVec
	RatingRuns       *prometheus.CounterVec
	ResponseLatency  *prometheus.HistogramVec
	OpenRequests     *prometheus.GaugeVec

	// Database metrics
	DBQueries     *prometheus.CounterVec
	DBDuration    *prometheus.HistogramVec
	DBConnections *prometheus.GaugeVec
}

// Init initializes the handlers package with shared connections,
// configuration and metrics.
func Init(postgres *sql.DB, analytics *sql.DB, activityLedger *ActivityLedger, cache goredis.UniversalClient, cfg config.Config, log logging.Logger, lookoutMetrics *LookoutMetrics) {
	db = postgres
	chdb = analytics
	ledger = activityLedger
	redisClient = cache
	appConfig = cfg
	logger = log
	metrics = lookoutMetrics
}
