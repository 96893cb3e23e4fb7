package monitoring

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/twmb/franz-go/pkg/kgo"
)

const checkTimeout = 5 * time.Second

const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// HealthStatus is the aggregate payload served on /health.
type HealthStatus struct {
	Status    string                 `json:"status"`
	Service   string                 `json:"service"`
	Version   string                 `json:"version"`
	Timestamp int64                  `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks"`
}

// CheckResult is the outcome of a single named check.
type CheckResult struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

// HealthCheck probes one dependency.
type HealthCheck func() CheckResult

// HealthChecker aggregates named dependency checks into one status.
type HealthChecker struct {
	service string
	version string
	checks  map[string]HealthCheck
}

func NewHealthChecker(service, version string) *HealthChecker {
	return &HealthChecker{
		service: service,
		version: version,
		checks:  make(map[string]HealthCheck),
	}
}

func (hc *HealthChecker) AddCheck(name string, check HealthCheck) {
	hc.checks[name] = check
}

// CheckHealth runs every registered check. One unhealthy dependency makes
// the whole service unhealthy; degraded checks only degrade it.
func (hc *HealthChecker) CheckHealth() HealthStatus {
	status := HealthStatus{
		Status:    StatusHealthy,
		Service:   hc.service,
		Version:   hc.version,
		Timestamp: time.Now().Unix(),
		Checks:    make(map[string]CheckResult, len(hc.checks)),
	}

	for name, check := range hc.checks {
		result := check()
		status.Checks[name] = result
		switch result.Status {
		case StatusHealthy:
		case StatusDegraded:
			if status.Status == StatusHealthy {
				status.Status = StatusDegraded
			}
		default:
			status.Status = StatusUnhealthy
		}
	}
	return status
}

// Handler serves the health endpoint; unhealthy maps to 503 so load
// balancers can pull the instance.
func (hc *HealthChecker) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		health := hc.CheckHealth()
		code := http.StatusOK
		if health.Status == StatusUnhealthy {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, health)
	}
}

// pingCheck wraps a bounded ping into a CheckResult.
func pingCheck(name string, ping func(context.Context) error) CheckResult {
	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), checkTimeout)
	defer cancel()

	err := ping(ctx)
	latency := time.Since(start).String()
	if err != nil {
		return CheckResult{
			Status:  StatusUnhealthy,
			Message: fmt.Sprintf("%s ping failed: %v", name, err),
			Latency: latency,
		}
	}
	return CheckResult{Status: StatusHealthy, Latency: latency}
}

// DatabaseHealthCheck pings the Postgres pool holding tracking records
// and rating snapshots.
func DatabaseHealthCheck(db *sql.DB) HealthCheck {
	return func() CheckResult {
		return pingCheck("database", db.PingContext)
	}
}

// KafkaConsumerHealthCheck pings the brokers behind the chat-event consumer.
func KafkaConsumerHealthCheck(client *kgo.Client) HealthCheck {
	return func() CheckResult {
		if client == nil {
			return CheckResult{Status: StatusUnhealthy, Message: "kafka consumer client is nil"}
		}
		return pingCheck("kafka", client.Ping)
	}
}

// ClickHouseNativeHealthCheck pings the activity-ledger connection.
func ClickHouseNativeHealthCheck(conn interface{ Ping(context.Context) error }) HealthCheck {
	return func() CheckResult {
		if conn == nil {
			return CheckResult{Status: StatusUnhealthy, Message: "clickhouse connection is nil"}
		}
		return pingCheck("clickhouse", conn.Ping)
	}
}

// ConfigurationHealthCheck reports unhealthy while any required setting is
// empty; useful to surface a misdeployed instance without restarting it.
func ConfigurationHealthCheck(configs map[string]string) HealthCheck {
	return func() CheckResult {
		var missing []string
		for key, value := range configs {
			if value == "" {
				missing = append(missing, key)
			}
		}
		if len(missing) > 0 {
			return CheckResult{
				Status:  StatusUnhealthy,
				Message: fmt.Sprintf("missing required configuration: %v", missing),
			}
		}
		return CheckResult{Status: StatusHealthy}
	}
}
