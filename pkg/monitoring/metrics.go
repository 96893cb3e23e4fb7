package monitoring

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector owns the service's Prometheus metrics. All metric names
// are prefixed with the service name so dashboards can be shared across
// deployments.
type MetricsCollector struct {
	prefix string

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	activeConnections   prometheus.Gauge
	serviceInfo         *prometheus.GaugeVec
}

func NewMetricsCollector(serviceName, version, commit string) *MetricsCollector {
	mc := &MetricsCollector{
		// Prometheus forbids hyphens in metric names.
		prefix: strings.ReplaceAll(serviceName, "-", "_"),
	}

	mc.httpRequestsTotal = mc.NewCounter("http_requests_total",
		"Total number of HTTP requests", []string{"method", "endpoint", "status"})
	mc.httpRequestDuration = mc.NewHistogram("http_request_duration_seconds",
		"HTTP request duration in seconds", []string{"method", "endpoint"}, nil)

	mc.activeConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: mc.prefix + "_active_connections",
		Help: "Number of in-flight HTTP requests",
	})
	mc.serviceInfo = mc.NewGauge("service_info", "Service build information", []string{"version", "commit"})

	prometheus.MustRegister(mc.activeConnections)
	mc.serviceInfo.WithLabelValues(version, commit).Set(1)

	return mc
}

// NewCounter registers a prefixed counter vector.
func (mc *MetricsCollector) NewCounter(name, help string, labels []string) *prometheus.CounterVec {
	c := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: mc.prefix + "_" + name,
		Help: help,
	}, labels)
	prometheus.MustRegister(c)
	return c
}

// NewGauge registers a prefixed gauge vector.
func (mc *MetricsCollector) NewGauge(name, help string, labels []string) *prometheus.GaugeVec {
	g := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: mc.prefix + "_" + name,
		Help: help,
	}, labels)
	prometheus.MustRegister(g)
	return g
}

// NewHistogram registers a prefixed histogram vector; nil buckets use the
// Prometheus defaults.
func (mc *MetricsCollector) NewHistogram(name, help string, labels []string, buckets []float64) *prometheus.HistogramVec {
	if buckets == nil {
		buckets = prometheus.DefBuckets
	}
	h := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    mc.prefix + "_" + name,
		Help:    help,
		Buckets: buckets,
	}, labels)
	prometheus.MustRegister(h)
	return h
}

// CreateDatabaseMetrics returns the standard query counter, duration
// histogram, and connection gauge shared by the Postgres stores.
func (mc *MetricsCollector) CreateDatabaseMetrics() (*prometheus.CounterVec, *prometheus.HistogramVec, *prometheus.GaugeVec) {
	queries := mc.NewCounter("db_queries_total", "Total database queries", []string{"query_type", "status"})
	duration := mc.NewHistogram("db_query_duration_seconds", "Database query duration", []string{"query_type"}, nil)
	connections := mc.NewGauge("db_connections_active", "Active database connections", []string{"database"})
	return queries, duration, connections
}

// MetricsMiddleware records request counts, durations and in-flight
// connections for every route.
func (mc *MetricsCollector) MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		mc.activeConnections.Inc()
		defer mc.activeConnections.Dec()

		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unknown"
		}
		status := strconv.Itoa(c.Writer.Status())
		mc.httpRequestsTotal.WithLabelValues(c.Request.Method, endpoint, status).Inc()
		mc.httpRequestDuration.WithLabelValues(c.Request.Method, endpoint).Observe(time.Since(start).Seconds())
	}
}

// Handler serves the Prometheus scrape endpoint.
func (mc *MetricsCollector) Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
