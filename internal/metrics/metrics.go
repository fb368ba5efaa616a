// Package metrics provides Prometheus metrics for conversion, validation and
// update runs. Batch commands write them to a node-exporter textfile.
package metrics

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	SourceBuilt  = "built"
	SourceReused = "reused"
)

// Metrics holds all Prometheus metrics for one process run.
type Metrics struct {
	// Registry is the Prometheus registry for this metrics instance
	Registry *prometheus.Registry

	// Conversion metrics
	EntitiesTotal          *prometheus.CounterVec
	ServiceNumbersAssigned prometheus.Counter
	StageDuration          *prometheus.HistogramVec
	LastSuccessTimestamp   prometheus.Gauge

	// Validation metrics
	ValidationFindingsTotal *prometheus.CounterVec

	// Update metrics
	FeedDownloadBytes  prometheus.Gauge
	FeedTablesReplaced prometheus.Counter

	// State database metrics
	DBConnectionsOpen  prometheus.Gauge
	DBConnectionsInUse prometheus.Gauge
	DBConnectionsIdle  prometheus.Gauge
	DBWaitSecondsTotal prometheus.Counter

	logger *slog.Logger

	lastWaitDuration time.Duration
}

// New creates and registers all metrics with a new registry.
func New() *Metrics {
	return NewWithLogger(nil)
}

// NewWithLogger creates metrics with a logger for error reporting.
func NewWithLogger(logger *slog.Logger) *Metrics {
	registry := prometheus.NewRegistry()

	entitiesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gtfsjson_entities_total",
			Help: "Entities written to the output document",
		},
		[]string{"class", "source"},
	)

	serviceNumbersAssigned := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gtfsjson_service_numbers_assigned_total",
		Help: "Trips that received a service number",
	})

	stageDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gtfsjson_stage_duration_seconds",
			Help:    "Duration of each conversion stage",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"stage"},
	)

	lastSuccess := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "gtfsjson_last_success_timestamp_seconds",
		Help: "Unix time of the last successful run",
	})

	findingsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gtfsjson_validation_findings_total",
			Help: "Validation findings by severity",
		},
		[]string{"severity"},
	)

	downloadBytes := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "gtfsjson_feed_download_bytes",
		Help: "Size of the last downloaded feed archive",
	})

	tablesReplaced := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gtfsjson_feed_tables_replaced_total",
		Help: "Feed tables installed into the data directory",
	})

	dbConnectionsOpen := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "gtfsjson_db_connections_open",
		Help: "Number of open state database connections",
	})

	dbConnectionsInUse := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "gtfsjson_db_connections_in_use",
		Help: "Number of state database connections currently in use",
	})

	dbConnectionsIdle := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "gtfsjson_db_connections_idle",
		Help: "Number of idle state database connections",
	})

	dbWaitSecondsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gtfsjson_db_wait_seconds_total",
		Help: "Total time blocked waiting for a state database connection",
	})

	registry.MustRegister(
		entitiesTotal,
		serviceNumbersAssigned,
		stageDuration,
		lastSuccess,
		findingsTotal,
		downloadBytes,
		tablesReplaced,
		dbConnectionsOpen,
		dbConnectionsInUse,
		dbConnectionsIdle,
		dbWaitSecondsTotal,
	)

	return &Metrics{
		Registry:                registry,
		EntitiesTotal:           entitiesTotal,
		ServiceNumbersAssigned:  serviceNumbersAssigned,
		StageDuration:           stageDuration,
		LastSuccessTimestamp:    lastSuccess,
		ValidationFindingsTotal: findingsTotal,
		FeedDownloadBytes:       downloadBytes,
		FeedTablesReplaced:      tablesReplaced,
		DBConnectionsOpen:       dbConnectionsOpen,
		DBConnectionsInUse:      dbConnectionsInUse,
		DBConnectionsIdle:       dbConnectionsIdle,
		DBWaitSecondsTotal:      dbWaitSecondsTotal,
		logger:                  logger,
	}
}

// RecordEntities adds n entities of class built or reused.
func (m *Metrics) RecordEntities(class string, reused bool, n int) {
	source := SourceBuilt
	if reused {
		source = SourceReused
	}
	m.EntitiesTotal.WithLabelValues(class, source).Add(float64(n))
}

// ObserveStage records the time elapsed since start for stage.
func (m *Metrics) ObserveStage(stage string, start time.Time) {
	m.StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

// MarkSuccess sets the last-success gauge to now.
func (m *Metrics) MarkSuccess(now time.Time) {
	m.LastSuccessTimestamp.Set(float64(now.Unix()))
}

// RecordFindings adds validation finding counts.
func (m *Metrics) RecordFindings(errors, warnings int) {
	m.ValidationFindingsTotal.WithLabelValues("error").Add(float64(errors))
	m.ValidationFindingsTotal.WithLabelValues("warning").Add(float64(warnings))
}

// RecordDBStats snapshots connection pool statistics of the state database.
// The wait counter only grows by the delta since the previous snapshot.
func (m *Metrics) RecordDBStats(db *sql.DB) {
	if db == nil {
		return
	}

	stats := db.Stats()
	m.DBConnectionsOpen.Set(float64(stats.OpenConnections))
	m.DBConnectionsInUse.Set(float64(stats.InUse))
	m.DBConnectionsIdle.Set(float64(stats.Idle))

	waitDelta := stats.WaitDuration - m.lastWaitDuration
	if waitDelta > 0 {
		m.DBWaitSecondsTotal.Add(waitDelta.Seconds())
	}
	m.lastWaitDuration = stats.WaitDuration
}

// WriteTextfile writes every registered metric to path in the text
// exposition format. An empty path is a no-op.
func (m *Metrics) WriteTextfile(path string) error {
	if path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.Registry); err != nil {
		if m.logger != nil {
			m.logger.Error("failed to write metrics textfile", "path", path, "error", err)
		}
		return fmt.Errorf("writing metrics to %s: %w", path, err)
	}
	return nil
}
