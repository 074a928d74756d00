// Package metrics defines the Prometheus instruments exported by the service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/lllypuk/claimservice/internal/application/crud"
)

const namespace = "claimservice"

// RecordMetrics counts and times record service operations.
type RecordMetrics struct {
	OperationsTotal   *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
}

// NewRecordMetrics creates and registers record operation metrics with the
// given registerer.
func NewRecordMetrics(registerer prometheus.Registerer) *RecordMetrics {
	m := &RecordMetrics{
		OperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "record_operations_total",
				Help:      "Total number of record operations by entity, operation and outcome",
			},
			[]string{"entity", "operation", "outcome"},
		),
		OperationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "record_operation_duration_seconds",
				Help:      "Record operation latency",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
			},
			[]string{"entity", "operation"},
		),
	}

	registerer.MustRegister(m.OperationsTotal, m.OperationDuration)
	return m
}

// Observe implements crud.Metrics.
func (m *RecordMetrics) Observe(entity, operation string, err error, elapsed time.Duration) {
	m.OperationsTotal.WithLabelValues(entity, operation, crud.Outcome(err)).Inc()
	m.OperationDuration.WithLabelValues(entity, operation).Observe(elapsed.Seconds())
}

var _ crud.Metrics = (*RecordMetrics)(nil)

// ChangeFeedMetrics tracks events consumed by the change feed worker.
type ChangeFeedMetrics struct {
	EventsConsumed *prometheus.CounterVec
	EventLag       prometheus.Histogram
}

// NewChangeFeedMetrics creates and registers change feed metrics.
func NewChangeFeedMetrics(registerer prometheus.Registerer) *ChangeFeedMetrics {
	m := &ChangeFeedMetrics{
		EventsConsumed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "changefeed_events_consumed_total",
				Help:      "Total number of change events consumed",
			},
			[]string{"event_type", "status"}, // status: success/failed
		),
		EventLag: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "changefeed_event_lag_seconds",
			Help:      "Time from event occurrence to consumption",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	registerer.MustRegister(m.EventsConsumed, m.EventLag)
	return m
}

// RecordConsumed records one handled event.
func (m *ChangeFeedMetrics) RecordConsumed(eventType string, occurredAt time.Time, err error) {
	status := "success"
	if err != nil {
		status = "failed"
	}
	m.EventsConsumed.WithLabelValues(eventType, status).Inc()
	if !occurredAt.IsZero() {
		m.EventLag.Observe(time.Since(occurredAt).Seconds())
	}
}
