package metrics_test

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/lllypuk/claimservice/internal/domain/errs"
	"github.com/lllypuk/claimservice/internal/infrastructure/metrics"
)

func TestRecordMetrics_Observe(t *testing.T) {
	// Arrange
	registry := prometheus.NewRegistry()
	m := metrics.NewRecordMetrics(registry)

	// Act
	m.Observe("claim", "create", nil, 5*time.Millisecond)
	m.Observe("claim", "create", nil, 7*time.Millisecond)
	m.Observe("claim", "get", fmt.Errorf("claim x: %w", errs.ErrNotFound), time.Millisecond)
	m.Observe("review", "update", errors.New("boom"), time.Millisecond)

	// Assert
	assert.InDelta(t, 2, testutil.ToFloat64(m.OperationsTotal.WithLabelValues("claim", "create", "ok")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.OperationsTotal.WithLabelValues("claim", "get", "not_found")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.OperationsTotal.WithLabelValues("review", "update", "error")), 0)
	assert.Equal(t, 3, testutil.CollectAndCount(m.OperationDuration))
}

func TestRecordMetrics_DoubleRegistrationPanics(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics.NewRecordMetrics(registry)

	assert.Panics(t, func() { metrics.NewRecordMetrics(registry) })
}

func TestChangeFeedMetrics_RecordConsumed(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := metrics.NewChangeFeedMetrics(registry)

	m.RecordConsumed("claim.created", time.Now().Add(-time.Second), nil)
	m.RecordConsumed("claim.created", time.Time{}, errors.New("handler failed"))

	assert.InDelta(t, 1, testutil.ToFloat64(m.EventsConsumed.WithLabelValues("claim.created", "success")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.EventsConsumed.WithLabelValues("claim.created", "failed")), 0)
	assert.Equal(t, 1, testutil.CollectAndCount(m.EventLag))
}
