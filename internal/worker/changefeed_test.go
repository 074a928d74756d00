package worker_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lllypuk/claimservice/internal/infrastructure/eventbus"
	"github.com/lllypuk/claimservice/internal/infrastructure/metrics"
	"github.com/lllypuk/claimservice/internal/worker"
)

type fakeSink struct {
	mu   sync.Mutex
	envs []eventbus.Envelope
	err  error
}

func (s *fakeSink) Append(_ context.Context, env eventbus.Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.envs = append(s.envs, env)
	return nil
}

func (s *fakeSink) ids() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.envs))
	for _, env := range s.envs {
		out = append(out, env.ID)
	}
	return out
}

// replaySubscriber hands every envelope to the handler, then blocks until
// the context ends.
type replaySubscriber struct {
	envs   []eventbus.Envelope
	errs   []error
	runErr error
}

func (s *replaySubscriber) Run(ctx context.Context, handler eventbus.Handler) error {
	for _, env := range s.envs {
		s.errs = append(s.errs, handler(ctx, env))
	}
	if s.runErr != nil {
		return s.runErr
	}
	<-ctx.Done()
	return nil
}

func envelope(id, entityName string) eventbus.Envelope {
	return eventbus.Envelope{
		ID:         id,
		EventType:  entityName + ".created",
		Entity:     entityName,
		RecordID:   "r-" + id,
		OccurredAt: time.Now().Add(-time.Second),
	}
}

func runWorker(t *testing.T, w *worker.ChangeFeedWorker) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	return w.Run(ctx)
}

func TestChangeFeedWorker_RecordsEveryEnvelope(t *testing.T) {
	// Arrange
	sink := &fakeSink{}
	sub := &replaySubscriber{envs: []eventbus.Envelope{envelope("e1", "claim"), envelope("e2", "review")}}
	m := metrics.NewChangeFeedMetrics(prometheus.NewRegistry())
	w := worker.NewChangeFeedWorker(sub, sink, nil, worker.DefaultChangeFeedConfig(), m)

	// Act
	err := runWorker(t, w)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, []string{"e1", "e2"}, sink.ids())
	assert.InDelta(t, 1, promtest.ToFloat64(m.EventsConsumed.WithLabelValues("claim.created", "success")), 0)
	assert.InDelta(t, 1, promtest.ToFloat64(m.EventsConsumed.WithLabelValues("review.created", "success")), 0)
}

func TestChangeFeedWorker_EntityFilter(t *testing.T) {
	sink := &fakeSink{}
	sub := &replaySubscriber{envs: []eventbus.Envelope{envelope("e1", "claim"), envelope("e2", "user")}}
	config := worker.ChangeFeedConfig{Enabled: true, Entities: []string{"claim"}}
	w := worker.NewChangeFeedWorker(sub, sink, nil, config, nil)

	require.NoError(t, runWorker(t, w))

	assert.Equal(t, []string{"e1"}, sink.ids())
	assert.Equal(t, []error{nil, nil}, sub.errs)
}

func TestChangeFeedWorker_SinkFailure(t *testing.T) {
	// Arrange
	sink := &fakeSink{err: errors.New("mongo down")}
	sub := &replaySubscriber{envs: []eventbus.Envelope{envelope("e1", "claim")}}
	m := metrics.NewChangeFeedMetrics(prometheus.NewRegistry())
	w := worker.NewChangeFeedWorker(sub, sink, nil, worker.DefaultChangeFeedConfig(), m)

	// Act
	require.NoError(t, runWorker(t, w))

	// Assert
	require.Len(t, sub.errs, 1)
	require.Error(t, sub.errs[0])
	assert.Contains(t, sub.errs[0].Error(), "e1")
	assert.InDelta(t, 1, promtest.ToFloat64(m.EventsConsumed.WithLabelValues("claim.created", "failed")), 0)
}

func TestChangeFeedWorker_SubscriberError(t *testing.T) {
	sub := &replaySubscriber{runErr: errors.New("broker gone")}
	w := worker.NewChangeFeedWorker(sub, &fakeSink{}, nil, worker.DefaultChangeFeedConfig(), nil)

	err := runWorker(t, w)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker gone")
}

func TestChangeFeedWorker_Disabled(t *testing.T) {
	sub := &replaySubscriber{envs: []eventbus.Envelope{envelope("e1", "claim")}}
	sink := &fakeSink{}
	w := worker.NewChangeFeedWorker(sub, sink, nil, worker.ChangeFeedConfig{}, nil)

	require.NoError(t, w.Run(context.Background()))

	assert.Empty(t, sink.ids())
	assert.Empty(t, sub.errs)
}
