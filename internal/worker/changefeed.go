// Package worker holds the background processes of claimservice.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/lllypuk/claimservice/internal/infrastructure/eventbus"
	"github.com/lllypuk/claimservice/internal/infrastructure/metrics"
)

// Subscriber delivers change events until its context is cancelled.
type Subscriber interface {
	Run(ctx context.Context, handler eventbus.Handler) error
}

// ChangeSink stores consumed change events. Append must tolerate redelivery.
type ChangeSink interface {
	Append(ctx context.Context, env eventbus.Envelope) error
}

// ChangeFeedConfig contains configuration for the change feed worker.
type ChangeFeedConfig struct {
	// Entities restricts the feed to these entity names. Empty keeps all.
	Entities []string

	// Enabled determines if the worker should run.
	Enabled bool
}

// DefaultChangeFeedConfig returns a config that records every entity.
func DefaultChangeFeedConfig() ChangeFeedConfig {
	return ChangeFeedConfig{Enabled: true}
}

// ChangeFeedWorker copies published record changes into a ChangeSink.
type ChangeFeedWorker struct {
	subscriber Subscriber
	sink       ChangeSink
	logger     *slog.Logger
	config     ChangeFeedConfig
	metrics    *metrics.ChangeFeedMetrics
}

// NewChangeFeedWorker creates a new change feed worker. metrics may be nil.
func NewChangeFeedWorker(
	subscriber Subscriber,
	sink ChangeSink,
	logger *slog.Logger,
	config ChangeFeedConfig,
	metrics *metrics.ChangeFeedMetrics,
) *ChangeFeedWorker {
	if logger == nil {
		logger = slog.Default()
	}

	return &ChangeFeedWorker{
		subscriber: subscriber,
		sink:       sink,
		logger:     logger,
		config:     config,
		metrics:    metrics,
	}
}

// Run consumes the feed until ctx is cancelled.
func (w *ChangeFeedWorker) Run(ctx context.Context) error {
	if !w.config.Enabled {
		w.logger.InfoContext(ctx, "change feed worker is disabled")
		return nil
	}

	w.logger.InfoContext(ctx, "starting change feed worker",
		slog.Any("entities", w.config.Entities),
	)

	err := w.subscriber.Run(ctx, w.Handle)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("change feed subscriber: %w", err)
	}

	w.logger.InfoContext(ctx, "change feed worker stopped")
	return nil
}

// Handle records one envelope. Envelopes of filtered-out entities are
// acknowledged without being stored.
func (w *ChangeFeedWorker) Handle(ctx context.Context, env eventbus.Envelope) error {
	if len(w.config.Entities) > 0 && !slices.Contains(w.config.Entities, env.Entity) {
		return nil
	}

	err := w.sink.Append(ctx, env)
	if w.metrics != nil {
		w.metrics.RecordConsumed(env.EventType, env.OccurredAt, err)
	}
	if err != nil {
		return fmt.Errorf("append %s: %w", env.ID, err)
	}

	w.logger.DebugContext(ctx, "change recorded",
		slog.String("event_id", env.ID),
		slog.String("event_type", env.EventType),
		slog.String("record_id", env.RecordID),
		slog.String("correlation_id", env.Metadata.CorrelationID),
	)
	return nil
}
