// Package crud implements the record operations shared by every entity: create,
// read, list, count, sparse update, delete and relation management. A Service is
// built per schema from a QueryComposer and a Reconciler.
package crud

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lllypuk/claimservice/internal/application/appcore"
	"github.com/lllypuk/claimservice/internal/domain/entity"
	"github.com/lllypuk/claimservice/internal/domain/errs"
	"github.com/lllypuk/claimservice/internal/domain/event"
)

// Metrics records the outcome of service operations.
type Metrics interface {
	Observe(entity, operation string, err error, elapsed time.Duration)
}

// Service serves one entity type.
type Service struct {
	schema     *entity.Schema
	query      *QueryComposer
	reconciler *Reconciler
	store      Store
	// related holds the composers of relation targets by relation name.
	related map[string]*QueryComposer
	bus     event.Bus
	metrics Metrics
	logger  *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithEventBus publishes a change event after every successful write.
func WithEventBus(bus event.Bus) Option {
	return func(s *Service) {
		s.bus = bus
	}
}

// WithMetrics records every operation.
func WithMetrics(m Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithRelated registers the composer serving the target of relation.
func WithRelated(relation string, composer *QueryComposer) Option {
	return func(s *Service) {
		s.related[relation] = composer
	}
}

// NewService creates a service from its two components. Composers for relation
// targets are passed with WithRelated.
func NewService(query *QueryComposer, reconciler *Reconciler, store Store, opts ...Option) *Service {
	s := &Service{
		schema:     query.Schema(),
		query:      query,
		reconciler: reconciler,
		store:      store,
		related:    make(map[string]*QueryComposer),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Schema returns the entity schema served.
func (s *Service) Schema() *entity.Schema {
	return s.schema
}

// Create stores a new record from payload and returns it as read back.
func (s *Service) Create(ctx context.Context, payload *entity.Patch) (rec *entity.Record, err error) {
	defer s.observe("create", time.Now(), &err)

	m, err := s.reconciler.Build(ctx, payload)
	if err != nil {
		return nil, err
	}
	if err = s.store.Insert(ctx, s.schema, m.Record); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", s.schema.Name, err)
	}
	if err = s.reconciler.ApplyRelinks(ctx, m.Record.ID, m.Relinks); err != nil {
		return nil, err
	}

	s.publish(ctx, event.NewRecordChanged(s.schema.Name, event.TypeCreated, m.Record.ID, s.metadata(ctx)))
	return s.query.GetByID(ctx, m.Record.ID)
}

// DeleteByID removes a record. Children keep their reference.
func (s *Service) DeleteByID(ctx context.Context, id string) (err error) {
	defer s.observe("delete", time.Now(), &err)

	if err = s.store.Delete(ctx, s.schema, id); err != nil {
		return fmt.Errorf("failed to delete %s %q: %w", s.schema.Name, id, err)
	}
	s.publish(ctx, event.NewRecordChanged(s.schema.Name, event.TypeDeleted, id, s.metadata(ctx)))
	return nil
}

// List returns the records matching args.
func (s *Service) List(ctx context.Context, args FindManyArgs) (records []*entity.Record, err error) {
	defer s.observe("list", time.Now(), &err)
	return s.query.List(ctx, args)
}

// Count returns the number of records matching where.
func (s *Service) Count(ctx context.Context, where Where) (n int64, err error) {
	defer s.observe("count", time.Now(), &err)
	return s.query.Count(ctx, where)
}

// GetByID returns a single record.
func (s *Service) GetByID(ctx context.Context, id string) (rec *entity.Record, err error) {
	defer s.observe("get", time.Now(), &err)
	return s.query.GetByID(ctx, id)
}

// Update merges a sparse payload into the record and returns the result.
func (s *Service) Update(ctx context.Context, id string, patch *entity.Patch) (rec *entity.Record, err error) {
	defer s.observe("update", time.Now(), &err)

	current, err := s.query.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	m, err := s.reconciler.Reconcile(ctx, current, patch)
	if err != nil {
		return nil, err
	}
	if err = s.reconciler.Persist(ctx, m); err != nil {
		return nil, err
	}

	s.publish(ctx, event.NewRecordChanged(s.schema.Name, event.TypeUpdated, id, s.metadata(ctx)))
	return s.query.GetByID(ctx, id)
}

func (s *Service) observe(operation string, start time.Time, errp *error) {
	if s.metrics == nil {
		return
	}
	s.metrics.Observe(s.schema.Name, operation, *errp, time.Since(start))
}

// publish delivers a change event. Failures are logged only; the write has
// already succeeded.
func (s *Service) publish(ctx context.Context, evt *event.RecordChanged) {
	if s.bus == nil {
		return
	}
	if err := s.bus.Publish(ctx, evt); err != nil {
		s.logger.WarnContext(ctx, "failed to publish change event",
			slog.String("event_type", evt.EventType()),
			slog.String("record_id", evt.RecordID),
			slog.String("error", err.Error()),
		)
	}
}

func (s *Service) metadata(ctx context.Context) event.Metadata {
	userID, _ := appcore.GetUserID(ctx)
	correlationID, _ := appcore.GetCorrelationID(ctx)
	return event.NewMetadata(userID, correlationID)
}

func (s *Service) relation(name string, c entity.Cardinality) (entity.Relation, error) {
	rel, ok := s.schema.Relation(name)
	if !ok || rel.Cardinality != c {
		return rel, fmt.Errorf("%s has no relation %q: %w", s.schema.Name, name, errs.ErrNotFound)
	}
	return rel, nil
}

// Outcome classifies an error for metrics and logs.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, errs.ErrNotFound):
		return "not_found"
	case errors.Is(err, errs.ErrInvalidInput):
		return "invalid"
	case errors.Is(err, errs.ErrConcurrentModification), errors.Is(err, errs.ErrAlreadyExists):
		return "conflict"
	default:
		return "error"
	}
}
