package mongodb

import (
	"context"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/lllypuk/claimservice/internal/domain/errs"
	"github.com/lllypuk/claimservice/internal/infrastructure/eventbus"
	mongodbinfra "github.com/lllypuk/claimservice/internal/infrastructure/mongodb"
)

// DefaultHistoryLimit caps History when no limit is given.
const DefaultHistoryLimit = 100

type changeLogDocument struct {
	ID            string    `bson:"_id,omitempty"`
	EventType     string    `bson:"event_type"`
	Entity        string    `bson:"entity"`
	RecordID      string    `bson:"record_id"`
	Relation      string    `bson:"relation,omitempty"`
	RelatedIDs    []string  `bson:"related_ids,omitempty"`
	OccurredAt    time.Time `bson:"occurred_at"`
	UserID        string    `bson:"user_id,omitempty"`
	CorrelationID string    `bson:"correlation_id,omitempty"`
	RecordedAt    time.Time `bson:"recorded_at"`
}

// ChangeLogRepository persists consumed change events.
type ChangeLogRepository struct {
	coll   *mongo.Collection
	logger *slog.Logger
	now    func() time.Time
}

// NewChangeLogRepository creates a repository over the change_log collection of db.
func NewChangeLogRepository(db *mongo.Database, logger *slog.Logger) *ChangeLogRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChangeLogRepository{
		coll:   db.Collection(mongodbinfra.CollectionChangeLog),
		logger: logger,
		now:    time.Now,
	}
}

// Append stores env once. Redelivered envelopes keep the first copy.
func (r *ChangeLogRepository) Append(ctx context.Context, env eventbus.Envelope) error {
	if env.ID == "" {
		return errs.ErrInvalidInput
	}

	// _id comes from the filter on insert.
	doc := changeLogDocument{
		EventType:     env.EventType,
		Entity:        env.Entity,
		RecordID:      env.RecordID,
		Relation:      env.Relation,
		RelatedIDs:    env.RelatedIDs,
		OccurredAt:    env.OccurredAt.UTC(),
		UserID:        env.Metadata.UserID,
		CorrelationID: env.Metadata.CorrelationID,
		RecordedAt:    r.now().UTC(),
	}

	_, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": env.ID},
		bson.M{"$setOnInsert": doc},
		options.UpdateOne().SetUpsert(true),
	)
	if err != nil {
		r.logger.ErrorContext(ctx, "failed to append change",
			slog.String("event_id", env.ID),
			slog.String("error", err.Error()),
		)
		return HandleMongoError(err, "change_log")
	}
	return nil
}

// History returns the newest changes of one record first.
func (r *ChangeLogRepository) History(
	ctx context.Context,
	entityName, recordID string,
	limit int64,
) ([]eventbus.Envelope, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	cursor, err := r.coll.Find(ctx,
		bson.M{"entity": entityName, "record_id": recordID},
		FindWithPagination(0, limit, bson.D{{Key: "occurred_at", Value: -1}, {Key: "_id", Value: 1}}),
	)
	if err != nil {
		return nil, HandleMongoError(err, "change_log")
	}
	defer cursor.Close(ctx)

	var out []eventbus.Envelope
	for cursor.Next(ctx) {
		var doc changeLogDocument
		if err = cursor.Decode(&doc); err != nil {
			return nil, HandleMongoError(err, "change_log")
		}
		out = append(out, doc.toEnvelope())
	}
	if err = cursor.Err(); err != nil {
		return nil, HandleMongoError(err, "change_log")
	}
	return out, nil
}

func (d changeLogDocument) toEnvelope() eventbus.Envelope {
	env := eventbus.Envelope{
		ID:         d.ID,
		EventType:  d.EventType,
		Entity:     d.Entity,
		RecordID:   d.RecordID,
		Relation:   d.Relation,
		RelatedIDs: d.RelatedIDs,
		OccurredAt: d.OccurredAt,
	}
	env.Metadata.UserID = d.UserID
	env.Metadata.CorrelationID = d.CorrelationID
	return env
}
