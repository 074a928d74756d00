// Package mongodb stores records in MongoDB, one collection per schema.
package mongodb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/lllypuk/claimservice/internal/domain/entity"
	"github.com/lllypuk/claimservice/internal/domain/errs"
)

// RecordRepository implements crud.Store (application layer interface)
type RecordRepository struct {
	db      *mongo.Database
	catalog *entity.Catalog
	logger  *slog.Logger
}

// RecordRepoOption configures RecordRepository.
type RecordRepoOption func(*RecordRepository)

// WithRecordRepoLogger sets the logger for the record repository.
func WithRecordRepoLogger(logger *slog.Logger) RecordRepoOption {
	return func(r *RecordRepository) {
		r.logger = logger
	}
}

// NewRecordRepository creates a repository over db for the schemas in catalog.
func NewRecordRepository(db *mongo.Database, catalog *entity.Catalog, opts ...RecordRepoOption) *RecordRepository {
	r := &RecordRepository{
		db:      db,
		catalog: catalog,
		logger:  slog.Default(),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Insert stores a new document with version 1.
func (r *RecordRepository) Insert(ctx context.Context, s *entity.Schema, rec *entity.Record) error {
	if rec == nil || rec.ID == "" {
		return errs.ErrInvalidInput
	}

	_, err := r.collection(s).InsertOne(ctx, recordToDocument(s, rec, 1))
	if err != nil {
		if !mongo.IsDuplicateKeyError(err) {
			r.logger.ErrorContext(ctx, "failed to insert record",
				slog.String("entity", s.Name),
				slog.String("id", rec.ID),
				slog.String("error", err.Error()),
			)
		}
		return HandleMongoError(err, s.Name)
	}

	rec.Version = 1
	return nil
}

// Find runs the query and loads the requested child collections.
func (r *RecordRepository) Find(ctx context.Context, s *entity.Schema, q entity.Query) ([]*entity.Record, error) {
	filter, err := buildFilter(s, q.Filter)
	if err != nil {
		return nil, err
	}
	sort, err := buildSort(s, q.Sort)
	if err != nil {
		return nil, err
	}

	records, err := listDocuments(ctx, r.collection(s), filter,
		FindWithPagination(q.Skip, q.Limit, sort),
		func(doc bson.M) (*entity.Record, error) { return documentToRecord(s, doc) },
		s.Collection,
	)
	if err != nil {
		r.logger.ErrorContext(ctx, "failed to find records",
			slog.String("entity", s.Name),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	for _, name := range q.Include {
		if includeErr := r.include(ctx, s, name, records); includeErr != nil {
			return nil, includeErr
		}
	}
	return records, nil
}

// Count returns the number of matching documents.
func (r *RecordRepository) Count(ctx context.Context, s *entity.Schema, f entity.Filter) (int64, error) {
	filter, err := buildFilter(s, f)
	if err != nil {
		return 0, err
	}

	n, err := CountFilter(ctx, r.collection(s), filter)
	if err != nil {
		return 0, HandleMongoError(err, s.Name)
	}
	return n, nil
}

// Exists reports whether a document with the id is stored.
func (r *RecordRepository) Exists(ctx context.Context, s *entity.Schema, id string) (bool, error) {
	n, err := r.collection(s).CountDocuments(ctx, bson.M{"_id": id}, options.Count().SetLimit(1))
	if err != nil {
		return false, HandleMongoError(err, s.Name)
	}
	return n > 0, nil
}

// Update replaces the document when its version still equals expectedVersion.
func (r *RecordRepository) Update(
	ctx context.Context,
	s *entity.Schema,
	rec *entity.Record,
	expectedVersion int64,
) error {
	filter := bson.M{"_id": rec.ID, versionField: expectedVersion}
	result, err := r.collection(s).ReplaceOne(ctx, filter, recordToDocument(s, rec, expectedVersion+1))
	if err != nil {
		return HandleMongoError(err, s.Name)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("%s %q: %w", s.Name, rec.ID, errs.ErrConcurrentModification)
	}

	rec.Version = expectedVersion + 1
	return nil
}

// Delete removes the document.
func (r *RecordRepository) Delete(ctx context.Context, s *entity.Schema, id string) error {
	result, err := r.collection(s).DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		r.logger.ErrorContext(ctx, "failed to delete record",
			slog.String("entity", s.Name),
			slog.String("id", id),
			slog.String("error", err.Error()),
		)
		return HandleMongoError(err, s.Name)
	}
	if result.DeletedCount == 0 {
		return fmt.Errorf("%s %q: %w", s.Name, id, errs.ErrNotFound)
	}
	return nil
}

// SetReference sets or clears a single relation column on the listed documents.
func (r *RecordRepository) SetReference(
	ctx context.Context,
	s *entity.Schema,
	relation string,
	ids []string,
	value *string,
) error {
	if len(ids) == 0 {
		return nil
	}
	rel, ok := s.Relation(relation)
	if !ok || rel.Cardinality != entity.One {
		return fmt.Errorf("%s has no single relation %q", s.Name, relation)
	}

	var ref any
	if value != nil {
		ref = *value
	}
	update := bson.M{
		"$set": bson.M{rel.Column: ref},
		"$inc": bson.M{versionField: 1},
	}
	if _, err := r.collection(s).UpdateMany(ctx, bson.M{"_id": bson.M{"$in": ids}}, update); err != nil {
		return HandleMongoError(err, s.Name)
	}
	return nil
}

// include loads the child ids of a Many relation for every record.
func (r *RecordRepository) include(ctx context.Context, s *entity.Schema, name string, records []*entity.Record) error {
	rel, ok := s.Relation(name)
	if !ok || rel.Cardinality != entity.Many {
		return fmt.Errorf("%s has no collection %q", s.Name, name)
	}
	if len(records) == 0 {
		return nil
	}
	target := r.catalog.Target(rel)
	inverse, _ := target.Relation(rel.Inverse)

	parentIDs := make([]string, 0, len(records))
	byID := make(map[string]*entity.Record, len(records))
	for _, rec := range records {
		parentIDs = append(parentIDs, rec.ID)
		byID[rec.ID] = rec
		rec.Children[name] = []string{}
	}

	opts := options.Find().
		SetProjection(bson.M{"_id": 1, inverse.Column: 1}).
		SetSort(bson.D{{Key: "_id", Value: 1}})
	links, err := listDocuments(ctx, r.collection(target), bson.M{inverse.Column: bson.M{"$in": parentIDs}}, opts,
		func(doc bson.M) ([2]string, error) {
			childID, _ := doc["_id"].(string)
			parentID, _ := doc[inverse.Column].(string)
			if childID == "" || parentID == "" {
				return [2]string{}, errors.New("incomplete back-reference")
			}
			return [2]string{parentID, childID}, nil
		},
		target.Collection,
	)
	if err != nil {
		return err
	}

	for _, link := range links {
		if parent, found := byID[link[0]]; found {
			parent.Children[name] = append(parent.Children[name], link[1])
		}
	}
	return nil
}

func (r *RecordRepository) collection(s *entity.Schema) *mongo.Collection {
	return r.db.Collection(s.Collection)
}
