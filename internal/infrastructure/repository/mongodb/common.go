package mongodb

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/lllypuk/claimservice/internal/domain/errs"
)

// versionField holds the optimistic concurrency counter of every document.
const versionField = "version"

// HandleMongoError converts a MongoDB error into a domain error.
// returns:
//   - nil if err == nil
//   - errs.ErrNotFound if the document was not found
//   - errs.ErrAlreadyExists if a unique constraint was violated
//   - a wrapped error otherwise
func HandleMongoError(err error, resourceType string) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, mongo.ErrNoDocuments) {
		return fmt.Errorf("%s: %w", resourceType, errs.ErrNotFound)
	}

	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%s: %w", resourceType, errs.ErrAlreadyExists)
	}

	return fmt.Errorf("failed to operate on %s: %w", resourceType, err)
}

// FindWithPagination returns find options with pagination and sorting.
// A limit of zero leaves the result unbounded.
func FindWithPagination(offset, limit int64, sort bson.D) *options.FindOptionsBuilder {
	opts := options.Find().SetSort(sort).SetSkip(offset)
	if limit > 0 {
		opts.SetLimit(limit)
	}
	return opts
}

// CountFilter counts the documents matching filter.
func CountFilter(ctx context.Context, coll *mongo.Collection, filter any) (int64, error) {
	return coll.CountDocuments(ctx, filter)
}
