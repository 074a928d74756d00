package mongodb

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// listDocuments runs a find and converts every document with decoder.
// R - result type (domain object)
//
// returns:
// - a slice of results (never nil)
// - an error if the query, a decode or the cursor fails
func listDocuments[R any](
	ctx context.Context,
	collection *mongo.Collection,
	filter any,
	opts *options.FindOptionsBuilder,
	decoder func(bson.M) (R, error),
	collectionName string,
) ([]R, error) {
	cursor, err := collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, HandleMongoError(err, collectionName)
	}
	defer cursor.Close(ctx)

	results := make([]R, 0)
	for cursor.Next(ctx) {
		var doc bson.M
		if decodeErr := cursor.Decode(&doc); decodeErr != nil {
			return nil, fmt.Errorf("failed to decode %s document: %w", collectionName, decodeErr)
		}

		item, docErr := decoder(doc)
		if docErr != nil {
			return nil, fmt.Errorf("failed to convert %s document: %w", collectionName, docErr)
		}

		results = append(results, item)
	}

	if err = cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor error: %w", err)
	}

	return results, nil
}
