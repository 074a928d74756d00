// Package mongodb manages MongoDB collection indexes for the claim service.
package mongodb

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/lllypuk/claimservice/internal/domain/entity"
	"github.com/lllypuk/claimservice/internal/domain/model"
)

// Collection names
const (
	CollectionClaims    = "claims"
	CollectionCustomers = "customers"
	CollectionReviews   = "reviews"
	CollectionUsers     = "users"

	// CollectionChangeLog holds the change feed written by the worker.
	CollectionChangeLog = "change_log"
)

// IndexDefinition describes a single MongoDB index.
type IndexDefinition struct {
	Collection string
	Name       string
	Keys       bson.D
	Unique     bool
}

func (d IndexDefinition) model() mongo.IndexModel {
	opts := options.Index().SetName(d.Name)
	if d.Unique {
		opts.SetUnique(true)
	}
	return mongo.IndexModel{Keys: d.Keys, Options: opts}
}

// CreateAllIndexes creates every index the service relies on.
// Creating an index that already exists with the same options is a no-op in MongoDB.
func CreateAllIndexes(ctx context.Context, db *mongo.Database) error {
	for _, idx := range GetAllIndexDefinitions() {
		if err := createIndex(ctx, db, idx); err != nil {
			return err
		}
	}
	return nil
}

// EnsureIndexes is an alias for CreateAllIndexes.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	return CreateAllIndexes(ctx, db)
}

// CreateCollectionIndexes creates indexes for a single collection.
func CreateCollectionIndexes(ctx context.Context, db *mongo.Database, collectionName string) error {
	var indexes []IndexDefinition

	switch collectionName {
	case CollectionClaims:
		indexes = GetClaimIndexes()
	case CollectionCustomers:
		indexes = GetCustomerIndexes()
	case CollectionReviews:
		indexes = GetReviewIndexes()
	case CollectionUsers:
		indexes = GetUserIndexes()
	case CollectionChangeLog:
		indexes = GetChangeLogIndexes()
	default:
		return fmt.Errorf("unknown collection: %s", collectionName)
	}

	for _, idx := range indexes {
		if err := createIndex(ctx, db, idx); err != nil {
			return err
		}
	}
	return nil
}

func createIndex(ctx context.Context, db *mongo.Database, idx IndexDefinition) error {
	if _, err := db.Collection(idx.Collection).Indexes().CreateOne(ctx, idx.model()); err != nil {
		return fmt.Errorf("failed to create index %s on %s: %w", idx.Name, idx.Collection, err)
	}
	return nil
}

func column(schema *entity.Schema, name string) string {
	c, ok := schema.Column(name)
	if !ok {
		panic(fmt.Sprintf("mongodb: %s has no column for %q", schema.Name, name))
	}
	return c
}

// uniqueIndexes builds one unique index per field of schema flagged Unique.
func uniqueIndexes(schema *entity.Schema) []IndexDefinition {
	var defs []IndexDefinition
	for _, f := range schema.UniqueFields() {
		defs = append(defs, IndexDefinition{
			Collection: schema.Collection,
			Name:       fmt.Sprintf("idx_%s_%s_unique", schema.Collection, f.Column),
			Keys:       bson.D{{Key: f.Column, Value: 1}},
			Unique:     true,
		})
	}
	return defs
}

// GetAllIndexDefinitions returns all index definitions.
func GetAllIndexDefinitions() []IndexDefinition {
	var all []IndexDefinition
	all = append(all, GetClaimIndexes()...)
	all = append(all, GetCustomerIndexes()...)
	all = append(all, GetReviewIndexes()...)
	all = append(all, GetUserIndexes()...)
	all = append(all, GetChangeLogIndexes()...)
	return all
}

// GetClaimIndexes returns index definitions for the claims collection.
func GetClaimIndexes() []IndexDefinition {
	return []IndexDefinition{
		{
			// Customer.claims is resolved through this column
			Collection: CollectionClaims,
			Name:       "idx_claims_customer",
			Keys:       bson.D{{Key: column(model.Claim, "customer"), Value: 1}},
		},
		{
			Collection: CollectionClaims,
			Name:       "idx_claims_policy_number",
			Keys:       bson.D{{Key: column(model.Claim, "policyNumber"), Value: 1}},
		},
		{
			Collection: CollectionClaims,
			Name:       "idx_claims_claim_date",
			Keys:       bson.D{{Key: column(model.Claim, "claimDate"), Value: -1}},
		},
	}
}

// GetCustomerIndexes returns index definitions for the customers collection.
func GetCustomerIndexes() []IndexDefinition {
	return []IndexDefinition{
		{
			Collection: CollectionCustomers,
			Name:       "idx_customers_email",
			Keys:       bson.D{{Key: column(model.Customer, "email"), Value: 1}},
		},
		{
			Collection: CollectionCustomers,
			Name:       "idx_customers_name",
			Keys: bson.D{
				{Key: column(model.Customer, "lastName"), Value: 1},
				{Key: column(model.Customer, "firstName"), Value: 1},
			},
		},
	}
}

// GetReviewIndexes returns index definitions for the reviews collection.
func GetReviewIndexes() []IndexDefinition {
	return []IndexDefinition{
		{
			// Claim.reviews is resolved through this column
			Collection: CollectionReviews,
			Name:       "idx_reviews_claim",
			Keys:       bson.D{{Key: column(model.Review, "claim"), Value: 1}},
		},
		{
			Collection: CollectionReviews,
			Name:       "idx_reviews_rating",
			Keys:       bson.D{{Key: column(model.Review, "rating"), Value: 1}},
		},
	}
}

// GetUserIndexes returns index definitions for the users collection.
func GetUserIndexes() []IndexDefinition {
	return append(uniqueIndexes(model.User), IndexDefinition{
		Collection: CollectionUsers,
		Name:       "idx_users_roles",
		Keys:       bson.D{{Key: column(model.User, "roles"), Value: 1}},
	})
}

// GetChangeLogIndexes returns index definitions for the change_log collection.
func GetChangeLogIndexes() []IndexDefinition {
	return []IndexDefinition{
		{
			Collection: CollectionChangeLog,
			Name:       "idx_change_log_record",
			Keys: bson.D{
				{Key: "entity", Value: 1},
				{Key: "record_id", Value: 1},
				{Key: "occurred_at", Value: -1},
			},
		},
	}
}
