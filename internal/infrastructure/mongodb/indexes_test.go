package mongodb_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/lllypuk/claimservice/internal/domain/model"
	"github.com/lllypuk/claimservice/internal/infrastructure/mongodb"
	"github.com/lllypuk/claimservice/internal/testutil"
)

func TestCreateAllIndexes(t *testing.T) {
	t.Parallel()

	db := testutil.SetupTestMongoDB(t)
	ctx := context.Background()

	// Act
	err := mongodb.CreateAllIndexes(ctx, db)

	// Assert
	require.NoError(t, err)

	collections := []string{
		mongodb.CollectionClaims,
		mongodb.CollectionCustomers,
		mongodb.CollectionReviews,
		mongodb.CollectionUsers,
	}
	for _, collName := range collections {
		indexes := getCollectionIndexes(ctx, t, db, collName)
		// _id plus at least one custom index
		assert.GreaterOrEqual(t, len(indexes), 2, "collection %s should have indexes", collName)
	}
}

func TestCreateAllIndexes_Idempotent(t *testing.T) {
	t.Parallel()

	db := testutil.SetupTestMongoDB(t)
	ctx := context.Background()

	// Act
	require.NoError(t, mongodb.CreateAllIndexes(ctx, db))
	require.NoError(t, mongodb.CreateAllIndexes(ctx, db))

	// Assert
	indexes := getCollectionIndexes(ctx, t, db, mongodb.CollectionUsers)
	assert.Len(t, indexes, len(mongodb.GetUserIndexes())+1)
}

func TestGetClaimIndexes(t *testing.T) {
	t.Parallel()

	indexes := mongodb.GetClaimIndexes()

	assert.Len(t, indexes, 3)
	customerIdx := findIndexByName(indexes, "idx_claims_customer")
	require.NotNil(t, customerIdx)
	assert.Equal(t, bson.D{{Key: "customer_id", Value: 1}}, customerIdx.Keys)
	assert.Equal(t, mongodb.CollectionClaims, customerIdx.Collection)
}

func TestGetReviewIndexes(t *testing.T) {
	t.Parallel()

	indexes := mongodb.GetReviewIndexes()

	assert.Len(t, indexes, 2)
	claimIdx := findIndexByName(indexes, "idx_reviews_claim")
	require.NotNil(t, claimIdx)
	assert.Equal(t, bson.D{{Key: "claim_id", Value: 1}}, claimIdx.Keys)
}

func TestGetUserIndexes(t *testing.T) {
	t.Parallel()

	indexes := mongodb.GetUserIndexes()

	usernameIdx := findIndexByName(indexes, "idx_users_username_unique")
	require.NotNil(t, usernameIdx)
	assert.True(t, usernameIdx.Unique)
	assert.Equal(t, bson.D{{Key: "username", Value: 1}}, usernameIdx.Keys)
	assert.Equal(t, mongodb.CollectionUsers, usernameIdx.Collection)

	var unique int
	for _, idx := range indexes {
		if idx.Unique {
			unique++
		}
	}
	assert.Equal(t, len(model.User.UniqueFields()), unique)
}

func TestGetChangeLogIndexes(t *testing.T) {
	t.Parallel()

	indexes := mongodb.GetChangeLogIndexes()

	require.Len(t, indexes, 1)
	assert.Equal(t, mongodb.CollectionChangeLog, indexes[0].Collection)
	assert.Equal(t, "record_id", indexes[0].Keys[1].Key)
}

func TestGetAllIndexDefinitions(t *testing.T) {
	t.Parallel()

	all := mongodb.GetAllIndexDefinitions()

	expected := len(mongodb.GetClaimIndexes()) +
		len(mongodb.GetCustomerIndexes()) +
		len(mongodb.GetReviewIndexes()) +
		len(mongodb.GetUserIndexes()) +
		len(mongodb.GetChangeLogIndexes())
	assert.Len(t, all, expected)

	names := make(map[string]bool, len(all))
	for _, idx := range all {
		assert.NotEmpty(t, idx.Name)
		assert.False(t, names[idx.Name], "duplicate index name %s", idx.Name)
		names[idx.Name] = true
	}
}

func TestCreateCollectionIndexes(t *testing.T) {
	t.Parallel()

	db := testutil.SetupTestMongoDB(t)
	ctx := context.Background()

	// Act
	err := mongodb.CreateCollectionIndexes(ctx, db, mongodb.CollectionReviews)

	// Assert
	require.NoError(t, err)
	indexes := getCollectionIndexes(ctx, t, db, mongodb.CollectionReviews)
	assert.NotNil(t, findIndexInDBByName(indexes, "idx_reviews_claim"))
}

func TestCreateCollectionIndexes_UnknownCollection(t *testing.T) {
	t.Parallel()

	db := testutil.SetupTestMongoDB(t)

	err := mongodb.CreateCollectionIndexes(context.Background(), db, "policies")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown collection")
}

func TestIndexesIntegration_UniqueUsername(t *testing.T) {
	t.Parallel()

	db := testutil.SetupTestMongoDB(t)
	ctx := context.Background()
	require.NoError(t, mongodb.EnsureIndexes(ctx, db))
	coll := db.Collection(mongodb.CollectionUsers)
	now := time.Now().UTC()

	// Arrange
	_, err := coll.InsertOne(ctx, bson.M{"_id": "u1", "username": "alice", "created_at": now})
	require.NoError(t, err)

	// Act
	_, err = coll.InsertOne(ctx, bson.M{"_id": "u2", "username": "alice", "created_at": now})

	// Assert
	require.Error(t, err)
	assert.True(t, mongo.IsDuplicateKeyError(err))
}

func getCollectionIndexes(ctx context.Context, t *testing.T, db *mongo.Database, collName string) []bson.M {
	t.Helper()

	cursor, err := db.Collection(collName).Indexes().List(ctx)
	require.NoError(t, err)

	var indexes []bson.M
	require.NoError(t, cursor.All(ctx, &indexes))
	return indexes
}

func findIndexByName(indexes []mongodb.IndexDefinition, name string) *mongodb.IndexDefinition {
	for i := range indexes {
		if indexes[i].Name == name {
			return &indexes[i]
		}
	}
	return nil
}

func findIndexInDBByName(indexes []bson.M, name string) bson.M {
	for _, idx := range indexes {
		if idxName, ok := idx["name"].(string); ok && idxName == name {
			return idx
		}
	}
	return nil
}
