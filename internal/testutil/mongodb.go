// Package testutil starts shared MongoDB and Redis containers for integration tests.
package testutil

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const (
	mongoCtxTimeout              = 10 * time.Second
	mongoContainerStartupTimeout = 120 * time.Second
	mongoPingTimeout             = 2 * time.Second
	pingRetryDelay               = 500 * time.Millisecond
	maxTestNameLength            = 40
)

// sharedMongo holds the singleton MongoDB container
var (
	sharedMongo     *SharedMongoContainer
	sharedMongoOnce sync.Once
	errSharedMongo  error
)

// SharedMongoContainer represents a reusable MongoDB container for tests
type SharedMongoContainer struct {
	Container testcontainers.Container
	URI       string
}

// GetSharedMongoContainer returns a singleton MongoDB container.
// The container is started once and reused across all tests of the binary.
func GetSharedMongoContainer(ctx context.Context) (*SharedMongoContainer, error) {
	sharedMongoOnce.Do(func() {
		sharedMongo, errSharedMongo = startMongoContainer(ctx)
	})
	return sharedMongo, errSharedMongo
}

func startMongoContainer(ctx context.Context) (*SharedMongoContainer, error) {
	req := testcontainers.ContainerRequest{
		Image:        "mongo:8",
		ExposedPorts: []string{"27017/tcp"},
		Env: map[string]string{
			"MONGO_INITDB_ROOT_USERNAME": "admin",
			"MONGO_INITDB_ROOT_PASSWORD": "admin123",
		},
		WaitingFor: wait.ForLog("Waiting for connections").WithStartupTimeout(mongoContainerStartupTimeout),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start MongoDB container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get container host: %w", err)
	}

	port, err := container.MappedPort(ctx, "27017")
	if err != nil {
		return nil, fmt.Errorf("failed to get container port: %w", err)
	}

	return &SharedMongoContainer{
		Container: container,
		URI:       fmt.Sprintf("mongodb://admin:admin123@%s", net.JoinHostPort(host, port.Port())),
	}, nil
}

// SetupTestMongoDB creates an isolated database in the shared container.
// The database is dropped when the test finishes. Skipped with -short.
func SetupTestMongoDB(t *testing.T) *mongo.Database {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping MongoDB integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), mongoContainerStartupTimeout)
	defer cancel()

	container, err := GetSharedMongoContainer(ctx)
	if err != nil {
		t.Fatalf("Failed to get shared MongoDB container: %v", err)
	}

	client, err := mongo.Connect(options.Client().ApplyURI(container.URI))
	if err != nil {
		t.Fatalf("Failed to connect to MongoDB: %v", err)
	}

	// Ping with retries
	maxRetries := 5
	for i := range maxRetries {
		pingCtx, pingCancel := context.WithTimeout(context.Background(), mongoPingTimeout)
		err = client.Ping(pingCtx, nil)
		pingCancel()
		if err == nil {
			break
		}
		if i < maxRetries-1 {
			time.Sleep(pingRetryDelay)
		}
	}
	if err != nil {
		t.Fatalf("Failed to ping MongoDB after %d retries: %v", maxRetries, err)
	}

	db := client.Database(testDBName(t.Name()))

	t.Cleanup(func() {
		cleanupCtx, cleanupCancel := context.WithTimeout(context.Background(), mongoCtxTimeout)
		defer cleanupCancel()
		_ = db.Drop(cleanupCtx)
		_ = client.Disconnect(cleanupCtx)
	})

	return db
}

// testDBName creates a unique database name from the test name
func testDBName(testName string) string {
	hash := sha256.Sum256([]byte(testName))
	suffix := hex.EncodeToString(hash[:])[:12]
	clean := make([]rune, 0, len(testName))
	for _, r := range testName {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			clean = append(clean, r)
		default:
			clean = append(clean, '_')
		}
	}
	if len(clean) > maxTestNameLength {
		clean = clean[:maxTestNameLength]
	}
	return "claims_test_" + string(clean) + "_" + suffix
}
