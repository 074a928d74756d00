package healthcheck_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lllypuk/claimservice/internal/infrastructure/healthcheck"
	"github.com/lllypuk/claimservice/internal/infrastructure/httpserver"
	"github.com/lllypuk/claimservice/internal/testutil"
)

func ok(context.Context) error { return nil }

func failing(context.Context) error { return errors.New("connection refused") }

func TestAggregator(t *testing.T) {
	tests := []struct {
		name       string
		critical   []healthcheck.Checker
		optional   []healthcheck.Checker
		wantReady  bool
		wantStatus []string
	}{
		{
			name:       "all healthy",
			critical:   []healthcheck.Checker{healthcheck.NewFuncChecker("db", ok)},
			optional:   []healthcheck.Checker{healthcheck.NewFuncChecker("bus", ok)},
			wantReady:  true,
			wantStatus: []string{httpserver.StatusHealthy, httpserver.StatusHealthy},
		},
		{
			name:       "optional failure degrades",
			critical:   []healthcheck.Checker{healthcheck.NewFuncChecker("db", ok)},
			optional:   []healthcheck.Checker{healthcheck.NewFuncChecker("bus", failing)},
			wantReady:  true,
			wantStatus: []string{httpserver.StatusHealthy, httpserver.StatusDegraded},
		},
		{
			name:       "critical failure",
			critical:   []healthcheck.Checker{healthcheck.NewFuncChecker("db", failing)},
			wantReady:  false,
			wantStatus: []string{httpserver.StatusUnhealthy},
		},
		{
			name:      "no checkers",
			wantReady: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			agg := healthcheck.NewAggregator()
			for _, c := range tt.critical {
				agg.Register(c)
			}
			for _, c := range tt.optional {
				agg.RegisterOptional(c)
			}
			ctx := context.Background()

			// Act
			ready := agg.IsReady(ctx)
			components := agg.GetHealthStatus(ctx)

			// Assert
			assert.Equal(t, tt.wantReady, ready)
			require.Len(t, components, len(tt.wantStatus))
			for i, want := range tt.wantStatus {
				assert.Equal(t, want, components[i].Status, components[i].Name)
			}
		})
	}
}

func TestAggregator_Timeout(t *testing.T) {
	agg := healthcheck.NewAggregator(healthcheck.WithTimeout(20 * time.Millisecond))
	agg.Register(healthcheck.NewFuncChecker("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}))

	components := agg.GetHealthStatus(context.Background())

	require.Len(t, components, 1)
	assert.Equal(t, httpserver.StatusUnhealthy, components[0].Status)
	assert.Contains(t, components[0].Message, "deadline exceeded")
}

func TestInfrastructureCheckers(t *testing.T) {
	db := testutil.SetupTestMongoDB(t)
	rdb := testutil.SetupTestRedis(t)
	ctx := context.Background()

	for _, checker := range []healthcheck.Checker{
		healthcheck.NewMongoChecker(db.Client()),
		healthcheck.NewRedisChecker(rdb),
	} {
		t.Run(checker.Name(), func(t *testing.T) {
			status := checker.Check(ctx)

			assert.True(t, status.Healthy, status.Message)
			assert.False(t, status.CheckedAt.IsZero())
		})
	}
}

func TestKafkaChecker_Unreachable(t *testing.T) {
	checker := healthcheck.NewKafkaChecker([]string{"127.0.0.1:1"})

	status := checker.Check(context.Background())

	assert.False(t, status.Healthy)
	assert.Contains(t, status.Message, "kafka unreachable")
}

func TestKafkaChecker_NoBrokers(t *testing.T) {
	status := healthcheck.NewKafkaChecker(nil).Check(context.Background())

	assert.False(t, status.Healthy)
}
