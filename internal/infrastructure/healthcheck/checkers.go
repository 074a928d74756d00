package healthcheck

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
)

// DefaultSlowThreshold marks a successful but slow probe as degraded.
const DefaultSlowThreshold = 500 * time.Millisecond

func timed(slow time.Duration, probe func() error) Status {
	start := time.Now()
	err := probe()
	latency := time.Since(start)

	if err != nil {
		return Status{Message: err.Error(), Latency: latency, CheckedAt: time.Now()}
	}
	status := Status{Healthy: true, Latency: latency, CheckedAt: time.Now()}
	if slow > 0 && latency > slow {
		status.Degraded = true
		status.Message = fmt.Sprintf("slow response: %s", latency.Round(time.Millisecond))
	}
	return status
}

// MongoChecker pings the primary.
type MongoChecker struct {
	client *mongo.Client
	slow   time.Duration
}

// NewMongoChecker creates a MongoDB checker.
func NewMongoChecker(client *mongo.Client) *MongoChecker {
	return &MongoChecker{client: client, slow: DefaultSlowThreshold}
}

// Name implements Checker.
func (c *MongoChecker) Name() string { return "mongodb" }

// Check implements Checker.
func (c *MongoChecker) Check(ctx context.Context) Status {
	return timed(c.slow, func() error {
		return c.client.Ping(ctx, readpref.Primary())
	})
}

// RedisChecker sends PING.
type RedisChecker struct {
	client redis.UniversalClient
	slow   time.Duration
}

// NewRedisChecker creates a Redis checker.
func NewRedisChecker(client redis.UniversalClient) *RedisChecker {
	return &RedisChecker{client: client, slow: DefaultSlowThreshold}
}

// Name implements Checker.
func (c *RedisChecker) Name() string { return "redis" }

// Check implements Checker.
func (c *RedisChecker) Check(ctx context.Context) Status {
	return timed(c.slow, func() error {
		return c.client.Ping(ctx).Err()
	})
}

// KafkaChecker dials the first reachable broker and reads cluster metadata.
type KafkaChecker struct {
	brokers []string
	dialer  *kafka.Dialer
	slow    time.Duration
}

// NewKafkaChecker creates a Kafka checker.
func NewKafkaChecker(brokers []string) *KafkaChecker {
	return &KafkaChecker{
		brokers: brokers,
		dialer:  &kafka.Dialer{Timeout: DefaultCheckTimeout},
		slow:    DefaultSlowThreshold,
	}
}

// Name implements Checker.
func (c *KafkaChecker) Name() string { return "kafka" }

// Check implements Checker.
func (c *KafkaChecker) Check(ctx context.Context) Status {
	return timed(c.slow, func() error {
		if len(c.brokers) == 0 {
			return fmt.Errorf("no brokers configured")
		}
		var lastErr error
		for _, broker := range c.brokers {
			conn, err := c.dialer.DialContext(ctx, "tcp", broker)
			if err != nil {
				lastErr = err
				continue
			}
			_, err = conn.Brokers()
			_ = conn.Close()
			if err == nil {
				return nil
			}
			lastErr = err
		}
		return fmt.Errorf("kafka unreachable: %w", lastErr)
	})
}

// FuncChecker adapts a probe function.
type FuncChecker struct {
	name  string
	probe func(ctx context.Context) error
}

// NewFuncChecker creates a checker named name that runs probe.
func NewFuncChecker(name string, probe func(ctx context.Context) error) *FuncChecker {
	return &FuncChecker{name: name, probe: probe}
}

// Name implements Checker.
func (c *FuncChecker) Name() string { return c.name }

// Check implements Checker.
func (c *FuncChecker) Check(ctx context.Context) Status {
	return timed(0, func() error { return c.probe(ctx) })
}
