package eventbus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/lllypuk/claimservice/internal/domain/event"
)

// RedisPublisher implements event.Bus on Redis Pub/Sub. Each event type gets
// its own channel, "<prefix><entity>.<change>".
type RedisPublisher struct {
	client redis.UniversalClient
	opts   options
}

// NewRedisPublisher creates a Redis publisher.
func NewRedisPublisher(client redis.UniversalClient, opts ...Option) *RedisPublisher {
	return &RedisPublisher{client: client, opts: newOptions(opts)}
}

// Publish implements event.Bus.
func (p *RedisPublisher) Publish(ctx context.Context, evt event.DomainEvent) error {
	if evt == nil {
		return errors.New("event cannot be nil")
	}

	env := NewEnvelope(evt)
	data, err := env.Marshal()
	if err != nil {
		return err
	}

	channel := p.opts.channelPrefix + env.EventType
	if err = p.client.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish event to Redis: %w", err)
	}

	p.opts.logger.DebugContext(ctx, "event published",
		slog.String("event_id", env.ID),
		slog.String("event_type", env.EventType),
		slog.String("channel", channel),
	)
	return nil
}

// RedisSubscriber consumes every channel under the prefix.
type RedisSubscriber struct {
	client redis.UniversalClient
	opts   options
}

// NewRedisSubscriber creates a Redis subscriber.
func NewRedisSubscriber(client redis.UniversalClient, opts ...Option) *RedisSubscriber {
	return &RedisSubscriber{client: client, opts: newOptions(opts)}
}

// Run delivers events to handler until ctx is cancelled. Messages are handled
// in arrival order. Undecodable messages and handler failures are logged and
// skipped.
func (s *RedisSubscriber) Run(ctx context.Context, handler Handler) error {
	pattern := s.opts.channelPrefix + "*"
	pubsub := s.client.PSubscribe(ctx, pattern)
	defer func() { _ = pubsub.Close() }()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", pattern, err)
	}
	s.opts.logger.InfoContext(ctx, "redis subscriber started", slog.String("pattern", pattern))

	msgCh := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgCh:
			if !ok {
				return nil
			}
			env, err := DecodeEnvelope([]byte(msg.Payload))
			if err != nil {
				s.opts.logger.ErrorContext(ctx, "dropping malformed event",
					slog.String("channel", msg.Channel),
					slog.String("error", err.Error()),
				)
				continue
			}
			_ = handleWithRetry(ctx, s.opts, handler, env)
		}
	}
}

var _ event.Bus = (*RedisPublisher)(nil)
