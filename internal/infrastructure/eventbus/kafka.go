package eventbus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/lllypuk/claimservice/internal/domain/event"
)

// HeaderEventType carries the event type on every Kafka message.
const HeaderEventType = "event_type"

// KafkaConfig configures the Kafka publisher and subscriber.
type KafkaConfig struct {
	Brokers []string
	Topic   string
	// GroupID is used by the subscriber only.
	GroupID string
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher implements event.Bus on a single Kafka topic. Messages are
// keyed by record id so that changes to one record stay ordered.
type KafkaPublisher struct {
	writer messageWriter
	opts   options
}

// NewKafkaPublisher creates a publisher writing to config.Topic.
func NewKafkaPublisher(config KafkaConfig, opts ...Option) (*KafkaPublisher, error) {
	if len(config.Brokers) == 0 || config.Topic == "" {
		return nil, errors.New("kafka brokers and topic are required")
	}
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(config.Brokers...),
		Topic:                  config.Topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		BatchTimeout:           10 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}
	return newKafkaPublisher(writer, opts...), nil
}

func newKafkaPublisher(writer messageWriter, opts ...Option) *KafkaPublisher {
	return &KafkaPublisher{writer: writer, opts: newOptions(opts)}
}

// Publish implements event.Bus.
func (p *KafkaPublisher) Publish(ctx context.Context, evt event.DomainEvent) error {
	if evt == nil {
		return errors.New("event cannot be nil")
	}

	env := NewEnvelope(evt)
	data, err := env.Marshal()
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Key:     []byte(env.RecordID),
		Value:   data,
		Time:    env.OccurredAt,
		Headers: []kafka.Header{{Key: HeaderEventType, Value: []byte(env.EventType)}},
	}
	if err = p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish event to Kafka: %w", err)
	}

	p.opts.logger.DebugContext(ctx, "event published",
		slog.String("event_id", env.ID),
		slog.String("event_type", env.EventType),
	)
	return nil
}

// Close flushes pending messages.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// KafkaSubscriber consumes the topic as part of a consumer group.
type KafkaSubscriber struct {
	reader messageReader
	opts   options
}

// NewKafkaSubscriber creates a consumer-group subscriber.
func NewKafkaSubscriber(config KafkaConfig, opts ...Option) (*KafkaSubscriber, error) {
	if len(config.Brokers) == 0 || config.Topic == "" || config.GroupID == "" {
		return nil, errors.New("kafka brokers, topic and group id are required")
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers: config.Brokers,
		Topic:   config.Topic,
		GroupID: config.GroupID,
	})
	return newKafkaSubscriber(reader, opts...), nil
}

func newKafkaSubscriber(reader messageReader, opts ...Option) *KafkaSubscriber {
	return &KafkaSubscriber{reader: reader, opts: newOptions(opts)}
}

// Run delivers events to handler until ctx is cancelled. Each message is
// committed after handling, whether or not the handler succeeded.
func (s *KafkaSubscriber) Run(ctx context.Context, handler Handler) error {
	defer func() { _ = s.reader.Close() }()

	for {
		msg, err := s.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("failed to fetch message: %w", err)
		}

		env, err := DecodeEnvelope(msg.Value)
		if err != nil {
			s.opts.logger.ErrorContext(ctx, "dropping malformed event",
				slog.Int("partition", msg.Partition),
				slog.Int64("offset", msg.Offset),
				slog.String("error", err.Error()),
			)
		} else {
			_ = handleWithRetry(ctx, s.opts, handler, env)
		}

		if err = s.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("failed to commit message: %w", err)
		}
	}
}

var _ event.Bus = (*KafkaPublisher)(nil)
