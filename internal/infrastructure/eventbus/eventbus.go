// Package eventbus publishes record change events to Redis Pub/Sub or Kafka
// and consumes them back as a change feed.
package eventbus

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/lllypuk/claimservice/internal/domain/event"
)

// Default retry configuration constants.
const (
	defaultMaxRetries     = 3
	defaultInitialBackoff = 100 * time.Millisecond
	defaultMaxBackoff     = 5 * time.Second
	defaultBackoffFactor  = 2.0
	defaultChannelPrefix  = "claimservice:events:"
)

// Envelope is the wire form of a change event.
type Envelope struct {
	ID         string         `json:"id"`
	EventType  string         `json:"event_type"`
	Entity     string         `json:"entity"`
	RecordID   string         `json:"record_id"`
	Relation   string         `json:"relation,omitempty"`
	RelatedIDs []string       `json:"related_ids,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
	Metadata   event.Metadata `json:"metadata"`
}

// NewEnvelope wraps evt with a fresh envelope id.
func NewEnvelope(evt event.DomainEvent) Envelope {
	env := Envelope{
		ID:         uuid.NewString(),
		EventType:  evt.EventType(),
		Entity:     evt.AggregateType(),
		RecordID:   evt.AggregateID(),
		OccurredAt: evt.OccurredAt(),
		Metadata:   evt.Metadata(),
	}
	if rc, ok := evt.(*event.RecordChanged); ok {
		env.Relation = rc.Relation
		env.RelatedIDs = rc.RelatedIDs
	}
	return env
}

// Marshal encodes the envelope as JSON.
func (e Envelope) Marshal() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}
	return data, nil
}

// DecodeEnvelope parses an envelope produced by Marshal.
func DecodeEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("failed to unmarshal event: %w", err)
	}
	if env.EventType == "" {
		return Envelope{}, fmt.Errorf("failed to unmarshal event: missing event_type")
	}
	return env, nil
}

// Handler consumes one change event.
type Handler func(ctx context.Context, env Envelope) error

// RetryConfig configures retry behavior for event handling.
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	BackoffFactor  float64
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     defaultMaxRetries,
		InitialBackoff: defaultInitialBackoff,
		MaxBackoff:     defaultMaxBackoff,
		BackoffFactor:  defaultBackoffFactor,
	}
}

type options struct {
	logger        *slog.Logger
	retry         RetryConfig
	channelPrefix string
}

func newOptions(opts []Option) options {
	o := options{
		logger:        slog.Default(),
		retry:         DefaultRetryConfig(),
		channelPrefix: defaultChannelPrefix,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Option configures publishers and subscribers.
type Option func(*options)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithRetryConfig sets the retry configuration for event handling.
func WithRetryConfig(config RetryConfig) Option {
	return func(o *options) {
		o.retry = config
	}
}

// WithChannelPrefix sets the Redis channel prefix.
func WithChannelPrefix(prefix string) Option {
	return func(o *options) {
		o.channelPrefix = prefix
	}
}

// handleWithRetry runs handler with exponential backoff. It returns the last
// error once retries are exhausted or ctx is done.
func handleWithRetry(ctx context.Context, o options, handler Handler, env Envelope) error {
	var lastErr error
	backoff := o.retry.InitialBackoff

	for attempt := 0; attempt <= o.retry.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff = min(time.Duration(float64(backoff)*o.retry.BackoffFactor), o.retry.MaxBackoff)
		}

		if lastErr = handler(ctx, env); lastErr == nil {
			return nil
		}
		o.logger.WarnContext(ctx, "event handler failed",
			slog.String("event_type", env.EventType),
			slog.String("record_id", env.RecordID),
			slog.Int("attempt", attempt),
			slog.String("error", lastErr.Error()),
		)
	}

	o.logger.ErrorContext(ctx, "event handler failed after all retries",
		slog.String("event_type", env.EventType),
		slog.String("record_id", env.RecordID),
		slog.Int("max_retries", o.retry.MaxRetries),
	)
	return lastErr
}
