package eventbus_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lllypuk/claimservice/internal/domain/event"
	"github.com/lllypuk/claimservice/internal/infrastructure/eventbus"
	"github.com/lllypuk/claimservice/internal/testutil"
)

func fastRetry() eventbus.Option {
	return eventbus.WithRetryConfig(eventbus.RetryConfig{
		MaxRetries:     2,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
		BackoffFactor:  2,
	})
}

func connectedEvent() *event.RecordChanged {
	return event.NewRecordChanged("claim", event.TypeRelationConnected, "c-1", event.NewMetadata("u-1", "req-1")).
		WithRelation("reviews", []string{"r-1", "r-2"})
}

func TestEnvelope_RoundTrip(t *testing.T) {
	// Arrange
	env := eventbus.NewEnvelope(connectedEvent())

	// Act
	data, err := env.Marshal()
	require.NoError(t, err)
	decoded, err := eventbus.DecodeEnvelope(data)

	// Assert
	require.NoError(t, err)
	assert.NotEmpty(t, decoded.ID)
	assert.Equal(t, "claim.relation.connected", decoded.EventType)
	assert.Equal(t, "claim", decoded.Entity)
	assert.Equal(t, "c-1", decoded.RecordID)
	assert.Equal(t, "reviews", decoded.Relation)
	assert.Equal(t, []string{"r-1", "r-2"}, decoded.RelatedIDs)
	assert.Equal(t, "req-1", decoded.Metadata.CorrelationID)
}

func TestDecodeEnvelope_Invalid(t *testing.T) {
	for _, data := range []string{"", "{", `{"id":"x"}`} {
		_, err := eventbus.DecodeEnvelope([]byte(data))
		require.Error(t, err, data)
	}
}

type fakeWriter struct {
	mu   sync.Mutex
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func TestKafkaPublisher_Publish(t *testing.T) {
	// Arrange
	writer := &fakeWriter{}
	pub := eventbus.NewKafkaPublisherWithWriter(writer)

	// Act
	err := pub.Publish(context.Background(), connectedEvent())

	// Assert
	require.NoError(t, err)
	require.Len(t, writer.msgs, 1)
	msg := writer.msgs[0]
	assert.Equal(t, "c-1", string(msg.Key))
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, eventbus.HeaderEventType, msg.Headers[0].Key)
	assert.Equal(t, "claim.relation.connected", string(msg.Headers[0].Value))

	env, err := eventbus.DecodeEnvelope(msg.Value)
	require.NoError(t, err)
	assert.Equal(t, "reviews", env.Relation)
	require.NoError(t, pub.Close())
}

func TestKafkaPublisher_Errors(t *testing.T) {
	pub := eventbus.NewKafkaPublisherWithWriter(&fakeWriter{err: errors.New("broker down")})

	require.ErrorContains(t, pub.Publish(context.Background(), connectedEvent()), "broker down")
	require.Error(t, pub.Publish(context.Background(), nil))

	_, err := eventbus.NewKafkaPublisher(eventbus.KafkaConfig{})
	require.Error(t, err)
	_, err = eventbus.NewKafkaSubscriber(eventbus.KafkaConfig{Brokers: []string{"localhost:9092"}, Topic: "t"})
	require.Error(t, err)
}

type fakeReader struct {
	msgs      []kafka.Message
	committed []int64
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	if len(r.msgs) == 0 {
		<-ctx.Done()
		return kafka.Message{}, ctx.Err()
	}
	msg := r.msgs[0]
	r.msgs = r.msgs[1:]
	return msg, nil
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error { return nil }

func TestKafkaSubscriber_Run(t *testing.T) {
	// Arrange
	good, err := eventbus.NewEnvelope(connectedEvent()).Marshal()
	require.NoError(t, err)
	reader := &fakeReader{msgs: []kafka.Message{
		{Offset: 1, Value: good},
		{Offset: 2, Value: []byte("garbage")},
		{Offset: 3, Value: good},
	}}
	sub := eventbus.NewKafkaSubscriberWithReader(reader, fastRetry())

	ctx, cancel := context.WithCancel(context.Background())
	var calls int
	handler := func(_ context.Context, env eventbus.Envelope) error {
		calls++
		if calls == 1 {
			return errors.New("transient")
		}
		if calls == 3 {
			cancel()
		}
		assert.Equal(t, "c-1", env.RecordID)
		return nil
	}

	// Act
	err = sub.Run(ctx, handler)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int64{1, 2}, reader.committed[:2])
}

func TestRedisPublisherSubscriber(t *testing.T) {
	// Arrange
	client := testutil.SetupTestRedis(t)
	prefix := "test:" + t.Name() + ":"
	pub := eventbus.NewRedisPublisher(client, eventbus.WithChannelPrefix(prefix))
	sub := eventbus.NewRedisSubscriber(client, eventbus.WithChannelPrefix(prefix), fastRetry())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	received := make(chan eventbus.Envelope, 1)
	done := make(chan error, 1)
	go func() {
		done <- sub.Run(ctx, func(_ context.Context, env eventbus.Envelope) error {
			received <- env
			return nil
		})
	}()

	// Act
	// Pub/Sub drops messages sent before the subscription is live.
	require.Eventually(t, func() bool {
		n, err := client.PubSubNumPat(ctx).Result()
		return err == nil && n > 0
	}, 5*time.Second, 20*time.Millisecond)
	require.NoError(t, pub.Publish(ctx, connectedEvent()))

	// Assert
	select {
	case env := <-received:
		assert.Equal(t, "claim.relation.connected", env.EventType)
		assert.Equal(t, []string{"r-1", "r-2"}, env.RelatedIDs)
	case <-ctx.Done():
		t.Fatal("event not received")
	}
	cancel()
	require.NoError(t, <-done)
}
