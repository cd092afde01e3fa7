package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/cartstore/pkg/logger"
)

// fakeWriter records messages instead of talking to a broker.
type fakeWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	err    error
	closed bool
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

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func header(msg kafka.Message, key string) string {
	for _, h := range msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

// --- Event tests ---

func TestNewEvent_Fields(t *testing.T) {
	type payload struct {
		ItemCount int `json:"item_count"`
	}

	ctx := logger.WithCorrelationID(context.Background(), "corr-1")
	event, err := NewEvent(ctx, "cart.updated", "@RocketShoes:cart", "cart", "cart-store", payload{ItemCount: 3})
	require.NoError(t, err)

	assert.NotEmpty(t, event.EventID)
	assert.Equal(t, "cart.updated", event.EventType)
	assert.Equal(t, "@RocketShoes:cart", event.AggregateID)
	assert.Equal(t, "cart", event.AggregateType)
	assert.Equal(t, "cart-store", event.Source)
	assert.Equal(t, "corr-1", event.CorrelationID)
	assert.Equal(t, 1, event.Version)
	assert.WithinDuration(t, time.Now().UTC(), event.Timestamp, 2*time.Second)

	var got payload
	require.NoError(t, event.UnmarshalData(&got))
	assert.Equal(t, 3, got.ItemCount)
}

func TestNewEvent_InvalidData(t *testing.T) {
	_, err := NewEvent(context.Background(), "test.event", "agg-1", "test", "svc", make(chan int))
	require.Error(t, err)
}

func TestEvent_MarshalRoundTrip(t *testing.T) {
	original, err := NewEvent(context.Background(), "cart.updated", "cart-1", "cart", "svc", map[string]int{"entries": 2})
	require.NoError(t, err)
	original.WithMetadata("key", "cart-1")

	raw, err := original.Marshal()
	require.NoError(t, err)

	var restored Event
	require.NoError(t, json.Unmarshal(raw, &restored))
	assert.Equal(t, original.EventID, restored.EventID)
	assert.Equal(t, original.Metadata, restored.Metadata)
	assert.JSONEq(t, string(original.Data), string(restored.Data))
}

func TestTopic(t *testing.T) {
	assert.Equal(t, "ecommerce.cart.updated", Topic("cart", "updated"))
}

// --- Producer tests ---

func TestDefaultProducerConfig(t *testing.T) {
	brokers := []string{"broker1:9092", "broker2:9092"}
	cfg := DefaultProducerConfig(brokers)

	assert.Equal(t, brokers, cfg.Brokers)
	assert.Equal(t, 100, cfg.BatchSize)
	assert.Equal(t, 10*time.Millisecond, cfg.BatchTimeout)
	assert.False(t, cfg.Async)
}

func TestProducer_Publish(t *testing.T) {
	w := &fakeWriter{}
	p := NewProducerWithWriter(w, nil, logger.Discard())

	ctx := logger.WithCorrelationID(context.Background(), "corr-9")
	event, err := NewEvent(ctx, "cart.updated", "cart-1", "cart", "cart-store", map[string]int{"n": 1})
	require.NoError(t, err)

	require.NoError(t, p.Publish(ctx, "ecommerce.cart.updated", event))

	require.Len(t, w.msgs, 1)
	msg := w.msgs[0]
	assert.Equal(t, "ecommerce.cart.updated", msg.Topic)
	assert.Equal(t, "cart-1", string(msg.Key))
	assert.Equal(t, "cart.updated", header(msg, "event_type"))
	assert.Equal(t, "cart-store", header(msg, "source"))
	assert.Equal(t, "corr-9", header(msg, "correlation_id"))

	var decoded Event
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, event.EventID, decoded.EventID)
}

func TestProducer_PublishError(t *testing.T) {
	w := &fakeWriter{err: errors.New("leader not available")}
	p := NewProducerWithWriter(w, nil, logger.Discard())

	event, err := NewEvent(context.Background(), "cart.updated", "cart-1", "cart", "svc", nil)
	require.NoError(t, err)

	err = p.Publish(context.Background(), "ecommerce.cart.updated", event)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ecommerce.cart.updated")
	assert.Contains(t, err.Error(), "leader not available")
}

func TestProducer_Close(t *testing.T) {
	w := &fakeWriter{}
	p := NewProducerWithWriter(w, nil, nil)

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestNewProducer_NoConnectionUntilPublish(t *testing.T) {
	p := NewProducer(DefaultProducerConfig([]string{"localhost:19092"}), logger.Discard())
	require.NotNil(t, p)
	assert.Equal(t, []string{"localhost:19092"}, p.brokers)
	assert.NoError(t, p.Close())
}

func TestPingBrokers_NoBrokers(t *testing.T) {
	err := PingBrokers(t.Context(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no brokers configured")
}
