package event

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/cartstore/internal/domain"
	pkgkafka "github.com/utafrali/cartstore/pkg/kafka"
	"github.com/utafrali/cartstore/pkg/logger"
)

type recordingPublisher struct {
	mu     sync.Mutex
	topics []string
	events []*pkgkafka.Event
	err    error
}

func (r *recordingPublisher) Publish(_ context.Context, topic string, event *pkgkafka.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.topics = append(r.topics, topic)
	r.events = append(r.events, event)
	return nil
}

func (r *recordingPublisher) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func shoeCart() domain.Cart {
	return domain.Cart{
		{ID: 1, Title: "Shoe", Price: 100, Amount: 2},
		{ID: 2, Title: "Sock", Price: 9.99, Amount: 1},
	}
}

func TestPublishCartUpdated_Payload(t *testing.T) {
	pub := &recordingPublisher{}
	p := NewProducer(pub, "@RocketShoes:cart", 4, logger.Discard())

	require.NoError(t, p.PublishCartUpdated(context.Background(), shoeCart()))

	require.Len(t, pub.events, 1)
	assert.Equal(t, "ecommerce.cart.updated", pub.topics[0])

	event := pub.events[0]
	assert.Equal(t, EventCartUpdated, event.EventType)
	assert.Equal(t, "@RocketShoes:cart", event.AggregateID)
	assert.Equal(t, AggregateTypeCart, event.AggregateType)
	assert.Equal(t, "2", event.Metadata[MetadataEntries])

	var data CartUpdatedData
	require.NoError(t, event.UnmarshalData(&data))
	assert.Equal(t, 3, data.ItemCount)
	assert.Equal(t, "209.99", data.Subtotal)
	require.Len(t, data.Items, 2)
	assert.Equal(t, CartItemData{ProductID: 1, Title: "Shoe", Price: 100, Amount: 2}, data.Items[0])
}

func TestPublishCartUpdated_EmptyCart(t *testing.T) {
	pub := &recordingPublisher{}
	p := NewProducer(pub, "cart", 1, logger.Discard())

	require.NoError(t, p.PublishCartUpdated(context.Background(), domain.Cart{}))

	var data CartUpdatedData
	require.NoError(t, pub.events[0].UnmarshalData(&data))
	assert.Empty(t, data.Items)
	assert.NotNil(t, data.Items)
	assert.Equal(t, "0.00", data.Subtotal)
}

func TestPublishCartUpdated_PublisherError(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("broker down")}
	p := NewProducer(pub, "cart", 1, logger.Discard())

	err := p.PublishCartUpdated(context.Background(), shoeCart())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker down")
}

func TestRun_DrainsQueueOnShutdown(t *testing.T) {
	pub := &recordingPublisher{}
	p := NewProducer(pub, "cart", 8, logger.Discard())

	p.Notify(shoeCart())
	p.Notify(domain.Cart{})

	ctx, cancel := context.WithCancel(context.Background())
	go p.Run(ctx)

	assert.Eventually(t, func() bool { return pub.count() == 2 }, time.Second, 10*time.Millisecond)

	p.Notify(shoeCart())
	cancel()
	p.Wait()
	assert.Equal(t, 3, pub.count())
}

func TestNotify_DropsWhenFull(t *testing.T) {
	pub := &recordingPublisher{}
	p := NewProducer(pub, "cart", 1, logger.Discard())

	p.Notify(shoeCart())
	p.Notify(shoeCart())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p.Run(ctx)

	assert.Equal(t, 1, pub.count())
}
