// Package event publishes committed cart snapshots to Kafka.
package event

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/utafrali/cartstore/internal/domain"
	pkgkafka "github.com/utafrali/cartstore/pkg/kafka"
)

// TopicCartUpdated receives one event per committed cart.
var TopicCartUpdated = pkgkafka.Topic("cart", "updated")

const (
	EventCartUpdated  = "cart.updated"
	AggregateTypeCart = "cart"
	SourceCartStore   = "cart-store"

	// MetadataEntries holds the number of distinct products in the cart.
	MetadataEntries = "entries"
)

// CartUpdatedData is the payload for a cart.updated event.
type CartUpdatedData struct {
	Items     []CartItemData `json:"items"`
	ItemCount int            `json:"item_count"`
	Subtotal  string         `json:"subtotal"`
}

// CartItemData is one cart entry within a cart event.
type CartItemData struct {
	ProductID int     `json:"product_id"`
	Title     string  `json:"title"`
	Price     float64 `json:"price"`
	Amount    int     `json:"amount"`
}

// Publisher is implemented by *pkgkafka.Producer.
type Publisher interface {
	Publish(ctx context.Context, topic string, event *pkgkafka.Event) error
}

// Producer publishes cart.updated events. Commits enqueue snapshots through
// Notify; Run drains the queue so a slow broker never blocks the cart.
type Producer struct {
	publisher   Publisher
	aggregateID string
	timeout     time.Duration
	logger      *slog.Logger

	queue chan domain.Cart
	done  chan struct{}
	once  sync.Once
}

// NewProducer creates a producer whose events are keyed by aggregateID and
// which buffers up to buffer pending snapshots.
func NewProducer(publisher Publisher, aggregateID string, buffer int, logger *slog.Logger) *Producer {
	if buffer < 1 {
		buffer = 1
	}
	return &Producer{
		publisher:   publisher,
		aggregateID: aggregateID,
		timeout:     5 * time.Second,
		logger:      logger,
		queue:       make(chan domain.Cart, buffer),
		done:        make(chan struct{}),
	}
}

// Notify queues cart for publishing. It matches the CartStore subscriber
// signature. When the queue is full the snapshot is dropped.
func (p *Producer) Notify(cart domain.Cart) {
	select {
	case p.queue <- cart:
	default:
		p.logger.Warn("cart event queue full, dropping snapshot",
			slog.Int("entries", len(cart)),
		)
	}
}

// Run publishes queued snapshots until ctx is done, then flushes what is left.
func (p *Producer) Run(ctx context.Context) {
	defer close(p.done)
	for {
		select {
		case cart := <-p.queue:
			p.publishLogged(cart)
		case <-ctx.Done():
			for {
				select {
				case cart := <-p.queue:
					p.publishLogged(cart)
				default:
					return
				}
			}
		}
	}
}

// Wait blocks until Run has returned.
func (p *Producer) Wait() {
	<-p.done
}

func (p *Producer) publishLogged(cart domain.Cart) {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	if err := p.PublishCartUpdated(ctx, cart); err != nil {
		p.logger.ErrorContext(ctx, "failed to publish cart.updated event",
			slog.String("error", err.Error()),
		)
	}
}

// PublishCartUpdated publishes a cart.updated event for cart.
func (p *Producer) PublishCartUpdated(ctx context.Context, cart domain.Cart) error {
	items := make([]CartItemData, len(cart))
	for i, item := range cart {
		items[i] = CartItemData{
			ProductID: item.ID,
			Title:     item.Title,
			Price:     item.Price,
			Amount:    item.Amount,
		}
	}

	data := CartUpdatedData{
		Items:     items,
		ItemCount: cart.ItemCount(),
		Subtotal:  cart.Subtotal().StringFixed(2),
	}

	event, err := pkgkafka.NewEvent(ctx, EventCartUpdated, p.aggregateID, AggregateTypeCart, SourceCartStore, data)
	if err != nil {
		return fmt.Errorf("create cart.updated event: %w", err)
	}
	event.WithMetadata(MetadataEntries, strconv.Itoa(len(cart)))

	if err := p.publisher.Publish(ctx, TopicCartUpdated, event); err != nil {
		return fmt.Errorf("publish cart.updated event: %w", err)
	}

	p.logger.DebugContext(ctx, "published cart.updated event",
		slog.Int("item_count", data.ItemCount),
	)
	return nil
}
