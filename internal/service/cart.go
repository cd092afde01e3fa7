// Package service holds the cart store: the single in-memory cart, its
// stock-checked mutations, persistence and change subscriptions.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/utafrali/cartstore/internal/domain"
	"github.com/utafrali/cartstore/internal/notify"
	"github.com/utafrali/cartstore/internal/storage"
	apperrors "github.com/utafrali/cartstore/pkg/errors"
	"github.com/utafrali/cartstore/pkg/logger"
	"github.com/utafrali/cartstore/pkg/tracing"
)

var tracer = tracing.Tracer("github.com/utafrali/cartstore/internal/service")

// Operation names used in logs and metrics.
const (
	opAdd    = "add_product"
	opRemove = "remove_product"
	opUpdate = "update_product_amount"
	opClear  = "clear_cart"
)

// Catalog looks up stock and product details. A product the catalog does not
// know must yield an error matching apperrors.ErrNotFound.
type Catalog interface {
	Stock(ctx context.Context, productID int) (domain.Stock, error)
	Product(ctx context.Context, productID int) (domain.Product, error)
}

// UpdateProductAmount is the input of CartStore.UpdateProductAmount.
type UpdateProductAmount struct {
	ProductID int `json:"product_id"`
	Amount    int `json:"amount"`
}

type subscriber struct {
	id int
	fn func(domain.Cart)
}

// CartStore owns the current cart. Every mutation is checked against the
// catalog, applied as a whole-list replacement, persisted and then pushed to
// subscribers. Failed operations are reported once to the notifier; the
// returned error is informational and callers may drop it.
type CartStore struct {
	catalog  Catalog
	store    storage.Store
	notifier notify.Notifier
	logger   *slog.Logger
	key      string

	mu   sync.Mutex
	cart domain.Cart

	// notifyMu keeps subscriber deliveries in commit order.
	notifyMu sync.Mutex

	subMu   sync.Mutex
	subs    []subscriber
	nextSub int
}

// NewCartStore creates a store and loads the cart persisted under key. An
// empty key means storage.DefaultCartKey. Missing, unreadable or corrupt
// persisted data starts an empty cart.
func NewCartStore(ctx context.Context, catalog Catalog, store storage.Store, notifier notify.Notifier, logger *slog.Logger, key string) *CartStore {
	if key == "" {
		key = storage.DefaultCartKey
	}
	s := &CartStore{
		catalog:  catalog,
		store:    store,
		notifier: notifier,
		logger:   logger,
		key:      key,
	}
	s.cart = s.load(ctx)
	return s
}

func (s *CartStore) load(ctx context.Context) domain.Cart {
	log := logger.WithContext(ctx, s.logger)

	raw, ok, err := s.store.Get(ctx, s.key)
	if err != nil {
		log.WarnContext(ctx, "failed to read persisted cart, starting empty",
			slog.String("key", s.key),
			slog.String("error", err.Error()),
		)
		return domain.Cart{}
	}
	if !ok {
		return domain.Cart{}
	}

	var cart domain.Cart
	if err := json.Unmarshal([]byte(raw), &cart); err != nil {
		log.WarnContext(ctx, "persisted cart is corrupt, starting empty",
			slog.String("key", s.key),
			slog.String("error", err.Error()),
		)
		return domain.Cart{}
	}
	if err := cart.Validate(); err != nil {
		log.WarnContext(ctx, "persisted cart is invalid, starting empty",
			slog.String("key", s.key),
			slog.String("error", err.Error()),
		)
		return domain.Cart{}
	}

	log.InfoContext(ctx, "cart loaded",
		slog.String("key", s.key),
		slog.Int("entries", len(cart)),
	)
	return cart.Clone()
}

// Cart returns a copy of the current cart.
func (s *CartStore) Cart() domain.Cart {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cart.Clone()
}

// Subscribe registers fn to receive the new cart after every commit, in
// registration order. fn runs on the committing goroutine and must not call
// the mutating operations of the store. The returned func unsubscribes.
func (s *CartStore) Subscribe(fn func(domain.Cart)) func() {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs = append(s.subs, subscriber{id: id, fn: fn})
	s.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.subMu.Lock()
			defer s.subMu.Unlock()
			for i, sub := range s.subs {
				if sub.id == id {
					s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// AddProduct adds one unit of productID, appending the product on first add.
func (s *CartStore) AddProduct(ctx context.Context, productID int) error {
	ctx, span := startSpan(ctx, opAdd, productID)
	defer span.End()

	var (
		g          errgroup.Group
		stock      domain.Stock
		product    domain.Product
		productErr error
	)
	g.Go(func() error {
		var err error
		stock, err = s.catalog.Stock(ctx, productID)
		return err
	})
	g.Go(func() error {
		product, productErr = s.catalog.Product(ctx, productID)
		return productErr
	})
	err := g.Wait()

	switch {
	case errors.Is(productErr, apperrors.ErrNotFound):
		return s.fail(ctx, opAdd, productID, domain.ProductNotFound(productErr))
	case err != nil:
		return s.fail(ctx, opAdd, productID, domain.AddFailed(err))
	case product.ID != productID:
		return s.fail(ctx, opAdd, productID, domain.ProductNotFound(
			fmt.Errorf("catalog returned product %d for %d", product.ID, productID)))
	}

	return s.mutate(ctx, opAdd, productID, func(cur domain.Cart) (domain.Cart, *apperrors.AppError) {
		requested := 1
		i := cur.Find(productID)
		if i >= 0 {
			requested = cur[i].Amount + 1
		}
		if requested > stock.Amount {
			return nil, domain.InsufficientStock()
		}
		if i >= 0 {
			return cur.WithAmount(productID, requested), nil
		}
		product.Amount = 1
		return append(cur.Clone(), product), nil
	})
}

// RemoveProduct drops the entry for productID.
func (s *CartStore) RemoveProduct(ctx context.Context, productID int) error {
	ctx, span := startSpan(ctx, opRemove, productID)
	defer span.End()

	return s.mutate(ctx, opRemove, productID, func(cur domain.Cart) (domain.Cart, *apperrors.AppError) {
		if !cur.Contains(productID) {
			return nil, domain.ProductNotInCart(domain.MsgRemoveFailed)
		}
		return cur.Without(productID), nil
	})
}

// UpdateProductAmount sets the amount of an entry already in the cart.
// Amounts below 1 are ignored without any report.
func (s *CartStore) UpdateProductAmount(ctx context.Context, in UpdateProductAmount) error {
	if in.Amount <= 0 {
		return nil
	}

	ctx, span := startSpan(ctx, opUpdate, in.ProductID)
	defer span.End()
	span.SetAttributes(attribute.Int("cart.amount", in.Amount))

	stock, err := s.catalog.Stock(ctx, in.ProductID)
	if err != nil {
		return s.fail(ctx, opUpdate, in.ProductID, domain.UpdateFailed(err))
	}

	return s.mutate(ctx, opUpdate, in.ProductID, func(cur domain.Cart) (domain.Cart, *apperrors.AppError) {
		if in.Amount > stock.Amount {
			return nil, domain.InsufficientStock()
		}
		if !cur.Contains(in.ProductID) {
			return nil, domain.ProductNotInCart(domain.MsgUpdateFailed)
		}
		return cur.WithAmount(in.ProductID, in.Amount), nil
	})
}

// ClearCart empties the cart.
func (s *CartStore) ClearCart(ctx context.Context) error {
	ctx, span := startSpan(ctx, opClear, 0)
	defer span.End()

	return s.mutate(ctx, opClear, 0, func(domain.Cart) (domain.Cart, *apperrors.AppError) {
		return domain.Cart{}, nil
	})
}

// mutate runs fn against the current cart and commits its result: swap,
// persist, notify subscribers. A rejection from fn leaves everything as is.
// Once swapped, the write is not aborted by the caller going away.
func (s *CartStore) mutate(ctx context.Context, op string, productID int, fn func(domain.Cart) (domain.Cart, *apperrors.AppError)) error {
	s.mu.Lock()
	next, rejected := fn(s.cart)
	if rejected != nil {
		s.mu.Unlock()
		return s.fail(ctx, op, productID, rejected)
	}

	s.cart = next
	snapshot := next.Clone()

	// notifyMu is taken before mu is released so writes and deliveries
	// follow commit order while readers of Cart are not held up.
	s.notifyMu.Lock()
	s.mu.Unlock()
	persistErr := s.persist(context.WithoutCancel(ctx), snapshot)
	s.publish(snapshot)
	s.notifyMu.Unlock()

	if persistErr != nil {
		return s.fail(ctx, op, productID, domain.PersistenceFailed(persistErr))
	}

	operationsTotal.WithLabelValues(op, resultSuccess).Inc()
	logger.WithContext(ctx, s.logger).InfoContext(ctx, "cart updated",
		slog.String("operation", op),
		slog.Int("product_id", productID),
		slog.Int("entries", len(snapshot)),
		slog.Int("item_count", snapshot.ItemCount()),
	)
	return nil
}

func (s *CartStore) persist(ctx context.Context, cart domain.Cart) error {
	raw, err := json.Marshal(cart)
	if err != nil {
		return fmt.Errorf("marshal cart: %w", err)
	}
	if err := s.store.Set(ctx, s.key, string(raw)); err != nil {
		return fmt.Errorf("save cart: %w", err)
	}
	return nil
}

func (s *CartStore) publish(cart domain.Cart) {
	s.subMu.Lock()
	subs := make([]subscriber, len(s.subs))
	copy(subs, s.subs)
	s.subMu.Unlock()

	for _, sub := range subs {
		sub.fn(cart.Clone())
	}
}

func startSpan(ctx context.Context, op string, productID int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "CartStore."+op, trace.WithAttributes(
		attribute.Int("cart.product_id", productID),
	))
}

// fail reports appErr to the notifier and returns it.
func (s *CartStore) fail(ctx context.Context, op string, productID int, appErr *apperrors.AppError) error {
	operationsTotal.WithLabelValues(op, strings.ToLower(appErr.Code)).Inc()

	span := trace.SpanFromContext(ctx)
	span.SetAttributes(attribute.String("cart.error_kind", appErr.Code))
	span.SetStatus(codes.Error, appErr.Message)

	log := logger.WithContext(ctx, s.logger)
	attrs := []any{
		slog.String("operation", op),
		slog.Int("product_id", productID),
		slog.String("kind", appErr.Code),
	}
	if appErr.Err != nil {
		attrs = append(attrs, slog.String("error", appErr.Err.Error()))
	}
	if domain.KindOf(appErr) == domain.KindPersistenceFailed {
		log.ErrorContext(ctx, "cart operation failed", attrs...)
	} else {
		log.WarnContext(ctx, "cart operation rejected", attrs...)
	}

	s.notifier.Error(ctx, notify.Message{
		Kind:      domain.KindOf(appErr),
		Text:      appErr.Message,
		Timestamp: time.Now().UTC(),
	})
	return appErr
}
