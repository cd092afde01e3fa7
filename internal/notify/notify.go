// Package notify delivers user-facing error messages for failed cart
// operations.
package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/utafrali/cartstore/internal/domain"
	"github.com/utafrali/cartstore/pkg/logger"
)

// Message is a single user-facing error notification.
type Message struct {
	Kind      domain.Kind `json:"kind"`
	Text      string      `json:"message"`
	Timestamp time.Time   `json:"timestamp"`
}

// Notifier receives one message per failed cart operation.
type Notifier interface {
	Error(ctx context.Context, msg Message)
}

// LogNotifier writes notifications to a structured logger.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a notifier that logs at warn level.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Error logs msg with the request-scoped fields found in ctx.
func (n *LogNotifier) Error(ctx context.Context, msg Message) {
	logger.WithContext(ctx, n.logger).WarnContext(ctx, "cart notification",
		slog.String("kind", string(msg.Kind)),
		slog.String("message", msg.Text),
	)
}

// Multi fans a message out to several notifiers in order.
type Multi []Notifier

// Error forwards msg to every notifier.
func (m Multi) Error(ctx context.Context, msg Message) {
	for _, n := range m {
		n.Error(ctx, msg)
	}
}

// Hub broadcasts notifications to live listeners such as event streams.
// Slow listeners drop messages instead of blocking the cart.
type Hub struct {
	mu        sync.RWMutex
	nextID    int
	listeners map[int]chan Message
	buffer    int
}

// NewHub creates a hub whose listener channels hold up to buffer messages.
func NewHub(buffer int) *Hub {
	if buffer < 1 {
		buffer = 1
	}
	return &Hub{
		listeners: make(map[int]chan Message),
		buffer:    buffer,
	}
}

// Listen registers a listener. The returned cancel func unregisters it and
// closes the channel; it is safe to call more than once.
func (h *Hub) Listen() (<-chan Message, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextID
	h.nextID++
	ch := make(chan Message, h.buffer)
	h.listeners[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.listeners, id)
			close(ch)
		})
	}
}

// Error delivers msg to every listener without blocking.
func (h *Hub) Error(_ context.Context, msg Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.listeners {
		select {
		case ch <- msg:
		default:
		}
	}
}

// Recorder keeps every message it receives. Useful in tests and demos.
type Recorder struct {
	mu       sync.Mutex
	messages []Message
}

// Error records msg.
func (r *Recorder) Error(_ context.Context, msg Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, msg)
}

// Messages returns a copy of the recorded messages.
func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Message, len(r.messages))
	copy(out, r.messages)
	return out
}
