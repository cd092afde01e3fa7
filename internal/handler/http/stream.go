package http

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/utafrali/cartstore/internal/domain"
	"github.com/utafrali/cartstore/internal/notify"
)

// Listener hands out notification subscriptions; *notify.Hub implements it.
type Listener interface {
	Listen() (<-chan notify.Message, func())
}

// StreamHandler serves GET /api/v1/cart/stream as Server-Sent Events. Each
// client first receives the current cart, then a "cart" event per commit and
// an "error" event per failed operation.
type StreamHandler struct {
	service   CartService
	listener  Listener
	heartbeat time.Duration
	logger    *slog.Logger
}

// NewStreamHandler creates a stream handler sending a comment line every
// heartbeat to keep idle connections open.
func NewStreamHandler(svc CartService, listener Listener, heartbeat time.Duration, logger *slog.Logger) *StreamHandler {
	if heartbeat <= 0 {
		heartbeat = 15 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &StreamHandler{
		service:   svc,
		listener:  listener,
		heartbeat: heartbeat,
		logger:    logger,
	}
}

func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rc := http.NewResponseController(w)

	// Only the newest snapshot matters; a slow client skips intermediate ones.
	carts := make(chan domain.Cart, 1)
	unsubscribe := h.service.Subscribe(func(c domain.Cart) {
		for {
			select {
			case carts <- c:
				return
			default:
			}
			select {
			case <-carts:
			default:
			}
		}
	})
	defer unsubscribe()

	messages, stopListening := h.listener.Listen()
	defer stopListening()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	if err := h.send(w, rc, "cart", NewCartView(h.service.Cart())); err != nil {
		h.logger.WarnContext(r.Context(), "cart stream unavailable", slog.String("error", err.Error()))
		return
	}

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		var err error
		select {
		case <-r.Context().Done():
			return
		case cart := <-carts:
			err = h.send(w, rc, "cart", NewCartView(cart))
		case msg, ok := <-messages:
			if !ok {
				return
			}
			err = h.send(w, rc, "error", msg)
		case <-ticker.C:
			if _, err = fmt.Fprint(w, ": ping\n\n"); err == nil {
				err = rc.Flush()
			}
		}
		if err != nil {
			h.logger.DebugContext(r.Context(), "cart stream closed", slog.String("error", err.Error()))
			return
		}
	}
}

func (h *StreamHandler) send(w http.ResponseWriter, rc *http.ResponseController, event string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", event, err)
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	return rc.Flush()
}
