package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/utafrali/cartstore/internal/catalog"
	"github.com/utafrali/cartstore/internal/config"
	"github.com/utafrali/cartstore/internal/event"
	handler "github.com/utafrali/cartstore/internal/handler/http"
	"github.com/utafrali/cartstore/internal/notify"
	"github.com/utafrali/cartstore/internal/service"
	"github.com/utafrali/cartstore/internal/storage"
	"github.com/utafrali/cartstore/internal/storage/memory"
	redisstore "github.com/utafrali/cartstore/internal/storage/redis"
	"github.com/utafrali/cartstore/pkg/database"
	"github.com/utafrali/cartstore/pkg/health"
	"github.com/utafrali/cartstore/pkg/httpclient"
	pkgkafka "github.com/utafrali/cartstore/pkg/kafka"
	"github.com/utafrali/cartstore/pkg/tracing"
)

const serviceName = "cart-store"

// App wires together all dependencies and runs the cart store service.
type App struct {
	cfg    *config.Config
	logger *slog.Logger

	rdb            *redis.Client
	producer       *pkgkafka.Producer
	events         *event.Producer
	stopEvents     context.CancelFunc
	tracerShutdown func(context.Context) error

	cart       *service.CartStore
	httpServer *http.Server
	shutdown   sync.Once
}

// NewApp creates a new application instance, initializing all dependencies.
// The persisted cart is loaded before NewApp returns.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	a := &App{cfg: cfg, logger: logger}

	// Tracing.
	tcfg := tracing.DefaultConfig(serviceName)
	tcfg.Environment = cfg.Environment
	tcfg.Enabled = cfg.OTELEnabled
	tcfg.OTLPEndpoint = cfg.OTELEndpoint
	tcfg.SampleRate = cfg.OTELSampleRate
	shutdown, err := tracing.InitTracer(ctx, tcfg)
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}
	a.tracerShutdown = shutdown

	// Persistence.
	store, err := a.newStore(ctx)
	if err != nil {
		_ = shutdown(ctx)
		return nil, err
	}

	// Catalog client: retries inside, breaker outside.
	hcfg := httpclient.DefaultConfig()
	hcfg.Timeout = cfg.CatalogTimeout()
	hcfg.MaxRetries = cfg.CatalogMaxRetries
	hcfg.UserAgent = serviceName

	cbcfg := httpclient.DefaultCircuitBreakerConfig("catalog")
	cbcfg.Timeout = time.Duration(cfg.CBTimeoutS) * time.Second
	cbcfg.FailureRatio = cfg.CBFailureRatio
	cbcfg.MinRequests = cfg.CBMinRequests

	breaker := httpclient.NewCircuitBreakerClient(httpclient.New(hcfg), cbcfg, logger)
	catalogClient := catalog.NewClient(breaker, cfg.CatalogURL)

	// Notifications go to the log and to every open event stream.
	hub := notify.NewHub(16)
	notifier := notify.Multi{notify.NewLogNotifier(logger), hub}

	a.cart = service.NewCartStore(ctx, catalogClient, store, notifier, logger, cfg.StorageKey)

	// Health checks.
	healthHandler := health.NewHandler()
	healthHandler.Register("storage", store.Ping)

	if cfg.EventsEnabled {
		a.producer = pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
		a.events = event.NewProducer(a.producer, cfg.StorageKey, 64, logger)
		a.cart.Subscribe(a.events.Notify)
		healthHandler.Register("kafka", a.producer.Ping)
		logger.Info("cart events enabled",
			slog.Any("brokers", cfg.KafkaBrokers),
			slog.String("topic", event.TopicCartUpdated),
		)
	}

	// HTTP router.
	router := handler.NewRouter(
		handler.NewCartHandler(a.cart, logger),
		handler.NewStreamHandler(a.cart, hub, cfg.StreamHeartbeat(), logger),
		healthHandler,
		handler.Options{AllowedOrigin: cfg.CORSOrigin, PprofCIDRs: cfg.PprofCIDRs},
		logger,
	)

	// No WriteTimeout: event streams stay open. API routes carry their own
	// timeout middleware.
	a.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return a, nil
}

func (a *App) newStore(ctx context.Context) (storage.Store, error) {
	if a.cfg.StorageDriver == config.StorageMemory {
		a.logger.Warn("using in-memory cart storage; the cart is lost on restart")
		return memory.New(), nil
	}

	rcfg := database.DefaultRedisConfig()
	rcfg.Addr = a.cfg.RedisAddr
	rcfg.Password = a.cfg.RedisPass
	rcfg.DB = a.cfg.RedisDB

	rdb, err := database.NewRedisClient(ctx, rcfg)
	if err != nil {
		return nil, err
	}
	a.rdb = rdb
	a.logger.Info("connected to Redis",
		slog.String("addr", a.cfg.RedisAddr),
		slog.Int("db", a.cfg.RedisDB),
	)
	return redisstore.NewStore(rdb, a.cfg.RedisKeyPrefix, a.cfg.CartTTLDuration()), nil
}

// Handler returns the HTTP handler serving the cart API.
func (a *App) Handler() http.Handler {
	return a.httpServer.Handler
}

// Cart returns the cart store.
func (a *App) Cart() *service.CartStore {
	return a.cart
}

// Run starts the HTTP server and blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	if a.events != nil {
		eventsCtx, cancel := context.WithCancel(context.Background())
		a.stopEvents = cancel
		go a.events.Run(eventsCtx)
	}

	errCh := make(chan error, 1)

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		_ = a.Shutdown()
		return err
	}

	return a.Shutdown()
}

// Shutdown gracefully stops all components. Calls after the first are no-ops.
func (a *App) Shutdown() error {
	a.shutdown.Do(func() {
		a.logger.Info("shutting down application...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		}

		// Flush queued cart events before the writer goes away.
		if a.stopEvents != nil {
			a.stopEvents()
			a.events.Wait()
		}
		if a.producer != nil {
			if err := a.producer.Close(); err != nil {
				a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
			}
		}

		if a.rdb != nil {
			if err := a.rdb.Close(); err != nil {
				a.logger.Error("redis close error", slog.String("error", err.Error()))
			}
		}

		if err := a.tracerShutdown(shutdownCtx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
		}

		a.logger.Info("application shutdown complete")
	})
	return nil
}
