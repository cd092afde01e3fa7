package config

import (
	"fmt"
	"net/url"
	"time"

	pkgconfig "github.com/utafrali/cartstore/pkg/config"
)

// Storage drivers.
const (
	StorageRedis  = "redis"
	StorageMemory = "memory"
)

// Config holds all configuration for the cart store service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort         int    `env:"CART_HTTP_PORT" envDefault:"8003"`
	StreamHeartbeatS int    `env:"CART_STREAM_HEARTBEAT_SECONDS" envDefault:"15"`
	CORSOrigin       string `env:"CART_CORS_ORIGIN" envDefault:"*"`

	// Profiling endpoints; empty disables them.
	PprofCIDRs []string `env:"CART_PPROF_ALLOWED_CIDRS" envDefault:"" envSeparator:","`

	// Persistence
	StorageDriver string `env:"CART_STORAGE_DRIVER" envDefault:"redis"`
	StorageKey    string `env:"CART_STORAGE_KEY" envDefault:"@RocketShoes:cart"`

	// Redis
	RedisAddr      string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPass      string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB        int    `env:"REDIS_DB" envDefault:"0"`
	RedisKeyPrefix string `env:"REDIS_KEY_PREFIX" envDefault:""`

	// Cart TTL in hours; 0 keeps the cart until it is overwritten.
	CartTTL int `env:"CART_TTL_HOURS" envDefault:"168"`

	// Catalog
	CatalogURL        string `env:"CATALOG_SERVICE_URL" envDefault:"http://localhost:3333"`
	CatalogTimeoutS   int    `env:"CATALOG_TIMEOUT_SECONDS" envDefault:"10"`
	CatalogMaxRetries int    `env:"CATALOG_MAX_RETRIES" envDefault:"2"`

	// Circuit breaker around the catalog
	CBTimeoutS     int     `env:"CB_TIMEOUT_SECONDS" envDefault:"30"`
	CBFailureRatio float64 `env:"CB_FAILURE_RATIO" envDefault:"0.5"`
	CBMinRequests  uint32  `env:"CB_MIN_REQUESTS" envDefault:"5"`

	// Kafka
	KafkaBrokers  []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`
	EventsEnabled bool     `env:"CART_EVENTS_ENABLED" envDefault:"false"`

	// OpenTelemetry
	OTELEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTELEndpoint   string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	OTELSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load cart config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// CartTTLDuration returns the Redis expiry for the persisted cart.
func (c *Config) CartTTLDuration() time.Duration {
	return time.Duration(c.CartTTL) * time.Hour
}

// CatalogTimeout returns the per-request timeout of the catalog client.
func (c *Config) CatalogTimeout() time.Duration {
	return time.Duration(c.CatalogTimeoutS) * time.Second
}

// StreamHeartbeat returns the keep-alive interval of the event stream.
func (c *Config) StreamHeartbeat() time.Duration {
	return time.Duration(c.StreamHeartbeatS) * time.Second
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if c.StorageDriver != StorageRedis && c.StorageDriver != StorageMemory {
		return fmt.Errorf("CART_STORAGE_DRIVER must be %q or %q, got %q", StorageRedis, StorageMemory, c.StorageDriver)
	}
	if c.StorageKey == "" {
		return fmt.Errorf("CART_STORAGE_KEY must not be empty")
	}
	if c.CartTTL < 0 {
		return fmt.Errorf("CART_TTL_HOURS must not be negative")
	}
	u, err := url.Parse(c.CatalogURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("CATALOG_SERVICE_URL must be an absolute URL, got %q", c.CatalogURL)
	}
	if c.CatalogTimeoutS < 1 {
		return fmt.Errorf("CATALOG_TIMEOUT_SECONDS must be positive")
	}
	if c.CatalogMaxRetries < 0 {
		return fmt.Errorf("CATALOG_MAX_RETRIES must not be negative")
	}
	if c.CBFailureRatio <= 0 || c.CBFailureRatio > 1 {
		return fmt.Errorf("CB_FAILURE_RATIO must be in (0.0, 1.0]")
	}
	if c.EventsEnabled && len(c.KafkaBrokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS is required when CART_EVENTS_ENABLED is set")
	}
	if c.OTELSampleRate < 0 || c.OTELSampleRate > 1 {
		return fmt.Errorf("OTEL_SAMPLE_RATE must be between 0.0 and 1.0")
	}
	return nil
}
