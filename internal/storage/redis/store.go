package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store implements storage.Store on top of Redis string keys.
type Store struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewStore creates a Redis-backed store. Keys are namespaced with prefix.
// A zero ttl keeps values until they are overwritten.
func NewStore(client redis.UniversalClient, prefix string, ttl time.Duration) *Store {
	return &Store{
		client: client,
		prefix: prefix,
		ttl:    ttl,
	}
}

// Get retrieves the value under key.
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.client.Get(ctx, s.prefix+key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return v, true, nil
}

// Set writes value under key and refreshes its TTL.
func (s *Store) Set(ctx context.Context, key, value string) error {
	if err := s.client.Set(ctx, s.prefix+key, value, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
