package storage

import "context"

// DefaultCartKey is the key the cart has always been stored under. Keeping it
// lets existing persisted carts load unchanged.
const DefaultCartKey = "@RocketShoes:cart"

// Store is a key-value string store used to persist the serialized cart.
type Store interface {
	// Get returns the value stored under key. ok is false when the key is absent.
	Get(ctx context.Context, key string) (value string, ok bool, err error)

	// Set stores value under key, overwriting any previous value.
	Set(ctx context.Context, key, value string) error

	// Ping reports whether the underlying medium is reachable.
	Ping(ctx context.Context) error
}
