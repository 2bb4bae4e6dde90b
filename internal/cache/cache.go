// Package cache provides the storage backends for cached access tokens.
package cache

import (
	"context"
)

// TokenCache is the storage contract for cached tokens. The type parameter
// is the cached value; implementations are agnostic to its shape.
type TokenCache[T any] interface {
	// Get retrieves a value from the cache, reporting whether it was
	// found.
	Get(ctx context.Context, key string) (T, bool, error)

	// Set stores a value in the cache.
	Set(ctx context.Context, key string, value T) error

	// Invalidate removes a value from the cache.
	Invalidate(ctx context.Context, key string) error

	// Close releases any resources held by the cache.
	Close() error
}
