package cache

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/demoray/azure-identity-helpers/internal/config"
)

// NewFromConfig creates a cache implementation from configuration. The
// cache type must be "memory"; any other value returns an error. The
// returned cache is instrumented.
//
// A distributed backend would slot in here: the TokenCache interface is
// the persistence boundary, and nothing above it assumes in-process
// storage.
func NewFromConfig[T any](cacheConfig config.CacheConfig) (TokenCache[T], error) {
	switch cacheConfig.Type {
	case "memory":
		log.Info().
			Str("cache_type", "memory").
			Int("max_size", cacheConfig.MaxSize).
			Dur("ttl", time.Duration(cacheConfig.TTLSecs)*time.Second).
			Msg("initializing in-memory token cache")

		memory, err := NewMemory[T](time.Duration(cacheConfig.TTLSecs)*time.Second, cacheConfig.MaxSize)
		if err != nil {
			return nil, fmt.Errorf("failed to create memory cache: %w", err)
		}

		return NewInstrumented(memory, "memory"), nil

	default:
		return nil, fmt.Errorf("invalid cache type %q: must be \"memory\"", cacheConfig.Type)
	}
}
