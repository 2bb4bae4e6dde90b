package cache

import (
	"context"
	"time"

	"github.com/maypok86/otter/v2"
	"github.com/maypok86/otter/v2/stats"
)

// Memory is a size-bounded in-memory cache built on otter. The TTL is a
// backstop eviction horizon: entries are dropped a fixed interval after
// creation regardless of the token lifetime they carry, so a stale entry
// can never outlive the cache.
type Memory[T any] struct {
	cache   *otter.Cache[string, T]
	counter *stats.Counter
}

// NewMemory creates an in-memory cache holding at most maxSize entries,
// each evicted ttl after creation.
func NewMemory[T any](ttl time.Duration, maxSize int) (*Memory[T], error) {
	counter := stats.NewCounter()
	cache := otter.Must(&otter.Options[string, T]{
		MaximumSize:      maxSize,
		StatsRecorder:    counter,
		ExpiryCalculator: otter.ExpiryCreating[string, T](ttl),
	})

	return &Memory[T]{
		cache:   cache,
		counter: counter,
	}, nil
}

func (m *Memory[T]) Get(ctx context.Context, key string) (T, bool, error) {
	entry, ok := m.cache.GetEntry(key)
	if !ok {
		var zero T
		return zero, false, nil
	}

	return entry.Value, true, nil
}

func (m *Memory[T]) Set(ctx context.Context, key string, value T) error {
	m.cache.Set(key, value)
	return nil
}

func (m *Memory[T]) Invalidate(ctx context.Context, key string) error {
	m.cache.Invalidate(key)
	return nil
}

// Close is a no-op: otter requires no teardown.
func (m *Memory[T]) Close() error {
	return nil
}
