package credential

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/demoray/azure-identity-helpers/internal/cache"
)

// DefaultExpiryMargin is the safety offset applied to token expiry checks.
// A token within this margin of expiring is treated as already expired, so
// a caller is never handed a token that lapses mid-flight.
const DefaultExpiryMargin = 10 * time.Second

// Store is the storage backend for a TokenCache. The in-memory
// implementation is returned by NewMemoryStore; a distributed or disk-backed
// implementation can be substituted at this seam without the cache's
// population semantics changing.
type Store interface {
	Get(ctx context.Context, key string) (AccessToken, bool, error)
	Set(ctx context.Context, key string, token AccessToken) error
	Invalidate(ctx context.Context, key string) error
}

// NewMemoryStore returns the default in-memory, size-bounded Store. The ttl
// is a backstop eviction horizon: per-token expiry is still enforced by the
// TokenCache on every lookup.
func NewMemoryStore(ttl time.Duration, maxSize int) (Store, error) {
	return cache.NewMemory[AccessToken](ttl, maxSize)
}

// TokenCache maps cache keys to the most recently acquired token, with
// get-or-populate semantics. Concurrent callers missing on the same key
// share a single population: the first caller becomes the leader and runs
// the populate function, and the rest wait for its result. Failures
// propagate to every waiter verbatim and are never stored, so a later call
// may retry.
type TokenCache struct {
	store  Store
	group  singleflight.Group
	margin time.Duration
	now    func() time.Time
}

// TokenCacheOption configures a TokenCache.
type TokenCacheOption func(*TokenCache)

// WithExpiryMargin overrides the clock-skew safety margin applied when
// deciding whether a cached token is still live.
func WithExpiryMargin(margin time.Duration) TokenCacheOption {
	return func(c *TokenCache) {
		c.margin = margin
	}
}

// WithClock overrides the cache's time source. Test use only.
func WithClock(now func() time.Time) TokenCacheOption {
	return func(c *TokenCache) {
		c.now = now
	}
}

// NewTokenCache creates a TokenCache over the supplied store.
func NewTokenCache(store Store, opts ...TokenCacheOption) *TokenCache {
	c := &TokenCache{
		store:  store,
		margin: DefaultExpiryMargin,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetOrPopulate returns the live cached token for key, or acquires one via
// populate. At most one population per key is in flight at any instant;
// concurrent callers for the same key receive the leader's result without
// invoking populate again. A successful result is stored before it is
// returned. Cancelling the caller's context abandons only that caller's
// wait: the in-flight population continues for the benefit of any other
// waiters, and its result is still cached.
func (c *TokenCache) GetOrPopulate(ctx context.Context, key CacheKey, populate func(ctx context.Context) (AccessToken, error)) (AccessToken, error) {
	if token, ok := c.lookup(ctx, key); ok {
		return token, nil
	}

	ch := c.group.DoChan(string(key), func() (any, error) {
		// the population must survive the leader's own cancellation while
		// other callers wait on it, so it runs on a detached context
		pctx := context.WithoutCancel(ctx)

		// a previous flight may have stored a token between this caller's
		// miss and its election as leader
		if token, ok := c.lookup(pctx, key); ok {
			return token, nil
		}

		token, err := populate(pctx)
		if err != nil {
			return AccessToken{}, err
		}

		if err := c.store.Set(pctx, string(key), token); err != nil {
			// the token is valid even if it could not be stored
			log.Warn().Err(err).Str("key", string(key)).
				Msg("token acquired but could not be cached")
		}

		return token, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return AccessToken{}, res.Err
		}
		return res.Val.(AccessToken), nil

	case <-ctx.Done():
		return AccessToken{}, ctx.Err()
	}
}

// Invalidate removes any cached entry for key, forcing the next lookup to
// repopulate. Used when a caller independently learns a token was rejected
// before its natural expiry.
func (c *TokenCache) Invalidate(ctx context.Context, key CacheKey) error {
	return c.store.Invalidate(ctx, string(key))
}

// lookup returns a cached token only when it is still live: entries at or
// past expiry (less the safety margin) are treated as absent. Storage
// errors degrade to a miss so that population can still proceed.
func (c *TokenCache) lookup(ctx context.Context, key CacheKey) (AccessToken, bool) {
	token, ok, err := c.store.Get(ctx, string(key))
	if err != nil {
		log.Warn().Err(err).Str("key", string(key)).
			Msg("token cache lookup failed; treating as miss")
		return AccessToken{}, false
	}
	if !ok || !token.LiveAt(c.now(), c.margin) {
		return AccessToken{}, false
	}
	return token, true
}
