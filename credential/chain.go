package credential

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/rs/zerolog/log"
)

// Chain tries an ordered sequence of credential providers until one
// produces a token. Order is fixed at construction and determines
// precedence: the first available, successful provider wins, and no
// provider is ever retried out of order.
//
// By default the provider that last succeeded is remembered and used
// directly for subsequent acquisitions, skipping the providers before it.
// WithRetryEveryProvider restores full iteration on every acquisition.
type Chain struct {
	providers []Provider
	cache     *TokenCache
	retryAll  bool

	mu         sync.RWMutex
	successful Provider

	attemptMu sync.Mutex
	attempts  []Attempt
}

// ChainOption configures a Chain.
type ChainOption func(*Chain)

// WithTokenCache attaches a cache consulted before provider iteration. On a
// live hit the providers are bypassed entirely; on a miss the acquired
// token is stored with its expiry.
func WithTokenCache(cache *TokenCache) ChainOption {
	return func(c *Chain) {
		c.cache = cache
	}
}

// WithRetryEveryProvider disables the remember-successful-provider
// shortcut: every acquisition iterates the full chain from the start.
func WithRetryEveryProvider() ChainOption {
	return func(c *Chain) {
		c.retryAll = true
	}
}

// NewChain creates a chain over the given providers. At least one provider
// is required. The slice is copied: the chain's order is immutable after
// construction.
func NewChain(providers []Provider, opts ...ChainOption) (*Chain, error) {
	if len(providers) == 0 {
		return nil, fmt.Errorf("credential chain requires at least one provider")
	}

	c := &Chain{
		providers: slices.Clone(providers),
	}
	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// GetToken acquires a token for the request, consulting the cache (when
// configured) and otherwise trying each provider in order. When every
// provider is skipped or fails, the returned error is an *ExhaustedError
// enumerating each provider's outcome in order.
func (c *Chain) GetToken(ctx context.Context, req TokenRequest) (AccessToken, error) {
	if c.cache == nil {
		return c.acquire(ctx, req)
	}

	return c.cache.GetOrPopulate(ctx, req.Key(), func(ctx context.Context) (AccessToken, error) {
		return c.acquire(ctx, req)
	})
}

// LastAttempts returns the attempt records of the most recent provider
// iteration: one entry per provider considered, in configured order. It is
// empty until an acquisition has reached the providers (a cache hit does
// not iterate).
func (c *Chain) LastAttempts() []Attempt {
	c.attemptMu.Lock()
	defer c.attemptMu.Unlock()
	return slices.Clone(c.attempts)
}

func (c *Chain) acquire(ctx context.Context, req TokenRequest) (AccessToken, error) {
	if p := c.remembered(); p != nil {
		log.Debug().Str("provider", p.Name()).
			Msg("reusing previously successful provider")

		token, err := p.GetToken(ctx, req)
		if err != nil {
			c.record([]Attempt{{
				Provider: p.Name(),
				Status:   AttemptFailed,
				Err:      &ProviderError{Provider: p.Name(), Err: err},
			}})
			return AccessToken{}, err
		}

		c.record([]Attempt{{Provider: p.Name(), Status: AttemptSucceeded}})
		return token, nil
	}

	attempts := make([]Attempt, 0, len(c.providers))

	for _, p := range c.providers {
		if !p.Available() {
			log.Debug().Str("provider", p.Name()).
				Msg("provider unavailable; skipping")
			attempts = append(attempts, Attempt{
				Provider: p.Name(),
				Status:   AttemptSkipped,
				Err:      &ProviderError{Provider: p.Name(), Err: ErrProviderUnavailable},
			})
			continue
		}

		token, err := p.GetToken(ctx, req)
		if err != nil {
			// every provider failure is continue-to-next: the point of
			// chaining is environment heterogeneity
			log.Debug().Err(err).Str("provider", p.Name()).
				Msg("provider could not produce a token")
			attempts = append(attempts, Attempt{
				Provider: p.Name(),
				Status:   AttemptFailed,
				Err:      &ProviderError{Provider: p.Name(), Err: err},
			})
			continue
		}

		attempts = append(attempts, Attempt{Provider: p.Name(), Status: AttemptSucceeded})
		c.record(attempts)
		c.remember(p)

		log.Info().Str("provider", p.Name()).
			Time("expiry", token.ExpiresOn).
			Msg("token acquired")

		return token, nil
	}

	c.record(attempts)

	return AccessToken{}, &ExhaustedError{Attempts: attempts}
}

// remembered returns the provider that last succeeded, when the shortcut is
// enabled. The lock covers only the read: it is never held across a
// provider call.
func (c *Chain) remembered() Provider {
	if c.retryAll {
		return nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.successful
}

func (c *Chain) remember(p Provider) {
	if c.retryAll {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.successful = p
}

func (c *Chain) record(attempts []Attempt) {
	c.attemptMu.Lock()
	defer c.attemptMu.Unlock()
	c.attempts = attempts
}
