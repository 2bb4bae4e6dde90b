// Package envcred reads a bearer token from an environment variable.
// Useful in CI environments where a token is injected by the platform.
package envcred

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/demoray/azure-identity-helpers/credential"
)

// DefaultFallbackTTL is assumed when the token value carries no readable
// expiry claim.
const DefaultFallbackTTL = 10 * time.Minute

// Credential sources a token from the named environment variable. When the
// value is a JWT, its exp claim supplies the expiry; the claim is read
// without signature verification, since token validation is the platform's
// responsibility, not this provider's.
type Credential struct {
	variable    string
	fallbackTTL time.Duration

	lookupEnv func(key string) (string, bool)
	now       func() time.Time
}

// Option configures a Credential.
type Option func(*Credential)

// WithFallbackTTL overrides the assumed lifetime for opaque token values.
func WithFallbackTTL(ttl time.Duration) Option {
	return func(c *Credential) {
		c.fallbackTTL = ttl
	}
}

// New creates a credential reading from the given environment variable.
func New(variable string, opts ...Option) *Credential {
	c := &Credential{
		variable:    variable,
		fallbackTTL: DefaultFallbackTTL,
		lookupEnv:   os.LookupEnv,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ credential.Provider = (*Credential)(nil)

func (c *Credential) Name() string {
	return "env"
}

// Available reports whether the environment variable is set and non-empty.
func (c *Credential) Available() bool {
	value, ok := c.lookupEnv(c.variable)
	return ok && value != ""
}

func (c *Credential) GetToken(ctx context.Context, req credential.TokenRequest) (credential.AccessToken, error) {
	value, ok := c.lookupEnv(c.variable)
	if !ok || value == "" {
		return credential.AccessToken{}, fmt.Errorf("environment variable %s is not set", c.variable)
	}

	return credential.AccessToken{
		Token:     value,
		ExpiresOn: c.expiry(value),
	}, nil
}

// expiry reads the exp claim when the value parses as a JWT, falling back
// to the configured TTL for opaque values.
func (c *Credential) expiry(value string) time.Time {
	token, err := jwt.ParseInsecure([]byte(value))
	if err == nil {
		if exp := token.Expiration(); !exp.IsZero() {
			return exp
		}
	}

	return c.now().Add(c.fallbackTTL)
}
