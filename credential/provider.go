package credential

import "context"

// Provider is a single credential mechanism: CLI-tool-backed login,
// environment variables, a managed identity endpoint, and so on. The chain
// treats each provider as opaque.
type Provider interface {
	// Name identifies the provider in diagnostics and aggregated errors.
	Name() string

	// Available reports whether the mechanism can be used in this
	// execution environment. It must be a cheap local probe (an
	// environment variable lookup, a PATH search): no network calls.
	Available() bool

	// GetToken attempts to acquire a token for the request. A returned
	// error means this provider could not produce a token; it does not
	// prevent later providers in a chain from being tried.
	GetToken(ctx context.Context, req TokenRequest) (AccessToken, error)
}
