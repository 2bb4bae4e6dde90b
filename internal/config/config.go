// Package config loads broker configuration from the environment.
package config

import (
	"context"
	"fmt"
	"slices"

	"github.com/sethvargo/go-envconfig"
)

// ProviderNames lists the provider identifiers accepted in CHAIN_PROVIDERS,
// in no particular order. The configured order of CHAIN_PROVIDERS is the
// chain's precedence order.
var ProviderNames = []string{"azureauth", "device-code", "refresh-token", "env"}

type Config struct {
	Cache   CacheConfig
	Chain   ChainConfig
	Observe ObserveConfig
	Server  ServerConfig
}

type ServerConfig struct {
	Port                   int `env:"SERVER_PORT, default=8137"`
	ShutdownTimeoutSeconds int `env:"SERVER_SHUTDOWN_TIMEOUT_SECS, default=25"`
}

// ChainConfig describes the credential chain: which providers participate,
// in what order, and the identity boundary tokens are requested for.
type ChainConfig struct {
	// Providers is the ordered list of mechanisms to try. Order is
	// precedence: first usable, successful provider wins.
	Providers []string `env:"CHAIN_PROVIDERS, default=azureauth,refresh-token,env"`

	TenantID      string `env:"CHAIN_TENANT_ID, required"`
	ClientID      string `env:"CHAIN_CLIENT_ID, required"`
	AuthorityHost string `env:"CHAIN_AUTHORITY_HOST, default=https://login.microsoftonline.com"`

	// RetryEveryProvider disables the remember-successful-provider
	// shortcut, forcing a full chain traversal on every acquisition.
	RetryEveryProvider bool `env:"CHAIN_RETRY_EVERY_PROVIDER, default=false"`

	Azureauth AzureauthConfig
	Env       EnvCredConfig
	Refresh   RefreshConfig
}

// AzureauthConfig configures the CLI-backed provider.
type AzureauthConfig struct {
	// Command overrides the binary name probed on PATH.
	Command    string   `env:"AZUREAUTH_COMMAND"`
	PromptHint string   `env:"AZUREAUTH_PROMPT_HINT"`
	Modes      []string `env:"AZUREAUTH_MODES"`
}

// EnvCredConfig configures the environment-variable provider.
type EnvCredConfig struct {
	// Variable names the environment variable holding a bearer token.
	Variable string `env:"ENV_TOKEN_VARIABLE, default=IDENTITY_TOKEN"`

	// FallbackTTLSecs is the assumed lifetime when the token carries no
	// readable expiry claim.
	FallbackTTLSecs int `env:"ENV_TOKEN_FALLBACK_TTL_SECS, default=600"`
}

// RefreshConfig configures the refresh-token exchange provider.
type RefreshConfig struct {
	Token        string `env:"REFRESH_TOKEN"`
	ClientSecret string `env:"REFRESH_CLIENT_SECRET"`
}

// CacheConfig specifies token cache configuration.
type CacheConfig struct {
	// Type selects the cache implementation. Only "memory" is supported.
	Type string `env:"CACHE_TYPE, default=memory"`

	// TTLSecs is the backstop eviction horizon for cached tokens.
	TTLSecs int `env:"CACHE_TTL_SECS, default=2700"`

	// MaxSize bounds the number of cached entries.
	MaxSize int `env:"CACHE_MAX_SIZE, default=10000"`

	// ExpiryMarginSecs is the clock-skew safety margin: a token within
	// this many seconds of expiry is treated as already expired.
	ExpiryMarginSecs int `env:"CACHE_EXPIRY_MARGIN_SECS, default=10"`
}

type ObserveConfig struct {
	Enabled                   bool   `env:"OBSERVE_ENABLED, default=false"`
	MetricsEnabled            bool   `env:"OBSERVE_METRICS_ENABLED, default=true"`
	Type                      string `env:"OBSERVE_TYPE, default=grpc"`
	ServiceName               string `env:"OBSERVE_SERVICE_NAME, default=identity-broker"`
	TraceBatchTimeoutSeconds  int    `env:"OBSERVE_TRACE_BATCH_TIMEOUT_SECS, default=20"`
	MetricReadIntervalSeconds int    `env:"OBSERVE_METRIC_READ_INTERVAL_SECS, default=60"`
}

func Load(ctx context.Context) (Config, error) {
	return load(ctx, nil) // load from OS environment
}

func load(ctx context.Context, lookup envconfig.Lookuper) (Config, error) {
	var cfg Config
	err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: lookup, // nil defaults to OS environment
	})
	if err != nil {
		return cfg, err
	}

	if err := cfg.Chain.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid chain configuration: %w", err)
	}

	if err := cfg.Cache.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid cache configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks the chain configuration.
func (c *ChainConfig) Validate() error {
	if len(c.Providers) == 0 {
		return fmt.Errorf("CHAIN_PROVIDERS must name at least one provider")
	}

	for _, name := range c.Providers {
		if !slices.Contains(ProviderNames, name) {
			return fmt.Errorf("unknown provider %q in CHAIN_PROVIDERS (valid: %v)", name, ProviderNames)
		}
	}

	return nil
}

// Validate checks the cache configuration.
func (c *CacheConfig) Validate() error {
	if c.Type != "memory" {
		return fmt.Errorf("invalid CACHE_TYPE %q: must be \"memory\"", c.Type)
	}

	if c.ExpiryMarginSecs < 0 {
		return fmt.Errorf("CACHE_EXPIRY_MARGIN_SECS must not be negative")
	}

	return nil
}
