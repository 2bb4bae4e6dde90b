// Package chain constructs a credential chain from broker configuration.
package chain

import (
	"fmt"
	"time"

	"github.com/demoray/azure-identity-helpers/credential"
	"github.com/demoray/azure-identity-helpers/credential/azureauth"
	"github.com/demoray/azure-identity-helpers/credential/devicecode"
	"github.com/demoray/azure-identity-helpers/credential/envcred"
	"github.com/demoray/azure-identity-helpers/credential/refresh"
	"github.com/demoray/azure-identity-helpers/internal/config"
)

// New builds the provider list in configured order and wires the cache
// around it. Order is precedence: it is never reordered at runtime.
func New(cfg config.ChainConfig, tokenCache *credential.TokenCache) (*credential.Chain, error) {
	providers := make([]credential.Provider, 0, len(cfg.Providers))

	for _, name := range cfg.Providers {
		switch name {
		case "azureauth":
			var opts []azureauth.Option
			if cfg.Azureauth.Command != "" {
				opts = append(opts, azureauth.WithCommand(cfg.Azureauth.Command))
			}
			if cfg.Azureauth.PromptHint != "" {
				opts = append(opts, azureauth.WithPromptHint(cfg.Azureauth.PromptHint))
			}
			if len(cfg.Azureauth.Modes) > 0 {
				modes := make([]azureauth.Mode, 0, len(cfg.Azureauth.Modes))
				for _, m := range cfg.Azureauth.Modes {
					modes = append(modes, azureauth.Mode(m))
				}
				opts = append(opts, azureauth.WithModes(modes...))
			}
			providers = append(providers, azureauth.New(cfg.TenantID, cfg.ClientID, opts...))

		case "device-code":
			providers = append(providers, devicecode.New(cfg.TenantID, cfg.ClientID))

		case "refresh-token":
			var opts []refresh.Option
			if cfg.Refresh.ClientSecret != "" {
				opts = append(opts, refresh.WithClientSecret(cfg.Refresh.ClientSecret))
			}
			providers = append(providers, refresh.New(cfg.TenantID, cfg.ClientID, cfg.Refresh.Token, opts...))

		case "env":
			providers = append(providers, envcred.New(cfg.Env.Variable,
				envcred.WithFallbackTTL(time.Duration(cfg.Env.FallbackTTLSecs)*time.Second)))

		default:
			return nil, fmt.Errorf("unknown provider %q", name)
		}
	}

	var opts []credential.ChainOption
	if tokenCache != nil {
		opts = append(opts, credential.WithTokenCache(tokenCache))
	}
	if cfg.RetryEveryProvider {
		opts = append(opts, credential.WithRetryEveryProvider())
	}

	return credential.NewChain(providers, opts...)
}
