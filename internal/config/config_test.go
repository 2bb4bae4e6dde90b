package config

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfig_Defaults(t *testing.T) {
	t.Setenv("CHAIN_TENANT_ID", "test-tenant")
	t.Setenv("CHAIN_CLIENT_ID", "test-client")

	cfg, err := Load(context.Background())
	assert.NoError(t, err)

	assert.Equal(t, "memory", cfg.Cache.Type)
	assert.Equal(t, 2700, cfg.Cache.TTLSecs)
	assert.Equal(t, 10, cfg.Cache.ExpiryMarginSecs)
	assert.Equal(t, 8137, cfg.Server.Port)
	assert.Equal(t, []string{"azureauth", "refresh-token", "env"}, cfg.Chain.Providers)
	assert.Equal(t, "https://login.microsoftonline.com", cfg.Chain.AuthorityHost)
	assert.False(t, cfg.Chain.RetryEveryProvider)
	assert.Equal(t, "IDENTITY_TOKEN", cfg.Chain.Env.Variable)
	assert.Equal(t, 600, cfg.Chain.Env.FallbackTTLSecs)
	assert.Equal(t, "identity-broker", cfg.Observe.ServiceName)
}

func TestConfig_RequiredFields(t *testing.T) {
	t.Setenv("CHAIN_TENANT_ID", "test-tenant")
	// CHAIN_CLIENT_ID deliberately unset

	_, err := Load(context.Background())
	assert.Error(t, err)
}

func TestChainConfig_ProviderOrder(t *testing.T) {
	t.Setenv("CHAIN_TENANT_ID", "test-tenant")
	t.Setenv("CHAIN_CLIENT_ID", "test-client")
	t.Setenv("CHAIN_PROVIDERS", "env,azureauth")

	cfg, err := Load(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, []string{"env", "azureauth"}, cfg.Chain.Providers)
}

func TestChainConfig_UnknownProvider(t *testing.T) {
	t.Setenv("CHAIN_TENANT_ID", "test-tenant")
	t.Setenv("CHAIN_CLIENT_ID", "test-client")
	t.Setenv("CHAIN_PROVIDERS", "azureauth,managed-identity")

	_, err := Load(context.Background())
	assert.ErrorContains(t, err, "unknown provider")
}

func TestCacheConfig_InvalidType(t *testing.T) {
	t.Setenv("CHAIN_TENANT_ID", "test-tenant")
	t.Setenv("CHAIN_CLIENT_ID", "test-client")
	t.Setenv("CACHE_TYPE", "valkey")

	_, err := Load(context.Background())
	assert.ErrorContains(t, err, "invalid CACHE_TYPE")
}

func TestCacheConfig_NegativeMargin(t *testing.T) {
	t.Setenv("CHAIN_TENANT_ID", "test-tenant")
	t.Setenv("CHAIN_CLIENT_ID", "test-client")
	t.Setenv("CACHE_EXPIRY_MARGIN_SECS", "-1")

	_, err := Load(context.Background())
	assert.ErrorContains(t, err, "CACHE_EXPIRY_MARGIN_SECS")
}

func TestAzureauthConfig(t *testing.T) {
	t.Setenv("CHAIN_TENANT_ID", "test-tenant")
	t.Setenv("CHAIN_CLIENT_ID", "test-client")
	t.Setenv("AZUREAUTH_COMMAND", "azureauth-preview")
	t.Setenv("AZUREAUTH_PROMPT_HINT", "broker sign-in")
	t.Setenv("AZUREAUTH_MODES", "broker,web")

	cfg, err := Load(context.Background())
	assert.NoError(t, err)

	expected := AzureauthConfig{
		Command:    "azureauth-preview",
		PromptHint: "broker sign-in",
		Modes:      []string{"broker", "web"},
	}
	assert.Equal(t, expected, cfg.Chain.Azureauth)
}
