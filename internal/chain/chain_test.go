package chain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/demoray/azure-identity-helpers/internal/config"
)

func TestNew(t *testing.T) {
	cfg := config.ChainConfig{
		Providers: []string{"azureauth", "device-code", "refresh-token", "env"},
		TenantID:  "tenant",
		ClientID:  "client",
		Env:       config.EnvCredConfig{Variable: "IDENTITY_TOKEN", FallbackTTLSecs: 600},
	}

	c, err := New(cfg, nil)
	require.NoError(t, err)
	assert.NotNil(t, c)
}

func TestNew_UnknownProvider(t *testing.T) {
	cfg := config.ChainConfig{
		Providers: []string{"managed-identity"},
	}

	_, err := New(cfg, nil)
	assert.ErrorContains(t, err, `unknown provider "managed-identity"`)
}

func TestNew_NoProviders(t *testing.T) {
	_, err := New(config.ChainConfig{}, nil)
	assert.Error(t, err)
}
