package cache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/demoray/azure-identity-helpers/internal/config"
)

func TestNewFromConfig_Memory(t *testing.T) {
	c, err := NewFromConfig[string](config.CacheConfig{
		Type:    "memory",
		TTLSecs: 60,
		MaxSize: 10,
	})
	require.NoError(t, err)
	require.NotNil(t, c)
	defer c.Close()

	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "key", "value"))

	value, found, err := c.Get(ctx, "key")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "value", value)
}

func TestNewFromConfig_UnknownType(t *testing.T) {
	_, err := NewFromConfig[string](config.CacheConfig{Type: "valkey"})
	require.Error(t, err)
	assert.ErrorContains(t, err, "invalid cache type")
}
