package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flakyCache lets a test script failures beneath the instrumentation.
type flakyCache struct {
	values map[string]string
	err    error
	closed bool
}

func (f *flakyCache) Get(ctx context.Context, key string) (string, bool, error) {
	if f.err != nil {
		return "", false, f.err
	}
	v, ok := f.values[key]
	return v, ok, nil
}

func (f *flakyCache) Set(ctx context.Context, key string, value string) error {
	if f.err != nil {
		return f.err
	}
	f.values[key] = value
	return nil
}

func (f *flakyCache) Invalidate(ctx context.Context, key string) error {
	if f.err != nil {
		return f.err
	}
	delete(f.values, key)
	return nil
}

func (f *flakyCache) Close() error {
	f.closed = true
	return nil
}

func TestInstrumented_DelegatesOperations(t *testing.T) {
	ctx := context.Background()
	inner := &flakyCache{values: map[string]string{}}
	wrapped := NewInstrumented[string](inner, "memory")

	require.NoError(t, wrapped.Set(ctx, "key", "value"))

	value, found, err := wrapped.Get(ctx, "key")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "value", value)

	_, found, err = wrapped.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, wrapped.Invalidate(ctx, "key"))
	_, ok := inner.values["key"]
	assert.False(t, ok)

	require.NoError(t, wrapped.Close())
	assert.True(t, inner.closed)
}

func TestInstrumented_PropagatesErrors(t *testing.T) {
	ctx := context.Background()
	cause := errors.New("backend down")
	wrapped := NewInstrumented[string](&flakyCache{err: cause}, "memory")

	_, _, err := wrapped.Get(ctx, "key")
	assert.ErrorIs(t, err, cause)

	assert.ErrorIs(t, wrapped.Set(ctx, "key", "value"), cause)
	assert.ErrorIs(t, wrapped.Invalidate(ctx, "key"), cause)
}

func TestInstrumented_WorksWithMemoryBackend(t *testing.T) {
	ctx := context.Background()

	memory, err := NewMemory[string](time.Hour, 10)
	require.NoError(t, err)

	wrapped := NewInstrumented[string](memory, "memory")
	require.NoError(t, wrapped.Set(ctx, "key", "value"))

	value, found, err := wrapped.Get(ctx, "key")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "value", value)
}
