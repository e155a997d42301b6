package pkg

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFactCacheMemoizes(t *testing.T) {
	cache := NewFactCache()
	calls := 0
	compute := func() (interface{}, error) {
		calls++
		return "value", nil
	}

	for i := 0; i < 3; i++ {
		v, err := cache.GetOrCompute("key", compute)
		require.NoError(t, err)
		assert.Equal(t, "value", v)
	}
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, cache.Len())
}

func TestFactCacheDoesNotCacheErrors(t *testing.T) {
	cache := NewFactCache()
	calls := 0
	_, err := cache.GetOrCompute("key", func() (interface{}, error) {
		calls++
		return nil, errors.New("unreachable")
	})
	require.Error(t, err)

	v, err := cache.GetOrCompute("key", func() (interface{}, error) {
		calls++
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, 2, calls)
}

func TestFactCacheInvalidate(t *testing.T) {
	cache := NewFactCache()
	calls := 0
	compute := func() (interface{}, error) {
		calls++
		return calls, nil
	}

	v, _ := cache.GetOrCompute("key", compute)
	assert.Equal(t, 1, v)

	cache.Invalidate("key")
	v, _ = cache.GetOrCompute("key", compute)
	assert.Equal(t, 2, v)
}
