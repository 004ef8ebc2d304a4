package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiter(t *testing.T) {
	// With rate.NewLimiter(10, 2), the limiter starts with 2 tokens in the bucket
	limiter := NewLimiter(10, 2)

	assert.True(t, limiter.Allow("test-key"), "first request should be allowed")
	assert.True(t, limiter.Allow("test-key"), "second request should be allowed")
	assert.False(t, limiter.Allow("test-key"), "third request should be rate limited")

	// 10 req/s = 100ms per token
	time.Sleep(150 * time.Millisecond)

	assert.True(t, limiter.Allow("test-key"), "request after waiting should be allowed")
}

func TestLimiterKeysAreIndependent(t *testing.T) {
	limiter := NewLimiter(1, 1)

	assert.True(t, limiter.Allow("a"))
	assert.False(t, limiter.Allow("a"))
	assert.True(t, limiter.Allow("b"))
	assert.Equal(t, 2, limiter.Len())
}

func TestWaitRespectsContext(t *testing.T) {
	limiter := Every(time.Hour, 1)
	require.NoError(t, limiter.Wait(context.Background(), "host"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.Error(t, limiter.Wait(ctx, "host"))
}
