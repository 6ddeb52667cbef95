package conversation

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/estatechat/platform/internal/engine"
)

func newTestStateCache(t *testing.T) (*StateCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewStateCache(client, nil), mr
}

func TestStateCacheRoundTrip(t *testing.T) {
	cache, _ := newTestStateCache(t)
	ctx := context.Background()

	state := engine.State{HasName: true, Name: "Sarah", HasIntent: true, Intent: engine.IntentSelling}
	require.NoError(t, cache.Save(ctx, "conv-1", state))

	got, ok, err := cache.Load(ctx, "conv-1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, state, got)
}

func TestStateCacheMissIsNotAnError(t *testing.T) {
	cache, _ := newTestStateCache(t)

	got, ok, err := cache.Load(context.Background(), "never-saved")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, engine.State{}, got)
}

func TestStateCacheEntriesExpire(t *testing.T) {
	cache, mr := newTestStateCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Save(ctx, "conv-1", engine.State{HasName: true, Name: "Sarah"}))
	mr.FastForward(stateTTL + 1)

	_, ok, err := cache.Load(ctx, "conv-1")
	require.NoError(t, err)
	assert.False(t, ok, "entries older than the TTL must be gone")
}
