package tokenstore

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	request "github.com/zhangxinping666/admin-mp-sub001"
)

func TestNewRedisStoreDefaults(t *testing.T) {
	store, err := NewRedisStoreFromURL("redis://localhost:6379/0", "", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, DefaultRedisKey, store.Key())
}

func TestNewRedisStoreBadURL(t *testing.T) {
	_, err := NewRedisStoreFromURL("http://not-redis", "", 0)
	assert.Error(t, err)
}

// Runs only against a live server, e.g. BACKSTAGE_TEST_REDIS_URL=redis://localhost:6379/15.
func TestRedisStoreRoundTrip(t *testing.T) {
	url := os.Getenv("BACKSTAGE_TEST_REDIS_URL")
	if url == "" {
		t.Skip("BACKSTAGE_TEST_REDIS_URL not set")
	}

	ctx := context.Background()
	store, err := NewRedisStoreFromURL(url, "backstage:test:"+t.Name(), time.Minute)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Clear(ctx) })

	tokens, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, request.Tokens{}, tokens)

	want := request.Tokens{AccessToken: "a", RefreshToken: "r"}
	require.NoError(t, store.Save(ctx, want))

	got, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	require.NoError(t, store.Clear(ctx))
	got, err = store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, request.Tokens{}, got)
}
