package tokenstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	request "github.com/zhangxinping666/admin-mp-sub001"
)

func TestFileStoreLoadMissing(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "tokens.yaml"))

	tokens, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, request.Tokens{}, tokens)
}

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "tokens.yaml")
	store := NewFileStore(path)
	ctx := context.Background()

	want := request.Tokens{AccessToken: "access-1", RefreshToken: "refresh-1"}
	require.NoError(t, store.Save(ctx, want))

	got, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "refresh_token: refresh-1")
}

func TestFileStoreClear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens.yaml")
	store := NewFileStore(path)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, request.Tokens{AccessToken: "a", RefreshToken: "r"}))
	require.NoError(t, store.Clear(ctx))
	require.NoError(t, store.Clear(ctx), "clearing twice should be a no-op")

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestFileStoreRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens.yaml")
	require.NoError(t, os.WriteFile(path, []byte("access_token: [unterminated"), 0600))

	_, err := NewFileStore(path).Load(context.Background())
	assert.Error(t, err)
}

func TestFileStoreBacksCredentials(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "tokens.yaml")

	creds := request.NewCredentials(NewFileStore(path))
	require.NoError(t, creds.Set(ctx, request.Tokens{AccessToken: "a1", RefreshToken: "r1"}))

	restored := request.NewCredentials(NewFileStore(path))
	require.NoError(t, restored.Restore(ctx))
	assert.Equal(t, "a1", restored.AccessToken())

	refresh, err := restored.RefreshToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "r1", refresh)
}
