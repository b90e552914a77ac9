package gateway

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

func setupCredentialsDB(t *testing.T) *bun.DB {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestBunCredentialsRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewBunCredentials(setupCredentialsDB(t))
	require.NoError(t, store.CreateSchema(ctx))

	value, err := store.Get(ctx, "access_token")
	require.NoError(t, err)
	assert.Empty(t, value)

	require.NoError(t, store.Set(ctx, "access_token", "one"))
	require.NoError(t, store.Set(ctx, "access_token", "two"))

	value, err = store.Get(ctx, "access_token")
	require.NoError(t, err)
	assert.Equal(t, "two", value)

	require.NoError(t, store.Remove(ctx, "access_token"))
	value, err = store.Get(ctx, "access_token")
	require.NoError(t, err)
	assert.Empty(t, value)
}

func TestClientWithBunCredentials(t *testing.T) {
	ctx := context.Background()
	store := NewBunCredentials(setupCredentialsDB(t))
	require.NoError(t, store.CreateSchema(ctx))

	backend := newFakeBackend(t)
	client := NewClient(backend.server.URL,
		WithHTTPClient(backend.server.Client()),
		WithCredentialStore(store),
	)
	require.NoError(t, client.SetTokens(ctx, "stale", "refresh-1"))

	require.NoError(t, client.Get(ctx, "/data", nil))

	access, err := store.Get(ctx, DefaultKeys.Access)
	require.NoError(t, err)
	assert.Equal(t, "fresh", access)
}

func TestClientRefreshTimeoutClearsBunCredentials(t *testing.T) {
	ctx := context.Background()
	store := NewBunCredentials(setupCredentialsDB(t))
	require.NoError(t, store.CreateSchema(ctx))

	backend := newFakeBackend(t)
	backend.holdRefresh = make(chan struct{})
	t.Cleanup(func() { close(backend.holdRefresh) })

	client := NewClient(backend.server.URL,
		WithHTTPClient(backend.server.Client()),
		WithCredentialStore(store),
		WithRefreshTimeout(50*time.Millisecond),
	)
	require.NoError(t, client.SetTokens(ctx, "stale", "refresh-1"))

	err := client.Get(ctx, "/data", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAuthExpired))

	access, err := store.Get(ctx, DefaultKeys.Access)
	require.NoError(t, err)
	assert.Empty(t, access)

	refresh, err := store.Get(ctx, DefaultKeys.Refresh)
	require.NoError(t, err)
	assert.Empty(t, refresh)
}
