package pushsvc

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "push.db")
	s, err := openStore(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.close() })
	return s
}

func TestStore_UpsertThenList(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.upsert(ctx, Subscription{Endpoint: "https://push.example/a", P256dh: "key1", Auth: "auth1"}))
	require.NoError(t, s.upsert(ctx, Subscription{Endpoint: "https://push.example/b", P256dh: "key2", Auth: "auth2"}))

	subs, err := s.list(ctx)
	require.NoError(t, err)
	require.Len(t, subs, 2)
}

func TestStore_UpsertIsIdempotentOnEndpoint(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.upsert(ctx, Subscription{Endpoint: "https://push.example/a", P256dh: "old", Auth: "old"}))
	require.NoError(t, s.upsert(ctx, Subscription{Endpoint: "https://push.example/a", P256dh: "new", Auth: "new"}))

	subs, err := s.list(ctx)
	require.NoError(t, err)
	require.Len(t, subs, 1, "re-subscribing the same endpoint must update, not duplicate")
	assert.Equal(t, "new", subs[0].P256dh)
}

func TestStore_RemoveUnknownEndpointReturnsNoRows(t *testing.T) {
	s := openTestStore(t)
	err := s.remove(context.Background(), "https://push.example/missing")
	assert.True(t, errors.Is(err, sql.ErrNoRows))
}

func TestStore_RemoveDeletesSubscription(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.upsert(ctx, Subscription{Endpoint: "https://push.example/a", P256dh: "k", Auth: "a"}))

	require.NoError(t, s.remove(ctx, "https://push.example/a"))

	subs, err := s.list(ctx)
	require.NoError(t, err)
	assert.Empty(t, subs)
}
