package sql_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/bcnelson/ipsync/internal/domain"
	sqlstore "github.com/bcnelson/ipsync/internal/storage/sql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *sqlstore.Store {
	t.Helper()
	store, err := sqlstore.New("sqlite3", filepath.Join(t.TempDir(), "ipsync.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestAddressSetMembers(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	set, err := store.EnsureAddressSet(ctx, "edge")
	require.NoError(t, err)
	again, err := store.EnsureAddressSet(ctx, "edge")
	require.NoError(t, err)
	assert.Equal(t, set.ID, again.ID)

	for _, addr := range []string{"10.0.0.3", "10.0.0.1", "10.0.0.2"} {
		require.NoError(t, store.AddMember(ctx, set.ID, addr))
	}
	assert.ErrorIs(t, store.AddMember(ctx, set.ID, "10.0.0.1"), domain.ErrAlreadyExists)

	first, err := store.ListMembers(ctx, set.ID, "", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"10.0.0.1", "10.0.0.2"}, first)

	rest, err := store.ListMembers(ctx, set.ID, first[len(first)-1], 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"10.0.0.3"}, rest)

	require.NoError(t, store.RemoveMember(ctx, set.ID, "10.0.0.2"))
	assert.ErrorIs(t, store.RemoveMember(ctx, set.ID, "10.0.0.2"), domain.ErrNotFound)
}

func TestTransactionRollback(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	set, err := store.EnsureAddressSet(ctx, "edge")
	require.NoError(t, err)
	require.NoError(t, store.AddMember(ctx, set.ID, "10.0.0.1"))

	tx, err := store.BeginTx(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.DeleteAllMembers(ctx, set.ID))
	require.NoError(t, tx.AddMember(ctx, set.ID, "192.0.2.1"))
	require.NoError(t, tx.Rollback())

	members, err := store.ListMembers(ctx, set.ID, "", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"10.0.0.1"}, members)
}

func TestGetAddressSetByName_NotFound(t *testing.T) {
	store := newStore(t)

	_, err := store.GetAddressSetByName(context.Background(), "missing")

	assert.ErrorIs(t, err, domain.ErrNotFound)
}
