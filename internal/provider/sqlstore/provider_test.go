package sqlstore_test

import (
	"context"
	"testing"

	"github.com/bcnelson/ipsync/internal/domain"
	"github.com/bcnelson/ipsync/internal/provider/sqlstore"
	"github.com/bcnelson/ipsync/internal/storage/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, p *sqlstore.Provider, collection string) ([]string, int) {
	t.Helper()
	var all []string
	pages := 0
	cursor := p.StartCursor(collection)
	for {
		page, resp, err := p.FetchPage(context.Background(), collection, cursor)
		require.NoError(t, err)
		require.Equal(t, domain.ResponseSuccess, resp.Status)
		pages++
		all = append(all, page.Specs...)
		if page.Next == "" {
			return all, pages
		}
		cursor = page.Next
	}
}

func TestFetchPage_MissingSetIsEmpty(t *testing.T) {
	p := sqlstore.New("db", memory.New(), 2)

	addrs, pages := collect(t, p, "edge")

	assert.Empty(t, addrs)
	assert.Equal(t, 1, pages)
}

func TestMutateThenList(t *testing.T) {
	p := sqlstore.New("db", memory.New(), 2)
	ctx := context.Background()

	for _, a := range []domain.Address{"10.0.0.3", "10.0.0.1", "10.0.0.2", "10.0.0.1"} {
		resp, err := p.Mutate(ctx, "edge", a, domain.OpAdd)
		require.NoError(t, err)
		assert.Equal(t, domain.ResponseSuccess, resp.Status)
	}
	_, err := p.Mutate(ctx, "edge", "10.0.0.9", domain.OpRemove)
	require.NoError(t, err)

	addrs, pages := collect(t, p, "edge")
	assert.Equal(t, []string{"10.0.0.1", "10.0.0.2", "10.0.0.3"}, addrs)
	assert.Equal(t, 2, pages)
}

func TestReplaceAll(t *testing.T) {
	p := sqlstore.New("db", memory.New(), 0)
	ctx := context.Background()
	_, err := p.Mutate(ctx, "edge", "10.0.0.1", domain.OpAdd)
	require.NoError(t, err)

	resp, err := p.ReplaceAll(ctx, "edge", []domain.Address{"192.0.2.1", "192.0.2.2"})

	require.NoError(t, err)
	assert.Equal(t, domain.ResponseSuccess, resp.Status)
	addrs, _ := collect(t, p, "edge")
	assert.Equal(t, []string{"192.0.2.1", "192.0.2.2"}, addrs)
}

func TestMutate_UnsupportedOperation(t *testing.T) {
	p := sqlstore.New("db", memory.New(), 0)

	_, err := p.Mutate(context.Background(), "edge", "10.0.0.1", domain.OpReplace)

	assert.ErrorIs(t, err, domain.ErrUnsupported)
}
