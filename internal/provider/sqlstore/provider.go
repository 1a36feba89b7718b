// Package sqlstore exposes database-backed address sets as a provider.
// Collections are address set names; sets are created on first write.
package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/bcnelson/ipsync/internal/domain"
	"github.com/bcnelson/ipsync/internal/provider"
	"github.com/bcnelson/ipsync/internal/storage"
)

// DefaultPageSize is the keyset page size used for listing.
const DefaultPageSize = 500

// Provider reads and writes address sets through a storage.Storage.
type Provider struct {
	name     string
	store    storage.Storage
	pageSize int
}

var (
	_ provider.Lister   = (*Provider)(nil)
	_ provider.Mutator  = (*Provider)(nil)
	_ provider.Replacer = (*Provider)(nil)
)

// New creates a provider over store. A non-positive pageSize uses the default.
func New(name string, store storage.Storage, pageSize int) *Provider {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Provider{name: name, store: store, pageSize: pageSize}
}

// Name returns the provider name.
func (p *Provider) Name() string { return p.name }

// StartCursor returns the keyset cursor of the first page.
func (p *Provider) StartCursor(string) string { return "" }

// FetchPage lists members strictly after cursor. A set that does not exist yet
// is empty.
func (p *Provider) FetchPage(ctx context.Context, collection, cursor string) (domain.Page, *domain.Response, error) {
	set, err := p.store.GetAddressSetByName(ctx, collection)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.Page{}, domain.OK(http.StatusOK), nil
	}
	if err != nil {
		return domain.Page{}, nil, fmt.Errorf("getting address set %q: %w", collection, err)
	}

	addrs, err := p.store.ListMembers(ctx, set.ID, cursor, p.pageSize)
	if err != nil {
		return domain.Page{}, nil, fmt.Errorf("listing members of %q: %w", collection, err)
	}

	page := domain.Page{Specs: addrs}
	if len(addrs) == p.pageSize {
		page.Next = addrs[len(addrs)-1]
	}
	return page, domain.OK(http.StatusOK), nil
}

// Mutate adds or removes one member. Adding a present member and removing an
// absent one both succeed.
func (p *Provider) Mutate(ctx context.Context, collection string, addr domain.Address, op domain.Operation) (*domain.Response, error) {
	set, err := p.store.EnsureAddressSet(ctx, collection)
	if err != nil {
		return nil, fmt.Errorf("ensuring address set %q: %w", collection, err)
	}

	switch op {
	case domain.OpAdd:
		err = p.store.AddMember(ctx, set.ID, string(addr))
		if errors.Is(err, domain.ErrAlreadyExists) {
			return domain.OK(http.StatusOK), nil
		}
		if err != nil {
			return nil, fmt.Errorf("adding %s to %q: %w", addr, collection, err)
		}
		if err := p.store.TouchAddressSet(ctx, set.ID); err != nil {
			return nil, err
		}
		return domain.OK(http.StatusCreated), nil
	case domain.OpRemove:
		err = p.store.RemoveMember(ctx, set.ID, string(addr))
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("removing %s from %q: %w", addr, collection, err)
		}
		if err := p.store.TouchAddressSet(ctx, set.ID); err != nil {
			return nil, err
		}
		return domain.OK(http.StatusOK), nil
	default:
		return nil, fmt.Errorf("operation %q: %w", op, domain.ErrUnsupported)
	}
}

// ReplaceAll swaps the members of collection inside one transaction.
func (p *Provider) ReplaceAll(ctx context.Context, collection string, addrs []domain.Address) (*domain.Response, error) {
	tx, err := p.store.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	set, err := tx.EnsureAddressSet(ctx, collection)
	if err != nil {
		return nil, fmt.Errorf("ensuring address set %q: %w", collection, err)
	}
	if err := tx.DeleteAllMembers(ctx, set.ID); err != nil {
		return nil, fmt.Errorf("clearing %q: %w", collection, err)
	}
	for _, addr := range addrs {
		if err := tx.AddMember(ctx, set.ID, string(addr)); err != nil && !errors.Is(err, domain.ErrAlreadyExists) {
			return nil, fmt.Errorf("adding %s to %q: %w", addr, collection, err)
		}
	}
	if err := tx.TouchAddressSet(ctx, set.ID); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing replace of %q: %w", collection, err)
	}
	return domain.OK(http.StatusOK), nil
}
