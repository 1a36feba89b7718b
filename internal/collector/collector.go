// Package collector assembles a complete inventory from a cursor-linked,
// paginated listing.
package collector

import (
	"context"
	"fmt"
	"math/big"

	"github.com/bcnelson/ipsync/internal/address"
	"github.com/bcnelson/ipsync/internal/domain"
	"github.com/rs/zerolog"
)

// FetchFunc fetches the page at cursor.
type FetchFunc func(ctx context.Context, cursor string) (domain.Page, error)

// Rejected is an address spec that could not be expanded.
type Rejected struct {
	Spec string
	Err  error
}

// Result is a complete inventory plus the specs that were rejected on the way.
type Result struct {
	Inventory domain.Inventory
	Rejected  []Rejected
	Pages     int
}

// Collector walks paginated listings.
type Collector struct {
	logger       zerolog.Logger
	maxAddresses int
}

// Option configures a Collector.
type Option func(*Collector)

// WithMaxAddresses fails a collection whose inventory would hold more than n
// addresses. Zero means no limit.
func WithMaxAddresses(n int) Option {
	return func(c *Collector) { c.maxAddresses = n }
}

// New creates a Collector.
func New(logger zerolog.Logger, opts ...Option) *Collector {
	c := &Collector{logger: logger}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Collect fetches pages starting at start until a page has no next cursor.
// The inventory is only returned once every page has been read; any fetch
// failure returns a *domain.CollectionError and no inventory.
func (c *Collector) Collect(ctx context.Context, provider, collection, start string, fetch FetchFunc) (*Result, error) {
	res := &Result{Inventory: make(domain.Inventory)}
	seen := map[string]bool{}

	cursor := start
	for {
		if seen[cursor] {
			return nil, &domain.CollectionError{
				Provider:   provider,
				Collection: collection,
				Cursor:     cursor,
				Err:        fmt.Errorf("pagination loop: cursor %q was already visited", cursor),
			}
		}
		seen[cursor] = true

		page, err := fetch(ctx, cursor)
		if err != nil {
			return nil, &domain.CollectionError{Provider: provider, Collection: collection, Cursor: cursor, Err: err}
		}
		res.Pages++

		for _, spec := range page.Specs {
			if err := c.checkLimit(spec); err != nil {
				return nil, &domain.CollectionError{Provider: provider, Collection: collection, Cursor: cursor, Err: err}
			}
			if err := address.Each(spec, res.Inventory.Add); err != nil {
				c.logger.Warn().
					Str("provider", provider).
					Str("collection", collection).
					Str("spec", spec).
					Err(err).
					Msg("Skipping unexpandable address spec")
				res.Rejected = append(res.Rejected, Rejected{Spec: spec, Err: err})
			}
		}

		if c.maxAddresses > 0 && res.Inventory.Len() > c.maxAddresses {
			return nil, &domain.CollectionError{
				Provider:   provider,
				Collection: collection,
				Cursor:     cursor,
				Err:        fmt.Errorf("inventory exceeds %d addresses", c.maxAddresses),
			}
		}

		if page.Next == "" {
			break
		}
		cursor = page.Next
	}

	c.logger.Debug().
		Str("provider", provider).
		Str("collection", collection).
		Int("pages", res.Pages).
		Int("addresses", res.Inventory.Len()).
		Msg("Collected inventory")

	return res, nil
}

// checkLimit rejects a spec that alone denotes more addresses than the limit,
// before it is enumerated. Unparsable specs are left to the expander.
func (c *Collector) checkLimit(spec string) error {
	if c.maxAddresses <= 0 {
		return nil
	}
	n, err := address.Count(spec)
	if err != nil {
		return nil
	}
	if n.Cmp(big.NewInt(int64(c.maxAddresses))) > 0 {
		return fmt.Errorf("address spec %q denotes %s addresses, more than the limit of %d", spec, n, c.maxAddresses)
	}
	return nil
}
