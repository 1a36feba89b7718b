// Package memory is an in-memory provider. It backs addresses declared inline
// in the pairings file and serves as the provider fake in tests.
package memory

import (
	"context"
	"net/http"
	"strconv"
	"sync"

	"github.com/bcnelson/ipsync/internal/domain"
	"github.com/bcnelson/ipsync/internal/provider"
)

// DefaultPageSize is the number of specs returned per page.
const DefaultPageSize = 100

// InterceptFunc may answer a call before the store is touched. Returning a nil
// response and nil error lets the call proceed normally.
type InterceptFunc func(collection string, addr domain.Address, op domain.Operation) (*domain.Response, error)

// Provider keeps collections of address specs in memory.
type Provider struct {
	name     string
	pageSize int

	mu        sync.RWMutex
	sets      map[string][]string // key: collection, ordered specs
	intercept InterceptFunc
	calls     []Call
}

// Call is one recorded mutation.
type Call struct {
	Collection string
	Operation  domain.Operation
	Addresses  []domain.Address
}

// Ensure Provider implements every capability.
var (
	_ provider.Lister   = (*Provider)(nil)
	_ provider.Mutator  = (*Provider)(nil)
	_ provider.Replacer = (*Provider)(nil)
)

// New creates an empty provider.
func New(name string) *Provider {
	return &Provider{
		name:     name,
		pageSize: DefaultPageSize,
		sets:     make(map[string][]string),
	}
}

// WithPageSize sets the listing page size.
func (p *Provider) WithPageSize(n int) *Provider {
	if n > 0 {
		p.pageSize = n
	}
	return p
}

// Intercept installs a hook consulted before every page fetch and mutation.
func (p *Provider) Intercept(fn InterceptFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.intercept = fn
}

// Seed appends specs to collection.
func (p *Provider) Seed(collection string, specs ...string) *Provider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sets[collection] = append(p.sets[collection], specs...)
	return p
}

// Specs returns a copy of the stored specs of collection.
func (p *Provider) Specs(collection string) []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]string(nil), p.sets[collection]...)
}

// Calls returns the recorded mutations.
func (p *Provider) Calls() []Call {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]Call(nil), p.calls...)
}

// Name returns the provider name.
func (p *Provider) Name() string { return p.name }

// StartCursor returns the offset of the first page.
func (p *Provider) StartCursor(string) string { return "0" }

// FetchPage returns up to pageSize specs starting at the offset in cursor.
func (p *Provider) FetchPage(_ context.Context, collection, cursor string) (domain.Page, *domain.Response, error) {
	if resp, err := p.intercepted(collection, "", ""); resp != nil || err != nil {
		return domain.Page{}, resp, err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	offset, err := strconv.Atoi(cursor)
	if err != nil || offset < 0 {
		return domain.Page{}, &domain.Response{Status: domain.ResponseError, HTTPStatus: http.StatusBadRequest, Message: "invalid cursor " + cursor}, nil
	}
	specs := p.sets[collection]
	if offset > len(specs) {
		offset = len(specs)
	}
	end := offset + p.pageSize
	if end > len(specs) {
		end = len(specs)
	}

	page := domain.Page{Specs: append([]string(nil), specs[offset:end]...)}
	if end < len(specs) {
		page.Next = strconv.Itoa(end)
	}
	return page, domain.OK(http.StatusOK), nil
}

// Mutate adds or removes one address.
func (p *Provider) Mutate(_ context.Context, collection string, addr domain.Address, op domain.Operation) (*domain.Response, error) {
	if resp, err := p.intercepted(collection, addr, op); resp != nil || err != nil {
		return resp, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.calls = append(p.calls, Call{Collection: collection, Operation: op, Addresses: []domain.Address{addr}})
	switch op {
	case domain.OpAdd:
		p.sets[collection] = append(p.sets[collection], string(addr))
		return domain.OK(http.StatusCreated), nil
	case domain.OpRemove:
		kept := p.sets[collection][:0]
		for _, s := range p.sets[collection] {
			if s != string(addr) {
				kept = append(kept, s)
			}
		}
		p.sets[collection] = kept
		return domain.OK(http.StatusOK), nil
	default:
		return &domain.Response{Status: domain.ResponseError, HTTPStatus: http.StatusBadRequest, Message: "unsupported operation " + string(op)}, nil
	}
}

// ReplaceAll overwrites collection with addrs.
func (p *Provider) ReplaceAll(_ context.Context, collection string, addrs []domain.Address) (*domain.Response, error) {
	if resp, err := p.intercepted(collection, "", domain.OpReplace); resp != nil || err != nil {
		return resp, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	specs := make([]string, len(addrs))
	for i, a := range addrs {
		specs[i] = string(a)
	}
	p.sets[collection] = specs
	p.calls = append(p.calls, Call{Collection: collection, Operation: domain.OpReplace, Addresses: append([]domain.Address(nil), addrs...)})
	return domain.OK(http.StatusOK), nil
}

func (p *Provider) intercepted(collection string, addr domain.Address, op domain.Operation) (*domain.Response, error) {
	p.mu.RLock()
	fn := p.intercept
	p.mu.RUnlock()
	if fn == nil {
		return nil, nil
	}
	return fn(collection, addr, op)
}
