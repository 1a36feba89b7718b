// Package provider defines the capabilities the reconciliation core needs from
// an external inventory system. Authentication, endpoints and payload shapes
// live in the implementations.
package provider

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/bcnelson/ipsync/internal/domain"
)

// Lister lists one collection page by page. Each call is a single attempt;
// retries are the caller's concern.
type Lister interface {
	// Name identifies the provider instance in logs and reports.
	Name() string
	// StartCursor returns the cursor of the first page of collection.
	StartCursor(collection string) string
	// FetchPage returns the page at cursor. The page is only meaningful when the
	// response status is success.
	FetchPage(ctx context.Context, collection, cursor string) (domain.Page, *domain.Response, error)
}

// Mutator adds or removes one address at a time.
type Mutator interface {
	Mutate(ctx context.Context, collection string, addr domain.Address, op domain.Operation) (*domain.Response, error)
}

// Replacer replaces the whole address set of a collection in one call.
type Replacer interface {
	ReplaceAll(ctx context.Context, collection string, addrs []domain.Address) (*domain.Response, error)
}

// Capabilities reports which mutation styles p supports.
func Capabilities(p Lister) (mutate, replace bool) {
	_, mutate = p.(Mutator)
	_, replace = p.(Replacer)
	return mutate, replace
}

// Registry maps provider instance names to providers.
// Implementations must be safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Lister
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Lister)}
}

// Register adds p under p.Name().
func (r *Registry) Register(p Lister) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.providers[p.Name()]; exists {
		return fmt.Errorf("provider %q: %w", p.Name(), domain.ErrAlreadyExists)
	}
	r.providers[p.Name()] = p
	return nil
}

// Get returns the provider registered under name.
func (r *Registry) Get(name string) (Lister, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("provider %q: %w", name, domain.ErrNotFound)
	}
	return p, nil
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
