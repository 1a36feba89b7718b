package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/bcnelson/ipsync/internal/domain"
	"github.com/bcnelson/ipsync/internal/storage"
	"github.com/google/uuid"
)

// Store is an in-memory implementation of the storage interface for testing.
type Store struct {
	mu sync.RWMutex

	sets    map[string]*domain.AddressSet // key: name
	members map[string]map[string]bool    // key: setID -> address
}

// Ensure Store implements Storage.
var _ storage.Storage = (*Store)(nil)

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		sets:    make(map[string]*domain.AddressSet),
		members: make(map[string]map[string]bool),
	}
}

func (s *Store) Close() error { return nil }

func (s *Store) BeginTx(ctx context.Context) (storage.Transaction, error) {
	return &Tx{Store: s}, nil
}

// Tx is a no-op transaction for in-memory store. Writes apply immediately.
type Tx struct {
	*Store
}

func (t *Tx) Commit() error   { return nil }
func (t *Tx) Rollback() error { return nil }

// ============================================
// Address Sets
// ============================================

func (s *Store) EnsureAddressSet(ctx context.Context, name string) (*domain.AddressSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if set, ok := s.sets[name]; ok {
		c := *set
		return &c, nil
	}
	now := time.Now().UTC()
	set := &domain.AddressSet{ID: uuid.New().String(), Name: name, CreatedAt: now, UpdatedAt: now}
	s.sets[name] = set
	s.members[set.ID] = make(map[string]bool)
	c := *set
	return &c, nil
}

func (s *Store) GetAddressSetByName(ctx context.Context, name string) (*domain.AddressSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	set, ok := s.sets[name]
	if !ok {
		return nil, domain.ErrNotFound
	}
	c := *set
	return &c, nil
}

func (s *Store) ListAddressSets(ctx context.Context) ([]*domain.AddressSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.AddressSet, 0, len(s.sets))
	for _, set := range s.sets {
		c := *set
		result = append(result, &c)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

func (s *Store) TouchAddressSet(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, set := range s.sets {
		if set.ID == id {
			set.UpdatedAt = time.Now().UTC()
			return nil
		}
	}
	return domain.ErrNotFound
}

// ============================================
// Members
// ============================================

func (s *Store) ListMembers(ctx context.Context, setID, after string, limit int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var addrs []string
	for addr := range s.members[setID] {
		if addr > after {
			addrs = append(addrs, addr)
		}
	}
	sort.Strings(addrs)
	if limit > 0 && len(addrs) > limit {
		addrs = addrs[:limit]
	}
	return addrs, nil
}

func (s *Store) AddMember(ctx context.Context, setID, address string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	members, ok := s.members[setID]
	if !ok {
		return domain.ErrNotFound
	}
	if members[address] {
		return domain.ErrAlreadyExists
	}
	members[address] = true
	return nil
}

func (s *Store) RemoveMember(ctx context.Context, setID, address string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.members[setID][address] {
		return domain.ErrNotFound
	}
	delete(s.members[setID], address)
	return nil
}

func (s *Store) DeleteAllMembers(ctx context.Context, setID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.members[setID]; ok {
		s.members[setID] = make(map[string]bool)
	}
	return nil
}
