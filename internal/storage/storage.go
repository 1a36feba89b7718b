package storage

import (
	"context"

	"github.com/bcnelson/ipsync/internal/domain"
)

// Storage defines the interface for the storage layer.
// Implementations must be safe for concurrent use.
type Storage interface {
	Store

	// Close closes the storage connection.
	Close() error

	// BeginTx starts a new transaction.
	BeginTx(ctx context.Context) (Transaction, error)
}

// Transaction groups writes that must apply atomically.
type Transaction interface {
	Store

	Commit() error
	Rollback() error
}

// Store holds the operations available both on the storage and within a transaction.
type Store interface {
	// Address sets
	EnsureAddressSet(ctx context.Context, name string) (*domain.AddressSet, error)
	GetAddressSetByName(ctx context.Context, name string) (*domain.AddressSet, error)
	ListAddressSets(ctx context.Context) ([]*domain.AddressSet, error)
	TouchAddressSet(ctx context.Context, id string) error

	// Members, ordered by address. ListMembers returns at most limit addresses
	// strictly after the given one ("" starts from the beginning).
	ListMembers(ctx context.Context, setID, after string, limit int) ([]string, error)
	AddMember(ctx context.Context, setID, address string) error
	RemoveMember(ctx context.Context, setID, address string) error
	DeleteAllMembers(ctx context.Context, setID string) error
}
