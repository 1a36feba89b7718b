package sql

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bcnelson/ipsync/internal/domain"
	"github.com/bcnelson/ipsync/internal/storage"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// isUniqueViolation checks if an error is a UNIQUE constraint violation.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	// SQLite
	if strings.Contains(errStr, "UNIQUE constraint failed") {
		return true
	}
	// PostgreSQL
	if strings.Contains(errStr, "duplicate key value violates unique constraint") {
		return true
	}
	return false
}

// wrapUniqueError converts UNIQUE violations to domain.ErrAlreadyExists.
func wrapUniqueError(err error) error {
	if isUniqueViolation(err) {
		return domain.ErrAlreadyExists
	}
	return err
}

// Store implements the storage.Storage interface using SQL.
type Store struct {
	db     *sqlx.DB
	driver string
}

// Ensure Store implements Storage.
var _ storage.Storage = (*Store)(nil)

// New creates a new SQL store and applies pending migrations.
// Supported drivers are "sqlite3" and "postgres".
func New(driver, dsn string) (*Store, error) {
	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	// SQLite allows a single writer; serialize to avoid "database is locked".
	if driver == "sqlite3" {
		db.SetMaxOpenConns(1)
	}

	// Run migrations
	goose.SetBaseFS(embedMigrations)
	if err := goose.SetDialect(driver); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("setting goose dialect: %w", err)
	}

	if err := goose.Up(db.DB, "migrations"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &Store{db: db, driver: driver}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// BeginTx starts a new transaction.
func (s *Store) BeginTx(ctx context.Context) (storage.Transaction, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &Tx{tx: tx}, nil
}

// Tx wraps a database transaction.
type Tx struct {
	tx *sqlx.Tx
}

// Commit commits the transaction.
func (t *Tx) Commit() error {
	return t.tx.Commit()
}

// Rollback rolls back the transaction.
func (t *Tx) Rollback() error {
	return t.tx.Rollback()
}

// helper to get the correct database interface
type dbInterface interface {
	sqlx.ExtContext
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// ============================================
// Address Sets
// ============================================

func getAddressSetByName(ctx context.Context, db dbInterface, name string) (*domain.AddressSet, error) {
	var set domain.AddressSet
	err := db.GetContext(ctx, &set,
		`SELECT id, name, created_at, updated_at FROM address_sets WHERE name = $1`, name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &set, nil
}

func (s *Store) GetAddressSetByName(ctx context.Context, name string) (*domain.AddressSet, error) {
	return getAddressSetByName(ctx, s.db, name)
}

func (t *Tx) GetAddressSetByName(ctx context.Context, name string) (*domain.AddressSet, error) {
	return getAddressSetByName(ctx, t.tx, name)
}

func ensureAddressSet(ctx context.Context, db dbInterface, name string) (*domain.AddressSet, error) {
	set, err := getAddressSetByName(ctx, db, name)
	if !errors.Is(err, domain.ErrNotFound) {
		return set, err
	}

	now := time.Now().UTC()
	set = &domain.AddressSet{ID: uuid.New().String(), Name: name, CreatedAt: now, UpdatedAt: now}
	_, err = db.ExecContext(ctx,
		`INSERT INTO address_sets (id, name, created_at, updated_at) VALUES ($1, $2, $3, $4)`,
		set.ID, set.Name, set.CreatedAt, set.UpdatedAt)
	if err := wrapUniqueError(err); err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			// Created concurrently.
			return getAddressSetByName(ctx, db, name)
		}
		return nil, err
	}
	return set, nil
}

func (s *Store) EnsureAddressSet(ctx context.Context, name string) (*domain.AddressSet, error) {
	return ensureAddressSet(ctx, s.db, name)
}

func (t *Tx) EnsureAddressSet(ctx context.Context, name string) (*domain.AddressSet, error) {
	return ensureAddressSet(ctx, t.tx, name)
}

func listAddressSets(ctx context.Context, db dbInterface) ([]*domain.AddressSet, error) {
	var sets []*domain.AddressSet
	err := db.SelectContext(ctx, &sets,
		`SELECT id, name, created_at, updated_at FROM address_sets ORDER BY name`)
	if err != nil {
		return nil, err
	}
	return sets, nil
}

func (s *Store) ListAddressSets(ctx context.Context) ([]*domain.AddressSet, error) {
	return listAddressSets(ctx, s.db)
}

func (t *Tx) ListAddressSets(ctx context.Context) ([]*domain.AddressSet, error) {
	return listAddressSets(ctx, t.tx)
}

func touchAddressSet(ctx context.Context, db dbInterface, id string) error {
	result, err := db.ExecContext(ctx,
		`UPDATE address_sets SET updated_at = $1 WHERE id = $2`, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *Store) TouchAddressSet(ctx context.Context, id string) error {
	return touchAddressSet(ctx, s.db, id)
}

func (t *Tx) TouchAddressSet(ctx context.Context, id string) error {
	return touchAddressSet(ctx, t.tx, id)
}

// ============================================
// Members
// ============================================

func listMembers(ctx context.Context, db dbInterface, setID, after string, limit int) ([]string, error) {
	var addrs []string
	err := db.SelectContext(ctx, &addrs,
		`SELECT address FROM address_set_members
		 WHERE set_id = $1 AND address > $2
		 ORDER BY address
		 LIMIT $3`, setID, after, limit)
	if err != nil {
		return nil, err
	}
	return addrs, nil
}

func (s *Store) ListMembers(ctx context.Context, setID, after string, limit int) ([]string, error) {
	return listMembers(ctx, s.db, setID, after, limit)
}

func (t *Tx) ListMembers(ctx context.Context, setID, after string, limit int) ([]string, error) {
	return listMembers(ctx, t.tx, setID, after, limit)
}

func addMember(ctx context.Context, db dbInterface, setID, address string) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO address_set_members (set_id, address, created_at) VALUES ($1, $2, $3)`,
		setID, address, time.Now().UTC())
	return wrapUniqueError(err)
}

func (s *Store) AddMember(ctx context.Context, setID, address string) error {
	return addMember(ctx, s.db, setID, address)
}

func (t *Tx) AddMember(ctx context.Context, setID, address string) error {
	return addMember(ctx, t.tx, setID, address)
}

func removeMember(ctx context.Context, db dbInterface, setID, address string) error {
	result, err := db.ExecContext(ctx,
		`DELETE FROM address_set_members WHERE set_id = $1 AND address = $2`, setID, address)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *Store) RemoveMember(ctx context.Context, setID, address string) error {
	return removeMember(ctx, s.db, setID, address)
}

func (t *Tx) RemoveMember(ctx context.Context, setID, address string) error {
	return removeMember(ctx, t.tx, setID, address)
}

func deleteAllMembers(ctx context.Context, db dbInterface, setID string) error {
	_, err := db.ExecContext(ctx, `DELETE FROM address_set_members WHERE set_id = $1`, setID)
	return err
}

func (s *Store) DeleteAllMembers(ctx context.Context, setID string) error {
	return deleteAllMembers(ctx, s.db, setID)
}

func (t *Tx) DeleteAllMembers(ctx context.Context, setID string) error {
	return deleteAllMembers(ctx, t.tx, setID)
}
