package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DBTX abstracts over a pool and a transaction so repositories can run in
// either scope.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore is the pgx-backed store implementation.
type PostgresStore struct {
	pool     *pgxpool.Pool
	db       DBTX
	entities *entityRepository
	versions *versionRepository
}

// NewPostgresStore creates a store bound to the connection pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{
		pool:     pool,
		db:       pool,
		entities: &entityRepository{db: pool},
		versions: &versionRepository{db: pool},
	}
}

// Entities returns the live entity repository.
func (s *PostgresStore) Entities() EntityRepository { return s.entities }

// Versions returns the version repository.
func (s *PostgresStore) Versions() VersionRepository { return s.versions }

// InTx runs fn inside a single database transaction. The store handed to fn
// shares the transaction; an error from fn rolls everything back.
func (s *PostgresStore) InTx(ctx context.Context, fn func(Store) error) error {
	if s.pool == nil {
		// Already transaction-scoped; nested calls join the outer tx.
		return fn(s)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to open transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	txStore := &PostgresStore{
		db:       tx,
		entities: &entityRepository{db: tx},
		versions: &versionRepository{db: tx},
	}

	if err := fn(txStore); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
