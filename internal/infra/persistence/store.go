// Package persistence holds the connection shared by the SQL-backed journal and fill stores.
package persistence

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/coachpo/orderbroker/errs"
)

// Store owns the pgx pool. Repositories in subpackages borrow it.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wraps pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Pool returns the underlying pool, or nil.
func (s *Store) Pool() *pgxpool.Pool {
	if s == nil {
		return nil
	}
	return s.pool
}

// Ping reports whether the database answers. A store without a pool is never ready.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.pool == nil {
		return errs.New("", errs.CodeUnavailable, errs.WithMessage("database pool not configured"))
	}
	if err := s.pool.Ping(ctx); err != nil {
		return errs.New("", errs.CodeUnavailable, errs.WithMessage("database ping"), errs.WithCause(err))
	}
	return nil
}

// Close releases the pool when one is held.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}
