// Package postgres provides the PostgreSQL-backed Store adapter.
//
// It implements the scheduling subsystem's durable persistence port on top
// of a minimal pgx pool interface, with explicit transaction management and
// OpenTelemetry span instrumentation per operation.
package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PgxPool is a minimal subset of pgxpool used by the Store for easy testing.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// Store persists and loads scheduling entities from PostgreSQL using a
// minimal pgx pool, implementing domain.Store.
type Store struct{ Pool PgxPool }

// NewStore constructs a Store with the given pool.
func NewStore(p PgxPool) *Store { return &Store{Pool: p} }

// Ping verifies connectivity, used by readiness checks.
func (s *Store) Ping(ctx context.Context) error {
	row := s.Pool.QueryRow(ctx, "SELECT 1")
	var one int
	return row.Scan(&one)
}
