// Package store provides PostgreSQL-backed repositories for the service's
// relational state: namespaces, queued ingestion files, bot configuration,
// conversation history and meeting slot-filling sessions.
//
// Each repository depends on the small DB interface below rather than on
// *pgxpool.Pool directly, so tests can substitute a transaction or a mock.
package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the subset of pgxpool.Pool the repositories need.
// Both *pgxpool.Pool and pgx.Tx satisfy it.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// ErrNotFound indicates the requested row does not exist.
var ErrNotFound = errors.New("not found")

// wrapNoRows converts pgx.ErrNoRows into the package sentinel.
func wrapNoRows(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
