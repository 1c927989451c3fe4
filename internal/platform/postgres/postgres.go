// Package postgres provides the pgxpool connection and durable-store
// error mapping shared by the quota store and reservation store.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"reservation-core/internal/pkg/errs"
)

// Connect opens a pgxpool against dsn and verifies connectivity.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: new pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return pool, nil
}

// MapNotFound converts pgx.ErrNoRows into the taxonomy's NotFound error
// for the named entity; any other error is wrapped as Transient.
func MapNotFound(err error, entity, id string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return errs.NotFound(entity, id)
	}
	return errs.Transient(fmt.Sprintf("%s store error", entity), err)
}
