package repository

import (
	"context"
	"fmt"

	"arenaserver/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// queryable is satisfied by both the pool and a transaction
type queryable interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// storeError tags a driver failure with models.ErrStore
func storeError(action string, err error) error {
	return fmt.Errorf("%w: failed to %s: %w", models.ErrStore, action, err)
}
