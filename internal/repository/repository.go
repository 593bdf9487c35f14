package repository

import (
	"context"
	"errors"

	"ikap-analysis/pkg/retry"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("not found")

// querier is the subset of *pgxpool.Pool the stores use.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var _ querier = (*pgxpool.Pool)(nil)

// store runs statements with retry on transient failures.
type store struct {
	db    querier
	retry retry.Config
}

func (s store) exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return retry.Do(ctx, s.retry, retry.IsTransient, func(ctx context.Context) (pgconn.CommandTag, error) {
		return s.db.Exec(ctx, sql, args...)
	})
}

// queryRow scans a single row. pgx.ErrNoRows becomes ErrNotFound and is not retried.
func (s store) queryRow(ctx context.Context, sql string, args []any, dest ...any) error {
	err := retry.Exec(ctx, s.retry, retry.IsTransient, func(ctx context.Context) error {
		err := s.db.QueryRow(ctx, sql, args...).Scan(dest...)
		if errors.Is(err, pgx.ErrNoRows) {
			return retry.Permanent(ErrNotFound)
		}
		return err
	})
	return err
}

// query runs sql and hands every row to scan. A retry restarts from the
// first row, so scan must tolerate being reset via reset.
func (s store) query(ctx context.Context, sql string, args []any, reset func(), scan func(pgx.Rows) error) error {
	return retry.Exec(ctx, s.retry, retry.IsTransient, func(ctx context.Context) error {
		reset()
		rows, err := s.db.Query(ctx, sql, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			if err := scan(rows); err != nil {
				return retry.Permanent(err)
			}
		}
		return rows.Err()
	})
}
