package chain

import (
	"context"
	"database/sql"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// executor abstracts pgxpool.Pool, pgx.Tx, *sql.DB and *sql.Tx
type executor interface {
	Exec(ctx context.Context, query string, args ...any) (int64, error)
	Query(ctx context.Context, query string, args ...any) (rowSet, error)
}

// rowSet is the cursor shared by both driver families
type rowSet interface {
	Next() bool
	Columns() ([]string, error)
	Values() ([]any, error)
	Err() error
	Close() error
}

// pgxQuerier is implemented by *pgxpool.Pool, *pgx.Conn and pgx.Tx
type pgxQuerier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

type pgxExecutor struct{ q pgxQuerier }

func (e pgxExecutor) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	tag, err := e.q.Exec(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (e pgxExecutor) Query(ctx context.Context, query string, args ...any) (rowSet, error) {
	rows, err := e.q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return pgxRows{rows}, nil
}

type pgxRows struct{ pgx.Rows }

func (r pgxRows) Columns() ([]string, error) {
	fds := r.FieldDescriptions()
	out := make([]string, len(fds))
	for i, fd := range fds {
		out[i] = fd.Name
	}
	return out, nil
}

func (r pgxRows) Close() error {
	r.Rows.Close()
	return r.Rows.Err()
}

// sqlQuerier is implemented by *sql.DB, *sql.Conn and *sql.Tx
type sqlQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

type sqlExecutor struct{ q sqlQuerier }

func (e sqlExecutor) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := e.q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		// some drivers cannot report affected rows; the statement itself succeeded
		return 0, nil
	}
	return n, nil
}

func (e sqlExecutor) Query(ctx context.Context, query string, args ...any) (rowSet, error) {
	rows, err := e.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return &sqlRows{Rows: rows}, nil
}

type sqlRows struct {
	*sql.Rows
	cols []string
}

func (r *sqlRows) Columns() ([]string, error) {
	if r.cols == nil {
		cols, err := r.Rows.Columns()
		if err != nil {
			return nil, err
		}
		r.cols = cols
	}
	return r.cols, nil
}

func (r *sqlRows) Values() ([]any, error) {
	cols, err := r.Columns()
	if err != nil {
		return nil, err
	}
	vals := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	if err := r.Scan(ptrs...); err != nil {
		return nil, err
	}
	return vals, nil
}

// breakerExecuter wraps an executor with circuit breaker checks
type breakerExecuter struct {
	breaker *circuitBreaker
	exec    executor
}

func (b breakerExecuter) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	if err := b.breaker.before(); err != nil {
		return 0, err
	}
	n, err := b.exec.Exec(ctx, query, args...)
	b.breaker.after(err)
	return n, err
}

func (b breakerExecuter) Query(ctx context.Context, query string, args ...any) (rowSet, error) {
	if err := b.breaker.before(); err != nil {
		return nil, err
	}
	rows, err := b.exec.Query(ctx, query, args...)
	b.breaker.after(err)
	return rows, err
}

func withBreaker(exec executor, cb *circuitBreaker) executor {
	if cb == nil {
		return exec
	}
	return breakerExecuter{breaker: cb, exec: exec}
}
