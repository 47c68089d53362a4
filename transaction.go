package chain

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5"
)

// TxOptions configures a transaction
type TxOptions struct {
	ReadOnly bool
}

// Tx is a data source bound to one open transaction. It carries the rules and user of the
// data source that began it; derived data sources stay inside the transaction.
type Tx struct {
	*DataSource
	commit   func(ctx context.Context) error
	rollback func(ctx context.Context) error
}

func (t *Tx) Commit(ctx context.Context) error {
	return wrapError(t.commit(ctx), "COMMIT", nil)
}

func (t *Tx) Rollback(ctx context.Context) error {
	return wrapError(t.rollback(ctx), "ROLLBACK", nil)
}

// BeginTx starts a transaction. Statements inside it are never retried.
func (ds *DataSource) BeginTx(ctx context.Context, opts *TxOptions) (*Tx, error) {
	if ds.inTx {
		return nil, &ORMError{Code: ErrCodeTransaction, Message: "already in a transaction"}
	}
	if opts == nil {
		opts = &TxOptions{}
	}
	if ds.breaker != nil {
		if err := ds.breaker.before(); err != nil {
			return nil, wrapError(err, "BEGIN", nil)
		}
	}
	child := ds.clone()
	child.inTx = true
	tx := &Tx{DataSource: child}
	var err error
	switch {
	case ds.pool != nil:
		var ptx pgx.Tx
		mode := pgx.ReadWrite
		if opts.ReadOnly {
			mode = pgx.ReadOnly
		}
		ptx, err = ds.pool.BeginTx(ctx, pgx.TxOptions{AccessMode: mode})
		if err == nil {
			child.exec = withBreaker(pgxExecutor{q: ptx}, ds.breaker)
			tx.commit = ptx.Commit
			tx.rollback = ptx.Rollback
		}
	case ds.db != nil:
		var stx *sql.Tx
		stx, err = ds.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: opts.ReadOnly})
		if err == nil {
			child.exec = withBreaker(sqlExecutor{q: stx}, ds.breaker)
			tx.commit = func(context.Context) error { return stx.Commit() }
			tx.rollback = func(context.Context) error { return stx.Rollback() }
		}
	default:
		err = errors.New("data source has no connection")
	}
	if ds.breaker != nil {
		ds.breaker.after(err)
	}
	if err != nil {
		return nil, wrapError(err, "BEGIN", nil)
	}
	return tx, nil
}

// WithTransaction runs fn inside a transaction, committing when fn returns nil and rolling
// back otherwise. Called on a data source that is already in a transaction, fn joins it.
func (ds *DataSource) WithTransaction(ctx context.Context, fn func(tx *DataSource) error) error {
	if ds.inTx {
		return fn(ds)
	}
	tx, err := ds.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
	}()
	if err := fn(tx.DataSource); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}
