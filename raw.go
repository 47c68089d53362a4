package chain

import (
	"context"
	"reflect"
	"time"

	"github.com/google/uuid"

	sqlutil "github.com/kintsdev/chain/internal/sqlutil"
)

// RawQuery is a caller-written statement. Rules are not applied to it.
type RawQuery struct {
	ds    *DataSource
	query string
	args  []any
	err   error
}

// Raw prepares sql with '?' placeholders, which are rewritten for the dialect
func (ds *DataSource) Raw(sql string, args ...any) *RawQuery {
	return &RawQuery{ds: ds, query: sqlutil.ConvertQMarks(sql, ds.dialect.Placeholder), args: args}
}

// RawNamed prepares sql with :name placeholders; slice values expand to lists
func (ds *DataSource) RawNamed(sql string, namedArgs map[string]any) *RawQuery {
	conv, ordered, err := sqlutil.ConvertNamed(sql, namedArgs)
	if err != nil {
		return &RawQuery{ds: ds, query: sql, err: &ORMError{Code: ErrCodeValidation, Message: err.Error(), Internal: err, Query: sql}}
	}
	return ds.Raw(conv, ordered...)
}

// Exec executes the statement and returns the number of affected rows
func (r *RawQuery) Exec(ctx context.Context) (int64, error) {
	if r.err != nil {
		return 0, r.err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ds := r.ds
	started := time.Now()
	var n int64
	err := ds.withRetry(ctx, func() error {
		var e error
		n, e = ds.exec.Exec(ctx, r.query, r.args...)
		return e
	})
	err = wrapError(err, r.query, r.args)
	ds.observe(ctx, r.entry(started, n, err))
	return n, err
}

// Find executes the statement and scans every row into dest (see QueryBuilder.Find)
func (r *RawQuery) Find(ctx context.Context, dest any) error {
	if r.err != nil {
		return r.err
	}
	rv := reflect.ValueOf(dest)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return &ORMError{Code: ErrCodeValidation, Message: "dest must be a non-nil pointer"}
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ds := r.ds
	started := time.Now()
	var n int64
	err := ds.withRetry(ctx, func() error {
		rows, err := ds.exec.Query(ctx, r.query, r.args...)
		if err != nil {
			return err
		}
		if rv.Elem().Kind() == reflect.Slice {
			rv.Elem().SetLen(0)
		}
		n, err = scanRows(rows, dest)
		return err
	})
	err = wrapError(err, r.query, r.args)
	ds.observe(ctx, r.entry(started, n, err))
	return err
}

func (r *RawQuery) entry(started time.Time, n int64, err error) AuditEntry {
	return AuditEntry{
		ExecutionID: uuid.New(),
		Action:      AuditActionRaw,
		Query:       r.query,
		Args:        r.args,
		User:        r.ds.user,
		Duration:    time.Since(started),
		Rows:        n,
		Err:         err,
	}
}
