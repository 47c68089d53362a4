package chain

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/google/uuid"

	core "github.com/kintsdev/chain/internal/core"
	sqlutil "github.com/kintsdev/chain/internal/sqlutil"
	"github.com/kintsdev/chain/rules"
)

type softDeleteMode int

const (
	softModeDefault softDeleteMode = iota
	softModeWithDeleted
	softModeOnlyDeleted
)

// QueryBuilder builds a SELECT against one table. Soft deleted rows are hidden and
// restricted columns read as NULL according to the data source's rules.
type QueryBuilder struct {
	ds      *DataSource
	table   string
	model   reflect.Type
	columns []string
	wheres  []string
	args    []any
	orderBy string
	limit   int
	offset  int
	mode    softDeleteMode
	err     error
}

// From starts a query against table
func (ds *DataSource) From(table string) *QueryBuilder {
	return &QueryBuilder{ds: ds, table: table}
}

// Select sets the column list. Names matching a schema column are quoted; anything else
// is emitted as written.
func (qb *QueryBuilder) Select(columns ...string) *QueryBuilder {
	qb.columns = append(qb.columns, columns...)
	return qb
}

// Where adds a condition with '?' placeholders. Conditions are joined with AND.
func (qb *QueryBuilder) Where(condition string, args ...any) *QueryBuilder {
	qb.wheres = append(qb.wheres, condition)
	qb.args = append(qb.args, args...)
	return qb
}

// WhereCond adds a typed Condition built by helpers in conditions.go
func (qb *QueryBuilder) WhereCond(c Condition) *QueryBuilder {
	return qb.Where(c.Expr, c.Args...)
}

// WhereNamed adds a condition with :name placeholders; slice values expand to lists
func (qb *QueryBuilder) WhereNamed(condition string, namedArgs map[string]any) *QueryBuilder {
	conv, ordered, err := sqlutil.ConvertNamed(condition, namedArgs)
	if err != nil {
		// surfaced at execution
		if qb.err == nil {
			qb.err = &ORMError{Code: ErrCodeValidation, Message: err.Error(), Internal: err, Query: condition}
		}
		return qb
	}
	return qb.Where(conv, ordered...)
}

func (qb *QueryBuilder) OrderBy(ob string) *QueryBuilder { qb.orderBy = ob; return qb }
func (qb *QueryBuilder) Limit(n int) *QueryBuilder       { qb.limit = n; return qb }
func (qb *QueryBuilder) Offset(n int) *QueryBuilder      { qb.offset = n; return qb }

// WithDeletedRows disables the soft delete filter
func (qb *QueryBuilder) WithDeletedRows() *QueryBuilder { qb.mode = softModeWithDeleted; return qb }

// OnlyDeletedRows returns soft deleted rows only
func (qb *QueryBuilder) OnlyDeletedRows() *QueryBuilder { qb.mode = softModeOnlyDeleted; return qb }

// withModel sets the struct type used to derive the schema when dest does not carry one
func (qb *QueryBuilder) withModel(t reflect.Type) *QueryBuilder { qb.model = t; return qb }

// plan resolves the schema and the rule-driven shaping of the query
func (qb *QueryBuilder) plan(dest any) (*rules.SelectPlan, error) {
	if qb.err != nil {
		return nil, qb.err
	}
	if strings.TrimSpace(qb.table) == "" {
		return nil, &ORMError{Code: ErrCodeConfiguration, Message: "table name is empty"}
	}
	model := any(qb.model)
	if qb.model == nil {
		model = destModel(dest)
	}
	table, ok := qb.ds.tableFor(qb.table, model)
	if !ok {
		if qb.ds.rules.ShapesReads(qb.table) {
			return nil, &ORMError{Code: ErrCodeConfiguration, Message: fmt.Sprintf("rules apply to reads of %s but it has no schema: scan into a struct or register it with WithTableSchema", qb.table)}
		}
		return &rules.SelectPlan{}, nil
	}
	return qb.ds.rules.PlanSelect(qb.ds.request(table, nil)), nil
}

// destModel returns the struct type behind dest, or nil for map destinations
func destModel(dest any) any {
	if dest == nil {
		return nil
	}
	t := core.Deref(reflect.TypeOf(dest))
	if t.Kind() == reflect.Slice {
		t = core.Deref(t.Elem())
	}
	if t.Kind() != reflect.Struct {
		return nil
	}
	return t
}

// where renders the caller's conditions and the soft delete filters
func (qb *QueryBuilder) where(plan *rules.SelectPlan) (string, []any) {
	ds := qb.ds
	filtered := len(plan.SoftDeleteFilters) > 0 && qb.mode != softModeWithDeleted
	preds := make([]string, 0, len(qb.wheres)+1)
	for _, w := range qb.wheres {
		if len(qb.wheres) > 1 || filtered {
			w = "(" + w + ")"
		}
		preds = append(preds, w)
	}
	args := append([]any(nil), qb.args...)
	if filtered {
		switch qb.mode {
		case softModeDefault:
			for _, f := range plan.SoftDeleteFilters {
				col := ds.dialect.Quote(f.Column.SQLName)
				preds = append(preds, "("+col+" IS NULL OR "+col+" <> ?)")
				args = append(args, f.Value)
			}
		case softModeOnlyDeleted:
			only := make([]string, 0, len(plan.SoftDeleteFilters))
			for _, f := range plan.SoftDeleteFilters {
				only = append(only, ds.dialect.Quote(f.Column.SQLName)+" = ?")
				args = append(args, f.Value)
			}
			preds = append(preds, "("+strings.Join(only, " OR ")+")")
		}
	}
	return strings.Join(preds, " AND "), args
}

func (qb *QueryBuilder) selectList(plan *rules.SelectPlan) string {
	ds := qb.ds
	cols := qb.columns
	if len(cols) == 0 && plan.Table != nil {
		for _, c := range plan.Table.Columns {
			cols = append(cols, c.SQLName)
		}
	}
	if len(cols) == 0 {
		return "*"
	}
	out := make([]string, 0, len(cols))
	for _, c := range cols {
		if isStar(c) && len(plan.Restricted) > 0 {
			out = append(out, ds.expandStar(plan, c)...)
			continue
		}
		out = append(out, ds.selectColumn(plan, c))
	}
	return strings.Join(out, ", ")
}

func (qb *QueryBuilder) buildSelect(plan *rules.SelectPlan) (string, []any, error) {
	prefix, suffix, err := qb.ds.dialect.Paginate(qb.limit, qb.offset, qb.orderBy)
	if err != nil {
		return "", nil, &ORMError{Code: ErrCodeConfiguration, Message: err.Error(), Internal: err}
	}
	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(prefix)
	sb.WriteString(qb.selectList(plan))
	sb.WriteString(" FROM ")
	sb.WriteString(qb.ds.quote(qb.table))
	where, args := qb.where(plan)
	if where != "" {
		sb.WriteString(" WHERE ")
		sb.WriteString(where)
	}
	if qb.orderBy != "" {
		sb.WriteString(" ORDER BY ")
		sb.WriteString(qb.orderBy)
	}
	sb.WriteString(suffix)
	return sqlutil.ConvertQMarks(sb.String(), qb.ds.dialect.Placeholder), args, nil
}

func (qb *QueryBuilder) logShaping(plan *rules.SelectPlan) {
	ds := qb.ds
	if ds.opts.logMode < LogDebug {
		return
	}
	if len(plan.Restricted) > 0 {
		cols := make([]string, 0, len(plan.Restricted))
		for c := range plan.Restricted {
			cols = append(cols, c)
		}
		ds.opts.logger.Debug("restricted columns read as NULL", Field{Key: "table", Value: qb.table}, Field{Key: "columns", Value: cols})
	}
	if len(plan.SoftDeleteFilters) > 0 && qb.mode != softModeWithDeleted {
		ds.opts.logger.Debug("soft delete filter applied", Field{Key: "table", Value: qb.table})
	}
}

// query executes a built statement and hands the rows to scan
func (qb *QueryBuilder) query(ctx context.Context, query string, args []any, scan func(rowSet) (int64, error)) error {
	ds := qb.ds
	if ctx == nil {
		ctx = context.Background()
	}
	started := time.Now()
	var n int64
	err := ds.withRetry(ctx, func() error {
		rows, err := ds.exec.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		n, err = scan(rows)
		return err
	})
	err = wrapError(err, query, args)
	ds.observe(ctx, AuditEntry{
		ExecutionID: uuid.New(),
		Action:      AuditActionSelect,
		Table:       qb.table,
		Query:       query,
		Args:        args,
		User:        ds.user,
		Duration:    time.Since(started),
		Rows:        n,
		Err:         err,
	})
	return err
}

// Find runs the query and scans into dest: a pointer to a slice of structs (or struct
// pointers) or *[]map[string]any
func (qb *QueryBuilder) Find(ctx context.Context, dest any) error {
	rv := reflect.ValueOf(dest)
	if rv.Kind() != reflect.Ptr || rv.IsNil() || rv.Elem().Kind() != reflect.Slice {
		return &ORMError{Code: ErrCodeValidation, Message: "dest must be pointer to slice"}
	}
	plan, err := qb.plan(dest)
	if err != nil {
		return err
	}
	query, args, err := qb.buildSelect(plan)
	if err != nil {
		return err
	}
	qb.logShaping(plan)
	return qb.query(ctx, query, args, func(rows rowSet) (int64, error) {
		// a retried attempt starts from an empty slice
		rv.Elem().SetLen(0)
		return scanRowsHiding(rows, dest, plan.Restricted)
	})
}

// First applies LIMIT 1 and scans the first row into dest (pointer to struct or
// *map[string]any). It returns a NotFound ORMError when no row matches.
func (qb *QueryBuilder) First(ctx context.Context, dest any) error {
	rv := reflect.ValueOf(dest)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return &ORMError{Code: ErrCodeValidation, Message: "dest must be a non-nil pointer"}
	}
	qb.limit = 1
	plan, err := qb.plan(dest)
	if err != nil {
		return err
	}
	query, args, err := qb.buildSelect(plan)
	if err != nil {
		return err
	}
	qb.logShaping(plan)
	var found int64
	err = qb.query(ctx, query, args, func(rows rowSet) (int64, error) {
		n, err := scanRowsHiding(rows, dest, plan.Restricted)
		found = n
		return n, err
	})
	if err != nil {
		return err
	}
	if found == 0 {
		return errNotFound(query, args)
	}
	return nil
}

// Count returns the number of rows matching the query, honoring the soft delete filter
func (qb *QueryBuilder) Count(ctx context.Context) (int64, error) {
	plan, err := qb.plan(nil)
	if err != nil {
		return 0, err
	}
	var sb strings.Builder
	sb.WriteString("SELECT COUNT(*) FROM ")
	sb.WriteString(qb.ds.quote(qb.table))
	where, args := qb.where(plan)
	if where != "" {
		sb.WriteString(" WHERE ")
		sb.WriteString(where)
	}
	query := sqlutil.ConvertQMarks(sb.String(), qb.ds.dialect.Placeholder)
	var count int64
	err = qb.query(ctx, query, args, func(rows rowSet) (int64, error) {
		defer rows.Close()
		if rows.Next() {
			vals, err := rows.Values()
			if err != nil {
				return 0, err
			}
			if len(vals) > 0 {
				if count, err = toInt64(vals[0]); err != nil {
					return 0, err
				}
			}
		}
		return 1, rows.Err()
	})
	return count, err
}

// Exists reports whether any row matches the query
func (qb *QueryBuilder) Exists(ctx context.Context) (bool, error) {
	n, err := qb.Count(ctx)
	return n > 0, err
}
