package chain

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kintsdev/chain/dialect"
	sqlutil "github.com/kintsdev/chain/internal/sqlutil"
	"github.com/kintsdev/chain/rules"
)

type writeOp int

const (
	opInsert writeOp = iota
	opUpdate
	opDelete
	opUpsert
)

func (op writeOp) String() string {
	switch op {
	case opInsert:
		return "insert"
	case opUpdate:
		return "update"
	case opUpsert:
		return "upsert"
	default:
		return "delete"
	}
}

// WriteCommand inserts, updates, upserts or deletes the row described by one argument object.
// Build it with DataSource.Insert, Update, Upsert or Delete.
type WriteCommand struct {
	ds        *DataSource
	op        writeOp
	table     string
	arg       any
	returning []string
}

// statement is a command after rule evaluation, ready to execute
type statement struct {
	action  AuditAction
	query   string
	args    []any
	keys    []rules.ColumnValue
	applied []*rules.Rule
	soft    bool
	empty   bool // nothing left to write
}

// Insert builds an INSERT of arg into table. Insert-scoped rules fill audit columns.
func (ds *DataSource) Insert(table string, arg any) *WriteCommand {
	return &WriteCommand{ds: ds, op: opInsert, table: table, arg: arg}
}

// Update builds an UPDATE of the row identified by arg's primary key
func (ds *DataSource) Update(table string, arg any) *WriteCommand {
	return &WriteCommand{ds: ds, op: opUpdate, table: table, arg: arg}
}

// Delete builds a DELETE of the row identified by arg's primary key. When the rules hold a
// delete-scoped soft delete rule for the table the delete is issued as an UPDATE.
func (ds *DataSource) Delete(table string, arg any) *WriteCommand {
	return &WriteCommand{ds: ds, op: opDelete, table: table, arg: arg}
}

// Upsert builds an INSERT of arg that updates the existing row when one with the same
// primary key is present. Inserted columns follow the insert rules and the columns
// overwritten on conflict follow the update rules, so insert-only audit columns keep their
// stored value. No argument hooks run. SQL Server and Access report a configuration error.
func (ds *DataSource) Upsert(table string, arg any) *WriteCommand {
	return &WriteCommand{ds: ds, op: opUpsert, table: table, arg: arg}
}

// Returning selects the columns read back by ExecInto. Without it every column is returned.
func (c *WriteCommand) Returning(cols ...string) *WriteCommand {
	c.returning = append(c.returning, cols...)
	return c
}

// Exec runs the command and returns the number of affected rows
func (c *WriteCommand) Exec(ctx context.Context) (int64, error) {
	return c.run(ctx, nil)
}

// ExecInto runs the command with a RETURNING clause and scans the returned rows into dest,
// which may be a pointer to a struct (often the argument itself), a pointer to a slice of
// structs or a *[]map[string]any. Restricted columns come back as NULL.
func (c *WriteCommand) ExecInto(ctx context.Context, dest any) (int64, error) {
	if dest == nil {
		return 0, &ORMError{Code: ErrCodeValidation, Message: "dest is nil"}
	}
	return c.run(ctx, dest)
}

func (c *WriteCommand) run(ctx context.Context, dest any) (int64, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ds := c.ds
	if c.arg == nil {
		return 0, &ORMError{Code: ErrCodeValidation, Message: fmt.Sprintf("%s %s: nil argument", c.op, c.table)}
	}
	if dest != nil && !ds.dialect.SupportsReturning() {
		return 0, &ORMError{Code: ErrCodeConfiguration, Message: ds.dialect.Name() + " does not support RETURNING"}
	}
	if err := runBeforeHook(ctx, c.op, c.arg); err != nil {
		return 0, err
	}
	table, err := ds.requireTable(c.table, c.arg)
	if err != nil {
		return 0, err
	}
	st, err := c.build(table, dest != nil)
	if err != nil {
		if errors.Is(err, rules.ErrValidation) {
			ds.opts.metrics.ValidationFailed(table.Name)
			if ds.opts.logMode >= LogWarn {
				ds.opts.logger.Warn("validation failed", Field{Key: "table", Value: table.Name}, Field{Key: "op", Value: c.op.String()}, Field{Key: "error", Value: err.Error()})
			}
		}
		return 0, err
	}
	if st.empty {
		if ds.opts.logMode >= LogDebug {
			ds.opts.logger.Debug("nothing to write", Field{Key: "table", Value: table.Name}, Field{Key: "op", Value: c.op.String()})
		}
		return 0, nil
	}
	for _, r := range st.applied {
		ds.opts.metrics.RuleApplied(r.Kind().String())
	}
	if st.soft {
		ds.opts.metrics.SoftDeleteRewritten(table.Name)
		if ds.opts.logMode >= LogDebug {
			ds.opts.logger.Debug("delete rewritten to soft delete", Field{Key: "table", Value: table.Name})
		}
	}

	started := time.Now()
	var n int64
	if dest == nil {
		err = ds.withRetry(ctx, func() error {
			var e error
			n, e = ds.exec.Exec(ctx, st.query, st.args...)
			return e
		})
	} else {
		var rows rowSet
		err = ds.withRetry(ctx, func() error {
			var e error
			rows, e = ds.exec.Query(ctx, st.query, st.args...)
			return e
		})
		if err == nil {
			hidden := ds.rules.PlanSelect(ds.request(table, nil)).Restricted
			n, err = scanRowsHiding(rows, dest, hidden)
		}
	}
	err = wrapError(err, st.query, st.args)
	ds.observe(ctx, AuditEntry{
		ExecutionID: uuid.New(),
		Action:      st.action,
		Table:       table.Name,
		Keys:        keyMap(st.keys),
		Entity:      c.arg,
		Query:       st.query,
		Args:        st.args,
		User:        ds.user,
		Duration:    time.Since(started),
		Rows:        n,
		Err:         err,
	})
	if err != nil {
		return n, err
	}
	if err := runAfterHook(ctx, c.op, c.arg, st.soft); err != nil {
		return n, err
	}
	return n, nil
}

func (c *WriteCommand) build(table *rules.Table, returning bool) (*statement, error) {
	ds := c.ds
	req := ds.request(table, c.arg)
	var (
		st  *statement
		sql string
	)
	switch c.op {
	case opInsert:
		plan, err := ds.rules.PrepareWrite(rules.OperationInsert, req)
		if err != nil {
			return nil, err
		}
		st = &statement{action: AuditActionInsert, applied: plan.Applied}
		sql, st.args = ds.buildInsert(table, plan.Values)
	case opUpdate:
		plan, err := ds.rules.PrepareWrite(rules.OperationUpdate, req)
		if err != nil {
			return nil, err
		}
		st = &statement{action: AuditActionUpdate, keys: plan.Keys, applied: plan.Applied}
		if len(plan.Values) == 0 {
			st.empty = true
			return st, nil
		}
		sql, st.args = ds.buildUpdate(table, plan.Values, plan.Keys)
	case opUpsert:
		ins, err := ds.rules.PrepareWrite(rules.OperationInsert, req)
		if err != nil {
			return nil, err
		}
		upd, err := ds.rules.PrepareWrite(rules.OperationUpdate, req)
		if err != nil {
			return nil, err
		}
		st = &statement{action: AuditActionUpsert, keys: upd.Keys, applied: mergeApplied(ins.Applied, upd.Applied)}
		sql, st.args, err = ds.buildUpsert(table, ins.Values, upd.Keys, upd.Values)
		if err != nil {
			return nil, err
		}
	default:
		plan, err := ds.rules.PrepareDelete(req)
		if err != nil {
			return nil, err
		}
		st = &statement{action: AuditActionDelete, keys: plan.Keys, applied: plan.Applied, soft: plan.Soft}
		if plan.Soft {
			st.action = AuditActionSoftDelete
			if len(plan.Values) == 0 {
				st.empty = true
				return st, nil
			}
			sql, st.args = ds.buildUpdate(table, plan.Values, plan.Keys)
		} else {
			sql, st.args = ds.buildDelete(table, plan.Keys)
		}
	}
	if returning {
		sql += " RETURNING " + strings.Join(ds.returningList(table, c.returning), ", ")
	}
	st.query = sqlutil.ConvertQMarks(sql, ds.dialect.Placeholder)
	return st, nil
}

func (ds *DataSource) buildInsert(table *rules.Table, values []rules.ColumnValue) (string, []any) {
	var sb strings.Builder
	sb.WriteString("INSERT INTO ")
	sb.WriteString(ds.quote(table.Name))
	if len(values) == 0 {
		if ds.dialect.Name() == dialect.MySQL {
			sb.WriteString(" () VALUES ()")
		} else {
			sb.WriteString(" DEFAULT VALUES")
		}
		return sb.String(), nil
	}
	cols := make([]string, 0, len(values))
	placeholders := make([]string, 0, len(values))
	args := make([]any, 0, len(values))
	for _, v := range values {
		cols = append(cols, ds.dialect.Quote(v.Column.SQLName))
		placeholders = append(placeholders, "?")
		args = append(args, v.Value)
	}
	sb.WriteString(" (")
	sb.WriteString(strings.Join(cols, ", "))
	sb.WriteString(") VALUES (")
	sb.WriteString(strings.Join(placeholders, ", "))
	sb.WriteString(")")
	return sb.String(), args
}

// buildUpsert inserts values plus any key column the insert rules left out (identity keys)
// and resolves a key collision with the update values.
func (ds *DataSource) buildUpsert(table *rules.Table, values, keys, sets []rules.ColumnValue) (string, []any, error) {
	cols := append([]rules.ColumnValue(nil), values...)
	keyNames := make([]string, 0, len(keys))
	for _, k := range keys {
		keyNames = append(keyNames, k.Column.SQLName)
		if !hasColumn(cols, k.Column.SQLName) {
			cols = append(cols, k)
		}
	}
	setNames := make([]string, 0, len(sets))
	for _, v := range sets {
		setNames = append(setNames, v.Column.SQLName)
	}
	clause, err := dialect.OnConflict(ds.dialect, keyNames, setNames)
	if err != nil {
		return "", nil, &ORMError{Code: ErrCodeConfiguration, Message: err.Error(), Internal: err}
	}
	insert, args := ds.buildInsert(table, cols)
	// the update side reads the proposed row, so every value binds once
	return insert + clause, args, nil
}

func hasColumn(values []rules.ColumnValue, sqlName string) bool {
	for _, v := range values {
		if strings.EqualFold(v.Column.SQLName, sqlName) {
			return true
		}
	}
	return false
}

func mergeApplied(a, b []*rules.Rule) []*rules.Rule {
	out := append([]*rules.Rule(nil), a...)
	for _, r := range b {
		dup := false
		for _, seen := range a {
			if seen == r {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, r)
		}
	}
	return out
}

func (ds *DataSource) buildUpdate(table *rules.Table, values, keys []rules.ColumnValue) (string, []any) {
	sets := make([]string, 0, len(values))
	args := make([]any, 0, len(values)+len(keys))
	for _, v := range values {
		sets = append(sets, ds.dialect.Quote(v.Column.SQLName)+" = ?")
		args = append(args, v.Value)
	}
	where, whereArgs := ds.keyPredicate(keys)
	return "UPDATE " + ds.quote(table.Name) + " SET " + strings.Join(sets, ", ") + " WHERE " + where, append(args, whereArgs...)
}

func (ds *DataSource) buildDelete(table *rules.Table, keys []rules.ColumnValue) (string, []any) {
	where, args := ds.keyPredicate(keys)
	return "DELETE FROM " + ds.quote(table.Name) + " WHERE " + where, args
}

func (ds *DataSource) keyPredicate(keys []rules.ColumnValue) (string, []any) {
	preds := make([]string, 0, len(keys))
	args := make([]any, 0, len(keys))
	for _, k := range keys {
		preds = append(preds, ds.dialect.Quote(k.Column.SQLName)+" = ?")
		args = append(args, k.Value)
	}
	return strings.Join(preds, " AND "), args
}

// returningList quotes cols, or every table column when cols is empty. Columns the user may
// not read are returned as NULL.
func (ds *DataSource) returningList(table *rules.Table, cols []string) []string {
	plan := ds.rules.PlanSelect(ds.request(table, nil))
	if len(cols) == 0 {
		for _, col := range table.Columns {
			cols = append(cols, col.SQLName)
		}
	}
	out := make([]string, 0, len(cols))
	for _, col := range cols {
		if isStar(col) && len(plan.Restricted) > 0 {
			out = append(out, ds.expandStar(plan, col)...)
			continue
		}
		out = append(out, ds.selectColumn(plan, col))
	}
	return out
}

// selectColumn renders one entry of a select list. An entry naming a restricted column,
// directly or inside an expression, reads as NULL under the entry's alias.
func (ds *DataSource) selectColumn(plan *rules.SelectPlan, col string) string {
	if plan.IsRestricted(col) {
		return "NULL AS " + ds.dialect.Quote(col)
	}
	if plan.Table != nil {
		if c, ok := plan.Table.Column(col); ok {
			if plan.IsRestricted(c.SQLName) {
				return "NULL AS " + ds.dialect.Quote(c.SQLName)
			}
			return ds.dialect.Quote(c.SQLName)
		}
	}
	if len(plan.Restricted) == 0 {
		return col
	}
	expr, alias := splitAlias(col)
	if ref, ok := restrictedRef(plan, expr); ok {
		if alias == "" {
			alias = ds.dialect.Quote(ref)
		}
		return "NULL AS " + alias
	}
	return col
}

// expandStar renders "*" or "x.*" as the table's columns so restricted ones read as NULL
func (ds *DataSource) expandStar(plan *rules.SelectPlan, entry string) []string {
	prefix := strings.TrimSuffix(strings.TrimSpace(entry), "*")
	out := make([]string, 0, len(plan.Table.Columns))
	for _, c := range plan.Table.Columns {
		if plan.IsRestricted(c.SQLName) {
			out = append(out, "NULL AS "+ds.dialect.Quote(c.SQLName))
			continue
		}
		out = append(out, prefix+ds.dialect.Quote(c.SQLName))
	}
	return out
}

func isStar(entry string) bool {
	e := strings.TrimSpace(entry)
	return e == "*" || strings.HasSuffix(e, ".*")
}

var (
	aliasPattern = regexp.MustCompile(`(?is)^(.*\S)\s+as\s+(\S+)$`)
	identPattern = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_]*`)
)

// splitAlias separates "expr AS alias"; alias is empty when there is none
func splitAlias(entry string) (string, string) {
	if m := aliasPattern.FindStringSubmatch(strings.TrimSpace(entry)); m != nil {
		return m[1], m[2]
	}
	return entry, ""
}

// restrictedRef returns the SQL name of the first restricted column expr refers to
func restrictedRef(plan *rules.SelectPlan, expr string) (string, bool) {
	bare := strings.NewReplacer(`"`, " ", "`", " ", "[", " ", "]", " ").Replace(expr)
	for _, ident := range identPattern.FindAllString(bare, -1) {
		if !plan.IsRestricted(ident) {
			continue
		}
		if c, ok := plan.Table.Column(ident); ok {
			return c.SQLName, true
		}
		return ident, true
	}
	return "", false
}

func keyMap(keys []rules.ColumnValue) map[string]any {
	if len(keys) == 0 {
		return nil
	}
	m := make(map[string]any, len(keys))
	for _, k := range keys {
		m[k.Column.SQLName] = k.Value
	}
	return m
}

// observe records metrics, the statement log and the audit entry of one statement
func (ds *DataSource) observe(ctx context.Context, e AuditEntry) {
	ds.opts.metrics.QueryDuration(e.Duration, e.Query)
	if e.Err != nil {
		var oe *ORMError
		if errors.As(e.Err, &oe) {
			ds.opts.metrics.ErrorCount(errorType(oe.Code))
		} else {
			ds.opts.metrics.ErrorCount(errorType(ErrCodeInternal))
		}
		if ds.opts.logMode >= LogError {
			ds.opts.logger.Error("statement failed",
				Field{Key: "stmt", Value: inlineSQL(ds.dialect, e.Query, e.Args)},
				Field{Key: "error", Value: e.Err.Error()},
			)
		}
	} else if ds.opts.logMode >= LogInfo {
		ds.opts.logger.Info("statement",
			Field{Key: "stmt", Value: inlineSQL(ds.dialect, e.Query, e.Args)},
			Field{Key: "duration", Value: e.Duration},
			Field{Key: "rows", Value: e.Rows},
		)
	}
	if ds.opts.audit != nil {
		ds.opts.audit.OnAudit(ctx, e)
	}
}
