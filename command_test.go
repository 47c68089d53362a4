package chain

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kintsdev/chain/dialect"
	"github.com/kintsdev/chain/rules"
)

func hrDataSource(exec *fakeExec, opts ...Option) *DataSource {
	opts = append([]Option{WithAuditRules(hrRules())}, opts...)
	return newFakeDataSource(dialect.PostgresDialect{}, exec, opts...).WithUser(appUser{EmployeeKey: 7})
}

func TestInsertStampsAuditColumns(t *testing.T) {
	exec := &fakeExec{affected: 1}
	ds := hrDataSource(exec)

	n, err := ds.Insert(employeeTable, &employee{FirstName: "Jane", LastName: "Doe"}).Exec(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, `INSERT INTO "HR"."Employee" ("FirstName", "MiddleName", "LastName", "CreatedByKey", "UpdatedByKey", "CreatedDate", "UpdatedDate", "DeletedFlag") VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`, exec.lastSQL())
	assert.Equal(t, []any{"Jane", (*string)(nil), "Doe", int64(7), int64(7), fixedNow, fixedNow, false}, exec.lastArgs())
}

func TestInsertRequiresUserForUserDataRules(t *testing.T) {
	exec := &fakeExec{}
	ds := hrDataSource(exec).WithUser(nil)
	_, err := ds.Insert(employeeTable, &employee{FirstName: "Jane"}).Exec(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, rules.ErrMissingUser))
	assert.Equal(t, 0, exec.calls())
}

func TestUpdateKeepsInsertOwnedColumnsAndDropsRestricted(t *testing.T) {
	exec := &fakeExec{affected: 1}
	ds := hrDataSource(exec)
	e := &employee{EmployeeKey: 5, FirstName: "Jane", MiddleName: strPtr("Q"), LastName: "Roe"}

	_, err := ds.Update(employeeTable, e).Exec(context.Background())
	require.NoError(t, err)
	assert.Equal(t, `UPDATE "HR"."Employee" SET "FirstName" = $1, "LastName" = $2, "UpdatedByKey" = $3, "UpdatedDate" = $4 WHERE "EmployeeKey" = $5`, exec.lastSQL())
	assert.Equal(t, []any{"Jane", "Roe", int64(7), fixedNow, int64(5)}, exec.lastArgs())

	admin := ds.WithUser(appUser{EmployeeKey: 1, IsAdmin: true})
	_, err = admin.Update(employeeTable, e).Exec(context.Background())
	require.NoError(t, err)
	assert.Equal(t, `UPDATE "HR"."Employee" SET "FirstName" = $1, "MiddleName" = $2, "LastName" = $3, "UpdatedByKey" = $4, "UpdatedDate" = $5 WHERE "EmployeeKey" = $6`, exec.lastSQL())
}

func TestUpdateWithoutKeyFails(t *testing.T) {
	exec := &fakeExec{}
	schema := &rules.Table{Name: "notes", Columns: []rules.Column{{SQLName: "id", PrimaryKey: true}, {SQLName: "body"}}}
	ds := newFakeDataSource(dialect.PostgresDialect{}, exec, WithTableSchema(schema))
	_, err := ds.Update("notes", map[string]any{"body": "x"}).Exec(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, rules.ErrMissingKey))
	assert.Equal(t, 0, exec.calls())
}

func TestUpdateWithNothingToWriteIssuesNoStatement(t *testing.T) {
	exec := &fakeExec{}
	schema := &rules.Table{Name: "secrets", Columns: []rules.Column{{SQLName: "id", PrimaryKey: true}, {SQLName: "value"}}}
	restrict := rules.Must(rules.RestrictColumn("secrets", "value", rules.OperationUpdate, isAdmin))
	ds := newFakeDataSource(dialect.PostgresDialect{}, exec, WithTableSchema(schema), WithAuditRules(rules.NewCollection(restrict)))

	n, err := ds.Update("secrets", map[string]any{"id": 1, "value": "s3cret"}).Exec(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 0, exec.calls())
}

func TestDeleteIsRewrittenToSoftDelete(t *testing.T) {
	exec := &fakeExec{affected: 1}
	m := newTestMetrics()
	ds := hrDataSource(exec, WithMetrics(m))

	n, err := ds.Delete(employeeTable, &employee{EmployeeKey: 5}).Exec(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, `UPDATE "HR"."Employee" SET "DeletedFlag" = $1 WHERE "EmployeeKey" = $2`, exec.lastSQL())
	assert.Equal(t, []any{true, int64(5)}, exec.lastArgs())
	assert.Equal(t, 1, m.get("soft_delete"))
	assert.Equal(t, 1, m.get("rule:soft_delete"))

	_, err = ds.WithoutRules().Delete(employeeTable, &employee{EmployeeKey: 5}).Exec(context.Background())
	require.NoError(t, err)
	assert.Equal(t, `DELETE FROM "HR"."Employee" WHERE "EmployeeKey" = $1`, exec.lastSQL())
	assert.Equal(t, 1, m.get("soft_delete"))
}

func TestValidationFailureWritesNothing(t *testing.T) {
	exec := &fakeExec{affected: 1}
	m := newTestMetrics()
	l := &testLogger{}
	requireLastName := rules.Must(rules.ValidateWith(rules.OperationInsertOrUpdate, func(e *employee) []string {
		if e.LastName == "" {
			return []string{"LastName is required"}
		}
		return nil
	}))
	ds := hrDataSource(exec, WithMetrics(m), WithLogger(l), WithLogMode(LogWarn)).WithAdditionalRules(requireLastName)

	e := &employee{FirstName: "Jane"}
	_, err := ds.Insert(employeeTable, e).Exec(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, rules.ErrValidation))
	var ve *rules.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, []string{"LastName is required"}, ve.Messages())
	assert.Equal(t, 0, exec.calls())
	assert.Equal(t, 1, m.get("validation"))
	assert.True(t, l.has("warn", "validation failed"))

	e.LastName = "Doe"
	_, err = ds.Insert(employeeTable, e).Exec(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, exec.calls())
}

func TestUpsertUsesInsertAndUpdateRules(t *testing.T) {
	exec := &fakeExec{affected: 1}
	var entries []AuditEntry
	hook := AuditHookFunc(func(_ context.Context, e AuditEntry) { entries = append(entries, e) })
	ds := hrDataSource(exec, WithAuditHook(hook))
	e := &employee{EmployeeKey: 5, FirstName: "Jane", MiddleName: strPtr("Q"), LastName: "Roe"}

	_, err := ds.Upsert(employeeTable, e).Exec(context.Background())
	require.NoError(t, err)
	assert.Equal(t, `INSERT INTO "HR"."Employee" ("FirstName", "MiddleName", "LastName", "CreatedByKey", "UpdatedByKey", "CreatedDate", "UpdatedDate", "DeletedFlag", "EmployeeKey") VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`+
		` ON CONFLICT ("EmployeeKey") DO UPDATE SET "FirstName" = EXCLUDED."FirstName", "LastName" = EXCLUDED."LastName", "UpdatedByKey" = EXCLUDED."UpdatedByKey", "UpdatedDate" = EXCLUDED."UpdatedDate"`, exec.lastSQL())
	assert.Equal(t, []any{"Jane", e.MiddleName, "Roe", int64(7), int64(7), fixedNow, fixedNow, false, int64(5)}, exec.lastArgs())
	require.Len(t, entries, 1)
	assert.Equal(t, AuditActionUpsert, entries[0].Action)
	assert.Equal(t, map[string]any{"EmployeeKey": int64(5)}, entries[0].Keys)

	mysqlExec := &fakeExec{affected: 1}
	mysql := newFakeDataSource(dialect.MySQLDialect{}, mysqlExec, WithAuditRules(hrRules())).WithUser(appUser{EmployeeKey: 7})
	_, err = mysql.Upsert(employeeTable, e).Exec(context.Background())
	require.NoError(t, err)
	assert.Contains(t, mysqlExec.lastSQL(), " ON DUPLICATE KEY UPDATE `FirstName` = VALUES(`FirstName`), `LastName` = VALUES(`LastName`)")
}

func TestUpsertErrors(t *testing.T) {
	ctx := context.Background()
	exec := &fakeExec{}
	mssql := newFakeDataSource(dialect.SQLServerDialect{}, exec, WithAuditRules(hrRules())).WithUser(appUser{EmployeeKey: 7})
	_, err := mssql.Upsert(employeeTable, &employee{EmployeeKey: 5, LastName: "Roe"}).Exec(ctx)
	assert.True(t, isCode(err, ErrCodeConfiguration))
	assert.True(t, errors.Is(err, dialect.ErrUnsupported))

	schema := &rules.Table{Name: "notes", Columns: []rules.Column{{SQLName: "id", PrimaryKey: true}, {SQLName: "body"}}}
	pg := newFakeDataSource(dialect.PostgresDialect{}, exec, WithTableSchema(schema))
	_, err = pg.Upsert("notes", map[string]any{"body": "x"}).Exec(ctx)
	assert.True(t, errors.Is(err, rules.ErrMissingKey))

	_, err = hrDataSource(exec).WithUser(nil).Upsert(employeeTable, &employee{EmployeeKey: 5}).Exec(ctx)
	assert.True(t, errors.Is(err, rules.ErrMissingUser))
	assert.Equal(t, 0, exec.calls())
}

func TestExecIntoReadsBackIdentity(t *testing.T) {
	exec := &fakeExec{cols: []string{"EmployeeKey"}, rows: [][]any{{int64(11)}}}
	ds := hrDataSource(exec)
	e := &employee{FirstName: "Jane", LastName: "Doe"}

	n, err := ds.Insert(employeeTable, e).Returning("EmployeeKey").ExecInto(context.Background(), e)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, int64(11), e.EmployeeKey)
	assert.Contains(t, exec.lastSQL(), `VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING "EmployeeKey"`)
}

func TestReturningHidesRestrictedColumns(t *testing.T) {
	exec := &fakeExec{cols: employeeColumns, rows: [][]any{{int64(5), "Jane", nil, "Roe", int64(7), int64(7), fixedNow, fixedNow, false}}}
	ds := hrDataSource(exec)
	var out employee
	_, err := ds.Update(employeeTable, &employee{EmployeeKey: 5, FirstName: "Jane", LastName: "Roe"}).ExecInto(context.Background(), &out)
	require.NoError(t, err)
	assert.Contains(t, exec.lastSQL(), `RETURNING "EmployeeKey", "FirstName", NULL AS "MiddleName", "LastName"`)
	assert.Equal(t, "Roe", out.LastName)
	assert.Nil(t, out.MiddleName)
	require.NotNil(t, out.UpdatedDate)
	assert.True(t, out.UpdatedDate.Equal(fixedNow))
}

func TestWriteCommandArgumentErrors(t *testing.T) {
	exec := &fakeExec{}
	ds := hrDataSource(exec)
	ctx := context.Background()

	_, err := ds.Insert(employeeTable, nil).Exec(ctx)
	assert.True(t, isCode(err, ErrCodeValidation))

	_, err = ds.Insert(employeeTable, &employee{}).ExecInto(ctx, nil)
	assert.True(t, isCode(err, ErrCodeValidation))

	_, err = ds.Insert("", &employee{}).Exec(ctx)
	assert.True(t, isCode(err, ErrCodeConfiguration))

	_, err = ds.Insert("unknown", map[string]any{"a": 1}).Exec(ctx)
	assert.True(t, isCode(err, ErrCodeConfiguration))

	mysqlDS := newFakeDataSource(dialect.MySQLDialect{}, exec)
	_, err = mysqlDS.Insert("t", &employee{LastName: "x"}).ExecInto(ctx, &employee{})
	assert.True(t, isCode(err, ErrCodeConfiguration))
	assert.Equal(t, 0, exec.calls())
}

func TestInsertMapWithRegisteredSchema(t *testing.T) {
	exec := &fakeExec{affected: 1}
	schema := &rules.Table{Name: "audit_log", Columns: []rules.Column{
		{SQLName: "id", PrimaryKey: true, Identity: true},
		{SQLName: "message"},
		{SQLName: "tenant"},
	}}
	tenant := rules.Must(rules.ApplyValue("tenant", "acme", rules.OperationInsert))
	ds := newFakeDataSource(dialect.SQLiteDialect{}, exec, WithTableSchema(schema), WithAuditRules(rules.NewCollection(tenant)))

	_, err := ds.Insert("audit_log", map[string]any{"message": "hello"}).Exec(context.Background())
	require.NoError(t, err)
	assert.Equal(t, `INSERT INTO "audit_log" ("message", "tenant") VALUES (?1, ?2)`, exec.lastSQL())
	assert.Equal(t, []any{"hello", "acme"}, exec.lastArgs())
}

func TestInsertWithNoValuesUsesDefaults(t *testing.T) {
	exec := &fakeExec{}
	schema := &rules.Table{Name: "ticks", Columns: []rules.Column{{SQLName: "id", PrimaryKey: true, Identity: true}}}
	_, err := newFakeDataSource(dialect.PostgresDialect{}, exec, WithTableSchema(schema)).
		Insert("ticks", map[string]any{}).Exec(context.Background())
	require.NoError(t, err)
	assert.Equal(t, `INSERT INTO "ticks" DEFAULT VALUES`, exec.lastSQL())

	_, err = newFakeDataSource(dialect.MySQLDialect{}, exec, WithTableSchema(schema)).
		Insert("ticks", map[string]any{}).Exec(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "INSERT INTO `ticks` () VALUES ()", exec.lastSQL())
}

func TestDriverErrorsAreWrappedAndObserved(t *testing.T) {
	exec := &fakeExec{err: errors.New("connection reset by peer")}
	m := newTestMetrics()
	l := &testLogger{}
	ds := hrDataSource(exec, WithMetrics(m), WithLogger(l), WithLogMode(LogError))
	_, err := ds.Insert(employeeTable, &employee{LastName: "Doe"}).Exec(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, m.get("query"))
	assert.Equal(t, 1, m.get("error:internal"))
	assert.True(t, l.has("error", "statement failed"))
}

type hookedNote struct {
	ID    int64  `db:"id" norm:"primary_key"`
	Body  string `db:"body"`
	trace []string
}

func (n *hookedNote) BeforeInsert(context.Context) error { n.trace = append(n.trace, "before_insert"); return nil }
func (n *hookedNote) AfterInsert(context.Context) error  { n.trace = append(n.trace, "after_insert"); return nil }
func (n *hookedNote) BeforeDelete(context.Context) error { n.trace = append(n.trace, "before_delete"); return nil }
func (n *hookedNote) AfterDelete(_ context.Context, soft bool) error {
	if soft {
		n.trace = append(n.trace, "after_soft_delete")
	} else {
		n.trace = append(n.trace, "after_delete")
	}
	return nil
}
func (n *hookedNote) BeforeUpdate(context.Context) error { return errors.New("notes are immutable") }

func TestWriteHooks(t *testing.T) {
	exec := &fakeExec{affected: 1}
	ds := newFakeDataSource(dialect.PostgresDialect{}, exec)
	n := &hookedNote{ID: 1, Body: "x"}
	ctx := context.Background()

	_, err := ds.Insert("notes", n).Exec(ctx)
	require.NoError(t, err)
	_, err = ds.Delete("notes", n).Exec(ctx)
	require.NoError(t, err)
	soft := ds.WithAdditionalRules(rules.Must(rules.SoftDelete("body", "[deleted]", rules.OperationDelete)))
	_, err = soft.Delete("notes", n).Exec(ctx)
	require.NoError(t, err)
	assert.Equal(t, `UPDATE "notes" SET "body" = $1 WHERE "id" = $2`, exec.lastSQL())
	assert.Equal(t, []string{"before_insert", "after_insert", "before_delete", "after_delete", "before_delete", "after_soft_delete"}, n.trace)

	_, err = ds.Update("notes", n).Exec(ctx)
	assert.EqualError(t, err, "notes are immutable")
	assert.Equal(t, 3, exec.calls())
}

func TestAuditHookReceivesEntries(t *testing.T) {
	exec := &fakeExec{affected: 1}
	var entries []AuditEntry
	hook := AuditHookFunc(func(_ context.Context, e AuditEntry) { entries = append(entries, e) })
	ds := hrDataSource(exec, WithAuditHook(hook))

	_, err := ds.Delete(employeeTable, &employee{EmployeeKey: 5}).Exec(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	e := entries[0]
	assert.Equal(t, AuditActionSoftDelete, e.Action)
	assert.Equal(t, employeeTable, e.Table)
	assert.Equal(t, map[string]any{"EmployeeKey": int64(5)}, e.Keys)
	assert.Equal(t, appUser{EmployeeKey: 7}, e.User)
	assert.Equal(t, int64(1), e.Rows)
	assert.NotEqual(t, [16]byte{}, [16]byte(e.ExecutionID))
	assert.NoError(t, e.Err)
}

func isCode(err error, code ErrorCode) bool {
	var oe *ORMError
	return errors.As(err, &oe) && oe.Code == code
}
