package chain

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kintsdev/chain/dialect"
)

func TestRepositoryInsertReadsBackIdentity(t *testing.T) {
	exec := &fakeExec{cols: []string{"EmployeeKey"}, rows: [][]any{{int64(11)}}}
	repo := NewRepository[employee](hrDataSource(exec), employeeTable)
	e := &employee{FirstName: "Jane", LastName: "Doe"}
	require.NoError(t, repo.Insert(context.Background(), e))
	assert.Equal(t, int64(11), e.EmployeeKey)
	assert.Contains(t, exec.lastSQL(), `RETURNING "EmployeeKey"`)

	// no RETURNING on mysql; the plain insert is issued
	mysqlExec := &fakeExec{affected: 1}
	mysqlRepo := NewRepository[employee](newFakeDataSource(dialect.MySQLDialect{}, mysqlExec, WithAuditRules(hrRules())).WithUser(appUser{EmployeeKey: 7}), employeeTable)
	require.NoError(t, mysqlRepo.Insert(context.Background(), &employee{LastName: "Doe"}))
	assert.NotContains(t, mysqlExec.lastSQL(), "RETURNING")

	assert.True(t, isCode(repo.Insert(context.Background(), nil), ErrCodeValidation))
}

func TestRepositoryGetByKey(t *testing.T) {
	exec := &fakeExec{cols: employeeColumns, rows: [][]any{employeeRow(5, "Jane", "Doe", false)}}
	repo := NewRepository[employee](hrDataSource(exec), employeeTable)
	e, err := repo.GetByKey(context.Background(), int64(5))
	require.NoError(t, err)
	assert.Equal(t, "Jane", e.FirstName)
	assert.Equal(t, `SELECT `+employeeSelectList+` FROM "HR"."Employee" WHERE ("EmployeeKey" = $1) AND ("DeletedFlag" IS NULL OR "DeletedFlag" <> $2) LIMIT 1`, exec.lastSQL())

	_, err = repo.GetByKey(context.Background(), 1, 2)
	assert.True(t, isCode(err, ErrCodeValidation))

	exec.rows = nil
	_, err = repo.GetByKey(context.Background(), int64(6))
	assert.True(t, IsNotFound(err))
}

func TestRepositoryUpdateAndDelete(t *testing.T) {
	exec := &fakeExec{affected: 1}
	repo := NewRepository[employee](hrDataSource(exec), employeeTable)
	ctx := context.Background()
	e := &employee{EmployeeKey: 5, FirstName: "Jane", LastName: "Roe"}

	require.NoError(t, repo.Update(ctx, e))
	assert.Contains(t, exec.lastSQL(), `UPDATE "HR"."Employee" SET "FirstName" = $1`)
	require.NoError(t, repo.Delete(ctx, e))
	assert.Equal(t, `UPDATE "HR"."Employee" SET "DeletedFlag" = $1 WHERE "EmployeeKey" = $2`, exec.lastSQL())
	assert.True(t, isCode(repo.Update(ctx, nil), ErrCodeValidation))
	assert.True(t, isCode(repo.Delete(ctx, nil), ErrCodeValidation))

	require.NoError(t, repo.Upsert(ctx, e))
	assert.Contains(t, exec.lastSQL(), `ON CONFLICT ("EmployeeKey") DO UPDATE SET`)
	assert.True(t, isCode(repo.Upsert(ctx, nil), ErrCodeValidation))
}

func TestRepositoryQueries(t *testing.T) {
	exec := &fakeExec{results: []fakeResult{
		{cols: []string{"count"}, rows: [][]any{{int64(3)}}},
		{cols: employeeColumns, rows: [][]any{employeeRow(1, "A", "Doe", false), employeeRow(2, "B", "Doe", false)}},
		{cols: employeeColumns, rows: [][]any{employeeRow(3, "C", "Doe", true)}},
		{cols: []string{"count"}, rows: [][]any{{int64(0)}}},
	}}
	repo := NewRepository[employee](hrDataSource(exec), employeeTable)
	ctx := context.Background()

	page, err := repo.FindPage(ctx, PageRequest{Limit: 2, OrderBy: `"EmployeeKey"`}, Eq(`"LastName"`, "Doe"))
	require.NoError(t, err)
	assert.Equal(t, int64(3), page.Total)
	assert.Equal(t, 2, page.Limit)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "B", page.Items[1].FirstName)
	assert.Equal(t, `SELECT `+employeeSelectList+` FROM "HR"."Employee" WHERE ("LastName" = $1) AND ("DeletedFlag" IS NULL OR "DeletedFlag" <> $2) ORDER BY "EmployeeKey" LIMIT 2`, exec.lastSQL())

	deleted, err := repo.OnlyDeletedRows().Find(ctx)
	require.NoError(t, err)
	require.Len(t, deleted, 1)
	assert.True(t, deleted[0].DeletedFlag)
	assert.Contains(t, exec.lastSQL(), `WHERE ("DeletedFlag" = $1)`)

	ok, err := repo.WithDeletedRows().Exists(ctx, Eq(`"EmployeeKey"`, 99))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, `SELECT COUNT(*) FROM "HR"."Employee" WHERE "EmployeeKey" = $1`, exec.lastSQL())
}

func TestRepositoryInsertBatchUsesOneTransaction(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	defer db.Close()
	ds, err := OpenDB(dialect.PostgresDialect{}, db, WithAuditRules(hrRules()))
	require.NoError(t, err)
	repo := NewRepository[employee](ds.WithUser(appUser{EmployeeKey: 7}), employeeTable)

	insert := `INSERT INTO "HR"."Employee" ("FirstName", "MiddleName", "LastName", "CreatedByKey", "UpdatedByKey", "CreatedDate", "UpdatedDate", "DeletedFlag") VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING "EmployeeKey"`
	mock.ExpectBegin()
	mock.ExpectQuery(insert).WithArgs("A", nil, "Doe", int64(7), int64(7), sqlmock.AnyArg(), sqlmock.AnyArg(), false).
		WillReturnRows(sqlmock.NewRows([]string{"EmployeeKey"}).AddRow(int64(1)))
	mock.ExpectQuery(insert).WithArgs("B", nil, "Doe", int64(7), int64(7), sqlmock.AnyArg(), sqlmock.AnyArg(), false).
		WillReturnRows(sqlmock.NewRows([]string{"EmployeeKey"}).AddRow(int64(2)))
	mock.ExpectCommit()

	batch := []*employee{{FirstName: "A", LastName: "Doe"}, {FirstName: "B", LastName: "Doe"}}
	require.NoError(t, repo.InsertBatch(context.Background(), batch))
	assert.Equal(t, int64(1), batch[0].EmployeeKey)
	assert.Equal(t, int64(2), batch[1].EmployeeKey)
	require.NoError(t, mock.ExpectationsWereMet())

	require.NoError(t, repo.InsertBatch(context.Background(), nil))
}

func TestTableOf(t *testing.T) {
	ds := hrDataSource(&fakeExec{})
	table, err := TableOf[employee](ds, employeeTable)
	require.NoError(t, err)
	assert.Len(t, table.Columns, len(employeeColumns))
	require.Len(t, table.KeyColumns(), 1)
	assert.True(t, table.KeyColumns()[0].Identity)

	// schemas are derived once per table and type
	again, _ := TableOf[employee](ds.WithUser(nil), employeeTable)
	assert.Same(t, table, again)
}
