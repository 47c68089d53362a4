package chain

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kintsdev/chain/dialect"
	"github.com/kintsdev/chain/rules"
)

func TestDerivedDataSourcesDoNotModifyReceiver(t *testing.T) {
	base := newFakeDataSource(dialect.PostgresDialect{}, &fakeExec{}, WithAuditRules(hrRules()))
	user := base.WithUser(appUser{EmployeeKey: 7})
	bare := user.WithoutRules()
	extra := user.WithAdditionalRules(rules.Must(rules.ApplyValue("TenantKey", 3, rules.OperationInsert)))

	assert.Nil(t, base.User())
	assert.Equal(t, appUser{EmployeeKey: 7}, user.User())
	assert.Equal(t, appUser{EmployeeKey: 7}, bare.User())
	assert.Equal(t, 5, base.Rules().Len())
	assert.Equal(t, 5, user.Rules().Len())
	assert.Zero(t, bare.Rules().Len())
	assert.Equal(t, 6, extra.Rules().Len())

	swapped := user.WithRules(nil)
	assert.Zero(t, swapped.Rules().Len())
	assert.Equal(t, 5, user.Rules().Len())

	// derived data sources share the schema cache and the executor
	assert.Same(t, base.tables, bare.tables)
	assert.Equal(t, base.exec, extra.exec)
	assert.Equal(t, "postgres", extra.Dialect().Name())
	assert.False(t, extra.InTransaction())
}

func TestTableForCachesDerivedSchemas(t *testing.T) {
	ds := newFakeDataSource(dialect.PostgresDialect{}, &fakeExec{})
	a, ok := ds.tableFor(employeeTable, employee{})
	require.True(t, ok)
	b, ok := ds.WithUser(appUser{}).tableFor("hr.employee", &employee{})
	require.True(t, ok)
	assert.Same(t, a, b)

	c, ok := ds.tableFor(employeeTable, reflect.TypeOf(appUser{}))
	require.True(t, ok)
	assert.NotSame(t, a, c)

	_, ok = ds.tableFor(employeeTable, nil)
	assert.False(t, ok)
	_, ok = ds.tableFor(employeeTable, []string{})
	assert.False(t, ok)

	registered := &rules.Table{Name: employeeTable}
	ds = newFakeDataSource(dialect.PostgresDialect{}, &fakeExec{}, WithTableSchema(registered))
	got, ok := ds.tableFor("HR.EMPLOYEE", employee{})
	require.True(t, ok)
	assert.Same(t, registered, got)

	_, err := ds.requireTable("  ", employee{})
	assert.True(t, isCode(err, ErrCodeConfiguration))
	_, err = ds.requireTable("Other", nil)
	assert.True(t, isCode(err, ErrCodeConfiguration))
}

func TestHealthReportsConnections(t *testing.T) {
	m := newTestMetrics()
	ds, mock := newMockDataSource(t, dialect.MySQLDialect{}, WithMetrics(m))
	mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
	require.NoError(t, ds.Health(context.Background()))
	assert.Equal(t, 1, m.get("connections"))

	refused := errors.New("connection refused")
	mock.ExpectQuery("SELECT 1").WillReturnError(refused)
	assert.ErrorIs(t, ds.Health(context.Background()), refused)
	assert.Equal(t, 1, m.get("connections"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCircuitStateWithoutBreaker(t *testing.T) {
	ds := newFakeDataSource(dialect.SQLiteDialect{}, &fakeExec{})
	assert.Equal(t, "closed", ds.CircuitState())
	assert.Nil(t, ds.Pool())
	assert.Nil(t, ds.DB())
	assert.Nil(t, ds.Config())
	assert.NoError(t, ds.Close())
}

func TestDefaultIfZero(t *testing.T) {
	if defaultIfZeroInt(0, 5) != 5 || defaultIfZeroInt(3, 5) != 3 {
		t.Fatalf("defaultIfZeroInt")
	}
	if defaultIfZeroDuration(0, time.Second) != time.Second || defaultIfZeroDuration(time.Millisecond, time.Second) != time.Millisecond {
		t.Fatalf("defaultIfZeroDuration")
	}
}
