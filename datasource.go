// Package chain is a fluent data access layer over PostgreSQL, SQLite, MySQL, SQL Server
// and Access. Every statement issued through a DataSource passes through its audit rule
// collection: writes are stamped and validated, deletes may be rewritten into soft
// deletes, and restricted columns are hidden from users who may not see them.
package chain

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kintsdev/chain/dialect"
	core "github.com/kintsdev/chain/internal/core"
	"github.com/kintsdev/chain/rules"
)

// DataSource issues commands against one database. It is safe for concurrent use.
// The With* methods derive new data sources and never modify the receiver.
type DataSource struct {
	dialect dialect.Dialect
	exec    executor
	pool    *pgxpool.Pool
	db      *sql.DB
	config  *Config
	opts    options
	breaker *circuitBreaker
	tables  *tableCache
	rules   *rules.Collection
	user    any
	inTx    bool
}

type tableKey struct {
	name string
	typ  reflect.Type
}

// tableCache holds schemas derived from struct types; shared by derived data sources
type tableCache struct{ m sync.Map }

func buildOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func newDataSource(d dialect.Dialect, cfg *Config, o options) *DataSource {
	return &DataSource{dialect: d, config: cfg, opts: o, rules: o.rules, tables: &tableCache{}}
}

// Open connects using cfg. PostgreSQL uses a pgx pool; sqlite, mysql and sqlserver use
// database/sql. Access databases must be opened by the caller and passed to OpenDB.
func Open(cfg *Config, opts ...Option) (*DataSource, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	d, err := dialect.Lookup(cfg.driver())
	if err != nil {
		return nil, &ORMError{Code: ErrCodeConfiguration, Message: err.Error(), Internal: err}
	}
	o := buildOptions(opts)
	if cfg.RulesFile != "" {
		fileRules, err := rules.LoadFile(cfg.RulesFile)
		if err != nil {
			return nil, err
		}
		o.rules = o.rules.With(fileRules.Rules()...)
	}

	ds := newDataSource(d, cfg, o)
	ctx := context.Background()
	var exec executor
	if d.Name() == dialect.Postgres {
		pool, err := newPool(ctx, cfg)
		if err != nil {
			return nil, &ORMError{Code: ErrCodeConnection, Message: fmt.Sprintf("open pool: %v", err), Internal: err}
		}
		ds.pool = pool
		exec = pgxExecutor{q: pool}
	} else {
		db, err := openSQL(ctx, d, cfg)
		if err != nil {
			var oe *ORMError
			if errors.As(err, &oe) {
				return nil, err
			}
			return nil, &ORMError{Code: ErrCodeConnection, Message: fmt.Sprintf("open %s: %v", d.Name(), err), Internal: err}
		}
		ds.db = db
		exec = sqlExecutor{q: db}
	}
	if cfg.CircuitBreakerEnabled {
		metrics := o.metrics
		ds.breaker = newCircuitBreaker(circuitBreakerConfig{
			failureThreshold:    defaultIfZeroInt(cfg.CircuitFailureThreshold, 5),
			openTimeout:         defaultIfZeroDuration(cfg.CircuitOpenTimeout, 30*time.Second),
			halfOpenMaxInFlight: defaultIfZeroInt(cfg.CircuitHalfOpenMaxCalls, 1),
			onStateChange: func(state string) {
				if metrics != nil {
					metrics.CircuitStateChanged(state)
				}
			},
		})
	}
	ds.exec = withBreaker(exec, ds.breaker)
	return ds, nil
}

// NewWithConnString creates a PostgreSQL data source from a full pgx connection string
func NewWithConnString(connString string, opts ...Option) (*DataSource, error) {
	pool, err := newPoolFromConnString(context.Background(), connString)
	if err != nil {
		return nil, &ORMError{Code: ErrCodeConnection, Message: fmt.Sprintf("open pool: %v", err), Internal: err}
	}
	return OpenPool(pool, opts...), nil
}

// OpenPool wraps an existing pgx pool. Close closes the pool.
func OpenPool(pool *pgxpool.Pool, opts ...Option) *DataSource {
	ds := newDataSource(dialect.PostgresDialect{}, nil, buildOptions(opts))
	ds.pool = pool
	ds.exec = pgxExecutor{q: pool}
	return ds
}

// OpenDB wraps an open database/sql handle speaking dialect d. Close closes db.
func OpenDB(d dialect.Dialect, db *sql.DB, opts ...Option) (*DataSource, error) {
	if d == nil || db == nil {
		return nil, &ORMError{Code: ErrCodeConfiguration, Message: "OpenDB requires a dialect and a database handle"}
	}
	ds := newDataSource(d, nil, buildOptions(opts))
	ds.db = db
	ds.exec = sqlExecutor{q: db}
	return ds, nil
}

// default helpers (kept here to avoid extra utils file)
func defaultIfZeroInt(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}
func defaultIfZeroDuration(v, def time.Duration) time.Duration {
	if v == 0 {
		return def
	}
	return v
}

func (ds *DataSource) clone() *DataSource {
	c := *ds
	return &c
}

// WithUser returns a data source that evaluates rules for user
func (ds *DataSource) WithUser(user any) *DataSource {
	c := ds.clone()
	c.user = user
	return c
}

// WithRules returns a data source using c in place of the current rules
func (ds *DataSource) WithRules(c *rules.Collection) *DataSource {
	if c == nil {
		c = rules.Empty()
	}
	out := ds.clone()
	out.rules = c
	return out
}

// WithAdditionalRules returns a data source whose rules are the current rules followed by rs
func (ds *DataSource) WithAdditionalRules(rs ...*rules.Rule) *DataSource {
	out := ds.clone()
	out.rules = ds.rules.With(rs...)
	return out
}

// WithoutRules returns a data source that bypasses every rule. Deletes are physical and
// soft deleted rows are visible.
func (ds *DataSource) WithoutRules() *DataSource { return ds.WithRules(rules.Empty()) }

func (ds *DataSource) User() any                { return ds.user }
func (ds *DataSource) Rules() *rules.Collection { return ds.rules }
func (ds *DataSource) Dialect() dialect.Dialect { return ds.dialect }
func (ds *DataSource) Pool() *pgxpool.Pool      { return ds.pool }
func (ds *DataSource) DB() *sql.DB              { return ds.db }
func (ds *DataSource) Config() *Config          { return ds.config }
func (ds *DataSource) InTransaction() bool      { return ds.inTx }

// CircuitState returns closed, open or half_open
func (ds *DataSource) CircuitState() string {
	if ds.breaker == nil {
		return stateClosed.String()
	}
	return ds.breaker.State()
}

// Close closes the underlying pool or database. It is a no-op inside a transaction.
func (ds *DataSource) Close() error {
	if ds.inTx {
		return nil
	}
	if ds.pool != nil {
		ds.pool.Close()
	}
	if ds.db != nil {
		return ds.db.Close()
	}
	return nil
}

// Health performs a simple health check against the database
func (ds *DataSource) Health(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := healthCheck(ctx, ds.exec); err != nil {
		return wrapError(err, "SELECT 1", nil)
	}
	if ds.pool != nil {
		st := ds.pool.Stat()
		ds.opts.metrics.ConnectionCount(st.AcquiredConns(), st.IdleConns())
	} else if ds.db != nil {
		st := ds.db.Stats()
		ds.opts.metrics.ConnectionCount(int32(st.InUse), int32(st.Idle))
	}
	return nil
}

// tableFor resolves the schema of table for model. Registered schemas win; otherwise the
// schema is derived from model's struct type. ok is false when neither is available.
func (ds *DataSource) tableFor(name string, model any) (*rules.Table, bool) {
	if t, ok := ds.opts.schemas[strings.ToLower(name)]; ok {
		return t, true
	}
	var typ reflect.Type
	switch m := model.(type) {
	case nil:
		return nil, false
	case reflect.Type:
		typ = m
	default:
		typ = reflect.TypeOf(model)
	}
	typ = core.Deref(typ)
	if typ == nil || typ.Kind() != reflect.Struct {
		return nil, false
	}
	key := tableKey{name: strings.ToLower(name), typ: typ}
	if t, ok := ds.tables.m.Load(key); ok {
		return t.(*rules.Table), true
	}
	t, _ := ds.tables.m.LoadOrStore(key, rules.TableFor(name, typ))
	return t.(*rules.Table), true
}

// requireTable is tableFor for writes, which cannot proceed without a schema
func (ds *DataSource) requireTable(name string, model any) (*rules.Table, error) {
	if strings.TrimSpace(name) == "" {
		return nil, &ORMError{Code: ErrCodeConfiguration, Message: "table name is empty"}
	}
	t, ok := ds.tableFor(name, model)
	if !ok {
		return nil, &ORMError{Code: ErrCodeConfiguration, Message: fmt.Sprintf("no schema for table %s: pass a struct or register it with WithTableSchema", name)}
	}
	return t, nil
}

func (ds *DataSource) request(t *rules.Table, arg any) rules.Request {
	return rules.Request{Table: t, Argument: arg, User: ds.user}
}

func (ds *DataSource) quote(name string) string { return dialect.QuoteQualified(ds.dialect, name) }
