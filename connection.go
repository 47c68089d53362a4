package chain

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	// database/sql drivers: "pgx" for OpenDB on postgres; the others register through
	// the error mapping imports in errors.go
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/kintsdev/chain/dialect"
)

func newPool(ctx context.Context, cfg *Config) (*pgxpool.Pool, error) {
	if cfg == nil {
		return nil, errors.New("nil config")
	}
	conf, err := pgxpool.ParseConfig(cfg.ConnString())
	if err != nil {
		return nil, err
	}
	if cfg.MaxConnections > 0 {
		conf.MaxConns = cfg.MaxConnections
	}
	if cfg.MinConnections > 0 {
		conf.MinConns = cfg.MinConnections
	}
	if cfg.MaxConnLifetime > 0 {
		conf.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		conf.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	if cfg.HealthCheckPeriod > 0 {
		conf.HealthCheckPeriod = cfg.HealthCheckPeriod
	}
	if cfg.StatementCacheCapacity > 0 {
		conf.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeCacheStatement
		conf.ConnConfig.StatementCacheCapacity = cfg.StatementCacheCapacity
	}
	return pgxpool.NewWithConfig(ctx, conf)
}

func newPoolFromConnString(ctx context.Context, connString string) (*pgxpool.Pool, error) {
	conf, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, err
	}
	return pgxpool.NewWithConfig(ctx, conf)
}

// openSQL opens a database/sql handle for the sqlite, mysql and sqlserver drivers
func openSQL(ctx context.Context, d dialect.Dialect, cfg *Config) (*sql.DB, error) {
	if d.DriverName() == "" {
		return nil, &ORMError{Code: ErrCodeConfiguration, Message: d.Name() + " has no bundled driver; open it yourself and use OpenDB"}
	}
	db, err := sql.Open(d.DriverName(), cfg.ConnString())
	if err != nil {
		return nil, err
	}
	if d.Name() == dialect.SQLite && (cfg.Path == "" || cfg.Path == ":memory:") {
		// every connection to :memory: is a separate database
		db.SetMaxOpenConns(1)
	} else if cfg.MaxConnections > 0 {
		db.SetMaxOpenConns(int(cfg.MaxConnections))
	}
	if cfg.MinConnections > 0 {
		db.SetMaxIdleConns(int(cfg.MinConnections))
	}
	if cfg.MaxConnLifetime > 0 {
		db.SetConnMaxLifetime(cfg.MaxConnLifetime)
	}
	if cfg.MaxConnIdleTime > 0 {
		db.SetConnMaxIdleTime(cfg.MaxConnIdleTime)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func healthCheck(ctx context.Context, exec executor) error {
	if exec == nil {
		return errors.New("nil executor")
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	rows, err := exec.Query(ctx, "SELECT 1")
	if err != nil {
		return err
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return err
		}
		return errors.New("health check failed")
	}
	return rows.Err()
}

// withRetry executes fn with basic retry on transient errors
func (ds *DataSource) withRetry(ctx context.Context, fn func() error) error {
	// Circuit check is handled at executor-level; do not duplicate here
	attempts := 0
	baseBackoff := 0 * time.Millisecond
	if ds.config != nil && !ds.inTx {
		attempts = ds.config.RetryAttempts
		baseBackoff = ds.config.RetryBackoff
	}
	if attempts <= 0 {
		return fn()
	}
	var err error
	for i := 0; i < attempts; i++ {
		// allow external cancellation between attempts
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err = fn()
		if err == nil || !retryable(err) {
			return err
		}
		if i < attempts-1 && baseBackoff > 0 {
			// exponential backoff with jitter
			sleep := baseBackoff << i
			// cap to 5 seconds
			sleep = min(sleep, 5*time.Second)
			// simple jitter: +/- 20%
			jitter := time.Duration(int64(sleep) * 20 / 100)
			delay := sleep - jitter + time.Duration(int64(jitter)*int64(i%2))
			// respect context during backoff wait
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return err
}

// retryable reports whether err may succeed on a later attempt
func retryable(err error) bool {
	var oe *ORMError
	if errors.As(wrapError(err, "", nil), &oe) {
		switch oe.Code {
		case ErrCodeConnection, ErrCodeTransaction:
			return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
		default:
			return false
		}
	}
	return true
}
