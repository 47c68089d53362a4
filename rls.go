package chain

import (
	"context"
	"fmt"
	"strings"

	"github.com/kintsdev/chain/dialect"
)

func (ds *DataSource) requirePostgres(feature string) error {
	if ds.dialect.Name() != dialect.Postgres {
		return &ORMError{Code: ErrCodeConfiguration, Message: fmt.Sprintf("%s requires postgres, data source uses %s", feature, ds.dialect.Name())}
	}
	return nil
}

func (ds *DataSource) execSession(ctx context.Context, query, what string) error {
	if err := ds.requirePostgres(what); err != nil {
		return err
	}
	if _, err := ds.exec.Exec(ctx, query); err != nil {
		return &ORMError{Code: ErrCodeInternal, Message: fmt.Sprintf("%s: %s", what, err.Error()), Internal: err, Query: query}
	}
	return nil
}

// SetSessionVar sets a PostgreSQL session variable (e.g., `SET app.current_user = 'user123'`).
// Useful for Row-Level Security (RLS) policies that reference session variables.
// The value is properly quoted to prevent injection.
func (ds *DataSource) SetSessionVar(ctx context.Context, key, value string) error {
	query := fmt.Sprintf("SET %s = %s", quoteSessionKey(key), quoteSessionValue(value))
	return ds.execSession(ctx, query, "set session var "+key)
}

// ResetSessionVar resets a session variable to its default value.
func (ds *DataSource) ResetSessionVar(ctx context.Context, key string) error {
	return ds.execSession(ctx, fmt.Sprintf("RESET %s", quoteSessionKey(key)), "reset session var "+key)
}

// SetRole executes `SET ROLE <role>` to switch the current session role.
func (ds *DataSource) SetRole(ctx context.Context, role string) error {
	return ds.execSession(ctx, fmt.Sprintf("SET ROLE %s", quoteSessionValue(role)), "set role")
}

// ResetRole resets the session role to the default (connection user).
func (ds *DataSource) ResetRole(ctx context.Context) error {
	return ds.execSession(ctx, "RESET ROLE", "reset role")
}

// RLSContext represents RLS session configuration to be applied within a transaction.
type RLSContext struct {
	Role        string            // role to SET ROLE to (empty means no role change)
	SessionVars map[string]string // session variables to SET (e.g., "app.current_user" -> "user123")
}

// WithRLS runs fn in a transaction after SET LOCAL of the role and session variables, so
// RLS policies see the caller's context. The transaction keeps the data source's rules
// and user.
func (ds *DataSource) WithRLS(ctx context.Context, rls RLSContext, fn func(tx *DataSource) error) error {
	if err := ds.requirePostgres("row level security"); err != nil {
		return err
	}
	return ds.WithTransaction(ctx, func(tx *DataSource) error {
		if rls.Role != "" {
			query := fmt.Sprintf("SET LOCAL ROLE %s", quoteSessionValue(rls.Role))
			if err := tx.execSession(ctx, query, "set role in tx"); err != nil {
				return err
			}
		}
		// SET LOCAL scopes the variables to the transaction
		for key, value := range rls.SessionVars {
			query := fmt.Sprintf("SET LOCAL %s = %s", quoteSessionKey(key), quoteSessionValue(value))
			if err := tx.execSession(ctx, query, "set session var "+key+" in tx"); err != nil {
				return err
			}
		}
		return fn(tx)
	})
}

// quoteSessionKey quotes each part of a dotted session key like app.current_user
func quoteSessionKey(key string) string {
	return dialect.QuoteQualified(dialect.PostgresDialect{}, key)
}

// quoteSessionValue safely quotes a value for SET commands
func quoteSessionValue(value string) string {
	// Use single-quote escaping (double any embedded single quotes)
	escaped := strings.ReplaceAll(value, "'", "''")
	return "'" + escaped + "'"
}
