package chain

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	mssql "github.com/microsoft/go-mssqldb"
	"modernc.org/sqlite"

	"github.com/kintsdev/chain/rules"
)

type ErrorCode int

const (
	ErrCodeConnection ErrorCode = iota
	ErrCodeNotFound
	ErrCodeDuplicate
	ErrCodeConstraint
	ErrCodeTransaction
	ErrCodeConfiguration
	ErrCodeValidation
	// Specific validation subtypes
	ErrCodeInvalidColumn
	ErrCodeInvalidFunction
	ErrCodeInvalidCast
	ErrCodeStringTooLong
	ErrCodeInternal
)

// ORMError is a structured error for database failures
type ORMError struct {
	Code     ErrorCode
	Message  string
	Internal error
	Query    string
	Args     []any
}

func (e *ORMError) Error() string { return e.Message }

// Unwrap returns the internal error so errors.Is/errors.As can traverse the chain
func (e *ORMError) Unwrap() error { return e.Internal }

// IsNotFound reports whether err is an ORMError with ErrCodeNotFound
func IsNotFound(err error) bool {
	var oe *ORMError
	return errors.As(err, &oe) && oe.Code == ErrCodeNotFound
}

func errNotFound(query string, args []any) error {
	return &ORMError{Code: ErrCodeNotFound, Message: "not found", Internal: sql.ErrNoRows, Query: query, Args: args}
}

// pg error mapping: map common PostgreSQL errors to ORMError codes

func mapPgErrorCode(pgCode string) ErrorCode {
	switch pgCode {
	// duplicate / constraint family
	case "23505": // unique_violation
		return ErrCodeDuplicate
	case "23503", // foreign_key_violation
		"23514", // check_violation
		"23502", // not_null_violation
		"23513": // exclusion_violation
		return ErrCodeConstraint
	// transaction / concurrency
	case "40001", // serialization_failure
		"40P01", // deadlock_detected
		"55P03", // lock_not_available
		"57014": // query_canceled
		return ErrCodeTransaction
	// connection related
	case "08000", // connection_exception
		"08001", // sqlclient_unable_to_establish_sqlconnection
		"08003", // connection_does_not_exist
		"08004", // sqlserver_rejected_establishment_of_sqlconnection
		"08006", // connection_failure
		"57P01", // admin_shutdown
		"57P02", // crash_shutdown
		"57P03", // cannot_connect_now
		"53300": // too_many_connections
		return ErrCodeConnection
	case "42703": // undefined_column
		return ErrCodeInvalidColumn
	case "42883": // undefined_function
		return ErrCodeInvalidFunction
	case "22P02": // invalid_text_representation
		return ErrCodeInvalidCast
	case "22001": // string_data_right_truncation
		return ErrCodeStringTooLong
	default:
		return ErrCodeValidation
	}
}

func mapMySQLErrorCode(n uint16) ErrorCode {
	switch n {
	case 1062: // ER_DUP_ENTRY
		return ErrCodeDuplicate
	case 1451, 1452, 1048, 3819: // fk parent/child, not null, check
		return ErrCodeConstraint
	case 1213, 1205: // deadlock, lock wait timeout
		return ErrCodeTransaction
	case 1040, 1045, 2002, 2003, 2006, 2013: // too many connections, access denied, gone away
		return ErrCodeConnection
	case 1054: // ER_BAD_FIELD_ERROR
		return ErrCodeInvalidColumn
	case 1305: // ER_SP_DOES_NOT_EXIST
		return ErrCodeInvalidFunction
	case 1366, 1292: // incorrect value
		return ErrCodeInvalidCast
	case 1406: // ER_DATA_TOO_LONG
		return ErrCodeStringTooLong
	default:
		return ErrCodeValidation
	}
}

func mapSQLServerErrorCode(n int32) ErrorCode {
	switch n {
	case 2627, 2601: // unique constraint, unique index
		return ErrCodeDuplicate
	case 547, 515: // constraint conflict, null insert
		return ErrCodeConstraint
	case 1205, 1222: // deadlock victim, lock timeout
		return ErrCodeTransaction
	case 207: // invalid column name
		return ErrCodeInvalidColumn
	case 195, 4121: // not a recognized function
		return ErrCodeInvalidFunction
	case 245, 8114: // conversion failed
		return ErrCodeInvalidCast
	case 8152, 2628: // string or binary data would be truncated
		return ErrCodeStringTooLong
	default:
		return ErrCodeValidation
	}
}

func mapSQLiteErrorCode(code int) ErrorCode {
	switch code {
	case 2067, 1555: // SQLITE_CONSTRAINT_UNIQUE, SQLITE_CONSTRAINT_PRIMARYKEY
		return ErrCodeDuplicate
	case 19, 787, 1299, 275: // SQLITE_CONSTRAINT, _FOREIGNKEY, _NOTNULL, _CHECK
		return ErrCodeConstraint
	case 5, 6, 517: // SQLITE_BUSY, SQLITE_LOCKED, SQLITE_BUSY_SNAPSHOT
		return ErrCodeTransaction
	case 14: // SQLITE_CANTOPEN
		return ErrCodeConnection
	default:
		return ErrCodeValidation
	}
}

// wrapError maps driver errors to ORMError. Rule errors are returned unchanged.
func wrapError(err error, query string, args []any) error {
	if err == nil {
		return nil
	}
	// If already wrapped, return as-is
	var oe *ORMError
	if errors.As(err, &oe) {
		return err
	}
	if errors.Is(err, rules.ErrConfiguration) || errors.Is(err, rules.ErrValidation) {
		return err
	}
	// detect context cancellation / deadline exceeded
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &ORMError{Code: ErrCodeTransaction, Message: err.Error(), Internal: err, Query: query, Args: args}
	}
	// pass through circuit breaker open error as connection error with message
	if isCircuitOpenError(err) {
		return &ORMError{Code: ErrCodeConnection, Message: fmt.Sprintf("circuit open: %v", err), Internal: err, Query: query, Args: args}
	}
	if errors.Is(err, sql.ErrNoRows) || errors.Is(err, pgx.ErrNoRows) {
		return errNotFound(query, args)
	}
	if errors.Is(err, sql.ErrTxDone) || errors.Is(err, pgx.ErrTxClosed) {
		return &ORMError{Code: ErrCodeTransaction, Message: err.Error(), Internal: err, Query: query, Args: args}
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return &ORMError{Code: mapPgErrorCode(pgErr.Code), Message: pgErr.Message, Internal: err, Query: query, Args: args}
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return &ORMError{Code: mapMySQLErrorCode(myErr.Number), Message: myErr.Message, Internal: err, Query: query, Args: args}
	}
	var msErr mssql.Error
	if errors.As(err, &msErr) {
		return &ORMError{Code: mapSQLServerErrorCode(msErr.Number), Message: msErr.Message, Internal: err, Query: query, Args: args}
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		return &ORMError{Code: mapSQLiteErrorCode(liteErr.Code()), Message: liteErr.Error(), Internal: err, Query: query, Args: args}
	}
	return err
}
