// Package dialect describes the SQL flavour of each supported backend: bind parameter
// syntax, identifier quoting and pagination.
package dialect

import (
	"errors"
	"fmt"
	"strings"
)

const (
	Postgres  = "postgres"
	SQLite    = "sqlite"
	MySQL     = "mysql"
	SQLServer = "sqlserver"
	Access    = "access"
)

// ErrUnsupported is returned when a dialect cannot express a requested clause.
var ErrUnsupported = errors.New("dialect: unsupported clause")

// Dialect abstracts database-specific SQL generation.
type Dialect interface {
	// Name returns one of the dialect constants.
	Name() string

	// DriverName returns the database/sql driver name, or "" when the caller
	// must register a driver (access).
	DriverName() string

	// Placeholder returns the bind parameter for the given 1-based index.
	Placeholder(n int) string

	// Quote quotes a single identifier.
	Quote(ident string) string

	// Paginate returns the fragments placed after SELECT (prefix) and at the end of
	// the statement (suffix) to apply limit and offset. orderBy is the ORDER BY list already
	// present in the statement, if any.
	Paginate(limit, offset int, orderBy string) (prefix, suffix string, err error)

	// SupportsReturning reports whether INSERT/UPDATE ... RETURNING is available.
	SupportsReturning() bool
}

// Lookup returns the dialect registered under name.
func Lookup(name string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case Postgres, "postgresql", "pgx":
		return PostgresDialect{}, nil
	case SQLite, "sqlite3":
		return SQLiteDialect{}, nil
	case MySQL:
		return MySQLDialect{}, nil
	case SQLServer, "mssql":
		return SQLServerDialect{}, nil
	case Access, "msaccess":
		return AccessDialect{}, nil
	default:
		return nil, fmt.Errorf("dialect: unknown dialect %q", name)
	}
}

// QuoteQualified quotes each part of a dotted name (schema.table).
func QuoteQualified(d Dialect, name string) string {
	if strings.TrimSpace(name) == "" {
		return name
	}
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = d.Quote(strings.TrimSpace(p))
	}
	return strings.Join(parts, ".")
}

func limitOffset(limit, offset int) string {
	var sb strings.Builder
	if limit > 0 {
		fmt.Fprintf(&sb, " LIMIT %d", limit)
	}
	if offset > 0 {
		fmt.Fprintf(&sb, " OFFSET %d", offset)
	}
	return sb.String()
}
