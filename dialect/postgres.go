package dialect

import (
	"fmt"
	"strings"
)

// PostgresDialect targets PostgreSQL through pgx.
type PostgresDialect struct{}

func (PostgresDialect) Name() string             { return Postgres }
func (PostgresDialect) DriverName() string       { return "pgx" }
func (PostgresDialect) Placeholder(n int) string { return fmt.Sprintf("$%d", n) }
func (PostgresDialect) SupportsReturning() bool  { return true }

// Quote wraps in double quotes and escapes embedded quotes
func (PostgresDialect) Quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

func (PostgresDialect) Paginate(limit, offset int, _ string) (string, string, error) {
	return "", limitOffset(limit, offset), nil
}
