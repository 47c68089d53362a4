package dialect

import (
	"fmt"
	"strings"
)

// SQLiteDialect targets SQLite via modernc.org/sqlite.
type SQLiteDialect struct{}

func (SQLiteDialect) Name() string             { return SQLite }
func (SQLiteDialect) DriverName() string       { return "sqlite" }
func (SQLiteDialect) Placeholder(n int) string { return fmt.Sprintf("?%d", n) }
func (SQLiteDialect) SupportsReturning() bool  { return true }

func (SQLiteDialect) Quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

func (SQLiteDialect) Paginate(limit, offset int, _ string) (string, string, error) {
	if offset > 0 && limit <= 0 {
		// sqlite requires LIMIT before OFFSET
		return "", fmt.Sprintf(" LIMIT -1 OFFSET %d", offset), nil
	}
	return "", limitOffset(limit, offset), nil
}
