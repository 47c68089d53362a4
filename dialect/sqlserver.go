package dialect

import (
	"fmt"
	"strings"
)

// SQLServerDialect targets Microsoft SQL Server via go-mssqldb.
type SQLServerDialect struct{}

func (SQLServerDialect) Name() string             { return SQLServer }
func (SQLServerDialect) DriverName() string       { return "sqlserver" }
func (SQLServerDialect) Placeholder(n int) string { return fmt.Sprintf("@p%d", n) }

// SupportsReturning is false; SQL Server uses OUTPUT clauses instead.
func (SQLServerDialect) SupportsReturning() bool { return false }

func (SQLServerDialect) Quote(ident string) string {
	return "[" + strings.ReplaceAll(ident, "]", "]]") + "]"
}

// Paginate uses OFFSET/FETCH which requires an ORDER BY clause.
func (SQLServerDialect) Paginate(limit, offset int, orderBy string) (string, string, error) {
	if limit <= 0 && offset <= 0 {
		return "", "", nil
	}
	var sb strings.Builder
	if strings.TrimSpace(orderBy) == "" {
		sb.WriteString(" ORDER BY (SELECT NULL)")
	}
	fmt.Fprintf(&sb, " OFFSET %d ROWS", offset)
	if limit > 0 {
		fmt.Fprintf(&sb, " FETCH NEXT %d ROWS ONLY", limit)
	}
	return "", sb.String(), nil
}
