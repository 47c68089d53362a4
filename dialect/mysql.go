package dialect

import (
	"fmt"
	"strings"
)

// MySQLDialect targets MySQL/MariaDB via go-sql-driver/mysql.
type MySQLDialect struct{}

func (MySQLDialect) Name() string           { return MySQL }
func (MySQLDialect) DriverName() string     { return "mysql" }
func (MySQLDialect) Placeholder(int) string { return "?" }
func (MySQLDialect) SupportsReturning() bool { return false }

func (MySQLDialect) Quote(ident string) string {
	return "`" + strings.ReplaceAll(ident, "`", "``") + "`"
}

func (MySQLDialect) Paginate(limit, offset int, _ string) (string, string, error) {
	if offset > 0 && limit <= 0 {
		// documented MySQL idiom for "all remaining rows"
		return "", fmt.Sprintf(" LIMIT 18446744073709551615 OFFSET %d", offset), nil
	}
	return "", limitOffset(limit, offset), nil
}
