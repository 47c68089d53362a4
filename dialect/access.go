package dialect

import (
	"fmt"
	"strings"
)

// AccessDialect targets Microsoft Access through an ODBC driver registered by the caller.
type AccessDialect struct{}

func (AccessDialect) Name() string            { return Access }
func (AccessDialect) DriverName() string      { return "" }
func (AccessDialect) Placeholder(int) string  { return "?" }
func (AccessDialect) SupportsReturning() bool { return false }

func (AccessDialect) Quote(ident string) string {
	return "[" + strings.ReplaceAll(ident, "]", "]]") + "]"
}

// Paginate supports TOP only; Access has no OFFSET.
func (AccessDialect) Paginate(limit, offset int, _ string) (string, string, error) {
	if offset > 0 {
		return "", "", fmt.Errorf("%w: access does not support OFFSET", ErrUnsupported)
	}
	if limit > 0 {
		return fmt.Sprintf("TOP %d ", limit), "", nil
	}
	return "", "", nil
}
