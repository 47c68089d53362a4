package dialect

import (
	"fmt"
	"strings"
)

// OnConflict returns the clause appended to an INSERT so that a row colliding on keys is
// updated instead. keys and sets are unquoted column names; with no sets the collision is
// ignored. SQL Server and Access have no such clause and return ErrUnsupported.
func OnConflict(d Dialect, keys, sets []string) (string, error) {
	if len(keys) == 0 {
		return "", fmt.Errorf("%w: upsert needs at least one conflict column", ErrUnsupported)
	}
	switch d.Name() {
	case Postgres, SQLite:
		target := make([]string, 0, len(keys))
		for _, k := range keys {
			target = append(target, d.Quote(k))
		}
		clause := " ON CONFLICT (" + strings.Join(target, ", ") + ")"
		if len(sets) == 0 {
			return clause + " DO NOTHING", nil
		}
		assigns := make([]string, 0, len(sets))
		for _, s := range sets {
			assigns = append(assigns, d.Quote(s)+" = EXCLUDED."+d.Quote(s))
		}
		return clause + " DO UPDATE SET " + strings.Join(assigns, ", "), nil
	case MySQL:
		if len(sets) == 0 {
			// self assignment leaves the existing row untouched
			k := d.Quote(keys[0])
			return " ON DUPLICATE KEY UPDATE " + k + " = " + k, nil
		}
		assigns := make([]string, 0, len(sets))
		for _, s := range sets {
			q := d.Quote(s)
			assigns = append(assigns, q+" = VALUES("+q+")")
		}
		return " ON DUPLICATE KEY UPDATE " + strings.Join(assigns, ", "), nil
	default:
		return "", fmt.Errorf("%w: %s has no upsert clause", ErrUnsupported, d.Name())
	}
}
