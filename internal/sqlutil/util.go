package sqlutil

import (
	"fmt"
	"reflect"
	"strings"
)

// Placeholder renders the 1-based n-th bind parameter for a dialect.
type Placeholder func(n int) string

// ConvertQMarks rewrites '?' placeholders into the dialect's bind syntax.
// Question marks inside single-quoted literals are left untouched.
func ConvertQMarks(s string, ph Placeholder) string {
	var sb strings.Builder
	sb.Grow(len(s) + 8) // small headroom
	index := 1
	inSingle := false
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if ch == '\'' {
			inSingle = !inSingle
		}
		if ch == '?' && !inSingle {
			sb.WriteString(ph(index))
			index++
			continue
		}
		sb.WriteByte(ch)
	}
	return sb.String()
}

// ConvertNamed converts :name placeholders into '?' and returns ordered args.
// Rules:
// - Named identifiers must match [A-Za-z_][A-Za-z0-9_]*
// - Occurrences inside single-quoted string literals are ignored
// - For slice/array values, expands to multiple placeholders separated by ", "
// - Repeated scalar names bind the value again
// - Repeated slice names are not supported and will error to avoid ambiguous expansion
func ConvertNamed(sql string, named map[string]any) (string, []any, error) {
	var out strings.Builder
	args := make([]any, 0, len(named))
	expanded := map[string]bool{}
	inSingle := false
	for i := 0; i < len(sql); i++ {
		ch := sql[i]
		if ch == '\'' { // toggle on single quotes
			inSingle = !inSingle
			out.WriteByte(ch)
			continue
		}
		if inSingle {
			out.WriteByte(ch)
			continue
		}
		if ch != ':' {
			out.WriteByte(ch)
			continue
		}
		// Postgres cast '::'
		if i+1 < len(sql) && sql[i+1] == ':' {
			out.WriteString("::")
			i++
			continue
		}
		if i+1 >= len(sql) || !isIdentStart(sql[i+1]) {
			out.WriteByte(ch)
			continue
		}
		start := i + 1
		j := start + 1
		for j < len(sql) && isIdentPart(sql[j]) {
			j++
		}
		name := sql[start:j]
		val, ok := named[name]
		if !ok {
			return "", nil, fmt.Errorf("missing named param: %s", name)
		}
		if isSliceButNotBytes(val) {
			if expanded[name] {
				return "", nil, fmt.Errorf("repeated slice named param not supported: %s", name)
			}
			rv := reflect.ValueOf(val)
			ln := rv.Len()
			if ln == 0 {
				// keeps the predicate valid and always false
				out.WriteString("(NULL)")
			} else {
				out.WriteByte('(')
				for k := 0; k < ln; k++ {
					if k > 0 {
						out.WriteString(", ")
					}
					out.WriteByte('?')
					args = append(args, rv.Index(k).Interface())
				}
				out.WriteByte(')')
			}
			expanded[name] = true
		} else {
			out.WriteByte('?')
			args = append(args, val)
		}
		i = j - 1
	}
	return out.String(), args, nil
}

// CountQMarks returns the number of '?' placeholders outside string literals.
func CountQMarks(s string) int {
	n := 0
	inSingle := false
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\'':
			inSingle = !inSingle
		case '?':
			if !inSingle {
				n++
			}
		}
	}
	return n
}

func isIdentStart(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || b == '_'
}

func isIdentPart(b byte) bool {
	return isIdentStart(b) || (b >= '0' && b <= '9')
}

func isSliceButNotBytes(v any) bool {
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		// exclude []byte
		if rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() == reflect.Uint8 {
			return false
		}
		return true
	}
	return false
}
