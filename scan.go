package chain

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	core "github.com/kintsdev/chain/internal/core"
)

// scanRows materializes rows into dest and closes rows. dest may be *[]map[string]any,
// a pointer to a slice of structs or struct pointers, or a pointer to a struct (first row).
func scanRows(rows rowSet, dest any) (int64, error) {
	return scanRowsHiding(rows, dest, nil)
}

// scanRowsHiding is scanRows with the columns in hidden (lower-cased names) read as NULL
func scanRowsHiding(rows rowSet, dest any, hidden map[string]bool) (int64, error) {
	defer rows.Close()
	cols, err := rows.Columns()
	if err != nil {
		return 0, err
	}
	mask := func(vals []any) {
		if len(hidden) == 0 {
			return
		}
		for i := range vals {
			if i < len(cols) && hidden[strings.ToLower(cols[i])] {
				vals[i] = nil
			}
		}
	}
	var count int64
	switch d := dest.(type) {
	case *[]map[string]any:
		for rows.Next() {
			vals, err := rows.Values()
			if err != nil {
				return count, err
			}
			mask(vals)
			m := make(map[string]any, len(vals))
			for i, v := range vals {
				m[cols[i]] = v
			}
			*d = append(*d, m)
			count++
		}
		return count, rows.Err()
	case *map[string]any:
		if rows.Next() {
			vals, err := rows.Values()
			if err != nil {
				return 0, err
			}
			mask(vals)
			if *d == nil {
				*d = make(map[string]any, len(vals))
			}
			for i, v := range vals {
				(*d)[cols[i]] = v
			}
			count++
		}
		return count, rows.Err()
	}

	rv := reflect.ValueOf(dest)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return 0, &ORMError{Code: ErrCodeValidation, Message: fmt.Sprintf("dest must be a non-nil pointer, got %T", dest)}
	}
	target := rv.Elem()
	switch {
	case target.Kind() == reflect.Struct:
		if rows.Next() {
			vals, err := rows.Values()
			if err != nil {
				return 0, err
			}
			mask(vals)
			if err := assignStruct(rv, cols, vals); err != nil {
				return 0, err
			}
			count++
		}
		return count, rows.Err()
	case target.Kind() == reflect.Slice:
		elemType := target.Type().Elem()
		isPtr := elemType.Kind() == reflect.Ptr
		structType := core.Deref(elemType)
		if structType.Kind() != reflect.Struct {
			return 0, &ORMError{Code: ErrCodeValidation, Message: fmt.Sprintf("unsupported slice element %s", elemType)}
		}
		for rows.Next() {
			vals, err := rows.Values()
			if err != nil {
				return count, err
			}
			mask(vals)
			elemPtr := reflect.New(structType)
			if err := assignStruct(elemPtr, cols, vals); err != nil {
				return count, err
			}
			if isPtr {
				target.Set(reflect.Append(target, elemPtr))
			} else {
				target.Set(reflect.Append(target, elemPtr.Elem()))
			}
			count++
		}
		return count, rows.Err()
	default:
		return 0, &ORMError{Code: ErrCodeValidation, Message: fmt.Sprintf("unsupported dest %T", dest)}
	}
}

// assignStruct sets the mapped fields of the struct behind ptr; unmapped columns are ignored
func assignStruct(ptr reflect.Value, cols []string, vals []any) error {
	mapper := core.StructMapper(ptr.Type())
	for i, v := range vals {
		fi, ok := mapper.FieldsByColumn[strings.ToLower(cols[i])]
		if !ok {
			continue
		}
		if !core.SetFieldByIndex(ptr, fi.Index, v) {
			return &ORMError{Code: ErrCodeInvalidCast, Message: fmt.Sprintf("cannot assign %T to field %s (column %s)", v, fi.Name, cols[i])}
		}
	}
	return nil
}

// toInt64 converts a driver integer (or its text form) to int64
func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case []byte:
		return strconv.ParseInt(string(n), 10, 64)
	case string:
		return strconv.ParseInt(n, 10, 64)
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return int64(rv.Uint()), nil
	case reflect.Float32, reflect.Float64:
		return int64(rv.Float()), nil
	}
	return 0, fmt.Errorf("cannot convert %T to int64", v)
}
