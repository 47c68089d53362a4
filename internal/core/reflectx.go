package core

import (
	"reflect"
	"strings"
	"sync"
	"time"
)

type StructFieldInfo struct {
	Index  []int
	Name   string
	Column string
	// PrimaryKey and Identity come from the `norm` tag (primary_key, auto_increment)
	PrimaryKey bool
	Identity   bool
}

type StructMapping struct {
	Fields         []StructFieldInfo // declaration order
	FieldsByColumn map[string]StructFieldInfo
	FieldsByName   map[string]StructFieldInfo
	PrimaryColumns []string
}

var mappings sync.Map // reflect.Type -> *StructMapping

// Deref strips pointer levels from t.
func Deref(t reflect.Type) reflect.Type {
	for t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t
}

// StructMapper returns the column mapping for a struct type. Results are cached per type
// and must be treated as read-only.
func StructMapper(t reflect.Type) *StructMapping {
	t = Deref(t)
	if m, ok := mappings.Load(t); ok {
		return m.(*StructMapping)
	}
	m := buildMapping(t)
	actual, _ := mappings.LoadOrStore(t, m)
	return actual.(*StructMapping)
}

func buildMapping(t reflect.Type) *StructMapping {
	m := &StructMapping{
		FieldsByColumn: make(map[string]StructFieldInfo),
		FieldsByName:   make(map[string]StructFieldInfo),
	}
	if t == nil || t.Kind() != reflect.Struct {
		return m
	}
	explicitPK := false
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if f.PkgPath != "" { // unexported
			continue
		}
		col := f.Tag.Get("db")
		if col == "-" {
			continue
		}
		if col == "" {
			col = ToSnakeCase(f.Name)
		}
		// Prefer `norm` tag; fallback to legacy `orm`
		orm := f.Tag.Get("norm")
		if orm == "" {
			orm = f.Tag.Get("orm")
		}
		fi := StructFieldInfo{Index: f.Index, Name: f.Name, Column: col}
		ignored := false
		for _, p := range strings.Split(orm, ",") {
			switch strings.TrimSpace(p) {
			case "primary_key":
				fi.PrimaryKey = true
				explicitPK = true
			case "auto_increment":
				fi.Identity = true
			case "-", "ignore":
				ignored = true
			}
		}
		if ignored {
			continue
		}
		m.Fields = append(m.Fields, fi)
	}
	// fall back to an "id" column when no primary_key tag is present
	if !explicitPK {
		for i := range m.Fields {
			if strings.EqualFold(m.Fields[i].Column, "id") {
				m.Fields[i].PrimaryKey = true
				break
			}
		}
	}
	for _, fi := range m.Fields {
		m.FieldsByColumn[strings.ToLower(fi.Column)] = fi
		m.FieldsByName[fi.Name] = fi
		if fi.PrimaryKey {
			m.PrimaryColumns = append(m.PrimaryColumns, fi.Column)
		}
	}
	return m
}

// GetByName reads the exported field called name (exact match) from a struct or
// pointer to struct, or the key name from a map[string]any.
func GetByName(obj any, name string) (any, bool) {
	if obj == nil {
		return nil, false
	}
	if m, ok := obj.(map[string]any); ok {
		v, ok := m[name]
		return v, ok
	}
	v := reflect.ValueOf(obj)
	for v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return nil, false
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return nil, false
	}
	fi, ok := StructMapper(v.Type()).FieldsByName[name]
	if !ok {
		// unmapped exported fields (e.g. db:"-") are still readable
		sf, found := v.Type().FieldByName(name)
		if !found || sf.PkgPath != "" {
			return nil, false
		}
		return v.FieldByIndex(sf.Index).Interface(), true
	}
	return v.FieldByIndex(fi.Index).Interface(), true
}

// SetByName writes the exported field called name on a pointer to struct, or the key
// name on a map[string]any. It reports whether the value was stored.
func SetByName(obj any, name string, value any) bool {
	if obj == nil {
		return false
	}
	if m, ok := obj.(map[string]any); ok {
		m[name] = value
		return true
	}
	v := reflect.ValueOf(obj)
	if v.Kind() != reflect.Ptr || v.IsNil() {
		return false
	}
	elem := reflect.Indirect(v)
	if elem.Kind() != reflect.Struct {
		return false
	}
	sf, found := elem.Type().FieldByName(name)
	if !found || sf.PkgPath != "" {
		return false
	}
	return SetFieldByIndex(v, sf.Index, value)
}

// SetFieldByIndex assigns value to the field at index, converting where the driver
// representation differs from the Go field type. It reports whether the value was stored.
func SetFieldByIndex(v reflect.Value, index []int, value any) bool {
	// ensure addressable
	for v.Kind() == reflect.Ptr {
		if v.IsNil() {
			v.Set(reflect.New(v.Type().Elem()))
		}
		v = v.Elem()
	}
	fv := v.FieldByIndex(index)
	if !fv.IsValid() || !fv.CanSet() {
		return false
	}
	if value == nil {
		fv.Set(reflect.Zero(fv.Type()))
		return true
	}
	val := reflect.ValueOf(value)
	target := fv.Type()
	if target.Kind() == reflect.Ptr {
		target = target.Elem()
	}
	converted, ok := convertValue(val, target)
	if !ok {
		return false
	}
	if fv.Kind() == reflect.Ptr {
		p := reflect.New(target)
		p.Elem().Set(converted)
		fv.Set(p)
		return true
	}
	fv.Set(converted)
	return true
}

var timeType = reflect.TypeOf(time.Time{})

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func convertValue(val reflect.Value, target reflect.Type) (reflect.Value, bool) {
	// pointer sources (e.g. *time.Time from a nullable column)
	for val.Kind() == reflect.Ptr {
		if val.IsNil() {
			return reflect.Zero(target), true
		}
		val = val.Elem()
	}
	if val.Type().AssignableTo(target) {
		return val, true
	}
	// TIMESTAMP columns stored as text (sqlite)
	if target == timeType {
		var s string
		switch val.Kind() {
		case reflect.String:
			s = val.String()
		case reflect.Slice:
			if val.Type().Elem().Kind() != reflect.Uint8 {
				return reflect.Value{}, false
			}
			s = string(val.Bytes())
		default:
			return reflect.Value{}, false
		}
		for _, layout := range timeLayouts {
			if ts, err := time.Parse(layout, s); err == nil {
				return reflect.ValueOf(ts), true
			}
		}
		return reflect.Value{}, false
	}
	// integer booleans (sqlite, access)
	if target.Kind() == reflect.Bool {
		switch val.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			return reflect.ValueOf(val.Int() != 0).Convert(target), true
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			return reflect.ValueOf(val.Uint() != 0).Convert(target), true
		}
	}
	if target.Kind() == reflect.String && val.Kind() != reflect.String && val.Kind() != reflect.Slice {
		// avoid int -> string rune conversion
		return reflect.Value{}, false
	}
	if val.Type().ConvertibleTo(target) {
		return val.Convert(target), true
	}
	return reflect.Value{}, false
}

func ToSnakeCase(s string) string {
	var out []rune
	for i, r := range s {
		if i > 0 && r >= 'A' && r <= 'Z' {
			out = append(out, '_', r+('a'-'A'))
		} else {
			if r >= 'A' && r <= 'Z' {
				out = append(out, r+('a'-'A'))
			} else {
				out = append(out, r)
			}
		}
	}
	return string(out)
}
