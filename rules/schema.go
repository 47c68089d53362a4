package rules

import (
	"reflect"
	"strings"

	core "github.com/kintsdev/chain/internal/core"
)

// Column describes one column of a table.
type Column struct {
	SQLName      string
	PropertyName string
	PrimaryKey   bool
	Identity     bool
}

// Matches reports whether name equals the SQL or the property name, ignoring case.
func (c Column) Matches(name string) bool {
	return strings.EqualFold(c.SQLName, name) || (c.PropertyName != "" && strings.EqualFold(c.PropertyName, name))
}

// Table is the schema view the rule engine needs: ordered columns with key flags.
type Table struct {
	Name    string
	Columns []Column
}

// Column finds a column by SQL or property name.
func (t *Table) Column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Matches(name) {
			return c, true
		}
	}
	return Column{}, false
}

// KeyColumns returns the primary key columns in schema order.
func (t *Table) KeyColumns() []Column {
	var out []Column
	for _, c := range t.Columns {
		if c.PrimaryKey {
			out = append(out, c)
		}
	}
	return out
}

// TableFor derives a table schema from a struct type using `db` and `norm` tags.
// model may be a struct, a pointer to one, or a reflect.Type.
func TableFor(name string, model any) *Table {
	var typ reflect.Type
	switch m := model.(type) {
	case reflect.Type:
		typ = m
	default:
		typ = reflect.TypeOf(model)
	}
	mapping := core.StructMapper(typ)
	t := &Table{Name: name, Columns: make([]Column, 0, len(mapping.Fields))}
	for _, f := range mapping.Fields {
		t.Columns = append(t.Columns, Column{
			SQLName:      f.Column,
			PropertyName: f.Name,
			PrimaryKey:   f.PrimaryKey,
			Identity:     f.Identity,
		})
	}
	return t
}

// sameTable compares table names ignoring case. A name without a schema qualifier
// matches the same table in any schema; two qualified names must agree on the schema.
func sameTable(a, b string) bool {
	if strings.EqualFold(a, b) {
		return true
	}
	if qualified(a) && qualified(b) {
		return false
	}
	return strings.EqualFold(unqualified(a), unqualified(b))
}

func qualified(name string) bool { return strings.IndexByte(name, '.') >= 0 }

func unqualified(name string) string {
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		return name[i+1:]
	}
	return name
}
