package chain

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	core "github.com/kintsdev/chain/internal/core"
)

// EagerLoadMany loads the rows of type R in childTable whose childForeignKey matches one of
// the parents' ids, and hands each parent its children through set. Children are read
// through the rule-bearing select path, so soft deleted and restricted data stay hidden.
func EagerLoadMany[T any, R any](ctx context.Context, ds *DataSource, parents []*T, getParentID func(*T) any, childTable, childForeignKey string, set func(parent *T, children []*R)) error {
	if len(parents) == 0 {
		return nil
	}
	ids := make([]any, 0, len(parents))
	for _, p := range parents {
		ids = append(ids, getParentID(p))
	}
	rType := reflect.TypeOf((*R)(nil)).Elem()
	fiC, ok := core.StructMapper(rType).FieldsByColumn[strings.ToLower(childForeignKey)]
	if !ok {
		return fmt.Errorf("child foreign key column not found in struct: %s", childForeignKey)
	}
	var children []*R
	if err := ds.From(childTable).WhereNamed(ds.dialect.Quote(childForeignKey)+" IN :ids", map[string]any{"ids": ids}).Find(ctx, &children); err != nil {
		return err
	}
	// group by the formatted key so int32/int64 ids still match
	groups := make(map[string][]*R)
	for _, c := range children {
		fv := reflect.Indirect(reflect.ValueOf(c).Elem().FieldByIndex(fiC.Index))
		if !fv.IsValid() {
			continue
		}
		fk := fmt.Sprint(fv.Interface())
		groups[fk] = append(groups[fk], c)
	}
	for _, p := range parents {
		set(p, groups[fmt.Sprint(getParentID(p))])
	}
	return nil
}

// LazyLoadMany loads the children of a single parent
func LazyLoadMany[R any](ctx context.Context, ds *DataSource, parentID any, childTable, childForeignKey string) ([]*R, error) {
	var rows []*R
	if err := ds.From(childTable).Where(ds.dialect.Quote(childForeignKey)+" = ?", parentID).Find(ctx, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}
