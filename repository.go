package chain

import (
	"context"
	"fmt"
	"reflect"

	"github.com/kintsdev/chain/rules"
)

// Repository defines rule-aware CRUD operations for type T stored in one table
type Repository[T any] interface {
	Insert(ctx context.Context, entity *T) error
	InsertBatch(ctx context.Context, entities []*T) error
	Update(ctx context.Context, entity *T) error
	Upsert(ctx context.Context, entity *T) error
	Delete(ctx context.Context, entity *T) error
	GetByKey(ctx context.Context, keys ...any) (*T, error)
	Find(ctx context.Context, conditions ...Condition) ([]*T, error)
	FindOne(ctx context.Context, conditions ...Condition) (*T, error)
	FindPage(ctx context.Context, page PageRequest, conditions ...Condition) (Page[T], error)
	Count(ctx context.Context, conditions ...Condition) (int64, error)
	Exists(ctx context.Context, conditions ...Condition) (bool, error)
	WithDeletedRows() Repository[T]
	OnlyDeletedRows() Repository[T]
}

type repo[T any] struct {
	ds    *DataSource
	table string
	mode  softDeleteMode
}

// NewRepository creates a repository for T in table. ds may be a transaction.
func NewRepository[T any](ds *DataSource, table string) Repository[T] {
	return &repo[T]{ds: ds, table: table}
}

func (r *repo[T]) WithDeletedRows() Repository[T] { nr := *r; nr.mode = softModeWithDeleted; return &nr }
func (r *repo[T]) OnlyDeletedRows() Repository[T] { nr := *r; nr.mode = softModeOnlyDeleted; return &nr }

func (r *repo[T]) modelType() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

func (r *repo[T]) query(conditions []Condition) *QueryBuilder {
	qb := r.ds.From(r.table).withModel(r.modelType())
	qb.mode = r.mode
	for _, c := range conditions {
		qb = qb.WhereCond(c)
	}
	return qb
}

// Insert writes entity. Where the dialect supports RETURNING, generated identity
// columns are read back into entity.
func (r *repo[T]) Insert(ctx context.Context, entity *T) error {
	if entity == nil {
		return &ORMError{Code: ErrCodeValidation, Message: "nil entity"}
	}
	cmd := r.ds.Insert(r.table, entity)
	if ids := r.identityColumns(); len(ids) > 0 && r.ds.dialect.SupportsReturning() {
		_, err := cmd.Returning(ids...).ExecInto(ctx, entity)
		return err
	}
	_, err := cmd.Exec(ctx)
	return err
}

func (r *repo[T]) identityColumns() []string {
	t, ok := r.ds.tableFor(r.table, r.modelType())
	if !ok {
		return nil
	}
	var out []string
	for _, c := range t.Columns {
		if c.Identity {
			out = append(out, c.SQLName)
		}
	}
	return out
}

// InsertBatch inserts entities in one transaction
func (r *repo[T]) InsertBatch(ctx context.Context, entities []*T) error {
	if len(entities) == 0 {
		return nil
	}
	return r.ds.WithTransaction(ctx, func(tx *DataSource) error {
		txRepo := &repo[T]{ds: tx, table: r.table, mode: r.mode}
		for _, e := range entities {
			if err := txRepo.Insert(ctx, e); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *repo[T]) Update(ctx context.Context, entity *T) error {
	if entity == nil {
		return &ORMError{Code: ErrCodeValidation, Message: "nil entity"}
	}
	_, err := r.ds.Update(r.table, entity).Exec(ctx)
	return err
}

// Upsert inserts entity, or updates the stored row carrying the same primary key
func (r *repo[T]) Upsert(ctx context.Context, entity *T) error {
	if entity == nil {
		return &ORMError{Code: ErrCodeValidation, Message: "nil entity"}
	}
	_, err := r.ds.Upsert(r.table, entity).Exec(ctx)
	return err
}

// Delete removes entity, or marks it deleted when a soft delete rule covers the table
func (r *repo[T]) Delete(ctx context.Context, entity *T) error {
	if entity == nil {
		return &ORMError{Code: ErrCodeValidation, Message: "nil entity"}
	}
	_, err := r.ds.Delete(r.table, entity).Exec(ctx)
	return err
}

// GetByKey loads the row whose primary key columns, in schema order, equal keys
func (r *repo[T]) GetByKey(ctx context.Context, keys ...any) (*T, error) {
	t, err := r.ds.requireTable(r.table, r.modelType())
	if err != nil {
		return nil, err
	}
	keyCols := t.KeyColumns()
	if len(keyCols) == 0 || len(keyCols) != len(keys) {
		return nil, &ORMError{Code: ErrCodeValidation, Message: fmt.Sprintf("%s has %d key columns, got %d values", r.table, len(keyCols), len(keys))}
	}
	conds := make([]Condition, len(keyCols))
	for i, c := range keyCols {
		conds[i] = Eq(r.ds.dialect.Quote(c.SQLName), keys[i])
	}
	return r.FindOne(ctx, conds...)
}

func (r *repo[T]) Find(ctx context.Context, conditions ...Condition) ([]*T, error) {
	var out []*T
	if err := r.query(conditions).Find(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *repo[T]) FindOne(ctx context.Context, conditions ...Condition) (*T, error) {
	out := new(T)
	if err := r.query(conditions).First(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *repo[T]) Count(ctx context.Context, conditions ...Condition) (int64, error) {
	return r.query(conditions).Count(ctx)
}

func (r *repo[T]) Exists(ctx context.Context, conditions ...Condition) (bool, error) {
	c, err := r.Count(ctx, conditions...)
	return c > 0, err
}

// PageRequest describes pagination and ordering
type PageRequest struct {
	Limit   int
	Offset  int
	OrderBy string // e.g., "id ASC" or "created_at DESC"
}

// Page represents a paginated result
type Page[T any] struct {
	Items  []*T
	Total  int64
	Limit  int
	Offset int
}

// FindPage returns a page of results and total count with the same filters
func (r *repo[T]) FindPage(ctx context.Context, page PageRequest, conditions ...Condition) (Page[T], error) {
	total, err := r.Count(ctx, conditions...)
	if err != nil {
		return Page[T]{}, err
	}
	qb := r.query(conditions)
	if page.OrderBy != "" {
		qb = qb.OrderBy(page.OrderBy)
	}
	if page.Limit > 0 {
		qb = qb.Limit(page.Limit)
	}
	if page.Offset > 0 {
		qb = qb.Offset(page.Offset)
	}
	var items []*T
	if err := qb.Find(ctx, &items); err != nil {
		return Page[T]{}, err
	}
	return Page[T]{Items: items, Total: total, Limit: page.Limit, Offset: page.Offset}, nil
}

// TableOf returns the schema a repository for T in table would use
func TableOf[T any](ds *DataSource, table string) (*rules.Table, error) {
	return ds.requireTable(table, reflect.TypeOf((*T)(nil)).Elem())
}
