package rules

import (
	"fmt"
	"strings"
)

// Request carries the inputs of one rule evaluation.
type Request struct {
	Table    *Table
	Argument any
	User     any
	// Accessor reads argument properties; nil uses ReflectAccessor.
	Accessor PropertyAccessor
}

// ColumnValue is a column paired with the value bound for it.
type ColumnValue struct {
	Column Column
	Value  any
}

// WritePlan is the parameter set of an insert or update after rule evaluation.
type WritePlan struct {
	Table *Table
	// Values are the columns to write, in schema order.
	Values []ColumnValue
	// Keys identify the row on update.
	Keys []ColumnValue
	// Applied lists the value rules that produced a column value.
	Applied []*Rule
}

// DeletePlan describes a delete. When Soft is set the delete must be issued as an
// update writing Values to the rows matching Keys.
type DeletePlan struct {
	Table   *Table
	Soft    bool
	Values  []ColumnValue
	Keys    []ColumnValue
	Applied []*Rule
}

// SelectPlan carries the read-side shaping for a table.
type SelectPlan struct {
	Table *Table
	// SoftDeleteFilters are columns whose rows holding the deleted value are hidden.
	SoftDeleteFilters []ColumnValue
	// Restricted holds lower-cased SQL names of columns that read as NULL.
	Restricted map[string]bool
}

// IsRestricted reports whether the column reads as NULL.
func (p *SelectPlan) IsRestricted(sqlName string) bool {
	return p != nil && p.Restricted[strings.ToLower(sqlName)]
}

func (r Request) read(col Column) (any, bool) {
	a := accessorOrDefault(r.Accessor)
	if col.PropertyName != "" {
		if v, ok := a.TryGet(r.Argument, col.PropertyName); ok {
			return v, true
		}
	}
	return a.TryGet(r.Argument, col.SQLName)
}

func (r Request) keys() ([]ColumnValue, error) {
	keyCols := r.Table.KeyColumns()
	if len(keyCols) == 0 {
		return nil, &ConfigError{Rule: r.Table.Name, Message: "table has no primary key", Err: ErrMissingKey}
	}
	out := make([]ColumnValue, 0, len(keyCols))
	for _, col := range keyCols {
		v, ok := r.read(col)
		if !ok || v == nil {
			return nil, &ConfigError{Rule: r.Table.Name, Message: fmt.Sprintf("no value for key column %s", col.SQLName), Err: ErrMissingKey}
		}
		out = append(out, ColumnValue{Column: col, Value: v})
	}
	return out, nil
}

// generate applies rs in order to the column and returns the last value.
func (r Request) generate(rs []*Rule, current any) (any, error) {
	value := current
	for _, rule := range rs {
		v, err := rule.GenerateValue(r.Argument, r.User, current)
		if err != nil {
			return nil, err
		}
		value = v
	}
	return value, nil
}

func checkRequest(req Request) error {
	if req.Table == nil {
		return configErrorf("", "request has no table")
	}
	if req.Argument == nil {
		return configErrorf(req.Table.Name, "request has no argument")
	}
	return nil
}

// PrepareWrite validates the argument and computes the column values of an insert or
// update. Validation failures abort before any value is generated.
func (c *Collection) PrepareWrite(op OperationType, req Request) (*WritePlan, error) {
	if op != OperationInsert && op != OperationUpdate {
		return nil, configErrorf("", "write operation must be insert or update, got %s", op)
	}
	if err := checkRequest(req); err != nil {
		return nil, err
	}
	if err := c.CheckValidation(op, req.Argument); err != nil {
		return nil, err
	}
	plan := &WritePlan{Table: req.Table}
	if op == OperationUpdate {
		keys, err := req.keys()
		if err != nil {
			return nil, err
		}
		plan.Keys = keys
	}
	for _, col := range req.Table.Columns {
		if op == OperationInsert && col.Identity {
			continue
		}
		if op == OperationUpdate && col.PrimaryKey {
			continue
		}
		if c.IsRestricted(req.Table.Name, col.SQLName, col.PropertyName, op, req.User) {
			continue
		}
		current, present := req.read(col)
		rs := c.RulesForColumn(col.SQLName, col.PropertyName, op)
		if len(rs) > 0 {
			v, err := req.generate(rs, current)
			if err != nil {
				return nil, err
			}
			plan.Values = append(plan.Values, ColumnValue{Column: col, Value: v})
			plan.Applied = append(plan.Applied, rs...)
			continue
		}
		// columns owned by insert or delete rules keep their stored value on update
		if op == OperationUpdate && len(c.RulesForColumn(col.SQLName, col.PropertyName, OperationAll)) > 0 {
			continue
		}
		if !present {
			continue
		}
		plan.Values = append(plan.Values, ColumnValue{Column: col, Value: current})
	}
	return plan, nil
}

// PrepareDelete decides between a physical and a soft delete and, for soft deletes,
// computes the values written by the delete-scoped rules.
func (c *Collection) PrepareDelete(req Request) (*DeletePlan, error) {
	if err := checkRequest(req); err != nil {
		return nil, err
	}
	keys, err := req.keys()
	if err != nil {
		return nil, err
	}
	plan := &DeletePlan{Table: req.Table, Keys: keys, Soft: c.UseSoftDelete(req.Table)}
	if !plan.Soft {
		return plan, nil
	}
	for _, col := range req.Table.Columns {
		if col.PrimaryKey {
			continue
		}
		if c.IsRestricted(req.Table.Name, col.SQLName, col.PropertyName, OperationDelete, req.User) {
			continue
		}
		rs := c.RulesForColumn(col.SQLName, col.PropertyName, OperationDelete)
		if len(rs) == 0 {
			continue
		}
		current, _ := req.read(col)
		v, err := req.generate(rs, current)
		if err != nil {
			return nil, err
		}
		plan.Values = append(plan.Values, ColumnValue{Column: col, Value: v})
		plan.Applied = append(plan.Applied, rs...)
	}
	return plan, nil
}

// PlanSelect computes the soft delete filters and column restrictions of a read.
// Argument is not required.
func (c *Collection) PlanSelect(req Request) *SelectPlan {
	plan := &SelectPlan{Table: req.Table, Restricted: map[string]bool{}}
	if req.Table == nil {
		return plan
	}
	for _, r := range c.SoftDeleteRules(req.Table, OperationSelect) {
		col, _ := req.Table.Column(r.column)
		plan.SoftDeleteFilters = append(plan.SoftDeleteFilters, ColumnValue{Column: col, Value: r.value})
	}
	for _, col := range req.Table.Columns {
		if c.IsRestricted(req.Table.Name, col.SQLName, col.PropertyName, OperationSelect, req.User) {
			plan.Restricted[strings.ToLower(col.SQLName)] = true
		}
	}
	return plan
}
