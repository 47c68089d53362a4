package rules

import "strings"

// Collection is an immutable ordered list of rules. Order is significant: when several
// rules target the same column, the later one determines the value. A nil *Collection
// behaves as an empty one. Collections are safe for concurrent use.
type Collection struct {
	rules []*Rule
}

var empty = &Collection{}

// Empty returns the shared empty collection.
func Empty() *Collection { return empty }

// NewCollection builds a collection from rs, skipping nil entries.
func NewCollection(rs ...*Rule) *Collection {
	return empty.With(rs...)
}

// With returns a new collection holding c's rules followed by rs. c is not modified.
func (c *Collection) With(rs ...*Rule) *Collection {
	base := c.Rules()
	out := make([]*Rule, 0, len(base)+len(rs))
	out = append(out, base...)
	for _, r := range rs {
		if r != nil {
			out = append(out, r)
		}
	}
	return &Collection{rules: out}
}

// Len returns the number of rules.
func (c *Collection) Len() int {
	if c == nil {
		return 0
	}
	return len(c.rules)
}

// Rules returns a copy of the rules in order.
func (c *Collection) Rules() []*Rule {
	if c == nil {
		return nil
	}
	out := make([]*Rule, len(c.rules))
	copy(out, c.rules)
	return out
}

func (c *Collection) each(fn func(*Rule)) {
	if c == nil {
		return
	}
	for _, r := range c.rules {
		fn(r)
	}
}

// SoftDeleteRules returns the soft delete rules that apply to op and whose column exists on table.
func (c *Collection) SoftDeleteRules(table *Table, op OperationType) []*Rule {
	var out []*Rule
	if table == nil {
		return nil
	}
	c.each(func(r *Rule) {
		if r.kind != KindSoftDelete || !r.Applies(op) {
			return
		}
		if _, ok := table.Column(r.column); ok {
			out = append(out, r)
		}
	})
	return out
}

// UseSoftDelete reports whether deletes against table are rewritten to updates.
func (c *Collection) UseSoftDelete(table *Table) bool {
	return len(c.SoftDeleteRules(table, OperationDelete)) > 0
}

// RulesForColumn returns the value-generating rules for op whose column matches either the
// SQL or the property name, ignoring case. Restrictions and validations are never returned.
func (c *Collection) RulesForColumn(sqlName, propertyName string, op OperationType) []*Rule {
	var out []*Rule
	c.each(func(r *Rule) {
		if r.generates() && r.Applies(op) && r.matchesColumn(sqlName, propertyName) {
			out = append(out, r)
		}
	})
	return out
}

// RestrictionsForColumn returns the restriction rules for op that target the column on table.
func (c *Collection) RestrictionsForColumn(table, sqlName, propertyName string, op OperationType) []*Rule {
	var out []*Rule
	c.each(func(r *Rule) {
		if r.kind == KindRestrictColumn && r.Applies(op) && r.matchesTable(table) && r.matchesColumn(sqlName, propertyName) {
			out = append(out, r)
		}
	})
	return out
}

// IsRestricted reports whether any restriction for op hides the column from user.
func (c *Collection) IsRestricted(table, sqlName, propertyName string, op OperationType, user any) bool {
	for _, r := range c.RestrictionsForColumn(table, sqlName, propertyName, op) {
		if r.IsRestricted(user) {
			return true
		}
	}
	return false
}

// ShapesReads reports whether a soft delete or a select restriction may affect reads of
// the named table. Such reads need the table's schema.
func (c *Collection) ShapesReads(table string) bool {
	found := false
	c.each(func(r *Rule) {
		if found || !r.Applies(OperationSelect) {
			return
		}
		switch r.kind {
		case KindSoftDelete:
			found = true
		case KindRestrictColumn:
			found = r.matchesTable(table)
		}
	})
	return found
}

// ValidationRules returns the validation rules that apply to op.
func (c *Collection) ValidationRules(op OperationType) []*Rule {
	var out []*Rule
	c.each(func(r *Rule) {
		if r.kind == KindValidation && r.Applies(op) {
			out = append(out, r)
		}
	})
	return out
}

// CheckValidation runs every validation rule for op against argument and returns a single
// *ValidationError carrying all failures, or nil.
func (c *Collection) CheckValidation(op OperationType, argument any) error {
	var errs []error
	for _, r := range c.ValidationRules(op) {
		if err := r.CheckValue(argument); err != nil {
			if ve, ok := err.(*ValidationError); ok {
				errs = append(errs, ve.Errors()...)
				continue
			}
			errs = append(errs, err)
		}
	}
	if ve := newValidationError(errs); ve != nil {
		return ve
	}
	return nil
}

func (c *Collection) String() string {
	parts := make([]string, 0, c.Len())
	c.each(func(r *Rule) { parts = append(parts, r.String()) })
	return "[" + strings.Join(parts, ", ") + "]"
}
