package rules

import (
	"fmt"
	"reflect"
	"strings"
	"time"
)

// Kind identifies the variant carried by a Rule.
type Kind int

const (
	KindApplyValue Kind = iota + 1
	KindApplyDateTime
	KindApplyDateTimeOffset
	KindApplyUserData
	KindSoftDelete
	KindRestrictColumn
	KindValidation
)

var kindNames = map[Kind]string{
	KindApplyValue:          "apply_value",
	KindApplyDateTime:       "apply_datetime",
	KindApplyDateTimeOffset: "apply_datetime_offset",
	KindApplyUserData:       "apply_user_data",
	KindSoftDelete:          "soft_delete",
	KindRestrictColumn:      "restrict_column",
	KindValidation:          "validation",
}

func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// DateTimeKind selects the clock used by ApplyDateTime.
type DateTimeKind int

const (
	DateTimeUnspecified DateTimeKind = iota
	DateTimeLocal
	DateTimeUTC
)

// ValueFunc computes a column value from the argument object, the current user and
// the value the argument currently holds for the column.
type ValueFunc func(argument, user, current any) any

// Rule is an immutable audit rule. Construct rules with the functions in this package;
// the zero value is not usable.
type Rule struct {
	kind        Kind
	appliesWhen OperationType
	table       string
	column      string

	value     any
	valueFunc ValueFunc
	dateKind  DateTimeKind
	now       func() time.Time
	property  string
	accessor  PropertyAccessor

	exceptWhen func(user any) bool
	validate   func(argument any) []error
	expression string
}

// writeOperations are the operations a value-generating rule may apply to.
const writeOperations = OperationInsert | OperationUpdate | OperationDelete

func checkMask(rule string, mask, allowed OperationType) error {
	if !mask.valid() {
		return configErrorf(rule, "invalid operation mask %s", mask)
	}
	if mask&^allowed != 0 {
		return configErrorf(rule, "operation mask %s not allowed, allowed operations are %s", mask, allowed)
	}
	return nil
}

func checkColumn(rule, column string) error {
	if strings.TrimSpace(column) == "" {
		return configErrorf(rule, "column name is empty")
	}
	return nil
}

func newColumnRule(kind Kind, column string, mask, allowed OperationType) (*Rule, error) {
	if err := checkColumn(kind.String(), column); err != nil {
		return nil, err
	}
	if err := checkMask(kind.String(), mask, allowed); err != nil {
		return nil, err
	}
	return &Rule{kind: kind, appliesWhen: mask, column: strings.TrimSpace(column)}, nil
}

// ApplyValue writes a fixed value to column.
func ApplyValue(column string, value any, appliesWhen OperationType) (*Rule, error) {
	r, err := newColumnRule(KindApplyValue, column, appliesWhen, writeOperations)
	if err != nil {
		return nil, err
	}
	r.value = value
	return r, nil
}

// ApplyValueFunc writes the result of fn to column.
func ApplyValueFunc(column string, fn ValueFunc, appliesWhen OperationType) (*Rule, error) {
	if fn == nil {
		return nil, configErrorf(KindApplyValue.String(), "value function is nil")
	}
	r, err := newColumnRule(KindApplyValue, column, appliesWhen, writeOperations)
	if err != nil {
		return nil, err
	}
	r.valueFunc = fn
	return r, nil
}

// ApplyDateTime writes the current wall-clock time, local or UTC.
func ApplyDateTime(column string, kind DateTimeKind, appliesWhen OperationType) (*Rule, error) {
	if kind != DateTimeLocal && kind != DateTimeUTC {
		return nil, configErrorf(KindApplyDateTime.String(), "date time kind must be local or utc")
	}
	r, err := newColumnRule(KindApplyDateTime, column, appliesWhen, writeOperations)
	if err != nil {
		return nil, err
	}
	r.dateKind = kind
	return r, nil
}

// ApplyDateTimeOffset writes the current time with its zone offset.
func ApplyDateTimeOffset(column string, appliesWhen OperationType) (*Rule, error) {
	return newColumnRule(KindApplyDateTimeOffset, column, appliesWhen, writeOperations)
}

// ApplyUserData copies property from the current user object into column.
func ApplyUserData(column, property string, appliesWhen OperationType) (*Rule, error) {
	if strings.TrimSpace(property) == "" {
		return nil, configErrorf(KindApplyUserData.String(), "user property name is empty")
	}
	r, err := newColumnRule(KindApplyUserData, column, appliesWhen, writeOperations)
	if err != nil {
		return nil, err
	}
	r.property = property
	return r, nil
}

// SoftDelete marks rows as deleted by writing deletedValue to column. With Delete in
// appliesWhen, deletes become updates; with Select, rows holding deletedValue are
// filtered out of reads.
func SoftDelete(column string, deletedValue any, appliesWhen OperationType) (*Rule, error) {
	if deletedValue == nil {
		return nil, configErrorf(KindSoftDelete.String(), "deleted value is nil")
	}
	r, err := newColumnRule(KindSoftDelete, column, appliesWhen, OperationSelectOrDelete)
	if err != nil {
		return nil, err
	}
	r.value = deletedValue
	return r, nil
}

// RestrictColumn hides column unless exceptWhen(user) returns true. On Select the column
// reads as NULL; on writes the column is left out of the statement. An empty table
// applies the restriction to every table.
func RestrictColumn(table, column string, appliesWhen OperationType, exceptWhen func(user any) bool) (*Rule, error) {
	if exceptWhen == nil {
		return nil, configErrorf(KindRestrictColumn.String(), "predicate is nil")
	}
	r, err := newColumnRule(KindRestrictColumn, column, appliesWhen, OperationAll)
	if err != nil {
		return nil, err
	}
	r.table = strings.TrimSpace(table)
	r.exceptWhen = exceptWhen
	return r, nil
}

// Must panics when err is non-nil. It simplifies static rule declarations.
func Must(r *Rule, err error) *Rule {
	if err != nil {
		panic(err)
	}
	return r
}

// WithClock returns a copy of a date time rule that reads time from now.
func (r *Rule) WithClock(now func() time.Time) *Rule {
	c := *r
	c.now = now
	return &c
}

// WithAccessor returns a copy of a user data rule that reads the user through a.
func (r *Rule) WithAccessor(a PropertyAccessor) *Rule {
	c := *r
	c.accessor = a
	return &c
}

func (r *Rule) Kind() Kind                    { return r.kind }
func (r *Rule) AppliesWhen() OperationType    { return r.appliesWhen }
func (r *Rule) ColumnName() string            { return r.column }
func (r *Rule) TableName() string             { return r.table }
func (r *Rule) UserProperty() string          { return r.property }
func (r *Rule) Expression() string            { return r.expression }
func (r *Rule) IsColumnRule() bool            { return r.kind != KindValidation }
func (r *Rule) Applies(op OperationType) bool { return r.appliesWhen.Has(op) }

// DeletedValue returns the marker written by a soft delete rule.
func (r *Rule) DeletedValue() any {
	if r.kind != KindSoftDelete {
		return nil
	}
	return r.value
}

func (r *Rule) String() string {
	if r.kind == KindValidation {
		return fmt.Sprintf("%s(%s)", r.kind, r.appliesWhen)
	}
	return fmt.Sprintf("%s(%s, %s)", r.kind, r.column, r.appliesWhen)
}

// generates reports whether the rule produces column values.
func (r *Rule) generates() bool {
	switch r.kind {
	case KindApplyValue, KindApplyDateTime, KindApplyDateTimeOffset, KindApplyUserData, KindSoftDelete:
		return true
	}
	return false
}

func (r *Rule) matchesColumn(sqlName, propertyName string) bool {
	if strings.EqualFold(r.column, sqlName) {
		return true
	}
	return propertyName != "" && strings.EqualFold(r.column, propertyName)
}

func (r *Rule) matchesTable(table string) bool {
	return r.table == "" || sameTable(r.table, table)
}

func (r *Rule) clock() time.Time {
	if r.now != nil {
		return r.now()
	}
	return time.Now()
}

// GenerateValue computes the value the rule assigns to its column. It has no side effects.
func (r *Rule) GenerateValue(argument, user, current any) (any, error) {
	switch r.kind {
	case KindApplyValue:
		if r.valueFunc != nil {
			return r.valueFunc(argument, user, current), nil
		}
		return r.value, nil
	case KindApplyDateTime:
		if r.dateKind == DateTimeUTC {
			return r.clock().UTC(), nil
		}
		return r.clock().Local(), nil
	case KindApplyDateTimeOffset:
		return r.clock(), nil
	case KindApplyUserData:
		if isNilUser(user) {
			return nil, &ConfigError{Rule: r.String(), Message: "cannot read " + r.property, Err: ErrMissingUser}
		}
		v, ok := accessorOrDefault(r.accessor).TryGet(user, r.property)
		if !ok {
			return nil, &ConfigError{Rule: r.String(), Message: fmt.Sprintf("user %T has no property %s", user, r.property), Err: ErrUnknownProperty}
		}
		return v, nil
	case KindSoftDelete:
		return r.value, nil
	case KindRestrictColumn:
		return current, nil
	default:
		return nil, configErrorf(r.String(), "rule does not generate values")
	}
}

// isNilUser treats a nil interface and a typed nil pointer, map or interface alike
func isNilUser(user any) bool {
	if user == nil {
		return true
	}
	v := reflect.ValueOf(user)
	switch v.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Interface:
		return v.IsNil()
	}
	return false
}

// IsRestricted reports whether a restriction rule hides its column from user.
// It is false for every other kind.
func (r *Rule) IsRestricted(user any) bool {
	if r.kind != KindRestrictColumn {
		return false
	}
	return !r.exceptWhen(user)
}
