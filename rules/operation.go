package rules

import (
	"fmt"
	"strings"
)

// OperationType is a bitmask of the operations a rule applies to.
type OperationType int

const (
	OperationSelect OperationType = 1 << iota
	OperationInsert
	OperationUpdate
	OperationDelete

	OperationInsertOrUpdate = OperationInsert | OperationUpdate
	OperationSelectOrDelete = OperationSelect | OperationDelete
	OperationAll            = OperationSelect | OperationInsert | OperationUpdate | OperationDelete
)

var operationNames = []struct {
	op   OperationType
	name string
}{
	{OperationSelect, "select"},
	{OperationInsert, "insert"},
	{OperationUpdate, "update"},
	{OperationDelete, "delete"},
}

// Has reports whether o and op share at least one operation.
func (o OperationType) Has(op OperationType) bool { return o&op != 0 }

// valid reports whether o is non-empty and only uses known bits.
func (o OperationType) valid() bool { return o != 0 && o&^OperationAll == 0 }

func (o OperationType) String() string {
	if o == 0 {
		return "none"
	}
	parts := make([]string, 0, 4)
	for _, n := range operationNames {
		if o&n.op != 0 {
			parts = append(parts, n.name)
		}
	}
	if rest := o &^ OperationAll; rest != 0 {
		parts = append(parts, fmt.Sprintf("0x%x", int(rest)))
	}
	return strings.Join(parts, "|")
}

// ParseOperationType parses names such as "insert|update", "select_or_delete" or "all".
func ParseOperationType(s string) (OperationType, error) {
	var out OperationType
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == '|' || r == ',' })
	for _, f := range fields {
		switch strings.ToLower(strings.TrimSpace(f)) {
		case "select":
			out |= OperationSelect
		case "insert":
			out |= OperationInsert
		case "update":
			out |= OperationUpdate
		case "delete":
			out |= OperationDelete
		case "insert_or_update":
			out |= OperationInsertOrUpdate
		case "select_or_delete":
			out |= OperationSelectOrDelete
		case "all":
			out |= OperationAll
		case "":
		default:
			return 0, fmt.Errorf("rules: unknown operation %q", f)
		}
	}
	if out == 0 {
		return 0, fmt.Errorf("rules: empty operation list %q", s)
	}
	return out, nil
}
