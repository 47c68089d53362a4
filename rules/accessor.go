package rules

import core "github.com/kintsdev/chain/internal/core"

// PropertyAccessor reads and writes named properties on arbitrary objects.
// Names match exactly (case-sensitive).
type PropertyAccessor interface {
	TryGet(obj any, name string) (any, bool)
	TrySet(obj any, name string, value any) bool
}

// ReflectAccessor resolves exported struct fields (through pointers) and
// map[string]any keys.
type ReflectAccessor struct{}

func (ReflectAccessor) TryGet(obj any, name string) (any, bool) { return core.GetByName(obj, name) }

func (ReflectAccessor) TrySet(obj any, name string, value any) bool {
	return core.SetByName(obj, name, value)
}

func accessorOrDefault(a PropertyAccessor) PropertyAccessor {
	if a == nil {
		return ReflectAccessor{}
	}
	return a
}
