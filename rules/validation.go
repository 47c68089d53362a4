package rules

import (
	"reflect"
	"sort"
)

// Validatable is implemented by arguments that validate themselves.
type Validatable interface {
	Validate()
	HasErrors() bool
	Errors() []string
}

// DataErrorInfo exposes an object-level error and per-property errors. Empty strings mean no error.
type DataErrorInfo interface {
	DataError() string
	PropertyError(property string) string
}

// NotifyDataErrorInfo exposes error lists per property. The empty property name
// returns object-level errors.
type NotifyDataErrorInfo interface {
	HasErrors() bool
	GetErrors(property string) []string
}

func newValidationRule(mask OperationType, validate func(argument any) []error) (*Rule, error) {
	if err := checkMask(KindValidation.String(), mask, OperationInsertOrUpdate); err != nil {
		return nil, err
	}
	return &Rule{kind: KindValidation, appliesWhen: mask, validate: validate}, nil
}

// ValidateWithValidatable calls Validate on arguments implementing Validatable and
// fails when HasErrors reports true.
func ValidateWithValidatable(appliesWhen OperationType) (*Rule, error) {
	return newValidationRule(appliesWhen, func(argument any) []error {
		v, ok := argument.(Validatable)
		if !ok {
			return nil
		}
		v.Validate()
		if !v.HasErrors() {
			return nil
		}
		msgs := v.Errors()
		if len(msgs) == 0 {
			msgs = []string{"object is invalid"}
		}
		return messageErrors("", msgs)
	})
}

// ValidateWithDataErrorInfo collects the object error and every property error of
// arguments implementing DataErrorInfo.
func ValidateWithDataErrorInfo(appliesWhen OperationType) (*Rule, error) {
	return newValidationRule(appliesWhen, func(argument any) []error {
		info, ok := argument.(DataErrorInfo)
		if !ok {
			return nil
		}
		return dataErrors(argument, info)
	})
}

// ValidateWithDataErrorInfoFunc runs prepare before reading errors. Arguments that are
// not a T are skipped.
func ValidateWithDataErrorInfoFunc[T DataErrorInfo](appliesWhen OperationType, prepare func(T)) (*Rule, error) {
	return newValidationRule(appliesWhen, func(argument any) []error {
		v, ok := argument.(T)
		if !ok {
			return nil
		}
		if prepare != nil {
			prepare(v)
		}
		return dataErrors(argument, v)
	})
}

// ValidateWithNotifyDataErrorInfo runs prepare, then collects the object-level and
// per-property error lists of T.
func ValidateWithNotifyDataErrorInfo[T NotifyDataErrorInfo](appliesWhen OperationType, prepare func(T)) (*Rule, error) {
	return newValidationRule(appliesWhen, func(argument any) []error {
		v, ok := argument.(T)
		if !ok {
			return nil
		}
		if prepare != nil {
			prepare(v)
		}
		if !v.HasErrors() {
			return nil
		}
		var out []error
		seen := map[string]bool{}
		add := func(property string, msgs []string) {
			for _, m := range msgs {
				if m == "" || seen[fieldKey(property, m)] {
					continue
				}
				seen[fieldKey(property, m)] = true
				out = append(out, &FieldError{Property: property, Message: m})
			}
		}
		add("", v.GetErrors(""))
		for _, p := range propertyNames(argument) {
			add(p, v.GetErrors(p))
		}
		if len(out) == 0 {
			out = append(out, &FieldError{Message: "object is invalid"})
		}
		return out
	})
}

// ValidateWith runs fn on arguments of type T; each returned message is a failure.
func ValidateWith[T any](appliesWhen OperationType, fn func(T) []string) (*Rule, error) {
	if fn == nil {
		return nil, configErrorf(KindValidation.String(), "validator is nil")
	}
	return newValidationRule(appliesWhen, func(argument any) []error {
		v, ok := argument.(T)
		if !ok {
			return nil
		}
		return messageErrors("", fn(v))
	})
}

// CheckValue validates argument. It returns nil for non-validation rules.
func (r *Rule) CheckValue(argument any) error {
	if r.kind != KindValidation || r.validate == nil {
		return nil
	}
	if ve := newValidationError(r.validate(argument)); ve != nil {
		return ve
	}
	return nil
}

func messageErrors(property string, msgs []string) []error {
	var out []error
	for _, m := range msgs {
		if m != "" {
			out = append(out, &FieldError{Property: property, Message: m})
		}
	}
	return out
}

func dataErrors(argument any, info DataErrorInfo) []error {
	var out []error
	seen := map[string]bool{}
	if m := info.DataError(); m != "" {
		seen[fieldKey("", m)] = true
		out = append(out, &FieldError{Message: m})
	}
	for _, p := range propertyNames(argument) {
		m := info.PropertyError(p)
		if m == "" || seen[fieldKey(p, m)] {
			continue
		}
		seen[fieldKey(p, m)] = true
		out = append(out, &FieldError{Property: p, Message: m})
	}
	return out
}

// fieldKey identifies one message of one property; equal texts on different
// properties are distinct failures
func fieldKey(property, message string) string { return property + "\x00" + message }

// propertyNames lists exported struct fields in declaration order, or sorted map keys.
func propertyNames(obj any) []string {
	v := reflect.ValueOf(obj)
	for v.Kind() == reflect.Ptr || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return nil
		}
		v = v.Elem()
	}
	switch v.Kind() {
	case reflect.Struct:
		t := v.Type()
		out := make([]string, 0, t.NumField())
		for i := 0; i < t.NumField(); i++ {
			if f := t.Field(i); f.IsExported() {
				out = append(out, f.Name)
			}
		}
		return out
	case reflect.Map:
		if v.Type().Key().Kind() != reflect.String {
			return nil
		}
		out := make([]string, 0, v.Len())
		for _, k := range v.MapKeys() {
			out = append(out, k.String())
		}
		sort.Strings(out)
		return out
	}
	return nil
}
