package rules

import (
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// File is the YAML form of a rule collection.
type File struct {
	Rules []FileRule `yaml:"rules"`
}

// FileRule is one entry of a rule file. Which fields are read depends on Kind.
type FileRule struct {
	Kind         string `yaml:"kind"`
	Table        string `yaml:"table,omitempty"`
	Column       string `yaml:"column,omitempty"`
	Property     string `yaml:"property,omitempty"`
	Value        any    `yaml:"value,omitempty"`
	DeletedValue any    `yaml:"deleted_value,omitempty"`
	DateKind     string `yaml:"date_kind,omitempty"`
	AppliesWhen  string `yaml:"applies_when"`
	ExceptWhen   string `yaml:"except_when,omitempty"`
	Expression   string `yaml:"expression,omitempty"`
	Message      string `yaml:"message,omitempty"`
}

// LoadFile reads a rule file from path.
func LoadFile(path string) (*Collection, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Load(f)
}

// Load parses a YAML rule file:
//
//	rules:
//	  - kind: apply_user_data
//	    column: CreatedByKey
//	    property: EmployeeKey
//	    applies_when: insert
//	  - kind: soft_delete
//	    column: DeletedFlag
//	    deleted_value: true
//	    applies_when: select|delete
func Load(r io.Reader) (*Collection, error) {
	var f File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && err != io.EOF {
		return nil, &ConfigError{Message: "parse rule file", Err: err}
	}
	out := make([]*Rule, 0, len(f.Rules))
	for i, fr := range f.Rules {
		rule, err := fr.Build()
		if err != nil {
			return nil, fmt.Errorf("rule %d: %w", i+1, err)
		}
		out = append(out, rule)
	}
	return NewCollection(out...), nil
}

// Build constructs the rule described by fr.
func (fr FileRule) Build() (*Rule, error) {
	mask, err := ParseOperationType(fr.AppliesWhen)
	if err != nil {
		return nil, &ConfigError{Rule: fr.Kind, Message: "applies_when", Err: err}
	}
	switch strings.ToLower(fr.Kind) {
	case "apply_value":
		return ApplyValue(fr.Column, fr.Value, mask)
	case "apply_datetime":
		kind := DateTimeUnspecified
		switch strings.ToLower(fr.DateKind) {
		case "local", "":
			kind = DateTimeLocal
		case "utc":
			kind = DateTimeUTC
		}
		return ApplyDateTime(fr.Column, kind, mask)
	case "apply_datetime_offset":
		return ApplyDateTimeOffset(fr.Column, mask)
	case "apply_user_data":
		return ApplyUserData(fr.Column, fr.Property, mask)
	case "soft_delete":
		return SoftDelete(fr.Column, fr.DeletedValue, mask)
	case "restrict_column":
		return RestrictColumnExpr(fr.Table, fr.Column, mask, fr.ExceptWhen)
	case "validate_expr":
		return ValidateExpr(mask, fr.Expression, fr.Message)
	case "validate_validatable":
		return ValidateWithValidatable(mask)
	case "validate_data_error_info":
		return ValidateWithDataErrorInfo(mask)
	default:
		return nil, configErrorf(fr.Kind, "unknown rule kind")
	}
}
