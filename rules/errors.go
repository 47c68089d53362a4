package rules

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/multierr"
)

var (
	// ErrConfiguration matches every *ConfigError.
	ErrConfiguration = errors.New("rules: invalid configuration")
	// ErrValidation matches every *ValidationError.
	ErrValidation = errors.New("rules: validation failed")

	// ErrMissingUser is reported when a rule needs a user and none is attached.
	ErrMissingUser = errors.New("no user attached to the data source")
	// ErrUnknownProperty is reported when a named property cannot be read.
	ErrUnknownProperty = errors.New("unknown property")
	// ErrMissingKey is reported when a keyed operation lacks primary key values.
	ErrMissingKey = errors.New("rules: missing primary key value")
)

// ConfigError reports an invalid rule or a rule that cannot be evaluated with the
// current data source configuration.
type ConfigError struct {
	Rule    string
	Message string
	Err     error
}

func (e *ConfigError) Error() string {
	var sb strings.Builder
	sb.WriteString("rules: ")
	if e.Rule != "" {
		sb.WriteString(e.Rule)
		sb.WriteString(": ")
	}
	sb.WriteString(e.Message)
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

func (e *ConfigError) Is(target error) bool { return target == ErrConfiguration }

func (e *ConfigError) Unwrap() error { return e.Err }

func configErrorf(rule string, format string, args ...any) *ConfigError {
	return &ConfigError{Rule: rule, Message: fmt.Sprintf(format, args...)}
}

// FieldError is a single validation message, optionally bound to a property.
type FieldError struct {
	Property string
	Message  string
}

func (e *FieldError) Error() string {
	if e.Property == "" {
		return e.Message
	}
	return e.Property + ": " + e.Message
}

// ValidationError aggregates every message produced by the validation rules
// of one operation.
type ValidationError struct {
	err error
}

func newValidationError(errs []error) *ValidationError {
	combined := multierr.Combine(errs...)
	if combined == nil {
		return nil
	}
	return &ValidationError{err: combined}
}

// Errors returns the individual failures in discovery order.
func (e *ValidationError) Errors() []error { return multierr.Errors(e.err) }

// Messages returns the text of every failure in discovery order.
func (e *ValidationError) Messages() []string {
	errs := e.Errors()
	out := make([]string, len(errs))
	for i, err := range errs {
		out[i] = err.Error()
	}
	return out
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Messages(), "; ")
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func (e *ValidationError) Unwrap() []error { return e.Errors() }
