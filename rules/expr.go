package rules

import (
	"fmt"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

func compileBool(rule, expression string) (*vm.Program, error) {
	if strings.TrimSpace(expression) == "" {
		return nil, configErrorf(rule, "expression is empty")
	}
	prog, err := expr.Compile(expression, expr.AsBool())
	if err != nil {
		return nil, &ConfigError{Rule: rule, Message: "compile expression", Err: err}
	}
	return prog, nil
}

func runBool(prog *vm.Program, env map[string]any) (bool, error) {
	out, err := expr.Run(prog, env)
	if err != nil {
		return false, err
	}
	b, _ := out.(bool)
	return b, nil
}

// RestrictColumnExpr is RestrictColumn with the exception written as an expression
// over `user`, for example `user.Role == "admin"`. An evaluation error keeps the
// column restricted.
func RestrictColumnExpr(table, column string, appliesWhen OperationType, expression string) (*Rule, error) {
	prog, err := compileBool(KindRestrictColumn.String(), expression)
	if err != nil {
		return nil, err
	}
	r, err := RestrictColumn(table, column, appliesWhen, func(user any) bool {
		ok, err := runBool(prog, map[string]any{"user": user})
		return err == nil && ok
	})
	if err != nil {
		return nil, err
	}
	r.expression = expression
	return r, nil
}

// ValidateExpr fails with message unless expression evaluates to true. The argument is
// bound as `arg`, for example `arg.FirstName != ""`.
func ValidateExpr(appliesWhen OperationType, expression, message string) (*Rule, error) {
	prog, err := compileBool(KindValidation.String(), expression)
	if err != nil {
		return nil, err
	}
	if message == "" {
		message = fmt.Sprintf("expression %q failed", expression)
	}
	r, err := newValidationRule(appliesWhen, func(argument any) []error {
		ok, err := runBool(prog, map[string]any{"arg": argument})
		if err != nil {
			return []error{&FieldError{Message: fmt.Sprintf("%s: %v", message, err)}}
		}
		if !ok {
			return []error{&FieldError{Message: message}}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	r.expression = expression
	return r, nil
}
