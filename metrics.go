package chain

import "time"

type Metrics interface {
	QueryDuration(duration time.Duration, query string)
	ConnectionCount(active, idle int32)
	ErrorCount(errorType string)
	// Circuit breaker metrics
	CircuitStateChanged(state string)
	// Rule engine metrics
	RuleApplied(kind string)
	SoftDeleteRewritten(table string)
	ValidationFailed(table string)
}

// NoopMetrics is a default no-op metrics collector
type NoopMetrics struct{}

func (NoopMetrics) QueryDuration(duration time.Duration, query string) {}
func (NoopMetrics) ConnectionCount(active, idle int32)                 {}
func (NoopMetrics) ErrorCount(errorType string)                        {}
func (NoopMetrics) CircuitStateChanged(state string)                   {}
func (NoopMetrics) RuleApplied(kind string)                            {}
func (NoopMetrics) SoftDeleteRewritten(table string)                   {}
func (NoopMetrics) ValidationFailed(table string)                      {}

func errorType(code ErrorCode) string {
	switch code {
	case ErrCodeConnection:
		return "connection"
	case ErrCodeNotFound:
		return "not_found"
	case ErrCodeDuplicate:
		return "duplicate"
	case ErrCodeConstraint:
		return "constraint"
	case ErrCodeTransaction:
		return "transaction"
	case ErrCodeConfiguration:
		return "configuration"
	case ErrCodeInvalidColumn, ErrCodeInvalidFunction, ErrCodeInvalidCast, ErrCodeStringTooLong, ErrCodeValidation:
		return "validation"
	default:
		return "internal"
	}
}
