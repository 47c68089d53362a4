package chain

import (
	"strings"

	"github.com/kintsdev/chain/rules"
)

type options struct {
	logger  Logger
	metrics Metrics
	logMode LogMode
	audit   AuditHook
	rules   *rules.Collection
	schemas map[string]*rules.Table
}

type Option func(*options)

func defaultOptions() options {
	return options{
		logger:  NoopLogger{},
		metrics: NoopMetrics{},
		logMode: LogSilent,
		rules:   rules.Empty(),
		schemas: map[string]*rules.Table{},
	}
}

func WithLogger(l Logger) Option       { return func(o *options) { o.logger = l } }
func WithMetrics(m Metrics) Option     { return func(o *options) { o.metrics = m } }
func WithLogMode(m LogMode) Option     { return func(o *options) { o.logMode = m } }
func WithAuditHook(h AuditHook) Option { return func(o *options) { o.audit = h } }

// WithAuditRules sets the initial rule collection
func WithAuditRules(c *rules.Collection) Option {
	return func(o *options) {
		if c == nil {
			c = rules.Empty()
		}
		o.rules = c
	}
}

// WithTableSchema registers the column layout of a table. Registered schemas take
// precedence over struct tags and are required for map arguments.
func WithTableSchema(t *rules.Table) Option {
	return func(o *options) {
		if t != nil {
			o.schemas[strings.ToLower(t.Name)] = t
		}
	}
}
