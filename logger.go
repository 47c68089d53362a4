package chain

import (
	"context"
	"encoding/hex"
	"fmt"
	"log"
	"log/slog"
	"reflect"
	"strings"
	"time"

	"github.com/kintsdev/chain/dialect"
)

// Field represents a structured logging field
type Field struct {
	Key   string
	Value any
}

// LogMode controls verbosity of statement logging
type LogMode int

const (
	// LogSilent disables all logs
	LogSilent LogMode = iota
	// LogError logs only errors
	LogError
	// LogWarn logs validation failures and errors
	LogWarn
	// LogInfo logs statements and errors
	LogInfo
	// LogDebug also logs rule outcomes (soft delete rewrites, restricted columns)
	LogDebug
)

type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
}

// NoopLogger is a default no-op logger
type NoopLogger struct{}

func (NoopLogger) Debug(msg string, fields ...Field) {}
func (NoopLogger) Info(msg string, fields ...Field)  {}
func (NoopLogger) Warn(msg string, fields ...Field)  {}
func (NoopLogger) Error(msg string, fields ...Field) {}

// StdLogger logs to the standard library logger
type StdLogger struct{}

func (StdLogger) Debug(msg string, fields ...Field) { stdLogPrint("DEBUG", msg, fields...) }
func (StdLogger) Info(msg string, fields ...Field)  { stdLogPrint("INFO", msg, fields...) }
func (StdLogger) Warn(msg string, fields ...Field)  { stdLogPrint("WARN", msg, fields...) }
func (StdLogger) Error(msg string, fields ...Field) { stdLogPrint("ERROR", msg, fields...) }

func stdLogPrint(level string, msg string, fields ...Field) {
	for _, f := range fields {
		if f.Key == "stmt" {
			if s, ok := f.Value.(string); ok && s != "" {
				log.Printf("%s", s)
				return
			}
		}
	}
	log.Printf("[%s] %s %s", level, msg, formatFields(fields))
}

// SlogLogger adapts a *slog.Logger
type SlogLogger struct {
	L *slog.Logger
}

// NewSlogLogger returns a Logger writing to l, or to slog.Default when l is nil
func NewSlogLogger(l *slog.Logger) SlogLogger {
	if l == nil {
		l = slog.Default()
	}
	return SlogLogger{L: l}
}

func (s SlogLogger) Debug(msg string, fields ...Field) { s.log(slog.LevelDebug, msg, fields) }
func (s SlogLogger) Info(msg string, fields ...Field)  { s.log(slog.LevelInfo, msg, fields) }
func (s SlogLogger) Warn(msg string, fields ...Field)  { s.log(slog.LevelWarn, msg, fields) }
func (s SlogLogger) Error(msg string, fields ...Field) { s.log(slog.LevelError, msg, fields) }

func (s SlogLogger) log(level slog.Level, msg string, fields []Field) {
	l := s.L
	if l == nil {
		l = slog.Default()
	}
	attrs := make([]slog.Attr, 0, len(fields))
	for _, f := range fields {
		attrs = append(attrs, slog.Any(f.Key, f.Value))
	}
	l.LogAttrs(context.Background(), level, msg, attrs...)
}

func formatFields(fields []Field) string {
	if len(fields) == 0 {
		return ""
	}
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		var val string
		if s, ok := f.Value.(string); ok {
			val = s
		} else {
			val = fmt.Sprintf("%v", f.Value)
		}
		parts = append(parts, f.Key+"="+val)
	}
	return strings.Join(parts, " ")
}

// inlineSQL returns a paste-ready SQL with all bind parameters inlined as SQL literals and a trailing semicolon
func inlineSQL(d dialect.Dialect, query string, args []any) string {
	inlined := query
	if len(args) > 0 {
		if d == nil {
			d = dialect.PostgresDialect{}
		}
		if d.Placeholder(1) == d.Placeholder(2) {
			inlined = inlinePositional(query, d.Placeholder(1), args)
		} else {
			// highest index first so $1 does not clobber $10
			for i := len(args); i >= 1; i-- {
				inlined = strings.ReplaceAll(inlined, d.Placeholder(i), sqlLiteral(args[i-1]))
			}
		}
	}
	qs := strings.TrimSpace(inlined)
	if strings.HasSuffix(qs, ";") {
		return inlined
	}
	return inlined + ";"
}

// inlinePositional replaces each unquoted ph in order
func inlinePositional(query, ph string, args []any) string {
	var sb strings.Builder
	inQuote := false
	n := 0
	for i := 0; i < len(query); i++ {
		c := query[i]
		if c == '\'' {
			inQuote = !inQuote
		}
		if !inQuote && n < len(args) && strings.HasPrefix(query[i:], ph) {
			sb.WriteString(sqlLiteral(args[n]))
			n++
			i += len(ph) - 1
			continue
		}
		sb.WriteByte(c)
	}
	return sb.String()
}

func sqlLiteral(v any) string {
	if v == nil {
		return "NULL"
	}
	switch t := v.(type) {
	case string:
		return "'" + escapeSQLString(t) + "'"
	case []byte:
		// Represent bytea as decode(hex,'hex') for easy psql paste
		return "decode('" + strings.ToUpper(hex.EncodeToString(t)) + "','hex')"
	case bool:
		if t {
			return "TRUE"
		}
		return "FALSE"
	case time.Time:
		return "'" + t.Format(time.RFC3339Nano) + "'"
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr:
		if rv.IsNil() {
			return "NULL"
		}
		return sqlLiteral(rv.Elem().Interface())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return fmt.Sprintf("%v", v)
	}
	return "'" + escapeSQLString(fmt.Sprintf("%v", v)) + "'"
}

func escapeSQLString(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}
