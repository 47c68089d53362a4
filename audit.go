package chain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// AuditAction represents the type of operation being audited.
type AuditAction string

const (
	AuditActionSelect     AuditAction = "select"
	AuditActionInsert     AuditAction = "insert"
	AuditActionUpdate     AuditAction = "update"
	AuditActionUpsert     AuditAction = "upsert"
	AuditActionDelete     AuditAction = "delete"
	AuditActionSoftDelete AuditAction = "soft_delete"
	AuditActionRaw        AuditAction = "raw"
)

// AuditEntry describes one executed statement.
type AuditEntry struct {
	ExecutionID uuid.UUID // unique per statement
	Action      AuditAction
	Table       string
	Keys        map[string]any // primary key values (nil for selects and raw statements)
	Entity      any            // the argument object of a write
	Query       string
	Args        []any
	User        any // the data source user, if any
	Duration    time.Duration
	Rows        int64
	Err         error // non-nil if the operation failed
}

// AuditHook receives an entry after each statement issued through a DataSource.
// Hooks are attached per data source with WithAuditHook and inherited by derived
// data sources.
type AuditHook interface {
	// OnAudit is called after each auditable operation completes.
	// Implementations should be non-blocking and safe for concurrent use.
	OnAudit(ctx context.Context, entry AuditEntry)
}

// AuditHookFunc is a convenience adapter to use ordinary functions as AuditHook.
type AuditHookFunc func(ctx context.Context, entry AuditEntry)

func (f AuditHookFunc) OnAudit(ctx context.Context, entry AuditEntry) { f(ctx, entry) }
