package chain

import "context"

// BeforeInsert can be implemented by an argument to run logic before insert.
// It runs before validation rules, so it may fill in derived fields.
type BeforeInsert interface {
	BeforeInsert(ctx context.Context) error
}

// AfterInsert can be implemented by an argument to run logic after insert
type AfterInsert interface {
	AfterInsert(ctx context.Context) error
}

// BeforeUpdate can be implemented by an argument to run logic before update
type BeforeUpdate interface {
	BeforeUpdate(ctx context.Context) error
}

// AfterUpdate can be implemented by an argument to run logic after update
type AfterUpdate interface {
	AfterUpdate(ctx context.Context) error
}

// Delete hooks. soft reports whether the delete was rewritten to an update.
type BeforeDelete interface {
	BeforeDelete(ctx context.Context) error
}
type AfterDelete interface {
	AfterDelete(ctx context.Context, soft bool) error
}

func runBeforeHook(ctx context.Context, op writeOp, arg any) error {
	switch op {
	case opInsert:
		if h, ok := arg.(BeforeInsert); ok {
			return h.BeforeInsert(ctx)
		}
	case opUpdate:
		if h, ok := arg.(BeforeUpdate); ok {
			return h.BeforeUpdate(ctx)
		}
	case opDelete:
		if h, ok := arg.(BeforeDelete); ok {
			return h.BeforeDelete(ctx)
		}
	}
	return nil
}

func runAfterHook(ctx context.Context, op writeOp, arg any, soft bool) error {
	switch op {
	case opInsert:
		if h, ok := arg.(AfterInsert); ok {
			return h.AfterInsert(ctx)
		}
	case opUpdate:
		if h, ok := arg.(AfterUpdate); ok {
			return h.AfterUpdate(ctx)
		}
	case opDelete:
		if h, ok := arg.(AfterDelete); ok {
			return h.AfterDelete(ctx, soft)
		}
	}
	return nil
}
