package chain

import (
	"context"
	"testing"

	"github.com/kintsdev/chain/dialect"
)

func TestNewPool_NilConfig(t *testing.T) {
	if _, err := newPool(context.Background(), nil); err == nil {
		t.Fatalf("expected error for nil config")
	}
}

func TestHealthCheck_NilExecutor(t *testing.T) {
	if err := healthCheck(context.Background(), nil); err == nil {
		t.Fatalf("expected error for nil executor")
	}
}

func TestHealthCheck_NoRow(t *testing.T) {
	if err := healthCheck(context.Background(), &fakeExec{}); err == nil {
		t.Fatalf("expected error when SELECT 1 returns nothing")
	}
	if err := healthCheck(context.Background(), &fakeExec{cols: []string{"?column?"}, rows: [][]any{{int64(1)}}}); err != nil {
		t.Fatalf("health: %v", err)
	}
}

func TestOpen_Errors(t *testing.T) {
	if _, err := Open(nil); err == nil {
		t.Fatalf("expected error for nil config")
	}
	_, err := Open(&Config{Driver: "oracle"})
	if oe, ok := err.(*ORMError); !ok || oe.Code != ErrCodeConfiguration {
		t.Fatalf("expected configuration error, got %v", err)
	}
	_, err = Open(&Config{Driver: "access"})
	if oe, ok := err.(*ORMError); !ok || oe.Code != ErrCodeConfiguration {
		t.Fatalf("expected configuration error for access, got %v", err)
	}
	if _, err := OpenDB(dialect.SQLiteDialect{}, nil); err == nil {
		t.Fatalf("expected error for nil db")
	}
}
