package chain

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestCircuitBreaker_Transitions(t *testing.T) {
	var states []string
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	cb := newCircuitBreaker(circuitBreakerConfig{failureThreshold: 2, openTimeout: 50 * time.Millisecond, halfOpenMaxInFlight: 1, clock: clock.Now, onStateChange: func(s string) { states = append(states, s) }})

	// two failures -> open
	if err := cb.before(); err != nil {
		t.Fatalf("before: %v", err)
	}
	cb.after(errors.New("x"))
	if err := cb.before(); err != nil {
		t.Fatalf("before2: %v", err)
	}
	cb.after(errors.New("x"))
	if err := cb.before(); err == nil {
		t.Fatalf("expected open error")
	}
	if cb.State() != "open" {
		t.Fatalf("state = %s", cb.State())
	}

	clock.Advance(60 * time.Millisecond)
	if err := cb.before(); err != nil {
		t.Fatalf("half-open before: %v", err)
	}
	// only one trial call in flight
	if err := cb.before(); !isCircuitOpenError(err) {
		t.Fatalf("expected second trial to be rejected, got %v", err)
	}
	// successful trial -> closed
	cb.after(nil)
	if err := cb.before(); err != nil {
		t.Fatalf("closed again: %v", err)
	}
	want := []string{"open", "half_open", "closed"}
	if len(states) != len(want) {
		t.Fatalf("states = %v", states)
	}
	for i := range want {
		if states[i] != want[i] {
			t.Fatalf("states = %v", states)
		}
	}
}

func TestCircuitBreaker_FailedTrialReopens(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	cb := newCircuitBreaker(circuitBreakerConfig{failureThreshold: 1, openTimeout: time.Second, clock: clock.Now})
	_ = cb.before()
	cb.after(errors.New("down"))
	clock.Advance(time.Second)
	if err := cb.before(); err != nil {
		t.Fatalf("expected trial, got %v", err)
	}
	cb.after(errors.New("still down"))
	if cb.State() != "open" {
		t.Fatalf("state = %s", cb.State())
	}
	if err := cb.before(); !isCircuitOpenError(err) {
		t.Fatalf("expected open error, got %v", err)
	}
}

func TestCircuitBreaker_CallerErrorsDoNotTrip(t *testing.T) {
	cb := newCircuitBreaker(circuitBreakerConfig{failureThreshold: 1, openTimeout: time.Minute})
	for _, err := range []error{
		&pgconn.PgError{Code: "23505", Message: "dup"},
		context.Canceled,
		&ORMError{Code: ErrCodeValidation, Message: "bad"},
	} {
		if countsAsFailure(err) {
			t.Fatalf("%v should not count as failure", err)
		}
		_ = cb.before()
		cb.after(err)
	}
	if cb.State() != "closed" {
		t.Fatalf("state = %s", cb.State())
	}
	if !countsAsFailure(&pgconn.PgError{Code: "08006"}) {
		t.Fatalf("connection failure should count")
	}
}
