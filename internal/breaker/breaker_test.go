package breaker

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errUpstream = errors.New("upstream failed")

// fakeClock — управляемый источник времени.
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestBreaker(threshold int, timeout time.Duration) (*Breaker, *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	b := New("pos", Config{
		FailureThreshold: threshold,
		Timeout:          timeout,
		Now:              clock.Now,
	})
	return b, clock
}

func fail(context.Context) error { return errUpstream }

func succeed(context.Context) error { return nil }

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	b, _ := newTestBreaker(3, time.Minute)

	for i := 0; i < 2; i++ {
		if err := b.Execute(context.Background(), fail); !errors.Is(err, errUpstream) {
			t.Fatalf("call %d: expected upstream error, got %v", i, err)
		}
		if b.State() != StateClosed {
			t.Fatalf("call %d: expected CLOSED, got %s", i, b.State())
		}
	}

	b.Execute(context.Background(), fail)
	if b.State() != StateOpen {
		t.Fatalf("expected OPEN after threshold, got %s", b.State())
	}

	// Пока OPEN — вызов не выполняется
	called := false
	err := b.Execute(context.Background(), func(context.Context) error {
		called = true
		return nil
	})
	if !errors.Is(err, ErrOpen) {
		t.Errorf("expected ErrOpen, got %v", err)
	}
	if called {
		t.Error("operation must not run while circuit is open")
	}
}

func TestBreaker_SuccessResetsFailures(t *testing.T) {
	b, _ := newTestBreaker(3, time.Minute)

	b.Execute(context.Background(), fail)
	b.Execute(context.Background(), fail)
	b.Execute(context.Background(), succeed)
	b.Execute(context.Background(), fail)
	b.Execute(context.Background(), fail)

	if b.State() != StateClosed {
		t.Fatalf("expected CLOSED, got %s", b.State())
	}
	if got := b.Snapshot().ConsecutiveFailures; got != 2 {
		t.Errorf("expected 2 consecutive failures, got %d", got)
	}
}

func TestBreaker_HalfOpenAfterTimeout(t *testing.T) {
	b, clock := newTestBreaker(1, time.Minute)

	b.Execute(context.Background(), fail)
	if b.State() != StateOpen {
		t.Fatalf("expected OPEN, got %s", b.State())
	}

	clock.Advance(59 * time.Second)
	if err := b.Execute(context.Background(), succeed); !errors.Is(err, ErrOpen) {
		t.Fatalf("expected ErrOpen before cooldown, got %v", err)
	}

	clock.Advance(time.Second)

	var stateDuringCall State
	err := b.Execute(context.Background(), func(context.Context) error {
		stateDuringCall = b.State()
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stateDuringCall != StateHalfOpen {
		t.Errorf("expected HALF_OPEN before executing, got %s", stateDuringCall)
	}
}

func TestBreaker_HalfOpenClosesAfterThreeSuccesses(t *testing.T) {
	b, clock := newTestBreaker(1, time.Minute)

	b.Execute(context.Background(), fail)
	clock.Advance(time.Minute)

	for i := 0; i < 2; i++ {
		b.Execute(context.Background(), succeed)
		if b.State() != StateHalfOpen {
			t.Fatalf("success %d: expected HALF_OPEN, got %s", i+1, b.State())
		}
	}

	b.Execute(context.Background(), succeed)

	snap := b.Snapshot()
	if snap.State != StateClosed {
		t.Fatalf("expected CLOSED, got %s", snap.State)
	}
	if snap.ConsecutiveFailures != 0 || snap.ConsecutiveSuccesses != 0 {
		t.Errorf("expected counters reset, got failures=%d successes=%d",
			snap.ConsecutiveFailures, snap.ConsecutiveSuccesses)
	}
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	b, clock := newTestBreaker(1, time.Minute)

	b.Execute(context.Background(), fail)
	clock.Advance(time.Minute)

	b.Execute(context.Background(), succeed)
	clock.Advance(10 * time.Second)
	b.Execute(context.Background(), fail)

	snap := b.Snapshot()
	if snap.State != StateOpen {
		t.Fatalf("expected OPEN, got %s", snap.State)
	}

	want := clock.Now().Add(time.Minute)
	if !snap.NextAttempt.Equal(want) {
		t.Errorf("expected fresh next_attempt %v, got %v", want, snap.NextAttempt)
	}
}

func TestBreaker_Reset(t *testing.T) {
	b, _ := newTestBreaker(1, time.Hour)

	b.Execute(context.Background(), fail)
	b.Reset()

	if b.State() != StateClosed {
		t.Fatalf("expected CLOSED after reset, got %s", b.State())
	}
	if err := b.Execute(context.Background(), succeed); err != nil {
		t.Errorf("unexpected error after reset: %v", err)
	}
}

func TestBreaker_OnStateChange(t *testing.T) {
	clock := &fakeClock{now: time.Now()}

	var transitions []string
	b := New("erp", Config{
		FailureThreshold: 1,
		Timeout:          time.Second,
		Now:              clock.Now,
		OnStateChange: func(name string, from, to State) {
			transitions = append(transitions, string(from)+"->"+string(to))
		},
	})

	b.Execute(context.Background(), fail)
	clock.Advance(time.Second)
	b.Execute(context.Background(), fail)

	want := []string{"CLOSED->OPEN", "OPEN->HALF_OPEN", "HALF_OPEN->OPEN"}
	if len(transitions) != len(want) {
		t.Fatalf("expected %v, got %v", want, transitions)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("transition %d: expected %s, got %s", i, want[i], transitions[i])
		}
	}
}

func TestBreaker_CallTimeout(t *testing.T) {
	b := New("pos", Config{CallTimeout: 10 * time.Millisecond})

	err := b.Execute(context.Background(), func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}
