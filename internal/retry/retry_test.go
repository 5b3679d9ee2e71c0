package retry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/shaiso/stocksync/internal/breaker"
)

var errTransient = errors.New("transient")

// noSleep записывает задержки вместо ожидания.
func noSleep(delays *[]time.Duration) func(context.Context, time.Duration) error {
	return func(ctx context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return ctx.Err()
	}
}

func TestDo_SucceedsOnKthAttempt(t *testing.T) {
	for k := 1; k <= 5; k++ {
		t.Run(fmt.Sprintf("k=%d", k), func(t *testing.T) {
			var delays []time.Duration
			calls := 0

			err := Do(context.Background(), Policy{MaxAttempts: 5, sleep: noSleep(&delays)}, func(context.Context) error {
				calls++
				if calls < k {
					return errTransient
				}
				return nil
			})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if calls != k {
				t.Errorf("expected %d calls, got %d", k, calls)
			}
			if len(delays) != k-1 {
				t.Errorf("expected %d sleeps, got %d", k-1, len(delays))
			}
		})
	}
}

func TestDo_ExhaustedReturnsLastError(t *testing.T) {
	var delays []time.Duration
	calls := 0

	err := Do(context.Background(), Policy{MaxAttempts: 3, sleep: noSleep(&delays)}, func(context.Context) error {
		calls++
		return fmt.Errorf("attempt %d: %w", calls, errTransient)
	})

	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
	if err == nil || err.Error() != "attempt 3: transient" {
		t.Errorf("expected final error, got %v", err)
	}
}

func TestDo_PermanentStopsImmediately(t *testing.T) {
	var delays []time.Duration
	calls := 0

	err := Do(context.Background(), Policy{MaxAttempts: 5, sleep: noSleep(&delays)}, func(context.Context) error {
		calls++
		return Permanent(errTransient)
	})

	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
	if !errors.Is(err, errTransient) || !IsPermanent(err) {
		t.Errorf("expected permanent transient error, got %v", err)
	}
}

func TestDo_ExponentialDelays(t *testing.T) {
	var delays []time.Duration

	Exponential(context.Background(), Policy{
		MaxAttempts:  5,
		InitialDelay: time.Second,
		MaxDelay:     5 * time.Second,
		Factor:       2,
		sleep:        noSleep(&delays),
	}, func(context.Context) error { return errTransient })

	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 5 * time.Second}
	if len(delays) != len(want) {
		t.Fatalf("expected %v, got %v", want, delays)
	}
	for i := range want {
		if delays[i] != want[i] {
			t.Errorf("delay %d: expected %v, got %v", i+1, want[i], delays[i])
		}
	}
}

func TestFixed(t *testing.T) {
	calls := 0
	err := Fixed(context.Background(), 3, time.Millisecond, func(context.Context) error {
		calls++
		if calls == 2 {
			return nil
		}
		return errTransient
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 2 {
		t.Errorf("expected 2 calls, got %d", calls)
	}
}

func TestConditional(t *testing.T) {
	calls := 0
	err := Conditional(context.Background(),
		func(err error, attempt int) bool { return attempt < 4 },
		func(int) time.Duration { return time.Millisecond },
		func(context.Context) error {
			calls++
			return errTransient
		},
	)
	if !errors.Is(err, errTransient) {
		t.Errorf("expected transient error, got %v", err)
	}
	if calls != 4 {
		t.Errorf("expected 4 calls, got %d", calls)
	}
}

func TestDo_ContextCancelledDuringWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0

	err := Do(ctx, Policy{MaxAttempts: 5, InitialDelay: time.Hour}, func(context.Context) error {
		calls++
		cancel()
		return errTransient
	})

	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
	if !errors.Is(err, context.Canceled) || !errors.Is(err, errTransient) {
		t.Errorf("expected both cancel and last error, got %v", err)
	}
}

func TestBackoffDelay(t *testing.T) {
	delay := BackoffDelay(100*time.Millisecond, time.Second)

	tests := []struct {
		attempt int
		min     time.Duration
		max     time.Duration
	}{
		{1, 100 * time.Millisecond, 200 * time.Millisecond},
		{2, 200 * time.Millisecond, 300 * time.Millisecond},
		{3, 400 * time.Millisecond, 500 * time.Millisecond},
		{5, time.Second, time.Second},
	}

	for _, tt := range tests {
		for i := 0; i < 20; i++ {
			got := delay(tt.attempt)
			if got < tt.min || got > tt.max {
				t.Errorf("attempt %d: %v not in [%v, %v]", tt.attempt, got, tt.min, tt.max)
			}
		}
	}
}

type statusErr int

func (e statusErr) Error() string   { return fmt.Sprintf("status %d", int(e)) }
func (e statusErr) HTTPStatus() int { return int(e) }

func TestUpstreamShouldRetry(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		attempt int
		want    bool
	}{
		{"not found", statusErr(404), 1, false},
		{"unauthorized", statusErr(401), 1, false},
		{"rate limited", statusErr(429), 7, true},
		{"server error", statusErr(503), 9, true},
		{"wrapped server error", fmt.Errorf("get stock: %w", statusErr(500)), 5, true},
		{"circuit open", fmt.Errorf("%w: pos", breaker.ErrOpen), 1, false},
		{"unknown host", &net.DNSError{Err: "no such host", Name: "pos.invalid", IsNotFound: true}, 1, false},
		{"deadline", context.DeadlineExceeded, 8, true},
		{"canceled", context.Canceled, 1, false},
		{"permanent", Permanent(statusErr(500)), 1, false},
		{"other first attempt", errTransient, 1, true},
		{"other third attempt", errTransient, 3, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := UpstreamShouldRetry(tt.err, tt.attempt); got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestStockCriticalPolicy_MoreAggressive(t *testing.T) {
	normal := IntegrationPolicy("pos")
	critical := StockCriticalPolicy("pos")

	if critical.MaxAttempts <= normal.MaxAttempts {
		t.Errorf("expected more attempts, got %d vs %d", critical.MaxAttempts, normal.MaxAttempts)
	}
	if critical.InitialDelay >= normal.InitialDelay {
		t.Errorf("expected shorter initial delay, got %v vs %v", critical.InitialDelay, normal.InitialDelay)
	}
	if critical.Factor >= normal.Factor {
		t.Errorf("expected gentler factor, got %v vs %v", critical.Factor, normal.Factor)
	}
}
