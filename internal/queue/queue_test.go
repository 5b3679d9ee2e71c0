package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/stocksync/internal/retry"
)

func testDefinition(name string, attempts int) Definition {
	return Definition{
		Name:        name,
		Priority:    5,
		Attempts:    attempts,
		Backoff:     Backoff{Type: BackoffFixed, Delay: 10 * time.Millisecond},
		Concurrency: 1,
	}
}

func startManager(t *testing.T, m *Manager) {
	t.Helper()
	require.NoError(t, m.Start(context.Background()))
	t.Cleanup(m.Stop)
}

func TestManager_PriorityOrder(t *testing.T) {
	broker := NewMemoryBroker()
	m := NewManager(broker, []Definition{testDefinition("q", 1)}, nil)

	ctx := context.Background()
	for _, p := range []int{1, 10, 5} {
		_, err := m.Add(ctx, "q", "job", map[string]int{"p": p}, AddOptions{Priority: p})
		require.NoError(t, err)
	}

	var (
		mu    sync.Mutex
		order []int
	)
	require.NoError(t, m.RegisterProcessor("q", func(_ context.Context, job *Job) error {
		mu.Lock()
		order = append(order, job.Priority)
		mu.Unlock()
		return nil
	}))
	startManager(t, m)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 3
	}, 2*time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{10, 5, 1}, order)
}

func TestManager_DefaultPriorityFromDefinition(t *testing.T) {
	m := NewManager(NewMemoryBroker(), []Definition{testDefinition("q", 1)}, nil)

	job, err := m.Add(context.Background(), "q", "job", nil, AddOptions{})
	require.NoError(t, err)
	assert.Equal(t, 5, job.Priority)
	assert.Equal(t, 1, job.MaxAttempts)
}

func TestManager_RetryThenSuccess(t *testing.T) {
	m := NewManager(NewMemoryBroker(), []Definition{testDefinition("q", 3)}, nil)

	var calls atomic.Int32
	require.NoError(t, m.RegisterProcessor("q", func(_ context.Context, job *Job) error {
		if calls.Add(1) < 3 {
			return errors.New("upstream unavailable")
		}
		return nil
	}))
	startManager(t, m)

	_, err := m.Add(context.Background(), "q", "job", nil, AddOptions{})
	require.NoError(t, err)

	q, err := m.Queue("q")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		completed, _ := q.History()
		return len(completed) == 1
	}, 2*time.Second, 5*time.Millisecond)

	completed, failed := q.History()
	assert.Empty(t, failed)
	assert.Equal(t, 3, completed[0].Job.Attempt)
	assert.Equal(t, "upstream unavailable", completed[0].Job.LastError)
}

func TestManager_ExhaustedGoesToDeadLetter(t *testing.T) {
	broker := NewMemoryBroker()
	m := NewManager(broker, []Definition{testDefinition("q", 2)}, nil)

	var calls atomic.Int32
	require.NoError(t, m.RegisterProcessor("q", func(context.Context, *Job) error {
		calls.Add(1)
		return errors.New("boom")
	}))
	startManager(t, m)

	_, err := m.Add(context.Background(), "q", "job", nil, AddOptions{})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(broker.DeadLetters("q")) == 1
	}, 2*time.Second, 5*time.Millisecond)

	dead := broker.DeadLetters("q")[0]
	assert.Equal(t, 2, dead.Attempt)
	assert.Equal(t, "boom", dead.LastError)
	assert.Equal(t, int32(2), calls.Load())

	stats, err := m.Stats(context.Background())
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, 1, stats[0].Failed)
	assert.Equal(t, 1, stats[0].Dead)
	assert.Equal(t, 0, stats[0].Waiting)
	assert.InDelta(t, 1.0, stats[0].FailureRate(), 0.001)
}

func TestManager_PermanentErrorNotRetried(t *testing.T) {
	broker := NewMemoryBroker()
	m := NewManager(broker, []Definition{testDefinition("q", 5)}, nil)

	var calls atomic.Int32
	require.NoError(t, m.RegisterProcessor("q", func(context.Context, *Job) error {
		calls.Add(1)
		return retry.Permanent(errors.New("bad payload"))
	}))
	startManager(t, m)

	_, err := m.Add(context.Background(), "q", "job", nil, AddOptions{})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(broker.DeadLetters("q")) == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
}

func TestManager_RegisterProcessorErrors(t *testing.T) {
	m := NewManager(NewMemoryBroker(), []Definition{testDefinition("q", 1)}, nil)
	noop := func(context.Context, *Job) error { return nil }

	assert.ErrorIs(t, m.RegisterProcessor("missing", noop), ErrUnknownQueue)
	require.NoError(t, m.RegisterProcessor("q", noop))
	assert.ErrorIs(t, m.RegisterProcessor("q", noop), ErrProcessorRegistered)

	startManager(t, m)
	assert.ErrorIs(t, m.RegisterProcessor("q", noop), ErrStarted)
	assert.ErrorIs(t, m.Start(context.Background()), ErrStarted)

	_, err := m.Add(context.Background(), "missing", "job", nil, AddOptions{})
	assert.ErrorIs(t, err, ErrUnknownQueue)
}

func TestManager_DelayedJob(t *testing.T) {
	broker := NewMemoryBroker()
	m := NewManager(broker, []Definition{testDefinition("q", 1)}, nil)

	_, err := m.Add(context.Background(), "q", "job", nil, AddOptions{Delay: 50 * time.Millisecond})
	require.NoError(t, err)

	stats, err := broker.Stats(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Delayed)
	assert.Equal(t, 0, stats.Waiting)

	require.Eventually(t, func() bool {
		s, _ := broker.Stats(context.Background(), "q")
		return s.Waiting == 1 && s.Delayed == 0
	}, 2*time.Second, 5*time.Millisecond)
}

func TestEvict(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	records := []Record{
		{FinishedAt: now.Add(-3 * time.Hour)},
		{FinishedAt: now.Add(-2 * time.Hour)},
		{FinishedAt: now.Add(-30 * time.Minute)},
		{FinishedAt: now.Add(-10 * time.Minute)},
		{FinishedAt: now},
	}

	byAge := evict(append([]Record(nil), records...), Retention{Age: time.Hour}, now)
	assert.Len(t, byAge, 3)

	byCount := evict(append([]Record(nil), records...), Retention{Count: 2}, now)
	require.Len(t, byCount, 2)
	assert.Equal(t, now, byCount[1].FinishedAt)

	both := evict(append([]Record(nil), records...), Retention{Age: time.Hour, Count: 1}, now)
	require.Len(t, both, 1)
	assert.Equal(t, now, both[0].FinishedAt)
}

func TestBackoff_DelayFor(t *testing.T) {
	exp := Backoff{Type: BackoffExponential, Delay: time.Second}
	assert.Equal(t, time.Second, exp.DelayFor(1))
	assert.Equal(t, 2*time.Second, exp.DelayFor(2))
	assert.Equal(t, 4*time.Second, exp.DelayFor(3))
	assert.Equal(t, maxBackoff, exp.DelayFor(30))

	fixed := Backoff{Type: BackoffFixed, Delay: 2 * time.Second}
	assert.Equal(t, 2*time.Second, fixed.DelayFor(1))
	assert.Equal(t, 2*time.Second, fixed.DelayFor(4))
}

func TestDefaultDefinitions(t *testing.T) {
	defs := DefaultDefinitions()
	require.Len(t, defs, 3)

	assert.Equal(t, QueueCriticalStock, defs[0].Name)
	assert.Equal(t, 10, defs[0].Priority)
	assert.Equal(t, 5, defs[0].Attempts)

	assert.Equal(t, QueueStockSync, defs[1].Name)
	require.NotNil(t, defs[1].Limiter)
	assert.Equal(t, 10, defs[1].Limiter.Max)

	assert.Equal(t, QueueNotifications, defs[2].Name)
	assert.Equal(t, BackoffFixed, defs[2].Backoff.Type)
}
