package queue

import "time"

// Имена очередей.
const (
	QueueCriticalStock = "critical-stock"
	QueueStockSync     = "stock-sync"
	QueueNotifications = "notifications"
)

// BackoffType — стратегия задержки повторов.
type BackoffType string

const (
	BackoffExponential BackoffType = "exponential"
	BackoffFixed       BackoffType = "fixed"
)

// Backoff — задержка перед повтором.
type Backoff struct {
	Type  BackoffType
	Delay time.Duration
}

// maxBackoff ограничивает экспоненциальную задержку.
const maxBackoff = 10 * time.Minute

// DelayFor возвращает задержку после неудачной попытки attempt (с 1).
func (b Backoff) DelayFor(attempt int) time.Duration {
	delay := b.Delay
	if delay <= 0 {
		delay = time.Second
	}

	if b.Type != BackoffExponential {
		return delay
	}

	// delay = base * 2^(attempt-1)
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= maxBackoff {
			return maxBackoff
		}
	}
	return delay
}

// Retention — сколько хранить завершённые задачи.
type Retention struct {
	Age   time.Duration
	Count int
}

// RateLimit — не более Max задач за Duration.
type RateLimit struct {
	Max      int
	Duration time.Duration
}

// Definition описывает очередь.
type Definition struct {
	Name             string
	Priority         int
	Attempts         int
	Backoff          Backoff
	RemoveOnComplete Retention
	RemoveOnFail     Retention
	Concurrency      int
	Limiter          *RateLimit
}

// DefaultDefinitions возвращает очереди синхронизации.
func DefaultDefinitions() []Definition {
	return []Definition{
		{
			Name:             QueueCriticalStock,
			Priority:         10,
			Attempts:         5,
			Backoff:          Backoff{Type: BackoffExponential, Delay: time.Second},
			RemoveOnComplete: Retention{Age: time.Hour, Count: 100},
			RemoveOnFail:     Retention{Age: 24 * time.Hour, Count: 500},
			Concurrency:      5,
		},
		{
			Name:             QueueStockSync,
			Priority:         5,
			Attempts:         3,
			Backoff:          Backoff{Type: BackoffExponential, Delay: 5 * time.Second},
			RemoveOnComplete: Retention{Age: 24 * time.Hour, Count: 1000},
			RemoveOnFail:     Retention{Age: 7 * 24 * time.Hour, Count: 1000},
			Concurrency:      3,
			Limiter:          &RateLimit{Max: 10, Duration: time.Second},
		},
		{
			Name:             QueueNotifications,
			Priority:         1,
			Attempts:         3,
			Backoff:          Backoff{Type: BackoffFixed, Delay: 2 * time.Second},
			RemoveOnComplete: Retention{Age: time.Hour, Count: 100},
			RemoveOnFail:     Retention{Age: 24 * time.Hour, Count: 200},
			Concurrency:      10,
		},
	}
}

func (d Definition) withDefaults() Definition {
	if d.Attempts <= 0 {
		d.Attempts = 1
	}
	if d.Concurrency <= 0 {
		d.Concurrency = 1
	}
	if d.RemoveOnComplete.Count <= 0 {
		d.RemoveOnComplete.Count = 100
	}
	if d.RemoveOnFail.Count <= 0 {
		d.RemoveOnFail.Count = 100
	}
	return d
}
