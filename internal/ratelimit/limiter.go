// Package ratelimit реализует блокирующий ограничитель запросов
// с фиксированным окном для клиентов внешних интеграций.
//
// Wait не отклоняет запрос при превышении квоты, а ждёт начала
// следующего окна.
package ratelimit

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Default configuration values.
const (
	defaultLimit  = 60
	defaultWindow = time.Minute
)

// Config — конфигурация Limiter.
type Config struct {
	// Name — имя интеграции для логов.
	Name string

	// Limit — число запросов в окне (default: 60).
	Limit int

	// Window — длительность окна (default: 1m).
	Window time.Duration

	// Now и Sleep заменяются в тестах.
	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error

	Logger *slog.Logger
}

// Limiter — ограничитель с фиксированным окном.
type Limiter struct {
	name   string
	limit  int
	window time.Duration
	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error
	logger *slog.Logger

	mu          sync.Mutex
	windowStart time.Time
	count       int
}

// New создаёт Limiter.
func New(cfg Config) *Limiter {
	limit := cfg.Limit
	if limit <= 0 {
		limit = defaultLimit
	}

	window := cfg.Window
	if window <= 0 {
		window = defaultWindow
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	sleep := cfg.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Limiter{
		name:   cfg.Name,
		limit:  limit,
		window: window,
		now:    now,
		sleep:  sleep,
		logger: logger.With("component", "ratelimit", "integration", cfg.Name),
	}
}

// Wait резервирует слот для запроса, при необходимости блокируясь
// до начала следующего окна. Возвращает ошибку только при отмене ctx.
func (l *Limiter) Wait(ctx context.Context) error {
	for {
		wait, ok := l.reserve()
		if ok {
			return nil
		}

		l.logger.Debug("rate limit reached, waiting for window reset",
			"limit", l.limit,
			"wait", wait,
		)

		if err := l.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// reserve занимает слот в текущем окне или возвращает время до его конца.
func (l *Limiter) reserve() (time.Duration, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if l.windowStart.IsZero() || now.Sub(l.windowStart) >= l.window {
		l.windowStart = now
		l.count = 0
	}

	if l.count < l.limit {
		l.count++
		return 0, true
	}

	return l.windowStart.Add(l.window).Sub(now), false
}

// Remaining возвращает число свободных слотов в текущем окне.
func (l *Limiter) Remaining() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.windowStart.IsZero() || l.now().Sub(l.windowStart) >= l.window {
		return l.limit
	}
	return l.limit - l.count
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
