package retry

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"math/rand/v2"
	"time"
)

// Default configuration values.
const (
	defaultMaxAttempts  = 3
	defaultInitialDelay = time.Second
	defaultMaxDelay     = 30 * time.Second
	defaultFactor       = 2.0
)

// Policy описывает, сколько раз и с какой задержкой повторять операцию.
type Policy struct {
	// Name — имя операции для логов.
	Name string

	// MaxAttempts — общее число попыток, включая первую (default: 3).
	MaxAttempts int

	// InitialDelay — задержка после первой неудачи (default: 1s).
	InitialDelay time.Duration

	// MaxDelay — верхняя граница задержки (default: 30s).
	MaxDelay time.Duration

	// Factor — множитель задержки (default: 2). 1 — фиксированная задержка.
	Factor float64

	// Jitter — доля случайной добавки к задержке, 0..1.
	Jitter float64

	// ShouldRetry решает, повторять ли попытку. nil — повторять любую ошибку.
	ShouldRetry func(err error, attempt int) bool

	// Delay переопределяет расчёт задержки.
	Delay func(attempt int) time.Duration

	Logger *slog.Logger

	// sleep заменяется в тестах.
	sleep func(ctx context.Context, d time.Duration) error
}

// Do выполняет fn согласно политике.
//
// Возвращает nil при первом успехе. Если попытки исчерпаны или ошибка
// неповторяемая, возвращается последняя ошибка fn без изменений.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	p = p.withDefaults()

	for attempt := 1; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}

		if attempt >= p.MaxAttempts || IsPermanent(err) {
			return err
		}
		if p.ShouldRetry != nil && !p.ShouldRetry(err, attempt) {
			return err
		}

		delay := p.delayFor(attempt)

		p.Logger.Warn("attempt failed, retrying",
			"operation", p.Name,
			"attempt", attempt,
			"max_attempts", p.MaxAttempts,
			"delay", delay,
			"error", err,
		)

		if serr := p.sleep(ctx, delay); serr != nil {
			return errors.Join(err, serr)
		}
	}
}

// Exponential повторяет fn с экспоненциально растущей задержкой.
func Exponential(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	if p.Factor <= 1 {
		p.Factor = defaultFactor
	}
	return Do(ctx, p, fn)
}

// Fixed повторяет fn до attempts раз с одинаковой задержкой.
func Fixed(ctx context.Context, attempts int, delay time.Duration, fn func(ctx context.Context) error) error {
	return Do(ctx, Policy{
		Name:         "fixed",
		MaxAttempts:  attempts,
		InitialDelay: delay,
		MaxDelay:     delay,
		Factor:       1,
	}, fn)
}

// Conditional повторяет fn, пока shouldRetry возвращает true.
// Число попыток ограничивает только сам предикат.
func Conditional(
	ctx context.Context,
	shouldRetry func(err error, attempt int) bool,
	delay func(attempt int) time.Duration,
	fn func(ctx context.Context) error,
) error {
	return Do(ctx, Policy{
		Name:        "conditional",
		MaxAttempts: math.MaxInt,
		ShouldRetry: shouldRetry,
		Delay:       delay,
	}, fn)
}

// BackoffDelay возвращает функцию задержки
// min(base * 2^(attempt-1) + jitter, maxDelay), где jitter < base.
func BackoffDelay(base, maxDelay time.Duration) func(attempt int) time.Duration {
	return func(attempt int) time.Duration {
		if attempt < 1 {
			attempt = 1
		}
		shift := attempt - 1
		if shift > 20 {
			shift = 20
		}

		d := base * time.Duration(1<<shift)
		if base > 0 {
			d += time.Duration(rand.Int64N(int64(base)))
		}
		if d > maxDelay {
			d = maxDelay
		}
		return d
	}
}

func (p Policy) withDefaults() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = defaultMaxAttempts
	}
	if p.InitialDelay <= 0 {
		p.InitialDelay = defaultInitialDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = defaultMaxDelay
	}
	if p.Factor <= 0 {
		p.Factor = defaultFactor
	}
	if p.Logger == nil {
		p.Logger = slog.Default()
	}
	if p.sleep == nil {
		p.sleep = sleepContext
	}
	return p
}

// delayFor вычисляет задержку после неудачной попытки attempt.
func (p Policy) delayFor(attempt int) time.Duration {
	if p.Delay != nil {
		return p.Delay(attempt)
	}

	delay := float64(p.InitialDelay) * math.Pow(p.Factor, float64(attempt-1))
	if p.Jitter > 0 {
		delay += delay * p.Jitter * rand.Float64()
	}
	if delay > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	return time.Duration(delay)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
