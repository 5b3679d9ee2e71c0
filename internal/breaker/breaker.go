// Package breaker реализует circuit breaker для внешних интеграций.
//
// Состояния:
//
//	CLOSED ──(failures >= threshold)──▶ OPEN
//	OPEN ──(now >= next_attempt, следующий вызов)──▶ HALF_OPEN
//	HALF_OPEN ──(3 успеха подряд)──▶ CLOSED
//	HALF_OPEN ──(любая ошибка)──▶ OPEN
//
// Один экземпляр на upstream. Снаружи состояние меняется только через Reset.
package breaker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// State — состояние circuit breaker.
type State string

const (
	StateClosed   State = "CLOSED"
	StateOpen     State = "OPEN"
	StateHalfOpen State = "HALF_OPEN"
)

// Default configuration values.
const (
	defaultFailureThreshold = 5
	defaultSuccessThreshold = 3
	defaultTimeout          = 60 * time.Second
)

// Config — конфигурация Breaker.
type Config struct {
	// FailureThreshold — число ошибок подряд для перехода в OPEN (default: 5).
	FailureThreshold int

	// SuccessThreshold — число успехов в HALF_OPEN для перехода в CLOSED (default: 3).
	SuccessThreshold int

	// Timeout — сколько circuit остаётся открытым (default: 60s).
	Timeout time.Duration

	// CallTimeout — таймаут одного вызова. 0 — без таймаута.
	CallTimeout time.Duration

	// OnStateChange вызывается после каждого перехода (опционально).
	OnStateChange func(name string, from, to State)

	// Now — источник времени (для тестов).
	Now func() time.Time

	Logger *slog.Logger
}

// Snapshot — наблюдаемое состояние breaker'а.
type Snapshot struct {
	Name                 string    `json:"name"`
	State                State     `json:"state"`
	ConsecutiveFailures  int       `json:"consecutive_failures"`
	ConsecutiveSuccesses int       `json:"consecutive_successes"`
	NextAttempt          time.Time `json:"next_attempt,omitempty"`
}

// Breaker — circuit breaker одной интеграции.
type Breaker struct {
	name             string
	failureThreshold int
	successThreshold int
	timeout          time.Duration
	callTimeout      time.Duration
	onStateChange    func(name string, from, to State)
	now              func() time.Time
	logger           *slog.Logger

	mu          sync.Mutex
	state       State
	failures    int
	successes   int
	nextAttempt time.Time
}

// New создаёт Breaker в состоянии CLOSED.
func New(name string, cfg Config) *Breaker {
	failureThreshold := cfg.FailureThreshold
	if failureThreshold <= 0 {
		failureThreshold = defaultFailureThreshold
	}

	successThreshold := cfg.SuccessThreshold
	if successThreshold <= 0 {
		successThreshold = defaultSuccessThreshold
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Breaker{
		name:             name,
		failureThreshold: failureThreshold,
		successThreshold: successThreshold,
		timeout:          timeout,
		callTimeout:      cfg.CallTimeout,
		onStateChange:    cfg.OnStateChange,
		now:              now,
		logger:           logger.With("component", "circuit_breaker", "breaker", name),
		state:            StateClosed,
	}
}

// Name возвращает имя интеграции.
func (b *Breaker) Name() string {
	return b.name
}

// Execute выполняет op через breaker.
//
// В OPEN возвращает ErrOpen, не вызывая op. Результат op учитывается
// в счётчиках; ошибка op возвращается без изменений.
func (b *Breaker) Execute(ctx context.Context, op func(ctx context.Context) error) error {
	if err := b.before(); err != nil {
		return err
	}

	callCtx := ctx
	if b.callTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, b.callTimeout)
		defer cancel()
	}

	err := op(callCtx)
	if err != nil {
		b.onFailure(err)
		return err
	}

	b.onSuccess()
	return nil
}

// before проверяет, можно ли выполнять вызов, и переводит OPEN → HALF_OPEN
// после истечения таймаута.
func (b *Breaker) before() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != StateOpen {
		return nil
	}

	if b.now().Before(b.nextAttempt) {
		return fmt.Errorf("%w: %s (retry after %s)", ErrOpen, b.name, b.nextAttempt.Format(time.RFC3339))
	}

	b.successes = 0
	b.transition(StateHalfOpen)
	return nil
}

func (b *Breaker) onSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateHalfOpen:
		b.successes++
		if b.successes >= b.successThreshold {
			b.failures = 0
			b.successes = 0
			b.transition(StateClosed)
		}
	default:
		b.failures = 0
	}
}

func (b *Breaker) onFailure(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateHalfOpen:
		b.successes = 0
		b.open(err)
	case StateClosed:
		b.failures++
		if b.failures >= b.failureThreshold {
			b.open(err)
		}
	case StateOpen:
		// Вызов начался до открытия circuit другой горутиной.
		b.failures++
	}
}

// open переводит в OPEN и вычисляет next_attempt. Вызывается под mu.
func (b *Breaker) open(cause error) {
	b.nextAttempt = b.now().Add(b.timeout)
	b.logger.Warn("circuit opened",
		"failures", b.failures,
		"next_attempt", b.nextAttempt,
		"error", cause,
	)
	b.transition(StateOpen)
}

// transition меняет состояние и уведомляет наблюдателя. Вызывается под mu.
func (b *Breaker) transition(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to

	b.logger.Info("circuit state changed", "from", from, "to", to)

	if b.onStateChange != nil {
		b.onStateChange(b.name, from, to)
	}
}

// State возвращает текущее состояние.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Snapshot возвращает копию состояния.
func (b *Breaker) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	return Snapshot{
		Name:                 b.name,
		State:                b.state,
		ConsecutiveFailures:  b.failures,
		ConsecutiveSuccesses: b.successes,
		NextAttempt:          b.nextAttempt,
	}
}

// Reset вручную закрывает circuit и сбрасывает счётчики.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures = 0
	b.successes = 0
	b.nextAttempt = time.Time{}
	b.transition(StateClosed)
	b.logger.Info("circuit manually reset")
}
