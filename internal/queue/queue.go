package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/shaiso/stocksync/internal/retry"
	"github.com/shaiso/stocksync/internal/telemetry"
)

// AddOptions — параметры постановки задачи.
type AddOptions struct {
	// Priority — 0 означает приоритет очереди по умолчанию.
	Priority int

	// Delay — отложить задачу.
	Delay time.Duration
}

// Stats — состояние очереди.
type Stats struct {
	Name      string `json:"name"`
	Waiting   int    `json:"waiting"`
	Active    int    `json:"active"`
	Completed int    `json:"completed"`
	Failed    int    `json:"failed"`
	Delayed   int    `json:"delayed"`
	Dead      int    `json:"dead"`
}

// FailureRate — доля неудачных задач среди хранимой истории.
func (s Stats) FailureRate() float64 {
	total := s.Completed + s.Failed
	if total == 0 {
		return 0
	}
	return float64(s.Failed) / float64(total)
}

// Queue — очередь задач с политикой повторов и историей.
type Queue struct {
	def     Definition
	broker  Broker
	limiter *rate.Limiter
	logger  *slog.Logger
	now     func() time.Time

	handler Handler
	active  atomic.Int64

	mu        sync.Mutex
	completed []Record
	failed    []Record
}

func newQueue(def Definition, broker Broker, logger *slog.Logger) *Queue {
	def = def.withDefaults()

	var limiter *rate.Limiter
	if def.Limiter != nil && def.Limiter.Max > 0 && def.Limiter.Duration > 0 {
		limit := rate.Limit(float64(def.Limiter.Max) / def.Limiter.Duration.Seconds())
		limiter = rate.NewLimiter(limit, def.Limiter.Max)
	}

	return &Queue{
		def:     def,
		broker:  broker,
		limiter: limiter,
		logger:  telemetry.WithQueue(logger, def.Name),
		now:     time.Now,
	}
}

// Name возвращает имя очереди.
func (q *Queue) Name() string {
	return q.def.Name
}

// Definition возвращает описание очереди.
func (q *Queue) Definition() Definition {
	return q.def
}

// Add ставит задачу в очередь.
func (q *Queue) Add(ctx context.Context, name string, payload any, opts AddOptions) (*Job, error) {
	job, err := NewJob(q.def.Name, name, payload)
	if err != nil {
		return nil, err
	}

	job.Priority = q.def.Priority
	if opts.Priority > 0 {
		job.Priority = opts.Priority
	}
	job.MaxAttempts = q.def.Attempts

	if err := q.broker.Publish(ctx, job, opts.Delay); err != nil {
		return nil, fmt.Errorf("enqueue %s: %w", q.def.Name, err)
	}

	q.logger.Debug("job enqueued",
		"job_id", job.ID,
		"name", name,
		"priority", job.Priority,
		"delay", opts.Delay,
	)
	return job, nil
}

// process — обработчик, передаваемый брокеру.
//
// Возвращает ошибку, только если задачу нужно вернуть брокеру как есть:
// при остановке или если не удалось переопубликовать повтор.
func (q *Queue) process(ctx context.Context, job *Job) error {
	if q.limiter != nil {
		if err := q.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	job.Attempt++
	if job.MaxAttempts <= 0 {
		job.MaxAttempts = q.def.Attempts
	}

	q.active.Add(1)
	start := q.now()
	err := q.handler(ctx, job)
	elapsed := q.now().Sub(start)
	q.active.Add(-1)

	logger := q.logger.With("job_id", job.ID, "name", job.Name, "attempt", job.Attempt)

	if err == nil {
		q.record(job, StateCompleted, nil, elapsed)
		telemetry.JobsProcessed.WithLabelValues(q.def.Name, "completed").Inc()
		logger.Debug("job completed", "duration", elapsed)
		return nil
	}

	// Остановка: задача возвращается брокеру без расхода попытки.
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		job.Attempt--
		return err
	}

	job.LastError = err.Error()

	if retry.IsPermanent(err) || !job.CanRetry() {
		q.record(job, StateFailed, err, elapsed)
		telemetry.JobsProcessed.WithLabelValues(q.def.Name, "failed").Inc()
		logger.Error("job failed", "max_attempts", job.MaxAttempts, "error", err)

		if dlqErr := q.broker.DeadLetter(ctx, job, err); dlqErr != nil {
			logger.Error("failed to dead-letter job", "error", dlqErr)
		}
		return nil
	}

	delay := q.def.Backoff.DelayFor(job.Attempt)
	if pubErr := q.broker.Publish(ctx, job, delay); pubErr != nil {
		logger.Error("failed to schedule retry", "error", pubErr)
		return pubErr
	}

	telemetry.JobsProcessed.WithLabelValues(q.def.Name, "retried").Inc()
	logger.Warn("job failed, retry scheduled", "delay", delay, "error", err)
	return nil
}

// record добавляет задачу в историю и вытесняет устаревшие записи.
func (q *Queue) record(job *Job, state State, err error, d time.Duration) {
	rec := Record{
		Job:        *job,
		State:      state,
		Duration:   d,
		FinishedAt: q.now(),
	}
	if err != nil {
		rec.Error = err.Error()
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if state == StateCompleted {
		q.completed = evict(append(q.completed, rec), q.def.RemoveOnComplete, rec.FinishedAt)
	} else {
		q.failed = evict(append(q.failed, rec), q.def.RemoveOnFail, rec.FinishedAt)
	}
}

// evict удаляет записи старше Age и оставляет не больше Count последних.
func evict(records []Record, r Retention, now time.Time) []Record {
	start := 0
	if r.Age > 0 {
		cutoff := now.Add(-r.Age)
		for start < len(records) && records[start].FinishedAt.Before(cutoff) {
			start++
		}
	}
	if r.Count > 0 && len(records)-start > r.Count {
		start = len(records) - r.Count
	}
	if start == 0 {
		return records
	}
	return append(records[:0:0], records[start:]...)
}

// History возвращает копию хранимой истории.
func (q *Queue) History() (completed, failed []Record) {
	q.mu.Lock()
	defer q.mu.Unlock()

	completed = append([]Record(nil), q.completed...)
	failed = append([]Record(nil), q.failed...)
	return completed, failed
}

// Stats собирает состояние очереди.
func (q *Queue) Stats(ctx context.Context) (Stats, error) {
	bs, err := q.broker.Stats(ctx, q.def.Name)
	if err != nil {
		return Stats{Name: q.def.Name}, fmt.Errorf("stats %s: %w", q.def.Name, err)
	}

	q.mu.Lock()
	now := q.now()
	q.completed = evict(q.completed, q.def.RemoveOnComplete, now)
	q.failed = evict(q.failed, q.def.RemoveOnFail, now)
	completed, failed := len(q.completed), len(q.failed)
	q.mu.Unlock()

	s := Stats{
		Name:      q.def.Name,
		Waiting:   bs.Waiting,
		Active:    int(q.active.Load()),
		Completed: completed,
		Failed:    failed,
		Delayed:   bs.Delayed,
		Dead:      bs.Dead,
	}

	telemetry.QueueDepth.WithLabelValues(s.Name, "waiting").Set(float64(s.Waiting))
	telemetry.QueueDepth.WithLabelValues(s.Name, "active").Set(float64(s.Active))
	telemetry.QueueDepth.WithLabelValues(s.Name, "delayed").Set(float64(s.Delayed))
	telemetry.QueueDepth.WithLabelValues(s.Name, "failed").Set(float64(s.Failed))

	return s, nil
}
