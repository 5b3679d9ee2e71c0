package queue

import (
	"context"
	"time"
)

// Handler обрабатывает задачу. Ошибка запускает политику повторов очереди.
type Handler func(ctx context.Context, job *Job) error

// BrokerStats — состояние очереди на стороне брокера.
type BrokerStats struct {
	Waiting int
	Delayed int
	Dead    int
}

// Broker — хранилище сообщений очередей.
type Broker interface {
	// Declare готовит очередь к работе.
	Declare(ctx context.Context, def Definition) error

	// Publish ставит задачу в очередь; delay > 0 — после задержки.
	Publish(ctx context.Context, job *Job, delay time.Duration) error

	// Consume вызывает handle для задач queue в concurrency горутинах
	// до отмены ctx. Ошибка handle возвращает задачу в очередь.
	Consume(ctx context.Context, queue string, concurrency int, handle Handler) error

	// DeadLetter переносит задачу в DLQ.
	DeadLetter(ctx context.Context, job *Job, reason error) error

	Stats(ctx context.Context, queue string) (BrokerStats, error)
}
