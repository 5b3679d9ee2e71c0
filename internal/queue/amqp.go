package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/stocksync/internal/mq"
)

// AMQPBroker — Broker поверх RabbitMQ.
//
// Рабочая очередь объявлена с x-max-priority. Отложенные задачи
// публикуются в delay-очередь с TTL, откуда RabbitMQ возвращает их
// в рабочую очередь. Исчерпавшие попытки задачи уходят в dlq.<queue>.
type AMQPBroker struct {
	conn      *mq.Connection
	publisher *mq.Publisher
	logger    *slog.Logger

	mu     sync.Mutex
	delays map[string]map[time.Duration]struct{}
}

// NewAMQPBroker создаёт AMQPBroker.
func NewAMQPBroker(conn *mq.Connection, logger *slog.Logger) *AMQPBroker {
	if logger == nil {
		logger = slog.Default()
	}
	return &AMQPBroker{
		conn:      conn,
		publisher: mq.NewPublisher(conn, logger),
		logger:    logger.With("component", "amqp_broker"),
		delays:    make(map[string]map[time.Duration]struct{}),
	}
}

func (b *AMQPBroker) Declare(ctx context.Context, def Definition) error {
	return mq.SetupTopology(ctx, b.conn, []string{def.Name})
}

func (b *AMQPBroker) Publish(ctx context.Context, job *Job, delay time.Duration) error {
	opts := mq.PublishOptions{Priority: job.Priority}

	if delay <= 0 {
		return b.publisher.PublishJSON(ctx, mq.ExchangeJobs, job.Queue, mq.MessageTypeJob, job, opts)
	}

	// Задержка округляется до секунд, чтобы не плодить delay-очереди.
	delay = delay.Round(time.Second)
	if delay < time.Second {
		delay = time.Second
	}

	if _, err := mq.DeclareDelayQueue(ctx, b.conn, job.Queue, delay); err != nil {
		return err
	}
	b.rememberDelay(job.Queue, delay)

	return b.publisher.PublishJSON(ctx, "", mq.DelayQueueName(job.Queue, delay), mq.MessageTypeJob, job, opts)
}

func (b *AMQPBroker) rememberDelay(queue string, delay time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()

	set, ok := b.delays[queue]
	if !ok {
		set = make(map[time.Duration]struct{})
		b.delays[queue] = set
	}
	set[delay] = struct{}{}
}

// Consume запускает concurrency consumer'ов, каждый на своём канале с prefetch 1.
func (b *AMQPBroker) Consume(ctx context.Context, queue string, concurrency int, handle Handler) error {
	if concurrency <= 0 {
		concurrency = 1
	}

	handler := func(ctx context.Context, d *mq.Delivery) error {
		job, err := mq.ParsePayload[Job](&d.Message)
		if err != nil {
			// Битый payload повторять бессмысленно
			b.logger.Error("dropping malformed job", "queue", queue, "message_id", d.Message.ID, "error", err)
			return nil
		}
		return handle(ctx, &job)
	}

	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		consumer := mq.NewConsumer(b.conn, b.logger, mq.ConsumerConfig{
			Queue:          queue,
			Handler:        handler,
			Prefetch:       1,
			RequeueOnError: true,
		})

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				b.logger.Error("consumer stopped", "queue", queue, "error", err)
			}
		}()
	}

	wg.Wait()
	return ctx.Err()
}

func (b *AMQPBroker) DeadLetter(ctx context.Context, job *Job, reason error) error {
	headers := amqp.Table{"x-attempts": int32(job.Attempt)}
	if reason != nil {
		headers["x-error"] = reason.Error()
	}

	err := b.publisher.PublishJSON(ctx, mq.ExchangeDLQ, job.Queue, mq.MessageTypeDeadLetter, job,
		mq.PublishOptions{Headers: headers})
	if err != nil {
		return fmt.Errorf("dead-letter job %s: %w", job.ID, err)
	}
	return nil
}

func (b *AMQPBroker) Stats(ctx context.Context, queue string) (BrokerStats, error) {
	var stats BrokerStats

	waiting, err := mq.QueueDepth(ctx, b.conn, queue, mq.WorkQueueArgs())
	if err != nil {
		return stats, err
	}
	stats.Waiting = waiting

	dead, err := mq.QueueDepth(ctx, b.conn, mq.DLQName(queue), nil)
	if err == nil {
		stats.Dead = dead
	}

	b.mu.Lock()
	delays := make([]time.Duration, 0, len(b.delays[queue]))
	for d := range b.delays[queue] {
		delays = append(delays, d)
	}
	b.mu.Unlock()

	for _, d := range delays {
		n, err := mq.DeclareDelayQueue(ctx, b.conn, queue, d)
		if err != nil {
			return stats, err
		}
		stats.Delayed += n
	}

	return stats, nil
}
