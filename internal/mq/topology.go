package mq

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange — тип для имени обменника.
type Exchange string

// Exchanges.
const (
	// ExchangeJobs — рабочие очереди, routing key = имя очереди.
	ExchangeJobs Exchange = "stocksync.jobs"

	// ExchangeDLQ — задачи, исчерпавшие попытки.
	ExchangeDLQ Exchange = "stocksync.dlq"
)

// MaxPriority — максимальный приоритет сообщения (x-max-priority).
const MaxPriority = 10

// delayQueueGrace — сколько пустая delay-очередь живёт после последнего сообщения.
const delayQueueGrace = time.Minute

// DLQName возвращает имя dead-letter очереди для queue.
func DLQName(queue string) string {
	return "dlq." + queue
}

// DelayQueueName возвращает имя delay-очереди для queue и задержки.
//
// На каждую задержку своя очередь с x-message-ttl: в RabbitMQ сообщения
// истекают только в голове очереди, разные TTL в одной очереди блокировали бы друг друга.
func DelayQueueName(queue string, delay time.Duration) string {
	return fmt.Sprintf("%s.delay.%d", queue, delay.Milliseconds())
}

// WorkQueueArgs — аргументы рабочей очереди.
// Повторные объявления должны передавать те же аргументы.
func WorkQueueArgs() amqp.Table {
	return amqp.Table{"x-max-priority": int32(MaxPriority)}
}

// DelayQueueArgs — аргументы delay-очереди: по истечении TTL сообщение
// возвращается в рабочую очередь через ExchangeJobs.
func DelayQueueArgs(queue string, delay time.Duration) amqp.Table {
	return amqp.Table{
		"x-message-ttl":             delay.Milliseconds(),
		"x-dead-letter-exchange":    string(ExchangeJobs),
		"x-dead-letter-routing-key": queue,
		"x-expires":                 (delay + delayQueueGrace).Milliseconds(),
	}
}

// SetupTopology объявляет exchanges, рабочие очереди и их DLQ.
//
//	stocksync.jobs (direct)
//	└── <queue> [routing: <queue>, x-max-priority 10]
//	<queue>.delay.<ms> (default exchange, TTL → stocksync.jobs/<queue>)
//	stocksync.dlq (direct)
//	└── dlq.<queue> [routing: <queue>]
func SetupTopology(ctx context.Context, conn *Connection, queues []string) error {
	return conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		for _, ex := range []Exchange{ExchangeJobs, ExchangeDLQ} {
			err := ch.ExchangeDeclare(
				string(ex), // name
				"direct",   // type
				true,       // durable
				false,      // auto-deleted
				false,      // internal
				false,      // no-wait
				nil,        // arguments
			)
			if err != nil {
				return fmt.Errorf("declare exchange %s: %w", ex, err)
			}
		}

		for _, q := range queues {
			if err := declareBound(ch, q, q, ExchangeJobs, WorkQueueArgs()); err != nil {
				return err
			}
			if err := declareBound(ch, DLQName(q), q, ExchangeDLQ, nil); err != nil {
				return err
			}
		}

		return nil
	})
}

// declareBound объявляет очередь и привязывает её к exchange.
func declareBound(ch *amqp.Channel, name, routingKey string, ex Exchange, args amqp.Table) error {
	_, err := ch.QueueDeclare(
		name,  // name
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		args,  // arguments
	)
	if err != nil {
		return fmt.Errorf("declare queue %s: %w", name, err)
	}

	if err := ch.QueueBind(name, routingKey, string(ex), false, nil); err != nil {
		return fmt.Errorf("bind queue %s to %s: %w", name, ex, err)
	}
	return nil
}

// DeclareDelayQueue объявляет delay-очередь (идемпотентно) и
// возвращает число сообщений в ней.
func DeclareDelayQueue(ctx context.Context, conn *Connection, queue string, delay time.Duration) (int, error) {
	var n int
	err := conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		q, err := ch.QueueDeclare(DelayQueueName(queue, delay), true, false, false, false, DelayQueueArgs(queue, delay))
		if err != nil {
			return fmt.Errorf("declare delay queue: %w", err)
		}
		n = q.Messages
		return nil
	})
	return n, err
}

// QueueDepth возвращает число готовых сообщений в очереди.
// args должны совпадать с аргументами объявления, иначе брокер закроет канал.
func QueueDepth(ctx context.Context, conn *Connection, queue string, args amqp.Table) (int, error) {
	var n int
	err := conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		q, err := ch.QueueDeclare(queue, true, false, false, false, args)
		if err != nil {
			return fmt.Errorf("inspect queue %s: %w", queue, err)
		}
		n = q.Messages
		return nil
	})
	return n, err
}
