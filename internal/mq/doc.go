// Package mq предоставляет инфраструктуру для работы с RabbitMQ.
//
// Структура:
//   - connection.go — соединение с reconnect, канал публикации, каналы consumer'ов
//   - topology.go   — exchanges, рабочие очереди с приоритетами, delay-очереди, DLQ
//   - publisher.go  — публикация сообщений с приоритетом
//   - consumer.go   — потребление сообщений с ручным ack
//
// Exchanges:
//   - stocksync.jobs — рабочие очереди задач
//   - stocksync.dlq  — задачи, исчерпавшие попытки
//
// Отложенный повтор реализован через delay-очереди с TTL,
// которые dead-letter'ят сообщение обратно в stocksync.jobs.
package mq
