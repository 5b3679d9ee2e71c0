// Package queue реализует приоритетные очереди задач.
//
// Очередь описывается Definition: приоритет по умолчанию, политика
// повторов (число попыток, exponential/fixed backoff), хранение истории,
// параллелизм и ограничение скорости (golang.org/x/time/rate).
//
// Хранение сообщений вынесено в Broker:
//   - MemoryBroker — in-process heap, для тестов и локального запуска
//   - AMQPBroker   — RabbitMQ: x-max-priority, delay-очереди, DLQ
//
// Обработчики регистрируются явно через Manager.RegisterProcessor
// из composition root.
//
// Жизненный цикл задачи:
//
//	waiting → active → completed
//	               └─→ delayed → waiting   (ошибка, попытки остались)
//	               └─→ failed → DLQ        (retry.Permanent или попытки исчерпаны)
//
// Внутри одной очереди задача с большим приоритетом выдаётся раньше.
package queue
