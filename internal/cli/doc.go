// Package cli реализует инструмент командной строки stocksync.
//
// # Обзор
//
// CLI — клиентская утилита для административного API воркера.
// Работает через HTTP, не импортирует внутренние пакеты системы.
// Используется для ручного запуска синхронизации и наблюдения
// за очередями, интеграциями и алертами.
//
// # Ключевые компоненты
//
// ## Client
//
// HTTP-клиент API. Инкапсулирует запросы, парсинг ответов
// (DataResponse, ListResponse, ErrorResponse) и обработку ошибок.
//
//	client := cli.NewClient("http://localhost:8080")
//	queues, err := client.ListQueues(ctx)
//
// ## Output
//
// Форматирование вывода. Поддерживает два режима:
//   - Таблицы (text/tabwriter) — по умолчанию
//   - JSON (json.MarshalIndent) — с флагом --json
//
// Данные выводятся в stdout, сообщения (Success/Error) — в stderr.
// Это позволяет использовать pipe: stocksync queues --json | jq .
//
// ## Commands
//
//   - sync: trigger, status
//   - queues
//   - integration: list, reset
//   - alerts
//   - health
//
// Каждая команда создаётся фабричной функцией (NewSyncCmd и т.д.),
// принимающей clientFn и outputFn — замыкания для ленивого создания
// Client и Output после парсинга PersistentFlags.
package cli
