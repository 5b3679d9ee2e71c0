// Package api содержит admin HTTP API и приём webhook'ов.
//
// Структура:
//   - handler.go         — Handler с DI (submitter, хранилище, очереди, интеграции)
//   - routes.go          — chi router
//   - middleware.go      — middleware (logging, recovery, metrics)
//   - response.go        — унифицированные JSON-ответы и обработка ошибок
//   - dto.go             — Data Transfer Objects (request/response)
//   - sync_handler.go    — запуск синхронизации и её статус
//   - webhook_handler.go — webhook'и ERP/POS с проверкой HMAC-подписи
//   - ops_handler.go     — health, очереди, интеграции, алерты
//   - server.go          — http.Server с graceful shutdown
package api
