// Package telemetry обеспечивает наблюдаемость stocksync.
//
// logging.go настраивает slog (уровень и формат берутся из конфигурации)
// и передаёт логгер задания через context. metrics.go объявляет
// Prometheus-метрики с префиксом stocksync_: состояние circuit breaker'ов,
// длительность синхронизаций, глубина очередей, алерты, попадания в кэш,
// запросы к upstream и admin API.
package telemetry
