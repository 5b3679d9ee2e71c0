// Package retry реализует повтор операций с backoff.
//
// Стратегии:
//   - Exponential — delay = initial * factor^(attempt-1), ограничен MaxDelay
//   - Fixed — одинаковая задержка между попытками
//   - Conditional — решение и задержка задаются функциями
//
// Политики для внешних интеграций:
//   - IntegrationPolicy — 3 попытки, не повторяет 404/401 и неразрешённые хосты
//   - StockCriticalPolicy — 5 попыток, короткая начальная задержка, factor 1.5
//
// Ошибка, обёрнутая в Permanent, не повторяется ни одной стратегией.
// Ожидание между попытками прерывается отменой контекста.
package retry
