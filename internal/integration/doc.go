// Package integration содержит HTTP-клиенты внешних систем (POS, ERP).
//
// Вызов проходит через цепочку декораторов:
//
//	rate limit → retry → circuit breaker → transport
//
// Каждое звено — Middleware над Doer и тестируется отдельно.
//
// Ошибки:
//   - *HTTPError — ответ со статусом >= 400, errors.Is сопоставляет
//     404 с ErrNotFound, 401/403 с ErrUnauthorized
//   - breaker.ErrOpen — circuit открыт, upstream не вызывался
//
// Запрос остатка, на который upstream ответил 404, возвращает
// StockLookup{Found: false} без ошибки.
package integration
