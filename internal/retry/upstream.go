package retry

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/shaiso/stocksync/internal/breaker"
)

// StatusCoder реализуют ошибки, несущие HTTP-статус ответа.
type StatusCoder interface {
	HTTPStatus() int
}

// upstreamDefaultAttempts — лимит попыток для ошибок без явной классификации.
const upstreamDefaultAttempts = 3

// UpstreamShouldRetry классифицирует ошибки вызовов ERP/POS.
//
// Не повторяются: 404, 401, 403, неразрешённый хост, открытый circuit,
// отмена контекста. Всегда повторяются: таймауты, 5xx, 429.
// Остальное — до 3 попыток.
func UpstreamShouldRetry(err error, attempt int) bool {
	if err == nil || IsPermanent(err) {
		return false
	}

	// Открытый circuit не расходует бюджет повторов.
	if errors.Is(err, breaker.ErrOpen) || errors.Is(err, context.Canceled) {
		return false
	}

	var sc StatusCoder
	if errors.As(err, &sc) {
		switch code := sc.HTTPStatus(); {
		case code == http.StatusNotFound, code == http.StatusUnauthorized, code == http.StatusForbidden:
			return false
		case code == http.StatusTooManyRequests, code == http.StatusRequestTimeout, code >= 500:
			return true
		}
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) && dnsErr.IsNotFound {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	return attempt < upstreamDefaultAttempts
}

// IntegrationPolicy — политика для обычных вызовов внешних API.
func IntegrationPolicy(name string) Policy {
	return Policy{
		Name:         name,
		MaxAttempts:  3,
		InitialDelay: time.Second,
		MaxDelay:     30 * time.Second,
		Factor:       2,
		Jitter:       0.2,
		ShouldRetry:  UpstreamShouldRetry,
	}
}

// StockCriticalPolicy — политика для критичных по свежести операций
// с остатками: больше попыток, короче задержки.
func StockCriticalPolicy(name string) Policy {
	return Policy{
		Name:         name,
		MaxAttempts:  5,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Factor:       1.5,
		Jitter:       0.1,
		ShouldRetry:  UpstreamShouldRetry,
	}
}
