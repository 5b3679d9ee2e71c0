package integration

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNotFound — upstream ответил 404.
	ErrNotFound = errors.New("upstream resource not found")

	// ErrUnauthorized — upstream отклонил учётные данные (401/403).
	ErrUnauthorized = errors.New("upstream rejected credentials")

	// ErrUnsupported — операция не поддерживается источником.
	ErrUnsupported = errors.New("operation not supported by upstream")
)

// HTTPError — ответ upstream со статусом >= 400.
type HTTPError struct {
	Integration string
	Method      string
	Path        string
	StatusCode  int
	Body        string
}

// Error реализует интерфейс error.
func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s %s %s: HTTP %d", e.Integration, e.Method, e.Path, e.StatusCode)
}

// HTTPStatus возвращает код ответа.
func (e *HTTPError) HTTPStatus() int {
	return e.StatusCode
}

// Is сопоставляет статус с sentinel-ошибками.
func (e *HTTPError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	case ErrUnauthorized:
		return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
	}
	return false
}

// isClientError — 4xx, кроме 408 и 429: ответ корректный,
// upstream здоров, circuit breaker его не учитывает.
func isClientError(err error) bool {
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		return false
	}
	code := httpErr.StatusCode
	return code >= 400 && code < 500 &&
		code != http.StatusRequestTimeout &&
		code != http.StatusTooManyRequests
}
