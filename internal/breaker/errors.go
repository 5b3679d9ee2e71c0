package breaker

import "errors"

// ErrOpen — circuit открыт, вызов отклонён без обращения к upstream.
var ErrOpen = errors.New("circuit breaker is open")
