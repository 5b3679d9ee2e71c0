package alert

import "errors"

var (
	// ErrInvalidSeverity — неизвестная severity.
	ErrInvalidSeverity = errors.New("invalid alert severity")

	// ErrDelivery — канал не принял алерт.
	ErrDelivery = errors.New("alert delivery failed")
)
