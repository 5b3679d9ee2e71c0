package alert

import (
	"context"

	"github.com/shaiso/stocksync/internal/domain"
)

// Channel — канал доставки алертов.
type Channel interface {
	Name() string
	Deliver(ctx context.Context, a *domain.Alert) error
}

// needsEmail — severity, которые дублируются на email.
func needsEmail(s domain.Severity) bool {
	return s.Rank() >= domain.SeverityHigh.Rank()
}

// dataString достаёт строковое поле из Data алерта.
func dataString(a *domain.Alert, key string) string {
	if v, ok := a.Data[key].(string); ok {
		return v
	}
	return ""
}

// productIDs достаёт product_ids из Data. После JSON-декодирования
// это []any, при вызове в процессе — []string.
func productIDs(a *domain.Alert) []string {
	switch v := a.Data["product_ids"].(type) {
	case []string:
		return v
	case []any:
		ids := make([]string, 0, len(v))
		for _, id := range v {
			if s, ok := id.(string); ok {
				ids = append(ids, s)
			}
		}
		return ids
	default:
		return nil
	}
}
