package domain

import "time"

// Типы сущностей журнала интеграций.
const (
	EntityProducts  = "products"
	EntityStock     = "stock"
	EntityCustomers = "customers"

	// EntityCriticalStock — повторная проверка критичных остатков.
	// Не влияет на delta инкрементальной синхронизации.
	EntityCriticalStock = "critical_stock"
)

// IntegrationLog — запись журнала интеграций.
type IntegrationLog struct {
	Source     Source         `json:"source"`
	ResourceID string         `json:"resource_id"`
	EntityType string         `json:"entity_type"`
	Status     LogStatus      `json:"status"`
	Details    map[string]any `json:"details,omitempty"`
	Error      string         `json:"error,omitempty"`
	Duration   time.Duration  `json:"duration"`
	CreatedAt  time.Time      `json:"created_at"`
}
