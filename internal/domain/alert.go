package domain

import (
	"time"

	"github.com/google/uuid"
)

// Severity — критичность алерта.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Rank возвращает числовой ранг критичности (LOW=1 … CRITICAL=4).
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	default:
		return 0
	}
}

// Valid проверяет, что критичность известна.
func (s Severity) Valid() bool {
	return s.Rank() > 0
}

// Типы алертов.
const (
	AlertTypeLowStock           = "low_stock"
	AlertTypeZeroStock          = "zero_stock"
	AlertTypeIntegrationDown    = "integration_unhealthy"
	AlertTypeQueueBacklog       = "queue_backlog"
	AlertTypeQueueFailureRate   = "queue_failure_rate"
	AlertTypeSyncDegraded       = "sync_degraded"
	AlertTypeUnauthorizedSource = "integration_unauthorized"
)

// Alert — уведомление о критическом состоянии.
//
// Создаётся один раз, сохраняется в журнал и рассылается по каналам.
// После создания не изменяется.
type Alert struct {
	ID        uuid.UUID      `json:"id"`
	Type      string         `json:"type"`
	Severity  Severity       `json:"severity"`
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	Data      map[string]any `json:"data,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// NewAlert создаёт алерт с новым ID и текущим временем.
func NewAlert(alertType string, severity Severity, title, message string, data map[string]any) *Alert {
	return &Alert{
		ID:        uuid.New(),
		Type:      alertType,
		Severity:  severity,
		Title:     title,
		Message:   message,
		Data:      data,
		CreatedAt: time.Now().UTC(),
	}
}
