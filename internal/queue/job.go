package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Job — задача в очереди.
type Job struct {
	ID          string          `json:"id"`
	Queue       string          `json:"queue"`
	Name        string          `json:"name"`
	Priority    int             `json:"priority"`
	Payload     json.RawMessage `json:"payload"`
	Attempt     int             `json:"attempt"`
	MaxAttempts int             `json:"max_attempts"`
	LastError   string          `json:"last_error,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// NewJob создаёт задачу с JSON-представлением payload.
func NewJob(queue, name string, payload any) (*Job, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal job payload: %w", err)
	}
	return &Job{
		ID:        uuid.NewString(),
		Queue:     queue,
		Name:      name,
		Payload:   data,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// Decode декодирует payload в dest.
func (j *Job) Decode(dest any) error {
	if err := json.Unmarshal(j.Payload, dest); err != nil {
		return fmt.Errorf("decode job %s payload: %w", j.ID, err)
	}
	return nil
}

// CanRetry проверяет, остались ли попытки.
func (j *Job) CanRetry() bool {
	return j.Attempt < j.MaxAttempts
}

// State — состояние задачи в истории очереди.
type State string

const (
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// Record — завершённая задача в истории очереди.
type Record struct {
	Job        Job           `json:"job"`
	State      State         `json:"state"`
	Error      string        `json:"error,omitempty"`
	Duration   time.Duration `json:"duration"`
	FinishedAt time.Time     `json:"finished_at"`
}
