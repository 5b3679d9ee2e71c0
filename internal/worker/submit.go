package worker

import (
	"context"
	"fmt"

	"github.com/shaiso/stocksync/internal/domain"
	"github.com/shaiso/stocksync/internal/queue"
)

// Enqueuer — постановка задач в очереди.
type Enqueuer interface {
	Add(ctx context.Context, queueName, jobName string, payload any, opts queue.AddOptions) (*queue.Job, error)
}

// Submitter маршрутизирует задания синхронизации по очередям.
type Submitter struct {
	queues Enqueuer
}

// NewSubmitter создаёт Submitter.
func NewSubmitter(queues Enqueuer) *Submitter {
	return &Submitter{queues: queues}
}

// QueueFor возвращает очередь для типа задания.
func QueueFor(t domain.JobType) string {
	if t == domain.JobTypeCriticalStock {
		return queue.QueueCriticalStock
	}
	return queue.QueueStockSync
}

// Submit валидирует задание и ставит его в очередь. Priority 0 —
// приоритет очереди по умолчанию.
func (s *Submitter) Submit(ctx context.Context, job *domain.SyncJob) (*queue.Job, error) {
	if err := job.Validate(); err != nil {
		return nil, err
	}

	qj, err := s.queues.Add(ctx, QueueFor(job.Type), string(job.Type), job, queue.AddOptions{Priority: job.Priority})
	if err != nil {
		return nil, fmt.Errorf("submit %s: %w", job.Type, err)
	}
	return qj, nil
}
