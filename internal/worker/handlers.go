package worker

import (
	"context"
	"time"

	"github.com/shaiso/stocksync/internal/domain"
	"github.com/shaiso/stocksync/internal/queue"
	"github.com/shaiso/stocksync/internal/retry"
	"github.com/shaiso/stocksync/internal/telemetry"
)

// HandleJob — обработчик очередей stock-sync и critical-stock.
func (w *Worker) HandleJob(ctx context.Context, qj *queue.Job) error {
	var job domain.SyncJob
	if err := qj.Decode(&job); err != nil {
		w.logger.Error("malformed sync job", "queue_job_id", qj.ID, "error", err)
		return permanent(err)
	}

	job.Attempt = qj.Attempt
	job.MaxAttempts = qj.MaxAttempts

	return w.Process(ctx, &job)
}

// permanent помечает ошибку как неповторяемую для очереди.
func permanent(err error) error {
	return retry.Permanent(err)
}

func observeSync(job *domain.SyncJob, status string, d time.Duration) {
	telemetry.SyncDuration.WithLabelValues(string(job.Type), string(job.Source), status).Observe(d.Seconds())
}
