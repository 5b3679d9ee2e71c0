package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/shaiso/stocksync/internal/domain"
)

// TriggerSync ставит задание синхронизации в очередь.
// POST /api/v1/sync/trigger
func (h *Handler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	var req TriggerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	job := req.ToJob()
	qj, err := h.submitter.Submit(r.Context(), job)
	if errors.Is(err, domain.ErrInvalidJob) {
		BadRequest(w, err.Error())
		return
	}
	if err != nil {
		InternalError(w, h.logger, err)
		return
	}

	h.logger.Info("sync triggered",
		"job_id", job.ID,
		"type", job.Type,
		"source", job.Source,
		"resource_id", job.ResourceID,
		"queue", qj.Queue,
	)

	Accepted(w, TriggerResponse{JobID: job.ID, QueueJobID: qj.ID, Queue: qj.Queue})
}

// GetSyncStatus возвращает статус синхронизации ресурса.
// GET /api/v1/sync/status/{source}/{resource}
func (h *Handler) GetSyncStatus(w http.ResponseWriter, r *http.Request) {
	source := domain.Source(chi.URLParam(r, "source"))
	if !source.Valid() {
		BadRequest(w, "unknown source")
		return
	}

	status, err := h.statuses.GetSyncStatus(r.Context(), source, chi.URLParam(r, "resource"))
	if HandleRepoError(w, h.logger, err, "sync status not found") {
		return
	}

	Success(w, status)
}
