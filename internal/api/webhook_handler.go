package api

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/shaiso/stocksync/internal/domain"
)

const (
	// SignatureHeader — заголовок HMAC-подписи тела webhook'а.
	SignatureHeader = "X-Signature-256"

	signaturePrefix = "sha256="
	maxWebhookBody  = 1 << 20
	webhookPriority = 10
)

// Sign возвращает значение SignatureHeader для тела body.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return signaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

// verifySignature сравнивает подпись за постоянное время.
func verifySignature(secret, body []byte, header string) bool {
	if len(secret) == 0 || !strings.HasPrefix(header, signaturePrefix) {
		return false
	}
	got, err := hex.DecodeString(strings.TrimPrefix(header, signaturePrefix))
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}

// HandleWebhook принимает событие изменения от ERP/POS.
// Валидное событие превращается в задание с высоким приоритетом;
// ответ 202 отправляется после постановки в очередь.
// POST /webhooks/{source}
func (h *Handler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	source := domain.Source(chi.URLParam(r, "source"))
	if !source.Valid() {
		NotFound(w, "unknown source")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		BadRequest(w, "request body too large")
		return
	}

	if !verifySignature(h.webhookSecret, body, r.Header.Get(SignatureHeader)) {
		h.logger.Warn("webhook signature rejected", "source", source, "remote_addr", r.RemoteAddr)
		Unauthorized(w, "invalid signature")
		return
	}

	var event WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		BadRequest(w, "invalid event payload")
		return
	}
	if event.ResourceID == "" {
		BadRequest(w, "resource_id is required")
		return
	}

	job := jobForEvent(source, event)
	if job == nil {
		h.logger.Debug("webhook event ignored", "source", source, "event", event.Event)
		Success(w, WebhookResponse{Status: "ignored"})
		return
	}

	qj, err := h.submitter.Submit(r.Context(), job)
	if err != nil {
		InternalError(w, h.logger, err)
		return
	}

	h.logger.Info("webhook enqueued",
		"source", source,
		"event", event.Event,
		"resource_id", event.ResourceID,
		"products", len(event.ProductIDs),
		"job_id", job.ID,
		"queue", qj.Queue,
	)

	Accepted(w, WebhookResponse{Status: "queued", JobID: job.ID, Queue: qj.Queue})
}

// jobForEvent возвращает задание для события или nil, если событие
// не относится к остаткам или каталогу.
func jobForEvent(source domain.Source, e WebhookEvent) *domain.SyncJob {
	opts := domain.JobOptions{ProductIDs: e.ProductIDs}

	var jobType domain.JobType
	switch e.Event {
	case EventStockUpdated:
		jobType = domain.JobTypeIncrementalSync
		if len(e.ProductIDs) > 0 {
			jobType = domain.JobTypeStockSync
		}
	case EventStockDepleted:
		jobType = domain.JobTypeCriticalStock
	case EventProductCreated, EventProductUpdated:
		jobType = domain.JobTypeProductSync
		opts.ProductIDs = nil
	default:
		return nil
	}

	job := domain.NewSyncJob(jobType, source, e.ResourceID, opts)
	job.Priority = webhookPriority
	return job
}
