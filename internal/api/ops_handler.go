package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/shaiso/stocksync/internal/domain"
	"github.com/shaiso/stocksync/internal/repo"
)

const (
	healthTimeout     = 3 * time.Second
	defaultAlertLimit = 50
	maxAlertLimit     = 500
)

// Healthz проверяет зависимости процесса.
// GET /healthz
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	checks := make(map[string]string, len(h.checks))
	healthy := true
	for name, p := range h.checks {
		if err := p.Ping(ctx); err != nil {
			checks[name] = err.Error()
			healthy = false
			continue
		}
		checks[name] = "ok"
	}

	status := http.StatusOK
	state := "ok"
	if !healthy {
		status = http.StatusServiceUnavailable
		state = "degraded"
	}
	JSON(w, status, map[string]any{"status": state, "checks": checks})
}

// ListQueues возвращает состояние очередей.
// GET /api/v1/queues
func (h *Handler) ListQueues(w http.ResponseWriter, r *http.Request) {
	stats, err := h.queues.Stats(r.Context())
	if err != nil && len(stats) == 0 {
		InternalError(w, h.logger, err)
		return
	}
	if err != nil {
		h.logger.Warn("partial queue stats", "error", err)
	}

	result := make([]QueueResponse, len(stats))
	for i, s := range stats {
		result[i] = QueueFromStats(s)
	}
	List(w, result, len(result))
}

// ListIntegrations возвращает состояние circuit breaker'ов.
// ?probe=true дополнительно вызывает health check каждой интеграции.
// GET /api/v1/integrations
func (h *Handler) ListIntegrations(w http.ResponseWriter, r *http.Request) {
	probe := r.URL.Query().Get("probe") == "true"

	result := make([]IntegrationResponse, len(h.integrations))
	for i, in := range h.integrations {
		resp := IntegrationFromSnapshot(string(in.Source()), in.Breaker().Snapshot())
		if probe {
			ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
			err := in.Health(ctx)
			cancel()

			ok := err == nil
			resp.Healthy = &ok
			if err != nil {
				resp.Error = err.Error()
			}
		}
		result[i] = resp
	}
	List(w, result, len(result))
}

// ResetIntegration вручную закрывает circuit интеграции.
// POST /api/v1/integrations/{name}/reset
func (h *Handler) ResetIntegration(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	in, ok := h.integration(name)
	if !ok {
		NotFound(w, "integration not found")
		return
	}

	in.Breaker().Reset()
	h.logger.Info("integration circuit reset", "integration", name)

	Success(w, IntegrationFromSnapshot(name, in.Breaker().Snapshot()))
}

// ListAlerts возвращает журнал алертов.
// GET /api/v1/alerts?type=...&severity=...&limit=...&offset=...
func (h *Handler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := repo.AlertFilter{
		Type:     q.Get("type"),
		Severity: domain.Severity(q.Get("severity")),
		Limit:    defaultAlertLimit,
	}

	if filter.Severity != "" && !filter.Severity.Valid() {
		BadRequest(w, "invalid severity")
		return
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit <= 0 {
			BadRequest(w, "invalid limit")
			return
		}
		filter.Limit = min(limit, maxAlertLimit)
	}
	if v := q.Get("offset"); v != "" {
		offset, err := strconv.Atoi(v)
		if err != nil || offset < 0 {
			BadRequest(w, "invalid offset")
			return
		}
		filter.Offset = offset
	}

	alerts, err := h.alerts.ListAlerts(r.Context(), filter)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}
	List(w, alerts, len(alerts))
}
