package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Routes возвращает router со всеми маршрутами API.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(Recovery(h.logger))
	r.Use(Metrics)
	r.Use(Logging(h.logger))

	r.Get("/healthz", h.Healthz)
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/webhooks/{source}", h.HandleWebhook)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/sync/trigger", h.TriggerSync)
		r.Get("/sync/status/{source}/{resource}", h.GetSyncStatus)

		r.Get("/queues", h.ListQueues)

		r.Get("/integrations", h.ListIntegrations)
		r.Post("/integrations/{name}/reset", h.ResetIntegration)

		r.Get("/alerts", h.ListAlerts)
	})

	return r
}
