package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cloo-solutions/helpdesk-learning/internal/api"
	"github.com/cloo-solutions/helpdesk-learning/internal/api/handlers"
	"github.com/cloo-solutions/helpdesk-learning/internal/api/middleware"
)

type RouterConfig struct {
	AdminToken      string
	LearningHandler *handlers.LearningHandler
	GovernorHandler *handlers.GovernorHandler
	TicketHandler   *handlers.TicketHandler
	ArticleHandler  *handlers.ArticleHandler
	SettingsHandler *handlers.SettingsHandler
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	const maxBodyBytes int64 = 1 * 1024 * 1024

	r.Use(middleware.RequestID)
	r.Use(middleware.SentryMiddleware)
	r.Use(middleware.AccessLog)
	r.Use(middleware.Metrics)
	r.Use(middleware.MaxBodyBytes(maxBodyBytes))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		api.Success(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(middleware.AdminTokenAuth(cfg.AdminToken))

		r.Route("/learning", func(r chi.Router) {
			r.Get("/status", cfg.LearningHandler.Status)
			r.Get("/failed", cfg.LearningHandler.Failed)
			r.Post("/trigger", cfg.LearningHandler.Trigger)
			r.Post("/seed", cfg.LearningHandler.Seed)
			r.Post("/enqueue", cfg.LearningHandler.Enqueue)
		})

		r.Route("/governor", func(r chi.Router) {
			r.Get("/", cfg.GovernorHandler.Show)
			r.Put("/preset", cfg.GovernorHandler.ApplyPreset)
			r.Patch("/limits", cfg.GovernorHandler.UpdateLimits)
			r.Put("/free-tier", cfg.GovernorHandler.SetFreeTier)
		})

		r.Post("/tickets/score", cfg.TicketHandler.Score)

		r.Route("/articles/{id}", func(r chi.Router) {
			r.Delete("/", cfg.ArticleHandler.Delete)
			r.Post("/feedback", cfg.ArticleHandler.Rate)
			r.Post("/effectiveness", cfg.ArticleHandler.RecomputeEffectiveness)
			r.Get("/export", cfg.ArticleHandler.Export)
		})

		r.Get("/settings", cfg.SettingsHandler.Get)
		r.Put("/settings", cfg.SettingsHandler.Update)
	})

	return r
}
