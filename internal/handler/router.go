package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/capitalize-ai/renovation-planner/internal/middleware"
	"github.com/capitalize-ai/renovation-planner/pkg/logger"
)

// RouterConfig carries the handlers and HTTP settings for the API.
type RouterConfig struct {
	JWTSecret         string
	CORSOrigins       []string
	RateLimitRequests int
	RateLimitWindow   time.Duration
	Logger            *logger.Logger

	Health        *HealthHandler
	Conversations *ConversationHandler
	Actions       *ActionHandler
	Analyses      *AnalysisHandler
	Events        *EventHandler
}

// NewRouter builds the API router.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(cfg.Logger))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.CORSOrigins))

	// Health endpoints (no auth required)
	r.Get("/health", cfg.Health.Health)
	r.Get("/ready", cfg.Health.Ready)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTSecret))
		r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

		r.Get("/projects/{projectID}/conversations", cfg.Conversations.List)

		r.Route("/conversations", func(r chi.Router) {
			r.Post("/", cfg.Conversations.Ensure)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", cfg.Conversations.Get)
				r.Post("/turns", cfg.Conversations.Turn)
				r.Get("/events", cfg.Events.List)
			})
		})

		r.With(middleware.RequireScope(middleware.ScopeDecide)).
			Post("/actions/{id}/decision", cfg.Actions.Decide)

		r.Get("/offers/{id}/analyses", cfg.Analyses.History)
		r.Get("/analyses/{id}/diff", cfg.Analyses.Diff)
	})

	return r
}
