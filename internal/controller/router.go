package controller

import (
	"time"

	"github.com/cassiomorais/paybridge/internal/config"
	"github.com/cassiomorais/paybridge/internal/observability"
	customMW "github.com/cassiomorais/paybridge/internal/middleware"
	"github.com/cassiomorais/paybridge/internal/service"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

type RouterDeps struct {
	DB                Pinger
	IssuanceService   *service.IssuanceService
	SettlementService *service.SettlementService
	Metrics           *observability.Metrics
	Gatherer          prometheus.Gatherer
	Server            config.ServerConfig
	App               config.AppConfig
	Logger            zerolog.Logger
}

func NewRouter(deps RouterDeps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(customMW.Tracing(deps.App.Name))
	r.Use(chimw.RealIP)
	r.Use(customMW.RequestLogger(deps.Logger))
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(60 * time.Second))
	r.Use(customMW.SecurityHeaders())
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.Server.CORS.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "ApiKey", "Content-Type"},
		AllowCredentials: deps.Server.CORS.AllowCredentials,
		MaxAge:           300,
	}))
	if deps.Metrics != nil {
		r.Use(customMW.Metrics(deps.Metrics))
	}

	healthH := NewHealthController(deps.DB, deps.App)
	paymentH := NewPaymentController(deps.IssuanceService, deps.SettlementService, deps.Logger)

	r.NotFound(NotFound)
	r.MethodNotAllowed(NotFound)

	r.Get("/", healthH.Index)
	r.Get("/health/live", healthH.Liveness)
	r.Get("/health/ready", healthH.Readiness)

	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", healthH.Health)

		// storefront pages call this from the browser, including via script tags
		r.Group(func(r chi.Router) {
			r.Use(customMW.RateLimit(deps.Server.RateLimit))
			r.Get("/pay", paymentH.Pay)
			r.Post("/pay", paymentH.Pay)
		})

		r.Post("/notify", paymentH.Notify)
	})

	return r
}
