// Package api provides the HTTP API for CitySignal.
package api

import (
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/citysignal/citysignal/internal/api/handler"
	"github.com/citysignal/citysignal/internal/api/middleware"
	"github.com/citysignal/citysignal/internal/auth"
	"github.com/citysignal/citysignal/internal/comment"
	"github.com/citysignal/citysignal/internal/signal"
	"github.com/citysignal/citysignal/internal/subscription"
)

// ReadyChecker verifies a dependency needed to serve requests.
type ReadyChecker = handler.ReadyChecker

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version             string
	BuildTime           string
	Logger              zerolog.Logger
	ServiceName         string
	Metrics             *middleware.Metrics
	JWTService          *auth.JWTService
	SignalService       *signal.Service
	SubscriptionService *subscription.Service
	CommentService      *comment.Service
	ReadyChecks         map[string]handler.ReadyChecker
}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Set default service name if not provided
	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "citysignal-api"
	}

	// Global middleware - order matters
	r.Use(middleware.RequestID)            // Generate/propagate request ID first
	r.Use(middleware.Tracing(serviceName)) // Distributed tracing
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware()) // HTTP metrics
	}
	r.Use(middleware.Logger(cfg.Logger))   // Structured logging
	r.Use(middleware.Recovery(cfg.Logger)) // Panic recovery
	r.Use(chimiddleware.RealIP)            // Real IP extraction
	r.Use(middleware.SecurityHeaders)      // Security headers (HSTS, CSP, etc.)
	r.Use(middleware.RequireTLS)           // TLS enforcement (enabled via REQUIRE_TLS=true)
	r.Use(middleware.ContentTypeJSON)      // JSON content type
	r.Use(middleware.RequireJSON)          // Reject non-JSON write bodies

	// Initialize handlers
	opsHandler := handler.NewOpsHandler(cfg.Version, cfg.BuildTime, cfg.ReadyChecks)
	signalHandler := handler.NewSignalHandler(cfg.SignalService)
	subscriptionHandler := handler.NewSubscriptionHandler(cfg.SubscriptionService)
	commentHandler := handler.NewCommentHandler(cfg.CommentService)

	// Auth middleware: reads are public, report writes require a token
	// so every signal has an owner who can resolve it. Subscriptions
	// stay anonymous-friendly.
	authMiddleware := middleware.Auth(cfg.JWTService)
	optionalAuth := middleware.OptionalAuth(cfg.JWTService)

	// Rate limit middleware per endpoint category
	createRateLimit := middleware.RateLimitByIP(middleware.CreateSignalRateLimit) // 10 per 5 min
	subscribeRateLimit := middleware.RateLimitByIP(middleware.SubscribeRateLimit) // 30 req/min
	standardRateLimit := middleware.RateLimitByIP(middleware.StandardRateLimit)   // 100 req/min

	// API v1 routes
	r.Route("/v1", func(r chi.Router) {
		// Ops endpoints (public)
		r.Route("/ops", func(r chi.Router) {
			r.Get("/health", opsHandler.HealthCheck)
			r.Get("/ready", opsHandler.ReadinessCheck)
		})

		// Signal feed and reports
		r.Route("/signals", func(r chi.Router) {
			r.With(standardRateLimit).Get("/", signalHandler.Feed)
			r.With(createRateLimit, authMiddleware).Post("/", signalHandler.Create)

			r.Route("/{signalId}", func(r chi.Router) {
				r.With(standardRateLimit).Get("/", signalHandler.Get)
				r.With(standardRateLimit, authMiddleware).Post("/status", signalHandler.SetStatus)

				// Retired endpoint kept for old clients; always 410
				r.Post("/vote", signalHandler.Vote)

				r.Route("/comments", func(r chi.Router) {
					r.Use(standardRateLimit)
					r.Get("/", commentHandler.List)
					r.With(authMiddleware).Post("/", commentHandler.Create)
				})
			})
		})

		// Push subscriptions (anonymous allowed)
		r.Route("/push", func(r chi.Router) {
			r.With(subscribeRateLimit, optionalAuth).Post("/subscriptions", subscriptionHandler.Upsert)
		})
	})

	return r
}
