// Package main provides the entrypoint for the CitySignal API server.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/citysignal/citysignal/internal/api"
	"github.com/citysignal/citysignal/internal/api/middleware"
	"github.com/citysignal/citysignal/internal/auth"
	"github.com/citysignal/citysignal/internal/comment"
	"github.com/citysignal/citysignal/internal/database"
	"github.com/citysignal/citysignal/internal/notify"
	"github.com/citysignal/citysignal/internal/severity"
	signalfeed "github.com/citysignal/citysignal/internal/signal"
	"github.com/citysignal/citysignal/internal/subscription"
	"github.com/citysignal/citysignal/internal/telemetry"
	"github.com/citysignal/citysignal/internal/worker"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "citysignal-api"

	// Setup structured logging
	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	log.Info().
		Str("build_time", BuildTime).
		Msg("starting CitySignal API")

	// Get configuration from environment
	port := os.Getenv("APP_PORT")
	if port == "" {
		port = "8080"
	}

	otlpEndpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if otlpEndpoint == "" {
		otlpEndpoint = "localhost:4317"
	}

	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development"
	}

	// Initialize OpenTelemetry
	ctx := context.Background()
	telemetryEnabled := os.Getenv("OTEL_ENABLED") == "true"

	tp, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: Version,
		Environment:    env,
		OTLPEndpoint:   otlpEndpoint,
		Enabled:        telemetryEnabled,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	if telemetryEnabled {
		log.Info().
			Str("otlp_endpoint", otlpEndpoint).
			Msg("OpenTelemetry initialized")
	}

	// Initialize metrics
	metrics, err := middleware.NewMetrics()
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize metrics")
		os.Exit(1) //nolint:gocritic // intentional exit, telemetry cleanup is best-effort
	}

	// Connect to database
	dbConfig := database.ConfigFromEnv()
	client, db, err := database.Connect(ctx, dbConfig)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer func() {
		disconnectCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if disconnectErr := client.Disconnect(disconnectCtx); disconnectErr != nil {
			log.Error().Err(disconnectErr).Msg("failed to disconnect from database")
		}
	}()
	log.Info().
		Str("database", dbConfig.Database).
		Msg("database connected")

	if err := database.EnsureIndexes(ctx, db); err != nil {
		log.Fatal().Err(err).Msg("failed to ensure indexes")
	}

	// Initialize JWT service (get signing key from environment)
	jwtSigningKey := os.Getenv("JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		jwtSigningKey = "local-dev-signing-key-change-in-production"
		log.Warn().Msg("using default JWT signing key - not secure for production")
	}

	jwtService := auth.NewJWTService(auth.JWTConfig{
		SigningKey: jwtSigningKey,
		Issuer:     "https://api.citysignal.kr",
		Audience:   "citysignal-api",
	})

	// Initialize severity classifier: model-backed when an API key is
	// configured, keyword heuristic otherwise.
	var classifier signalfeed.Classifier
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		classifier = severity.NewOpenAIClassifier(severity.OpenAIConfig{
			APIKey: apiKey,
			Model:  os.Getenv("OPENAI_MODEL"),
			Logger: log,
		})
		log.Info().Msg("model-backed severity classifier initialized")
	} else {
		classifier = severity.NewHeuristicClassifier()
		log.Warn().Msg("OPENAI_API_KEY not set - using heuristic severity classifier")
	}

	// Initialize subscription repository and service
	subscriptionRepo := subscription.NewMongoRepository(db)
	subscriptionService := subscription.NewService(subscriptionRepo, log)
	log.Info().Msg("subscription service initialized")

	// Initialize push fanout over the subscription directory
	transport := notify.NewWebPushTransport(notify.WebPushConfig{
		Subject:    os.Getenv("WEBPUSH_SUBJECT"),
		PublicKey:  os.Getenv("WEBPUSH_PUBLIC_KEY"),
		PrivateKey: os.Getenv("WEBPUSH_PRIVATE_KEY"),
		Logger:     log,
	})
	fanout := notify.NewFanout(notify.FanoutConfig{
		Directory: subscriptionRepo,
		Transport: transport,
		Logger:    log,
	})

	// When a Pub/Sub topic is configured, fanout is queued for the worker
	// instead of running inline with the create request.
	var asyncPublisher signalfeed.AsyncPublisher
	if topic := os.Getenv("PUBSUB_TOPIC"); topic != "" {
		projectID := os.Getenv("PUBSUB_PROJECT_ID")
		publisher, pubErr := worker.NewPublisher(ctx, projectID, topic)
		if pubErr != nil {
			log.Fatal().Err(pubErr).Msg("failed to create fanout publisher")
		}
		defer publisher.Close()
		asyncPublisher = publisher
		log.Info().
			Str("topic", topic).
			Msg("async fanout publisher initialized")
	}

	// Initialize signal repository and service. The degraded synthetic
	// fallback is for local development and is disabled in production.
	signalRepo := signalfeed.NewMongoRepository(db)
	signalService := signalfeed.NewService(signalfeed.ServiceConfig{
		Repo:             signalRepo,
		Classifier:       classifier,
		Notifier:         fanout,
		Async:            asyncPublisher,
		Synthetic:        signalfeed.NewSyntheticGenerator(),
		DegradedFallback: env != "production" && os.Getenv("FEED_DEGRADED_FALLBACK") != "false",
		Logger:           log,
	})
	log.Info().Msg("signal service initialized")

	// Initialize comment repository and service
	commentRepo := comment.NewMongoRepository(db)
	commentService := comment.NewService(commentRepo, signalService)
	log.Info().Msg("comment service initialized")

	// Create router with configuration
	router := api.NewRouter(api.RouterConfig{
		Version:             Version,
		BuildTime:           BuildTime,
		Logger:              log,
		ServiceName:         serviceName,
		Metrics:             metrics,
		JWTService:          jwtService,
		SignalService:       signalService,
		SubscriptionService: subscriptionService,
		CommentService:      commentService,
		ReadyChecks: map[string]api.ReadyChecker{
			"mongo": func(ctx context.Context) error {
				return client.Ping(ctx, nil)
			},
		},
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().
			Str("addr", server.Addr).
			Msg("server listening")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
		os.Exit(1)
	}

	log.Info().Msg("server stopped")
}
