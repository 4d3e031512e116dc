// Package main provides the entrypoint for the CitySignal background worker.
// The worker consumes fanout jobs from Pub/Sub and pushes notifications to
// subscribers near each signal.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/citysignal/citysignal/internal/api/middleware"
	"github.com/citysignal/citysignal/internal/database"
	"github.com/citysignal/citysignal/internal/notify"
	signalfeed "github.com/citysignal/citysignal/internal/signal"
	"github.com/citysignal/citysignal/internal/subscription"
	"github.com/citysignal/citysignal/internal/worker"
)

// Version and BuildTime are set at compile time via ldflags
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "citysignal-worker"

	// Setup structured logging
	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	log.Info().
		Str("build_time", BuildTime).
		Msg("starting CitySignal worker")

	// Worker also exposes a health endpoint for Cloud Run
	port := os.Getenv("APP_PORT")
	if port == "" {
		port = "8080"
	}

	projectID := os.Getenv("PUBSUB_PROJECT_ID")
	subscriptionName := os.Getenv("PUBSUB_SUBSCRIPTION")
	if subscriptionName == "" {
		subscriptionName = "signal-fanout-sub"
	}

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Connect to database
	dbConfig := database.ConfigFromEnv()
	client, db, err := database.Connect(ctx, dbConfig)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer func() {
		disconnectCtx, disconnectCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer disconnectCancel()
		if disconnectErr := client.Disconnect(disconnectCtx); disconnectErr != nil {
			log.Error().Err(disconnectErr).Msg("failed to disconnect from database")
		}
	}()
	log.Info().
		Str("database", dbConfig.Database).
		Msg("database connected")

	// Initialize fanout metrics
	fanoutMetrics, err := middleware.NewFanoutMetrics()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize fanout metrics")
	}

	// Initialize push fanout over the subscription directory
	subscriptionRepo := subscription.NewMongoRepository(db)
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

	signalRepo := signalfeed.NewMongoRepository(db)
	fanoutJob := worker.NewFanoutJob(worker.FanoutJobConfig{
		Signals:  signalRepo,
		Notifier: fanout,
		Metrics:  fanoutMetrics,
		Logger:   log,
	})

	// Initialize Pub/Sub handler
	pubsubHandler, err := worker.NewPubSubHandler(ctx, worker.PubSubConfig{
		ProjectID:        projectID,
		SubscriptionName: subscriptionName,
		FanoutJob:        fanoutJob,
		ReadyCheck: func(ctx context.Context) error {
			return client.Ping(ctx, nil)
		},
		Logger: log,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create pubsub handler")
	}
	defer func() {
		if closeErr := pubsubHandler.Close(); closeErr != nil {
			log.Error().Err(closeErr).Msg("failed to close pubsub handler")
		}
	}()

	// Create HTTP server for health checks
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"status":"healthy","version":"%s"}`, Version)
	})

	server := &http.Server{
		Addr:         ":" + port,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	// Start health check server
	go func() {
		log.Info().Str("addr", server.Addr).Msg("health check server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("health server error")
		}
	}()

	// Start consuming messages. Receive blocks until the context is
	// cancelled or an unrecoverable error occurs.
	errCh := make(chan error, 1)
	go func() {
		errCh <- pubsubHandler.Start(ctx)
	}()

	// Wait for interrupt signal or receiver failure
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("shutting down worker")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("pubsub receive failed")
		}
	}
	cancel()

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("health server forced to shutdown")
	}

	log.Info().Msg("worker stopped")
}
