package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rosalabs/voice-agent/internal/config"
	"github.com/rosalabs/voice-agent/internal/gateway"
	"github.com/rosalabs/voice-agent/internal/leads"
	"github.com/rosalabs/voice-agent/internal/live"
	"github.com/rosalabs/voice-agent/internal/observability"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		// Use fmt for fatal errors before logger is initialized
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize structured logger
	observability.InitLogger(cfg.LogLevel, cfg.LogPretty)
	logger := observability.GetLogger()

	logger.Info().
		Str("port", cfg.Port).
		Str("model", cfg.GeminiModel).
		Str("voice", cfg.AgentVoice).
		Str("log_level", cfg.LogLevel).
		Bool("metrics_enabled", cfg.MetricsEnabled).
		Msg("Voice Agent Gateway starting")

	// Lead store: Postgres when configured, log-only otherwise
	var store leads.Store
	if cfg.DatabaseURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		pgStore, err := leads.NewPostgresStore(ctx, cfg.DatabaseURL, cfg.LeadsTable)
		cancel()
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to connect to lead store")
		}
		store = pgStore
		logger.Info().Str("table", cfg.LeadsTable).Msg("Lead store connected")
	} else {
		store = leads.NewLogStore(logger)
		logger.Warn().Msg("No DATABASE_URL configured, leads will only be logged")
	}
	defer store.Close()

	dialer := live.NewGeminiDialer(cfg.GeminiAPIKey)
	gw := gateway.New(cfg, dialer, store)

	// Create HTTP server
	mux := http.NewServeMux()

	// Register the browser UI WebSocket handler
	mux.HandleFunc("/ws", gw.Handler())

	// Health check endpoint
	mux.HandleFunc("/health", observability.HealthCheckHandler())

	// Readiness endpoint
	mux.HandleFunc("/ready", observability.ReadinessHandler(map[string]observability.HealthCheckFunc{
		"lead_store": func(ctx context.Context) (bool, error) {
			if err := store.Ping(ctx); err != nil {
				return false, err
			}
			return true, nil
		},
		"gemini": func(ctx context.Context) (bool, error) {
			// Validates configuration only; no API call is made to avoid
			// opening a billable live session
			if cfg.GeminiAPIKey == "" {
				return false, fmt.Errorf("missing Gemini API key")
			}
			return true, nil
		},
	}))

	// Metrics endpoint (Prometheus)
	if cfg.MetricsEnabled {
		mux.Handle("/metrics", promhttp.Handler())
		logger.Info().Msg("Prometheus metrics enabled at /metrics")
	}

	// Create HTTP server with timeouts
	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("endpoint", fmt.Sprintf("ws://localhost:%s/ws", cfg.Port)).
			Msg("Server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("Shutting down server...")

	// Tear down live sessions first; their websockets are hijacked and
	// Shutdown would neither close nor wait for them
	gw.DisconnectAll()

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	logger.Info().Msg("Server exited gracefully")
}
