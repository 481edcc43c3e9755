package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	cardsapi "argentum/internal/cards/api"
	"argentum/internal/cards/application"
	"argentum/internal/cards/domain"
	"argentum/internal/cards/events"
	"argentum/internal/cards/infrastructure/funding"
	"argentum/internal/cards/infrastructure/memory"
	"argentum/internal/cards/infrastructure/postgres"
	"argentum/internal/common/config"
	"argentum/internal/common/logging"
	"argentum/internal/common/metrics"
	"argentum/internal/common/types"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Setup structured logging
	logging.Setup(logging.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
	})

	// Generate correlation ID for startup
	startupCtx := logging.WithCorrelationID(context.Background(), types.NewCorrelationID())

	logging.InfoContext(startupCtx, "Starting Argentum card service",
		"port", cfg.Port,
		"environment", cfg.Environment,
		"log_level", cfg.LogLevel,
	)

	// Setup HTTP server
	mux := http.NewServeMux()

	// Health check endpoint
	mux.HandleFunc("GET /health", healthHandler)

	// Ready check endpoint
	mux.HandleFunc("GET /ready", readyHandler(cfg))

	// Prometheus metrics endpoint
	mux.Handle("GET /metrics", metrics.Handler())

	// Wire the Cards context. Development runs fully in process; any other
	// environment connects to Postgres and the real funding services.
	var (
		dataStore interface {
			domain.AtomicExecutor
			domain.Repositories
		}
		ledger  domain.TransactionLedger
		gateway domain.FundingGateway
	)
	if cfg.IsDevelopment() {
		dataStore = memory.NewDataStore()
		ledger = memory.NewLedger()
		gateway = funding.NewStaticGateway()
		logging.InfoContext(startupCtx, "Using in-memory datastore and static funding gateway")
	} else {
		pool, err := cfg.NewPostgresPool(startupCtx)
		if err != nil {
			logging.Error("Failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		dataStore = postgres.NewDataStore(pool)
		ledger = postgres.NewLedger(pool)
		gateway = funding.NewHTTPGateway(
			&http.Client{Timeout: 3 * time.Second},
			cfg.AccountServiceURL,
			cfg.CreditServiceURL,
		)
		logging.InfoContext(startupCtx, "Connected to database",
			"account_service", cfg.AccountServiceURL,
			"credit_service", cfg.CreditServiceURL,
		)
	}

	cardService := application.NewCardService(dataStore, gateway, ledger)
	cardHandler := cardsapi.NewHandler(cardService)
	cardHandler.RegisterRoutes(mux)

	// Outbox relay publishes staged events until shutdown.
	// The in-process transport stands in until a broker client is wired;
	// topics and broker endpoint are already configured for it.
	transport := events.NewMemoryTransport()
	publisher := events.NewPublisher(transport, events.Topics{
		CardEvents:    cfg.CardEventsTopic,
		PaymentEvents: cfg.PaymentEventsTopic,
		StatusEvents:  cfg.StatusEventsTopic,
	})
	relay := events.NewRelay(dataStore.Outbox(), publisher)

	relayCtx, stopRelay := context.WithCancel(context.Background())
	defer stopRelay()
	go relay.Run(relayCtx)

	logging.InfoContext(startupCtx, "Cards context initialized",
		"kafka_brokers", cfg.KafkaBrokers,
	)

	// Middleware chain: metrics -> correlation -> handler
	handler := metrics.Middleware(correlationMiddleware(mux))

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logging.Info("HTTP server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logging.Info("Shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logging.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	// Give the relay one last pass before stopping so staged events do not
	// wait for the next boot.
	if _, err := relay.DrainOnce(ctx); err != nil {
		logging.Warn("Final outbox drain failed", "error", err)
	}
	stopRelay()

	logging.Info("Server stopped")
}

// requestTimeout is the maximum time allowed for processing a single request.
const requestTimeout = 5 * time.Second

// correlationMiddleware adds correlation ID and request timeout to each request.
func correlationMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Check for existing correlation ID in header
		corrID := types.CorrelationID(r.Header.Get("X-Correlation-ID"))
		if corrID.IsEmpty() {
			corrID = types.NewCorrelationID()
		}

		// Add request timeout to prevent runaway requests
		ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
		defer cancel()

		// Add correlation ID to context
		ctx = logging.WithCorrelationID(ctx, corrID)

		// Add acting customer if present
		if customerID := r.Header.Get("X-Customer-Id"); customerID != "" {
			ctx = logging.WithCustomerID(ctx, types.CustomerID(customerID))
		}

		// Set response header
		w.Header().Set("X-Correlation-ID", corrID.String())

		// Log request
		logging.InfoContext(ctx, "HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
		)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// healthHandler returns basic health status.
func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"status": "healthy",
	})
}

// readyHandler checks if all dependencies are available.
func readyHandler(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]any{
			"status":      "ready",
			"environment": cfg.Environment,
		})
	}
}
