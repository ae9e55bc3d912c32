package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/cartops/cartguard/internal/audit"
	"github.com/cartops/cartguard/internal/config"
	"github.com/cartops/cartguard/internal/handlers"
	"github.com/cartops/cartguard/internal/httpserver"
	"github.com/cartops/cartguard/internal/logging"
	"github.com/cartops/cartguard/internal/mutation"
	"github.com/cartops/cartguard/internal/pipeline"
	"github.com/cartops/cartguard/internal/session"
	"github.com/cartops/cartguard/internal/store"
)

// main boots the service: config → logger → stores → mutation chain →
// pipeline → HTTP server, then waits for a shutdown signal.
func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	logger, err := logging.New(cfg.Env)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	// Durable audit trail (Postgres).
	db, err := store.NewPostgresStore(cfg.DBURL)
	if err != nil {
		logger.Fatal("postgres connect failed", zap.Error(err))
	}
	defer db.Close()

	// Ensure required tables/indexes exist so `docker compose up --build` is enough.
	if err := db.EnsureSchema(); err != nil {
		logger.Fatal("schema apply failed", zap.Error(err))
	}

	// Per-shop OAuth sessions (Redis), written by the external auth flow.
	sessions, err := session.New(cfg.RedisURL)
	if err != nil {
		logger.Fatal("redis connect failed", zap.Error(err))
	}
	defer sessions.Close()

	// One client per remote tier so each carries its own timeout.
	adminClient := &http.Client{Timeout: cfg.MutationTimeout}
	storefrontClient := &http.Client{Timeout: cfg.MutationTimeout}

	orchestrator := mutation.NewOrchestrator(logger,
		mutation.NewAdminTier(adminClient, sessions, cfg.AdminAPIVersion),
		mutation.NewStorefrontTier(storefrontClient),
		mutation.NewSimulationTier(),
	)

	auditor := audit.NewLogger(db, logger)
	processor := pipeline.NewProcessor(db, orchestrator, auditor, cfg.CartItemCap, logger)

	webhookAdmin := handlers.NewWebhookAdmin(db, sessions, adminClient, cfg.AdminAPIVersion, cfg.AppURL, logger)

	router := httpserver.NewRouter(cfg, logger, db, sessions, processor, webhookAdmin)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		logger.Info("server started", zap.String("port", cfg.Port), zap.Int("cart_item_cap", cfg.CartItemCap))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	// Graceful shutdown: let in-flight deliveries acknowledge.
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}
}
