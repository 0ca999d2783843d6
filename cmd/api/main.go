package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jwebster45206/combat-ledger/internal/config"
	"github.com/jwebster45206/combat-ledger/internal/handlers"
	"github.com/jwebster45206/combat-ledger/internal/logger"
	"github.com/jwebster45206/combat-ledger/internal/services/events"
	"github.com/jwebster45206/combat-ledger/internal/services/queue"
	"github.com/jwebster45206/combat-ledger/internal/storage"
	"github.com/jwebster45206/combat-ledger/internal/telemetry"
	"github.com/jwebster45206/combat-ledger/pkg/dice"
	"github.com/jwebster45206/combat-ledger/pkg/ledger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	log := logger.Setup(cfg)

	log.Info("Starting Combat Ledger API",
		"port", cfg.Port,
		"environment", cfg.Environment,
		"store", cfg.Store)

	store, err := storage.Open(cfg, log)
	if err != nil {
		log.Error("Failed to open ledger store", "error", err, "store", cfg.Store)
		os.Exit(1)
	}
	storageCtx, storageCancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer storageCancel()
	if err := store.Ping(storageCtx); err != nil {
		log.Error("Failed to connect to storage", "error", err)
		os.Exit(1)
	}
	log.Info("Storage connection established successfully")

	queueClient, err := queue.NewClient(cfg.RedisURL, log)
	if err != nil {
		log.Error("Failed to create queue client", "error", err)
		os.Exit(1)
	}
	redisClient := queueClient.GetRedisClient()
	broadcaster := events.NewBroadcaster(redisClient, log)

	// The API only reads the ledger; the roller is never used
	l, err := ledger.New(store, dice.NewSeededRoller(1), broadcaster, log, ledger.WithTracer(telemetry.NoopTracer()))
	if err != nil {
		log.Error("Failed to create ledger", "error", err)
		os.Exit(1)
	}

	mux := http.NewServeMux()
	mux.Handle("GET /health", handlers.NewHealthHandler(store, redisClient, log))
	mux.Handle("POST /v1/combats/{combatID}/commands", handlers.NewCommandsHandler(queue.NewCommandQueue(queueClient), broadcaster, log))
	mux.Handle("GET /v1/combats/{combatID}/events", handlers.NewEventsHandler(redisClient, log))
	mux.Handle("GET /v1/actors/{actorID}/ledger", handlers.NewLedgerHandler(store, l, log))

	server := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     mux,
		ReadTimeout: 15 * time.Second,
		// No WriteTimeout: the events stream stays open
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		log.Info("Server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Server is shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", "error", err)
	}

	if err := queueClient.Close(); err != nil {
		log.Error("Error closing queue client", "error", err)
	}
	if err := store.Close(); err != nil {
		log.Error("Error closing storage connection", "error", err)
	}

	log.Info("Server exited")
}
