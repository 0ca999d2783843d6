package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jwebster45206/combat-ledger/internal/config"
	"github.com/jwebster45206/combat-ledger/internal/logger"
	"github.com/jwebster45206/combat-ledger/internal/services/events"
	"github.com/jwebster45206/combat-ledger/internal/services/queue"
	"github.com/jwebster45206/combat-ledger/internal/storage"
	"github.com/jwebster45206/combat-ledger/internal/telemetry"
	"github.com/jwebster45206/combat-ledger/internal/worker"
	"github.com/jwebster45206/combat-ledger/pkg/dice"
	"github.com/jwebster45206/combat-ledger/pkg/ledger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	log := logger.Setup(cfg)

	log.Info("Starting Combat Ledger Worker",
		"environment", cfg.Environment,
		"redis_url", cfg.RedisURL,
		"store", cfg.Store)

	var opts []ledger.Option
	if cfg.OTelEnabled {
		shutdown, err := telemetry.Setup(context.Background(), cfg.Environment)
		if err != nil {
			log.Error("Failed to set up tracing", "error", err)
			os.Exit(1)
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(ctx); err != nil {
				log.Error("Failed to flush traces", "error", err)
			}
		}()
		log.Info("Tracing enabled")
	} else {
		opts = append(opts, ledger.WithTracer(telemetry.NoopTracer()))
	}

	// Initialize queue service
	queueClient, err := queue.NewClient(cfg.RedisURL, log)
	if err != nil {
		log.Error("Failed to create queue client", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := queueClient.Close(); err != nil {
			log.Error("Error closing queue client", "error", err)
		}
	}()
	commandQueue := queue.NewCommandQueue(queueClient)
	log.Info("Queue service initialized successfully")

	// Initialize storage service
	store, err := storage.Open(cfg, log)
	if err != nil {
		log.Error("Failed to open ledger store", "error", err, "store", cfg.Store)
		os.Exit(1)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error("Error closing ledger store", "error", err)
		}
	}()

	storageCtx, storageCancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer storageCancel()
	if err := store.Ping(storageCtx); err != nil {
		log.Error("Failed to connect to storage", "error", err)
		os.Exit(1)
	}
	if _, err := storage.SeedCharacters(storageCtx, store, cfg.CharacterDir, log); err != nil {
		log.Error("Failed to seed character sheets", "error", err, "dir", cfg.CharacterDir)
		os.Exit(1)
	}
	log.Info("Storage service initialized successfully")

	seed := cfg.DiceSeed
	if seed == 0 {
		if seed, err = dice.NewSeed(); err != nil {
			log.Error("Failed to seed dice roller", "error", err)
			os.Exit(1)
		}
	}

	// The queue client's connection also carries locks and events
	redisClient := queueClient.GetRedisClient()
	broadcaster := events.NewBroadcaster(redisClient, log)

	l, err := ledger.New(store, dice.NewSeededRoller(seed), broadcaster, log, opts...)
	if err != nil {
		log.Error("Failed to create ledger", "error", err)
		os.Exit(1)
	}
	processor := worker.NewCommandProcessor(store, l, log)
	log.Info("Command processor initialized successfully", "dice_seed", seed)

	w := worker.New(commandQueue, processor, broadcaster, redisClient, log, cfg.WorkerID, cfg.LockTTL)

	// Handle graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := w.Start(); err != nil {
			log.Error("Worker error", "error", err)
		}
	}()

	log.Info("Worker started, waiting for commands...", "worker_id", w.ID())

	// Wait for shutdown signal
	<-quit
	log.Info("Worker shutdown signal received")
	w.Stop()

	// Give worker time to finish current command
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		log.Warn("Worker did not stop in time")
	}

	log.Info("Worker exited")
}
