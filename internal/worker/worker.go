package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/jwebster45206/combat-ledger/internal/logger"
	"github.com/jwebster45206/combat-ledger/internal/services/events"
	"github.com/jwebster45206/combat-ledger/internal/services/queue"
	queuePkg "github.com/jwebster45206/combat-ledger/pkg/queue"
)

const (
	workerTimeout       = 5 * time.Second
	defaultLockTTL      = 30 * time.Second
	defaultRequeueDelay = 100 * time.Millisecond
)

// releaseLockScript only deletes the lock if we own it
var releaseLockScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// Worker processes commands from the combat queue. Commands of one combat
// never run concurrently: a worker holds the combat's lock while it
// applies a command.
type Worker struct {
	id          string
	queue       *queue.CommandQueue
	processor   Processor
	broadcaster *events.Broadcaster
	redisClient *redis.Client
	lockTTL     time.Duration
	// requeueDelay is how long the worker waits after handing back a
	// locked combat
	requeueDelay time.Duration
	log          *slog.Logger
	ctx          context.Context
	cancel       context.CancelFunc
}

// New creates a new worker instance
func New(commandQueue *queue.CommandQueue, processor Processor, broadcaster *events.Broadcaster, redisClient *redis.Client, log *slog.Logger, workerID string, lockTTL time.Duration) *Worker {
	ctx, cancel := context.WithCancel(context.Background())

	if workerID == "" {
		workerID = fmt.Sprintf("worker-%s", uuid.New().String()[:8])
	}
	if lockTTL <= 0 {
		lockTTL = defaultLockTTL
	}

	return &Worker{
		id:           workerID,
		queue:        commandQueue,
		processor:    processor,
		broadcaster:  broadcaster,
		redisClient:  redisClient,
		lockTTL:      lockTTL,
		requeueDelay: defaultRequeueDelay,
		log:          log,
		ctx:          ctx,
		cancel:       cancel,
	}
}

// ID returns the worker's lock owner id
func (w *Worker) ID() string {
	return w.id
}

// Start begins processing requests from the queue
func (w *Worker) Start() error {
	w.log.Info("Worker starting", "worker_id", w.id)

	for {
		select {
		case <-w.ctx.Done():
			w.log.Info("Worker shutting down", "worker_id", w.id)
			return nil
		default:
			if _, err := w.processNextRequest(); err != nil {
				w.log.Error("Error processing request", "error", err, "worker_id", w.id)
				// Continue processing even on error
				time.Sleep(1 * time.Second)
			}
		}
	}
}

// Stop gracefully shuts down the worker
func (w *Worker) Stop() {
	w.log.Info("Worker stop requested", "worker_id", w.id)
	w.cancel()
}

// processNextRequest waits for a combat with pending work, takes its lock
// and applies the combat's oldest command. It reports whether the queue
// yielded a combat.
func (w *Worker) processNextRequest() (bool, error) {
	// Block waiting for next combat (timeout to check for shutdown)
	ctx, cancel := context.WithTimeout(w.ctx, workerTimeout+time.Second)
	defer cancel()

	combatID, err := w.queue.WaitForCombat(ctx, workerTimeout)
	if err != nil {
		return false, fmt.Errorf("failed to dequeue request: %w", err)
	}
	if combatID == uuid.Nil {
		return false, nil
	}

	locked, err := w.acquireCombatLock(combatID)
	if err != nil {
		if requeueErr := w.queue.RequeueCombat(w.ctx, combatID); requeueErr != nil {
			w.log.Error("Failed to re-queue combat", "error", requeueErr, "combat_id", combatID.String())
		}
		return true, fmt.Errorf("failed to acquire combat lock: %w", err)
	}
	if !locked {
		// Another worker is applying a command of this combat
		w.log.Info("Combat already locked, re-queueing",
			"worker_id", w.id,
			"combat_id", combatID.String(),
		)
		if err := w.queue.RequeueCombat(w.ctx, combatID); err != nil {
			return true, fmt.Errorf("failed to re-queue combat: %w", err)
		}
		w.backoff()
		return true, nil
	}
	defer w.releaseCombatLock(combatID)

	// Popped under the lock, so the combat's commands apply in order
	req, err := w.queue.PopRequest(w.ctx, combatID)
	if err != nil {
		return true, err
	}
	if req == nil {
		w.log.Warn("Combat announced without pending commands", "combat_id", combatID.String())
		return true, nil
	}

	w.log.Info("Received request from queue",
		"worker_id", w.id,
		"request_id", req.RequestID,
		"type", req.Type,
		"combat_id", req.CombatID.String(),
	)
	return true, w.processRequest(req)
}

// backoff pauses before the next dequeue unless the worker is stopping
func (w *Worker) backoff() {
	t := time.NewTimer(w.requeueDelay)
	defer t.Stop()
	select {
	case <-w.ctx.Done():
	case <-t.C:
	}
}

// acquireCombatLock returns true if the lock was acquired, false if
// another worker holds it
func (w *Worker) acquireCombatLock(combatID uuid.UUID) (bool, error) {
	return w.redisClient.SetNX(w.ctx, queue.LockKey(combatID), w.id, w.lockTTL).Result()
}

func (w *Worker) releaseCombatLock(combatID uuid.UUID) {
	// The worker context may already be cancelled during shutdown
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := releaseLockScript.Run(ctx, w.redisClient, []string{queue.LockKey(combatID)}, w.id).Err(); err != nil {
		w.log.Error("Failed to release combat lock", "error", err, "combat_id", combatID.String())
	}
}

// processRequest applies one command and publishes its outcome. Rule
// rejections are published but are not worker errors.
func (w *Worker) processRequest(req *queuePkg.Request) error {
	log := logger.WithCombat(logger.WithRequestID(w.log, req.RequestID), req.CombatID.String(), req.Round, req.Turn)
	log.Info("Processing request", "worker_id", w.id, "type", req.Type, "actor", req.Actor)

	start := time.Now()

	if err := w.broadcaster.PublishCommandProcessing(w.ctx, req.CombatID, req.RequestID, string(req.Type), req.Actor); err != nil {
		log.Error("Failed to publish processing event", "error", err)
		// Don't fail the request just because event publishing failed
	}

	result, err := w.processor.Process(w.ctx, req)
	outcome, code := Classify(err)
	switch outcome {
	case OutcomeRejected:
		log.Warn("Command rejected", "code", code, "error", err)
		if pubErr := w.broadcaster.PublishCommandRejected(w.ctx, req.CombatID, req.RequestID, code, err.Error()); pubErr != nil {
			log.Error("Failed to publish rejection event", "error", pubErr)
		}
		return nil

	case OutcomeFailed:
		log.Error("Command failed", "error", err)
		if pubErr := w.broadcaster.PublishCommandFailed(w.ctx, req.CombatID, req.RequestID, err.Error()); pubErr != nil {
			log.Error("Failed to publish failure event", "error", pubErr)
		}
		return fmt.Errorf("failed to process %s command: %w", req.Type, err)
	}

	if result == nil {
		result = map[string]any{}
	}
	result["duration_ms"] = time.Since(start).Milliseconds()
	log.Info("Command processed successfully", "worker_id", w.id, "duration_ms", result["duration_ms"])

	if err := w.broadcaster.PublishCommandCompleted(w.ctx, req.CombatID, req.RequestID, result); err != nil {
		log.Error("Failed to publish completion event", "error", err)
	}
	return nil
}
