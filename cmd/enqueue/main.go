package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/google/uuid"

	"github.com/jwebster45206/combat-ledger/internal/config"
	"github.com/jwebster45206/combat-ledger/internal/services/queue"
	queuePkg "github.com/jwebster45206/combat-ledger/pkg/queue"
)

// Pushes a short scripted encounter between the sample characters in
// data/characters onto the command queue.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	client, err := queue.NewClient(cfg.RedisURL, logger)
	if err != nil {
		log.Fatal("Failed to connect to Redis:", err)
	}
	defer client.Close()

	fmt.Println("Connected to Redis successfully!")

	ctx := context.Background()
	commands := queue.NewCommandQueue(client)
	combatID := uuid.New()
	combatants := []string{"kara", "ilsa", "goblin"}

	cmd := func(typ queuePkg.CommandType, round, turn int, actorID string, set func(r *queuePkg.Request)) *queuePkg.Request {
		r := &queuePkg.Request{
			RequestID:  uuid.New().String(),
			Type:       typ,
			CombatID:   combatID,
			Round:      round,
			Turn:       turn,
			Combatants: combatants,
			Actor:      actorID,
		}
		if set != nil {
			set(r)
		}
		return r
	}
	smash := func(r *queuePkg.Request) {
		r.Attribute = "might"
		r.AbilityKey = "smash"
		r.Effect = "damage"
		r.Amount = 2
	}

	script := []*queuePkg.Request{
		cmd(queuePkg.CommandCombatStart, 1, 1, "", nil),
		cmd(queuePkg.CommandShopPurchase, 1, 1, "ilsa", func(r *queuePkg.Request) {
			r.Purchase = &queuePkg.ShopPurchase{ExtraMovement: 2}
		}),
		cmd(queuePkg.CommandRoundStart, 1, 1, "", nil),

		cmd(queuePkg.CommandTurnStart, 1, 1, "kara", nil),
		cmd(queuePkg.CommandActivateStone, 1, 1, "kara", smash),
		cmd(queuePkg.CommandActivateStone, 1, 1, "kara", smash), // costs 2
		cmd(queuePkg.CommandSpendAction, 1, 1, "kara", func(r *queuePkg.Request) { r.Action = "attack" }),
		cmd(queuePkg.CommandApplyDamage, 1, 1, "goblin", func(r *queuePkg.Request) { r.Amount = 9 }),

		cmd(queuePkg.CommandTurnStart, 1, 2, "ilsa", nil),
		cmd(queuePkg.CommandConvertAction, 1, 2, "ilsa", func(r *queuePkg.Request) { r.Action = "movement" }),

		cmd(queuePkg.CommandTurnStart, 1, 3, "goblin", nil),
		cmd(queuePkg.CommandApplyDamage, 1, 3, "kara", func(r *queuePkg.Request) { r.Amount = 3 }),

		cmd(queuePkg.CommandRoundEnd, 1, 3, "", func(r *queuePkg.Request) {
			r.Allocations = map[string]map[string]int{"kara": {"might": 2}}
		}),
		cmd(queuePkg.CommandRoundStart, 2, 1, "", nil),
		cmd(queuePkg.CommandApplyDamage, 2, 1, "goblin", func(r *queuePkg.Request) { r.Amount = 6; r.Critical = true }),
		cmd(queuePkg.CommandTurnStart, 2, 3, "goblin", nil),
		cmd(queuePkg.CommandCombatEnd, 2, 3, "", nil),
	}

	for _, req := range script {
		if err := commands.EnqueueRequest(ctx, req); err != nil {
			log.Fatal("Failed to enqueue request:", err)
		}
		fmt.Printf("Enqueued %-16s %-7s round %d turn %d  %s\n", req.Type, req.Actor, req.Round, req.Turn, req.RequestID)
	}

	depth, err := commands.Depth(ctx)
	if err != nil {
		log.Fatal("Failed to get queue depth:", err)
	}

	fmt.Printf("\nCombat %s\n", combatID)
	fmt.Printf("Queue depth: %d requests\n", depth)
	fmt.Println("Subscribe with: redis-cli SUBSCRIBE combat-events:" + combatID.String())
	fmt.Println("Now start the worker to see it process these commands:")
	fmt.Println("   Run: go run ./cmd/worker")
}
