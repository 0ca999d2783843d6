package queue

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"

	"github.com/jwebster45206/combat-ledger/pkg/queue"
)

func setupTestRedis(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	redisURL := "redis://" + mr.Addr()

	client, err := NewClient(redisURL, logger)
	if err != nil {
		mr.Close()
		t.Fatalf("Failed to create queue client: %v", err)
	}

	return client, mr
}

func newRequest(combatID uuid.UUID, typ queue.CommandType, actor string) *queue.Request {
	return &queue.Request{
		RequestID:  uuid.New().String(),
		Type:       typ,
		CombatID:   combatID,
		Round:      1,
		Turn:       1,
		Combatants: []string{"kara", "goblin"},
		Actor:      actor,
	}
}

func TestCommandQueue_FIFO(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer mr.Close()
	defer client.Close()

	q := NewCommandQueue(client)
	ctx := context.Background()
	combatID := uuid.New()

	reqs := []*queue.Request{
		newRequest(combatID, queue.CommandCombatStart, ""),
		newRequest(combatID, queue.CommandTurnStart, "kara"),
		newRequest(combatID, queue.CommandSpendAction, "kara"),
	}
	for _, req := range reqs {
		if err := q.EnqueueRequest(ctx, req); err != nil {
			t.Fatalf("Failed to enqueue request: %v", err)
		}
	}

	depth, err := q.Depth(ctx)
	if err != nil {
		t.Fatalf("Failed to get depth: %v", err)
	}
	if depth != len(reqs) {
		t.Errorf("Expected depth %d, got %d", len(reqs), depth)
	}

	if !mr.Exists(CombatKey(combatID)) {
		t.Errorf("Expected commands under %s", CombatKey(combatID))
	}

	for _, want := range reqs {
		got, err := q.DequeueRequest(ctx)
		if err != nil {
			t.Fatalf("Failed to dequeue: %v", err)
		}
		if got == nil {
			t.Fatal("Expected a request, got nil")
		}
		if got.RequestID != want.RequestID || got.Type != want.Type {
			t.Errorf("Expected %s/%s, got %s/%s", want.RequestID, want.Type, got.RequestID, got.Type)
		}
		if got.CombatID != combatID {
			t.Errorf("Expected combat %s, got %s", combatID, got.CombatID)
		}
		if got.EnqueuedAt.IsZero() {
			t.Error("Expected EnqueuedAt to be set")
		}
	}

	got, err := q.DequeueRequest(ctx)
	if err != nil {
		t.Fatalf("Failed to dequeue from empty queue: %v", err)
	}
	if got != nil {
		t.Errorf("Expected nil from empty queue, got %+v", got)
	}
}

func TestCommandQueue_RejectsInvalidRequests(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer mr.Close()
	defer client.Close()

	q := NewCommandQueue(client)
	ctx := context.Background()

	tests := []struct {
		name string
		req  *queue.Request
	}{
		{"unknown type", newRequest(uuid.New(), "teleport", "kara")},
		{"missing actor", newRequest(uuid.New(), queue.CommandSpendAction, "")},
		{"missing combat", newRequest(uuid.Nil, queue.CommandRoundStart, "")},
		{"missing request id", &queue.Request{Type: queue.CommandRoundStart, CombatID: uuid.New(), Combatants: []string{"kara"}}},
		{"no combatants", &queue.Request{RequestID: "r", Type: queue.CommandRoundStart, CombatID: uuid.New()}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := q.EnqueueRequest(ctx, tt.req); err == nil {
				t.Error("Expected validation error")
			}
		})
	}

	depth, err := q.Depth(ctx)
	if err != nil {
		t.Fatalf("Failed to get depth: %v", err)
	}
	if depth != 0 {
		t.Errorf("Expected empty queue, got depth %d", depth)
	}
}

func TestCommandQueue_WaitForCombat(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer mr.Close()
	defer client.Close()

	q := NewCommandQueue(client)
	ctx := context.Background()
	combatID := uuid.New()

	req := newRequest(combatID, queue.CommandHeal, "kara")
	req.Amount = 7
	if err := q.EnqueueRequest(ctx, req); err != nil {
		t.Fatalf("Failed to enqueue request: %v", err)
	}

	got, err := q.WaitForCombat(ctx, time.Second)
	if err != nil {
		t.Fatalf("Failed to wait for combat: %v", err)
	}
	if got != combatID {
		t.Fatalf("Expected combat %s, got %s", combatID, got)
	}
	popped, err := q.PopRequest(ctx, combatID)
	if err != nil {
		t.Fatalf("Failed to pop request: %v", err)
	}
	if popped == nil || popped.Amount != 7 {
		t.Fatalf("Expected heal request with amount 7, got %+v", popped)
	}

	got, err = q.WaitForCombat(ctx, time.Second)
	if err != nil {
		t.Fatalf("Expected timeout to return no error, got %v", err)
	}
	if got != uuid.Nil {
		t.Errorf("Expected uuid.Nil after timeout, got %s", got)
	}
	popped, err = q.PopRequest(ctx, combatID)
	if err != nil || popped != nil {
		t.Errorf("Expected empty combat list, got %+v, %v", popped, err)
	}
}

func TestCommandQueue_RequeueKeepsCombatOrder(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer mr.Close()
	defer client.Close()

	q := NewCommandQueue(client)
	ctx := context.Background()
	combatID := uuid.New()

	first := newRequest(combatID, queue.CommandCombatStart, "")
	second := newRequest(combatID, queue.CommandRoundStart, "")
	for _, req := range []*queue.Request{first, second} {
		if err := q.EnqueueRequest(ctx, req); err != nil {
			t.Fatalf("Failed to enqueue request: %v", err)
		}
	}

	// A worker that loses the lock race hands the combat back
	got, err := q.WaitForCombat(ctx, time.Second)
	if err != nil || got != combatID {
		t.Fatalf("Expected combat %s, got %s (%v)", combatID, got, err)
	}
	if err := q.RequeueCombat(ctx, combatID); err != nil {
		t.Fatalf("Failed to re-queue combat: %v", err)
	}

	depth, _ := q.Depth(ctx)
	if depth != 2 {
		t.Errorf("Expected depth 2 after re-queue, got %d", depth)
	}
	for _, want := range []*queue.Request{first, second} {
		req, err := q.DequeueRequest(ctx)
		if err != nil {
			t.Fatalf("Failed to dequeue: %v", err)
		}
		if req == nil || req.RequestID != want.RequestID {
			t.Fatalf("Expected %s, got %+v", want.Type, req)
		}
	}
}

func TestCommandQueue_PeekAndClear(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer mr.Close()
	defer client.Close()

	q := NewCommandQueue(client)
	ctx := context.Background()
	combatID := uuid.New()
	other := uuid.New()

	for range 3 {
		if err := q.EnqueueRequest(ctx, newRequest(combatID, queue.CommandDeathSave, "kara")); err != nil {
			t.Fatalf("Failed to enqueue request: %v", err)
		}
	}
	if err := q.EnqueueRequest(ctx, newRequest(other, queue.CommandRoundStart, "")); err != nil {
		t.Fatalf("Failed to enqueue request: %v", err)
	}

	peeked, err := q.Peek(ctx, combatID, 2)
	if err != nil {
		t.Fatalf("Failed to peek: %v", err)
	}
	if len(peeked) != 2 {
		t.Errorf("Expected 2 peeked requests, got %d", len(peeked))
	}
	all, err := q.Peek(ctx, combatID, 0)
	if err != nil {
		t.Fatalf("Failed to peek: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("Expected 3 requests, got %d", len(all))
	}

	if err := q.Clear(ctx); err != nil {
		t.Fatalf("Failed to clear: %v", err)
	}
	depth, _ := q.Depth(ctx)
	if depth != 0 {
		t.Errorf("Expected depth 0 after clear, got %d", depth)
	}
	for _, key := range []string{CombatKey(combatID), CombatKey(other)} {
		if mr.Exists(key) {
			t.Errorf("Expected %s to be deleted", key)
		}
	}
}

func TestKeyspace(t *testing.T) {
	combatID := uuid.MustParse("6f1c1d2e-0000-4000-8000-000000000001")
	if got := CombatKey(combatID); got != "combat-requests:6f1c1d2e-0000-4000-8000-000000000001" {
		t.Errorf("Unexpected combat key %s", got)
	}
	if got := LockKey(combatID); got != "combat-lock:6f1c1d2e-0000-4000-8000-000000000001" {
		t.Errorf("Unexpected lock key %s", got)
	}
}

func TestNewClient_Errors(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	if _, err := NewClient("not a url", logger); err == nil {
		t.Error("Expected URL parse error")
	}
}
