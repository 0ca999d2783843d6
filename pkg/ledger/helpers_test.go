package ledger

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/jwebster45206/combat-ledger/pkg/actor"
	"github.com/jwebster45206/combat-ledger/pkg/dice"
	"github.com/jwebster45206/combat-ledger/pkg/storage"
)

type fakeCombatant struct {
	id      string
	pc      bool
	mastery int
	attrs   map[actor.Attribute]int
}

func (f *fakeCombatant) ID() string                      { return f.id }
func (f *fakeCombatant) IsPC() bool                      { return f.pc }
func (f *fakeCombatant) MasteryRank() int                { return f.mastery }
func (f *fakeCombatant) Attribute(a actor.Attribute) int { return f.attrs[a] }

func newPC(id string, mastery int, attrs map[actor.Attribute]int) *fakeCombatant {
	return &fakeCombatant{id: id, pc: true, mastery: mastery, attrs: attrs}
}

// scriptedRoller returns queued totals in order; an empty queue rolls 0.
type scriptedRoller struct {
	mu     sync.Mutex
	totals []int
	calls  [][3]int
}

func (r *scriptedRoller) Roll(numDice, keep, targetNumber int) (dice.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, [3]int{numDice, keep, targetNumber})
	total := 0
	if len(r.totals) > 0 {
		total, r.totals = r.totals[0], r.totals[1:]
	}
	return dice.Evaluate([]int{total}, nil, keep, targetNumber), nil
}

type recordingNotifier struct {
	mu      sync.Mutex
	notices []Notice
	err     error
}

func (n *recordingNotifier) Notify(ctx context.Context, notice Notice) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, notice)
	return n.err
}

func (n *recordingNotifier) kinds() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.notices))
	for i, notice := range n.notices {
		out[i] = notice.Kind
	}
	return out
}

type allocatorFunc func(ctx context.Context, c Combatant, req AllocationRequest) (Allocation, error)

func (f allocatorFunc) Allocate(ctx context.Context, c Combatant, req AllocationRequest) (Allocation, error) {
	return f(ctx, c, req)
}

func fixedAllocation(alloc Allocation) Allocator {
	return allocatorFunc(func(context.Context, Combatant, AllocationRequest) (Allocation, error) {
		return alloc, nil
	})
}

var errBoom = errors.New("boom")

type testLedger struct {
	*Ledger
	store    *storage.MockStorage
	roller   *scriptedRoller
	notifier *recordingNotifier
}

func newTestLedger(t *testing.T) *testLedger {
	t.Helper()
	store := storage.NewMockStorage()
	roller := &scriptedRoller{}
	notifier := &recordingNotifier{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	l, err := New(store, roller, notifier, logger, WithTracer(noop.NewTracerProvider().Tracer("ledger-test")))
	require.NoError(t, err)
	return &testLedger{Ledger: l, store: store, roller: roller, notifier: notifier}
}

// startCombat begins a round 1, turn 1 encounter for cs.
func (tl *testLedger) startCombat(t *testing.T, cs ...Combatant) *Combat {
	t.Helper()
	combat := &Combat{ID: uuid.New(), Round: 1, Turn: 1, Combatants: cs}
	require.NoError(t, tl.StartCombat(context.Background(), combat))
	return combat
}

func (tl *testLedger) round(t *testing.T, actorID string) RoundState {
	t.Helper()
	rs, found, err := tl.Rounds.Get(context.Background(), actorID)
	require.NoError(t, err)
	require.True(t, found, "round state for %s", actorID)
	return rs
}

func (tl *testLedger) pool(t *testing.T, actorID string, a actor.Attribute) Pool {
	t.Helper()
	p, err := tl.Pools.Get(context.Background(), actorID, a)
	require.NoError(t, err)
	return p
}

// at returns a copy of combat moved to round and turn.
func at(combat *Combat, round, turn int) *Combat {
	c := *combat
	c.Round = round
	c.Turn = turn
	return &c
}
