package runner

import (
	"time"

	"github.com/google/uuid"

	"github.com/jwebster45206/combat-ledger/pkg/queue"
)

// TestSuite defines a complete integration test scenario
// Can either be a regular test with Steps, or a suite that references other Cases
type TestSuite struct {
	Name       string     `json:"name"`
	Combatants []string   `json:"combatants,omitempty"` // Used for regular tests
	Steps      []TestStep `json:"steps,omitempty"`      // Used for regular tests
	Cases      []string   `json:"cases,omitempty"`      // Used for suite tests (list of case files)
}

// IsSequence returns true if this is a suite that sequences other cases
func (ts *TestSuite) IsSequence() bool {
	return len(ts.Cases) > 0
}

// TestStep is one command sent to the API and its expected outcome
type TestStep struct {
	Name         string       `json:"name,omitempty"`
	Command      Command      `json:"command"`
	Expectations Expectations `json:"expect"`
}

// Command is a queue request without the routing fields the runner fills in.
// Round and turn carry forward from the previous step when zero.
type Command struct {
	Type        queue.CommandType         `json:"type"`
	Round       int                       `json:"round,omitempty"`
	Turn        int                       `json:"turn,omitempty"`
	Actor       string                    `json:"actor,omitempty"`
	Action      string                    `json:"action,omitempty"`
	Attribute   string                    `json:"attribute,omitempty"`
	AbilityKey  string                    `json:"ability_key,omitempty"`
	Effect      string                    `json:"effect,omitempty"`
	Amount      float64                   `json:"amount,omitempty"`
	Critical    bool                      `json:"critical,omitempty"`
	Purchase    *queue.ShopPurchase       `json:"purchase,omitempty"`
	Allocations map[string]map[string]int `json:"allocations,omitempty"`
}

// Request builds the queue request for a combat
func (c Command) Request(combatID uuid.UUID, combatants []string, round, turn int) queue.Request {
	return queue.Request{
		Type:        c.Type,
		CombatID:    combatID,
		Round:       round,
		Turn:        turn,
		Combatants:  combatants,
		Actor:       c.Actor,
		Action:      c.Action,
		Attribute:   c.Attribute,
		AbilityKey:  c.AbilityKey,
		Effect:      c.Effect,
		Amount:      c.Amount,
		Critical:    c.Critical,
		Purchase:    c.Purchase,
		Allocations: c.Allocations,
	}
}

// Expectations defines what to check after a test step executes
type Expectations struct {
	// Terminal event: completed, rejected or failed. Defaults to completed.
	Outcome string `json:"outcome,omitempty"`
	Code    string `json:"code,omitempty"` // Rejection code, e.g. insufficient_resource

	// Ledger snapshot checks, keyed by actor id
	Pools       map[string]map[string]int `json:"pools,omitempty"`        // Current stones per attribute
	AttacksUsed map[string]int            `json:"attacks_used,omitempty"` // attack_actions.used
	AttackTotal map[string]int            `json:"attack_total,omitempty"` // attack_actions.total
	Penalty     map[string]int            `json:"wound_penalty,omitempty"`
	DeathSave   map[string]*bool          `json:"death_save_active,omitempty"`

	// Notice kinds expected on the event stream during this step
	Notices []string `json:"notices,omitempty"`
}

// TestResult contains the outcome of running a test step
type TestResult struct {
	TestName  string
	StepName  string
	RequestID string
	Success   bool
	Error     error
	Duration  time.Duration
	Outcome   string
}

// TestJob represents a test suite to be executed
type TestJob struct {
	Name     string
	Suite    TestSuite
	CaseFile string
}

// TestRunResult contains the results of running an entire test suite
type TestRunResult struct {
	Job      TestJob
	Results  []TestResult
	Error    error
	Duration time.Duration
	CombatID uuid.UUID // Combat used for this test
}
