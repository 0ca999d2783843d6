package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jwebster45206/combat-ledger/pkg/queue"
)

type ErrorHandlingMode string

const ErrorHandlingExit ErrorHandlingMode = "exit"
const ErrorHandlingContinue ErrorHandlingMode = "continue"

// Runner executes integration tests against a running combat-ledger API
// and worker
type Runner struct {
	BaseURL           string
	Client            *http.Client
	Timeout           time.Duration
	Logger            func(format string, args ...interface{})
	ErrorHandlingMode ErrorHandlingMode
}

// NewRunner creates a new test runner
func NewRunner(baseURL string) *Runner {
	return &Runner{
		BaseURL:           strings.TrimSuffix(baseURL, "/"),
		Client:            &http.Client{Timeout: 60 * time.Second},
		Timeout:           30 * time.Second,
		Logger:            func(string, ...interface{}) {},
		ErrorHandlingMode: ErrorHandlingContinue,
	}
}

// LoadTestSuite loads a test suite from a JSON file
func LoadTestSuite(filename string) (TestSuite, error) {
	content, err := os.ReadFile(filename)
	if err != nil {
		return TestSuite{}, fmt.Errorf("failed to read test file %s: %w", filename, err)
	}

	var suite TestSuite
	decoder := json.NewDecoder(bytes.NewReader(content))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&suite); err != nil {
		return TestSuite{}, fmt.Errorf("failed to parse JSON in %s: %w", filename, err)
	}

	return suite, nil
}

// LoadTestSuiteWithExpansion loads a test suite and expands it if it's a sequence
// Returns a list of actual test suites (expanded from the sequence if needed)
func LoadTestSuiteWithExpansion(filename string, casesDir string) ([]TestJob, error) {
	suite, err := LoadTestSuite(filename)
	if err != nil {
		return nil, err
	}

	if !suite.IsSequence() {
		return []TestJob{{
			Name:     suite.Name,
			Suite:    suite,
			CaseFile: filename,
		}}, nil
	}

	var jobs []TestJob
	for _, caseFile := range suite.Cases {
		casePath := filepath.Join(casesDir, caseFile)

		// Recursively load (in case a sequence references another sequence)
		subJobs, err := LoadTestSuiteWithExpansion(casePath, casesDir)
		if err != nil {
			return nil, fmt.Errorf("failed to load case '%s' referenced by sequence '%s': %w", caseFile, suite.Name, err)
		}

		jobs = append(jobs, subJobs...)
	}

	return jobs, nil
}

// RunSuite executes a complete test suite in a fresh combat
func (r *Runner) RunSuite(ctx context.Context, suite TestSuite) (TestRunResult, error) {
	start := time.Now()
	result := TestRunResult{
		Job: TestJob{
			Name:  suite.Name,
			Suite: suite,
		},
		Results:  make([]TestResult, 0, len(suite.Steps)),
		CombatID: uuid.New(),
	}

	if len(suite.Combatants) == 0 {
		result.Error = fmt.Errorf("suite %s lists no combatants", suite.Name)
		return result, result.Error
	}

	stream, err := Subscribe(ctx, r.BaseURL, result.CombatID)
	if err != nil {
		result.Error = fmt.Errorf("failed to subscribe: %w", err)
		result.Duration = time.Since(start)
		return result, result.Error
	}
	defer stream.Close()

	round, turn := 1, 1
	for i, step := range suite.Steps {
		if step.Command.Round > 0 {
			round = step.Command.Round
		}
		if step.Command.Turn > 0 {
			turn = step.Command.Turn
		}
		r.Logger("    [%d/%d] Running step: %s", i+1, len(suite.Steps), step.Name)
		req := step.Command.Request(result.CombatID, suite.Combatants, round, turn)
		stepResult := r.runStep(ctx, stream, step, req)
		stepResult.TestName = suite.Name
		result.Results = append(result.Results, stepResult)

		if stepResult.Error != nil {
			r.Logger("    [%d/%d] ✗ %s: %v", i+1, len(suite.Steps), step.Name, stepResult.Error)
			if result.Error == nil {
				result.Error = fmt.Errorf("step %d (%s) failed: %w", i, step.Name, stepResult.Error)
			}
			if r.ErrorHandlingMode == ErrorHandlingExit {
				break
			}
			continue
		}

		r.Logger("    [%d/%d] ✓ %s (%v)", i+1, len(suite.Steps), step.Name, stepResult.Duration)
	}

	result.Duration = time.Since(start)
	return result, result.Error
}

// runStep posts one command, waits for its terminal event and checks
// expectations against the event stream and the ledger
func (r *Runner) runStep(ctx context.Context, stream *Stream, step TestStep, cmd queue.Request) TestResult {
	start := time.Now()
	result := TestResult{StepName: step.Name}

	requestID, err := PostCommand(ctx, r.Client, r.BaseURL, cmd.CombatID, cmd)
	if err != nil {
		result.Error = fmt.Errorf("failed to post command: %w", err)
		result.Duration = time.Since(start)
		return result
	}
	result.RequestID = requestID

	waitCtx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()
	outcome, seen, err := stream.WaitForOutcome(waitCtx, requestID)
	if err != nil {
		result.Error = err
		result.Duration = time.Since(start)
		return result
	}
	result.Outcome = outcome.Outcome()

	if err := r.checkExpectations(ctx, step.Expectations, outcome, seen); err != nil {
		result.Error = fmt.Errorf("expectation failed: %w", err)
		result.Duration = time.Since(start)
		return result
	}

	result.Success = true
	result.Duration = time.Since(start)
	return result
}

// checkExpectations validates the step's outcome and the resulting ledger
func (r *Runner) checkExpectations(ctx context.Context, exp Expectations, outcome Event, seen []Event) error {
	wantOutcome := exp.Outcome
	if wantOutcome == "" {
		wantOutcome = "completed"
	}
	if outcome.Outcome() != wantOutcome {
		return fmt.Errorf("expected outcome %s, got %s (%v)", wantOutcome, outcome.Outcome(), outcome.Data["error"])
	}
	if exp.Code != "" {
		if code, _ := outcome.Data["code"].(string); code != exp.Code {
			return fmt.Errorf("expected rejection code %s, got %q", exp.Code, code)
		}
	}

	if len(exp.Notices) > 0 {
		var kinds []string
		for _, ev := range seen {
			if ev.Type == "ledger.notice" {
				if kind, ok := ev.Data["kind"].(string); ok {
					kinds = append(kinds, kind)
				}
			}
		}
		for _, want := range exp.Notices {
			if !slices.Contains(kinds, want) {
				return fmt.Errorf("expected notice %s, got %v", want, kinds)
			}
		}
	}

	snapshots := make(map[string]*ActorLedger)
	get := func(actorID string) (*ActorLedger, error) {
		if l, ok := snapshots[actorID]; ok {
			return l, nil
		}
		l, err := GetLedger(ctx, r.Client, r.BaseURL, actorID)
		if err != nil {
			return nil, err
		}
		snapshots[actorID] = l
		return l, nil
	}

	for actorID, pools := range exp.Pools {
		l, err := get(actorID)
		if err != nil {
			return err
		}
		for attr, want := range pools {
			if got := l.Pools[attr].Current; got != want {
				return fmt.Errorf("expected %s %s stones %d, got %d", actorID, attr, want, got)
			}
		}
	}

	for actorID, want := range exp.AttacksUsed {
		l, err := get(actorID)
		if err != nil {
			return err
		}
		if l.RoundState == nil {
			return fmt.Errorf("expected %s to have round state", actorID)
		}
		if got := l.RoundState.AttackActions.Used; got != want {
			return fmt.Errorf("expected %s attacks used %d, got %d", actorID, want, got)
		}
	}

	for actorID, want := range exp.AttackTotal {
		l, err := get(actorID)
		if err != nil {
			return err
		}
		if l.RoundState == nil {
			return fmt.Errorf("expected %s to have round state", actorID)
		}
		if got := l.RoundState.AttackActions.Total; got != want {
			return fmt.Errorf("expected %s attack total %d, got %d", actorID, want, got)
		}
	}

	for actorID, want := range exp.Penalty {
		l, err := get(actorID)
		if err != nil {
			return err
		}
		if l.WoundPenalty != want {
			return fmt.Errorf("expected %s wound penalty %d, got %d", actorID, want, l.WoundPenalty)
		}
	}

	for actorID, want := range exp.DeathSave {
		if want == nil {
			continue
		}
		l, err := get(actorID)
		if err != nil {
			return err
		}
		active := len(l.DeathSave) > 0 && string(l.DeathSave) != "null"
		if active != *want {
			return fmt.Errorf("expected %s death save active %t, got %t", actorID, *want, active)
		}
	}

	return nil
}
