package runner

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jwebster45206/combat-ledger/pkg/queue"
)

const (
	// OutcomeTimeout is max time to wait for a command's terminal event
	OutcomeTimeout = 30 * time.Second
)

// CommandResponse is the response from the commands endpoint
type CommandResponse struct {
	RequestID string `json:"request_id"`
	CombatID  string `json:"combat_id"`
	Status    string `json:"status"`
}

// Event is one event read from the combat stream
type Event struct {
	Type      string         `json:"type"`
	RequestID string         `json:"request_id,omitempty"`
	CombatID  string         `json:"combat_id,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
}

// Terminal reports whether the event ends a command
func (e Event) Terminal() bool {
	switch e.Type {
	case "command.completed", "command.rejected", "command.failed":
		return true
	}
	return false
}

// Outcome is the terminal event type without its prefix
func (e Event) Outcome() string {
	return strings.TrimPrefix(e.Type, "command.")
}

// PostCommand enqueues a command and returns the request_id
func PostCommand(ctx context.Context, client *http.Client, baseURL string, combatID uuid.UUID, cmd queue.Request) (string, error) {
	reqBody, err := json.Marshal(&cmd)
	if err != nil {
		return "", fmt.Errorf("failed to marshal command: %w", err)
	}

	url := fmt.Sprintf("%s/v1/combats/%s/commands", baseURL, combatID.String())
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(reqBody))
	if err != nil {
		return "", fmt.Errorf("failed to create command request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send command: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusAccepted {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("commands endpoint returned %d (expected 202): %s", resp.StatusCode, string(body))
	}

	var cmdResp CommandResponse
	if err := json.NewDecoder(resp.Body).Decode(&cmdResp); err != nil {
		return "", fmt.Errorf("failed to parse command response: %w", err)
	}
	return cmdResp.RequestID, nil
}

// GetLedger retrieves an actor's ledger snapshot
func GetLedger(ctx context.Context, client *http.Client, baseURL, actorID string) (*ActorLedger, error) {
	url := fmt.Sprintf("%s/v1/actors/%s/ledger", baseURL, actorID)
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create ledger request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to get ledger: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("ledger endpoint returned %d: %s", resp.StatusCode, string(body))
	}

	var out ActorLedger
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode ledger: %w", err)
	}
	return &out, nil
}

// ActorLedger is the subset of the ledger snapshot the runner checks
type ActorLedger struct {
	ActorID string `json:"actor_id"`
	Pools   map[string]struct {
		Current int `json:"current"`
		Max     int `json:"max"`
	} `json:"pools"`
	RoundState *struct {
		AttackActions struct {
			Total int `json:"total"`
			Used  int `json:"used"`
		} `json:"attack_actions"`
	} `json:"round_state"`
	WoundPenalty int             `json:"wound_penalty"`
	DeathSave    json.RawMessage `json:"death_save"`
}

// Stream is an open subscription to a combat's events
type Stream struct {
	events chan Event
	cancel context.CancelFunc
}

// Subscribe opens the combat's SSE stream and waits for the connected event
func Subscribe(ctx context.Context, baseURL string, combatID uuid.UUID) (*Stream, error) {
	ctx, cancel := context.WithCancel(ctx)
	url := fmt.Sprintf("%s/v1/combats/%s/events", baseURL, combatID.String())
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create events request: %w", err)
	}

	// No client timeout; the stream lives as long as ctx
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to open event stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("events endpoint returned %d", resp.StatusCode)
	}

	s := &Stream{events: make(chan Event, 64), cancel: cancel}
	connected := make(chan struct{})
	go func() {
		defer func() { _ = resp.Body.Close() }()
		defer close(s.events)
		scanner := bufio.NewScanner(resp.Body)
		var eventType string
		var isConnected bool
		for scanner.Scan() {
			line := scanner.Text()
			switch {
			case strings.HasPrefix(line, "event: "):
				eventType = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: ") && eventType == "connected":
				if !isConnected {
					isConnected = true
					close(connected)
				}
			case strings.HasPrefix(line, "data: "):
				var ev Event
				if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev); err != nil {
					continue
				}
				select {
				case s.events <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	select {
	case <-connected:
		return s, nil
	case <-time.After(5 * time.Second):
		s.Close()
		return nil, fmt.Errorf("timeout waiting for event stream to connect")
	}
}

// Close ends the subscription
func (s *Stream) Close() {
	s.cancel()
}

// WaitForOutcome collects events until requestID reaches a terminal event.
// Every event seen on the way is returned with it.
func (s *Stream) WaitForOutcome(ctx context.Context, requestID string) (Event, []Event, error) {
	ctx, cancel := context.WithTimeout(ctx, OutcomeTimeout)
	defer cancel()

	var seen []Event
	for {
		select {
		case <-ctx.Done():
			return Event{}, seen, fmt.Errorf("timeout waiting for outcome of %s", requestID)
		case ev, ok := <-s.events:
			if !ok {
				return Event{}, seen, fmt.Errorf("event stream closed before outcome of %s", requestID)
			}
			seen = append(seen, ev)
			if ev.RequestID == requestID && ev.Terminal() {
				return ev, seen, nil
			}
		}
	}
}
