package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/jwebster45206/combat-ledger/internal/services/events"
	"github.com/jwebster45206/combat-ledger/internal/services/queue"
	queuePkg "github.com/jwebster45206/combat-ledger/pkg/queue"
)

// CommandResponse acknowledges a queued command
type CommandResponse struct {
	RequestID string `json:"request_id"`
	CombatID  string `json:"combat_id"`
	Status    string `json:"status"`
}

// CommandsHandler accepts combat commands and puts them on the queue.
// Outcomes arrive later on the combat's event stream.
type CommandsHandler struct {
	queue       *queue.CommandQueue
	broadcaster *events.Broadcaster
	logger      *slog.Logger
}

func NewCommandsHandler(q *queue.CommandQueue, broadcaster *events.Broadcaster, logger *slog.Logger) *CommandsHandler {
	return &CommandsHandler{
		queue:       q,
		broadcaster: broadcaster,
		logger:      logger,
	}
}

// ServeHTTP handles POST /v1/combats/{combatID}/commands
func (h *CommandsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, h.logger, http.StatusMethodNotAllowed, "Method not allowed. Only POST is supported.")
		return
	}

	combatID, err := uuid.Parse(r.PathValue("combatID"))
	if err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "Invalid combat ID format.")
		return
	}

	// commandBody has the Request's fields without its custom decoding;
	// the combat ID comes from the path
	type commandBody queuePkg.Request
	var body commandBody
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		h.logger.Warn("Invalid command body", "error", err)
		writeError(w, h.logger, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	req := queuePkg.Request(body)
	req.CombatID = combatID
	if req.RequestID == "" {
		req.RequestID = uuid.New().String()
	}
	if err := req.Validate(); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.queue.EnqueueRequest(r.Context(), &req); err != nil {
		h.logger.Error("Failed to enqueue command", "error", err, "request_id", req.RequestID)
		writeError(w, h.logger, http.StatusInternalServerError, "Failed to queue command. Please try again.")
		return
	}
	if h.broadcaster != nil {
		if err := h.broadcaster.PublishCommandQueued(r.Context(), combatID, req.RequestID, string(req.Type)); err != nil {
			h.logger.Error("Failed to publish queued event", "error", err)
		}
	}

	h.logger.Info("Command queued",
		"request_id", req.RequestID,
		"combat_id", combatID.String(),
		"type", req.Type,
		"actor", req.Actor)

	writeJSON(w, h.logger, http.StatusAccepted, CommandResponse{
		RequestID: req.RequestID,
		CombatID:  combatID.String(),
		Status:    "queued",
	})
}
