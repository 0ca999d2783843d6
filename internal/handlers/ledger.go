package handlers

import (
	"log/slog"
	"net/http"
	"regexp"

	"github.com/jwebster45206/combat-ledger/pkg/ledger"
	"github.com/jwebster45206/combat-ledger/pkg/storage"
)

// ActorLedger is everything the ledger holds for one actor
type ActorLedger struct {
	ActorID      string               `json:"actor_id"`
	Name         string               `json:"name,omitempty"`
	IsPC         bool                 `json:"is_pc"`
	Pools        ledger.Pools         `json:"pools"`
	RoundState   *ledger.RoundState   `json:"round_state,omitempty"`
	Health       *ledger.HealthLevels `json:"health,omitempty"`
	WoundPenalty int                  `json:"wound_penalty"`
	DeathSave    *ledger.DeathSave    `json:"death_save"`
	Shop         *ledger.ShopPurchase `json:"initiative_shop,omitempty"`
}

// LedgerHandler serves read-only ledger snapshots. Reads go straight to
// the store; they never take the combat lock.
type LedgerHandler struct {
	store  storage.FlagStore
	ledger *ledger.Ledger
	logger *slog.Logger
}

func NewLedgerHandler(store storage.FlagStore, l *ledger.Ledger, logger *slog.Logger) *LedgerHandler {
	return &LedgerHandler{
		store:  store,
		ledger: l,
		logger: logger,
	}
}

var validActorID = regexp.MustCompile(`^[a-z0-9][a-z0-9_.-]*$`)

// ServeHTTP handles GET /v1/actors/{actorID}/ledger
func (h *LedgerHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, h.logger, http.StatusMethodNotAllowed, "Method not allowed. Only GET is supported.")
		return
	}

	actorID := r.PathValue("actorID")
	if !validActorID.MatchString(actorID) {
		writeError(w, h.logger, http.StatusBadRequest, "Invalid actor ID.")
		return
	}

	ctx := r.Context()
	spec, err := storage.GetCharacterSpec(ctx, h.store, actorID)
	if err != nil {
		h.logger.Error("Failed to load character", "error", err, "actor_id", actorID)
		writeError(w, h.logger, http.StatusInternalServerError, "Failed to load actor.")
		return
	}
	if spec == nil {
		writeError(w, h.logger, http.StatusNotFound, "Actor not found.")
		return
	}

	out := ActorLedger{ActorID: actorID, Name: spec.Name, IsPC: spec.IsPC}
	if out.Pools, err = h.ledger.Pools.All(ctx, actorID); err != nil {
		h.fail(w, actorID, err)
		return
	}
	rs, found, err := h.ledger.Rounds.Get(ctx, actorID)
	if err != nil {
		h.fail(w, actorID, err)
		return
	}
	if found {
		out.RoundState = &rs
	}
	health, found, err := h.ledger.Attrition.Health(ctx, actorID)
	if err != nil {
		h.fail(w, actorID, err)
		return
	}
	if found {
		out.Health = &health
		out.WoundPenalty = health.Penalty()
	}
	if out.DeathSave, err = h.ledger.Attrition.DeathSave(ctx, actorID); err != nil {
		h.fail(w, actorID, err)
		return
	}
	if out.Shop, err = h.ledger.Shop.Purchase(ctx, actorID); err != nil {
		h.fail(w, actorID, err)
		return
	}

	writeJSON(w, h.logger, http.StatusOK, out)
}

func (h *LedgerHandler) fail(w http.ResponseWriter, actorID string, err error) {
	h.logger.Error("Failed to read ledger", "error", err, "actor_id", actorID)
	writeError(w, h.logger, http.StatusInternalServerError, "Failed to read ledger.")
}
