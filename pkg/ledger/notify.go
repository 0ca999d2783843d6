package ledger

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/jwebster45206/combat-ledger/pkg/actor"
)

// NoticeLevel grades a table notice.
type NoticeLevel string

const (
	NoticeInfo    NoticeLevel = "info"
	NoticeWarning NoticeLevel = "warning"
)

// Notice is an informational message for the table's chat surface.
type Notice struct {
	CombatID uuid.UUID      `json:"combat_id"`
	ActorID  string         `json:"actor_id,omitempty"`
	Level    NoticeLevel    `json:"level"`
	Kind     string         `json:"kind"`
	Message  string         `json:"message"`
	Data     map[string]any `json:"data,omitempty"`
}

// Notifier delivers notices. Delivery failures are logged and ignored.
type Notifier interface {
	Notify(ctx context.Context, n Notice) error
}

// LogNotifier writes notices to a logger.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a notifier that only logs.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (l *LogNotifier) Notify(ctx context.Context, n Notice) error {
	l.logger.Info("Ledger notice",
		"combat_id", n.CombatID.String(),
		"actor_id", n.ActorID,
		"level", n.Level,
		"kind", n.Kind,
		"message", n.Message,
	)
	return nil
}

// attributeLabel renders an attribute for players, e.g. "Might".
// Casers are stateful, so each call builds its own.
func attributeLabel(a actor.Attribute) string {
	return cases.Title(language.English).String(string(a))
}
