// Package notifier delivers player-facing notifications. Delivery is
// advisory: a lost notification never affects balances or ownership, so
// implementations must not return errors into the operations that emit
// them.
package notifier

import (
	"context"
	"log/slog"
)

// Notifier receives the notification stream produced by economy
// operations and scheduled jobs.
type Notifier interface {
	// Notify delivers a message to a single account.
	Notify(ctx context.Context, accountID int64, event string, message string)
	// Broadcast delivers a message to every account.
	Broadcast(ctx context.Context, event string, message string)
}

type logNotifier struct {
	log *slog.Logger
}

// NewLogNotifier returns a Notifier that writes every notification to
// the structured log.
func NewLogNotifier(log *slog.Logger) Notifier {
	return &logNotifier{log: log}
}

func (n *logNotifier) Notify(ctx context.Context, accountID int64, event string, message string) {
	n.log.InfoContext(ctx, "notification",
		slog.String("type", "op"),
		slog.String("event", event),
		slog.Int64("account_id", accountID),
		slog.String("message", message),
	)
}

func (n *logNotifier) Broadcast(ctx context.Context, event string, message string) {
	n.log.InfoContext(ctx, "broadcast",
		slog.String("type", "op"),
		slog.String("event", event),
		slog.String("message", message),
	)
}
