package service

import (
	"context"
	"log/slog"
)

// Notifier is the fire-and-forget boundary to the mail/notification
// system. Delivery failures must never propagate into billing state.
type Notifier interface {
	Notify(ctx context.Context, event, recipient string, data map[string]any)
}

type logNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier returns a Notifier that only records the event. The
// real dispatcher lives in another service; this stands in wherever
// that service is not wired.
func NewLogNotifier(logger *slog.Logger) Notifier {
	return &logNotifier{logger: logger}
}

func (n *logNotifier) Notify(ctx context.Context, event, recipient string, data map[string]any) {
	n.logger.InfoContext(ctx, "notification dispatched",
		slog.String("event", event),
		slog.String("recipient", recipient),
		slog.Any("data", data),
	)
}
