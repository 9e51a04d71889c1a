package notify

import (
	"context"
	"log/slog"
)

// LogEmitter writes events to the structured log.
type LogEmitter struct {
	logger *slog.Logger
}

// NewLogEmitter constructs a LogEmitter.
func NewLogEmitter(logger *slog.Logger) LogEmitter {
	return LogEmitter{logger: logger}
}

// Emit logs the event.
func (e LogEmitter) Emit(_ context.Context, kind Kind, recipients []string, payload map[string]any) error {
	e.logger.Info("notification", "kind", kind, "recipients", recipients, "payload", payload)
	return nil
}
