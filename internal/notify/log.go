package notify

import (
	"context"
	"log/slog"
)

// LogPublisher writes events to the structured log. Used when no broker is configured.
type LogPublisher struct {
	logger *slog.Logger
}

// NewLogPublisher creates a LogPublisher.
func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

// Publish logs the event.
func (p *LogPublisher) Publish(ctx context.Context, event Event) error {
	p.logger.InfoContext(ctx, "notification",
		slog.String("event_id", event.ID),
		slog.String("type", event.Type),
		slog.String("user_id", event.UserID),
		slog.String("title", event.Title),
		slog.Any("channels", event.Channels),
	)
	return nil
}

// Close is a no-op.
func (p *LogPublisher) Close() error { return nil }
