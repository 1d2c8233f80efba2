package notify

import (
	"context"
	"log/slog"
)

// Sender delivers one-time codes to users through a specific channel.
type Sender interface {
	Name() string
	Send(ctx context.Context, channel, target, code string) error
}

// LogSender is a sender implementation that logs codes instead of delivering
// them. Used in development and tests; swap for a real SMS/email gateway in
// production.
type LogSender struct {
	logger *slog.Logger
}

// NewLogSender creates a log-only code sender.
func NewLogSender(l *slog.Logger) *LogSender {
	return &LogSender{logger: l}
}

// Name returns the name of this sender.
func (s *LogSender) Name() string {
	return "log"
}

// Send logs the delivery. The code itself is logged at debug level only.
func (s *LogSender) Send(ctx context.Context, channel, target, code string) error {
	s.logger.InfoContext(ctx, "otp delivery",
		slog.String("channel", channel),
		slog.String("target", target),
	)
	s.logger.DebugContext(ctx, "otp code issued",
		slog.String("target", target),
		slog.String("code", code),
	)
	return nil
}
