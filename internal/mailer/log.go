package mailer

import (
	"context"
	"log/slog"
)

// LogSender writes messages to the application log. It is the default
// backend so a fresh checkout can sign up users without a mail server.
type LogSender struct {
	logger *slog.Logger
}

func NewLogSender(logger *slog.Logger) *LogSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSender{logger: logger}
}

func (l *LogSender) Send(ctx context.Context, msg Message) error {
	l.logger.InfoContext(ctx, "mail", "to", msg.To, "subject", msg.Subject, "body", msg.Body)
	return nil
}

func (l *LogSender) Close() error {
	return nil
}
