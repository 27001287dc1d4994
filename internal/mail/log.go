package mail

import (
	"context"
	"log/slog"

	"github.com/oklog/ulid/v2"
)

// LogTransport records messages in the log instead of sending them. It is
// used in development when no provider key is configured.
type LogTransport struct {
	logger *slog.Logger
}

// NewLogTransport creates a transport that only logs.
func NewLogTransport(logger *slog.Logger) *LogTransport {
	return &LogTransport{logger: logger.With("component", "mail.log")}
}

// Send implements Transport.
func (t *LogTransport) Send(ctx context.Context, msg Message) (string, error) {
	id := "log_" + ulid.Make().String()
	t.logger.Info("mail not sent, provider disabled",
		"message_id", id,
		"to", msg.To,
		"subject", msg.Subject,
		"body_bytes", len(msg.Body),
	)
	return id, nil
}
