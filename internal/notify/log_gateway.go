package notify

import (
	"context"
	"log/slog"

	"github.com/couchcryptid/crowd-evac-service/internal/domain"
)

// LogGateway is the development transport: it logs each notification and
// reports every token as delivered.
type LogGateway struct {
	logger *slog.Logger
}

// NewLogGateway creates a gateway that only logs.
func NewLogGateway(logger *slog.Logger) *LogGateway {
	return &LogGateway{logger: logger}
}

func (g *LogGateway) Dispatch(_ context.Context, n domain.Notification) (int, error) {
	g.logger.Info("notification",
		"title", n.Title,
		"body", n.Body,
		"priority", n.Priority,
		"recipients", len(n.Tokens),
	)
	return len(n.Tokens), nil
}
