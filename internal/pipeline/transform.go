package pipeline

import (
	"context"

	"github.com/couchcryptid/crowd-evac-service/internal/domain"
	"github.com/jonboulle/clockwork"
)

// AlertTransformer parses crawler messages into external alerts.
type AlertTransformer struct {
	clock clockwork.Clock
}

// NewTransformer creates an AlertTransformer. The clock stamps messages that
// carry no broker timestamp.
func NewTransformer(clock clockwork.Clock) *AlertTransformer {
	return &AlertTransformer{clock: clock}
}

func (t *AlertTransformer) Transform(_ context.Context, raw domain.RawEvent) (domain.ExternalAlert, error) {
	return domain.ParseRawEvent(raw, t.clock.Now())
}
