package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/updown/internal/domain"
)

// Bus channel and stream names for engine events.
const (
	EventsChannel = "events"
	EventsStream  = "events:log"
)

// Publisher is the engine's domain.EventPublisher. It fans each committed
// batch out to the audit log, the signal bus and any local sinks (the
// WebSocket hub, the Notifier). Every destination is optional.
type Publisher struct {
	audit  domain.AuditStore
	bus    domain.SignalBus
	sinks  []domain.EventPublisher
	logger *slog.Logger
}

// NewPublisher creates a Publisher. audit and bus may be nil.
func NewPublisher(audit domain.AuditStore, bus domain.SignalBus, logger *slog.Logger, sinks ...domain.EventPublisher) *Publisher {
	return &Publisher{
		audit:  audit,
		bus:    bus,
		sinks:  sinks,
		logger: logger.With(slog.String("component", "publisher")),
	}
}

// Publish implements domain.EventPublisher. It attempts every destination
// and joins their errors.
func (p *Publisher) Publish(ctx context.Context, events []domain.Event) error {
	var errs []error
	for _, e := range events {
		payload, err := json.Marshal(e)
		if err != nil {
			errs = append(errs, fmt.Errorf("notify: marshal event %s: %w", e.ID, err))
			continue
		}
		if p.audit != nil {
			var detail map[string]any
			if err := json.Unmarshal(payload, &detail); err == nil {
				if err := p.audit.Log(ctx, "engine."+string(e.Type), detail); err != nil {
					errs = append(errs, fmt.Errorf("notify: audit %s: %w", e.ID, err))
				}
			}
		}
		if p.bus != nil {
			if err := p.bus.Publish(ctx, EventsChannel, payload); err != nil {
				errs = append(errs, err)
			}
			if err := p.bus.StreamAppend(ctx, EventsStream, payload); err != nil {
				errs = append(errs, err)
			}
		}
	}
	for _, s := range p.sinks {
		if err := s.Publish(ctx, events); err != nil {
			errs = append(errs, err)
		}
	}

	err := errors.Join(errs...)
	if err != nil {
		p.logger.WarnContext(ctx, "event delivery incomplete",
			slog.Int("events", len(events)),
			slog.String("error", err.Error()),
		)
	}
	return err
}

// Compile-time interface check.
var _ domain.EventPublisher = (*Publisher)(nil)
