// Package notify delivers engine events to operators and downstream
// consumers. Notifications go to every registered sender (Telegram,
// Discord) and can be filtered by event type.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/updown/internal/domain"
)

// Sender is one notification channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// Notifier dispatches notifications to one or more Senders. Only event
// types in the allowed set are forwarded; an empty set allows all.
type Notifier struct {
	senders []Sender
	events  map[domain.EventType]bool
	format  Formatter
	logger  *slog.Logger
}

// NewNotifier creates a Notifier for senders, filtered to events.
func NewNotifier(senders []Sender, events []string, format Formatter, logger *slog.Logger) *Notifier {
	allowed := make(map[domain.EventType]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[domain.EventType(e)] = true
		}
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		format:  format,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Publish implements domain.EventPublisher.
func (n *Notifier) Publish(ctx context.Context, events []domain.Event) error {
	var errs []error
	for _, e := range events {
		if len(n.events) > 0 && !n.events[e.Type] {
			n.logger.DebugContext(ctx, "event filtered out", slog.String("event", string(e.Type)))
			continue
		}
		title, msg := n.format.Format(e)
		if err := n.dispatch(ctx, title, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NotifyAll sends a free-form notification regardless of the filter.
func (n *Notifier) NotifyAll(ctx context.Context, title, message string) error {
	return n.dispatch(ctx, title, message)
}

// dispatch delivers to every sender. One failing sender does not stop the
// others.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	var errs []string
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notification sent",
			slog.String("sender", s.Name()),
			slog.String("title", title),
		)
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}

// Compile-time interface check.
var _ domain.EventPublisher = (*Notifier)(nil)
