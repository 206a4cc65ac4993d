// Package notify delivers operator alerts about detection events over
// Telegram and Discord webhooks, filtered by event type so operators
// receive only the alerts they care about.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Alert is one operator-facing message about a detection event.
type Alert struct {
	// Event is the machine-readable type ("opportunity_accepted",
	// "error", ...), used for filtering and per-channel formatting.
	Event string
	Title string
	Body  string
}

// Sender delivers an alert over one channel.
type Sender interface {
	Send(ctx context.Context, alert Alert) error
	// Name identifies the channel in logs ("telegram", "discord").
	Name() string
}

// Notifier fans an alert out to every configured channel. The allowed set
// filters on Alert.Event; an empty set passes every event through.
type Notifier struct {
	senders []Sender
	allowed map[string]bool
	logger  *slog.Logger
}

// NewNotifier creates a Notifier delivering to the given senders. Only
// alerts whose event appears in events are forwarded; an empty events
// slice allows all.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[e] = true
		}
	}
	return &Notifier{
		senders: senders,
		allowed: allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Notify delivers the alert to every channel if its event type passes the
// filter. A failing channel does not stop delivery to the others; per
// channel failures are joined into the returned error.
func (n *Notifier) Notify(ctx context.Context, alert Alert) error {
	if len(n.allowed) > 0 && !n.allowed[alert.Event] {
		n.logger.DebugContext(ctx, "alert filtered",
			slog.String("event", alert.Event),
		)
		return nil
	}

	var errs []error
	for _, s := range n.senders {
		if err := s.Send(ctx, alert); err != nil {
			n.logger.ErrorContext(ctx, "alert delivery failed",
				slog.String("channel", s.Name()),
				slog.String("event", alert.Event),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "alert delivered",
			slog.String("channel", s.Name()),
			slog.String("event", alert.Event),
			slog.String("title", alert.Title),
		)
	}
	return errors.Join(errs...)
}
