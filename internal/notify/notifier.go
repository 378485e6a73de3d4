// Package notify delivers scanner alerts to chat channels. Alerts are
// dispatched to every registered Sender (Telegram, Discord, the process log)
// and filtered by event type so operators receive only what they subscribed to.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/chitown2016/hyperliquid-kraken-arbitrage/internal/domain"
)

// Sender is the interface that each notification channel must implement.
type Sender interface {
	// Send delivers a notification with the given title and message body.
	Send(ctx context.Context, title, message string) error
	// Name returns a human-readable identifier for the sender (e.g. "telegram").
	Name() string
}

// Notifier fans an alert out to its Senders. It is the scanner's AlertSink.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	logger  *slog.Logger
}

var _ domain.AlertSink = (*Notifier)(nil)

// NewNotifier creates a Notifier that will deliver to the given senders. Only
// events whose type appears in events are forwarded; an empty list allows all.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[e] = true
		}
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Senders returns the names of the configured senders.
func (n *Notifier) Senders() []string {
	out := make([]string, len(n.senders))
	for i, s := range n.senders {
		out[i] = s.Name()
	}
	return out
}

// Allows reports whether event passes the filter.
func (n *Notifier) Allows(event string) bool {
	return len(n.events) == 0 || n.events[event]
}

// Notify sends the alert to every sender if event passes the filter. A failing
// sender does not stop delivery to the others; all failures are joined into
// the returned error.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if !n.Allows(event) {
		n.logger.DebugContext(ctx, "event filtered out", slog.String("event", event))
		return nil
	}

	var errs []error
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("event", event),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notification sent",
			slog.String("sender", s.Name()),
			slog.String("event", event),
			slog.String("title", title),
		)
	}

	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %w", len(errs), errors.Join(errs...))
	}
	return nil
}

// LogSender writes alerts to a structured logger. It is the fallback channel
// when no chat sender is configured.
type LogSender struct {
	logger *slog.Logger
}

// NewLogSender creates a LogSender.
func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger.With(slog.String("component", "alert"))}
}

func (l *LogSender) Send(ctx context.Context, title, message string) error {
	l.logger.InfoContext(ctx, title, slog.String("message", message))
	return nil
}

func (l *LogSender) Name() string { return "log" }

// truncate shortens s to at most max runes.
func truncate(s string, max int) string {
	if max <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
