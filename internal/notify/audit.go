package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/chitown2016/hyperliquid-kraken-arbitrage/internal/domain"
)

// AuditSink records operational alerts in the audit log. Opportunity alerts
// are not recorded; the snapshot table already holds them.
type AuditSink struct {
	store domain.AuditStore
}

var _ domain.AlertSink = (*AuditSink)(nil)

// NewAuditSink creates an AuditSink writing to store.
func NewAuditSink(store domain.AuditStore) *AuditSink {
	return &AuditSink{store: store}
}

// Notify logs scan_error and reconnect events as "alert.<event>".
func (a *AuditSink) Notify(ctx context.Context, event, title, message string) error {
	switch event {
	case domain.EventScanError, domain.EventReconnect:
	default:
		return nil
	}
	if err := a.store.Log(ctx, "alert."+event, map[string]any{
		"title":   title,
		"message": message,
	}); err != nil {
		return fmt.Errorf("notify: audit %s: %w", event, err)
	}
	return nil
}

// Fanout delivers every alert to each sink in order. Nil sinks are skipped.
type Fanout []domain.AlertSink

var _ domain.AlertSink = Fanout(nil)

// Notify calls every sink and joins their errors.
func (f Fanout) Notify(ctx context.Context, event, title, message string) error {
	var errs []error
	for _, s := range f {
		if s == nil {
			continue
		}
		if err := s.Notify(ctx, event, title, message); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
