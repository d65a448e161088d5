package interfaces

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"utility-billing/internal/billing/application"
)

// LoggingPublisher logs invoice generated events.
type LoggingPublisher struct {
	logger zerolog.Logger
}

// NewLoggingPublisher constructs a logging publisher.
func NewLoggingPublisher(logger zerolog.Logger) *LoggingPublisher {
	return &LoggingPublisher{logger: logger}
}

// PublishInvoiceGenerated logs the event.
func (p *LoggingPublisher) PublishInvoiceGenerated(ctx context.Context, event application.InvoiceGenerated) error {
	_ = ctx
	if p == nil {
		return errors.New("invoice publisher: nil publisher")
	}
	p.logger.Info().
		Str("invoice", event.InvoiceID).
		Str("tenant", event.TenantID).
		Str("period", event.Period.Key()).
		Float64("amount", event.Amount).
		Int("clamped", event.Clamped).
		Bool("recomputed", event.Recomputed).
		Msg("invoice generated")
	return nil
}
