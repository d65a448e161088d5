package interfaces

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"

	"utility-billing/internal/billing/application"
	"utility-billing/internal/billing/infrastructure/postgres"
)

// EventTypeInvoiceGenerated tags invoice generated events in the outbox.
const EventTypeInvoiceGenerated = "billing.invoice_generated"

// OutboxWriter persists outbox events.
type OutboxWriter interface {
	Insert(ctx context.Context, event postgres.OutboxEvent) error
}

// OutboxPublisher writes invoice generated events to the outbox.
type OutboxPublisher struct {
	outbox OutboxWriter
}

// NewOutboxPublisher constructs an outbox publisher.
func NewOutboxPublisher(outbox OutboxWriter) *OutboxPublisher {
	return &OutboxPublisher{outbox: outbox}
}

type invoiceGeneratedPayload struct {
	InvoiceID  string  `json:"invoice_id"`
	TenantID   string  `json:"tenant_id"`
	Period     string  `json:"period"`
	Amount     float64 `json:"amount"`
	Clamped    int     `json:"clamped"`
	Recomputed bool    `json:"recomputed"`
}

// PublishInvoiceGenerated writes the event to the outbox.
func (p *OutboxPublisher) PublishInvoiceGenerated(ctx context.Context, event application.InvoiceGenerated) error {
	if p == nil || p.outbox == nil {
		return nil
	}
	payload, err := json.Marshal(invoiceGeneratedPayload{
		InvoiceID:  event.InvoiceID,
		TenantID:   event.TenantID,
		Period:     event.Period.Key(),
		Amount:     event.Amount,
		Clamped:    event.Clamped,
		Recomputed: event.Recomputed,
	})
	if err != nil {
		return err
	}
	return p.outbox.Insert(ctx, postgres.OutboxEvent{
		EventID:    uuid.NewString(),
		EventType:  EventTypeInvoiceGenerated,
		InvoiceID:  event.InvoiceID,
		TenantID:   event.TenantID,
		OccurredAt: event.OccurredAt,
		Payload:    payload,
	})
}

// MultiPublisher fans an event out to several publishers in order and joins
// their errors.
type MultiPublisher []application.InvoicePublisher

// PublishInvoiceGenerated publishes to every non-nil publisher.
func (m MultiPublisher) PublishInvoiceGenerated(ctx context.Context, event application.InvoiceGenerated) error {
	var errs []error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.PublishInvoiceGenerated(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
