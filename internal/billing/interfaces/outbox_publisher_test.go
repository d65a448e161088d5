package interfaces

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"utility-billing/internal/billing/application"
	"utility-billing/internal/billing/infrastructure/postgres"
)

type captureOutbox struct {
	events []postgres.OutboxEvent
	err    error
}

func (o *captureOutbox) Insert(ctx context.Context, event postgres.OutboxEvent) error {
	o.events = append(o.events, event)
	return o.err
}

type countingPublisher struct {
	calls int
	err   error
}

func (p *countingPublisher) PublishInvoiceGenerated(ctx context.Context, event application.InvoiceGenerated) error {
	p.calls++
	return p.err
}

func TestOutboxPublisher(t *testing.T) {
	outbox := &captureOutbox{}
	occurred := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)

	err := NewOutboxPublisher(outbox).PublishInvoiceGenerated(context.Background(), application.InvoiceGenerated{
		InvoiceID:  "inv-1",
		TenantID:   "t1",
		Period:     jan2026,
		Amount:     99.5,
		Recomputed: true,
		OccurredAt: occurred,
	})
	require.NoError(t, err)
	require.Len(t, outbox.events, 1)

	event := outbox.events[0]
	assert.NotEmpty(t, event.EventID)
	assert.Equal(t, EventTypeInvoiceGenerated, event.EventType)
	assert.Equal(t, "inv-1", event.InvoiceID)
	assert.Equal(t, occurred, event.OccurredAt)
	assert.JSONEq(t, `{"invoice_id":"inv-1","tenant_id":"t1","period":"2026-01","amount":99.5,"clamped":0,"recomputed":true}`, string(event.Payload))

	assert.NoError(t, NewOutboxPublisher(nil).PublishInvoiceGenerated(context.Background(), application.InvoiceGenerated{}))
}

func TestMultiPublisher_PublishesToAllAndJoinsErrors(t *testing.T) {
	first := &countingPublisher{err: errors.New("outbox down")}
	second := &countingPublisher{}

	err := MultiPublisher{first, nil, second}.PublishInvoiceGenerated(context.Background(), application.InvoiceGenerated{})
	assert.ErrorContains(t, err, "outbox down")
	assert.Equal(t, 1, first.calls)
	assert.Equal(t, 1, second.calls)

	assert.NoError(t, MultiPublisher{second}.PublishInvoiceGenerated(context.Background(), application.InvoiceGenerated{}))
}
