package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"
)

// OutboxEvent is one row of the invoice event outbox.
type OutboxEvent struct {
	EventID    string
	EventType  string
	InvoiceID  string
	TenantID   string
	OccurredAt time.Time
	Payload    json.RawMessage
}

// OutboxStore writes invoice events for asynchronous delivery.
type OutboxStore struct {
	db *sql.DB
}

// NewOutboxStore constructs an outbox store.
func NewOutboxStore(db *sql.DB) *OutboxStore {
	return &OutboxStore{db: db}
}

// Insert writes a pending event. Re-inserting the same event id is a no-op.
func (s *OutboxStore) Insert(ctx context.Context, event OutboxEvent) error {
	if s == nil || s.db == nil {
		return errors.New("outbox store: nil db")
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO invoice_outbox (event_id, event_type, invoice_id, tenant_id, payload, status, occurred_at)
VALUES ($1,$2,$3,$4,$5,'pending',$6)
ON CONFLICT (event_id) DO NOTHING`,
		event.EventID, event.EventType, event.InvoiceID, event.TenantID, []byte(event.Payload), event.OccurredAt.UTC())
	return err
}

// ListPending returns pending events, oldest first.
func (s *OutboxStore) ListPending(ctx context.Context, limit int) ([]OutboxEvent, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("outbox store: nil db")
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT event_id, event_type, invoice_id, tenant_id, payload, occurred_at
FROM invoice_outbox
WHERE status = 'pending'
ORDER BY created_at ASC
LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []OutboxEvent
	for rows.Next() {
		var (
			event   OutboxEvent
			payload []byte
		)
		if err := rows.Scan(&event.EventID, &event.EventType, &event.InvoiceID, &event.TenantID, &payload, &event.OccurredAt); err != nil {
			return nil, err
		}
		event.Payload = json.RawMessage(payload)
		event.OccurredAt = event.OccurredAt.UTC()
		result = append(result, event)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
