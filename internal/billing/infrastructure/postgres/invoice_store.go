package postgres

import (
	"context"
	"database/sql"
	"errors"

	billing "utility-billing/internal/billing/domain"
)

// InvoiceStore persists invoice records with their line items and adjustments.
// Deduction annotations are not stored; they are recomputed with the invoice.
type InvoiceStore struct {
	db *sql.DB
}

// NewInvoiceStore constructs a store.
func NewInvoiceStore(db *sql.DB) *InvoiceStore {
	return &InvoiceStore{db: db}
}

// Save upserts the invoice, replaces its line items and inserts new adjustments.
func (s *InvoiceStore) Save(ctx context.Context, record *billing.InvoiceRecord) error {
	if s == nil || s.db == nil {
		return errors.New("invoice store: nil db")
	}
	if record == nil {
		return errors.New("invoice store: nil record")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
INSERT INTO invoices (
	id, tenant_id, tenant_name, period_start, period_end, currency, total, amount, fingerprint,
	published_fingerprint, created_at, updated_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12
)
ON CONFLICT (id) DO UPDATE SET
	tenant_name = EXCLUDED.tenant_name, currency = EXCLUDED.currency, total = EXCLUDED.total,
	amount = EXCLUDED.amount, fingerprint = EXCLUDED.fingerprint,
	published_fingerprint = EXCLUDED.published_fingerprint, updated_at = EXCLUDED.updated_at`,
		record.ID, record.TenantID, record.Invoice.TenantName, record.Period.Start, record.Period.End, record.Currency,
		record.Invoice.Total, record.Amount, record.Fingerprint, record.PublishedFingerprint, record.CreatedAt, record.UpdatedAt,
	)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM invoice_line_items WHERE invoice_id = $1`, record.ID); err != nil {
		_ = tx.Rollback()
		return err
	}
	for i, item := range record.Invoice.LineItems {
		_, err := tx.ExecContext(ctx, `
INSERT INTO invoice_line_items (
	invoice_id, position, meter_id, meter_name, resource_type, raw_consumption, manual_adjustment,
	child_deductions, consumption, tariff_id, rate_type, rate, cost, clamped
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
			record.ID, i, item.MeterID, item.MeterName, string(item.ResourceType), item.RawConsumption, item.ManualAdjustment,
			item.ChildDeductions, item.Consumption, item.Tariff.ID, item.Tariff.RateType, item.Tariff.Rate, item.Cost, item.Clamped)
		if err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	for _, adj := range record.Adjustments {
		_, err := tx.ExecContext(ctx, `
INSERT INTO invoice_adjustments (id, invoice_id, amount, description, created_at)
VALUES ($1,$2,$3,$4,$5)
ON CONFLICT (id) DO NOTHING`, adj.ID, record.ID, adj.Amount, adj.Description, adj.CreatedAt)
		if err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// Get loads a record with its items and adjustments.
func (s *InvoiceStore) Get(ctx context.Context, id string) (*billing.InvoiceRecord, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("invoice store: nil db")
	}
	row := s.db.QueryRowContext(ctx, `
SELECT id, tenant_id, tenant_name, period_start, period_end, currency, total, amount, fingerprint,
	published_fingerprint, created_at, updated_at
FROM invoices
WHERE id = $1`, id)
	record, err := scanInvoice(row)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, billing.ErrInvoiceNotFound
	}
	if record.Invoice.LineItems, err = s.listItems(ctx, record.ID); err != nil {
		return nil, err
	}
	record.Invoice.Subtotals = billing.DeriveSubtotals(record.Invoice.LineItems)
	if record.Adjustments, err = s.listAdjustments(ctx, record.ID); err != nil {
		return nil, err
	}
	return record, nil
}

// FindByTenantPeriod loads the record of a tenant's period, nil when absent.
func (s *InvoiceStore) FindByTenantPeriod(ctx context.Context, tenantID string, period billing.Period) (*billing.InvoiceRecord, error) {
	id, err := billing.BuildInvoiceID(tenantID, period)
	if err != nil {
		return nil, err
	}
	record, err := s.Get(ctx, id)
	if errors.Is(err, billing.ErrInvoiceNotFound) {
		return nil, nil
	}
	return record, err
}

// ListByPeriod returns all records of a period ordered by tenant.
func (s *InvoiceStore) ListByPeriod(ctx context.Context, period billing.Period) ([]billing.InvoiceRecord, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("invoice store: nil db")
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id
FROM invoices
WHERE period_start = $1 AND period_end = $2
ORDER BY tenant_id ASC`, period.Start, period.End)
	if err != nil {
		return nil, err
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	result := make([]billing.InvoiceRecord, 0, len(ids))
	for _, id := range ids {
		record, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		result = append(result, *record)
	}
	return result, nil
}

// RecordExport stores where a rendered document was written.
func (s *InvoiceStore) RecordExport(ctx context.Context, invoiceID, format, path string) error {
	if s == nil || s.db == nil {
		return errors.New("invoice store: nil db")
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO invoice_exports (invoice_id, format, path)
VALUES ($1,$2,$3)`, invoiceID, format, path)
	return err
}

func (s *InvoiceStore) listItems(ctx context.Context, invoiceID string) ([]billing.LineItem, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT meter_id, meter_name, resource_type, raw_consumption, manual_adjustment, child_deductions,
	consumption, tariff_id, rate_type, rate, cost, clamped
FROM invoice_line_items
WHERE invoice_id = $1
ORDER BY position ASC`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []billing.LineItem
	for rows.Next() {
		var (
			item     billing.LineItem
			resource string
		)
		if err := rows.Scan(
			&item.MeterID, &item.MeterName, &resource, &item.RawConsumption, &item.ManualAdjustment, &item.ChildDeductions,
			&item.Consumption, &item.Tariff.ID, &item.Tariff.RateType, &item.Tariff.Rate, &item.Cost, &item.Clamped,
		); err != nil {
			return nil, err
		}
		item.ResourceType = billing.ResourceType(resource)
		result = append(result, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *InvoiceStore) listAdjustments(ctx context.Context, invoiceID string) ([]billing.InvoiceAdjustment, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, invoice_id, amount, description, created_at
FROM invoice_adjustments
WHERE invoice_id = $1
ORDER BY created_at ASC, id ASC`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []billing.InvoiceAdjustment
	for rows.Next() {
		var adj billing.InvoiceAdjustment
		if err := rows.Scan(&adj.ID, &adj.InvoiceID, &adj.Amount, &adj.Description, &adj.CreatedAt); err != nil {
			return nil, err
		}
		adj.CreatedAt = adj.CreatedAt.UTC()
		result = append(result, adj)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInvoice(row rowScanner) (*billing.InvoiceRecord, error) {
	var record billing.InvoiceRecord
	err := row.Scan(
		&record.ID,
		&record.TenantID,
		&record.Invoice.TenantName,
		&record.Period.Start,
		&record.Period.End,
		&record.Currency,
		&record.Invoice.Total,
		&record.Amount,
		&record.Fingerprint,
		&record.PublishedFingerprint,
		&record.CreatedAt,
		&record.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	record.Period.Start = record.Period.Start.UTC()
	record.Period.End = record.Period.End.UTC()
	record.CreatedAt = record.CreatedAt.UTC()
	record.UpdatedAt = record.UpdatedAt.UTC()
	record.Invoice.TenantID = record.TenantID
	record.Invoice.Period = record.Period
	return &record, nil
}
