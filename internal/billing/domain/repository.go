package billing

import "context"

// FactsQuery is the read-only source of billing facts.
type FactsQuery interface {
	ListTenants(ctx context.Context) ([]Tenant, error)
	// LoadFacts returns ErrTenantNotFound for an unknown tenant.
	LoadFacts(ctx context.Context, tenantID string, period Period) (Facts, error)
}

// InvoiceStore persists invoice records.
type InvoiceStore interface {
	// Save upserts the record and any adjustments not yet stored.
	Save(ctx context.Context, record *InvoiceRecord) error
	// Get returns ErrInvoiceNotFound for an unknown id.
	Get(ctx context.Context, id string) (*InvoiceRecord, error)
	// FindByTenantPeriod returns nil when nothing is stored.
	FindByTenantPeriod(ctx context.Context, tenantID string, period Period) (*InvoiceRecord, error)
	ListByPeriod(ctx context.Context, period Period) ([]InvoiceRecord, error)
}
