package memory

import (
	"context"
	"errors"
	"sync"

	billing "utility-billing/internal/billing/domain"
)

// InvoiceStore is an in-memory InvoiceStore.
type InvoiceStore struct {
	mu    sync.RWMutex
	order []string
	data  map[string]*billing.InvoiceRecord
}

// NewInvoiceStore constructs a store.
func NewInvoiceStore() *InvoiceStore {
	return &InvoiceStore{data: make(map[string]*billing.InvoiceRecord)}
}

// Save persists a record (overwrites existing).
func (s *InvoiceStore) Save(ctx context.Context, record *billing.InvoiceRecord) error {
	_ = ctx
	if record == nil || record.ID == "" {
		return billing.ErrInvoiceNotFound
	}
	s.mu.Lock()
	if _, ok := s.data[record.ID]; !ok {
		s.order = append(s.order, record.ID)
	}
	s.data[record.ID] = record.Clone()
	s.mu.Unlock()
	return nil
}

// Get loads a record by id.
func (s *InvoiceStore) Get(ctx context.Context, id string) (*billing.InvoiceRecord, error) {
	_ = ctx
	s.mu.RLock()
	record := s.data[id]
	s.mu.RUnlock()
	if record == nil {
		return nil, billing.ErrInvoiceNotFound
	}
	return record.Clone(), nil
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

// ListByPeriod returns records of a period in first-save order.
func (s *InvoiceStore) ListByPeriod(ctx context.Context, period billing.Period) ([]billing.InvoiceRecord, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []billing.InvoiceRecord
	for _, id := range s.order {
		if record := s.data[id]; record.Period.Equal(period) {
			result = append(result, *record.Clone())
		}
	}
	return result, nil
}
