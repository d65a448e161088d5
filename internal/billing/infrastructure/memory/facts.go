package memory

import (
	"context"
	"sync"

	billing "utility-billing/internal/billing/domain"
)

// FactsStore is an in-memory FactsQuery.
type FactsStore struct {
	mu          sync.RWMutex
	tenants     []billing.Tenant
	meters      []billing.Meter
	tariffs     []billing.Tariff
	readings    []billing.Reading
	adjustments []billing.ManualAdjustment
}

// NewFactsStore constructs an empty store.
func NewFactsStore() *FactsStore {
	return &FactsStore{}
}

// AddTenant registers a tenant.
func (s *FactsStore) AddTenant(t billing.Tenant) {
	s.mu.Lock()
	s.tenants = append(s.tenants, t)
	s.mu.Unlock()
}

// AddMeter registers a meter.
func (s *FactsStore) AddMeter(m billing.Meter) {
	s.mu.Lock()
	s.meters = append(s.meters, m)
	s.mu.Unlock()
}

// AddTariff registers a tariff shared by all tenants.
func (s *FactsStore) AddTariff(t billing.Tariff) {
	s.mu.Lock()
	s.tariffs = append(s.tariffs, t)
	s.mu.Unlock()
}

// AddReading records a reading.
func (s *FactsStore) AddReading(r billing.Reading) {
	s.mu.Lock()
	s.readings = append(s.readings, r)
	s.mu.Unlock()
}

// AddAdjustment records a manual consumption adjustment.
func (s *FactsStore) AddAdjustment(a billing.ManualAdjustment) {
	s.mu.Lock()
	s.adjustments = append(s.adjustments, a)
	s.mu.Unlock()
}

// ListTenants returns tenants in registration order.
func (s *FactsStore) ListTenants(ctx context.Context) ([]billing.Tenant, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]billing.Tenant(nil), s.tenants...), nil
}

// LoadFacts returns the tenant's meters with readings and adjustments of the period.
func (s *FactsStore) LoadFacts(ctx context.Context, tenantID string, period billing.Period) (billing.Facts, error) {
	if err := ctx.Err(); err != nil {
		return billing.Facts{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, t := range s.tenants {
		if t.ID == tenantID {
			return s.tenantFacts(t, func(p billing.Period) bool { return p.Equal(period) }), nil
		}
	}
	return billing.Facts{}, billing.ErrTenantNotFound
}

// AllFacts returns every tenant's facts across all periods, in registration order.
func (s *FactsStore) AllFacts() []billing.Facts {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]billing.Facts, 0, len(s.tenants))
	for _, t := range s.tenants {
		result = append(result, s.tenantFacts(t, func(billing.Period) bool { return true }))
	}
	return result
}

func (s *FactsStore) tenantFacts(tenant billing.Tenant, keep func(billing.Period) bool) billing.Facts {
	facts := billing.Facts{Tenant: tenant}
	owned := make(map[string]bool)
	for _, m := range s.meters {
		if m.TenantID == tenant.ID {
			facts.Meters = append(facts.Meters, m)
			owned[m.ID] = true
		}
	}
	facts.Tariffs = append(facts.Tariffs, s.tariffs...)
	for _, r := range s.readings {
		if owned[r.MeterID] && keep(r.Period) {
			facts.Readings = append(facts.Readings, r)
		}
	}
	for _, a := range s.adjustments {
		if owned[a.MeterID] && keep(a.Period) {
			facts.Adjustments = append(facts.Adjustments, a)
		}
	}
	return facts
}
