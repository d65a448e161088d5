package postgres

import (
	"context"
	"database/sql"
	"errors"

	billing "utility-billing/internal/billing/domain"
)

// FactsQuery reads billing facts from Postgres.
type FactsQuery struct {
	db *sql.DB
}

// NewFactsQuery constructs a query.
func NewFactsQuery(db *sql.DB) *FactsQuery {
	return &FactsQuery{db: db}
}

// ListTenants returns all tenants ordered by id.
func (q *FactsQuery) ListTenants(ctx context.Context) ([]billing.Tenant, error) {
	if q == nil || q.db == nil {
		return nil, errors.New("facts query: nil db")
	}
	rows, err := q.db.QueryContext(ctx, `
SELECT id, name
FROM tenants
ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []billing.Tenant
	for rows.Next() {
		var t billing.Tenant
		if err := rows.Scan(&t.ID, &t.Name); err != nil {
			return nil, err
		}
		result = append(result, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// LoadFacts loads a tenant's meters, every tariff, and the readings and
// adjustments of the period.
func (q *FactsQuery) LoadFacts(ctx context.Context, tenantID string, period billing.Period) (billing.Facts, error) {
	if q == nil || q.db == nil {
		return billing.Facts{}, errors.New("facts query: nil db")
	}
	var facts billing.Facts
	err := q.db.QueryRowContext(ctx, `
SELECT id, name
FROM tenants
WHERE id = $1`, tenantID).Scan(&facts.Tenant.ID, &facts.Tenant.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return billing.Facts{}, billing.ErrTenantNotFound
	}
	if err != nil {
		return billing.Facts{}, err
	}

	if facts.Meters, err = q.listMeters(ctx, tenantID); err != nil {
		return billing.Facts{}, err
	}
	if facts.Tariffs, err = q.listTariffs(ctx); err != nil {
		return billing.Facts{}, err
	}
	if facts.Readings, err = q.listReadings(ctx, tenantID, period); err != nil {
		return billing.Facts{}, err
	}
	if facts.Adjustments, err = q.listAdjustments(ctx, tenantID, period); err != nil {
		return billing.Facts{}, err
	}
	return facts, nil
}

func (q *FactsQuery) listMeters(ctx context.Context, tenantID string) ([]billing.Meter, error) {
	rows, err := q.db.QueryContext(ctx, `
SELECT id, tenant_id, name, resource_type, rate_type, parent_id, billed_independently, deduction_rule
FROM meters
WHERE tenant_id = $1
ORDER BY seq ASC`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []billing.Meter
	for rows.Next() {
		var (
			m        billing.Meter
			resource string
			parentID sql.NullString
		)
		if err := rows.Scan(&m.ID, &m.TenantID, &m.Name, &resource, &m.RateType, &parentID, &m.BilledIndependently, &m.DeductionRule); err != nil {
			return nil, err
		}
		if m.ResourceType, err = billing.ParseResourceType(resource); err != nil {
			return nil, err
		}
		if parentID.Valid {
			m.ParentID = parentID.String
		}
		result = append(result, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (q *FactsQuery) listTariffs(ctx context.Context) ([]billing.Tariff, error) {
	rows, err := q.db.QueryContext(ctx, `
SELECT id, rate_type, effective_from, effective_to, rate
FROM tariffs
ORDER BY seq ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []billing.Tariff
	for rows.Next() {
		var (
			t  billing.Tariff
			to sql.NullTime
		)
		if err := rows.Scan(&t.ID, &t.RateType, &t.EffectiveFrom, &to, &t.Rate); err != nil {
			return nil, err
		}
		t.EffectiveFrom = t.EffectiveFrom.UTC()
		if to.Valid {
			t.EffectiveTo = to.Time.UTC()
		}
		result = append(result, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (q *FactsQuery) listReadings(ctx context.Context, tenantID string, period billing.Period) ([]billing.Reading, error) {
	rows, err := q.db.QueryContext(ctx, `
SELECT r.meter_id, r.value
FROM readings r
JOIN meters m ON m.id = r.meter_id
WHERE m.tenant_id = $1 AND r.period_start = $2 AND r.period_end = $3
ORDER BY m.seq ASC`, tenantID, period.Start, period.End)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []billing.Reading
	for rows.Next() {
		r := billing.Reading{Period: period}
		if err := rows.Scan(&r.MeterID, &r.Value); err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (q *FactsQuery) listAdjustments(ctx context.Context, tenantID string, period billing.Period) ([]billing.ManualAdjustment, error) {
	rows, err := q.db.QueryContext(ctx, `
SELECT a.meter_id, a.amount, a.reason
FROM consumption_adjustments a
JOIN meters m ON m.id = a.meter_id
WHERE m.tenant_id = $1 AND a.period_start = $2 AND a.period_end = $3
ORDER BY a.id ASC`, tenantID, period.Start, period.End)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []billing.ManualAdjustment
	for rows.Next() {
		a := billing.ManualAdjustment{Period: period}
		if err := rows.Scan(&a.MeterID, &a.Amount, &a.Reason); err != nil {
			return nil, err
		}
		result = append(result, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
