package postgres

import (
	"context"
	"database/sql"
	"errors"

	billing "utility-billing/internal/billing/domain"
)

// ImportFacts upserts tenants, meters, tariffs, readings and adjustments in
// one transaction. Meters are inserted parents first. Imported adjustments
// replace the stored ones of the same meter and period.
func ImportFacts(ctx context.Context, db *sql.DB, tenants []billing.Facts) error {
	if db == nil {
		return errors.New("facts import: nil db")
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := importFacts(ctx, tx, tenants); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func importFacts(ctx context.Context, tx *sql.Tx, tenants []billing.Facts) error {
	seenTariffs := make(map[string]bool)
	for _, facts := range tenants {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO tenants (id, name) VALUES ($1,$2)
ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name`, facts.Tenant.ID, facts.Tenant.Name); err != nil {
			return err
		}

		h, err := billing.NewHierarchy(facts.Meters)
		if err != nil {
			return err
		}
		for _, m := range parentsFirst(h) {
			var parentID sql.NullString
			if m.ParentID != "" {
				parentID = sql.NullString{String: m.ParentID, Valid: true}
			}
			if _, err := tx.ExecContext(ctx, `
INSERT INTO meters (id, tenant_id, name, resource_type, rate_type, parent_id, billed_independently, deduction_rule)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (id) DO UPDATE SET
	name = EXCLUDED.name, resource_type = EXCLUDED.resource_type, rate_type = EXCLUDED.rate_type,
	parent_id = EXCLUDED.parent_id, billed_independently = EXCLUDED.billed_independently,
	deduction_rule = EXCLUDED.deduction_rule`,
				m.ID, facts.Tenant.ID, m.Name, string(m.ResourceType), m.RateType, parentID, m.BilledIndependently, m.DeductionRule); err != nil {
				return err
			}
		}

		for _, t := range facts.Tariffs {
			if seenTariffs[t.ID] {
				continue
			}
			seenTariffs[t.ID] = true
			var to sql.NullTime
			if !t.EffectiveTo.IsZero() {
				to = sql.NullTime{Time: t.EffectiveTo, Valid: true}
			}
			if _, err := tx.ExecContext(ctx, `
INSERT INTO tariffs (id, rate_type, effective_from, effective_to, rate)
VALUES ($1,$2,$3,$4,$5)
ON CONFLICT (id) DO UPDATE SET
	rate_type = EXCLUDED.rate_type, effective_from = EXCLUDED.effective_from,
	effective_to = EXCLUDED.effective_to, rate = EXCLUDED.rate`,
				t.ID, t.RateType, t.EffectiveFrom, to, t.Rate); err != nil {
				return err
			}
		}

		for _, r := range facts.Readings {
			if _, err := tx.ExecContext(ctx, `
INSERT INTO readings (meter_id, period_start, period_end, value)
VALUES ($1,$2,$3,$4)
ON CONFLICT (meter_id, period_start, period_end) DO UPDATE SET value = EXCLUDED.value, recorded_at = NOW()`,
				r.MeterID, r.Period.Start, r.Period.End, r.Value); err != nil {
				return err
			}
		}

		cleared := make(map[string]bool)
		for _, a := range facts.Adjustments {
			key := a.MeterID + "|" + a.Period.Key()
			if !cleared[key] {
				cleared[key] = true
				if _, err := tx.ExecContext(ctx, `
DELETE FROM consumption_adjustments
WHERE meter_id = $1 AND period_start = $2 AND period_end = $3`, a.MeterID, a.Period.Start, a.Period.End); err != nil {
					return err
				}
			}
			if _, err := tx.ExecContext(ctx, `
INSERT INTO consumption_adjustments (meter_id, period_start, period_end, amount, reason)
VALUES ($1,$2,$3,$4,$5)`,
				a.MeterID, a.Period.Start, a.Period.End, a.Amount, a.Reason); err != nil {
				return err
			}
		}
	}
	return nil
}

// parentsFirst orders meters so every parent precedes its children, keeping
// insertion order otherwise.
func parentsFirst(h *billing.Hierarchy) []billing.Meter {
	var result []billing.Meter
	var visit func(m billing.Meter)
	visit = func(m billing.Meter) {
		result = append(result, m)
		for _, child := range h.Children(m.ID) {
			visit(child)
		}
	}
	for _, m := range h.Meters() {
		if !m.IsChild() {
			visit(m)
		}
	}
	return result
}
