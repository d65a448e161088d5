package billing

import (
	"math"

	"github.com/shopspring/decimal"
)

// totalsTolerance bounds the relative drift allowed between line-item and
// subtotal sums, which add the same costs in a different order.
const totalsTolerance = 1e-9

// Invoice is the computed bill of one tenant for one period.
// Amounts are unrounded; use the presentation helpers for display.
type Invoice struct {
	TenantID   string
	TenantName string
	Period     Period
	LineItems  []LineItem
	Subtotals  []Subtotal
	Deductions []DeductionInfo
	Anomalies  []NegativeConsumptionClamped
	Total      float64
}

// Assemble sums line items into an invoice, checking them against subtotals.
func Assemble(tenant Tenant, period Period, items []LineItem, subtotals []Subtotal) (Invoice, error) {
	if tenant.ID == "" {
		return Invoice{}, ErrEmptyTenantID
	}
	if err := period.Validate(); err != nil {
		return Invoice{}, err
	}
	var total, subtotalSum float64
	for _, item := range items {
		total += item.Cost
	}
	for _, st := range subtotals {
		subtotalSum += st.Amount
	}
	if math.Abs(total-subtotalSum) > totalsTolerance*math.Max(1, math.Abs(total)) {
		return Invoice{}, &InconsistentTotalsError{LineItemTotal: total, SubtotalTotal: subtotalSum}
	}
	return Invoice{
		TenantID:   tenant.ID,
		TenantName: tenant.Name,
		Period:     period,
		LineItems:  items,
		Subtotals:  subtotals,
		Total:      total,
	}, nil
}

// RoundedTotal is the total rounded for presentation.
func (inv Invoice) RoundedTotal() float64 { return RoundMoney(inv.Total) }

// DeductionsFor returns annotations attached to one meter.
func (inv Invoice) DeductionsFor(meterID string) []DeductionInfo {
	var result []DeductionInfo
	for _, d := range inv.Deductions {
		if d.Meter() == meterID {
			result = append(result, d)
		}
	}
	return result
}

// Clamped reports whether any consumption was clamped to zero.
func (inv Invoice) Clamped() bool { return len(inv.Anomalies) > 0 }

// RoundMoney rounds half away from zero to two decimals.
func RoundMoney(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}

// FormatMoney renders v with exactly two decimals.
func FormatMoney(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2)
}
