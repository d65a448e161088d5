package billing

import "fmt"

// defaultRateType labels tariffs configured without a rate type.
const defaultRateType = "default"

// Facts are the resolved inputs for one tenant's billing.
type Facts struct {
	Tenant      Tenant
	Meters      []Meter
	Tariffs     []Tariff
	Readings    []Reading
	Adjustments []ManualAdjustment
}

// LineItem is the cost of one billable meter.
type LineItem struct {
	MeterID          string
	MeterName        string
	ResourceType     ResourceType
	RawConsumption   float64
	ManualAdjustment float64
	ChildDeductions  float64
	Consumption      float64
	Tariff           Tariff
	Cost             float64
	Clamped          bool
}

// RateType is the subtotal group of the item.
func (i LineItem) RateType() string {
	if i.Tariff.RateType == "" {
		return defaultRateType
	}
	return i.Tariff.RateType
}

// Subtotal is the cost of all items of one rate type.
type Subtotal struct {
	RateType string
	Amount   float64
}

// Allocation is the engine output for one tenant and period.
type Allocation struct {
	Items      []LineItem
	Subtotals  []Subtotal
	Deductions []DeductionInfo
	Anomalies  []NegativeConsumptionClamped
}

// Allocate turns a tenant's facts into line items and per-rate-type subtotals.
//
// Deductions for the whole meter tree are resolved before any cost is
// computed. Line items follow meter insertion order.
func Allocate(facts Facts, period Period) (Allocation, error) {
	if err := period.Validate(); err != nil {
		return Allocation{}, err
	}
	h, err := NewHierarchy(facts.Meters)
	if err != nil {
		return Allocation{}, err
	}
	book, err := NewTariffBook(facts.Tariffs)
	if err != nil {
		return Allocation{}, err
	}
	raw, err := readingsForPeriod(h, facts.Readings, period)
	if err != nil {
		return Allocation{}, err
	}
	adjustments := adjustmentsForPeriod(facts.Adjustments, period)

	billable := h.Billable()
	for _, m := range billable {
		if _, ok := raw[m.ID]; !ok {
			return Allocation{}, &MissingReadingError{MeterID: m.ID, MeterName: m.Name, Period: period}
		}
	}

	resolutions, err := ResolveDeductions(h, period, raw, adjustments)
	if err != nil {
		return Allocation{}, err
	}

	var alloc Allocation
	for _, m := range h.Meters() {
		res, ok := resolutions[m.ID]
		if !ok {
			continue
		}
		alloc.Deductions = append(alloc.Deductions, res.Deductions...)
		if res.Clamped {
			alloc.Anomalies = append(alloc.Anomalies, NegativeConsumptionClamped{
				MeterID:   m.ID,
				MeterName: m.Name,
				Shortfall: res.Shortfall,
			})
		}
	}

	for _, m := range billable {
		res := resolutions[m.ID]
		tariff, err := book.Resolve(m, period)
		if err != nil {
			return Allocation{}, err
		}
		alloc.Items = append(alloc.Items, LineItem{
			MeterID:          m.ID,
			MeterName:        m.Name,
			ResourceType:     m.ResourceType,
			RawConsumption:   res.Raw,
			ManualAdjustment: res.Adjustment,
			ChildDeductions:  res.ChildDeductions,
			Consumption:      res.Net,
			Tariff:           tariff,
			Cost:             res.Net * tariff.Rate,
			Clamped:          res.Clamped,
		})
	}
	alloc.Subtotals = DeriveSubtotals(alloc.Items)
	return alloc, nil
}

// ComputeInvoice allocates and assembles the invoice of one tenant.
func ComputeInvoice(facts Facts, period Period) (Invoice, error) {
	alloc, err := Allocate(facts, period)
	if err != nil {
		return Invoice{}, err
	}
	inv, err := Assemble(facts.Tenant, period, alloc.Items, alloc.Subtotals)
	if err != nil {
		return Invoice{}, err
	}
	inv.Deductions = alloc.Deductions
	inv.Anomalies = alloc.Anomalies
	return inv, nil
}

// DeriveSubtotals groups item costs by rate type in first-seen order.
func DeriveSubtotals(items []LineItem) []Subtotal {
	var result []Subtotal
	index := make(map[string]int)
	for _, item := range items {
		key := item.RateType()
		i, ok := index[key]
		if !ok {
			i = len(result)
			index[key] = i
			result = append(result, Subtotal{RateType: key})
		}
		result[i].Amount += item.Cost
	}
	return result
}

func readingsForPeriod(h *Hierarchy, readings []Reading, period Period) (map[string]float64, error) {
	raw := make(map[string]float64)
	for _, r := range readings {
		if !r.Period.Equal(period) {
			continue
		}
		if _, ok := h.Meter(r.MeterID); !ok {
			continue
		}
		if _, dup := raw[r.MeterID]; dup {
			return nil, fmt.Errorf("%w: meter %s in %s", ErrDuplicateReading, r.MeterID, period)
		}
		raw[r.MeterID] = r.Value
	}
	return raw, nil
}

func adjustmentsForPeriod(adjustments []ManualAdjustment, period Period) map[string]float64 {
	result := make(map[string]float64)
	for _, a := range adjustments {
		if !a.Period.Equal(period) {
			continue
		}
		result[a.MeterID] += a.Amount
	}
	return result
}
