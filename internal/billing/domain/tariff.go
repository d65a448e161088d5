package billing

import (
	"fmt"
	"sort"
	"time"
)

// Tariff is a rate effective over [EffectiveFrom, EffectiveTo).
// A zero EffectiveTo means the tariff is open ended.
type Tariff struct {
	ID            string
	RateType      string
	EffectiveFrom time.Time
	EffectiveTo   time.Time
	Rate          float64
}

// Covers reports whether the tariff is in effect at the start of the period.
func (t Tariff) Covers(p Period) bool {
	if t.EffectiveFrom.After(p.Start) {
		return false
	}
	return t.EffectiveTo.IsZero() || t.EffectiveTo.After(p.Start)
}

func (t Tariff) overlaps(o Tariff) bool {
	aEndsBefore := !t.EffectiveTo.IsZero() && !t.EffectiveTo.After(o.EffectiveFrom)
	bEndsBefore := !o.EffectiveTo.IsZero() && !o.EffectiveTo.After(t.EffectiveFrom)
	return !aEndsBefore && !bEndsBefore
}

// TariffOverlap names two tariffs of one rate type whose ranges intersect.
type TariffOverlap struct {
	RateType string
	First    string
	Second   string
}

// TariffBook indexes tariffs by rate type, keeping configuration order.
type TariffBook struct {
	byRateType map[string][]Tariff
}

// NewTariffBook validates and indexes tariffs.
func NewTariffBook(tariffs []Tariff) (*TariffBook, error) {
	book := &TariffBook{byRateType: make(map[string][]Tariff)}
	for _, t := range tariffs {
		if err := CheckQuantity(t.Rate); err != nil {
			return nil, fmt.Errorf("%w: tariff %s rate %v", err, t.ID, t.Rate)
		}
		if t.EffectiveFrom.IsZero() {
			return nil, fmt.Errorf("billing: tariff %s has no effective-from date", t.ID)
		}
		if !t.EffectiveTo.IsZero() && !t.EffectiveTo.After(t.EffectiveFrom) {
			return nil, fmt.Errorf("billing: tariff %s ends before it starts", t.ID)
		}
		book.byRateType[t.RateType] = append(book.byRateType[t.RateType], t)
	}
	return book, nil
}

// Resolve returns the tariff of the meter's rate type in effect for the period.
//
// Ranges of one rate type are not expected to overlap. If they do, the tariff
// with the latest EffectiveFrom not after the period start wins, and among
// equal dates the first configured one.
func (b *TariffBook) Resolve(meter Meter, period Period) (Tariff, error) {
	var (
		best  Tariff
		found bool
	)
	if b != nil {
		for _, t := range b.byRateType[meter.RateType] {
			if !t.Covers(period) {
				continue
			}
			if !found || t.EffectiveFrom.After(best.EffectiveFrom) {
				best = t
				found = true
			}
		}
	}
	if !found {
		return Tariff{}, &TariffNotFoundError{MeterID: meter.ID, RateType: meter.RateType, Period: period}
	}
	return best, nil
}

// Overlaps lists every pair of tariffs of one rate type with intersecting ranges.
func (b *TariffBook) Overlaps() []TariffOverlap {
	if b == nil {
		return nil
	}
	rateTypes := make([]string, 0, len(b.byRateType))
	for rateType := range b.byRateType {
		rateTypes = append(rateTypes, rateType)
	}
	sort.Strings(rateTypes)

	var result []TariffOverlap
	for _, rateType := range rateTypes {
		tariffs := b.byRateType[rateType]
		for i := 0; i < len(tariffs); i++ {
			for j := i + 1; j < len(tariffs); j++ {
				if tariffs[i].overlaps(tariffs[j]) {
					result = append(result, TariffOverlap{RateType: rateType, First: tariffs[i].ID, Second: tariffs[j].ID})
				}
			}
		}
	}
	return result
}
