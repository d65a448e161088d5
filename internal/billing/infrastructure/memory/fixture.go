package memory

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	billing "utility-billing/internal/billing/domain"
)

const fixtureDateLayout = "2006-01-02"

type fixtureFile struct {
	Tenants     []fixtureTenant     `yaml:"tenants"`
	Tariffs     []fixtureTariff     `yaml:"tariffs"`
	Readings    []fixtureReading    `yaml:"readings"`
	Adjustments []fixtureAdjustment `yaml:"adjustments"`
}

type fixtureTenant struct {
	ID     string         `yaml:"id"`
	Name   string         `yaml:"name"`
	Meters []fixtureMeter `yaml:"meters"`
}

type fixtureMeter struct {
	ID                  string `yaml:"id"`
	Name                string `yaml:"name"`
	Resource            string `yaml:"resource"`
	RateType            string `yaml:"rate_type"`
	Parent              string `yaml:"parent"`
	BilledIndependently bool   `yaml:"billed_independently"`
	DeductionRule       string `yaml:"deduction_rule"`
}

type fixtureTariff struct {
	ID            string  `yaml:"id"`
	RateType      string  `yaml:"rate_type"`
	EffectiveFrom string  `yaml:"effective_from"`
	EffectiveTo   string  `yaml:"effective_to"`
	Rate          float64 `yaml:"rate"`
}

// fixtureReading holds either a consumption value or a pair of cumulative
// register values.
type fixtureReading struct {
	Meter    string   `yaml:"meter"`
	Period   string   `yaml:"period"`
	Value    *float64 `yaml:"value"`
	Current  *float64 `yaml:"current"`
	Previous *float64 `yaml:"previous"`
}

type fixtureAdjustment struct {
	Meter  string  `yaml:"meter"`
	Period string  `yaml:"period"`
	Amount float64 `yaml:"amount"`
	Reason string  `yaml:"reason"`
}

// LoadFactsFile reads a YAML fixture into a new FactsStore.
func LoadFactsFile(path string) (*FactsStore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseFacts(data)
}

// ParseFacts decodes a YAML fixture into a new FactsStore.
func ParseFacts(data []byte) (*FactsStore, error) {
	var file fixtureFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("facts fixture: %w", err)
	}

	store := NewFactsStore()
	for _, t := range file.Tenants {
		if t.ID == "" {
			return nil, billing.ErrEmptyTenantID
		}
		store.AddTenant(billing.Tenant{ID: t.ID, Name: t.Name})
		for _, m := range t.Meters {
			resource, err := billing.ParseResourceType(m.Resource)
			if err != nil {
				return nil, fmt.Errorf("facts fixture: meter %s: %w", m.ID, err)
			}
			store.AddMeter(billing.Meter{
				ID:                  m.ID,
				TenantID:            t.ID,
				Name:                m.Name,
				ResourceType:        resource,
				RateType:            m.RateType,
				ParentID:            m.Parent,
				BilledIndependently: m.BilledIndependently,
				DeductionRule:       m.DeductionRule,
			})
		}
	}

	for _, t := range file.Tariffs {
		from, err := time.Parse(fixtureDateLayout, t.EffectiveFrom)
		if err != nil {
			return nil, fmt.Errorf("facts fixture: tariff %s effective_from: %w", t.ID, err)
		}
		var to time.Time
		if t.EffectiveTo != "" {
			to, err = time.Parse(fixtureDateLayout, t.EffectiveTo)
			if err != nil {
				return nil, fmt.Errorf("facts fixture: tariff %s effective_to: %w", t.ID, err)
			}
		}
		store.AddTariff(billing.Tariff{ID: t.ID, RateType: t.RateType, EffectiveFrom: from, EffectiveTo: to, Rate: t.Rate})
	}

	for _, r := range file.Readings {
		period, err := billing.ParseMonth(r.Period)
		if err != nil {
			return nil, fmt.Errorf("facts fixture: reading of %s: %w", r.Meter, err)
		}
		value, err := r.consumption()
		if err != nil {
			return nil, fmt.Errorf("facts fixture: reading of %s in %s: %w", r.Meter, r.Period, err)
		}
		store.AddReading(billing.Reading{MeterID: r.Meter, Period: period, Value: value})
	}

	for _, a := range file.Adjustments {
		period, err := billing.ParseMonth(a.Period)
		if err != nil {
			return nil, fmt.Errorf("facts fixture: adjustment of %s: %w", a.Meter, err)
		}
		if err := billing.CheckQuantity(a.Amount); err != nil {
			return nil, fmt.Errorf("facts fixture: adjustment of %s: %w", a.Meter, err)
		}
		store.AddAdjustment(billing.ManualAdjustment{MeterID: a.Meter, Period: period, Amount: a.Amount, Reason: a.Reason})
	}
	return store, nil
}

func (r fixtureReading) consumption() (float64, error) {
	switch {
	case r.Value != nil:
		if err := billing.CheckQuantity(*r.Value); err != nil {
			return 0, err
		}
		return *r.Value, nil
	case r.Current != nil && r.Previous != nil:
		value, _, err := billing.ConsumptionBetween(*r.Current, *r.Previous)
		return value, err
	default:
		return 0, fmt.Errorf("value or current/previous required")
	}
}
