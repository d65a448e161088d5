package billing

import (
	"fmt"
	"math"
	"strings"
)

// ResourceType is the metered utility.
type ResourceType string

const (
	ResourceElectricity ResourceType = "electricity"
	ResourceWater       ResourceType = "water"
	ResourceHeat        ResourceType = "heat"
)

// DefaultDeductionRule names the child-to-parent deduction when a meter does not set one.
const DefaultDeductionRule = "sub-meter deduction"

// Unit returns the consumption unit shown on documents.
func (r ResourceType) Unit() string {
	switch r {
	case ResourceWater:
		return "m3"
	case ResourceHeat:
		return "Gcal"
	default:
		return "kWh"
	}
}

// ParseResourceType parses a resource type, defaulting to electricity.
func ParseResourceType(value string) (ResourceType, error) {
	switch ResourceType(strings.ToLower(strings.TrimSpace(value))) {
	case "", ResourceElectricity:
		return ResourceElectricity, nil
	case ResourceWater:
		return ResourceWater, nil
	case ResourceHeat:
		return ResourceHeat, nil
	default:
		return "", fmt.Errorf("billing: unknown resource type %q", value)
	}
}

// Tenant is a billed party.
type Tenant struct {
	ID   string
	Name string
}

// Meter is a metering point owned by one tenant.
//
// A meter with a ParentID is a child: its reading is subtracted from the
// parent's reading and it is not billed on its own unless BilledIndependently
// is set, in which case it is billed and still deducted from the parent.
type Meter struct {
	ID                  string
	TenantID            string
	Name                string
	ResourceType        ResourceType
	RateType            string
	ParentID            string
	BilledIndependently bool
	DeductionRule       string
}

// IsChild reports whether the meter has a parent.
func (m Meter) IsChild() bool { return m.ParentID != "" }

// Billable reports whether the meter produces its own line item.
func (m Meter) Billable() bool { return !m.IsChild() || m.BilledIndependently }

func (m Meter) deductionRule() string {
	if m.DeductionRule == "" {
		return DefaultDeductionRule
	}
	return m.DeductionRule
}

func (m Meter) label() string {
	if m.Name == "" {
		return m.ID
	}
	return m.Name
}

// Reading is the raw consumption of a meter for a period.
type Reading struct {
	MeterID string
	Period  Period
	Value   float64
}

// ManualAdjustment is a quantity subtracted from a meter's raw consumption.
type ManualAdjustment struct {
	MeterID string
	Period  Period
	Amount  float64
	Reason  string
}

// CheckQuantity accepts finite, non-negative readings, adjustments and rates.
func CheckQuantity(v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return ErrNonFiniteValue
	}
	if v < 0 {
		return ErrNegativeValue
	}
	return nil
}

// ConsumptionBetween converts two cumulative register values into consumption.
// A register that went backwards (replacement or rollover) yields zero and reset=true.
func ConsumptionBetween(current, previous float64) (consumption float64, reset bool, err error) {
	if err := CheckQuantity(current); err != nil {
		return 0, false, err
	}
	if err := CheckQuantity(previous); err != nil {
		return 0, false, err
	}
	if current < previous {
		return 0, true, nil
	}
	return current - previous, false, nil
}
