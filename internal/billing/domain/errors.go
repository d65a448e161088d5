package billing

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyTenantID is returned when tenant id is empty.
	ErrEmptyTenantID = errors.New("billing: empty tenant id")
	// ErrEmptyMeterID is returned when meter id is empty.
	ErrEmptyMeterID = errors.New("billing: empty meter id")
	// ErrInvalidPeriod is returned when a period is zero or inverted.
	ErrInvalidPeriod = errors.New("billing: invalid period")
	// ErrNegativeValue is returned when a negative reading, adjustment or rate is provided.
	ErrNegativeValue = errors.New("billing: negative value")
	// ErrNonFiniteValue is returned when a quantity or amount is NaN or infinite.
	ErrNonFiniteValue = errors.New("billing: value is not a finite number")
	// ErrDuplicateMeter is returned when two meters share an id.
	ErrDuplicateMeter = errors.New("billing: duplicate meter")
	// ErrUnknownParent is returned when a meter references a parent that does not exist.
	ErrUnknownParent = errors.New("billing: unknown parent meter")
	// ErrCrossTenantParent is returned when a parent meter belongs to another tenant.
	ErrCrossTenantParent = errors.New("billing: parent meter belongs to another tenant")
	// ErrMeterCycle is returned when parent references form a cycle.
	ErrMeterCycle = errors.New("billing: meter hierarchy cycle")
	// ErrDuplicateReading is returned when a meter has more than one reading for a period.
	ErrDuplicateReading = errors.New("billing: duplicate reading")
	// ErrTenantNotFound is returned when a tenant is not found.
	ErrTenantNotFound = errors.New("billing: tenant not found")
	// ErrInvoiceNotFound is returned when an invoice record is not found.
	ErrInvoiceNotFound = errors.New("billing: invoice not found")
)

// TariffNotFoundError reports that no tariff of a rate type covers the period.
type TariffNotFoundError struct {
	MeterID  string
	RateType string
	Period   Period
}

func (e *TariffNotFoundError) Error() string {
	return fmt.Sprintf("billing: no tariff for rate type %q covers %s (meter %s)", e.RateType, e.Period, e.MeterID)
}

// MissingReadingError reports a meter without a reading for the period.
type MissingReadingError struct {
	MeterID   string
	MeterName string
	Period    Period
}

func (e *MissingReadingError) Error() string {
	return fmt.Sprintf("billing: no reading for meter %s (%s) in %s", e.MeterID, e.MeterName, e.Period)
}

// InconsistentTotalsError is an engine invariant violation: line items and
// subtotals disagree. Correct code never produces it.
type InconsistentTotalsError struct {
	LineItemTotal float64
	SubtotalTotal float64
}

func (e *InconsistentTotalsError) Error() string {
	return fmt.Sprintf("billing: inconsistent totals: line items=%v subtotals=%v", e.LineItemTotal, e.SubtotalTotal)
}

// NegativeConsumptionClamped is a non-fatal anomaly: deduction or adjustment
// math went below zero and the consumption was clamped.
type NegativeConsumptionClamped struct {
	MeterID   string
	MeterName string
	// Shortfall is the magnitude of the negative value that was discarded.
	Shortfall float64
}

func (a NegativeConsumptionClamped) Error() string {
	return fmt.Sprintf("billing: consumption of meter %s (%s) clamped to zero, shortfall %v", a.MeterID, a.MeterName, a.Shortfall)
}
