package billing

import (
	"fmt"
	"strings"
)

// DeductionKind tags a DeductionInfo.
type DeductionKind string

const (
	DeductionParent DeductionKind = "parent"
	DeductionChild  DeductionKind = "child"
)

// DeductionInfo annotates a meter that took part in a sub-meter deduction.
// It is either a ParentDeduction or a ChildDeduction.
type DeductionInfo interface {
	Kind() DeductionKind
	Meter() string
	Describe() string
	deduction()
}

// DeductionSource is one child reading subtracted from a parent.
type DeductionSource struct {
	ChildMeterID string
	ChildName    string
	Rule         string
	Amount       float64
}

// ParentDeduction marks a meter whose consumption was reduced by its children.
type ParentDeduction struct {
	MeterID string
	Sources []DeductionSource
	Amount  float64
}

func (ParentDeduction) Kind() DeductionKind { return DeductionParent }
func (d ParentDeduction) Meter() string     { return d.MeterID }
func (ParentDeduction) deduction()          {}

// Describe lists the applied rules, e.g. "sub-meter deduction: Shop A 120".
func (d ParentDeduction) Describe() string {
	parts := make([]string, 0, len(d.Sources))
	for _, src := range d.Sources {
		parts = append(parts, fmt.Sprintf("%s: %s %s", src.Rule, src.ChildName, formatQuantity(src.Amount)))
	}
	return strings.Join(parts, "; ")
}

// ChildDeduction marks a meter whose reading was subtracted from a parent.
type ChildDeduction struct {
	MeterID       string
	ParentMeterID string
	ParentInfo    string
}

func (ChildDeduction) Kind() DeductionKind { return DeductionChild }
func (d ChildDeduction) Meter() string     { return d.MeterID }
func (d ChildDeduction) Describe() string  { return "deducted from " + d.ParentInfo }
func (ChildDeduction) deduction()          {}

// Resolution is the deduction outcome for one meter.
type Resolution struct {
	MeterID         string
	Raw             float64
	Adjustment      float64
	ChildDeductions float64
	// Net is max(0, Raw - ChildDeductions - Adjustment).
	Net     float64
	Clamped bool
	// Shortfall is how far below zero the unclamped value was.
	Shortfall  float64
	Deductions []DeductionInfo
}

// ResolveDeductions computes the net consumption of every meter that has a raw
// value, subtracting children's raw values and the manual adjustment.
// Every child of a resolved meter must have a raw value.
func ResolveDeductions(h *Hierarchy, period Period, raw, adjustments map[string]float64) (map[string]Resolution, error) {
	result := make(map[string]Resolution, len(raw))
	for _, m := range h.Meters() {
		value, ok := raw[m.ID]
		if !ok {
			continue
		}
		if err := CheckQuantity(value); err != nil {
			return nil, fmt.Errorf("%w: reading of meter %s", err, m.ID)
		}
		adj := adjustments[m.ID]
		if err := CheckQuantity(adj); err != nil {
			return nil, fmt.Errorf("%w: adjustment of meter %s", err, m.ID)
		}

		res := Resolution{MeterID: m.ID, Raw: value, Adjustment: adj}
		if h.HasChildren(m.ID) {
			parent := ParentDeduction{MeterID: m.ID}
			for _, child := range h.Children(m.ID) {
				childRaw, ok := raw[child.ID]
				if !ok {
					return nil, &MissingReadingError{MeterID: child.ID, MeterName: child.Name, Period: period}
				}
				parent.Sources = append(parent.Sources, DeductionSource{
					ChildMeterID: child.ID,
					ChildName:    child.label(),
					Rule:         child.deductionRule(),
					Amount:       childRaw,
				})
				parent.Amount += childRaw
			}
			res.ChildDeductions = parent.Amount
			res.Deductions = append(res.Deductions, parent)
		}

		net := value - res.ChildDeductions - adj
		if net < 0 {
			res.Clamped = true
			res.Shortfall = -net
			net = 0
		}
		res.Net = net
		result[m.ID] = res
	}

	// Children are annotated after all parents are known so the note lands on
	// the child regardless of insertion order.
	for _, m := range h.Meters() {
		if !m.IsChild() {
			continue
		}
		if _, ok := result[m.ParentID]; !ok {
			continue
		}
		res := result[m.ID]
		parent, _ := h.Meter(m.ParentID)
		res.Deductions = append(res.Deductions, ChildDeduction{
			MeterID:       m.ID,
			ParentMeterID: parent.ID,
			ParentInfo:    fmt.Sprintf("%s (tenant %s)", parent.label(), parent.TenantID),
		})
		result[m.ID] = res
	}
	return result, nil
}

func formatQuantity(v float64) string {
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.3f", v), "0"), ".")
}
