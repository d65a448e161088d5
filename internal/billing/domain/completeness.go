package billing

import (
	"errors"
	"fmt"
)

// IssueKind classifies a completeness problem.
type IssueKind string

const (
	IssueMissingReading IssueKind = "missing_reading"
	IssueMissingTariff  IssueKind = "missing_tariff"
	IssueInvalidSetup   IssueKind = "invalid_setup"
	IssueTariffOverlap  IssueKind = "tariff_overlap"
)

// Issue is a piece of data missing before an invoice can be computed.
type Issue struct {
	Kind      IssueKind
	MeterID   string
	MeterName string
	Message   string
}

// Blocking reports whether the issue prevents an invoice. Overlapping tariffs
// are a warning: Resolve still picks the latest effective one.
func (i Issue) Blocking() bool { return i.Kind != IssueTariffOverlap }

// CheckCompleteness lists every missing reading and tariff for the period
// instead of stopping at the first one like Allocate does, followed by
// overlapping tariff ranges as warnings.
func CheckCompleteness(facts Facts, period Period) []Issue {
	h, err := NewHierarchy(facts.Meters)
	if err != nil {
		return []Issue{{Kind: IssueInvalidSetup, Message: err.Error()}}
	}
	book, err := NewTariffBook(facts.Tariffs)
	if err != nil {
		return []Issue{{Kind: IssueInvalidSetup, Message: err.Error()}}
	}

	have := make(map[string]bool)
	for _, r := range facts.Readings {
		if r.Period.Equal(period) {
			have[r.MeterID] = true
		}
	}

	var issues []Issue
	for _, m := range h.Meters() {
		if !have[m.ID] {
			issues = append(issues, Issue{
				Kind:      IssueMissingReading,
				MeterID:   m.ID,
				MeterName: m.Name,
				Message:   fmt.Sprintf("no reading for %s in %s", m.label(), period),
			})
		}
		if !m.Billable() {
			continue
		}
		if _, err := book.Resolve(m, period); err != nil {
			var notFound *TariffNotFoundError
			if !errors.As(err, &notFound) {
				continue
			}
			issues = append(issues, Issue{
				Kind:      IssueMissingTariff,
				MeterID:   m.ID,
				MeterName: m.Name,
				Message:   fmt.Sprintf("no %q tariff for %s in %s", m.RateType, m.label(), period),
			})
		}
	}
	for _, o := range book.Overlaps() {
		issues = append(issues, Issue{
			Kind:    IssueTariffOverlap,
			Message: fmt.Sprintf("tariffs %s and %s of rate type %q overlap", o.First, o.Second, o.RateType),
		})
	}
	return issues
}
