package billing

import (
	"fmt"
	"time"
)

const monthLayout = "2006-01"

// Period is a billing period [Start, End) in UTC.
type Period struct {
	Start time.Time
	End   time.Time
}

// MonthPeriod returns the given calendar month.
func MonthPeriod(year int, month time.Month) Period {
	start := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	return Period{Start: start, End: start.AddDate(0, 1, 0)}
}

// NewPeriod builds an explicit period.
func NewPeriod(start, end time.Time) (Period, error) {
	p := Period{Start: start.UTC(), End: end.UTC()}
	if err := p.Validate(); err != nil {
		return Period{}, err
	}
	return p, nil
}

// ParseMonth parses a YYYY-MM period.
func ParseMonth(value string) (Period, error) {
	if value == "" {
		return Period{}, fmt.Errorf("%w: month required", ErrInvalidPeriod)
	}
	t, err := time.Parse(monthLayout, value)
	if err != nil {
		return Period{}, fmt.Errorf("%w: month must be YYYY-MM", ErrInvalidPeriod)
	}
	return MonthPeriod(t.Year(), t.Month()), nil
}

// Validate checks that the period is non-empty.
func (p Period) Validate() error {
	if p.Start.IsZero() || p.End.IsZero() || !p.End.After(p.Start) {
		return ErrInvalidPeriod
	}
	return nil
}

// Equal reports whether both periods cover the same instants.
func (p Period) Equal(o Period) bool {
	return p.Start.Equal(o.Start) && p.End.Equal(o.End)
}

// Contains reports whether t falls inside the period.
func (p Period) Contains(t time.Time) bool {
	return !t.Before(p.Start) && t.Before(p.End)
}

// IsMonth reports whether the period is exactly one calendar month.
func (p Period) IsMonth() bool {
	return p.Equal(MonthPeriod(p.Start.Year(), p.Start.Month()))
}

// Previous returns the calendar month before a monthly period.
func (p Period) Previous() Period {
	prev := p.Start.AddDate(0, -1, 0)
	return MonthPeriod(prev.Year(), prev.Month())
}

// Key is the persisted representation of the period.
func (p Period) Key() string {
	if p.IsMonth() {
		return p.Start.Format(monthLayout)
	}
	return p.Start.Format("20060102") + "-" + p.End.Format("20060102")
}

func (p Period) String() string { return p.Key() }
