package billing

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSummaryEntryFor_FailureIsolatedPerTenant(t *testing.T) {
	good := Facts{
		Tenant:   Tenant{ID: "good", Name: "Good"},
		Meters:   []Meter{{ID: "g1", TenantID: "good", RateType: "day"}},
		Tariffs:  []Tariff{flatTariff("day", 2)},
		Readings: []Reading{reading("g1", 10)},
	}
	broken := Facts{
		Tenant:  Tenant{ID: "broken", Name: "Broken"},
		Meters:  []Meter{{ID: "b1", TenantID: "broken", Name: "Basement", RateType: "day"}},
		Tariffs: []Tariff{flatTariff("day", 2)},
	}
	other := Facts{
		Tenant:   Tenant{ID: "other", Name: "Other"},
		Meters:   []Meter{{ID: "o1", TenantID: "other", RateType: "day"}},
		Tariffs:  []Tariff{flatTariff("day", 3)},
		Readings: []Reading{reading("o1", 10)},
	}

	var entries []SummaryEntry
	for _, facts := range []Facts{good, broken, other} {
		entries = append(entries, SummaryEntryFor(facts, jan2026))
	}
	summary := NewSummary(jan2026, entries)
	require.Len(t, summary.Entries, 3)
	assert.Equal(t, 1, summary.Failures)
	assert.InDelta(t, 50.0, summary.Total, 1e-9)

	assert.False(t, summary.Entries[0].Failed())
	assert.True(t, summary.Entries[1].Failed())
	assert.Nil(t, summary.Entries[1].Invoice)
	assert.Contains(t, summary.Entries[1].FailureMessage(), "Basement")
	var missing *MissingReadingError
	assert.True(t, errors.As(summary.Entries[1].Err, &missing))
	assert.Equal(t, "other", summary.Entries[2].TenantID)
	assert.Empty(t, summary.Entries[2].FailureMessage())
}

func TestNewSummary_EntryWithoutInvoiceCountsAsFailure(t *testing.T) {
	summary := NewSummary(jan2026, []SummaryEntry{{TenantID: "t1"}})
	assert.Equal(t, 1, summary.Failures)
	assert.Equal(t, 0.0, summary.Total)
}
