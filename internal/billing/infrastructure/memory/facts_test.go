package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	billing "utility-billing/internal/billing/domain"
)

var jan2026 = billing.MonthPeriod(2026, time.January)

func TestLoadFactsFile_ComputesFixtureInvoices(t *testing.T) {
	store, err := LoadFactsFile("testdata/facts.yaml")
	require.NoError(t, err)
	ctx := context.Background()

	tenants, err := store.ListTenants(ctx)
	require.NoError(t, err)
	require.Len(t, tenants, 2)
	assert.Equal(t, billing.Tenant{ID: "acme", Name: "Acme Retail"}, tenants[0])

	facts, err := store.LoadFacts(ctx, "acme", jan2026)
	require.NoError(t, err)
	assert.Len(t, facts.Meters, 4)
	assert.Len(t, facts.Readings, 4)
	assert.Len(t, facts.Adjustments, 1)
	assert.Equal(t, billing.ResourceWater, facts.Meters[3].ResourceType)

	inv, err := billing.ComputeInvoice(facts, jan2026)
	require.NoError(t, err)
	require.Len(t, inv.LineItems, 2)
	assert.InDelta(t, 300.0, inv.LineItems[0].Consumption, 1e-9)
	assert.InDelta(t, 1500.0, inv.LineItems[0].Cost, 1e-9)
	assert.InDelta(t, 80.0, inv.LineItems[1].Consumption, 1e-9)
	assert.InDelta(t, 280.0, inv.LineItems[1].Cost, 1e-9)
	assert.InDelta(t, 1780.0, inv.Total, 1e-9)

	bistro, err := store.LoadFacts(ctx, "bistro", jan2026)
	require.NoError(t, err)
	inv, err = billing.ComputeInvoice(bistro, jan2026)
	require.NoError(t, err)
	require.Len(t, inv.LineItems, 2)
	assert.True(t, inv.LineItems[0].Clamped)
	assert.Equal(t, 0.0, inv.LineItems[0].Cost)
	assert.InDelta(t, 400.0, inv.LineItems[1].Cost, 1e-9)
	assert.True(t, inv.Clamped())
}

func TestLoadFacts_UnknownTenantAndPeriodFilter(t *testing.T) {
	store := NewFactsStore()
	store.AddTenant(billing.Tenant{ID: "t1"})
	store.AddMeter(billing.Meter{ID: "m1", TenantID: "t1"})
	store.AddMeter(billing.Meter{ID: "other", TenantID: "t2"})
	store.AddReading(billing.Reading{MeterID: "m1", Period: jan2026, Value: 1})
	store.AddReading(billing.Reading{MeterID: "m1", Period: jan2026.Previous(), Value: 2})
	store.AddReading(billing.Reading{MeterID: "other", Period: jan2026, Value: 3})

	_, err := store.LoadFacts(context.Background(), "ghost", jan2026)
	assert.ErrorIs(t, err, billing.ErrTenantNotFound)

	facts, err := store.LoadFacts(context.Background(), "t1", jan2026)
	require.NoError(t, err)
	assert.Equal(t, []billing.Reading{{MeterID: "m1", Period: jan2026, Value: 1}}, facts.Readings)
}

func TestParseFacts_Errors(t *testing.T) {
	cases := map[string]string{
		"bad resource":      "tenants: [{id: t1, meters: [{id: m, resource: gas}]}]",
		"bad tariff date":   "tariffs: [{id: x, rate_type: day, effective_from: 01.01.2025, rate: 1}]",
		"bad period":        "readings: [{meter: m, period: January, value: 1}]",
		"no value":          "readings: [{meter: m, period: 2026-01}]",
		"negative adjust":   "adjustments: [{meter: m, period: 2026-01, amount: -5}]",
		"negative reading":  "readings: [{meter: m, period: 2026-01, value: -1}]",
		"missing tenant id": "tenants: [{name: nobody}]",
		"nan reading":       "readings: [{meter: m, period: 2026-01, value: .nan}]",
		"infinite register": "readings: [{meter: m, period: 2026-01, current: .inf, previous: 1}]",
		"nan adjustment":    "adjustments: [{meter: m, period: 2026-01, amount: .nan}]",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseFacts([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestParseFacts_RegisterReset(t *testing.T) {
	store, err := ParseFacts([]byte("readings: [{meter: m, period: 2026-01, current: 5, previous: 900}]"))
	require.NoError(t, err)
	assert.Equal(t, 0.0, store.readings[0].Value)
}

func TestAllFacts_KeepsEveryPeriod(t *testing.T) {
	store := NewFactsStore()
	store.AddTenant(billing.Tenant{ID: "t1"})
	store.AddTenant(billing.Tenant{ID: "t2"})
	store.AddMeter(billing.Meter{ID: "m1", TenantID: "t1"})
	store.AddTariff(billing.Tariff{ID: "day", RateType: "day", EffectiveFrom: jan2026.Start, Rate: 1})
	store.AddReading(billing.Reading{MeterID: "m1", Period: jan2026, Value: 1})
	store.AddReading(billing.Reading{MeterID: "m1", Period: jan2026.Previous(), Value: 2})
	store.AddAdjustment(billing.ManualAdjustment{MeterID: "m1", Period: jan2026, Amount: 0.5})

	all := store.AllFacts()
	require.Len(t, all, 2)
	assert.Equal(t, "t1", all[0].Tenant.ID)
	assert.Len(t, all[0].Readings, 2)
	assert.Len(t, all[0].Adjustments, 1)
	assert.Len(t, all[0].Tariffs, 1)
	assert.Empty(t, all[1].Meters)
}
