package billing

import (
	"errors"
	"math"
	"math/rand"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var jan2026 = MonthPeriod(2026, time.January)

func flatTariff(rateType string, rate float64) Tariff {
	return Tariff{ID: rateType + "-tariff", RateType: rateType, EffectiveFrom: date(2020, 1, 1), Rate: rate}
}

func reading(meterID string, value float64) Reading {
	return Reading{MeterID: meterID, Period: jan2026, Value: value}
}

func TestAllocate_ParentWithTwoChildren(t *testing.T) {
	facts := Facts{
		Tenant: Tenant{ID: "t1", Name: "Acme"},
		Meters: []Meter{
			{ID: "main", TenantID: "t1", Name: "Main", RateType: "day"},
			{ID: "c1", TenantID: "t1", Name: "Child 1", RateType: "day", ParentID: "main"},
			{ID: "c2", TenantID: "t1", Name: "Child 2", RateType: "day", ParentID: "main"},
		},
		Tariffs:  []Tariff{flatTariff("day", 5.0)},
		Readings: []Reading{reading("main", 500), reading("c1", 120), reading("c2", 80)},
	}

	alloc, err := Allocate(facts, jan2026)
	require.NoError(t, err)
	require.Len(t, alloc.Items, 1)
	item := alloc.Items[0]
	assert.Equal(t, "main", item.MeterID)
	assert.InDelta(t, 300.0, item.Consumption, 1e-9)
	assert.InDelta(t, 1500.0, item.Cost, 1e-9)
	assert.InDelta(t, 200.0, item.ChildDeductions, 1e-9)

	childNotes := 0
	for _, d := range alloc.Deductions {
		if c, ok := d.(ChildDeduction); ok {
			childNotes++
			assert.Equal(t, "main", c.ParentMeterID)
		}
	}
	assert.Equal(t, 2, childNotes)
	assert.Equal(t, []Subtotal{{RateType: "day", Amount: 1500}}, alloc.Subtotals)
}

func TestAllocate_ManualAdjustment(t *testing.T) {
	facts := Facts{
		Tenant:      Tenant{ID: "t1"},
		Meters:      []Meter{{ID: "m", TenantID: "t1", RateType: "flat"}},
		Tariffs:     []Tariff{flatTariff("flat", 3.5)},
		Readings:    []Reading{reading("m", 100)},
		Adjustments: []ManualAdjustment{{MeterID: "m", Period: jan2026, Amount: 20}},
	}

	alloc, err := Allocate(facts, jan2026)
	require.NoError(t, err)
	require.Len(t, alloc.Items, 1)
	assert.InDelta(t, 80.0, alloc.Items[0].Consumption, 1e-9)
	assert.InDelta(t, 280.0, alloc.Items[0].Cost, 1e-9)
	assert.InDelta(t, 20.0, alloc.Items[0].ManualAdjustment, 1e-9)
}

func TestAllocate_AdjustmentsOfOtherPeriodsIgnoredAndSameMeterSummed(t *testing.T) {
	facts := Facts{
		Tenant:  Tenant{ID: "t1"},
		Meters:  []Meter{{ID: "m", TenantID: "t1", RateType: "flat"}},
		Tariffs: []Tariff{flatTariff("flat", 1)},
		Readings: []Reading{
			reading("m", 100),
			{MeterID: "m", Period: jan2026.Previous(), Value: 999},
		},
		Adjustments: []ManualAdjustment{
			{MeterID: "m", Period: jan2026, Amount: 5},
			{MeterID: "m", Period: jan2026, Amount: 7},
			{MeterID: "m", Period: jan2026.Previous(), Amount: 50},
		},
	}

	alloc, err := Allocate(facts, jan2026)
	require.NoError(t, err)
	assert.InDelta(t, 88.0, alloc.Items[0].Consumption, 1e-9)
}

func TestAllocate_ChildExceedsParentIsClamped(t *testing.T) {
	facts := Facts{
		Tenant: Tenant{ID: "t1"},
		Meters: []Meter{
			{ID: "p", TenantID: "t1", Name: "Parent", RateType: "day"},
			{ID: "c", TenantID: "t1", RateType: "day", ParentID: "p"},
		},
		Tariffs:  []Tariff{flatTariff("day", 5)},
		Readings: []Reading{reading("p", 50), reading("c", 80)},
	}

	alloc, err := Allocate(facts, jan2026)
	require.NoError(t, err)
	require.Len(t, alloc.Items, 1)
	assert.Equal(t, 0.0, alloc.Items[0].Consumption)
	assert.Equal(t, 0.0, alloc.Items[0].Cost)
	assert.True(t, alloc.Items[0].Clamped)
	require.Len(t, alloc.Anomalies, 1)
	assert.Equal(t, "p", alloc.Anomalies[0].MeterID)
	assert.InDelta(t, 30.0, alloc.Anomalies[0].Shortfall, 1e-9)
}

func TestAllocate_MissingReadingFails(t *testing.T) {
	facts := Facts{
		Tenant: Tenant{ID: "t1"},
		Meters: []Meter{
			{ID: "ok", TenantID: "t1", RateType: "day"},
			{ID: "gap", TenantID: "t1", Name: "Warehouse", RateType: "day"},
		},
		Tariffs:  []Tariff{flatTariff("day", 5)},
		Readings: []Reading{reading("ok", 10)},
	}

	_, err := ComputeInvoice(facts, jan2026)
	var missing *MissingReadingError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, "gap", missing.MeterID)
	assert.Contains(t, err.Error(), "Warehouse")
}

func TestAllocate_MissingTariffFails(t *testing.T) {
	facts := Facts{
		Tenant:   Tenant{ID: "t1"},
		Meters:   []Meter{{ID: "m", TenantID: "t1", RateType: "night"}},
		Tariffs:  []Tariff{flatTariff("day", 5)},
		Readings: []Reading{reading("m", 10)},
	}

	_, err := Allocate(facts, jan2026)
	var notFound *TariffNotFoundError
	require.True(t, errors.As(err, &notFound))
	assert.Equal(t, "m", notFound.MeterID)
}

func TestAllocate_DuplicateReadingFails(t *testing.T) {
	facts := Facts{
		Tenant:   Tenant{ID: "t1"},
		Meters:   []Meter{{ID: "m", TenantID: "t1", RateType: "day"}},
		Tariffs:  []Tariff{flatTariff("day", 5)},
		Readings: []Reading{reading("m", 10), reading("m", 11)},
	}

	_, err := Allocate(facts, jan2026)
	assert.ErrorIs(t, err, ErrDuplicateReading)
}

func TestAllocate_IndependentlyBilledChildHasDualRole(t *testing.T) {
	facts := Facts{
		Tenant: Tenant{ID: "t1"},
		Meters: []Meter{
			{ID: "main", TenantID: "t1", RateType: "day"},
			{ID: "tenant-shop", TenantID: "t1", RateType: "shop", ParentID: "main", BilledIndependently: true},
			{ID: "hidden", TenantID: "t1", RateType: "day", ParentID: "main"},
		},
		Tariffs:     []Tariff{flatTariff("day", 2), flatTariff("shop", 3)},
		Readings:    []Reading{reading("main", 1000), reading("tenant-shop", 100), reading("hidden", 50)},
		Adjustments: []ManualAdjustment{{MeterID: "tenant-shop", Period: jan2026, Amount: 10}},
	}

	alloc, err := Allocate(facts, jan2026)
	require.NoError(t, err)
	require.Len(t, alloc.Items, 2)

	assert.Equal(t, "main", alloc.Items[0].MeterID)
	assert.InDelta(t, 850.0, alloc.Items[0].Consumption, 1e-9)
	assert.InDelta(t, 1700.0, alloc.Items[0].Cost, 1e-9)

	assert.Equal(t, "tenant-shop", alloc.Items[1].MeterID)
	assert.InDelta(t, 90.0, alloc.Items[1].Consumption, 1e-9)
	assert.InDelta(t, 270.0, alloc.Items[1].Cost, 1e-9)

	assert.Equal(t, []Subtotal{{RateType: "day", Amount: 1700}, {RateType: "shop", Amount: 270}}, alloc.Subtotals)
}

func TestAllocate_SubtotalsInFirstSeenOrder(t *testing.T) {
	facts := Facts{
		Tenant: Tenant{ID: "t1"},
		Meters: []Meter{
			{ID: "m1", TenantID: "t1", RateType: "night"},
			{ID: "m2", TenantID: "t1", RateType: "day"},
			{ID: "m3", TenantID: "t1", RateType: "night"},
		},
		Tariffs:  []Tariff{flatTariff("day", 2), flatTariff("night", 1)},
		Readings: []Reading{reading("m3", 30), reading("m2", 20), reading("m1", 10)},
	}

	alloc, err := Allocate(facts, jan2026)
	require.NoError(t, err)
	assert.Equal(t, []string{"m1", "m2", "m3"}, []string{alloc.Items[0].MeterID, alloc.Items[1].MeterID, alloc.Items[2].MeterID})
	assert.Equal(t, []Subtotal{{RateType: "night", Amount: 40}, {RateType: "day", Amount: 40}}, alloc.Subtotals)
}

func TestAllocate_TariffChosenByPeriod(t *testing.T) {
	facts := Facts{
		Tenant: Tenant{ID: "t1"},
		Meters: []Meter{{ID: "m", TenantID: "t1", RateType: "day"}},
		Tariffs: []Tariff{
			{ID: "2025", RateType: "day", EffectiveFrom: date(2025, 1, 1), EffectiveTo: date(2026, 1, 1), Rate: 4},
			{ID: "2026", RateType: "day", EffectiveFrom: date(2026, 1, 1), Rate: 5},
		},
		Readings: []Reading{
			reading("m", 10),
			{MeterID: "m", Period: MonthPeriod(2025, time.December), Value: 10},
		},
	}

	jan, err := ComputeInvoice(facts, jan2026)
	require.NoError(t, err)
	dec, err := ComputeInvoice(facts, MonthPeriod(2025, time.December))
	require.NoError(t, err)
	assert.InDelta(t, 50.0, jan.Total, 1e-9)
	assert.InDelta(t, 40.0, dec.Total, 1e-9)
}

func TestComputeInvoice_Idempotent(t *testing.T) {
	facts := randomFacts(rand.New(rand.NewSource(7)), "t1", 25)

	first, err := ComputeInvoice(facts, jan2026)
	require.NoError(t, err)
	second, err := ComputeInvoice(facts, jan2026)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, math.Float64bits(first.Total), math.Float64bits(second.Total))
}

func TestComputeInvoice_Properties(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for run := 0; run < 50; run++ {
		facts := randomFacts(rng, "t"+strconv.Itoa(run), 1+rng.Intn(30))
		inv, err := ComputeInvoice(facts, jan2026)
		require.NoError(t, err)

		var itemSum, subtotalSum float64
		billed := map[string]bool{}
		for _, item := range inv.LineItems {
			assert.GreaterOrEqual(t, item.Consumption, 0.0)
			assert.GreaterOrEqual(t, item.Cost, 0.0)
			itemSum += item.Cost
			billed[item.MeterID] = true
		}
		for _, st := range inv.Subtotals {
			subtotalSum += st.Amount
		}
		assert.InDelta(t, itemSum, subtotalSum, 1e-9*math.Max(1, itemSum))
		assert.Equal(t, itemSum, inv.Total)
		assert.Equal(t, inv.Subtotals, DeriveSubtotals(inv.LineItems))

		for _, m := range facts.Meters {
			if m.IsChild() && !m.BilledIndependently {
				assert.False(t, billed[m.ID], "child %s billed on its own", m.ID)
				assert.NotEmpty(t, inv.DeductionsFor(m.ID))
			}
		}
	}
}

// randomFacts builds a forest where every meter has a reading and a tariff.
func randomFacts(rng *rand.Rand, tenantID string, n int) Facts {
	rateTypes := []string{"day", "night", "water"}
	facts := Facts{Tenant: Tenant{ID: tenantID, Name: "Tenant " + tenantID}}
	for i, rt := range rateTypes {
		facts.Tariffs = append(facts.Tariffs, flatTariff(rt, float64(i+1)*1.37))
	}
	for i := 0; i < n; i++ {
		m := Meter{
			ID:       tenantID + "-m" + strconv.Itoa(i),
			TenantID: tenantID,
			RateType: rateTypes[rng.Intn(len(rateTypes))],
		}
		if i > 0 && rng.Intn(2) == 0 {
			m.ParentID = facts.Meters[rng.Intn(i)].ID
			m.BilledIndependently = rng.Intn(4) == 0
		}
		facts.Meters = append(facts.Meters, m)
		facts.Readings = append(facts.Readings, reading(m.ID, rng.Float64()*500))
		if rng.Intn(3) == 0 {
			facts.Adjustments = append(facts.Adjustments, ManualAdjustment{MeterID: m.ID, Period: jan2026, Amount: rng.Float64() * 200})
		}
	}
	return facts
}

func TestComputeInvoice_NaNReadingFails(t *testing.T) {
	facts := Facts{
		Tenant:   Tenant{ID: "t1"},
		Meters:   []Meter{{ID: "m", TenantID: "t1", RateType: "day"}},
		Tariffs:  []Tariff{flatTariff("day", 5)},
		Readings: []Reading{reading("m", math.NaN())},
	}
	_, err := ComputeInvoice(facts, jan2026)
	assert.ErrorIs(t, err, ErrNonFiniteValue)

	facts.Readings = []Reading{reading("m", 10)}
	facts.Tariffs = []Tariff{flatTariff("day", math.Inf(1))}
	_, err = ComputeInvoice(facts, jan2026)
	assert.ErrorIs(t, err, ErrNonFiniteValue)
}
