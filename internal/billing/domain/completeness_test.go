package billing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckCompleteness_ListsEverything(t *testing.T) {
	facts := Facts{
		Tenant: Tenant{ID: "t1"},
		Meters: []Meter{
			{ID: "main", TenantID: "t1", Name: "Main", RateType: "day"},
			{ID: "sub", TenantID: "t1", Name: "Sub", RateType: "unpriced", ParentID: "main"},
			{ID: "pump", TenantID: "t1", Name: "Pump", RateType: "water"},
		},
		Tariffs:  []Tariff{flatTariff("day", 5)},
		Readings: []Reading{reading("main", 10)},
	}

	issues := CheckCompleteness(facts, jan2026)
	require.Len(t, issues, 3)
	assert.Equal(t, Issue{Kind: IssueMissingReading, MeterID: "sub", MeterName: "Sub", Message: "no reading for Sub in 2026-01"}, issues[0])
	assert.Equal(t, IssueMissingReading, issues[1].Kind)
	assert.Equal(t, "pump", issues[1].MeterID)
	assert.Equal(t, IssueMissingTariff, issues[2].Kind)
	assert.Equal(t, "pump", issues[2].MeterID)
}

func TestCheckCompleteness_CompleteFacts(t *testing.T) {
	facts := Facts{
		Tenant:   Tenant{ID: "t1"},
		Meters:   []Meter{{ID: "m", TenantID: "t1", RateType: "day"}},
		Tariffs:  []Tariff{flatTariff("day", 5)},
		Readings: []Reading{reading("m", 10)},
	}
	assert.Empty(t, CheckCompleteness(facts, jan2026))
}

func TestCheckCompleteness_InvalidSetup(t *testing.T) {
	facts := Facts{Meters: []Meter{{ID: "a", TenantID: "t1", ParentID: "a"}}}
	issues := CheckCompleteness(facts, jan2026)
	require.Len(t, issues, 1)
	assert.Equal(t, IssueInvalidSetup, issues[0].Kind)
}

func TestCheckCompleteness_WarnsAboutOverlappingTariffs(t *testing.T) {
	facts := Facts{
		Tenant: Tenant{ID: "t1"},
		Meters: []Meter{{ID: "m", TenantID: "t1", RateType: "day"}},
		Tariffs: []Tariff{
			{ID: "old", RateType: "day", EffectiveFrom: date(2024, 1, 1), Rate: 3},
			{ID: "newer", RateType: "day", EffectiveFrom: date(2025, 6, 1), Rate: 4},
		},
		Readings: []Reading{reading("m", 10)},
	}

	issues := CheckCompleteness(facts, jan2026)
	require.Len(t, issues, 1)
	assert.Equal(t, IssueTariffOverlap, issues[0].Kind)
	assert.Equal(t, `tariffs old and newer of rate type "day" overlap`, issues[0].Message)
	assert.False(t, issues[0].Blocking())

	_, err := ComputeInvoice(facts, jan2026)
	assert.NoError(t, err)
}

func TestIssue_Blocking(t *testing.T) {
	assert.True(t, Issue{Kind: IssueMissingReading}.Blocking())
	assert.True(t, Issue{Kind: IssueMissingTariff}.Blocking())
	assert.True(t, Issue{Kind: IssueInvalidSetup}.Blocking())
}
