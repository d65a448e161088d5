package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	billing "utility-billing/internal/billing/domain"
)

func TestResolvePeriod(t *testing.T) {
	now := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)

	p, err := resolvePeriod("", now)
	require.NoError(t, err)
	assert.Equal(t, billing.MonthPeriod(2026, time.February), p)

	p, err = resolvePeriod("2025-11", now)
	require.NoError(t, err)
	assert.Equal(t, billing.MonthPeriod(2025, time.November), p)

	_, err = resolvePeriod("November", now)
	assert.Error(t, err)
}

func TestSplitTenants(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, splitTenants(" a, ,b "))
	assert.Nil(t, splitTenants(""))
}
