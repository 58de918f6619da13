package catalog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openbilling/backend/internal/domain/entitlement"
	"github.com/openbilling/backend/internal/domain/shared/valueobject"
)

func TestNewPlan(t *testing.T) {
	t.Run("creates version 1 with valid input", func(t *testing.T) {
		plan, err := NewPlan("pro-monthly", "Pro Monthly", 2900, valueobject.USD, IntervalMonth)

		require.NoError(t, err)
		assert.Equal(t, "pro-monthly", plan.Code)
		assert.Equal(t, 1, plan.PlanVersion)
		assert.Equal(t, int64(2900), plan.AmountMinor)
		assert.Equal(t, IntervalMonth, plan.Interval)
		assert.True(t, plan.Active)
		assert.False(t, plan.HasTrial())
	})

	t.Run("lowercases the code", func(t *testing.T) {
		plan, err := NewPlan("PRO-Monthly", "Pro Monthly", 2900, valueobject.USD, IntervalMonth)

		require.NoError(t, err)
		assert.Equal(t, "pro-monthly", plan.Code)
	})

	t.Run("allows a free plan", func(t *testing.T) {
		plan, err := NewPlan("free", "Free", 0, valueobject.USD, IntervalMonth)

		require.NoError(t, err)
		assert.Equal(t, int64(0), plan.AmountMinor)
	})

	t.Run("rejects invalid input", func(t *testing.T) {
		cases := []struct {
			name     string
			code     string
			plname   string
			amount   int64
			currency valueobject.Currency
			interval BillingInterval
		}{
			{"empty code", "", "Pro", 2900, valueobject.USD, IntervalMonth},
			{"code with spaces", "pro plan", "Pro", 2900, valueobject.USD, IntervalMonth},
			{"empty name", "pro", "", 2900, valueobject.USD, IntervalMonth},
			{"negative amount", "pro", "Pro", -1, valueobject.USD, IntervalMonth},
			{"empty currency", "pro", "Pro", 2900, "", IntervalMonth},
			{"bad interval", "pro", "Pro", 2900, valueobject.USD, BillingInterval("quarterly")},
		}

		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				_, err := NewPlan(tc.code, tc.plname, tc.amount, tc.currency, tc.interval)
				assert.Error(t, err)
			})
		}
	})
}

func TestPlanRevise(t *testing.T) {
	t.Run("creates next version and keeps original untouched", func(t *testing.T) {
		v1, err := NewPlan("pro", "Pro", 2900, valueobject.USD, IntervalMonth)
		require.NoError(t, err)
		v1.WithTrialDays(14).
			WithEntitlements("api_access").
			WithLimits(LimitDefinition{Key: "api_calls", Cap: 1000, ResetPeriod: entitlement.ResetPeriodMonthly})

		v2, err := v1.Revise("Pro", 3900, valueobject.USD, IntervalMonth)

		require.NoError(t, err)
		assert.Equal(t, 2, v2.PlanVersion)
		assert.Equal(t, int64(3900), v2.AmountMinor)
		assert.Equal(t, v1.Code, v2.Code)
		assert.NotEqual(t, v1.ID, v2.ID)

		// carried forward
		assert.Equal(t, 14, v2.TrialDays)
		assert.Equal(t, []string{"api_access"}, v2.EntitlementKeys)
		require.Len(t, v2.LimitDefs, 1)
		assert.Equal(t, "api_calls", v2.LimitDefs[0].Key)

		// v1 unchanged
		assert.Equal(t, 1, v1.PlanVersion)
		assert.Equal(t, int64(2900), v1.AmountMinor)
	})

	t.Run("revision copies do not alias the original slices", func(t *testing.T) {
		v1, err := NewPlan("pro", "Pro", 2900, valueobject.USD, IntervalMonth)
		require.NoError(t, err)
		v1.WithEntitlements("api_access")

		v2, err := v1.Revise("Pro", 3900, valueobject.USD, IntervalMonth)
		require.NoError(t, err)

		v2.EntitlementKeys[0] = "changed"
		assert.Equal(t, "api_access", v1.EntitlementKeys[0])
	})
}

func TestPlanPeriodEnd(t *testing.T) {
	start := time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		interval BillingInterval
		want     time.Time
	}{
		{IntervalDay, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)},
		{IntervalWeek, time.Date(2026, 2, 7, 0, 0, 0, 0, time.UTC)},
		{IntervalMonth, time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC)}, // Jan 31 + 1 month normalizes
		{IntervalYear, time.Date(2027, 1, 31, 0, 0, 0, 0, time.UTC)},
	}

	for _, tc := range cases {
		t.Run(string(tc.interval), func(t *testing.T) {
			plan, err := NewPlan("p", "P", 1000, valueobject.USD, tc.interval)
			require.NoError(t, err)
			assert.Equal(t, tc.want, plan.PeriodEnd(start))
		})
	}
}

func TestPlanDeactivate(t *testing.T) {
	plan, err := NewPlan("pro", "Pro", 2900, valueobject.USD, IntervalMonth)
	require.NoError(t, err)

	plan.Deactivate()

	assert.False(t, plan.Active)
	assert.Equal(t, 2, plan.GetVersion())
}

func TestPlanAmount(t *testing.T) {
	plan, err := NewPlan("pro", "Pro", 2950, valueobject.USD, IntervalMonth)
	require.NoError(t, err)

	assert.Equal(t, int64(2950), plan.Amount().MinorUnits())
	assert.Equal(t, valueobject.USD, plan.Amount().Currency())
}
