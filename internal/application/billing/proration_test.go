package billing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openbilling/backend/internal/domain/catalog"
	"github.com/openbilling/backend/internal/domain/shared"
	"github.com/openbilling/backend/internal/domain/shared/valueobject"
)

func prorationPlans(t *testing.T, oldAmount, newAmount int64) (*catalog.Plan, *catalog.Plan) {
	t.Helper()
	oldPlan, err := catalog.NewPlan("basic", "Basic", oldAmount, valueobject.USD, catalog.IntervalMonth)
	require.NoError(t, err)
	newPlan, err := catalog.NewPlan("pro", "Pro", newAmount, valueobject.USD, catalog.IntervalMonth)
	require.NoError(t, err)
	return oldPlan, newPlan
}

func TestComputeProration(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC) // 30 days

	t.Run("midpoint change credits and charges half", func(t *testing.T) {
		oldPlan, newPlan := prorationPlans(t, 1000, 3000)
		changeAt := start.AddDate(0, 0, 15)

		res, err := ComputeProration(oldPlan, newPlan, start, end, changeAt, ProrationCreateProrations)

		require.NoError(t, err)
		assert.Equal(t, int64(500), res.CreditMinor)
		assert.Equal(t, int64(1500), res.ChargeMinor)
		assert.Equal(t, int64(1000), res.NetMinor)
		assert.False(t, res.InvoiceNow)
	})

	t.Run("change at period start is full charge, zero credit", func(t *testing.T) {
		oldPlan, newPlan := prorationPlans(t, 1000, 3000)

		res, err := ComputeProration(oldPlan, newPlan, start, end, start, ProrationCreateProrations)

		require.NoError(t, err)
		assert.Equal(t, int64(0), res.CreditMinor)
		assert.Equal(t, int64(3000), res.ChargeMinor)
		assert.Equal(t, int64(3000), res.NetMinor)
	})

	t.Run("change at period end is a no-op", func(t *testing.T) {
		oldPlan, newPlan := prorationPlans(t, 1000, 3000)

		res, err := ComputeProration(oldPlan, newPlan, start, end, end, ProrationCreateProrations)

		require.NoError(t, err)
		assert.Equal(t, int64(0), res.CreditMinor)
		assert.Equal(t, int64(0), res.ChargeMinor)
		assert.Equal(t, int64(0), res.NetMinor)
	})

	t.Run("downgrade yields a negative net", func(t *testing.T) {
		oldPlan, newPlan := prorationPlans(t, 3000, 1000)
		changeAt := start.AddDate(0, 0, 15)

		res, err := ComputeProration(oldPlan, newPlan, start, end, changeAt, ProrationCreateProrations)

		require.NoError(t, err)
		assert.Equal(t, int64(1500), res.CreditMinor)
		assert.Equal(t, int64(500), res.ChargeMinor)
		assert.Equal(t, int64(-1000), res.NetMinor)
	})

	t.Run("rounds half up at the output only", func(t *testing.T) {
		// 10 of 30 days remain: ratio 1/3; 1000 * 1/3 = 333.33 -> 333,
		// 2500 * 1/3 = 833.33 -> 833
		oldPlan, newPlan := prorationPlans(t, 1000, 2500)
		changeAt := start.AddDate(0, 0, 20)

		res, err := ComputeProration(oldPlan, newPlan, start, end, changeAt, ProrationCreateProrations)

		require.NoError(t, err)
		assert.Equal(t, int64(333), res.CreditMinor)
		assert.Equal(t, int64(833), res.ChargeMinor)
		assert.Equal(t, int64(500), res.NetMinor)
	})

	t.Run("behavior none skips amounts entirely", func(t *testing.T) {
		oldPlan, newPlan := prorationPlans(t, 1000, 3000)
		changeAt := start.AddDate(0, 0, 15)

		res, err := ComputeProration(oldPlan, newPlan, start, end, changeAt, ProrationNone)

		require.NoError(t, err)
		assert.Equal(t, ProrationResult{}, res)
	})

	t.Run("behavior always_invoice flags immediate settlement", func(t *testing.T) {
		oldPlan, newPlan := prorationPlans(t, 1000, 3000)
		changeAt := start.AddDate(0, 0, 15)

		res, err := ComputeProration(oldPlan, newPlan, start, end, changeAt, ProrationAlwaysInvoice)

		require.NoError(t, err)
		assert.True(t, res.InvoiceNow)
		assert.Equal(t, int64(1000), res.NetMinor)
	})

	t.Run("invalid inputs", func(t *testing.T) {
		oldPlan, newPlan := prorationPlans(t, 1000, 3000)

		_, err := ComputeProration(oldPlan, newPlan, end, start, start, ProrationCreateProrations)
		assert.ErrorIs(t, err, shared.ErrInvalidPeriod)

		_, err = ComputeProration(oldPlan, newPlan, start, start, start, ProrationCreateProrations)
		assert.ErrorIs(t, err, shared.ErrInvalidPeriod)

		_, err = ComputeProration(oldPlan, newPlan, start, end, start.AddDate(0, 0, -1), ProrationCreateProrations)
		assert.ErrorIs(t, err, shared.ErrInvalidPeriod)

		_, err = ComputeProration(oldPlan, newPlan, start, end, end.AddDate(0, 0, 1), ProrationCreateProrations)
		assert.ErrorIs(t, err, shared.ErrInvalidPeriod)

		_, err = ComputeProration(nil, newPlan, start, end, start, ProrationCreateProrations)
		assert.Error(t, err)

		_, err = ComputeProration(oldPlan, newPlan, start, end, start, ProrationBehavior("bogus"))
		assert.Error(t, err)
	})
}

func TestComputeProrationDoesNotCompoundRounding(t *testing.T) {
	// a 7-day window in minor units that does not divide evenly
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 7)
	oldPlan, newPlan := prorationPlans(t, 999, 999)

	for day := 1; day < 7; day++ {
		changeAt := start.AddDate(0, 0, day)
		res, err := ComputeProration(oldPlan, newPlan, start, end, changeAt, ProrationCreateProrations)
		require.NoError(t, err)
		// same plan both sides: rounding applies identically to both amounts
		assert.Equal(t, int64(0), res.NetMinor, "day %d", day)
	}
}
