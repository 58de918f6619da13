package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/openbilling/backend/internal/domain/billing"
	"github.com/openbilling/backend/internal/domain/shared"
	"github.com/openbilling/backend/internal/infrastructure/persistence/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupSubscriptionTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	err = db.AutoMigrate(&models.SubscriptionModel{})
	require.NoError(t, err)

	return db
}

func newTestSubscription(t *testing.T) *billing.Subscription {
	t.Helper()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)
	sub, err := billing.NewSubscription(uuid.New(), uuid.New(), start, end, nil, true)
	require.NoError(t, err)
	sub.SetProviderSubscriptionID("stripe", "sub_1")
	return sub
}

func TestGormSubscriptionRepository_SaveAndFind(t *testing.T) {
	db := setupSubscriptionTestDB(t)
	repo := NewGormSubscriptionRepository(db)
	ctx := context.Background()

	t.Run("creates and reads back a subscription", func(t *testing.T) {
		sub := newTestSubscription(t)
		require.NoError(t, sub.AdvanceSequence(1))

		require.NoError(t, repo.Save(ctx, sub))

		found, err := repo.FindByID(ctx, sub.ID)
		require.NoError(t, err)
		assert.Equal(t, sub.ID, found.ID)
		assert.Equal(t, billing.SubscriptionActive, found.Status)
		assert.Equal(t, int64(1), found.LastSequence)

		byProvider, err := repo.FindByProviderSubscriptionID(ctx, "stripe", "sub_1")
		require.NoError(t, err)
		assert.Equal(t, sub.ID, byProvider.ID)
	})

	t.Run("missing subscription surfaces not found", func(t *testing.T) {
		_, err := repo.FindByID(ctx, uuid.New())
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})
}

func TestGormSubscriptionRepository_ConditionalSave(t *testing.T) {
	db := setupSubscriptionTestDB(t)
	repo := NewGormSubscriptionRepository(db)
	ctx := context.Background()

	sub := newTestSubscription(t)
	require.NoError(t, sub.AdvanceSequence(1))
	require.NoError(t, repo.Save(ctx, sub))

	t.Run("newer sequence lands", func(t *testing.T) {
		fresh, err := repo.FindByID(ctx, sub.ID)
		require.NoError(t, err)
		require.NoError(t, fresh.AdvanceSequence(3))

		require.NoError(t, repo.Save(ctx, fresh))

		found, err := repo.FindByID(ctx, sub.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(3), found.LastSequence)
	})

	t.Run("write from a stale snapshot conflicts", func(t *testing.T) {
		// This snapshot still carries sequence 1 while storage is at 3
		stale := *sub

		err := repo.Save(ctx, &stale)
		assert.ErrorIs(t, err, shared.ErrStorageConflict)

		found, err := repo.FindByID(ctx, sub.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(3), found.LastSequence)
	})

	t.Run("concurrent applies of the same sequence admit only one", func(t *testing.T) {
		// Two reconcilers load the row at sequence 3 and both derive
		// sequence 5 for their event. The second write must conflict
		// instead of silently reapplying.
		first, err := repo.FindByID(ctx, sub.ID)
		require.NoError(t, err)
		second, err := repo.FindByID(ctx, sub.ID)
		require.NoError(t, err)

		require.NoError(t, first.AdvanceSequence(5))
		require.NoError(t, repo.Save(ctx, first))

		require.NoError(t, second.AdvanceSequence(5))
		err = repo.Save(ctx, second)
		assert.ErrorIs(t, err, shared.ErrStorageConflict)

		found, err := repo.FindByID(ctx, sub.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(5), found.LastSequence)
	})

	t.Run("expiry save without a sequence advance lands ungated", func(t *testing.T) {
		// Cancel-at-period-end expiry mutates state without a new provider event
		current, err := repo.FindByID(ctx, sub.ID)
		require.NoError(t, err)
		require.NoError(t, current.RequestCancelAtPeriodEnd())

		require.NoError(t, repo.Save(ctx, current))

		found, err := repo.FindByID(ctx, sub.ID)
		require.NoError(t, err)
		assert.True(t, found.CancelAtPeriodEnd)
		assert.Equal(t, int64(5), found.LastSequence)
	})
}
