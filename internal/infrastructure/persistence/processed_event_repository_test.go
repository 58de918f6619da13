package persistence

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/openbilling/backend/internal/domain/billing"
	"github.com/openbilling/backend/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// newMockProcessedEventRepository creates a repository with a mocked SQL connection
func newMockProcessedEventRepository(t *testing.T) (*GormProcessedEventRepository, sqlmock.Sqlmock, *sql.DB) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	dialector := postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	})

	gormDB, err := gorm.Open(dialector, &gorm.Config{
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)

	return NewGormProcessedEventRepository(gormDB), mock, mockDB
}

func paidLedgerEntry(t *testing.T, eventID string) *billing.ProcessedEvent {
	t.Helper()
	event, err := billing.NewProviderEvent(eventID, "stripe", 3, time.Now(), true, billing.InvoicePaidPayload{
		ProviderInvoiceID:      "in_1",
		ProviderSubscriptionID: "sub_1",
		AmountMinor:            2900,
		Currency:               "USD",
		PaidAt:                 time.Now(),
		PeriodStart:            time.Now(),
		PeriodEnd:              time.Now().AddDate(0, 1, 0),
	})
	require.NoError(t, err)
	entry, err := billing.NewProcessedEvent(event, billing.OutcomeApplied, "abc123")
	require.NoError(t, err)
	return entry
}

func TestGormProcessedEventRepository_Insert(t *testing.T) {
	t.Run("appends new ledger entry", func(t *testing.T) {
		repo, mock, mockDB := newMockProcessedEventRepository(t)
		defer mockDB.Close()

		entry := paidLedgerEntry(t, "evt_1")

		mock.ExpectExec(`INSERT INTO "processed_events" .* ON CONFLICT DO NOTHING`).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.Insert(context.Background(), entry)

		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("duplicate event id surfaces already exists", func(t *testing.T) {
		repo, mock, mockDB := newMockProcessedEventRepository(t)
		defer mockDB.Close()

		entry := paidLedgerEntry(t, "evt_1")

		// ON CONFLICT DO NOTHING reports zero affected rows for the loser
		mock.ExpectExec(`INSERT INTO "processed_events" .* ON CONFLICT DO NOTHING`).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := repo.Insert(context.Background(), entry)

		assert.ErrorIs(t, err, shared.ErrAlreadyExists)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGormProcessedEventRepository_Find(t *testing.T) {
	t.Run("finds recorded entry", func(t *testing.T) {
		repo, mock, mockDB := newMockProcessedEventRepository(t)
		defer mockDB.Close()

		processedAt := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)
		rows := sqlmock.NewRows([]string{"provider_event_id", "provider", "event_type", "sequence", "outcome", "state_hash", "processed_at"}).
			AddRow("evt_1", "stripe", "invoice.paid", int64(3), "applied", "abc123", processedAt)

		mock.ExpectQuery(`SELECT \* FROM "processed_events" WHERE provider_event_id = \$1 .* LIMIT .*`).
			WithArgs("evt_1", 1).
			WillReturnRows(rows)

		entry, err := repo.Find(context.Background(), "evt_1")

		require.NoError(t, err)
		assert.Equal(t, "evt_1", entry.ProviderEventID)
		assert.Equal(t, billing.OutcomeApplied, entry.Outcome)
		assert.Equal(t, int64(3), entry.Sequence)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing entry surfaces not found", func(t *testing.T) {
		repo, mock, mockDB := newMockProcessedEventRepository(t)
		defer mockDB.Close()

		mock.ExpectQuery(`SELECT \* FROM "processed_events" WHERE provider_event_id = \$1 .* LIMIT .*`).
			WithArgs("evt_missing", 1).
			WillReturnError(gorm.ErrRecordNotFound)

		entry, err := repo.Find(context.Background(), "evt_missing")

		assert.Nil(t, entry)
		assert.ErrorIs(t, err, shared.ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
