package billing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/google/uuid"
)

func TestNewProviderEvent(t *testing.T) {
	now := time.Now()
	payload := InvoicePaidPayload{
		ProviderInvoiceID:      "in_123",
		ProviderSubscriptionID: "sub_123",
		AmountMinor:            2900,
		PaidAt:                 now,
	}

	t.Run("derives the type tag from the payload", func(t *testing.T) {
		ev, err := NewProviderEvent("evt_1", "stripe", 1, now, true, payload)

		require.NoError(t, err)
		assert.Equal(t, EventInvoicePaid, ev.Type)
		assert.Equal(t, "sub_123", ev.TargetSubscriptionID())
	})

	t.Run("rejects missing fields", func(t *testing.T) {
		_, err := NewProviderEvent("", "stripe", 1, now, true, payload)
		assert.Error(t, err)

		_, err = NewProviderEvent("evt_1", "", 1, now, true, payload)
		assert.Error(t, err)

		_, err = NewProviderEvent("evt_1", "stripe", 0, now, true, payload)
		assert.Error(t, err)

		_, err = NewProviderEvent("evt_1", "stripe", 1, now, true, nil)
		assert.Error(t, err)
	})
}

func TestProcessedEventLedgerEntry(t *testing.T) {
	now := time.Now()
	ev, err := NewProviderEvent("evt_9", "stripe", 4, now, true,
		SubscriptionCanceledPayload{ProviderSubscriptionID: "sub_9", CanceledAt: now})
	require.NoError(t, err)

	entry, err := NewProcessedEvent(ev, OutcomeApplied, "abc123")
	require.NoError(t, err)
	assert.Equal(t, "evt_9", entry.ProviderEventID)
	assert.Equal(t, EventSubscriptionCanceled, entry.EventType)
	assert.Equal(t, int64(4), entry.Sequence)
	assert.Equal(t, OutcomeApplied, entry.Outcome)
	assert.False(t, entry.ProcessedAt.IsZero())
}

func TestSubscriptionStateHash(t *testing.T) {
	sub := newTestSubscription(t, nil)

	h1 := SubscriptionStateHash(sub)
	assert.NotEmpty(t, h1)
	assert.Equal(t, h1, SubscriptionStateHash(sub))

	require.NoError(t, sub.AdvanceSequence(1))
	assert.NotEqual(t, h1, SubscriptionStateHash(sub))

	assert.Empty(t, SubscriptionStateHash(nil))
}

func TestTargetSubscriptionID(t *testing.T) {
	now := time.Now()
	cases := []struct {
		name    string
		payload EventPayload
		want    string
	}{
		{"created", SubscriptionCreatedPayload{ProviderSubscriptionID: "sub_a"}, "sub_a"},
		{"updated", SubscriptionUpdatedPayload{ProviderSubscriptionID: "sub_b"}, "sub_b"},
		{"canceled", SubscriptionCanceledPayload{ProviderSubscriptionID: "sub_c", CanceledAt: now}, "sub_c"},
		{"payment failed", InvoicePaymentFailedPayload{ProviderSubscriptionID: "sub_d"}, "sub_d"},
		{"retries exhausted", RetriesExhaustedPayload{ProviderSubscriptionID: "sub_e"}, "sub_e"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ev, err := NewProviderEvent(uuid.NewString(), "stripe", 1, now, true, tc.payload)
			require.NoError(t, err)
			assert.Equal(t, tc.want, ev.TargetSubscriptionID())
		})
	}
}
