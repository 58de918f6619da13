package account

import (
	"strings"
	"testing"

	"github.com/openbilling/backend/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCustomer(t *testing.T) {
	t.Run("creates customer with valid fields", func(t *testing.T) {
		customer, err := NewCustomer("acct_123", "Jane@Example.com", "Jane Doe", true)
		require.NoError(t, err)

		assert.Equal(t, "acct_123", customer.ExternalID)
		assert.Equal(t, "jane@example.com", customer.Email)
		assert.True(t, customer.Livemode)
		assert.False(t, customer.IsDeleted())
		assert.Equal(t, 1, customer.Version)

		events := customer.GetDomainEvents()
		require.Len(t, events, 1)
		assert.Equal(t, EventTypeCustomerCreated, events[0].EventType())
	})

	t.Run("rejects empty external id", func(t *testing.T) {
		_, err := NewCustomer("", "jane@example.com", "Jane", false)
		require.Error(t, err)
		var domainErr *shared.DomainError
		require.ErrorAs(t, err, &domainErr)
		assert.Equal(t, "INVALID_EXTERNAL_ID", domainErr.Code)
	})

	t.Run("rejects invalid email", func(t *testing.T) {
		_, err := NewCustomer("acct_123", "not-an-email", "Jane", false)
		assert.Error(t, err)
	})

	t.Run("rejects overlong name", func(t *testing.T) {
		_, err := NewCustomer("acct_123", "jane@example.com", strings.Repeat("x", 201), false)
		assert.Error(t, err)
	})
}

func TestCustomerUpdate(t *testing.T) {
	customer, _ := NewCustomer("acct_123", "old@example.com", "Old Name", false)
	customer.ClearDomainEvents()

	t.Run("updates fields and bumps version", func(t *testing.T) {
		err := customer.Update("new@example.com", "New Name", "+1 555 0100")
		require.NoError(t, err)
		assert.Equal(t, "new@example.com", customer.Email)
		assert.Equal(t, "New Name", customer.Name)
		assert.Equal(t, 2, customer.Version)
		require.Len(t, customer.GetDomainEvents(), 1)
	})

	t.Run("rejects invalid phone", func(t *testing.T) {
		err := customer.Update("new@example.com", "New Name", "not a phone!")
		assert.Error(t, err)
	})

	t.Run("rejects update on deleted customer", func(t *testing.T) {
		require.NoError(t, customer.MarkDeleted())
		err := customer.Update("x@example.com", "X", "")
		assert.Error(t, err)
	})
}

func TestCustomerProviderIDs(t *testing.T) {
	customer, _ := NewCustomer("acct_123", "", "", false)

	require.NoError(t, customer.SetProviderID("stripe", "cus_abc"))

	id, ok := customer.ProviderID("stripe")
	assert.True(t, ok)
	assert.Equal(t, "cus_abc", id)

	_, ok = customer.ProviderID("paypal")
	assert.False(t, ok)

	assert.Error(t, customer.SetProviderID("", "cus_abc"))
	assert.Error(t, customer.SetProviderID("stripe", ""))
}

func TestCustomerTags(t *testing.T) {
	customer, _ := NewCustomer("acct_123", "", "", false)

	customer.AddTag("beta")
	customer.AddTag("beta") // deduplicated
	customer.AddTag("enterprise")

	assert.Len(t, customer.Tags, 2)
	assert.True(t, customer.HasTag("beta"))
	assert.False(t, customer.HasTag("vip"))
}

func TestCustomerMarkDeleted(t *testing.T) {
	customer, _ := NewCustomer("acct_123", "", "", false)
	customer.ClearDomainEvents()

	require.NoError(t, customer.MarkDeleted())
	assert.True(t, customer.IsDeleted())
	assert.NotNil(t, customer.DeletedAt)

	events := customer.GetDomainEvents()
	require.Len(t, events, 1)
	assert.Equal(t, EventTypeCustomerDeleted, events[0].EventType())

	// Soft delete is idempotent at the storage layer but not the domain layer
	assert.Error(t, customer.MarkDeleted())
}
