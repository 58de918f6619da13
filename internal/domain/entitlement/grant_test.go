package entitlement

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewGrant(t *testing.T) {
	customerID := uuid.New()

	t.Run("creates grant", func(t *testing.T) {
		grant, err := NewGrant(customerID, "export_data", GrantSourceSubscription, "sub_1")
		require.NoError(t, err)
		assert.Equal(t, "export_data", grant.Key)
		assert.Equal(t, GrantSourceSubscription, grant.Source)
		assert.Nil(t, grant.ExpiresAt)
	})

	t.Run("rejects nil customer", func(t *testing.T) {
		_, err := NewGrant(uuid.Nil, "export_data", GrantSourceManual, "")
		assert.Error(t, err)
	})

	t.Run("rejects empty key", func(t *testing.T) {
		_, err := NewGrant(customerID, "", GrantSourceManual, "")
		assert.Error(t, err)
	})

	t.Run("rejects unknown source", func(t *testing.T) {
		_, err := NewGrant(customerID, "export_data", GrantSource("bogus"), "")
		assert.Error(t, err)
	})
}

func TestGrantExpiry(t *testing.T) {
	now := time.Now()
	grant, _ := NewGrant(uuid.New(), "export_data", GrantSourceSubscription, "sub_1")

	assert.False(t, grant.IsExpired(now), "grant without expiry never expires")

	grant.WithExpiry(now.Add(-time.Hour))
	assert.True(t, grant.IsExpired(now))

	grant.Renew(now.Add(30 * 24 * time.Hour))
	assert.False(t, grant.IsExpired(now))
}
