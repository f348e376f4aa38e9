package user

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewUser(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	u, err := NewUser("  Pilot@SkyGuide.App ", "", now)
	require.NoError(t, err)
	assert.Equal(t, "pilot@skyguide.app", u.Email)
	assert.Equal(t, ProviderEmail, u.Provider)
	assert.NotEmpty(t, u.ID)
	assert.False(t, u.HasPassword())

	_, err = NewUser("not-an-email", ProviderGoogle, now)
	assert.Error(t, err)
}

func TestProfile_Validate(t *testing.T) {
	valid := Profile{UserID: "u1", Email: "fa@skyguide.app", SubscriptionStatus: SubscriptionActive}
	assert.NoError(t, valid.Validate())

	tests := []struct {
		name    string
		profile Profile
	}{
		{"missing user", Profile{Email: "fa@skyguide.app", SubscriptionStatus: SubscriptionNone}},
		{"bad email", Profile{UserID: "u1", Email: "nope", SubscriptionStatus: SubscriptionNone}},
		{"unknown subscription", Profile{UserID: "u1", Email: "fa@skyguide.app", SubscriptionStatus: "gold"}},
		{"empty subscription", Profile{UserID: "u1", Email: "fa@skyguide.app"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.profile.Validate())
		})
	}
}

func TestSubscriptionStatus_HasAccess(t *testing.T) {
	assert.True(t, SubscriptionActive.HasAccess())
	assert.True(t, SubscriptionTrialing.HasAccess())
	assert.False(t, SubscriptionPastDue.HasAccess())
	assert.False(t, SubscriptionNone.HasAccess())
}
