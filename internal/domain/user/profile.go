package user

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

type SubscriptionStatus string

const (
	SubscriptionNone     SubscriptionStatus = "none"
	SubscriptionTrialing SubscriptionStatus = "trialing"
	SubscriptionActive   SubscriptionStatus = "active"
	SubscriptionPastDue  SubscriptionStatus = "past_due"
	SubscriptionCanceled SubscriptionStatus = "canceled"
)

// HasAccess reports whether the subscription unlocks paid pages.
func (s SubscriptionStatus) HasAccess() bool {
	return s == SubscriptionActive || s == SubscriptionTrialing
}

// Profile is the closed shape of a user's profile row.
type Profile struct {
	UserID             string             `validate:"required"`
	Email              string             `validate:"required,email"`
	FullName           string             `validate:"max=200"`
	IsAdmin            bool
	SubscriptionStatus SubscriptionStatus `validate:"required,oneof=none trialing active past_due canceled"`
}

var profileValidator = validator.New(validator.WithRequiredStructEnabled())

// Validate rejects profiles that do not match the closed shape.
func (p *Profile) Validate() error {
	if err := profileValidator.Struct(p); err != nil {
		return fmt.Errorf("invalid profile for user %s: %w", p.UserID, err)
	}
	return nil
}

// NewProfile returns the default profile created alongside a user.
func NewProfile(u *User) *Profile {
	return &Profile{
		UserID:             u.ID,
		Email:              u.Email,
		SubscriptionStatus: SubscriptionNone,
	}
}
