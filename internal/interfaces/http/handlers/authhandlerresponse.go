package handlers

import (
	"time"

	"github.com/skyguide-inc/skyguide/internal/application/clientstate"
	"github.com/skyguide-inc/skyguide/internal/domain/session"
	"github.com/skyguide-inc/skyguide/internal/domain/user"
)

// AuthResponse is returned by sign-up, login and refresh. Redirect tells the
// browser where to go next.
type AuthResponse struct {
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	ExpiresAt time.Time `json:"expires_at"`
	Redirect  string    `json:"redirect,omitempty"`
}

// MeResponse describes the signed-in client.
type MeResponse struct {
	UserID             string                  `json:"user_id"`
	Email              string                  `json:"email"`
	FullName           string                  `json:"full_name,omitempty"`
	IsAdmin            bool                    `json:"is_admin"`
	SubscriptionStatus user.SubscriptionStatus `json:"subscription_status,omitempty"`
	Flags              FlagsResponse           `json:"flags"`
}

type FlagsResponse struct {
	PaymentInProgress       bool `json:"payment_in_progress"`
	PostPaymentConfirmation bool `json:"post_payment_confirmation"`
	SubscriptionActivated   bool `json:"subscription_activated"`
	RecentlySignedUp        bool `json:"recently_signed_up"`
	IsNewUserSignup         bool `json:"is_new_user_signup"`
}

func toMeResponse(snap clientstate.Snapshot, profile *user.Profile) *MeResponse {
	resp := &MeResponse{
		UserID:  snap.UserID,
		Email:   snap.UserEmail,
		IsAdmin: snap.IsAdmin,
		Flags: FlagsResponse{
			PaymentInProgress:       snap.PaymentInProgress,
			PostPaymentConfirmation: snap.PostPaymentConfirmation,
			SubscriptionActivated:   snap.SubscriptionActivated,
			RecentlySignedUp:        snap.RecentlySignedUp,
			IsNewUserSignup:         snap.IsNewUserSignup,
		},
	}
	if profile != nil {
		resp.FullName = profile.FullName
		resp.SubscriptionStatus = profile.SubscriptionStatus
	}
	return resp
}

// SessionResponse is one active session. The token itself is never exposed.
type SessionResponse struct {
	ID           string    `json:"id"`
	Current      bool      `json:"current"`
	UserAgent    string    `json:"user_agent"`
	Platform     string    `json:"platform"`
	Language     string    `json:"language"`
	IPAddress    string    `json:"ip_address"`
	LastActivity time.Time `json:"last_activity"`
	ExpiresAt    time.Time `json:"expires_at"`
	CreatedAt    time.Time `json:"created_at"`
}

func toSessionResponses(records []*session.Record, currentToken string) []SessionResponse {
	out := make([]SessionResponse, 0, len(records))
	for _, r := range records {
		out = append(out, SessionResponse{
			ID:           r.ID,
			Current:      currentToken != "" && r.MatchesToken(currentToken),
			UserAgent:    r.DeviceInfo.UserAgent,
			Platform:     r.DeviceInfo.Platform,
			Language:     r.DeviceInfo.Language,
			IPAddress:    r.IPAddress,
			LastActivity: r.LastActivity,
			ExpiresAt:    r.ExpiresAt,
			CreatedAt:    r.CreatedAt,
		})
	}
	return out
}
