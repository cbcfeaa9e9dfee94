package dto

import (
	"encoding/base64"
	"fmt"
)

// WaitlistConfirmed is the template data for the boarding pass email sent
// right after a signup is finalized.
type WaitlistConfirmed struct {
	Preheader     string
	FirstName     string
	QueuePosition int
	ReferralCode  string
	ReferralURL   string
	Paid          bool
}

// DripStageData is the template data shared by all drip campaign emails.
// Every drip template is a pure function of this struct.
type DripStageData struct {
	Preheader      string
	FirstName      string
	QueuePosition  int
	ReferralCode   string
	ReferralURL    string
	UnsubscribeURL string
}

// VipPromoted is the template data for the promotion email sent once an entry
// crosses the referral threshold.
type VipPromoted struct {
	Preheader     string
	FirstName     string
	QueuePosition int
}

// NewSignupInternal is the template data for the internal notification sent
// to the team on every finalized signup.
type NewSignupInternal struct {
	Email         string
	FirstName     string
	QueuePosition int
	PaymentStatus string
	ReferredBy    string
}

// ReferralURL builds the public signup link carrying a referral code.
func ReferralURL(baseURL, code string) string {
	if code == "" {
		return baseURL
	}
	return fmt.Sprintf("%s?ref=%s", baseURL, code)
}

// UnsubscribeURL builds the one-click opt-out link embedded in campaign
// emails. The address travels base64-encoded in the path; the URL-safe
// alphabet keeps the encoding inside a single path segment for any address.
func UnsubscribeURL(baseURL, email string) string {
	return fmt.Sprintf("%s/api/waitlist/unsubscribe/%s", baseURL, base64.RawURLEncoding.EncodeToString([]byte(email)))
}
