package entity

import (
	"database/sql"
	"time"
)

type PaymentStatus string

const (
	Pending   PaymentStatus = "pending"
	Completed PaymentStatus = "completed"
	Failed    PaymentStatus = "failed"
	Skipped   PaymentStatus = "skipped"
)

// ValidPaymentStatuses is a set of valid payment status names
var ValidPaymentStatuses = map[PaymentStatus]bool{
	Pending:   true,
	Completed: true,
	Failed:    true,
	Skipped:   true,
}

type WaitlistEntryInsert struct {
	Email            string         `db:"email" valid:"required,email"`
	FirstName        string         `db:"first_name" valid:"required"`
	PaymentStatus    PaymentStatus  `db:"payment_status"`
	StripeSessionId  sql.NullString `db:"stripe_session_id"`
	StripeCustomerId sql.NullString `db:"stripe_customer_id"`
}

// WaitlistEntry represents the waitlist_entry table
type WaitlistEntry struct {
	Id                  int            `db:"id"`
	UUID                string         `db:"uuid"`
	QueuePosition       int            `db:"queue_position"`
	ReferralCode        sql.NullString `db:"referral_code"`
	IsVip               bool           `db:"is_vip"`
	SuccessfulReferrals int            `db:"successful_referrals"`
	BoardingPassSentAt  sql.NullTime   `db:"boarding_pass_sent_at"`
	CreatedAt           time.Time      `db:"created_at"`
	UpdatedAt           time.Time      `db:"updated_at"`
	WaitlistEntryInsert
}

// SignupState is what every signup path returns to the caller, both on first
// submission and on idempotent resubmission of the same email.
type SignupState struct {
	QueuePosition       int    `json:"queuePosition"`
	ReferralCode        string `json:"referralCode"`
	IsVip               bool   `json:"isVip"`
	SuccessfulReferrals int    `json:"successfulReferrals"`
}

func (e *WaitlistEntry) SignupState() SignupState {
	return SignupState{
		QueuePosition:       e.QueuePosition,
		ReferralCode:        e.ReferralCode.String,
		IsVip:               e.IsVip,
		SuccessfulReferrals: e.SuccessfulReferrals,
	}
}
