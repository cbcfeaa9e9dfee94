package entity

import (
	"database/sql"
	"time"
)

// VipReferralThreshold is the number of successful referrals after which an
// entry is promoted to VIP. The flag is monotonic, it is never unset.
const VipReferralThreshold = 3

// ReferralRecord represents the referral_record table. At most one record
// exists per (referrer, referred email) pair.
type ReferralRecord struct {
	Id               int            `db:"id"`
	ReferrerId       int            `db:"referrer_id"`
	ReferredId       sql.NullInt64  `db:"referred_id"`
	ReferredEmail    string         `db:"referred_email"`
	ReferralCodeUsed string         `db:"referral_code_used"`
	NewReferralCode  sql.NullString `db:"new_referral_code"`
	RewardClaimed    bool           `db:"reward_claimed"`
	JoinedAt         time.Time      `db:"joined_at"`
}

// ReferralResult reports the outcome of a referral redemption. Success is
// false for a duplicate redemption, which is a no-op rather than an error.
type ReferralResult struct {
	Success    bool
	Promoted   bool
	ReferrerId int
	RecordId   int
}
