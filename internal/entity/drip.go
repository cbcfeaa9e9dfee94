package entity

import (
	"database/sql"
	"time"
)

type EmailType string

const (
	EmailTypeCommunityWelcome EmailType = "community_welcome"
	EmailTypeContentPreview   EmailType = "content_preview"
	EmailTypeFounderStory     EmailType = "founder_story"
	EmailTypeReferralReminder EmailType = "referral_reminder"
)

// DripStage binds one day offset to one email type.
type DripStage struct {
	DayOffset int
	EmailType EmailType
}

// DripSequence is the fixed ordered drip campaign: which email goes out how
// many days after signup.
var DripSequence = []DripStage{
	{DayOffset: 1, EmailType: EmailTypeCommunityWelcome},
	{DayOffset: 3, EmailType: EmailTypeContentPreview},
	{DayOffset: 7, EmailType: EmailTypeFounderStory},
	{DayOffset: 14, EmailType: EmailTypeReferralReminder},
}

// SequenceTrackingRecord represents the sequence_tracking table. The unique
// (entry_id, email_type) constraint is what makes each stage send at most once.
type SequenceTrackingRecord struct {
	Id          int          `db:"id"`
	EntryId     int          `db:"entry_id"`
	EmailType   EmailType    `db:"email_type"`
	SequenceDay int          `db:"sequence_day"`
	SentAt      time.Time    `db:"sent_at"`
	OpenedAt    sql.NullTime `db:"opened_at"`
	ClickedAt   sql.NullTime `db:"clicked_at"`
	Bounced     bool         `db:"bounced"`
}
