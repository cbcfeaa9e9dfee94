package entity

import "time"

type EmailFrequency string

const (
	FrequencyDaily  EmailFrequency = "daily"
	FrequencyWeekly EmailFrequency = "weekly"
	FrequencyNever  EmailFrequency = "never"
)

// SubscriberPreferences represents the subscriber_preferences table, one row
// per entry, created lazily on the first preference edit. An entry without a
// row is treated as fully opted in.
type SubscriberPreferences struct {
	EntryId             int            `db:"entry_id"`
	Frequency           EmailFrequency `db:"frequency"`
	PromoOptIn          bool           `db:"promo_opt_in"`
	ProductUpdatesOptIn bool           `db:"product_updates_opt_in"`
	Unsubscribed        bool           `db:"unsubscribed"`
	CreatedAt           time.Time      `db:"created_at"`
	UpdatedAt           time.Time      `db:"updated_at"`
}

// DefaultPreferences returns the implicit preferences of an entry that has
// never edited them.
func DefaultPreferences(entryId int) SubscriberPreferences {
	return SubscriberPreferences{
		EntryId:             entryId,
		Frequency:           FrequencyWeekly,
		PromoOptIn:          true,
		ProductUpdatesOptIn: true,
		Unsubscribed:        false,
	}
}
