package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jekabolt/waitlist-manager/internal/dependency"
	"github.com/jekabolt/waitlist-manager/internal/entity"
)

type preferencesStore struct {
	*MYSQLStore
}

// Preferences returns an object implementing Preferences interface
func (ms *MYSQLStore) Preferences() dependency.Preferences {
	return &preferencesStore{
		MYSQLStore: ms,
	}
}

// GetByEntryId returns the stored preferences for an entry. Entries that
// never edited preferences have no row and get the all-opted-in defaults.
func (ms *MYSQLStore) GetByEntryId(ctx context.Context, entryId int) (*entity.SubscriberPreferences, error) {
	query := `SELECT * FROM subscriber_preferences WHERE entry_id = :entryId`
	prefs, err := QueryNamedOne[entity.SubscriberPreferences](ctx, ms.DB(), query, map[string]any{
		"entryId": entryId,
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			def := entity.DefaultPreferences(entryId)
			return &def, nil
		}
		return nil, fmt.Errorf("failed to get preferences: %w", err)
	}
	return &prefs, nil
}

// Upsert creates the preferences row on first edit and updates it afterwards.
func (ms *MYSQLStore) Upsert(ctx context.Context, prefs *entity.SubscriberPreferences) error {
	query := `
	INSERT INTO subscriber_preferences
		(entry_id, frequency, promo_opt_in, product_updates_opt_in, unsubscribed)
	VALUES
		(:entryId, :frequency, :promoOptIn, :productUpdatesOptIn, :unsubscribed)
	ON DUPLICATE KEY UPDATE
		frequency = :frequency,
		promo_opt_in = :promoOptIn,
		product_updates_opt_in = :productUpdatesOptIn,
		unsubscribed = :unsubscribed
	`
	err := ExecNamed(ctx, ms.DB(), query, map[string]any{
		"entryId":             prefs.EntryId,
		"frequency":           prefs.Frequency,
		"promoOptIn":          prefs.PromoOptIn,
		"productUpdatesOptIn": prefs.ProductUpdatesOptIn,
		"unsubscribed":        prefs.Unsubscribed,
	})
	if err != nil {
		return fmt.Errorf("failed to upsert preferences: %w", err)
	}
	return nil
}

// Unsubscribe flips unsubscribed for the entry owning the email, creating the
// preferences row if this is its first edit. The other opt-ins are kept so a
// resubscribe restores them.
func (ms *MYSQLStore) Unsubscribe(ctx context.Context, email string) error {
	entry, err := ms.GetEntryByEmail(ctx, email)
	if err != nil {
		return err
	}

	query := `
	INSERT INTO subscriber_preferences
		(entry_id, frequency, promo_opt_in, product_updates_opt_in, unsubscribed)
	VALUES
		(:entryId, :frequency, true, true, true)
	ON DUPLICATE KEY UPDATE unsubscribed = true
	`
	err = ExecNamed(ctx, ms.DB(), query, map[string]any{
		"entryId":   entry.Id,
		"frequency": entity.FrequencyNever,
	})
	if err != nil {
		return fmt.Errorf("failed to unsubscribe: %w", err)
	}
	return nil
}
