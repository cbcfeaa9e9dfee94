package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jekabolt/waitlist-manager/internal/dependency"
	"github.com/jekabolt/waitlist-manager/internal/entity"
)

type dripStore struct {
	*MYSQLStore
}

// Drip returns an object implementing Drip interface
func (ms *MYSQLStore) Drip() dependency.Drip {
	return &dripStore{
		MYSQLStore: ms,
	}
}

// GetEligibleEntries selects entries whose age in calendar days as of runDate
// equals the stage offset and that were not yet sent the stage's email type.
// Anchoring on calendar days instead of a sliding 24h window keeps the
// selection stable no matter what time of day the job runs.
func (ms *MYSQLStore) GetEligibleEntries(ctx context.Context, stage entity.DripStage, runDate time.Time) ([]entity.WaitlistEntry, error) {
	query := `
	SELECT we.* FROM waitlist_entry we
	WHERE DATEDIFF(:runDate, DATE(we.created_at)) = :offset
		AND NOT EXISTS (
			SELECT 1 FROM sequence_tracking st
			WHERE st.entry_id = we.id AND st.email_type = :emailType
		)
	ORDER BY we.queue_position
	`
	entries, err := QueryListNamed[entity.WaitlistEntry](ctx, ms.DB(), query, map[string]any{
		"runDate":   runDate.Format(time.DateOnly),
		"offset":    stage.DayOffset,
		"emailType": stage.EmailType,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get eligible entries: %w", err)
	}
	return entries, nil
}

// AddTrackingRecord marks a drip stage as sent for an entry. The unique
// (entry_id, email_type) key rejects a second insert, which is what prevents
// double sends across overlapping runs.
func (ms *MYSQLStore) AddTrackingRecord(ctx context.Context, entryId int, emailType entity.EmailType, sequenceDay int) error {
	query := `
	INSERT INTO sequence_tracking
		(entry_id, email_type, sequence_day, sent_at)
	VALUES
		(:entryId, :emailType, :sequenceDay, NOW())
	`
	err := ExecNamed(ctx, ms.DB(), query, map[string]any{
		"entryId":     entryId,
		"emailType":   emailType,
		"sequenceDay": sequenceDay,
	})
	if err != nil {
		return fmt.Errorf("failed to add tracking record: %w", err)
	}
	return nil
}

func (ms *MYSQLStore) GetTrackingByEntry(ctx context.Context, entryId int) ([]entity.SequenceTrackingRecord, error) {
	query := `SELECT * FROM sequence_tracking WHERE entry_id = :entryId ORDER BY sequence_day`
	records, err := QueryListNamed[entity.SequenceTrackingRecord](ctx, ms.DB(), query, map[string]any{
		"entryId": entryId,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get tracking records: %w", err)
	}
	return records, nil
}
