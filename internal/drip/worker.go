package drip

import (
	"context"
	"fmt"
	"time"

	"log/slog"

	"github.com/jekabolt/waitlist-manager/internal/dto"
	"github.com/jekabolt/waitlist-manager/internal/entity"
	"golang.org/x/sync/errgroup"
)

func (w *Worker) worker(ctx context.Context) {
	ticker := time.NewTicker(w.c.WorkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := w.RunOnce(ctx, time.Now()); err != nil {
				slog.Default().ErrorContext(ctx, "drip run failed",
					slog.String("err", err.Error()),
				)
			}
		case <-ctx.Done():
			return
		}
	}
}

// RunOnce executes one full pass over the drip sequence for the given run
// date. Running it twice on the same day sends nothing the second time: the
// tracking records written on the first pass exclude every entry already
// served. Per-entry failures are logged and do not stop the pass.
func (w *Worker) RunOnce(ctx context.Context, runDate time.Time) error {
	var sent, skipped, failed int

	// Eligibility for the stages is independent, fetch it in one round trip
	// worth of wall time.
	eligible := make([][]entity.WaitlistEntry, len(entity.DripSequence))
	g, gctx := errgroup.WithContext(ctx)
	for i, stage := range entity.DripSequence {
		i, stage := i, stage
		g.Go(func() error {
			entries, err := w.repo.Drip().GetEligibleEntries(gctx, stage, runDate)
			if err != nil {
				return fmt.Errorf("can't get eligible entries for %s: %w", stage.EmailType, err)
			}
			eligible[i] = entries
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, stage := range entity.DripSequence {
		for _, entry := range eligible[i] {
			if err := ctx.Err(); err != nil {
				return err
			}

			ok, err := w.sendStage(ctx, stage, &entry)
			switch {
			case err != nil:
				failed++
				slog.Default().ErrorContext(ctx, "can't send drip stage",
					slog.String("err", err.Error()),
					slog.String("email_type", string(stage.EmailType)),
					slog.Int("entry_id", entry.Id),
				)
			case ok:
				sent++
			default:
				skipped++
			}
		}
	}

	slog.Default().InfoContext(ctx, "drip run finished",
		slog.String("run_date", runDate.Format(time.DateOnly)),
		slog.Int("sent", sent),
		slog.Int("skipped", skipped),
		slog.Int("failed", failed),
	)
	return nil
}

// sendStage delivers one stage email to one entry and records it. An
// unsubscribed entry is skipped without a record so it stays excluded by the
// preference check alone. The tracking record is written only after a
// successful delivery: a failed send is retried on the next run.
func (w *Worker) sendStage(ctx context.Context, stage entity.DripStage, entry *entity.WaitlistEntry) (bool, error) {
	prefs, err := w.repo.Preferences().GetByEntryId(ctx, entry.Id)
	if err != nil {
		return false, fmt.Errorf("can't get preferences: %w", err)
	}
	if prefs.Unsubscribed || prefs.Frequency == entity.FrequencyNever {
		return false, nil
	}

	if err := w.mailer.SendDripStage(ctx, entry.Email, stage.EmailType, &dto.DripStageData{
		FirstName:     entry.FirstName,
		QueuePosition: entry.QueuePosition,
		ReferralCode:  entry.ReferralCode.String,
	}); err != nil {
		return false, fmt.Errorf("can't deliver: %w", err)
	}

	if err := w.repo.Drip().AddTrackingRecord(ctx, entry.Id, stage.EmailType, stage.DayOffset); err != nil {
		// Delivered but unrecorded. A duplicate send on the next run is
		// bounded by the unique (entry, email type) key.
		if w.repo.IsErrUniqueViolation(err) {
			return true, nil
		}
		return false, fmt.Errorf("can't record stage: %w", err)
	}

	return true, nil
}
