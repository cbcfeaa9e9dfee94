package drip

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jekabolt/waitlist-manager/internal/dependency"
	"github.com/jekabolt/waitlist-manager/internal/dto"
	"github.com/jekabolt/waitlist-manager/internal/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type trackingKey struct {
	entryId   int
	emailType entity.EmailType
}

type fakeRepo struct {
	dependency.Repository

	entries  []entity.WaitlistEntry
	tracking map[trackingKey]bool
	prefs    map[int]*entity.SubscriberPreferences
	trackErr error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		tracking: make(map[trackingKey]bool),
		prefs:    make(map[int]*entity.SubscriberPreferences),
	}
}

func (f *fakeRepo) Drip() dependency.Drip               { return &fakeDrip{f} }
func (f *fakeRepo) Preferences() dependency.Preferences { return &fakePrefs{f} }
func (f *fakeRepo) IsErrUniqueViolation(err error) bool {
	return err != nil && err.Error() == "duplicate"
}

func (f *fakeRepo) addEntry(email string, ageDays int) *entity.WaitlistEntry {
	entry := entity.WaitlistEntry{
		Id:            len(f.entries) + 1,
		QueuePosition: len(f.entries) + 1,
		CreatedAt:     time.Now().AddDate(0, 0, -ageDays),
	}
	entry.Email = email
	entry.FirstName = "Test"
	f.entries = append(f.entries, entry)
	return &f.entries[len(f.entries)-1]
}

type fakeDrip struct{ r *fakeRepo }

func (d *fakeDrip) GetEligibleEntries(ctx context.Context, stage entity.DripStage, runDate time.Time) ([]entity.WaitlistEntry, error) {
	var eligible []entity.WaitlistEntry
	for _, entry := range d.r.entries {
		age := int(runDate.Sub(entry.CreatedAt).Hours() / 24)
		if age != stage.DayOffset {
			continue
		}
		if d.r.tracking[trackingKey{entry.Id, stage.EmailType}] {
			continue
		}
		eligible = append(eligible, entry)
	}
	return eligible, nil
}

func (d *fakeDrip) AddTrackingRecord(ctx context.Context, entryId int, emailType entity.EmailType, sequenceDay int) error {
	if d.r.trackErr != nil {
		return d.r.trackErr
	}
	key := trackingKey{entryId, emailType}
	if d.r.tracking[key] {
		return fmt.Errorf("duplicate")
	}
	d.r.tracking[key] = true
	return nil
}

func (d *fakeDrip) GetTrackingByEntry(ctx context.Context, entryId int) ([]entity.SequenceTrackingRecord, error) {
	return nil, nil
}

type fakePrefs struct{ r *fakeRepo }

func (p *fakePrefs) GetByEntryId(ctx context.Context, entryId int) (*entity.SubscriberPreferences, error) {
	if prefs, ok := p.r.prefs[entryId]; ok {
		return prefs, nil
	}
	def := entity.DefaultPreferences(entryId)
	return &def, nil
}

func (p *fakePrefs) Upsert(ctx context.Context, prefs *entity.SubscriberPreferences) error {
	p.r.prefs[prefs.EntryId] = prefs
	return nil
}

func (p *fakePrefs) Unsubscribe(ctx context.Context, email string) error { return nil }

type fakeMailer struct {
	dependency.Mailer

	sent    []entity.EmailType
	sendErr error
}

func (m *fakeMailer) SendDripStage(ctx context.Context, to string, et entity.EmailType, d *dto.DripStageData) error {
	if m.sendErr != nil {
		return m.sendErr
	}
	m.sent = append(m.sent, et)
	return nil
}

func TestRunOnceSendsDueStages(t *testing.T) {
	repo := newFakeRepo()
	mailer := &fakeMailer{}
	w := New(nil, repo, mailer)

	dayOld := repo.addEntry("day1@example.com", 1)
	threeDaysOld := repo.addEntry("day3@example.com", 3)
	repo.addEntry("fresh@example.com", 0)

	err := w.RunOnce(context.Background(), time.Now())
	require.NoError(t, err)

	assert.ElementsMatch(t, []entity.EmailType{
		entity.EmailTypeCommunityWelcome,
		entity.EmailTypeContentPreview,
	}, mailer.sent)
	assert.True(t, repo.tracking[trackingKey{dayOld.Id, entity.EmailTypeCommunityWelcome}])
	assert.True(t, repo.tracking[trackingKey{threeDaysOld.Id, entity.EmailTypeContentPreview}])
}

func TestRunOnceIsIdempotentPerDay(t *testing.T) {
	repo := newFakeRepo()
	mailer := &fakeMailer{}
	w := New(nil, repo, mailer)

	repo.addEntry("day1@example.com", 1)
	runDate := time.Now()

	require.NoError(t, w.RunOnce(context.Background(), runDate))
	require.Len(t, mailer.sent, 1)

	require.NoError(t, w.RunOnce(context.Background(), runDate))
	assert.Len(t, mailer.sent, 1, "second run on the same day sends nothing")
}

func TestRunOnceSkipsUnsubscribed(t *testing.T) {
	repo := newFakeRepo()
	mailer := &fakeMailer{}
	w := New(nil, repo, mailer)

	entry := repo.addEntry("bye@example.com", 1)
	repo.prefs[entry.Id] = &entity.SubscriberPreferences{
		EntryId:      entry.Id,
		Frequency:    entity.FrequencyWeekly,
		Unsubscribed: true,
	}

	require.NoError(t, w.RunOnce(context.Background(), time.Now()))
	assert.Empty(t, mailer.sent)
	assert.False(t, repo.tracking[trackingKey{entry.Id, entity.EmailTypeCommunityWelcome}],
		"skipped stage leaves no tracking record")
}

func TestRunOnceSkipsFrequencyNever(t *testing.T) {
	repo := newFakeRepo()
	mailer := &fakeMailer{}
	w := New(nil, repo, mailer)

	entry := repo.addEntry("never@example.com", 7)
	repo.prefs[entry.Id] = &entity.SubscriberPreferences{
		EntryId:   entry.Id,
		Frequency: entity.FrequencyNever,
	}

	require.NoError(t, w.RunOnce(context.Background(), time.Now()))
	assert.Empty(t, mailer.sent)
}

func TestRunOnceDeliveryFailureWithholdsRecord(t *testing.T) {
	repo := newFakeRepo()
	mailer := &fakeMailer{sendErr: fmt.Errorf("smtp down")}
	w := New(nil, repo, mailer)

	entry := repo.addEntry("day1@example.com", 1)

	require.NoError(t, w.RunOnce(context.Background(), time.Now()))
	assert.False(t, repo.tracking[trackingKey{entry.Id, entity.EmailTypeCommunityWelcome}],
		"failed send must stay retryable")

	// delivery recovers, the next run picks the entry up again
	mailer.sendErr = nil
	require.NoError(t, w.RunOnce(context.Background(), time.Now()))
	assert.Len(t, mailer.sent, 1)
	assert.True(t, repo.tracking[trackingKey{entry.Id, entity.EmailTypeCommunityWelcome}])
}

func TestWorkerStartStop(t *testing.T) {
	repo := newFakeRepo()
	w := New(&Config{WorkerInterval: time.Hour}, repo, &fakeMailer{})

	require.NoError(t, w.Start(context.Background()))
	assert.Error(t, w.Start(context.Background()))
	require.NoError(t, w.Stop())
	assert.Error(t, w.Stop())
}
