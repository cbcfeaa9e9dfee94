package signup

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jekabolt/waitlist-manager/internal/dependency"
	"github.com/jekabolt/waitlist-manager/internal/dto"
	"github.com/jekabolt/waitlist-manager/internal/entity"
	gerr "github.com/jekabolt/waitlist-manager/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRepo is an in-memory stand-in for the MySQL repository with the same
// observable semantics: gapless positions, idempotent mint, duplicate
// redemption as a no-op.
type fakeRepo struct {
	dependency.Repository

	byEmail map[string]*entity.WaitlistEntry
	byId    map[int]*entity.WaitlistEntry
	pairs   map[string]bool
	nextId  int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		byEmail: make(map[string]*entity.WaitlistEntry),
		byId:    make(map[int]*entity.WaitlistEntry),
		pairs:   make(map[string]bool),
	}
}

func (f *fakeRepo) Waitlist() dependency.Waitlist     { return &fakeWaitlist{f} }
func (f *fakeRepo) Referrals() dependency.Referrals   { return &fakeReferrals{f} }
func (f *fakeRepo) Mail() dependency.Mail             { return &fakeMail{} }
func (f *fakeRepo) Now() time.Time                    { return time.Now() }
func (f *fakeRepo) InTx() bool                        { return false }
func (f *fakeRepo) IsErrUniqueViolation(error) bool   { return false }
func (f *fakeRepo) IsErrorRepeat(error) bool          { return false }
func (f *fakeRepo) Tx(ctx context.Context, fn func(context.Context, dependency.Repository) error) error {
	return fn(ctx, f)
}

type fakeWaitlist struct{ r *fakeRepo }

func (w *fakeWaitlist) Tx(ctx context.Context, fn func(context.Context, dependency.Repository) error) error {
	return fn(ctx, w.r)
}

func (w *fakeWaitlist) CreateEntry(ctx context.Context, insert *entity.WaitlistEntryInsert) (*entity.WaitlistEntry, error) {
	if _, ok := w.r.byEmail[insert.Email]; ok {
		return nil, gerr.ErrDuplicateEmail
	}
	w.r.nextId++
	entry := &entity.WaitlistEntry{
		Id:                  w.r.nextId,
		UUID:                fmt.Sprintf("uuid-%d", w.r.nextId),
		QueuePosition:       len(w.r.byEmail) + 1,
		CreatedAt:           time.Now(),
		WaitlistEntryInsert: *insert,
	}
	w.r.byEmail[insert.Email] = entry
	w.r.byId[entry.Id] = entry
	return entry, nil
}

func (w *fakeWaitlist) GetEntryByEmail(ctx context.Context, email string) (*entity.WaitlistEntry, error) {
	entry, ok := w.r.byEmail[email]
	if !ok {
		return nil, gerr.ErrEntryNotFound
	}
	return entry, nil
}

func (w *fakeWaitlist) GetEntryById(ctx context.Context, id int) (*entity.WaitlistEntry, error) {
	entry, ok := w.r.byId[id]
	if !ok {
		return nil, gerr.ErrEntryNotFound
	}
	return entry, nil
}

func (w *fakeWaitlist) GetTotalCount(ctx context.Context) (int, error) {
	return len(w.r.byEmail), nil
}

func (w *fakeWaitlist) MarkCompleted(ctx context.Context, email, sessionId, customerId string) error {
	return nil
}

func (w *fakeWaitlist) MintReferralCode(ctx context.Context, entryId int) (string, error) {
	entry, ok := w.r.byId[entryId]
	if !ok {
		return "", gerr.ErrEntryNotFound
	}
	if entry.ReferralCode.Valid {
		return entry.ReferralCode.String, nil
	}
	entry.ReferralCode.String = fmt.Sprintf("CODE%04d", entryId)
	entry.ReferralCode.Valid = true
	return entry.ReferralCode.String, nil
}

func (w *fakeWaitlist) IncrementReferralsAndMaybePromote(ctx context.Context, entryId int) (bool, error) {
	entry, ok := w.r.byId[entryId]
	if !ok {
		return false, gerr.ErrEntryNotFound
	}
	entry.SuccessfulReferrals++
	if !entry.IsVip && entry.SuccessfulReferrals >= entity.VipReferralThreshold {
		entry.IsVip = true
		return true, nil
	}
	return false, nil
}

type fakeReferrals struct{ r *fakeRepo }

func (rf *fakeReferrals) VerifyCode(ctx context.Context, code string) (*entity.WaitlistEntry, error) {
	for _, entry := range rf.r.byId {
		if entry.ReferralCode.Valid && entry.ReferralCode.String == code {
			return entry, nil
		}
	}
	return nil, gerr.ErrReferralCodeNotFound
}

func (rf *fakeReferrals) RecordReferral(ctx context.Context, code, referredEmail string, referredEntryId int) (*entity.ReferralResult, error) {
	referrer, err := rf.VerifyCode(ctx, code)
	if err != nil {
		return nil, err
	}
	res := &entity.ReferralResult{ReferrerId: referrer.Id}
	if referrer.Id == referredEntryId {
		return res, nil
	}
	pair := fmt.Sprintf("%d:%s", referrer.Id, referredEmail)
	if rf.r.pairs[pair] {
		return res, nil
	}
	rf.r.pairs[pair] = true
	if _, err := (&fakeWaitlist{rf.r}).MintReferralCode(ctx, referredEntryId); err != nil {
		return nil, err
	}
	promoted, err := (&fakeWaitlist{rf.r}).IncrementReferralsAndMaybePromote(ctx, referrer.Id)
	if err != nil {
		return nil, err
	}
	res.Success = true
	res.Promoted = promoted
	res.RecordId = len(rf.r.pairs)
	return res, nil
}

func (rf *fakeReferrals) GetReferralsByReferrer(ctx context.Context, referrerId int) ([]entity.ReferralRecord, error) {
	return nil, nil
}

type fakeMail struct{}

func (f *fakeMail) AddMail(ctx context.Context, ser *entity.SendEmailRequest) (int, error) {
	return 1, nil
}
func (f *fakeMail) GetAllUnsent(ctx context.Context, withError bool) ([]entity.SendEmailRequest, error) {
	return nil, nil
}
func (f *fakeMail) UpdateSent(ctx context.Context, id int) error        { return nil }
func (f *fakeMail) AddError(ctx context.Context, id int, m string) error { return nil }

type fakeMailer struct {
	confirmed []dto.WaitlistConfirmed
	promoted  []dto.VipPromoted
	internal  []dto.NewSignupInternal
	drip      []entity.EmailType
	dripErr   error
}

func (m *fakeMailer) SendWaitlistConfirmed(ctx context.Context, rep dependency.Repository, to string, d *dto.WaitlistConfirmed) error {
	m.confirmed = append(m.confirmed, *d)
	return nil
}
func (m *fakeMailer) SendVipPromoted(ctx context.Context, rep dependency.Repository, to string, d *dto.VipPromoted) error {
	m.promoted = append(m.promoted, *d)
	return nil
}
func (m *fakeMailer) SendNewSignupInternal(ctx context.Context, rep dependency.Repository, d *dto.NewSignupInternal) error {
	m.internal = append(m.internal, *d)
	return nil
}
func (m *fakeMailer) SendDripStage(ctx context.Context, to string, et entity.EmailType, d *dto.DripStageData) error {
	if m.dripErr != nil {
		return m.dripErr
	}
	m.drip = append(m.drip, et)
	return nil
}
func (m *fakeMailer) Start(ctx context.Context) error { return nil }
func (m *fakeMailer) Stop() error                     { return nil }

type fakePayment struct {
	sessions map[string]*entity.CheckoutSession
	created  []entity.CheckoutMetadata
	failNew  bool
}

func newFakePayment() *fakePayment {
	return &fakePayment{sessions: make(map[string]*entity.CheckoutSession)}
}

func (p *fakePayment) CreateCheckoutSession(ctx context.Context, md entity.CheckoutMetadata) (*entity.CheckoutSession, error) {
	if p.failNew {
		return nil, fmt.Errorf("provider down")
	}
	p.created = append(p.created, md)
	id := fmt.Sprintf("cs_test_%d", len(p.created))
	cs := &entity.CheckoutSession{
		SessionId:   id,
		RedirectURL: "https://checkout.example.com/" + id,
		Metadata:    md,
	}
	p.sessions[id] = cs
	return cs, nil
}

func (p *fakePayment) GetCheckoutSession(ctx context.Context, sessionId string) (*entity.CheckoutSession, error) {
	cs, ok := p.sessions[sessionId]
	if !ok {
		return nil, fmt.Errorf("no such session")
	}
	return cs, nil
}

func (p *fakePayment) ParseWebhookEvent(payload []byte, sigHeader string) (string, error) {
	return "", nil
}

func (p *fakePayment) pay(sessionId string) {
	cs := p.sessions[sessionId]
	cs.Paid = true
	cs.CustomerId = "cus_test"
	cs.PaymentIntentId = "pi_test"
}

func newTestService() (*Service, *fakeRepo, *fakeMailer, *fakePayment) {
	repo := newFakeRepo()
	mailer := &fakeMailer{}
	payment := newFakePayment()
	return New(repo, mailer, payment).(*Service), repo, mailer, payment
}

func TestCreateCheckout(t *testing.T) {
	svc, _, _, payment := newTestService()
	ctx := context.Background()

	start, err := svc.CreateCheckout(ctx, "Ada@Example.com ", "Ada", "FRIEND23")
	require.NoError(t, err)
	assert.NotEmpty(t, start.RedirectURL)
	assert.Nil(t, start.Existing)

	require.Len(t, payment.created, 1)
	md := payment.created[0]
	assert.Equal(t, "ada@example.com", md.Email)
	assert.Equal(t, 1, md.QueuePosition)
	assert.Equal(t, "FRIEND23", md.ReferralCode)
	assert.NotEmpty(t, md.EntryUUID)
}

func TestCreateCheckoutExistingEntry(t *testing.T) {
	svc, _, _, payment := newTestService()
	ctx := context.Background()

	_, err := svc.JoinWithoutPayment(ctx, "ada@example.com", "Ada", "")
	require.NoError(t, err)

	start, err := svc.CreateCheckout(ctx, "ada@example.com", "Ada", "")
	require.NoError(t, err)
	assert.Empty(t, start.RedirectURL)
	require.NotNil(t, start.Existing)
	assert.Equal(t, 1, start.Existing.QueuePosition)
	assert.Empty(t, payment.created, "no session for an existing entry")
}

func TestCreateCheckoutInvalidEmail(t *testing.T) {
	svc, _, _, _ := newTestService()

	_, err := svc.CreateCheckout(context.Background(), "not-an-email", "Ada", "")
	assert.Error(t, err)
}

func TestCreateCheckoutProviderFailure(t *testing.T) {
	svc, _, _, payment := newTestService()
	payment.failNew = true

	_, err := svc.CreateCheckout(context.Background(), "ada@example.com", "Ada", "")
	assert.ErrorIs(t, err, gerr.ErrCheckoutCreationFailed)
}

func TestConfirmPayment(t *testing.T) {
	svc, repo, mailer, payment := newTestService()
	ctx := context.Background()

	start, err := svc.CreateCheckout(ctx, "ada@example.com", "Ada", "")
	require.NoError(t, err)
	require.NotEmpty(t, start.RedirectURL)
	payment.pay("cs_test_1")

	state, err := svc.ConfirmPayment(ctx, "cs_test_1")
	require.NoError(t, err)
	assert.Equal(t, 1, state.QueuePosition)
	assert.NotEmpty(t, state.ReferralCode)

	entry := repo.byEmail["ada@example.com"]
	require.NotNil(t, entry)
	assert.Equal(t, entity.Completed, entry.PaymentStatus)
	assert.Equal(t, "cs_test_1", entry.StripeSessionId.String)

	require.Len(t, mailer.confirmed, 1)
	assert.True(t, mailer.confirmed[0].Paid)
	assert.Len(t, mailer.internal, 1)
}

func TestConfirmPaymentIdempotent(t *testing.T) {
	svc, repo, mailer, payment := newTestService()
	ctx := context.Background()

	_, err := svc.CreateCheckout(ctx, "ada@example.com", "Ada", "")
	require.NoError(t, err)
	payment.pay("cs_test_1")

	first, err := svc.ConfirmPayment(ctx, "cs_test_1")
	require.NoError(t, err)

	// redirect handler and webhook both confirm the same session
	second, err := svc.ConfirmPayment(ctx, "cs_test_1")
	require.NoError(t, err)
	assert.Equal(t, first.QueuePosition, second.QueuePosition)
	assert.Equal(t, first.ReferralCode, second.ReferralCode)

	assert.Len(t, repo.byEmail, 1)
	assert.Len(t, mailer.confirmed, 1, "boarding pass goes out once")
}

func TestConfirmPaymentUnpaidSession(t *testing.T) {
	svc, _, _, _ := newTestService()
	ctx := context.Background()

	_, err := svc.CreateCheckout(ctx, "ada@example.com", "Ada", "")
	require.NoError(t, err)

	_, err = svc.ConfirmPayment(ctx, "cs_test_1")
	assert.ErrorIs(t, err, gerr.ErrPaymentConfirmationFailed)
}

func TestConfirmPaymentMissingMetadata(t *testing.T) {
	svc, _, _, payment := newTestService()
	ctx := context.Background()

	payment.sessions["cs_orphan"] = &entity.CheckoutSession{
		SessionId: "cs_orphan",
		Paid:      true,
	}

	_, err := svc.ConfirmPayment(ctx, "cs_orphan")
	assert.ErrorIs(t, err, gerr.ErrMissingMetadata)
}

func TestJoinWithoutPayment(t *testing.T) {
	svc, repo, mailer, _ := newTestService()
	ctx := context.Background()

	state, err := svc.JoinWithoutPayment(ctx, "ada@example.com", "Ada", "")
	require.NoError(t, err)
	assert.Equal(t, 1, state.QueuePosition)
	assert.NotEmpty(t, state.ReferralCode)

	entry := repo.byEmail["ada@example.com"]
	assert.Equal(t, entity.Skipped, entry.PaymentStatus)

	require.Len(t, mailer.confirmed, 1)
	assert.False(t, mailer.confirmed[0].Paid)

	// resubmission returns the same state and creates nothing
	again, err := svc.JoinWithoutPayment(ctx, "ada@example.com", "Ada", "")
	require.NoError(t, err)
	assert.Equal(t, state.QueuePosition, again.QueuePosition)
	assert.Len(t, repo.byEmail, 1)
	assert.Len(t, mailer.confirmed, 1)
}

func TestJoinWithReferralCode(t *testing.T) {
	svc, repo, mailer, _ := newTestService()
	ctx := context.Background()

	refState, err := svc.JoinWithoutPayment(ctx, "referrer@example.com", "Ref", "")
	require.NoError(t, err)

	_, err = svc.JoinWithoutPayment(ctx, "friend@example.com", "Friend", refState.ReferralCode)
	require.NoError(t, err)

	referrer := repo.byEmail["referrer@example.com"]
	assert.Equal(t, 1, referrer.SuccessfulReferrals)
	assert.False(t, referrer.IsVip)

	require.Len(t, mailer.internal, 2)
	assert.Equal(t, "referrer@example.com", mailer.internal[1].ReferredBy)
}

func TestJoinBadReferralCodeDoesNotFailSignup(t *testing.T) {
	svc, repo, _, _ := newTestService()
	ctx := context.Background()

	state, err := svc.JoinWithoutPayment(ctx, "ada@example.com", "Ada", "WRONG123")
	require.NoError(t, err)
	assert.Equal(t, 1, state.QueuePosition)
	assert.Len(t, repo.byEmail, 1)
}

func TestVipPromotionAtThreshold(t *testing.T) {
	svc, repo, mailer, _ := newTestService()
	ctx := context.Background()

	refState, err := svc.JoinWithoutPayment(ctx, "referrer@example.com", "Ref", "")
	require.NoError(t, err)

	for i := 0; i < entity.VipReferralThreshold; i++ {
		email := fmt.Sprintf("friend%d@example.com", i)
		_, err := svc.JoinWithoutPayment(ctx, email, "Friend", refState.ReferralCode)
		require.NoError(t, err)
	}

	referrer := repo.byEmail["referrer@example.com"]
	assert.True(t, referrer.IsVip)
	assert.Equal(t, entity.VipReferralThreshold, referrer.SuccessfulReferrals)
	require.Len(t, mailer.promoted, 1, "promotion mail goes out exactly once")
}

func TestEntryState(t *testing.T) {
	svc, _, _, _ := newTestService()
	ctx := context.Background()

	_, err := svc.EntryState(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, gerr.ErrEntryNotFound)

	state, err := svc.JoinWithoutPayment(ctx, "ada@example.com", "Ada", "")
	require.NoError(t, err)

	got, err := svc.EntryState(ctx, "ADA@example.com")
	require.NoError(t, err)
	assert.Equal(t, state.QueuePosition, got.QueuePosition)
}
