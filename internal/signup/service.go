package signup

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"log/slog"

	"github.com/asaskevich/govalidator"
	"github.com/google/uuid"
	"github.com/jekabolt/waitlist-manager/internal/dependency"
	"github.com/jekabolt/waitlist-manager/internal/dto"
	"github.com/jekabolt/waitlist-manager/internal/entity"
	gerr "github.com/jekabolt/waitlist-manager/internal/errors"
)

// Service orchestrates the signup flows: hosted checkout, payment
// confirmation and the free join path. Referral crediting and the mail
// fan-out are best effort and never fail a signup that reached the database.
type Service struct {
	rep     dependency.Repository
	mailer  dependency.Mailer
	payment dependency.Payment
}

func New(rep dependency.Repository, mailer dependency.Mailer, payment dependency.Payment) dependency.Signup {
	return &Service{
		rep:     rep,
		mailer:  mailer,
		payment: payment,
	}
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if !govalidator.IsEmail(email) {
		return "", fmt.Errorf("invalid email address: %s", email)
	}
	return email, nil
}

// CreateCheckout opens a hosted checkout session for a new signup. If an
// entry for the email already exists no session is created and the entry's
// current state comes back instead.
func (s *Service) CreateCheckout(ctx context.Context, email, firstName, referralCode string) (*entity.CheckoutStart, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}

	existing, err := s.rep.Waitlist().GetEntryByEmail(ctx, email)
	if err == nil {
		state := existing.SignupState()
		return &entity.CheckoutStart{Existing: &state}, nil
	}
	if !errors.Is(err, gerr.ErrEntryNotFound) {
		return nil, fmt.Errorf("failed to look up entry: %w", err)
	}

	// The position here is a preview for the payment page. The real one is
	// assigned transactionally when the entry is created on confirmation.
	count, err := s.rep.Waitlist().GetTotalCount(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get waitlist count: %w", err)
	}

	cs, err := s.payment.CreateCheckoutSession(ctx, entity.CheckoutMetadata{
		Email:         email,
		FirstName:     firstName,
		QueuePosition: count + 1,
		ReferralCode:  referralCode,
		EntryUUID:     uuid.New().String(),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", gerr.ErrCheckoutCreationFailed, err)
	}

	return &entity.CheckoutStart{RedirectURL: cs.RedirectURL}, nil
}

// ConfirmPayment finalizes a signup for a paid checkout session. It is safe
// to call more than once for the same session: the redirect handler and the
// webhook both land here.
func (s *Service) ConfirmPayment(ctx context.Context, sessionId string) (*entity.SignupState, error) {
	cs, err := s.payment.GetCheckoutSession(ctx, sessionId)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", gerr.ErrPaymentConfirmationFailed, err)
	}
	if !cs.Paid {
		return nil, fmt.Errorf("%w: session %s is not paid", gerr.ErrPaymentConfirmationFailed, sessionId)
	}
	if cs.Metadata.Email == "" {
		return nil, fmt.Errorf("%w: session %s", gerr.ErrMissingMetadata, sessionId)
	}

	email, err := normalizeEmail(cs.Metadata.Email)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", gerr.ErrMissingMetadata, err)
	}

	return s.finalize(ctx, &entity.WaitlistEntryInsert{
		Email:            email,
		FirstName:        cs.Metadata.FirstName,
		PaymentStatus:    entity.Completed,
		StripeSessionId:  toNullString(cs.SessionId),
		StripeCustomerId: toNullString(cs.CustomerId),
	}, cs.Metadata.ReferralCode, true)
}

// JoinWithoutPayment finalizes a signup skipping the payment step.
func (s *Service) JoinWithoutPayment(ctx context.Context, email, firstName, referralCode string) (*entity.SignupState, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}

	return s.finalize(ctx, &entity.WaitlistEntryInsert{
		Email:         email,
		FirstName:     firstName,
		PaymentStatus: entity.Skipped,
	}, referralCode, false)
}

// finalize creates the entry, mints its referral code, credits the referrer
// if a code was used and fans out the signup mails. A duplicate email means
// the signup already went through: the stored state comes back unchanged.
func (s *Service) finalize(ctx context.Context, insert *entity.WaitlistEntryInsert, referralCode string, paid bool) (*entity.SignupState, error) {
	entry, err := s.rep.Waitlist().CreateEntry(ctx, insert)
	if err != nil {
		if errors.Is(err, gerr.ErrDuplicateEmail) {
			existing, lerr := s.rep.Waitlist().GetEntryByEmail(ctx, insert.Email)
			if lerr != nil {
				return nil, fmt.Errorf("failed to load existing entry: %w", lerr)
			}
			state := existing.SignupState()
			return &state, nil
		}
		return nil, fmt.Errorf("failed to create entry: %w", err)
	}

	code, err := s.rep.Waitlist().MintReferralCode(ctx, entry.Id)
	if err != nil {
		return nil, fmt.Errorf("failed to mint referral code: %w", err)
	}

	referredBy := ""
	if referralCode != "" {
		referredBy = s.creditReferrer(ctx, referralCode, entry)
	}

	if err := s.mailer.SendWaitlistConfirmed(ctx, s.rep, entry.Email, &dto.WaitlistConfirmed{
		FirstName:     entry.FirstName,
		QueuePosition: entry.QueuePosition,
		ReferralCode:  code,
		Paid:          paid,
	}); err != nil {
		slog.Default().ErrorContext(ctx, "can't send waitlist confirmed mail",
			slog.String("err", err.Error()),
		)
	}

	if err := s.mailer.SendNewSignupInternal(ctx, s.rep, &dto.NewSignupInternal{
		Email:         entry.Email,
		FirstName:     entry.FirstName,
		QueuePosition: entry.QueuePosition,
		PaymentStatus: string(entry.PaymentStatus),
		ReferredBy:    referredBy,
	}); err != nil {
		slog.Default().ErrorContext(ctx, "can't send signup notification mail",
			slog.String("err", err.Error()),
		)
	}

	state := entry.SignupState()
	state.ReferralCode = code
	return &state, nil
}

// creditReferrer redeems a referral code against a freshly created entry and
// sends the promotion mail when the redemption tips the referrer over the
// threshold. Failures are logged: a bad or foreign code must not undo a
// signup that is already stored.
func (s *Service) creditReferrer(ctx context.Context, code string, entry *entity.WaitlistEntry) string {
	res, err := s.rep.Referrals().RecordReferral(ctx, code, entry.Email, entry.Id)
	if err != nil {
		slog.Default().ErrorContext(ctx, "can't record referral",
			slog.String("code", code),
			slog.String("err", err.Error()),
		)
		return ""
	}
	if !res.Success {
		return ""
	}

	referrer, err := s.rep.Waitlist().GetEntryById(ctx, res.ReferrerId)
	if err != nil {
		slog.Default().ErrorContext(ctx, "can't load referrer",
			slog.Int("referrerId", res.ReferrerId),
			slog.String("err", err.Error()),
		)
		return ""
	}

	if res.Promoted {
		if err := s.mailer.SendVipPromoted(ctx, s.rep, referrer.Email, &dto.VipPromoted{
			FirstName:     referrer.FirstName,
			QueuePosition: referrer.QueuePosition,
		}); err != nil {
			slog.Default().ErrorContext(ctx, "can't send vip promoted mail",
				slog.String("err", err.Error()),
			)
		}
	}

	return referrer.Email
}

// EntryState returns the current state of an entry by email.
func (s *Service) EntryState(ctx context.Context, email string) (*entity.SignupState, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	entry, err := s.rep.Waitlist().GetEntryByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	state := entry.SignupState()
	return &state, nil
}

// TotalCount returns the number of assigned queue positions.
func (s *Service) TotalCount(ctx context.Context) (int, error) {
	return s.rep.Waitlist().GetTotalCount(ctx)
}

func toNullString(s string) (ns sql.NullString) {
	if s == "" {
		return ns
	}
	ns.String = s
	ns.Valid = true
	return ns
}
