package store

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jekabolt/waitlist-manager/internal/dependency"
	"github.com/jekabolt/waitlist-manager/internal/entity"
	gerr "github.com/jekabolt/waitlist-manager/internal/errors"
)

type waitlistStore struct {
	*MYSQLStore
}

// Waitlist returns an object implementing Waitlist interface
func (ms *MYSQLStore) Waitlist() dependency.Waitlist {
	return &waitlistStore{
		MYSQLStore: ms,
	}
}

const referralCodeLength = 8

// referralCodeAlphabet leaves out 0/O, 1/I/L to keep codes readable when
// people type them off a screenshot.
const referralCodeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

func generateReferralCode() (string, error) {
	buf := make([]byte, referralCodeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	for i, b := range buf {
		buf[i] = referralCodeAlphabet[int(b)%len(referralCodeAlphabet)]
	}
	return string(buf), nil
}

// CreateEntry inserts a new waitlist entry. The next queue position is read
// and the row inserted inside one serializable transaction, so concurrent
// signups can never share a position. Returns gerr.ErrDuplicateEmail if the
// email already holds an entry.
func (ms *MYSQLStore) CreateEntry(ctx context.Context, insert *entity.WaitlistEntryInsert) (*entity.WaitlistEntry, error) {
	if !entity.ValidPaymentStatuses[insert.PaymentStatus] {
		return nil, fmt.Errorf("invalid payment status: %s", insert.PaymentStatus)
	}

	if ms.InTx() {
		return createEntry(ctx, ms, insert)
	}

	var entry *entity.WaitlistEntry
	err := ms.Tx(ctx, func(ctx context.Context, rep dependency.Repository) error {
		var err error
		entry, err = createEntry(ctx, rep, insert)
		return err
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func createEntry(ctx context.Context, rep dependency.Repository, insert *entity.WaitlistEntryInsert) (*entity.WaitlistEntry, error) {
	_, err := rep.Waitlist().GetEntryByEmail(ctx, insert.Email)
	if err == nil {
		return nil, gerr.ErrDuplicateEmail
	}
	if !errors.Is(err, gerr.ErrEntryNotFound) {
		return nil, fmt.Errorf("failed to check existing entry: %w", err)
	}

	// Lock the current maximum so two transactions can't both compute the
	// same next position.
	var position int
	row := rep.DB().QueryRowxContext(ctx,
		`SELECT COALESCE(MAX(queue_position), 0) + 1 FROM waitlist_entry FOR UPDATE`)
	if err := row.Scan(&position); err != nil {
		return nil, fmt.Errorf("failed to get next queue position: %w", err)
	}

	// An entry inserted already completed had its boarding pass mailed as
	// part of the same signup, so the stamp lands with the insert.
	var boardingPassSentAt sql.NullTime
	if insert.PaymentStatus == entity.Completed {
		boardingPassSentAt = sql.NullTime{Time: rep.Now(), Valid: true}
	}

	query := `
	INSERT INTO waitlist_entry
		(uuid, email, first_name, queue_position, payment_status, stripe_session_id, stripe_customer_id, boarding_pass_sent_at)
	VALUES
		(:uuid, :email, :firstName, :queuePosition, :paymentStatus, :stripeSessionId, :stripeCustomerId, :boardingPassSentAt)
	`
	params := map[string]any{
		"uuid":               uuid.New().String(),
		"email":              insert.Email,
		"firstName":          insert.FirstName,
		"queuePosition":      position,
		"paymentStatus":      insert.PaymentStatus,
		"stripeSessionId":    insert.StripeSessionId,
		"stripeCustomerId":   insert.StripeCustomerId,
		"boardingPassSentAt": boardingPassSentAt,
	}
	if _, err := ExecNamedLastId(ctx, rep.DB(), query, params); err != nil {
		if rep.IsErrUniqueViolation(err) {
			return nil, gerr.ErrDuplicateEmail
		}
		return nil, fmt.Errorf("failed to insert waitlist entry: %w", err)
	}

	return rep.Waitlist().GetEntryByEmail(ctx, insert.Email)
}

// GetEntryByEmail retrieves the waitlist entry for an email.
func (ms *MYSQLStore) GetEntryByEmail(ctx context.Context, email string) (*entity.WaitlistEntry, error) {
	query := `SELECT * FROM waitlist_entry WHERE email = :email`
	entry, err := QueryNamedOne[entity.WaitlistEntry](ctx, ms.DB(), query, map[string]any{
		"email": email,
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, gerr.ErrEntryNotFound
		}
		return nil, fmt.Errorf("failed to get entry by email: %w", err)
	}
	return &entry, nil
}

func (ms *MYSQLStore) GetEntryById(ctx context.Context, id int) (*entity.WaitlistEntry, error) {
	query := `SELECT * FROM waitlist_entry WHERE id = :id`
	entry, err := QueryNamedOne[entity.WaitlistEntry](ctx, ms.DB(), query, map[string]any{
		"id": id,
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, gerr.ErrEntryNotFound
		}
		return nil, fmt.Errorf("failed to get entry by id: %w", err)
	}
	return &entry, nil
}

// GetTotalCount returns the highest assigned queue position, which equals the
// number of entries because positions are gapless.
func (ms *MYSQLStore) GetTotalCount(ctx context.Context) (int, error) {
	count, err := QueryCountNamed(ctx, ms.DB(),
		`SELECT COALESCE(MAX(queue_position), 0) FROM waitlist_entry`, map[string]any{})
	if err != nil {
		return 0, fmt.Errorf("failed to get total count: %w", err)
	}
	return int(count), nil
}

// MarkCompleted transitions a pending entry to completed, stores the payment
// provider references and stamps the boarding pass sent time.
func (ms *MYSQLStore) MarkCompleted(ctx context.Context, email string, sessionId, customerId string) error {
	query := `
	UPDATE waitlist_entry
	SET
		payment_status = :completed,
		stripe_session_id = :sessionId,
		stripe_customer_id = :customerId,
		boarding_pass_sent_at = NOW()
	WHERE email = :email AND payment_status = :pending
	`
	err := ExecNamed(ctx, ms.DB(), query, map[string]any{
		"email":      email,
		"sessionId":  sessionId,
		"customerId": customerId,
		"completed":  entity.Completed,
		"pending":    entity.Pending,
	})
	if err != nil {
		return fmt.Errorf("failed to mark entry completed: %w", err)
	}
	return nil
}

// MintReferralCode returns the entry's referral code, generating one if it
// has none yet. Idempotent: an existing code is never replaced.
func (ms *MYSQLStore) MintReferralCode(ctx context.Context, entryId int) (string, error) {
	entry, err := ms.GetEntryById(ctx, entryId)
	if err != nil {
		return "", err
	}
	if entry.ReferralCode.Valid && entry.ReferralCode.String != "" {
		return entry.ReferralCode.String, nil
	}

	for attempt := 0; attempt < 5; attempt++ {
		code, err := generateReferralCode()
		if err != nil {
			return "", err
		}

		err = ExecNamed(ctx, ms.DB(),
			`UPDATE waitlist_entry SET referral_code = :code WHERE id = :id AND referral_code IS NULL`,
			map[string]any{
				"code": code,
				"id":   entryId,
			})
		if err != nil {
			// Collision with another entry's code, roll a new one.
			if ms.IsErrUniqueViolation(err) {
				continue
			}
			return "", fmt.Errorf("failed to set referral code: %w", err)
		}

		// Re-read: a concurrent mint may have won the conditional update.
		entry, err = ms.GetEntryById(ctx, entryId)
		if err != nil {
			return "", err
		}
		if entry.ReferralCode.Valid {
			return entry.ReferralCode.String, nil
		}
	}
	return "", fmt.Errorf("couldn't mint a unique referral code for entry %d", entryId)
}

// IncrementReferralsAndMaybePromote bumps the successful referral counter and
// promotes the entry to VIP when it reaches the threshold. Returns whether a
// promotion happened on this call. VIP is monotonic, it is never unset.
func (ms *MYSQLStore) IncrementReferralsAndMaybePromote(ctx context.Context, entryId int) (bool, error) {
	if ms.InTx() {
		return incrementAndMaybePromote(ctx, ms, entryId)
	}

	var promoted bool
	err := ms.Tx(ctx, func(ctx context.Context, rep dependency.Repository) error {
		var err error
		promoted, err = incrementAndMaybePromote(ctx, rep, entryId)
		return err
	})
	return promoted, err
}

func incrementAndMaybePromote(ctx context.Context, rep dependency.Repository, entryId int) (bool, error) {
	err := ExecNamed(ctx, rep.DB(),
		`UPDATE waitlist_entry SET successful_referrals = successful_referrals + 1 WHERE id = :id`,
		map[string]any{
			"id": entryId,
		})
	if err != nil {
		return false, fmt.Errorf("failed to increment referrals: %w", err)
	}

	entry, err := rep.Waitlist().GetEntryById(ctx, entryId)
	if err != nil {
		return false, err
	}
	if entry.IsVip || entry.SuccessfulReferrals < entity.VipReferralThreshold {
		return false, nil
	}

	err = ExecNamed(ctx, rep.DB(),
		`UPDATE waitlist_entry SET is_vip = true WHERE id = :id`,
		map[string]any{
			"id": entryId,
		})
	if err != nil {
		return false, fmt.Errorf("failed to set vip flag: %w", err)
	}
	return true, nil
}
