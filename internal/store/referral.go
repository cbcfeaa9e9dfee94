package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jekabolt/waitlist-manager/internal/dependency"
	"github.com/jekabolt/waitlist-manager/internal/entity"
	gerr "github.com/jekabolt/waitlist-manager/internal/errors"
)

type referralStore struct {
	*MYSQLStore
}

// Referrals returns an object implementing Referrals interface
func (ms *MYSQLStore) Referrals() dependency.Referrals {
	return &referralStore{
		MYSQLStore: ms,
	}
}

// VerifyCode resolves a referral code to the entry that owns it.
func (ms *MYSQLStore) VerifyCode(ctx context.Context, code string) (*entity.WaitlistEntry, error) {
	query := `SELECT * FROM waitlist_entry WHERE referral_code = :code`
	entry, err := QueryNamedOne[entity.WaitlistEntry](ctx, ms.DB(), query, map[string]any{
		"code": code,
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, gerr.ErrReferralCodeNotFound
		}
		return nil, fmt.Errorf("failed to verify referral code: %w", err)
	}
	return &entry, nil
}

// RecordReferral credits a redeemed code to its owner: it inserts the ledger
// record, mints a referral code for the referred entry and increments the
// referrer's counter, evaluating VIP promotion, all in one transaction.
// Redeeming the same (referrer, referred email) pair twice is a no-op
// reported as Success=false, not an error.
func (ms *MYSQLStore) RecordReferral(ctx context.Context, code, referredEmail string, referredEntryId int) (*entity.ReferralResult, error) {
	res := &entity.ReferralResult{}

	err := ms.Tx(ctx, func(ctx context.Context, rep dependency.Repository) error {
		referrer, err := rep.Referrals().VerifyCode(ctx, code)
		if err != nil {
			return err
		}
		res.ReferrerId = referrer.Id

		if referrer.Id == referredEntryId {
			// Self-referral, nothing to credit.
			return nil
		}

		existing, err := QueryNamedOne[entity.ReferralRecord](ctx, rep.DB(),
			`SELECT * FROM referral_record WHERE referrer_id = :referrerId AND referred_email = :email`,
			map[string]any{
				"referrerId": referrer.Id,
				"email":      referredEmail,
			})
		if err == nil {
			res.RecordId = existing.Id
			return nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("failed to check existing referral: %w", err)
		}

		newCode, err := rep.Waitlist().MintReferralCode(ctx, referredEntryId)
		if err != nil {
			return fmt.Errorf("failed to mint code for referred entry: %w", err)
		}

		recordId, err := ExecNamedLastId(ctx, rep.DB(), `
		INSERT INTO referral_record
			(referrer_id, referred_id, referred_email, referral_code_used, new_referral_code, joined_at)
		VALUES
			(:referrerId, :referredId, :referredEmail, :codeUsed, :newCode, NOW())
		`, map[string]any{
			"referrerId":    referrer.Id,
			"referredId":    referredEntryId,
			"referredEmail": referredEmail,
			"codeUsed":      code,
			"newCode":       newCode,
		})
		if err != nil {
			if rep.IsErrUniqueViolation(err) {
				// Lost the race to a concurrent redemption of the same pair.
				return nil
			}
			return fmt.Errorf("failed to insert referral record: %w", err)
		}

		promoted, err := rep.Waitlist().IncrementReferralsAndMaybePromote(ctx, referrer.Id)
		if err != nil {
			return fmt.Errorf("failed to credit referrer: %w", err)
		}

		res.Success = true
		res.Promoted = promoted
		res.RecordId = recordId
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (ms *MYSQLStore) GetReferralsByReferrer(ctx context.Context, referrerId int) ([]entity.ReferralRecord, error) {
	query := `SELECT * FROM referral_record WHERE referrer_id = :referrerId ORDER BY joined_at`
	records, err := QueryListNamed[entity.ReferralRecord](ctx, ms.DB(), query, map[string]any{
		"referrerId": referrerId,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get referrals: %w", err)
	}
	return records, nil
}
