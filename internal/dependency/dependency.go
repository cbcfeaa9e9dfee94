package dependency

import (
	"context"
	"database/sql"
	"time"

	"github.com/jekabolt/waitlist-manager/internal/dto"
	"github.com/jekabolt/waitlist-manager/internal/entity"
	"github.com/jmoiron/sqlx"
	"github.com/sendgrid/rest"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
)

type (
	ContextStore interface {
		Tx(ctx context.Context, fn func(ctx context.Context, store Repository) error) error
	}

	Waitlist interface {
		ContextStore
		// CreateEntry inserts a new entry and assigns the next queue position
		// atomically with the insert. Returns gerr.ErrDuplicateEmail if an
		// entry for the email already exists.
		CreateEntry(ctx context.Context, insert *entity.WaitlistEntryInsert) (*entity.WaitlistEntry, error)
		// GetEntryByEmail returns the entry for an email or gerr.ErrEntryNotFound.
		GetEntryByEmail(ctx context.Context, email string) (*entity.WaitlistEntry, error)
		// GetEntryById returns the entry by its internal id or gerr.ErrEntryNotFound.
		GetEntryById(ctx context.Context, id int) (*entity.WaitlistEntry, error)
		// GetTotalCount returns the highest assigned queue position, 0 when empty.
		GetTotalCount(ctx context.Context) (int, error)
		// MarkCompleted transitions a pending entry to completed and stamps
		// the boarding pass sent time.
		MarkCompleted(ctx context.Context, email string, sessionId, customerId string) error
		// MintReferralCode returns the entry's referral code, generating and
		// persisting one if it has none yet.
		MintReferralCode(ctx context.Context, entryId int) (string, error)
		// IncrementReferralsAndMaybePromote bumps the successful referral
		// counter and reports whether the entry was promoted to VIP by it.
		IncrementReferralsAndMaybePromote(ctx context.Context, entryId int) (bool, error)
	}

	Referrals interface {
		// VerifyCode resolves a referral code to its owner entry or returns
		// gerr.ErrReferralCodeNotFound.
		VerifyCode(ctx context.Context, code string) (*entity.WaitlistEntry, error)
		// RecordReferral credits a redeemed code to its owner. A duplicate
		// (referrer, referred email) pair yields Success=false with no error.
		RecordReferral(ctx context.Context, code, referredEmail string, referredEntryId int) (*entity.ReferralResult, error)
		GetReferralsByReferrer(ctx context.Context, referrerId int) ([]entity.ReferralRecord, error)
	}

	Drip interface {
		// GetEligibleEntries returns entries whose age in calendar days as of
		// the run date equals the stage offset and that have no tracking
		// record for the stage's email type yet.
		GetEligibleEntries(ctx context.Context, stage entity.DripStage, runDate time.Time) ([]entity.WaitlistEntry, error)
		// AddTrackingRecord marks the stage sent for an entry. The unique
		// (entry, email type) key makes a second insert fail.
		AddTrackingRecord(ctx context.Context, entryId int, emailType entity.EmailType, sequenceDay int) error
		GetTrackingByEntry(ctx context.Context, entryId int) ([]entity.SequenceTrackingRecord, error)
	}

	Preferences interface {
		// GetByEntryId returns the stored preferences row or the all-opted-in
		// defaults when the entry never edited them.
		GetByEntryId(ctx context.Context, entryId int) (*entity.SubscriberPreferences, error)
		Upsert(ctx context.Context, prefs *entity.SubscriberPreferences) error
		// Unsubscribe sets unsubscribed=true for the entry owning the email,
		// creating the preferences row if needed.
		Unsubscribe(ctx context.Context, email string) error
	}

	Mail interface {
		AddMail(ctx context.Context, ser *entity.SendEmailRequest) (int, error)
		GetAllUnsent(ctx context.Context, withError bool) ([]entity.SendEmailRequest, error)
		UpdateSent(ctx context.Context, id int) error
		AddError(ctx context.Context, id int, errMsg string) error
	}

	Repository interface {
		Waitlist() Waitlist
		Referrals() Referrals
		Drip() Drip
		Preferences() Preferences
		Mail() Mail
		Tx(ctx context.Context, f func(context.Context, Repository) error) error
		TxBegin(ctx context.Context) (Repository, error)
		TxCommit(ctx context.Context) error
		TxRollback(ctx context.Context) error
		Now() time.Time
		InTx() bool
		Close()
		IsErrUniqueViolation(err error) bool
		IsErrorRepeat(err error) bool
		DB() DB
	}

	// DB represents database interface.
	DB interface {
		BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
		ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)

		// sqlx methods
		GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
		NamedExecContext(ctx context.Context, query string, arg interface{}) (sql.Result, error)
		PrepareNamedContext(ctx context.Context, query string) (*sqlx.NamedStmt, error)
		PreparexContext(ctx context.Context, query string) (*sqlx.Stmt, error)
		QueryRowxContext(ctx context.Context, query string, args ...interface{}) *sqlx.Row
		QueryxContext(ctx context.Context, query string, args ...interface{}) (*sqlx.Rows, error)
		SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	}

	Mailer interface {
		// Outbox-backed senders: the mail row is written first, delivery
		// failures are retried by the worker and never surface to callers.
		SendWaitlistConfirmed(ctx context.Context, rep Repository, to string, d *dto.WaitlistConfirmed) error
		SendVipPromoted(ctx context.Context, rep Repository, to string, d *dto.VipPromoted) error
		SendNewSignupInternal(ctx context.Context, rep Repository, d *dto.NewSignupInternal) error
		// SendDripStage delivers synchronously and returns the delivery
		// error, so the scheduler can withhold its tracking record.
		SendDripStage(ctx context.Context, to string, et entity.EmailType, d *dto.DripStageData) error
		Start(ctx context.Context) error
		Stop() error
	}

	Sender interface {
		SendWithContext(ctx context.Context, email *sgmail.SGMailV3) (*rest.Response, error)
	}

	Payment interface {
		CreateCheckoutSession(ctx context.Context, md entity.CheckoutMetadata) (*entity.CheckoutSession, error)
		GetCheckoutSession(ctx context.Context, sessionId string) (*entity.CheckoutSession, error)
		// ParseWebhookEvent verifies a webhook payload and returns the session
		// id for a completed checkout, or an empty id for other event types.
		ParseWebhookEvent(payload []byte, sigHeader string) (string, error)
	}

	Signup interface {
		CreateCheckout(ctx context.Context, email, firstName, referralCode string) (*entity.CheckoutStart, error)
		ConfirmPayment(ctx context.Context, sessionId string) (*entity.SignupState, error)
		JoinWithoutPayment(ctx context.Context, email, firstName, referralCode string) (*entity.SignupState, error)
		EntryState(ctx context.Context, email string) (*entity.SignupState, error)
		TotalCount(ctx context.Context) (int, error)
	}
)
