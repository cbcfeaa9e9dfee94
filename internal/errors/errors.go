package gerr

import "errors"

var (
	// ErrDuplicateEmail means an entry already exists for the submitted
	// email. Callers treat it as success with the existing entry's state,
	// joining the waitlist is idempotent.
	ErrDuplicateEmail = errors.New("entry already exists for email")

	// ErrEntryNotFound means no waitlist entry exists for the lookup key.
	ErrEntryNotFound = errors.New("waitlist entry not found")

	// ErrReferralCodeNotFound means the submitted referral code does not
	// belong to any entry. Redemption is skipped, the signup still succeeds.
	ErrReferralCodeNotFound = errors.New("referral code not found")

	// ErrCheckoutCreationFailed means the checkout provider rejected or
	// failed the session creation. Safe to retry.
	ErrCheckoutCreationFailed = errors.New("checkout session creation failed")

	// ErrPaymentConfirmationFailed means the session could not be fetched
	// back from the provider. Safe to retry.
	ErrPaymentConfirmationFailed = errors.New("payment confirmation failed")

	// ErrMissingMetadata means the checkout session came back without the
	// signup fields it was created with.
	ErrMissingMetadata = errors.New("checkout session metadata missing")

	MailApiLimitReached = errors.New("mail api limit reached")
)
