package entity

// CheckoutMetadata is the opaque metadata bag carried on a hosted checkout
// session. The queue position in it is optimistic: it is reserved at session
// creation time and the real position is assigned transactionally when the
// entry is created on confirmation.
type CheckoutMetadata struct {
	Email         string
	FirstName     string
	QueuePosition int
	ReferralCode  string
	EntryUUID     string
}

// CheckoutStart is the outcome of opening a checkout: either a redirect URL
// to the hosted payment page, or the current state of an already existing
// entry for the same email.
type CheckoutStart struct {
	RedirectURL string       `json:"redirectUrl,omitempty"`
	Existing    *SignupState `json:"existing,omitempty"`
}

// CheckoutSession is the provider-neutral view of a hosted checkout session.
type CheckoutSession struct {
	SessionId       string
	RedirectURL     string
	PaymentIntentId string
	CustomerId      string
	Paid            bool
	Metadata        CheckoutMetadata
}
