package stripe

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/jekabolt/waitlist-manager/internal/entity"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"
)

// Metadata keys carried on the checkout session. They are the only channel
// through which signup details survive the redirect round trip.
const (
	metaEmail         = "email"
	metaFirstName     = "first_name"
	metaQueuePosition = "queue_position"
	metaReferralCode  = "referral_code"
	metaEntryUUID     = "entry_uuid"
)

// CreateCheckoutSession opens a hosted checkout session for the signup fee,
// carrying the signup details as opaque session metadata.
func (p *Processor) CreateCheckoutSession(ctx context.Context, md entity.CheckoutMetadata) (*entity.CheckoutSession, error) {
	// Amount in the smallest currency unit (e.g. cents for USD)
	amountCents := p.fee.Mul(decimal.NewFromInt(100)).IntPart()

	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency: stripe.String(p.c.Currency),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(p.c.ProductName),
					},
					UnitAmount: stripe.Int64(amountCents),
				},
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL:    stripe.String(p.c.SuccessURL),
		CancelURL:     stripe.String(p.c.CancelURL),
		CustomerEmail: stripe.String(md.Email),
		Metadata: map[string]string{
			metaEmail:         md.Email,
			metaFirstName:     md.FirstName,
			metaQueuePosition: strconv.Itoa(md.QueuePosition),
			metaReferralCode:  md.ReferralCode,
			metaEntryUUID:     md.EntryUUID,
		},
	}
	params.Context = ctx

	cs, err := p.sc.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create checkout session: %w", err)
	}

	return &entity.CheckoutSession{
		SessionId:   cs.ID,
		RedirectURL: cs.URL,
		Metadata:    md,
	}, nil
}

// GetCheckoutSession fetches a session back from the provider and converts it
// to the provider-neutral form. Metadata fields come back as written at
// session creation; an empty email or first name means the session was not
// created by us.
func (p *Processor) GetCheckoutSession(ctx context.Context, sessionId string) (*entity.CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx

	cs, err := p.sc.CheckoutSessions.Get(sessionId, params)
	if err != nil {
		return nil, fmt.Errorf("failed to get checkout session: %w", err)
	}

	return convertSession(cs), nil
}

func convertSession(cs *stripe.CheckoutSession) *entity.CheckoutSession {
	out := &entity.CheckoutSession{
		SessionId:   cs.ID,
		RedirectURL: cs.URL,
		Paid:        cs.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid,
	}
	if cs.Customer != nil {
		out.CustomerId = cs.Customer.ID
	}
	if cs.PaymentIntent != nil {
		out.PaymentIntentId = cs.PaymentIntent.ID
	}

	pos, _ := strconv.Atoi(cs.Metadata[metaQueuePosition])
	out.Metadata = entity.CheckoutMetadata{
		Email:         cs.Metadata[metaEmail],
		FirstName:     cs.Metadata[metaFirstName],
		QueuePosition: pos,
		ReferralCode:  cs.Metadata[metaReferralCode],
		EntryUUID:     cs.Metadata[metaEntryUUID],
	}
	return out
}

// ParseWebhookEvent verifies the webhook signature and, for a completed
// checkout, returns the session id to confirm. Other event types come back
// with an empty session id and are ignored by the caller.
func (p *Processor) ParseWebhookEvent(payload []byte, sigHeader string) (string, error) {
	event, err := webhook.ConstructEvent(payload, sigHeader, p.c.WebhookSecret)
	if err != nil {
		return "", fmt.Errorf("webhook signature verification failed: %w", err)
	}

	if event.Type != stripe.EventTypeCheckoutSessionCompleted {
		return "", nil
	}

	var cs stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &cs); err != nil {
		return "", fmt.Errorf("failed to unmarshal checkout session: %w", err)
	}
	return cs.ID, nil
}
