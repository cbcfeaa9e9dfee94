package httpapi

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/jekabolt/waitlist-manager/internal/entity"
	gerr "github.com/jekabolt/waitlist-manager/internal/errors"
)

const webhookBodyLimit = 1 << 16

type SignupRequest struct {
	Email        string `json:"email"`
	FirstName    string `json:"firstName"`
	ReferralCode string `json:"referralCode"`
}

func (sr *SignupRequest) Bind(r *http.Request) error {
	if sr.Email == "" {
		return fmt.Errorf("missing required field: email")
	}
	return nil
}

type ConfirmRequest struct {
	SessionId string `json:"sessionId"`
}

func (cr *ConfirmRequest) Bind(r *http.Request) error {
	if cr.SessionId == "" {
		return fmt.Errorf("missing required field: sessionId")
	}
	return nil
}

type UnsubscribeRequest struct {
	Email string `json:"email"`
}

func (ur *UnsubscribeRequest) Bind(r *http.Request) error {
	if ur.Email == "" {
		return fmt.Errorf("missing required field: email")
	}
	return nil
}

type PreferencesRequest struct {
	Email               string `json:"email"`
	Frequency           string `json:"frequency"`
	PromoOptIn          bool   `json:"promoOptIn"`
	ProductUpdatesOptIn bool   `json:"productUpdatesOptIn"`
}

func (pr *PreferencesRequest) Bind(r *http.Request) error {
	if pr.Email == "" {
		return fmt.Errorf("missing required field: email")
	}
	switch entity.EmailFrequency(pr.Frequency) {
	case entity.FrequencyDaily, entity.FrequencyWeekly, entity.FrequencyNever:
		return nil
	}
	return fmt.Errorf("invalid frequency: %s", pr.Frequency)
}

func (s *Server) renderErr(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, gerr.ErrEntryNotFound), errors.Is(err, gerr.ErrReferralCodeNotFound):
		render.Render(w, r, ErrNotFound)
	case errors.Is(err, gerr.ErrCheckoutCreationFailed), errors.Is(err, gerr.ErrPaymentConfirmationFailed):
		render.Render(w, r, ErrBadGateway(err))
	case errors.Is(err, gerr.ErrMissingMetadata):
		render.Render(w, r, ErrInvalidRequest(err))
	default:
		render.Render(w, r, ErrInternalServerError(err))
	}
}

func (s *Server) handleCheckout(w http.ResponseWriter, r *http.Request) {
	req := &SignupRequest{}
	if err := render.Bind(r, req); err != nil {
		render.Render(w, r, ErrInvalidRequest(err))
		return
	}

	start, err := s.signup.CreateCheckout(r.Context(), req.Email, req.FirstName, req.ReferralCode)
	if err != nil {
		s.renderErr(w, r, err)
		return
	}
	render.Render(w, r, NewCheckoutResponse(start))
}

func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request) {
	req := &ConfirmRequest{}
	if err := render.Bind(r, req); err != nil {
		render.Render(w, r, ErrInvalidRequest(err))
		return
	}

	state, err := s.signup.ConfirmPayment(r.Context(), req.SessionId)
	if err != nil {
		s.renderErr(w, r, err)
		return
	}
	render.Render(w, r, NewStateResponse(state))
}

func (s *Server) handleJoin(w http.ResponseWriter, r *http.Request) {
	req := &SignupRequest{}
	if err := render.Bind(r, req); err != nil {
		render.Render(w, r, ErrInvalidRequest(err))
		return
	}

	state, err := s.signup.JoinWithoutPayment(r.Context(), req.Email, req.FirstName, req.ReferralCode)
	if err != nil {
		s.renderErr(w, r, err)
		return
	}
	render.Render(w, r, NewStateResponse(state))
}

func (s *Server) handleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	req := &UnsubscribeRequest{}
	if err := render.Bind(r, req); err != nil {
		render.Render(w, r, ErrInvalidRequest(err))
		return
	}

	if err := s.rep.Preferences().Unsubscribe(r.Context(), req.Email); err != nil {
		s.renderErr(w, r, err)
		return
	}
	render.Render(w, r, &StatusResponse{Status: "unsubscribed"})
}

// handleUnsubscribeLink serves the one-click opt-out link from campaign
// emails. The address travels base64-encoded in the path, URL-safe alphabet.
func (s *Server) handleUnsubscribeLink(w http.ResponseWriter, r *http.Request) {
	emailDecoded, err := base64.RawURLEncoding.DecodeString(chi.URLParam(r, "emailB64"))
	if err != nil {
		render.Render(w, r, ErrInvalidRequest(err))
		return
	}

	if err := s.rep.Preferences().Unsubscribe(r.Context(), string(emailDecoded)); err != nil {
		s.renderErr(w, r, err)
		return
	}
	render.Render(w, r, &StatusResponse{Status: "unsubscribed"})
}

func (s *Server) handleCount(w http.ResponseWriter, r *http.Request) {
	if count, ok := s.count.Get(); ok {
		render.Render(w, r, &CountResponse{Count: count})
		return
	}

	count, err := s.signup.TotalCount(r.Context())
	if err != nil {
		s.renderErr(w, r, err)
		return
	}
	s.count.Set(count)
	render.Render(w, r, &CountResponse{Count: count})
}

func (s *Server) handleEntry(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	if email == "" {
		render.Render(w, r, ErrInvalidRequest(fmt.Errorf("missing required query param: email")))
		return
	}

	state, err := s.signup.EntryState(r.Context(), email)
	if err != nil {
		s.renderErr(w, r, err)
		return
	}
	render.Render(w, r, NewStateResponse(state))
}

func (s *Server) handlePreferences(w http.ResponseWriter, r *http.Request) {
	req := &PreferencesRequest{}
	if err := render.Bind(r, req); err != nil {
		render.Render(w, r, ErrInvalidRequest(err))
		return
	}

	entry, err := s.rep.Waitlist().GetEntryByEmail(r.Context(), req.Email)
	if err != nil {
		s.renderErr(w, r, err)
		return
	}

	prefs := &entity.SubscriberPreferences{
		EntryId:             entry.Id,
		Frequency:           entity.EmailFrequency(req.Frequency),
		PromoOptIn:          req.PromoOptIn,
		ProductUpdatesOptIn: req.ProductUpdatesOptIn,
		Unsubscribed:        entity.EmailFrequency(req.Frequency) == entity.FrequencyNever,
	}
	if err := s.rep.Preferences().Upsert(r.Context(), prefs); err != nil {
		s.renderErr(w, r, err)
		return
	}
	render.Render(w, r, &StatusResponse{Status: "updated"})
}

// handleStripeWebhook confirms signups driven by the payment provider. Events
// other than a completed checkout are acknowledged and dropped. A duplicate
// of an already confirmed session is a no-op thanks to the idempotent confirm
// path.
func (s *Server) handleStripeWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, webhookBodyLimit))
	if err != nil {
		render.Render(w, r, ErrInvalidRequest(err))
		return
	}

	sessionId, err := s.payment.ParseWebhookEvent(payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		render.Render(w, r, ErrInvalidRequest(err))
		return
	}
	if sessionId == "" {
		render.Render(w, r, &StatusResponse{Status: "ignored"})
		return
	}

	if _, err := s.signup.ConfirmPayment(r.Context(), sessionId); err != nil {
		slog.Default().ErrorContext(r.Context(), "can't confirm webhook session",
			slog.String("session_id", sessionId),
			slog.String("err", err.Error()),
		)
		s.renderErr(w, r, err)
		return
	}
	render.Render(w, r, &StatusResponse{Status: "confirmed"})
}

func (s *Server) handleDripRun(w http.ResponseWriter, r *http.Request) {
	if err := s.drip.RunOnce(r.Context(), time.Now()); err != nil {
		s.renderErr(w, r, err)
		return
	}
	render.Render(w, r, &StatusResponse{Status: "completed"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Ping(r.Context()); err != nil {
		render.Render(w, r, ErrInternalServerError(err))
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}
