package mail

import (
	"context"
	"fmt"

	"github.com/jekabolt/waitlist-manager/internal/dependency"
	"github.com/jekabolt/waitlist-manager/internal/dto"
	"github.com/jekabolt/waitlist-manager/internal/entity"
)

type templateName string

const (
	WaitlistConfirmed templateName = "waitlist_confirmed.gohtml"
	CommunityWelcome  templateName = "community_welcome.gohtml"
	ContentPreview    templateName = "content_preview.gohtml"
	FounderStory      templateName = "founder_story.gohtml"
	ReferralReminder  templateName = "referral_reminder.gohtml"
	VipPromoted       templateName = "vip_promoted.gohtml"
	NewSignupInternal templateName = "new_signup_internal.gohtml"
)

// Define a map for template names to subjects
var templateSubjects = map[templateName]string{
	WaitlistConfirmed: "You're on the list",
	CommunityWelcome:  "Welcome to the community",
	ContentPreview:    "A first look at what we're building",
	FounderStory:      "Why we started this",
	ReferralReminder:  "Skip the line: share your invite",
	VipPromoted:       "You've unlocked VIP access",
	NewSignupInternal: "New waitlist signup",
}

// dripTemplates binds each drip campaign email type to its template.
var dripTemplates = map[entity.EmailType]templateName{
	entity.EmailTypeCommunityWelcome: CommunityWelcome,
	entity.EmailTypeContentPreview:   ContentPreview,
	entity.EmailTypeFounderStory:     FounderStory,
	entity.EmailTypeReferralReminder: ReferralReminder,
}

// SendWaitlistConfirmed sends the boarding pass email after a finalized signup.
func (m *Mailer) SendWaitlistConfirmed(ctx context.Context, rep dependency.Repository, to string, d *dto.WaitlistConfirmed) error {
	if d.QueuePosition == 0 {
		return fmt.Errorf("incomplete boarding pass details: %+v", d)
	}
	d.ReferralURL = dto.ReferralURL(m.c.SiteBaseURL, d.ReferralCode)
	ser, err := m.buildEmail(to, WaitlistConfirmed, d.Preheader, d)
	if err != nil {
		return err
	}
	return m.sendWithInsert(ctx, rep, ser)
}

// SendVipPromoted sends the promotion email once an entry crosses the
// referral threshold.
func (m *Mailer) SendVipPromoted(ctx context.Context, rep dependency.Repository, to string, d *dto.VipPromoted) error {
	ser, err := m.buildEmail(to, VipPromoted, d.Preheader, d)
	if err != nil {
		return err
	}
	return m.sendWithInsert(ctx, rep, ser)
}

// SendNewSignupInternal notifies the team about a finalized signup.
func (m *Mailer) SendNewSignupInternal(ctx context.Context, rep dependency.Repository, d *dto.NewSignupInternal) error {
	if m.c.NotifyEmail == "" {
		return nil
	}
	ser, err := m.buildEmail(m.c.NotifyEmail, NewSignupInternal, "", d)
	if err != nil {
		return err
	}
	return m.sendWithInsert(ctx, rep, ser)
}

// SendDripStage delivers one drip campaign email synchronously. Unlike the
// outbox senders it returns the delivery error: the scheduler must not write
// its tracking record for a send that didn't happen.
func (m *Mailer) SendDripStage(ctx context.Context, to string, et entity.EmailType, d *dto.DripStageData) error {
	tn, ok := dripTemplates[et]
	if !ok {
		return fmt.Errorf("unknown drip email type: %s", et)
	}
	d.ReferralURL = dto.ReferralURL(m.c.SiteBaseURL, d.ReferralCode)
	d.UnsubscribeURL = dto.UnsubscribeURL(m.c.SiteBaseURL, to)
	ser, err := m.buildEmail(to, tn, d.Preheader, d)
	if err != nil {
		return err
	}
	return m.send(ctx, ser)
}
