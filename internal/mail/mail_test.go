package mail

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/jekabolt/waitlist-manager/internal/dependency"
	"github.com/jekabolt/waitlist-manager/internal/dto"
	"github.com/jekabolt/waitlist-manager/internal/entity"
	gerr "github.com/jekabolt/waitlist-manager/internal/errors"
	"github.com/sendgrid/rest"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	statusCode int
	sent       []*sgmail.SGMailV3
}

func (f *fakeSender) SendWithContext(ctx context.Context, email *sgmail.SGMailV3) (*rest.Response, error) {
	f.sent = append(f.sent, email)
	code := f.statusCode
	if code == 0 {
		code = http.StatusAccepted
	}
	return &rest.Response{StatusCode: code}, nil
}

type fakeMailRepo struct {
	rows   []entity.SendEmailRequest
	sent   map[int]bool
	errors map[int]string
}

func newFakeMailRepo() *fakeMailRepo {
	return &fakeMailRepo{
		sent:   make(map[int]bool),
		errors: make(map[int]string),
	}
}

func (f *fakeMailRepo) AddMail(ctx context.Context, ser *entity.SendEmailRequest) (int, error) {
	row := *ser
	row.Id = len(f.rows) + 1
	f.rows = append(f.rows, row)
	return row.Id, nil
}

func (f *fakeMailRepo) GetAllUnsent(ctx context.Context, withError bool) ([]entity.SendEmailRequest, error) {
	var unsent []entity.SendEmailRequest
	for _, row := range f.rows {
		if !f.sent[row.Id] {
			unsent = append(unsent, row)
		}
	}
	return unsent, nil
}

func (f *fakeMailRepo) UpdateSent(ctx context.Context, id int) error {
	f.sent[id] = true
	return nil
}

func (f *fakeMailRepo) AddError(ctx context.Context, id int, errMsg string) error {
	f.errors[id] = errMsg
	return nil
}

// repoWithMail is the slice of the repository the outbox senders touch.
type repoWithMail struct {
	dependency.Repository
	mail dependency.Mail
}

func (r *repoWithMail) Mail() dependency.Mail { return r.mail }

func newTestMailer(t *testing.T, cli *fakeSender, repo *fakeMailRepo) *Mailer {
	m, err := newMailer(&Config{
		APIKey:      "test-key",
		FromEmail:   "hello@example.com",
		FromName:    "Waitlist",
		NotifyEmail: "team@example.com",
		SiteBaseURL: "https://example.com",
	}, repo, cli)
	require.NoError(t, err)
	return m
}

func TestTemplatesRender(t *testing.T) {
	cli := &fakeSender{}
	m := newTestMailer(t, cli, newFakeMailRepo())

	data := map[string]any{
		"Preheader":      "preheader",
		"FirstName":      "Ada",
		"QueuePosition":  42,
		"ReferralCode":   "ABCD2345",
		"ReferralURL":    "https://example.com?ref=ABCD2345",
		"UnsubscribeURL": "https://example.com/api/waitlist/unsubscribe/dG9AZXhhbXBsZS5jb20",
		"Email":          "to@example.com",
		"PaymentStatus":  "completed",
		"ReferredBy":     "friend@example.com",
	}

	for tn := range templateSubjects {
		ser, err := m.buildEmail("to@example.com", tn, "", data)
		require.NoError(t, err, string(tn))
		assert.NotEmpty(t, ser.Html)
		assert.NotEmpty(t, ser.Subject)
		assert.NotContains(t, ser.Html, "<no value>")
	}
}

func TestSendDripStage(t *testing.T) {
	cli := &fakeSender{}
	m := newTestMailer(t, cli, newFakeMailRepo())
	ctx := context.Background()

	err := m.SendDripStage(ctx, "to@example.com", entity.EmailTypeContentPreview, &dto.DripStageData{
		FirstName:    "Ada",
		ReferralCode: "ABCD2345",
	})
	require.NoError(t, err)
	require.Len(t, cli.sent, 1)

	html := cli.sent[0].Content[1].Value
	assert.Contains(t, html, "ref=ABCD2345")

	err = m.SendDripStage(ctx, "to@example.com", entity.EmailType("bogus"), &dto.DripStageData{})
	assert.Error(t, err)
}

func TestSendDripStageApiLimit(t *testing.T) {
	cli := &fakeSender{statusCode: http.StatusTooManyRequests}
	m := newTestMailer(t, cli, newFakeMailRepo())

	err := m.SendDripStage(context.Background(), "to@example.com", entity.EmailTypeCommunityWelcome, &dto.DripStageData{})
	assert.ErrorIs(t, err, gerr.MailApiLimitReached)
}

func TestSendWaitlistConfirmedOutbox(t *testing.T) {
	cli := &fakeSender{}
	repo := newFakeMailRepo()
	m := newTestMailer(t, cli, repo)
	ctx := context.Background()

	err := m.SendWaitlistConfirmed(ctx, &repoWithMail{mail: repo}, "to@example.com", &dto.WaitlistConfirmed{
		FirstName:     "Ada",
		QueuePosition: 7,
		ReferralCode:  "ABCD2345",
		Paid:          true,
	})
	require.NoError(t, err)
	require.Len(t, repo.rows, 1)
	assert.True(t, repo.sent[1])
	assert.Contains(t, repo.rows[0].Html, "ref=ABCD2345")
}

func TestSendWithInsertDeliveryFailure(t *testing.T) {
	cli := &fakeSender{statusCode: http.StatusInternalServerError}
	repo := newFakeMailRepo()
	m := newTestMailer(t, cli, repo)

	err := m.sendWithInsert(context.Background(), &repoWithMail{mail: repo}, &entity.SendEmailRequest{
		From:    "hello@example.com",
		To:      "to@example.com",
		Html:    "<p>hi</p>",
		Text:    "hi",
		Subject: "subject",
		ReplyTo: "hello@example.com",
	})
	// left unsent for the retry worker
	require.NoError(t, err)
	require.Len(t, repo.rows, 1)
	assert.False(t, repo.sent[1])
}

func TestWorkerHandleUnsent(t *testing.T) {
	cli := &fakeSender{}
	repo := newFakeMailRepo()
	m := newTestMailer(t, cli, repo)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := repo.AddMail(ctx, &entity.SendEmailRequest{
			From:    "hello@example.com",
			To:      "to@example.com",
			Html:    "<p>hi</p>",
			Text:    "hi",
			Subject: "subject",
			ReplyTo: "hello@example.com",
		})
		require.NoError(t, err)
	}

	require.NoError(t, m.handleUnsent(ctx))
	assert.Len(t, cli.sent, 3)
	for id := 1; id <= 3; id++ {
		assert.True(t, repo.sent[id])
	}
}

func TestReferralURL(t *testing.T) {
	assert.Equal(t, "https://example.com", dto.ReferralURL("https://example.com", ""))

	url := dto.ReferralURL("https://example.com", "ABCD2345")
	assert.True(t, strings.HasSuffix(url, "?ref=ABCD2345"))
}

func TestUnsubscribeURL(t *testing.T) {
	url := dto.UnsubscribeURL("https://example.com", "to@example.com")
	assert.Equal(t, "https://example.com/api/waitlist/unsubscribe/dG9AZXhhbXBsZS5jb20", url)

	// Addresses whose standard base64 encoding carries '/' or '+' must still
	// fit in one path segment.
	url = dto.UnsubscribeURL("https://example.com", "???a@b.co")
	assert.Equal(t, "https://example.com/api/waitlist/unsubscribe/Pz8_YUBiLmNv", url)
	segment := strings.TrimPrefix(url, "https://example.com/api/waitlist/unsubscribe/")
	assert.NotContains(t, segment, "/")
	assert.NotContains(t, segment, "=")
}
