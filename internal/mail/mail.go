package mail

import (
	"context"
	"embed"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"text/template"
	"time"

	"log/slog"

	"github.com/jekabolt/waitlist-manager/internal/dependency"
	"github.com/jekabolt/waitlist-manager/internal/entity"
	gerr "github.com/jekabolt/waitlist-manager/internal/errors"
	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
)

//go:embed templates/*.gohtml
var templatesFS embed.FS

type Config struct {
	APIKey         string        `mapstructure:"sendgrid_api_key"`
	FromEmail      string        `mapstructure:"from_email"`
	FromName       string        `mapstructure:"from_email_name"`
	ReplyTo        string        `mapstructure:"reply_to"`
	NotifyEmail    string        `mapstructure:"notify_email"`
	SiteBaseURL    string        `mapstructure:"site_base_url"`
	WorkerInterval time.Duration `mapstructure:"worker_interval"`
}

type Mailer struct {
	cli            dependency.Sender
	mailRepository dependency.Mail
	from           *sgmail.Email
	c              *Config
	ctx            context.Context
	cancel         context.CancelFunc
	templates      map[templateName]*template.Template
}

func New(c *Config, mailRepository dependency.Mail) (dependency.Mailer, error) {
	return newMailer(c, mailRepository, nil)
}

func newMailer(c *Config, mailRepository dependency.Mail, cli dependency.Sender) (*Mailer, error) {
	// Validate the configuration
	if c.APIKey == "" || c.FromEmail == "" || c.FromName == "" {
		return nil, fmt.Errorf("incomplete config: %+v", c)
	}

	if cli == nil {
		cli = sendgrid.NewSendClient(c.APIKey)
	}
	if c.WorkerInterval == 0 {
		c.WorkerInterval = time.Minute
	}

	m := &Mailer{
		cli:            cli,
		mailRepository: mailRepository,
		from:           sgmail.NewEmail(c.FromName, c.FromEmail),
		c:              c,
		templates:      make(map[templateName]*template.Template),
	}

	if err := m.parseTemplates(); err != nil {
		return nil, fmt.Errorf("error parsing templates: %w", err)
	}

	return m, nil
}

func (m *Mailer) parseTemplates() error {
	templateDir := "templates"

	dirEntries, err := templatesFS.ReadDir(templateDir)
	if err != nil {
		return fmt.Errorf("error reading template directory: %w", err)
	}

	for _, entry := range dirEntries {
		if entry.IsDir() {
			continue
		}

		templatePath := filepath.Join(templateDir, entry.Name())

		tmpl, err := template.ParseFS(templatesFS, templatePath)
		if err != nil {
			return fmt.Errorf("error parsing template '%s': %w", entry.Name(), err)
		}

		m.templates[templateName(entry.Name())] = tmpl
	}

	return nil
}

// buildEmail renders a template into the outbox row format shared by every
// sender in this package.
func (m *Mailer) buildEmail(to string, tn templateName, textFallback string, data interface{}) (*entity.SendEmailRequest, error) {
	tmpl, ok := m.templates[tn]
	if !ok {
		return nil, fmt.Errorf("template not found: %v", tn)
	}

	subject, ok := templateSubjects[tn]
	if !ok {
		return nil, fmt.Errorf("subject not found for template: %v", tn)
	}

	body := &strings.Builder{}
	if err := tmpl.Execute(body, data); err != nil {
		return nil, fmt.Errorf("error executing template: %w", err)
	}

	if textFallback == "" {
		textFallback = subject
	}

	replyTo := m.c.ReplyTo
	if replyTo == "" {
		replyTo = m.c.FromEmail
	}

	return &entity.SendEmailRequest{
		From:    m.c.FromEmail,
		To:      to,
		Html:    body.String(),
		Text:    textFallback,
		Subject: subject,
		ReplyTo: replyTo,
	}, nil
}

func (m *Mailer) send(ctx context.Context, ser *entity.SendEmailRequest) error {
	msg := sgmail.NewSingleEmail(m.from, ser.Subject, sgmail.NewEmail("", ser.To), ser.Text, ser.Html)
	msg.ReplyTo = sgmail.NewEmail("", ser.ReplyTo)

	resp, err := m.cli.SendWithContext(ctx, msg)
	if err != nil {
		return fmt.Errorf("error sending email: %w", err)
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return gerr.MailApiLimitReached
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("error sending email bad status code: %s, status code: %d", resp.Body, resp.StatusCode)
	}

	return nil
}

// sendWithInsert writes the outbox row first and then attempts delivery. A
// delivery failure is logged and left for the retry worker, it never
// propagates to the caller.
func (m *Mailer) sendWithInsert(ctx context.Context, rep dependency.Repository, ser *entity.SendEmailRequest) error {
	id, err := rep.Mail().AddMail(ctx, ser)
	if err != nil {
		return fmt.Errorf("error inserting email: %w", err)
	}

	if err := m.send(ctx, ser); err != nil {
		// mail send failed, it will be retried by the worker
		slog.Default().ErrorContext(ctx, "can't send mail",
			slog.String("err", err.Error()),
		)
		return nil
	}

	if err := rep.Mail().UpdateSent(ctx, id); err != nil {
		return fmt.Errorf("error updating email: %w", err)
	}

	return nil
}
