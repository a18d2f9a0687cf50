package jobs

import (
	"bytes"
	"context"
	"fmt"
	"html/template"

	"github.com/rs/zerolog"
	"github.com/wneessen/go-mail"
)

// Mailer sends one HTML email.
type Mailer interface {
	SendEmail(ctx context.Context, to, subject, html string) error
}

// SMTPConfig holds outgoing mail settings.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPMailer delivers through an SMTP relay.
type SMTPMailer struct {
	config SMTPConfig
}

// NewSMTPMailer creates an SMTP mailer.
func NewSMTPMailer(config SMTPConfig) *SMTPMailer {
	return &SMTPMailer{config: config}
}

// SendEmail dials the relay, sends one message and disconnects.
func (m *SMTPMailer) SendEmail(ctx context.Context, to, subject, html string) error {
	msg := mail.NewMsg()
	if err := msg.From(m.config.From); err != nil {
		return fmt.Errorf("mail: invalid from address: %w", err)
	}
	if err := msg.To(to); err != nil {
		return fmt.Errorf("mail: invalid recipient %q: %w", to, err)
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextHTML, html)

	opts := []mail.Option{mail.WithPort(m.config.Port)}
	if m.config.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(m.config.Username),
			mail.WithPassword(m.config.Password),
		)
	}
	client, err := mail.NewClient(m.config.Host, opts...)
	if err != nil {
		return fmt.Errorf("mail: failed to create client: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("mail: send to %s: %w", to, err)
	}
	return nil
}

// NewMailer returns an SMTP mailer when config names a host and a LogMailer
// otherwise.
func NewMailer(config SMTPConfig, logger zerolog.Logger) Mailer {
	if config.Host == "" {
		logger.Warn().Msg("smtp not configured, notification emails are logged only")
		return NewLogMailer(logger)
	}
	return NewSMTPMailer(config)
}

// LogMailer only logs emails. It is used when SMTP is not configured.
type LogMailer struct {
	log zerolog.Logger
}

// NewLogMailer creates a LogMailer.
func NewLogMailer(logger zerolog.Logger) *LogMailer {
	return &LogMailer{log: logger}
}

// SendEmail logs the email and succeeds.
func (m *LogMailer) SendEmail(_ context.Context, to, subject, html string) error {
	m.log.Info().Str("to", to).Str("subject", subject).Int("bytes", len(html)).Msg("email not sent, smtp disabled")
	return nil
}

var messageEmailTmpl = template.Must(template.New("message").Parse(
	`<h2>You have a new message from {{.SenderName}}</h2>
<p>{{.Content}}</p>
<p>Open the app to reply.</p>
`))

// RenderMessageEmail returns the subject and HTML body for j. Sender name and
// content are escaped.
func RenderMessageEmail(j MessageEmail) (string, string, error) {
	var buf bytes.Buffer
	if err := messageEmailTmpl.Execute(&buf, j); err != nil {
		return "", "", fmt.Errorf("mail: render message email: %w", err)
	}
	return "New message from " + j.SenderName, buf.String(), nil
}
