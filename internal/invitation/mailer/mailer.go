// Package mailer delivers invitation codes to targeted addresses over SMTP.
package mailer

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"net/url"
	"text/template"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/wneessen/go-mail"

	"sso-hub/internal/platform/logging"
)

// Invitation is the content of one invitation mail. Code is the raw code and is sent only here.
type Invitation struct {
	To        string
	Code      string
	Role      string
	Scope     string
	ExpiresAt *time.Time
}

// Mailer sends invitation mails.
type Mailer interface {
	SendInvitation(ctx context.Context, inv Invitation) error
}

// SMTPConfig configures SMTPMailer.
type SMTPConfig struct {
	Host     string
	Port     int
	TLS      bool
	Username string
	Password string
	From     string
	// BaseURL is the acceptance page; the code is appended as the "code" query parameter.
	BaseURL string
}

var bodyTemplate = template.Must(template.New("invitation").Parse(`You have been invited to join as {{.Role}} ({{.Scope}}).

Accept the invitation: {{.Link}}
{{if .ExpiresAt}}
This invitation expires on {{.ExpiresAt.Format "2006-01-02 15:04 MST"}}.
{{end}}`))

const subject = "You have been invited"

// SMTPMailer sends mail with go-mail.
type SMTPMailer struct {
	cfg    SMTPConfig
	client *mail.Client
	log    *logrus.Logger
}

// NewSMTPMailer returns a mailer for cfg. Authentication is enabled when a username is set.
func NewSMTPMailer(cfg SMTPConfig, log *logrus.Logger) (*SMTPMailer, error) {
	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTimeout(30 * time.Second),
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}
	if cfg.TLS {
		opts = append(opts, mail.WithTLSConfig(&tls.Config{ServerName: cfg.Host, MinVersion: tls.VersionTLS12}), mail.WithTLSPolicy(mail.TLSMandatory))
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
	}
	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("smtp client: %w", err)
	}
	return &SMTPMailer{cfg: cfg, client: client, log: logging.Default(log)}, nil
}

// SendInvitation renders and sends the invitation mail.
func (m *SMTPMailer) SendInvitation(ctx context.Context, inv Invitation) error {
	msg, err := BuildMessage(m.cfg.From, m.cfg.BaseURL, inv)
	if err != nil {
		return err
	}
	if err := m.client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("send invitation mail: %w", err)
	}
	m.log.WithFields(logrus.Fields{"host": m.cfg.Host, "role": inv.Role}).Info("invitation mail sent")
	return nil
}

// BuildMessage renders inv into a message from the given sender.
func BuildMessage(from, baseURL string, inv Invitation) (*mail.Msg, error) {
	if inv.To == "" {
		return nil, fmt.Errorf("invitation mail requires a recipient")
	}
	link, err := acceptLink(baseURL, inv.Code)
	if err != nil {
		return nil, err
	}
	var body bytes.Buffer
	err = bodyTemplate.Execute(&body, struct {
		Invitation
		Link string
	}{inv, link})
	if err != nil {
		return nil, fmt.Errorf("render invitation mail: %w", err)
	}
	msg := mail.NewMsg(mail.WithEncoding(mail.NoEncoding))
	if err := msg.From(from); err != nil {
		return nil, fmt.Errorf("from address: %w", err)
	}
	if err := msg.To(inv.To); err != nil {
		return nil, fmt.Errorf("to address: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, body.String())
	return msg, nil
}

func acceptLink(baseURL, code string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("invite base url: %w", err)
	}
	q := u.Query()
	q.Set("code", code)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Nop logs that a mail would have been sent, without the code.
type Nop struct {
	Log *logrus.Logger
}

func (n Nop) SendInvitation(ctx context.Context, inv Invitation) error {
	logging.Default(n.Log).WithField("role", inv.Role).Debug("mail delivery disabled; invitation mail not sent")
	return nil
}
