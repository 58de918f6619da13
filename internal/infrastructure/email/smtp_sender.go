package email

import (
	"bytes"
	"context"
	"fmt"
	"net/smtp"
	"text/template"

	"go.uber.org/zap"

	appbilling "github.com/openbilling/backend/internal/application/billing"
	"github.com/openbilling/backend/internal/infrastructure/config"
)

// Notification templates keyed the way the engine requests them. Bodies are
// plain text; vars come from the caller.
var mailTemplates = map[string]mailTemplate{
	"subscription_canceled": {
		subject: "Your subscription has been canceled",
		body: "Hi {{.customer_name}},\r\n\r\n" +
			"Your subscription ({{.subscription_id}}) has been canceled. " +
			"You keep access until the end of the current billing period.\r\n",
	},
	"payment_failed": {
		subject: "We could not process your payment",
		body: "Hi {{.customer_name}},\r\n\r\n" +
			"A payment for your subscription failed. We will retry automatically. " +
			"Please check your payment method to avoid an interruption.\r\n",
	},
	"retries_exhausted": {
		subject: "Your subscription is past due",
		body: "Hi {{.customer_name}},\r\n\r\n" +
			"We were unable to collect payment after several attempts. " +
			"Please update your payment method to restore your subscription.\r\n",
	},
}

type mailTemplate struct {
	subject string
	body    string
}

// SMTPSender delivers notification mail over plain SMTP.
type SMTPSender struct {
	cfg       config.SMTPConfig
	logger    *zap.Logger
	templates map[string]*template.Template
}

var _ appbilling.EmailSender = (*SMTPSender)(nil)

// NewSMTPSender parses the notification templates up front so a broken
// template fails at startup instead of on first send.
func NewSMTPSender(cfg config.SMTPConfig, logger *zap.Logger) (*SMTPSender, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	templates := make(map[string]*template.Template, len(mailTemplates))
	for key, tmpl := range mailTemplates {
		parsed, err := template.New(key).Parse(tmpl.body)
		if err != nil {
			return nil, fmt.Errorf("smtp: failed to parse template %s: %w", key, err)
		}
		templates[key] = parsed
	}

	return &SMTPSender{
		cfg:       cfg,
		logger:    logger,
		templates: templates,
	}, nil
}

// Send renders the named template and delivers it to the recipient.
func (s *SMTPSender) Send(ctx context.Context, templateKey, recipient string, vars map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg, err := s.buildMessage(templateKey, recipient, vars)
	if err != nil {
		return err
	}

	var auth smtp.Auth
	if s.cfg.Username != "" && s.cfg.Password != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	if err := smtp.SendMail(addr, auth, s.cfg.From, []string{recipient}, msg); err != nil {
		s.logger.Error("Failed to send mail",
			zap.String("template", templateKey),
			zap.String("recipient", recipient),
			zap.Error(err))
		return fmt.Errorf("smtp: failed to send %s mail: %w", templateKey, err)
	}

	s.logger.Info("Sent notification mail",
		zap.String("template", templateKey),
		zap.String("recipient", recipient))
	return nil
}

func (s *SMTPSender) buildMessage(templateKey, recipient string, vars map[string]string) ([]byte, error) {
	tmpl, ok := s.templates[templateKey]
	if !ok {
		return nil, fmt.Errorf("smtp: unknown mail template %s", templateKey)
	}

	var body bytes.Buffer
	if err := tmpl.Execute(&body, vars); err != nil {
		return nil, fmt.Errorf("smtp: failed to render template %s: %w", templateKey, err)
	}

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "From: %s\r\n", s.cfg.From)
	fmt.Fprintf(&msg, "To: %s\r\n", recipient)
	fmt.Fprintf(&msg, "Subject: %s\r\n", mailTemplates[templateKey].subject)
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	msg.Write(body.Bytes())

	return msg.Bytes(), nil
}
