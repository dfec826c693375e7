// Copyright (c) 2026 Venlock. All rights reserved.

/*
Package email sends the account lifecycle messages: address verification and
password reset.

Delivery is fire-and-forget. The auth service queues a message and returns to
the caller immediately; a slow or dead SMTP relay never delays a request and
never fails one. Each send runs on its own goroutine with its own timeout,
detached from the request context.
*/
package email

import (
	"context"
	"fmt"
	"log/slog"
	"net/smtp"
	"net/url"
	"strings"
	"time"

	"github.com/venlock/venlock/internal/platform/config"
)

// sendTimeout bounds one SMTP conversation, independent of any request.
const sendTimeout = 15 * time.Second

// SMTPMailer delivers mail through a plain SMTP relay.
type SMTPMailer struct {
	settings config.EmailConfig
	logger   *slog.Logger

	// send is swapped in tests to capture messages instead of dialing out.
	send func(addr string, auth smtp.Auth, from string, to []string, message []byte) error
}

// NewSMTPMailer wires the mailer against the configured relay.
func NewSMTPMailer(settings config.EmailConfig, logger *slog.Logger) *SMTPMailer {
	return &SMTPMailer{
		settings: settings,
		logger:   logger,
		send:     smtp.SendMail,
	}
}

// SendVerification queues the email-confirmation message carrying the token link.
func (mailer *SMTPMailer) SendVerification(recipient, token string) {
	link := mailer.frontendLink("/verify-email", token)

	mailer.deliver(recipient, "Verify your email address", strings.Join([]string{
		"Welcome to Venlock!",
		"",
		"Confirm your email address by opening the link below. The link is valid for 24 hours.",
		"",
		link,
		"",
		"If you did not create this account, you can ignore this message.",
	}, "\r\n"))
}

// SendPasswordReset queues the forgot-password message carrying the token link.
func (mailer *SMTPMailer) SendPasswordReset(recipient, token string) {
	link := mailer.frontendLink("/reset-password", token)

	mailer.deliver(recipient, "Reset your password", strings.Join([]string{
		"A password reset was requested for your Venlock account.",
		"",
		"Open the link below to choose a new password. The link is valid for 1 hour and can be used once.",
		"",
		link,
		"",
		"If you did not request this, no action is needed; your password is unchanged.",
	}, "\r\n"))
}

// deliver spawns the detached send. Failures are logged, never propagated.
func (mailer *SMTPMailer) deliver(recipient, subject, body string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		defer cancel()

		done := make(chan error, 1)
		go func() {
			done <- mailer.sendMessage(recipient, subject, body)
		}()

		var err error
		select {
		case err = <-done:
		case <-ctx.Done():
			err = ctx.Err()
		}

		if err != nil {
			// The recipient address is logged; the body (and its token) is not.
			mailer.logger.Error("email_send_failed",
				slog.String("recipient", recipient),
				slog.String("subject", subject),
				slog.String("error", err.Error()),
			)
		}
	}()
}

// sendMessage runs one SMTP conversation.
func (mailer *SMTPMailer) sendMessage(recipient, subject, body string) error {
	settings := mailer.settings

	var auth smtp.Auth
	if settings.SMTPUser != "" {
		auth = smtp.PlainAuth("", settings.SMTPUser, settings.SMTPPass, settings.SMTPHost)
	}

	from := settings.FromEmail
	headers := []string{
		fmt.Sprintf("From: %s <%s>", settings.FromName, settings.FromEmail),
		"To: " + recipient,
		"Subject: " + subject,
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=utf-8",
		"",
	}
	message := []byte(strings.Join(headers, "\r\n") + "\r\n" + body + "\r\n")

	addr := fmt.Sprintf("%s:%d", settings.SMTPHost, settings.SMTPPort)
	if err := mailer.send(addr, auth, from, []string{recipient}, message); err != nil {
		return fmt.Errorf("email: smtp send failed: %w", err)
	}

	return nil
}

// frontendLink builds the user-facing URL carrying the token.
func (mailer *SMTPMailer) frontendLink(path, token string) string {
	base := strings.TrimRight(mailer.settings.FrontendBaseURL, "/")
	return base + path + "?token=" + url.QueryEscape(token)
}
