// Copyright (c) 2026 Venlock. All rights reserved.

package email

import (
	"log/slog"
	"net/smtp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/venlock/venlock/internal/platform/config"
)

type capturedMail struct {
	addr    string
	from    string
	to      []string
	message string
}

func newCapturingMailer() (*SMTPMailer, chan capturedMail) {
	captured := make(chan capturedMail, 1)

	mailer := NewSMTPMailer(config.EmailConfig{
		SMTPHost:        "smtp.example.com",
		SMTPPort:        587,
		FromEmail:       "no-reply@venlock.io",
		FromName:        "Venlock",
		FrontendBaseURL: "https://app.venlock.io/",
	}, slog.Default())

	mailer.send = func(addr string, _ smtp.Auth, from string, to []string, message []byte) error {
		captured <- capturedMail{addr: addr, from: from, to: to, message: string(message)}
		return nil
	}

	return mailer, captured
}

func waitForMail(t *testing.T, captured chan capturedMail) capturedMail {
	t.Helper()

	select {
	case mail := <-captured:
		return mail
	case <-time.After(2 * time.Second):
		t.Fatal("no email was sent")
		return capturedMail{}
	}
}

func TestSMTPMailer_SendVerification(t *testing.T) {
	mailer, captured := newCapturingMailer()

	mailer.SendVerification("alice@example.com", "tok-abc+def")

	mail := waitForMail(t, captured)
	assert.Equal(t, "smtp.example.com:587", mail.addr)
	assert.Equal(t, "no-reply@venlock.io", mail.from)
	require.Equal(t, []string{"alice@example.com"}, mail.to)

	// The frontend link carries the URL-escaped token; no double slash from
	// the trailing base URL slash.
	assert.Contains(t, mail.message, "https://app.venlock.io/verify-email?token=tok-abc%2Bdef")
	assert.Contains(t, mail.message, "Subject: Verify your email address")
}

func TestSMTPMailer_SendPasswordReset(t *testing.T) {
	mailer, captured := newCapturingMailer()

	mailer.SendPasswordReset("bob@example.com", "reset-token")

	mail := waitForMail(t, captured)
	assert.Contains(t, mail.message, "https://app.venlock.io/reset-password?token=reset-token")
	assert.Contains(t, mail.message, "Subject: Reset your password")
}
