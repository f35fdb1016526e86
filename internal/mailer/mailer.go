// Package mailer delivers one-time verification codes to users.
package mailer

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/smtp"
	"sync"

	"github.com/neighbourhood/atmfinder/internal/config"
)

// Mailer sends a one-time code to the given address.
type Mailer interface {
	SendOTP(ctx context.Context, to, code string) error
}

// SMTPMailer delivers codes through an SMTPS (implicit TLS) endpoint.
type SMTPMailer struct {
	cfg config.SMTPConfig
}

// NewSMTP builds a mailer from the SMTP account configuration.
func NewSMTP(cfg config.SMTPConfig) *SMTPMailer {
	return &SMTPMailer{cfg: cfg}
}

const otpBody = "Welcome to The Neighbourhood!\r\n\r\n" +
	"Your 6-digit verification code is: %s\r\n\r\n" +
	"This code will expire in 10 minutes.\r\n\r\n" +
	"If you didn't request this code, please ignore this email.\r\n"

// SendOTP connects, authenticates and sends the verification message.
func (m *SMTPMailer) SendOTP(ctx context.Context, to, code string) error {
	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)

	dialer := &tls.Dialer{Config: &tls.Config{ServerName: m.cfg.Host}}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial smtp: %w", err)
	}

	client, err := smtp.NewClient(conn, m.cfg.Host)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer client.Close()

	auth := smtp.PlainAuth("", m.cfg.Address, m.cfg.Password, m.cfg.Host)
	if err := client.Auth(auth); err != nil {
		return fmt.Errorf("smtp auth: %w", err)
	}

	if err := client.Mail(m.cfg.Address); err != nil {
		return fmt.Errorf("smtp mail from: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("smtp rcpt to: %w", err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: Verify your account - OTP Code\r\n\r\n"+otpBody,
		m.cfg.Address, to, code)
	if _, err := w.Write([]byte(msg)); err != nil {
		_ = w.Close()
		return fmt.Errorf("smtp write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp close message: %w", err)
	}
	return client.Quit()
}

// SentMessage captures an OTP delivery made through the MemoryMailer.
type SentMessage struct {
	To   string
	Code string
}

// MemoryMailer records messages instead of sending them; used in tests and
// local development without an SMTP account.
type MemoryMailer struct {
	mu   sync.Mutex
	sent []SentMessage
	err  error
}

// NewMemoryMailer instantiates an empty in-memory mailer.
func NewMemoryMailer() *MemoryMailer {
	return &MemoryMailer{}
}

// WithError forces subsequent sends to fail with err.
func (m *MemoryMailer) WithError(err error) *MemoryMailer {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

func (m *MemoryMailer) SendOTP(_ context.Context, to, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, SentMessage{To: to, Code: code})
	return nil
}

// Sent returns a snapshot of delivered messages.
func (m *MemoryMailer) Sent() []SentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SentMessage(nil), m.sent...)
}
