package services

import (
	"context"
	"fmt"
	"log"
	"net/smtp"
	"strings"
)

// EmailProvider interface for email sending
type EmailProvider interface {
	SendEmail(ctx context.Context, recipient, subject, htmlBody string) error
}

// SMTPEmailProvider sends mail through an SMTP relay
type SMTPEmailProvider struct {
	host      string
	port      int
	username  string
	password  string
	fromEmail string
	fromName  string
}

// NewSMTPEmailProvider creates a new SMTP email provider
func NewSMTPEmailProvider(host string, port int, username, password, fromEmail, fromName string) EmailProvider {
	return &SMTPEmailProvider{
		host:      host,
		port:      port,
		username:  username,
		password:  password,
		fromEmail: fromEmail,
		fromName:  fromName,
	}
}

// SendEmail sends one HTML email to the specified recipient
func (p *SMTPEmailProvider) SendEmail(ctx context.Context, recipient, subject, htmlBody string) error {
	// Basic address validation; anything more belongs to the relay
	if recipient == "" || !strings.Contains(recipient, "@") {
		return fmt.Errorf("invalid email address: %s", recipient)
	}

	var msg strings.Builder
	msg.WriteString(fmt.Sprintf("From: %s <%s>\r\n", p.fromName, p.fromEmail))
	msg.WriteString(fmt.Sprintf("To: %s\r\n", recipient))
	msg.WriteString(fmt.Sprintf("Subject: %s\r\n", subject))
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(htmlBody)

	addr := fmt.Sprintf("%s:%d", p.host, p.port)
	var auth smtp.Auth
	if p.username != "" {
		auth = smtp.PlainAuth("", p.username, p.password, p.host)
	}

	done := make(chan error, 1)
	go func() {
		done <- smtp.SendMail(addr, auth, p.fromEmail, []string{recipient}, []byte(msg.String()))
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		if err != nil {
			return fmt.Errorf("smtp send to %s failed: %w", recipient, err)
		}
		return nil
	}
}

// MockEmailProvider logs instead of sending, for local development
type MockEmailProvider struct{}

// NewMockEmailProvider creates a new mock email provider
func NewMockEmailProvider() EmailProvider {
	return &MockEmailProvider{}
}

func (p *MockEmailProvider) SendEmail(ctx context.Context, recipient, subject, htmlBody string) error {
	log.Printf("Email sent to %s [%s]: %d bytes", recipient, subject, len(htmlBody))
	return nil
}
