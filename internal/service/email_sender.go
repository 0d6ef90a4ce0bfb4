package service

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"mime"
	"net"
	"net/mail"
	"net/smtp"
	"strings"
	"time"

	"github.com/paypro-bridge/internal/config"
)

const defaultSMTPTimeout = 20 * time.Second

// EmailSender delivers one HTML message.
type EmailSender interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// SMTPEmailSender sends mail over SMTP with implicit TLS, STARTTLS or plain.
type SMTPEmailSender struct {
	cfg     *config.EmailConfig
	timeout time.Duration
}

// NewSMTPEmailSender creates the SMTP sender.
func NewSMTPEmailSender(cfg *config.EmailConfig) *SMTPEmailSender {
	return &SMTPEmailSender{cfg: cfg, timeout: defaultSMTPTimeout}
}

// Enabled reports whether the sender has enough configuration to try a send.
func (s *SMTPEmailSender) Enabled() bool {
	return s != nil && s.cfg != nil && s.cfg.Enabled && s.cfg.Host != "" && s.cfg.Port != 0
}

// Send delivers an HTML email.
func (s *SMTPEmailSender) Send(ctx context.Context, to, subject, htmlBody string) error {
	if s == nil || s.cfg == nil || !s.cfg.Enabled {
		return ErrEmailServiceDisabled
	}
	sender := s.senderAddress()
	if s.cfg.Host == "" || s.cfg.Port == 0 || sender == "" {
		return ErrEmailServiceNotConfigured
	}
	if _, err := mail.ParseAddress(to); err != nil {
		return ErrInvalidEmail
	}

	from := buildFromAddress(sender, s.cfg.FromName)
	msg := []byte(buildEmailMessage(from, to, subject, htmlBody))

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	var auth smtp.Auth
	if s.cfg.Username != "" || s.cfg.Password != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}

	deadline := time.Now().Add(s.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	var err error
	switch {
	case s.cfg.UseSSL:
		err = sendMailWithSSL(addr, auth, s.cfg.Host, sender, to, msg, deadline)
	case s.cfg.UseTLS:
		err = sendMailWithStartTLS(addr, auth, s.cfg.Host, sender, to, msg, deadline)
	default:
		err = sendMailPlain(addr, auth, s.cfg.Host, sender, to, msg, deadline)
	}
	return normalizeEmailSendError(err)
}

// senderAddress falls back to the SMTP username, which most providers require anyway.
func (s *SMTPEmailSender) senderAddress() string {
	if from := strings.TrimSpace(s.cfg.From); from != "" {
		return from
	}
	return strings.TrimSpace(s.cfg.Username)
}

func buildFromAddress(from, name string) string {
	if strings.TrimSpace(name) == "" {
		return from
	}
	encoded := mime.QEncoding.Encode("UTF-8", name)
	return (&mail.Address{Name: encoded, Address: from}).String()
}

func buildEmailMessage(from, to, subject, htmlBody string) string {
	var buf bytes.Buffer
	buf.WriteString(fmt.Sprintf("From: %s\r\n", from))
	buf.WriteString(fmt.Sprintf("To: %s\r\n", to))
	buf.WriteString(fmt.Sprintf("Subject: %s\r\n", mime.QEncoding.Encode("UTF-8", subject)))
	buf.WriteString(fmt.Sprintf("Date: %s\r\n", time.Now().Format(time.RFC1123Z)))
	buf.WriteString("MIME-Version: 1.0\r\n")
	buf.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	buf.WriteString("\r\n")
	buf.WriteString(htmlBody)
	return buf.String()
}

func dialSMTP(addr, host string, implicitTLS bool, deadline time.Time) (*smtp.Client, error) {
	dialer := &net.Dialer{Deadline: deadline}
	var conn net.Conn
	var err error
	if implicitTLS {
		conn, err = tls.DialWithDialer(dialer, "tcp", addr, &tls.Config{ServerName: host})
	} else {
		conn, err = dialer.Dial("tcp", addr)
	}
	if err != nil {
		return nil, err
	}
	if err := conn.SetDeadline(deadline); err != nil {
		conn.Close()
		return nil, err
	}
	client, err := smtp.NewClient(conn, host)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return client, nil
}

func sendMailWithSSL(addr string, auth smtp.Auth, host, from, to string, msg []byte, deadline time.Time) error {
	client, err := dialSMTP(addr, host, true, deadline)
	if err != nil {
		return err
	}
	defer client.Close()
	if err := authenticate(client, auth); err != nil {
		return err
	}
	return sendSMTPData(client, from, to, msg)
}

func sendMailWithStartTLS(addr string, auth smtp.Auth, host, from, to string, msg []byte, deadline time.Time) error {
	client, err := dialSMTP(addr, host, false, deadline)
	if err != nil {
		return err
	}
	defer client.Close()
	if err := client.StartTLS(&tls.Config{ServerName: host}); err != nil {
		return err
	}
	if err := authenticate(client, auth); err != nil {
		return err
	}
	return sendSMTPData(client, from, to, msg)
}

func sendMailPlain(addr string, auth smtp.Auth, host, from, to string, msg []byte, deadline time.Time) error {
	client, err := dialSMTP(addr, host, false, deadline)
	if err != nil {
		return err
	}
	defer client.Close()
	if err := authenticate(client, auth); err != nil {
		return err
	}
	return sendSMTPData(client, from, to, msg)
}

func authenticate(client *smtp.Client, auth smtp.Auth) error {
	if auth == nil {
		return nil
	}
	if ok, _ := client.Extension("AUTH"); !ok {
		return nil
	}
	return client.Auth(auth)
}

func sendSMTPData(client *smtp.Client, from, to string, msg []byte) error {
	if err := client.Mail(from); err != nil {
		return err
	}
	if err := client.Rcpt(to); err != nil {
		return err
	}
	w, err := client.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return client.Quit()
}

func normalizeEmailSendError(err error) error {
	if err == nil {
		return nil
	}
	if isEmailRecipientRejected(err) {
		return fmt.Errorf("%w: %v", ErrEmailRecipientRejected, err)
	}
	return err
}

func isEmailRecipientRejected(err error) bool {
	if err == nil {
		return false
	}
	message := strings.ToLower(strings.TrimSpace(err.Error()))
	if message == "" {
		return false
	}
	for _, keyword := range []string{
		"no such recipient",
		"no such user",
		"recipient not found",
		"recipient address rejected",
		"invalid recipient",
		"user unknown",
		"unknown user",
		"mailbox unavailable",
	} {
		if strings.Contains(message, keyword) {
			return true
		}
	}
	if strings.Contains(message, "550") {
		for _, hint := range []string{"recipient", "user", "mailbox", "address", "rcpt"} {
			if strings.Contains(message, hint) {
				return true
			}
		}
	}
	return false
}
