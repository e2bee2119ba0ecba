package notifications

import (
	"fmt"
	"net/smtp"
	"strings"
)

var sendMail = smtp.SendMail

// SmtpSender implements EmailSender using SMTP with PLAIN auth
type SmtpSender struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

func NewSmtpSender(host string, port int, username, password, from string) *SmtpSender {
	if from == "" {
		from = username
	}
	return &SmtpSender{
		Host:     host,
		Port:     port,
		Username: username,
		Password: password,
		From:     from,
	}
}

func (s *SmtpSender) SendEmail(to, subject, body string) error {
	var auth smtp.Auth
	if s.Username != "" {
		auth = smtp.PlainAuth("", s.Username, s.Password, s.Host)
	}

	msg := []byte("To: " + to + "\r\n" +
		"From: " + s.From + "\r\n" +
		"Subject: " + subject + "\r\n" +
		"Content-Type: text/plain; charset=UTF-8\r\n" +
		"\r\n" +
		strings.ReplaceAll(body, "\n", "\r\n") + "\r\n")

	addr := fmt.Sprintf("%s:%d", s.Host, s.Port)
	if err := sendMail(addr, auth, s.From, []string{to}, msg); err != nil {
		return fmt.Errorf("failed to send mail via %s: %w", addr, err)
	}
	return nil
}
