// Package email sends account mail over SMTP.
package email

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"net/smtp"
	"strings"
)

var ErrNotConfigured = errors.New("email not configured")

const appName = "Jobtrack"

type Config struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
	FromName string
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

type Service struct {
	config Config
	auth   smtp.Auth
	send   sendFunc
}

func NewService(config Config) *Service {
	var auth smtp.Auth
	if config.Username != "" {
		auth = smtp.PlainAuth("", config.Username, config.Password, config.Host)
	}
	return &Service{config: config, auth: auth, send: smtp.SendMail}
}

func (s *Service) IsConfigured() bool {
	return s.config.Host != "" && s.config.Port != "" && s.config.From != ""
}

// SendHTML delivers a multipart/alternative message with a plain fallback.
func (s *Service) SendHTML(to, subject, plain, html string) error {
	if !s.IsConfigured() {
		return ErrNotConfigured
	}
	msg := buildMessage(s.fromHeader(), to, subject, plain, html)
	if err := s.send(s.config.Host+":"+s.config.Port, s.auth, s.config.From, []string{to}, msg); err != nil {
		return fmt.Errorf("send mail to %s: %w", to, err)
	}
	return nil
}

func (s *Service) fromHeader() string {
	if s.config.FromName == "" {
		return s.config.From
	}
	return fmt.Sprintf("%s <%s>", s.config.FromName, s.config.From)
}

const boundary = "jobtrack-alt"

func buildMessage(from, to, subject, plain, html string) []byte {
	var msg bytes.Buffer
	fmt.Fprintf(&msg, "To: %s\r\n", to)
	fmt.Fprintf(&msg, "From: %s\r\n", from)
	fmt.Fprintf(&msg, "Subject: %s\r\n", strings.ReplaceAll(subject, "\n", " "))
	msg.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&msg, "Content-Type: multipart/alternative; boundary=%q\r\n\r\n", boundary)

	fmt.Fprintf(&msg, "--%s\r\nContent-Type: text/plain; charset=UTF-8\r\n\r\n%s\r\n\r\n", boundary, plain)
	fmt.Fprintf(&msg, "--%s\r\nContent-Type: text/html; charset=UTF-8\r\n\r\n%s\r\n\r\n", boundary, html)
	fmt.Fprintf(&msg, "--%s--\r\n", boundary)
	return msg.Bytes()
}

type linkData struct {
	AppName string
	Name    string
	URL     string
}

func greetingName(name, address string) string {
	if strings.TrimSpace(name) != "" {
		return name
	}
	return address
}

func (s *Service) SendVerificationEmail(to, name, verificationURL string) error {
	data := linkData{AppName: appName, Name: greetingName(name, to), URL: verificationURL}
	html, err := render(verificationTemplate, data)
	if err != nil {
		return fmt.Errorf("render verification template: %w", err)
	}
	plain := fmt.Sprintf("Verify your %s account: %s\r\nThe link expires in 24 hours.", appName, verificationURL)
	return s.SendHTML(to, "Verify your "+appName+" account", plain, html)
}

func (s *Service) SendPasswordResetEmail(to, name, resetURL string) error {
	data := linkData{AppName: appName, Name: greetingName(name, to), URL: resetURL}
	html, err := render(resetTemplate, data)
	if err != nil {
		return fmt.Errorf("render password reset template: %w", err)
	}
	plain := fmt.Sprintf("Reset your %s password: %s\r\nThe link expires in 1 hour.", appName, resetURL)
	return s.SendHTML(to, "Reset your "+appName+" password", plain, html)
}

func render(tmpl *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

var verificationTemplate = template.Must(template.New("verify").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: sans-serif; color: #222; max-width: 560px; margin: 0 auto;">
  <h1>{{.AppName}}</h1>
  <p>Hi {{.Name}},</p>
  <p>Confirm your e-mail address to start tracking jobs.</p>
  <p><a href="{{.URL}}">Verify e-mail address</a></p>
  <p style="color: #666; font-size: 12px;">The link expires in 24 hours. If you did not sign up, ignore this message.</p>
</body>
</html>`))

var resetTemplate = template.Must(template.New("reset").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: sans-serif; color: #222; max-width: 560px; margin: 0 auto;">
  <h1>{{.AppName}}</h1>
  <p>Hi {{.Name}},</p>
  <p>Someone asked to reset the password for this account.</p>
  <p><a href="{{.URL}}">Choose a new password</a></p>
  <p style="color: #666; font-size: 12px;">The link expires in 1 hour. Your password stays the same unless you use it.</p>
</body>
</html>`))
