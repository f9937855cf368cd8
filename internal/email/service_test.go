package email

import (
	"errors"
	"net/smtp"
	"strings"
	"testing"
)

func TestServiceIsConfigured(t *testing.T) {
	tests := []struct {
		name     string
		config   Config
		expected bool
	}{
		{name: "empty config", config: Config{}, expected: false},
		{name: "missing host", config: Config{Port: "587", From: "ops@example.com"}, expected: false},
		{name: "missing port", config: Config{Host: "smtp.example.com", From: "ops@example.com"}, expected: false},
		{name: "missing from", config: Config{Host: "smtp.example.com", Port: "587"}, expected: false},
		{name: "fully configured", config: Config{Host: "smtp.example.com", Port: "587", From: "ops@example.com"}, expected: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NewService(tt.config).IsConfigured(); got != tt.expected {
				t.Errorf("IsConfigured() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestSendVerificationEmail(t *testing.T) {
	svc := NewService(Config{Host: "smtp.example.com", Port: "587", From: "ops@example.com", FromName: "Jobtrack"})

	var (
		gotAddr string
		gotTo   []string
		gotMsg  string
	)
	svc.send = func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotTo, gotMsg = addr, to, string(msg)
		return nil
	}

	if err := svc.SendVerificationEmail("sam@example.com", "", "https://jobs.example.com/verify?token=abc"); err != nil {
		t.Fatalf("SendVerificationEmail() error = %v", err)
	}
	if gotAddr != "smtp.example.com:587" || len(gotTo) != 1 || gotTo[0] != "sam@example.com" {
		t.Fatalf("unexpected envelope %s %v", gotAddr, gotTo)
	}
	for _, want := range []string{
		"From: Jobtrack <ops@example.com>",
		"Subject: Verify your Jobtrack account",
		"Hi sam@example.com,",
		"https://jobs.example.com/verify?token=abc",
		"--jobtrack-alt--",
	} {
		if !strings.Contains(gotMsg, want) {
			t.Errorf("message missing %q", want)
		}
	}
}

func TestSendWithoutConfig(t *testing.T) {
	svc := NewService(Config{})
	if err := svc.SendPasswordResetEmail("sam@example.com", "Sam", "https://x"); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestTemplatesEscapeNames(t *testing.T) {
	html, err := render(resetTemplate, linkData{AppName: appName, Name: "<script>", URL: "https://x"})
	if err != nil {
		t.Fatalf("render() error = %v", err)
	}
	if strings.Contains(html, "<script>") {
		t.Fatal("names must be escaped")
	}
}
