package mailclient

import (
	"testing"
)

func TestNew(t *testing.T) {
	c := New("user@example.com", "password", "smtp.example.com", "imap.example.com")

	if c.Login != "user@example.com" {
		t.Errorf("Login = %q, want %q", c.Login, "user@example.com")
	}
	if c.Password != "password" {
		t.Errorf("Password = %q, want %q", c.Password, "password")
	}
	if c.SMTPHost != "smtp.example.com" {
		t.Errorf("SMTPHost = %q, want %q", c.SMTPHost, "smtp.example.com")
	}
	if c.IMAPHost != "imap.example.com" {
		t.Errorf("IMAPHost = %q, want %q", c.IMAPHost, "imap.example.com")
	}
	if c.SMTPPort != DefaultSMTPPort {
		t.Errorf("SMTPPort = %d, want %d", c.SMTPPort, DefaultSMTPPort)
	}
	if c.IMAPPort != DefaultIMAPPort {
		t.Errorf("IMAPPort = %d, want %d", c.IMAPPort, DefaultIMAPPort)
	}
	if c.useXOAUTH2 {
		t.Error("New should not enable XOAUTH2")
	}
}

func TestNewWithOAuth2(t *testing.T) {
	c := NewWithOAuth2("user@example.com", "ya29.token", "smtp.example.com", "imap.example.com")

	if !c.useXOAUTH2 {
		t.Error("NewWithOAuth2 should enable XOAUTH2")
	}
	// The access token rides in the Password field.
	if c.Password != "ya29.token" {
		t.Errorf("Password = %q, want the access token", c.Password)
	}
}

func TestDefaultPorts(t *testing.T) {
	if DefaultSMTPPort != 587 {
		t.Errorf("DefaultSMTPPort = %d, want 587", DefaultSMTPPort)
	}
	if DefaultIMAPPort != 993 {
		t.Errorf("DefaultIMAPPort = %d, want 993", DefaultIMAPPort)
	}
}

func TestErrNoMessagesText(t *testing.T) {
	if got := ErrNoMessages.Error(); got != "no messages with the given header" {
		t.Errorf("ErrNoMessages = %q, want %q", got, "no messages with the given header")
	}
}

func TestNewConnNum(t *testing.T) {
	a := newConnNum()
	b := newConnNum()
	if b <= a {
		t.Errorf("connection numbers not increasing: %d then %d", a, b)
	}
}
