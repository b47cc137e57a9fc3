//go:build integration

package mailclient

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/rs/xid"
)

// Integration tests require running SMTP and IMAP servers.
// Start them with: docker compose up -d (GreenMail with TLS enabled)
//
// Run tests with: go test -tags=integration -v ./...
//
// Note: These tests modify the global TLSSkipVerify variable. Do not run
// with t.Parallel() at the top level.

const (
	testHost     = "localhost"
	testSMTPPort = 3025 // GreenMail SMTP with STARTTLS
	testIMAPPort = 3993 // GreenMail IMAP over TLS
	testUser     = "testuser@localhost"
	testPass     = "testpass"
)

func getTestConfig() (host string, smtpPort, imapPort int) {
	host = testHost
	smtpPort = testSMTPPort
	imapPort = testIMAPPort

	if h := os.Getenv("MAIL_TEST_HOST"); h != "" {
		host = h
	}
	return host, smtpPort, imapPort
}

func waitForServer(host string, port int, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", fmt.Sprintf("%s:%d", host, port), time.Second)
		if err == nil {
			conn.Close()
			return nil
		}
		time.Sleep(500 * time.Millisecond)
	}
	return fmt.Errorf("server %s:%d not ready after %v", host, port, timeout)
}

func setupIntegrationClient(t *testing.T) *Client {
	t.Helper()

	host, smtpPort, imapPort := getTestConfig()

	if err := waitForServer(host, smtpPort, 30*time.Second); err != nil {
		t.Skipf("SMTP server not available: %v (run: docker compose up -d)", err)
	}
	if err := waitForServer(host, imapPort, 30*time.Second); err != nil {
		t.Skipf("IMAP server not available: %v (run: docker compose up -d)", err)
	}

	originalTLSSkipVerify := TLSSkipVerify
	originalDialTimeout := DialTimeout
	originalCommandTimeout := CommandTimeout

	// GreenMail uses a self-signed certificate.
	TLSSkipVerify = true
	DialTimeout = 10 * time.Second
	CommandTimeout = 30 * time.Second

	t.Cleanup(func() {
		TLSSkipVerify = originalTLSSkipVerify
		DialTimeout = originalDialTimeout
		CommandTimeout = originalCommandTimeout
	})

	c := New(testUser, testPass, host, host)
	c.SMTPPort = smtpPort
	c.IMAPPort = imapPort
	return c
}

func TestSendAndReceiveRoundTrip(t *testing.T) {
	c := setupIntegrationClient(t)

	// A unique subject so the search finds exactly this message.
	subject := "integration " + xid.New().String()
	body := "integration test body"

	if err := c.SendMessage(subject, []string{testUser}, body); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	// Delivery is asynchronous; poll until the message lands.
	var msg *Message
	var err error
	deadline := time.Now().Add(15 * time.Second)
	for time.Now().Before(deadline) {
		msg, err = c.ReceiveMessage(subject)
		if err == nil {
			break
		}
		if !errors.Is(err, ErrNoMessages) {
			t.Fatalf("ReceiveMessage: %v", err)
		}
		time.Sleep(500 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("message never arrived: %v", err)
	}

	if got := msg.Headers["Subject"]; got != subject {
		t.Errorf("Subject = %q, want %q", got, subject)
	}
	if got := msg.Headers["To"]; got != testUser {
		t.Errorf("To = %q, want %q", got, testUser)
	}
	if got := strings.TrimSpace(msg.Body); got != body {
		t.Errorf("Body = %q, want %q", got, body)
	}
}

func TestReceiveMessageNoMatchesIntegration(t *testing.T) {
	c := setupIntegrationClient(t)

	_, err := c.ReceiveMessage("no such subject " + xid.New().String())
	if !errors.Is(err, ErrNoMessages) {
		t.Fatalf("error = %v, want ErrNoMessages", err)
	}
}

func TestReceiveNewestOfSeveral(t *testing.T) {
	c := setupIntegrationClient(t)

	subject := "ordering " + xid.New().String()
	for i := 1; i <= 3; i++ {
		body := fmt.Sprintf("message %d", i)
		if err := c.SendMessage(subject, []string{testUser}, body); err != nil {
			t.Fatalf("SendMessage %d: %v", i, err)
		}
		// Give the server a moment to assign ascending UIDs.
		time.Sleep(500 * time.Millisecond)
	}

	var msg *Message
	var err error
	deadline := time.Now().Add(15 * time.Second)
	for time.Now().Before(deadline) {
		msg, err = c.ReceiveMessage(subject)
		if err == nil && strings.Contains(msg.Body, "message 3") {
			return
		}
		time.Sleep(500 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("ReceiveMessage: %v", err)
	}
	t.Errorf("Body = %q, want the last message sent", msg.Body)
}
