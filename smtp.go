package mailclient

import (
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"time"
)

// smtpLocalName is the client name sent with EHLO.
const smtpLocalName = "localhost"

// smtpSession is a single SMTP submission connection. A session lives for
// exactly one SendMessage call.
type smtpSession struct {
	client    *smtp.Client
	conn      net.Conn
	host      string
	connNum   int
	connected bool
}

// dialSMTP opens a plain TCP connection to the submission port and reads the
// server greeting. The connection is upgraded to TLS by startTLS.
func dialSMTP(host string, port int) (*smtpSession, error) {
	connNum := newConnNum()
	debugLog("smtp", connNum, "", "establishing connection")

	conn, err := net.DialTimeout("tcp", net.JoinHostPort(host, strconv.Itoa(port)), DialTimeout)
	if err != nil {
		debugLog("smtp", connNum, "", "failed to connect", "error", err)
		return nil, fmt.Errorf("smtp dial: %s", err)
	}

	s := &smtpSession{
		conn:      conn,
		host:      host,
		connNum:   connNum,
		connected: true,
	}
	s.deadline()
	if s.client, err = smtp.NewClient(conn, host); err != nil {
		s.connected = false
		_ = conn.Close()
		return nil, fmt.Errorf("smtp greeting: %s", err)
	}
	return s, nil
}

// deadline applies CommandTimeout to the underlying connection. Each dialog
// step refreshes it.
func (s *smtpSession) deadline() {
	if CommandTimeout != 0 {
		_ = s.conn.SetDeadline(time.Now().Add(CommandTimeout))
	}
}

// hello sends the initial EHLO.
func (s *smtpSession) hello() error {
	s.deadline()
	debugLog("smtp", s.connNum, "", "sending command", "command", "EHLO "+smtpLocalName)
	if err := s.client.Hello(smtpLocalName); err != nil {
		return fmt.Errorf("smtp ehlo: %s", err)
	}
	return nil
}

// startTLS upgrades the connection; net/smtp re-issues EHLO over TLS.
func (s *smtpSession) startTLS() error {
	s.deadline()
	cfg := &tls.Config{ServerName: s.host}
	if TLSSkipVerify {
		cfg.InsecureSkipVerify = true
	}
	debugLog("smtp", s.connNum, "", "sending command", "command", "STARTTLS")
	if err := s.client.StartTLS(cfg); err != nil {
		return fmt.Errorf("smtp starttls: %s", err)
	}
	return nil
}

// auth authenticates the session with the given SASL mechanism.
func (s *smtpSession) auth(a smtp.Auth) error {
	s.deadline()
	debugLog("smtp", s.connNum, "", "authenticating")
	if err := s.client.Auth(a); err != nil {
		return fmt.Errorf("smtp auth: %s", err)
	}
	return nil
}

// submit runs the MAIL/RCPT/DATA exchange for one message. Recipients are
// passed through in order, untouched.
func (s *smtpSession) submit(from string, recipients []string, msg []byte) error {
	s.deadline()
	debugLog("smtp", s.connNum, "", "sending command", "command", "MAIL FROM:<"+from+">")
	if err := s.client.Mail(from); err != nil {
		return fmt.Errorf("smtp mail from: %s", err)
	}
	for _, rcpt := range recipients {
		s.deadline()
		debugLog("smtp", s.connNum, "", "sending command", "command", "RCPT TO:<"+rcpt+">")
		if err := s.client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("smtp rcpt to %s: %s", rcpt, err)
		}
	}

	s.deadline()
	w, err := s.client.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %s", err)
	}
	if _, err = w.Write(msg); err != nil {
		_ = w.Close()
		return fmt.Errorf("smtp data write: %s", err)
	}
	if err = w.Close(); err != nil {
		return fmt.Errorf("smtp data close: %s", err)
	}
	debugLog("smtp", s.connNum, "", "message accepted", "bytes", len(msg))
	return nil
}

// quit ends the session cleanly and disarms the deferred close.
func (s *smtpSession) quit() error {
	if !s.connected {
		return nil
	}
	s.connected = false
	s.deadline()
	debugLog("smtp", s.connNum, "", "sending command", "command", "QUIT")
	if err := s.client.Quit(); err != nil {
		// Quit only closes the connection on a clean exchange; release it
		// here so the session never leaks the socket.
		_ = s.client.Close()
		return fmt.Errorf("smtp quit: %s", err)
	}
	return nil
}

// close tears the connection down. Calling it after quit, or twice, is a
// no-op; the connection is released exactly once.
func (s *smtpSession) close() {
	if !s.connected {
		return
	}
	s.connected = false
	debugLog("smtp", s.connNum, "", "closing connection")
	_ = s.client.Close()
}

// SendMessage submits a plain-text message to every recipient, in order.
// The From header is the account login and the To header is the recipient
// list joined with ", ", both verbatim. The dialog is EHLO, STARTTLS, EHLO
// again, AUTH, then MAIL/RCPT/DATA/QUIT; the connection is closed before
// returning whether or not the submission succeeded.
//
// Recipients are not validated. An empty list runs the dialog with no RCPT
// commands and surfaces the server's rejection.
func (c *Client) SendMessage(subject string, recipients []string, body string) (err error) {
	msg, err := buildMessage(c.Login, recipients, subject, body)
	if err != nil {
		return err
	}

	s, err := dialSMTP(c.SMTPHost, c.SMTPPort)
	if err != nil {
		return err
	}
	defer s.close()

	if err = s.hello(); err != nil {
		return err
	}
	if err = s.startTLS(); err != nil {
		return err
	}
	if err = s.auth(c.smtpAuth()); err != nil {
		return err
	}
	if err = s.submit(c.Login, recipients, msg); err != nil {
		return err
	}
	return s.quit()
}
