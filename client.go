package mailclient

import (
	"errors"
	"sync"
)

// Default ports for the two protocol legs.
const (
	// DefaultSMTPPort is the SMTP submission port (STARTTLS).
	DefaultSMTPPort = 587
	// DefaultIMAPPort is the IMAP-over-TLS port.
	DefaultIMAPPort = 993
)

// ErrNoMessages is returned by ReceiveMessage when the inbox search matches
// nothing. No fetch is attempted in that case.
var ErrNoMessages = errors.New("no messages with the given header")

var (
	nextConnNum      = 0
	nextConnNumMutex = sync.Mutex{}
)

// newConnNum hands out connection numbers for log correlation.
func newConnNum() int {
	nextConnNumMutex.Lock()
	n := nextConnNum
	nextConnNum++
	nextConnNumMutex.Unlock()
	return n
}

// Client sends and receives mail for a single account. It holds credentials
// and endpoints only; each operation dials its own connection and closes it
// before returning, so a Client carries no connection state between calls.
type Client struct {
	Login    string
	Password string
	SMTPHost string
	IMAPHost string

	// SMTPPort and IMAPPort are set to the package defaults by the
	// constructors and can be overridden before use.
	SMTPPort int
	IMAPPort int

	// useXOAUTH2 indicates whether XOAUTH2 authentication should be used
	// instead of LOGIN/AUTH PLAIN. It is set by NewWithOAuth2.
	useXOAUTH2 bool
}

// New creates a mail client using username/password authentication. No
// connection is made until an operation is called.
func New(login, password, smtpHost, imapHost string) *Client {
	return &Client{
		Login:    login,
		Password: password,
		SMTPHost: smtpHost,
		IMAPHost: imapHost,
		SMTPPort: DefaultSMTPPort,
		IMAPPort: DefaultIMAPPort,
	}
}

// NewWithOAuth2 creates a mail client that authenticates with an OAuth2
// access token (XOAUTH2) on both protocols.
func NewWithOAuth2(login, accessToken, smtpHost, imapHost string) *Client {
	c := New(login, accessToken, smtpHost, imapHost)
	c.useXOAUTH2 = true
	return c
}
