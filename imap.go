package mailclient

import (
	"bufio"
	"bytes"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/rs/xid"
)

// inboxMailbox is the mailbox ReceiveMessage reads from.
const inboxMailbox = "inbox"

// imapSession is a single IMAP connection. A session lives for exactly one
// ReceiveMessage call.
type imapSession struct {
	conn      net.Conn
	r         *bufio.Reader
	password  string
	mailbox   string
	connNum   int
	connected bool
	closing   bool
}

// dialIMAP establishes a TLS connection to the IMAP server. The server
// greeting is not read here; the first command's response loop consumes it
// as an untagged line. password is kept for log redaction only.
func dialIMAP(host string, port int, password string) (*imapSession, error) {
	connNum := newConnNum()
	debugLog("imap", connNum, "", "establishing connection")

	dialer := &net.Dialer{Timeout: DialTimeout}
	var cfg *tls.Config
	if TLSSkipVerify {
		cfg = &tls.Config{InsecureSkipVerify: true}
	}
	conn, err := tls.DialWithDialer(dialer, "tcp", host+":"+strconv.Itoa(port), cfg)
	if err != nil {
		debugLog("imap", connNum, "", "failed to connect", "error", err)
		return nil, fmt.Errorf("imap dial: %s", err)
	}

	return &imapSession{
		conn:      conn,
		r:         bufio.NewReader(conn),
		password:  password,
		connNum:   connNum,
		connected: true,
	}, nil
}

// exec sends one tagged command and reads lines until the tagged completion.
// Literal continuations ({n} at end of line) are folded into the line they
// started on. When buildResponse is set, the untagged lines are returned as
// one string; processLine, when non-nil, sees each untagged line as it
// arrives.
func (s *imapSession) exec(command string, buildResponse bool, processLine func(line []byte) error) (response string, err error) {
	tag := []byte(strings.ToUpper(xid.New().String()))

	if CommandTimeout != 0 {
		_ = s.conn.SetDeadline(time.Now().Add(CommandTimeout))
		defer func() { _ = s.conn.SetDeadline(time.Time{}) }()
	}

	c := fmt.Sprintf("%s %s\r\n", tag, command)

	if Verbose {
		sanitized := strings.ReplaceAll(strings.TrimSpace(c), fmt.Sprintf(`"%s"`, s.password), `"****"`)
		debugLog("imap", s.connNum, s.mailbox, "sending command", "command", sanitized)
	}

	if _, err = s.conn.Write([]byte(c)); err != nil {
		return "", err
	}

	var resp strings.Builder
	var line []byte
	for err == nil {
		line, err = s.r.ReadBytes('\n')
		for err == nil {
			a := atom.Find(dropNl(line))
			if a == nil {
				break
			}
			var n int
			if n, err = strconv.Atoi(string(a[1 : len(a)-1])); err != nil {
				return "", err
			}

			buf := make([]byte, n)
			if _, err = io.ReadFull(s.r, buf); err != nil {
				return "", err
			}
			line = append(line, buf...)

			if buf, err = s.r.ReadBytes('\n'); err != nil {
				return "", err
			}
			line = append(line, buf...)
		}

		if Verbose && !SkipResponses {
			debugLog("imap", s.connNum, s.mailbox, "server response", "response", string(dropNl(line)))
		}

		// XID tags are 20 uppercase base32hex characters (0-9, A-V).
		taglen := len(tag)
		oklen := 3
		if len(line) >= taglen+oklen && bytes.Equal(line[:taglen], tag) {
			if !bytes.Equal(line[taglen+1:taglen+oklen], []byte("OK")) {
				return "", fmt.Errorf("imap command failed: %s", dropNl(line[taglen+1:]))
			}
			break
		}

		if processLine != nil {
			if err = processLine(line); err != nil {
				return "", err
			}
		}
		if buildResponse {
			resp.Write(line)
		}
	}
	if err != nil {
		// Failures during teardown are expected on broken connections and
		// would double-log the error the caller already has.
		if s.closing {
			debugLog("imap", s.connNum, s.mailbox, "command failed", "error", err)
		} else {
			errorLog("imap", s.connNum, s.mailbox, "command failed", "error", err)
		}
		return "", err
	}

	if buildResponse {
		return resp.String(), nil
	}
	return "", nil
}

// mailboxes lists every mailbox visible to the account.
func (s *imapSession) mailboxes() (boxes []string, err error) {
	boxes = make([]string, 0)
	_, err = s.exec(`LIST "" "*"`, false, func(line []byte) error {
		if box, ok := parseListLine(line); ok {
			boxes = append(boxes, box)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return boxes, nil
}

// selectMailbox opens a mailbox.
func (s *imapSession) selectMailbox(mailbox string) (err error) {
	if _, err = s.exec(`SELECT "`+AddSlashes.Replace(mailbox)+`"`, false, nil); err != nil {
		return err
	}
	s.mailbox = mailbox
	return nil
}

// searchCriterion builds the UID SEARCH criterion for a subject filter. The
// subject is interpolated verbatim between the quotes; subjects containing
// double quotes or other IMAP syntax give server-defined results.
func searchCriterion(subject string) string {
	if subject == "" {
		return "ALL"
	}
	return `HEADER Subject "` + subject + `"`
}

// uidSearch runs UID SEARCH with the given criterion and returns the
// matching UIDs in server order.
func (s *imapSession) uidSearch(criterion string) ([]int, error) {
	r, err := s.exec("UID SEARCH "+criterion, true, nil)
	if err != nil {
		return nil, err
	}
	return parseUIDSearchResponse(r)
}

// fetchRFC822 downloads the full raw message for one UID.
func (s *imapSession) fetchRFC822(uid int) (string, error) {
	r, err := s.exec("UID FETCH "+strconv.Itoa(uid)+" (RFC822)", true, nil)
	if err != nil {
		return "", err
	}
	return parseFetchRFC822(r)
}

// close logs the session out and releases the connection. Calling it twice
// is a no-op; the connection is released exactly once.
func (s *imapSession) close() {
	if !s.connected {
		return
	}
	s.connected = false
	s.closing = true
	// Best-effort LOGOUT; the server may already be gone.
	_, _ = s.exec("LOGOUT", false, nil)
	debugLog("imap", s.connNum, s.mailbox, "closing connection")
	_ = s.conn.Close()
}

// ReceiveMessage fetches the newest message in the inbox. A non-empty
// subject narrows the search to messages whose Subject header matches it;
// an empty subject matches the whole mailbox. When the search matches
// nothing, ErrNoMessages is returned and no fetch is attempted.
//
// The session logs out and closes its connection before returning on every
// path.
func (c *Client) ReceiveMessage(subject string) (msg *Message, err error) {
	s, err := dialIMAP(c.IMAPHost, c.IMAPPort, c.Password)
	if err != nil {
		return nil, err
	}
	defer s.close()

	if c.useXOAUTH2 {
		err = s.authenticate(c.Login, c.Password)
	} else {
		err = s.login(c.Login, c.Password)
	}
	if err != nil {
		return nil, err
	}

	// The listing result has no further use; it is logged and dropped.
	boxes, err := s.mailboxes()
	if err != nil {
		return nil, err
	}
	debugLog("imap", s.connNum, "", "mailboxes listed", "count", len(boxes))

	if err = s.selectMailbox(inboxMailbox); err != nil {
		return nil, err
	}

	uids, err := s.uidSearch(searchCriterion(subject))
	if err != nil {
		return nil, err
	}
	if len(uids) == 0 {
		return nil, ErrNoMessages
	}

	// Servers return SEARCH results in ascending UID order; the last entry
	// is taken as the newest message.
	raw, err := s.fetchRFC822(uids[len(uids)-1])
	if err != nil {
		return nil, err
	}

	msg, err = parseMessage(raw)
	if err != nil {
		if Verbose {
			warnLog("imap", s.connNum, s.mailbox, "message could not be parsed", "error", err)
			spew.Dump(raw)
		}
		return nil, err
	}
	return msg, nil
}
