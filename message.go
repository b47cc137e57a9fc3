package mailclient

import (
	"bytes"
	"fmt"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/textproto"
	"strings"

	humanize "github.com/dustin/go-humanize"
	enmime "github.com/jhillyerd/enmime/v2"
)

// Message is a mail message fetched from the inbox: its headers plus the
// decoded plain-text body.
type Message struct {
	Headers map[string]string
	Body    string
}

// String returns a formatted string representation of a Message
func (m *Message) String() string {
	s := strings.Builder{}

	s.WriteString(fmt.Sprintf("Subject: %s\n", m.Headers["Subject"]))

	if from := m.Headers["From"]; len(from) != 0 {
		s.WriteString(fmt.Sprintf("From: %s\n", from))
	}
	if to := m.Headers["To"]; len(to) != 0 {
		s.WriteString(fmt.Sprintf("To: %s\n", to))
	}
	if len(m.Body) != 0 {
		if len(m.Body) > 20 {
			s.WriteString(fmt.Sprintf("Body: %s...", m.Body[:20]))
		} else {
			s.WriteString(fmt.Sprintf("Body: %s", m.Body))
		}
		s.WriteString(fmt.Sprintf(" (%s)\n", humanize.Bytes(uint64(len(m.Body)))))
	}

	return s.String()
}

// parseMessage parses a raw RFC 822 message into a Message. Header values
// are decoded (RFC 2047 words included) and keyed by their canonical names.
func parseMessage(raw string) (*Message, error) {
	env, err := enmime.ReadEnvelope(strings.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parse message: %s", err)
	}

	m := &Message{
		Headers: make(map[string]string),
		Body:    env.Text,
	}
	for _, key := range env.GetHeaderKeys() {
		m.Headers[key] = env.GetHeader(key)
	}
	return m, nil
}

// buildMessage assembles the outgoing wire message: top-level headers
// followed by a multipart body with a single text/plain part. The To header
// is the recipient list joined with ", ", order preserved, exactly as given.
func buildMessage(from string, recipients []string, subject, body string) ([]byte, error) {
	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)

	headers := []struct{ name, value string }{
		{"From", from},
		{"To", strings.Join(recipients, ", ")},
		{"Subject", mime.QEncoding.Encode("utf-8", subject)},
		{"MIME-Version", "1.0"},
		{"Content-Type", fmt.Sprintf("multipart/mixed; boundary=%q", mw.Boundary())},
	}
	for _, h := range headers {
		fmt.Fprintf(buf, "%s: %s%s", h.name, h.value, nl)
	}
	buf.WriteString(nl)

	part, err := mw.CreatePart(textproto.MIMEHeader{
		"Content-Type":              {`text/plain; charset="utf-8"`},
		"Content-Transfer-Encoding": {"quoted-printable"},
	})
	if err != nil {
		return nil, fmt.Errorf("build message part: %s", err)
	}
	qp := quotedprintable.NewWriter(part)
	if _, err = qp.Write([]byte(body)); err != nil {
		return nil, fmt.Errorf("build message body: %s", err)
	}
	if err = qp.Close(); err != nil {
		return nil, fmt.Errorf("build message body: %s", err)
	}
	if err = mw.Close(); err != nil {
		return nil, fmt.Errorf("build message: %s", err)
	}

	return buf.Bytes(), nil
}
