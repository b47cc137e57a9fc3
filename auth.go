package mailclient

import (
	"errors"
	"fmt"
	"net/smtp"

	"github.com/sqs/go-xoauth2"
)

// authenticate performs XOAUTH2 authentication using an access token
func (s *imapSession) authenticate(user string, accessToken string) (err error) {
	b64 := xoauth2.XOAuth2String(user, accessToken)
	_, err = s.exec(fmt.Sprintf("AUTHENTICATE XOAUTH2 %s", b64), false, nil)
	return err
}

// login performs LOGIN authentication using username and password
func (s *imapSession) login(username string, password string) (err error) {
	_, err = s.exec(fmt.Sprintf(`LOGIN "%s" "%s"`, AddSlashes.Replace(username), AddSlashes.Replace(password)), false, nil)
	return err
}

// smtpAuth picks the SASL mechanism matching the client's construction.
func (c *Client) smtpAuth() smtp.Auth {
	if c.useXOAUTH2 {
		return xoauth2Auth{user: c.Login, token: c.Password}
	}
	return smtp.PlainAuth("", c.Login, c.Password, c.SMTPHost)
}

// xoauth2Auth is the XOAUTH2 mechanism for net/smtp. Start hands over the
// raw SASL payload; net/smtp base64-encodes initial responses itself.
type xoauth2Auth struct {
	user  string
	token string
}

func (a xoauth2Auth) Start(server *smtp.ServerInfo) (string, []byte, error) {
	if !server.TLS {
		return "", nil, errors.New("xoauth2: unencrypted connection")
	}
	return "XOAUTH2", []byte(xoauth2.OAuth2String(a.user, a.token)), nil
}

func (a xoauth2Auth) Next(fromServer []byte, more bool) ([]byte, error) {
	// On failure the server sends its error as a base64 challenge; an empty
	// response makes it issue the final status line.
	if more {
		return []byte{}, nil
	}
	return nil, nil
}
