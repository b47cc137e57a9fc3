// Package mailclient provides a minimal SMTP/IMAP mail client for Go.
//
// It covers the two operations a small application needs against a single
// mail account:
//
//   - Sending a plain-text message over SMTP submission (STARTTLS on 587)
//   - Fetching the most recent inbox message over IMAP (TLS on 993),
//     optionally narrowed to a subject
//
// Authentication is LOGIN/password or XOAUTH2 (OAuth 2.0). The client holds
// credentials and host names only; every call dials its own connection and
// closes it before returning, so a Client can be kept around and shared
// freely.
package mailclient
