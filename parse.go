package mailclient

import (
	"bytes"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

const nl = "\r\n"

var (
	// atom matches a literal size marker at the end of a response line.
	atom = regexp.MustCompile(`{\d+}$`)
	// literalStart locates the first literal marker inside an assembled
	// response.
	literalStart = regexp.MustCompile(`\{(\d+)\}\r\n`)
)

// dropNl removes trailing newline characters from a byte slice
func dropNl(b []byte) []byte {
	if len(b) >= 1 && b[len(b)-1] == '\n' {
		if len(b) >= 2 && b[len(b)-2] == '\r' {
			return b[:len(b)-2]
		}
		return b[:len(b)-1]
	}
	return b
}

// parseListLine extracts the mailbox name from one LIST response line. The
// name is the final field, quoted when it contains spaces; names sent as
// literals arrive folded into the line and are taken after the newline.
func parseListLine(line []byte) (string, bool) {
	line = dropNl(line)
	if b := bytes.IndexByte(line, '\n'); b != -1 {
		return string(line[b+1:]), true
	}
	if len(line) == 0 {
		return "", false
	}

	i := len(line) - 1
	quoted := line[i] == '"'
	delim := byte(' ')
	if quoted {
		delim = '"'
		i--
	}
	end := i
	for i > 0 {
		if line[i] == delim {
			if !quoted || line[i-1] != '\\' {
				break
			}
		}
		i--
	}
	if i <= 0 {
		return "", false
	}
	return RemoveSlashes.Replace(string(line[i+1 : end+1])), true
}

// parseUIDSearchResponse parses UID SEARCH command responses
func parseUIDSearchResponse(r string) ([]int, error) {
	if idx := strings.Index(r, nl); idx != -1 {
		r = r[:idx]
	}
	fields := strings.Fields(r)
	if len(fields) < 2 || fields[0] != "*" || fields[1] != "SEARCH" {
		return nil, fmt.Errorf("invalid search response: %q", r)
	}
	uids := make([]int, 0, len(fields)-2)
	for _, f := range fields[2:] {
		u, err := strconv.Atoi(f)
		if err != nil {
			return nil, err
		}
		uids = append(uids, u)
	}
	return uids, nil
}

// parseFetchRFC822 extracts the raw message from a FETCH response. The
// message rides in the response's first literal; markers occurring inside
// the message body come after it and are ignored.
func parseFetchRFC822(r string) (string, error) {
	m := literalStart.FindStringSubmatchIndex(r)
	if m == nil {
		return "", fmt.Errorf("fetch response has no literal: %q", r)
	}
	n, err := strconv.Atoi(r[m[2]:m[3]])
	if err != nil {
		return "", err
	}
	start := m[1]
	if start+n > len(r) {
		return "", fmt.Errorf("fetch literal truncated: declared %d bytes, have %d", n, len(r)-start)
	}
	return r[start : start+n], nil
}
