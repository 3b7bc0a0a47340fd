package httpwire

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pinklite/websockets/internal/stream"
)

// Response is an HTTP/1.1 response: status line, headers, and an optional
// body. The handshake success response (101) never carries a body.
type Response struct {
	StatusCode   int
	ReasonPhrase string
	Headers      Headers
	Body         []byte
}

// ParseResponse drives rl to read one HTTP/1.1 status line and header
// block, per §4.B.
func ParseResponse(rl lineReader, maxLineLength, maxHeaders int) (*Response, error) {
	line, err := rl.ReadLine()
	if err != nil {
		if eofErr, ok := err.(*stream.EOFBeforeDelimiterError); ok && eofErr.Buffered == 0 {
			return nil, fmt.Errorf("connection closed while reading HTTP status line")
		}
		return nil, err
	}

	raw := strings.TrimSuffix(string(line), "\r\n")
	sp1 := strings.IndexByte(raw, ' ')
	if sp1 < 0 {
		return nil, fmt.Errorf("invalid HTTP status line: %s", raw)
	}
	version := raw[:sp1]
	rest := raw[sp1+1:]
	sp2 := strings.IndexByte(rest, ' ')
	var statusStr, reason string
	if sp2 < 0 {
		statusStr, reason = rest, ""
	} else {
		statusStr, reason = rest[:sp2], rest[sp2+1:]
	}
	if version != "HTTP/1.1" {
		if strings.HasPrefix(version, "HTTP/") {
			return nil, fmt.Errorf("unsupported HTTP version: %s", version)
		}
		return nil, fmt.Errorf("invalid HTTP status line: %s", raw)
	}
	if len(statusStr) != 3 || !isAllDigits(statusStr) {
		return nil, fmt.Errorf("invalid HTTP status code: %s", statusStr)
	}
	statusCode, _ := strconv.Atoi(statusStr)
	if statusCode < 100 || statusCode > 599 {
		return nil, fmt.Errorf("unsupported HTTP status code: %s", statusStr)
	}
	for i := 0; i < len(reason); i++ {
		c := reason[i]
		if c == '\t' {
			continue
		}
		if c < 0x20 || c == 0x7f {
			return nil, fmt.Errorf("invalid HTTP reason phrase: %s", escapeByte(c))
		}
	}

	headers, err := parseHeaders(rl, maxLineLength, maxHeaders)
	if err != nil {
		return nil, err
	}
	return &Response{StatusCode: statusCode, ReasonPhrase: reason, Headers: headers}, nil
}

func isAllDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func escapeByte(b byte) string {
	return fmt.Sprintf("\\x%02x", b)
}

// Serialize renders the response exactly as the wire would carry it,
// including the body verbatim if present. No headers are injected.
func (r *Response) Serialize() []byte {
	var buf []byte
	buf = append(buf, "HTTP/1.1 "...)
	buf = append(buf, strconv.Itoa(r.StatusCode)...)
	buf = append(buf, ' ')
	buf = append(buf, r.ReasonPhrase...)
	buf = append(buf, '\r', '\n')
	buf = append(buf, serializeHeaders(r.Headers)...)
	if len(r.Body) > 0 {
		buf = append(buf, r.Body...)
	}
	return buf
}
