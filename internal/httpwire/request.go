package httpwire

import (
	"fmt"
	"strings"

	"github.com/pinklite/websockets/internal/stream"
)

// Request is an HTTP/1.1 upgrade request: a raw request target (no URL
// normalization) plus an ordered, duplicate-permitting header multi-map.
type Request struct {
	Path    string
	Headers Headers
}

// ParseRequest drives rl to read one HTTP/1.1 request line and header
// block. Error text matches the pinned test expectations: a zero-byte EOF
// on the request line gets its own message distinct from the generic
// reader EOF, the request line grammar and method/version are checked in
// the order §4.B specifies.
func ParseRequest(rl lineReader, maxLineLength, maxHeaders int) (*Request, error) {
	line, err := rl.ReadLine()
	if err != nil {
		if eofErr, ok := err.(*stream.EOFBeforeDelimiterError); ok && eofErr.Buffered == 0 {
			return nil, fmt.Errorf("connection closed while reading HTTP request line")
		}
		return nil, err
	}

	raw := strings.TrimSuffix(string(line), "\r\n")
	parts := strings.Split(raw, " ")
	if len(parts) != 3 || parts[2] != "HTTP/1.1" {
		if len(parts) == 3 && strings.HasPrefix(parts[2], "HTTP/") {
			return nil, fmt.Errorf("unsupported HTTP version: %s", parts[2])
		}
		return nil, fmt.Errorf("invalid HTTP request line: %s", raw)
	}
	method, path := parts[0], parts[1]
	if method != "GET" {
		return nil, fmt.Errorf("unsupported HTTP method: %s", method)
	}

	headers, err := parseHeaders(rl, maxLineLength, maxHeaders)
	if err != nil {
		return nil, err
	}
	return &Request{Path: path, Headers: headers}, nil
}

// Serialize renders the request exactly as the wire would carry it: no
// automatic Content-Length, no Date, no header reordering.
func (r *Request) Serialize() []byte {
	var buf []byte
	buf = append(buf, "GET "...)
	buf = append(buf, r.Path...)
	buf = append(buf, " HTTP/1.1\r\n"...)
	buf = append(buf, serializeHeaders(r.Headers)...)
	return buf
}
