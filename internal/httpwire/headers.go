// Package httpwire implements the HTTP/1.1 request-line, status-line, and
// header-block grammar used by the WebSocket upgrade handshake (RFC 6455
// §4, restricted to the subset RFC 7230 allows). It is driven by a
// *stream.Reader and performs no I/O of its own.
package httpwire

import (
	"fmt"
	"strings"
)

// MaxHeaderLineLength is the default cap on a single header line, including
// the trailing CRLF. Exceeding it is a security error. 4096 is inclusive of
// the CRLF, matching the pinned 4090-byte-value / 4097-byte-line test case.
const MaxHeaderLineLength = 4096

// MaxHeaderCount is the default cap on the number of headers in one block.
// Exceeding it is a security error.
const MaxHeaderCount = 256

// Field is one name/value pair in a header block, in wire order.
type Field struct {
	Name  string
	Value string
}

// Headers is an ordered multi-map from case-insensitive field name to value.
// Iteration preserves insertion order; duplicate names are permitted.
type Headers struct {
	fields []Field
	index  map[string][]int // lower(name) -> indices into fields
}

// NewHeaders builds a Headers from an ordered list of fields, as the
// original websockets.datastructures.Headers constructor does.
func NewHeaders(fields ...Field) Headers {
	h := Headers{}
	for _, f := range fields {
		h.Add(f.Name, f.Value)
	}
	return h
}

// Add appends a field, preserving any existing fields with the same name.
func (h *Headers) Add(name, value string) {
	if h.index == nil {
		h.index = make(map[string][]int)
	}
	key := strings.ToLower(name)
	h.index[key] = append(h.index[key], len(h.fields))
	h.fields = append(h.fields, Field{Name: name, Value: value})
}

// Get returns the first value for name, and whether it was present.
func (h Headers) Get(name string) (string, bool) {
	idx, ok := h.index[strings.ToLower(name)]
	if !ok || len(idx) == 0 {
		return "", false
	}
	return h.fields[idx[0]].Value, true
}

// Values returns every value for name, in wire order.
func (h Headers) Values(name string) []string {
	idx := h.index[strings.ToLower(name)]
	if len(idx) == 0 {
		return nil
	}
	out := make([]string, len(idx))
	for i, j := range idx {
		out[i] = h.fields[j].Value
	}
	return out
}

// Fields returns the fields in wire order. The caller must not mutate the
// returned slice's backing array.
func (h Headers) Fields() []Field {
	return h.fields
}

// Len returns the number of fields, including duplicates.
func (h Headers) Len() int {
	return len(h.fields)
}

// httpToken reports whether s is a non-empty RFC 7230 "token": ALPHA, DIGIT,
// and "!#$%&'*+-.^_`|~".
func httpToken(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !isTokenChar(s[i]) {
			return false
		}
	}
	return true
}

func isTokenChar(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	}
	switch c {
	case '!', '#', '$', '%', '&', '\'', '*', '+', '-', '.', '^', '_', '`', '|', '~':
		return true
	}
	return false
}

// isFieldValueByte reports whether b may appear in a header field value:
// visible ASCII (0x21-0x7E) plus SP and HT.
func isFieldValueByte(b byte) bool {
	return b == ' ' || b == '\t' || (b >= 0x21 && b <= 0x7e)
}

func trimHTAB(s string) string {
	return strings.Trim(s, " \t")
}

// lineReader is the minimal surface parseHeaders, ParseRequest and
// ParseResponse need from a *stream.Reader.
type lineReader interface {
	ReadLine() ([]byte, error)
}

// parseHeaders reads lines from rl until a bare CRLF, building a Headers.
// Limits are enforced before adding a field to the map.
func parseHeaders(rl lineReader, maxLineLength, maxHeaders int) (Headers, error) {
	h := Headers{}
	for {
		line, err := rl.ReadLine()
		if err != nil {
			return Headers{}, err
		}
		if len(line) > maxLineLength {
			return Headers{}, &SecurityError{Reason: "line-too-long"}
		}
		if len(line) == 2 && line[0] == '\r' && line[1] == '\n' {
			return h, nil
		}
		// Strip the trailing CRLF for parsing.
		if len(line) < 2 || line[len(line)-2] != '\r' || line[len(line)-1] != '\n' {
			return Headers{}, fmt.Errorf("invalid HTTP header line: %s", strings.TrimRight(string(line), "\r\n"))
		}
		raw := string(line[:len(line)-2])

		colon := strings.IndexByte(raw, ':')
		if colon < 0 {
			return Headers{}, fmt.Errorf("invalid HTTP header line: %s", raw)
		}
		name := raw[:colon]
		if !httpToken(name) {
			return Headers{}, fmt.Errorf("invalid HTTP header name: %s", name)
		}
		value := trimHTAB(raw[colon+1:])
		for i := 0; i < len(value); i++ {
			if !isFieldValueByte(value[i]) {
				return Headers{}, fmt.Errorf("invalid HTTP header value: %s", name)
			}
		}
		if h.Len()+1 > maxHeaders {
			return Headers{}, &SecurityError{Reason: "too-many-headers"}
		}
		h.Add(name, value)
	}
}

// SecurityError reports that a handshake exceeded a configured resource
// limit (§7 "security" error kind).
type SecurityError struct {
	Reason string // "line-too-long" or "too-many-headers"
}

func (e *SecurityError) Error() string {
	return fmt.Sprintf("security error: %s", e.Reason)
}

// serializeHeaders writes "Name: value\r\n" for every field, in order, plus
// the terminating blank line. No headers are injected automatically.
func serializeHeaders(h Headers) []byte {
	var buf []byte
	for _, f := range h.fields {
		buf = append(buf, f.Name...)
		buf = append(buf, ':', ' ')
		buf = append(buf, f.Value...)
		buf = append(buf, '\r', '\n')
	}
	buf = append(buf, '\r', '\n')
	return buf
}
