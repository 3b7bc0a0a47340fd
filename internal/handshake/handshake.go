// Package handshake implements the RFC 6455 §4 upgrade negotiation: key
// generation, Sec-WebSocket-Accept computation, and subprotocol/extension
// selection. It reads and writes *httpwire.Request / *httpwire.Response
// values; it performs no I/O and owns no connection state.
package handshake

import (
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"github.com/gobwas/httphead"
	"github.com/pinklite/websockets/internal/httpwire"
)

const guid = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

// Version is the only WebSocket protocol version this package speaks.
const Version = "13"

// Error reports a handshake negotiation mismatch (§7 "handshake" error
// kind): a missing or malformed field, a status the client didn't ask for,
// a subprotocol the client never offered, and so on.
type Error struct {
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("handshake error: %s", e.Reason)
}

// NewKey returns 16 random bytes, base64-encoded, for Sec-WebSocket-Key.
func NewKey(rnd io.Reader) (string, error) {
	var key [16]byte
	if _, err := io.ReadFull(rnd, key[:]); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(key[:]), nil
}

// Accept computes Sec-WebSocket-Accept from a Sec-WebSocket-Key value.
func Accept(key string) string {
	h := sha1.New()
	h.Write([]byte(key))
	h.Write([]byte(guid))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// headerContainsToken reports whether any value of header name contains,
// case-insensitively, value as a comma-separated token (used for the
// Connection and Upgrade header checks).
func headerContainsToken(h httpwire.Headers, name, value string) bool {
	for _, v := range h.Values(name) {
		for _, tok := range strings.Split(v, ",") {
			if strings.EqualFold(strings.TrimSpace(tok), value) {
				return true
			}
		}
	}
	return false
}

// Param is one extension parameter, e.g. client_max_window_bits with an
// optional value. A bare flag (no "=value") has an empty Value.
type Param struct {
	Key, Value string
}

// Params is an ordered list of extension parameters.
type Params []Param

// Get returns the value of the first parameter named key.
func (p Params) Get(key string) (string, bool) {
	for _, kv := range p {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return "", false
}

// Option is one extension offer or acceptance: its token name plus
// parameters, as they appear in Sec-WebSocket-Extensions.
type Option struct {
	Name   string
	Params Params
}

// ExtensionFactory negotiates one RFC 7692-style WebSocket extension. A
// host supplies the factories it supports via Options.Extensions (§6).
type ExtensionFactory interface {
	// Name is the token used in Sec-WebSocket-Extensions, e.g.
	// "permessage-deflate".
	Name() string
	// Offer returns the parameters this side proposes when initiating.
	Offer() Option
	// Accept is given the parameters the peer proposed (server side) or
	// confirmed (client side) for this extension name, and decides
	// whether to enable it.
	Accept(params Option) (accepted Option, ok bool)
}

// parseExtensions parses a Sec-WebSocket-Extensions header value into an
// ordered list of options, using gobwas/httphead's comma/semicolon scanner
// instead of hand-rolling strings.Split-based token parsing a second time
// (internal/httpwire already owns plain token grammar; structured
// parameter lists are httphead's job). The scanned attr/val pairs are
// copied into our own Params rather than kept as httphead.Option, since we
// only need the scanner, not its parameter-storage type.
func parseExtensions(value string) ([]Option, bool) {
	if value == "" {
		return nil, true
	}
	var opts []Option
	ok := httphead.ScanOptions([]byte(value), func(i int, name, attr, val []byte) httphead.Control {
		if i == len(opts) {
			opts = append(opts, Option{Name: string(name)})
		}
		if attr != nil {
			opts[i].Params = append(opts[i].Params, Param{Key: string(attr), Value: string(val)})
		}
		return httphead.ControlContinue
	})
	return opts, ok
}

func writeExtensionsHeader(opts []Option) string {
	var b strings.Builder
	for i, o := range opts {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(o.Name)
		for _, p := range o.Params {
			b.WriteString("; ")
			b.WriteString(p.Key)
			if p.Value != "" {
				b.WriteByte('=')
				b.WriteString(p.Value)
			}
		}
	}
	return b.String()
}

func parseProtocols(value string) []string {
	if value == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(value, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Accepted describes the outcome of a successful negotiation.
type Accepted struct {
	Subprotocol string
	Extensions  []Negotiated
}

// Negotiated pairs an accepted extension's factory with the parameters both
// sides settled on.
type Negotiated struct {
	Factory ExtensionFactory
	Params  Option
}
