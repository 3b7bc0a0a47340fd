package websocket

import "io"

// ClientOptions configures a client-role Conn: the common Options plus the
// request-line and header fields only a client supplies.
type ClientOptions struct {
	Options
	// Host is sent as the Host header.
	Host string
	// Path is the raw request target, e.g. "/chat".
	Path string
	// Origin, if non-empty, is sent as the Origin header.
	Origin string
	// Rand supplies randomness for the Sec-WebSocket-Key and every frame's
	// masking key. nil uses crypto/rand.Reader.
	Rand io.Reader
}

// NewClientConn returns a client-role Conn in the Connecting state. Call
// Initiate to produce the opening handshake request, per §4.F.
func NewClientConn(opts ClientOptions) *Conn {
	c := newConn(RoleClient, opts.Options, opts.Rand)
	c.host = opts.Host
	c.path = opts.Path
	c.origin = opts.Origin
	return c
}
