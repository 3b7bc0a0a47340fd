package websocket

import (
	"github.com/pinklite/websockets/internal/handshake"
	"github.com/pinklite/websockets/internal/httpwire"
)

// Role distinguishes which side of a connection a Conn plays, since masking
// direction and a handful of handshake fields differ between them.
type Role int

const (
	RoleClient Role = iota
	RoleServer
)

// State is one of the CONNECTING→OPEN→CLOSING→CLOSED lifecycle states
// (§4.E). Transitions are one-way.
type State int

const (
	StateConnecting State = iota
	StateOpen
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "CONNECTING"
	case StateOpen:
		return "OPEN"
	case StateClosing:
		return "CLOSING"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// Options configures a Conn. Zero values pick the defaults noted per field.
type Options struct {
	// MaxMessageSize caps a reassembled message's total payload size. nil
	// means unlimited; exceeding the limit closes the connection with code
	// 1009 (message too big).
	MaxMessageSize *int
	// MaxHeaderLine caps one handshake header line's length, in bytes,
	// including the trailing CRLF. Zero uses httpwire.MaxHeaderLineLength
	// (4096).
	MaxHeaderLine int
	// MaxHeaders caps the number of headers in the handshake block. Zero
	// uses httpwire.MaxHeaderCount (256).
	MaxHeaders int
	// Subprotocols this side supports, offered (client) or accepted from
	// among (server), in preference order.
	Subprotocols []string
	// Extensions this side is willing to negotiate, tried in order.
	Extensions []handshake.ExtensionFactory
	// Origins restricts accepted Origin header values (server only). nil
	// means any origin, or none, is accepted.
	Origins []string
	// Selector picks a subprotocol on the server side; nil uses the
	// default first-mutual-match behavior.
	Selector handshake.ProtocolSelector
	// DisableAutoPong turns off the default behavior of queuing a PONG in
	// response to every PING.
	DisableAutoPong bool
	// ServerHeader and UserAgentHeader, when non-empty, are added to the
	// handshake response/request as Server/User-Agent.
	ServerHeader    string
	UserAgentHeader string
}

func (o Options) maxHeaderLine() int {
	if o.MaxHeaderLine > 0 {
		return o.MaxHeaderLine
	}
	return httpwire.MaxHeaderLineLength
}

func (o Options) maxHeaders() int {
	if o.MaxHeaders > 0 {
		return o.MaxHeaders
	}
	return httpwire.MaxHeaderCount
}
