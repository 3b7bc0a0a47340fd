package websocket

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"io"

	"github.com/pinklite/websockets/internal/frame"
	"github.com/pinklite/websockets/internal/handshake"
	"github.com/pinklite/websockets/internal/httpwire"
	"github.com/pinklite/websockets/internal/stream"
)

// compressor is implemented by an ExtensionFactory that transforms whole
// message payloads once negotiated. Only extensions.PermessageDeflate
// implements it today; an extension that doesn't is negotiated but left
// untouched by the connection layer (its factory owns whatever per-frame
// behavior it needs, if any, outside of Compress/Decompress).
type compressor interface {
	Compress(payload []byte) ([]byte, error)
	Decompress(payload []byte) ([]byte, error)
}

// Conn drives the CONNECTING→OPEN→CLOSING→CLOSED lifecycle (§4.E) on top of
// the frame and handshake codecs. It owns no socket: a host feeds inbound
// bytes via ReceiveData/ReceiveEOF and drains BytesToSend/EventsReceived.
// Not safe for concurrent use — exactly one goroutine should own a Conn, the
// same way betamos-Go-Websocket's Conn.loop expects a single reader.
type Conn struct {
	role Role
	opts Options
	rnd  io.Reader

	state State

	rl *stream.Reader

	out    []byte
	events []Event

	// client-only handshake state
	host, path, origin string
	clientOffer        handshake.ClientOffer

	negotiated *handshake.Accepted
	deflate    compressor

	fragInProgress bool
	fragOpcode     frame.Opcode
	fragPayload    []byte
	fragCompressed bool
	fragUTF8       frame.UTF8Validator

	closeSent     bool
	closeReceived bool

	bytesIn, bytesOut int64
}

func newConn(role Role, opts Options, rnd io.Reader) *Conn {
	if rnd == nil {
		rnd = rand.Reader
	}
	return &Conn{
		role:  role,
		opts:  opts,
		rnd:   rnd,
		state: StateConnecting,
		rl:    stream.NewReader(),
	}
}

// State returns the connection's current lifecycle state.
func (c *Conn) State() State { return c.state }

// Role reports whether this Conn plays the client or server side.
func (c *Conn) Role() Role { return c.role }

// BytesIn and BytesOut are monotonic counters of bytes fed in / queued out,
// for diagnostics (§3's "monotonic in/out byte counter").
func (c *Conn) BytesIn() int64  { return c.bytesIn }
func (c *Conn) BytesOut() int64 { return c.bytesOut }

func (c *Conn) side() frame.Side {
	if c.role == RoleClient {
		return frame.SideClient
	}
	return frame.SideServer
}

// Initiate renders the client's opening handshake request (§4.D/§4.F) and
// both queues and returns it. Only meaningful on a client-role Conn in the
// Connecting state.
func (c *Conn) Initiate() []byte {
	offer, err := handshake.NewKeyOffer(c.rnd, c.opts.Subprotocols, c.opts.Extensions)
	if err != nil {
		c.closeWithoutFrame(1002, "could not generate Sec-WebSocket-Key: "+err.Error(), false)
		return c.BytesToSend()
	}
	c.clientOffer = offer
	req := handshake.BuildRequest(c.host, c.path, c.origin, offer)
	if c.opts.UserAgentHeader != "" {
		req.Headers.Add("User-Agent", c.opts.UserAgentHeader)
	}
	wire := req.Serialize()
	c.out = append(c.out, wire...)
	c.bytesOut += int64(len(wire))
	return wire
}

// Accept validates req as a WebSocket upgrade (§4.D) and, on success, queues
// the 101 response and moves the Conn to Open. A host that parses the
// handshake request itself (e.g. via net/http's Hijack) calls this
// directly; a host that instead feeds raw bytes through ReceiveData gets
// the same behavior automatically once the request line and headers are
// fully buffered.
func (c *Conn) Accept(req *httpwire.Request) (*httpwire.Response, error) {
	if c.role != RoleServer {
		panic("websocket: Accept called on a client Conn")
	}
	if c.state != StateConnecting {
		return nil, &HandshakeError{Reason: "handshake already completed"}
	}
	return c.doAccept(req)
}

func (c *Conn) doAccept(req *httpwire.Request) (*httpwire.Response, error) {
	serverOpts := handshake.ServerOptions{
		Subprotocols: c.opts.Subprotocols,
		Extensions:   c.opts.Extensions,
		Selector:     c.opts.Selector,
		Origins:      c.opts.Origins,
	}
	accepted, resp, err := handshake.NegotiateServer(req, serverOpts)
	if err != nil {
		c.closeWithoutFrame(1002, err.Error(), false)
		return nil, &HandshakeError{Reason: err.Error(), Err: err}
	}
	if c.opts.ServerHeader != "" {
		resp.Headers.Add("Server", c.opts.ServerHeader)
	}
	wire := resp.Serialize()
	c.out = append(c.out, wire...)
	c.bytesOut += int64(len(wire))
	c.applyNegotiated(accepted)
	return resp, nil
}

func (c *Conn) applyNegotiated(accepted *handshake.Accepted) {
	c.negotiated = accepted
	var extNames []string
	for _, neg := range accepted.Extensions {
		extNames = append(extNames, neg.Factory.Name())
		if comp, ok := neg.Factory.(compressor); ok && c.deflate == nil {
			c.deflate = comp
		}
	}
	c.state = StateOpen
	c.events = append(c.events, HandshakeCompleted{Subprotocol: accepted.Subprotocol, Extensions: extNames})
}

// ReceiveData feeds inbound bytes. It drives the handshake codec while
// Connecting and the frame codec once Open/Closing, producing events and
// outbound bytes as a side effect; nothing here performs I/O.
func (c *Conn) ReceiveData(p []byte) {
	if c.state == StateClosed {
		return
	}
	c.rl.Feed(p)
	c.bytesIn += int64(len(p))
	c.run()
}

// ReceiveEOF signals that the transport has no more bytes. If the
// connection hasn't already reached Closed (via a completed close
// handshake or a fatal error), this is an abrupt closure: ConnectionClosed
// is reported with WasClean=false and code 1006, the code RFC 6455
// reserves for "closed without a Close frame" and which never appears on
// the wire.
func (c *Conn) ReceiveEOF() {
	if c.state == StateClosed {
		return
	}
	c.rl.FeedEOF()
	c.run()
	if c.state != StateClosed {
		c.closeWithoutFrame(1006, "connection closed without a close handshake", false)
	}
}

func (c *Conn) run() {
	for {
		switch c.state {
		case StateConnecting:
			if !c.runHandshake() {
				return
			}
		case StateOpen, StateClosing:
			if !c.runFrame() {
				return
			}
		default:
			return
		}
	}
}

func (c *Conn) runHandshake() bool {
	if c.role == RoleClient {
		resp, err := httpwire.ParseResponse(c.rl, c.opts.maxHeaderLine(), c.opts.maxHeaders())
		if err != nil {
			return c.handleHandshakeReadErr(err)
		}
		accepted, err := handshake.NegotiateClient(resp, c.clientOffer)
		if err != nil {
			c.closeWithoutFrame(1002, err.Error(), false)
			return false
		}
		c.applyNegotiated(accepted)
		return true
	}

	req, err := httpwire.ParseRequest(c.rl, c.opts.maxHeaderLine(), c.opts.maxHeaders())
	if err != nil {
		return c.handleHandshakeReadErr(err)
	}
	c.doAccept(req)
	return true
}

func (c *Conn) handleHandshakeReadErr(err error) bool {
	if errors.Is(err, stream.ErrNeedMore) {
		return false
	}
	c.closeWithoutFrame(1002, err.Error(), false)
	return false
}

func (c *Conn) closeWithoutFrame(code int, reason string, wasClean bool) {
	if c.state == StateClosed {
		return
	}
	c.state = StateClosed
	c.events = append(c.events, ConnectionClosed{Code: code, Reason: reason, WasClean: wasClean})
}

func (c *Conn) runFrame() bool {
	f, err := frame.ParseFrame(c.rl, c.side(), c.deflate != nil)
	if err != nil {
		return c.handleFrameReadErr(err)
	}
	c.handleFrame(f)
	return c.state != StateClosed
}

func (c *Conn) handleFrameReadErr(err error) bool {
	if errors.Is(err, stream.ErrNeedMore) {
		return false
	}
	var pe *frame.ProtocolError
	if errors.As(err, &pe) {
		c.fail(1002, pe.Reason, &ProtocolError{Reason: pe.Reason, Err: pe})
		return false
	}
	c.closeWithoutFrame(1006, err.Error(), false)
	return false
}

// fail best-effort sends a CLOSE frame with code (unless one was already
// sent) and moves straight to Closed, per §4.E's "any protocol error
// transitions directly to CLOSED".
func (c *Conn) fail(code int, reason string, _ error) {
	if !c.closeSent && c.state != StateClosed {
		c.sendCloseFrame(code, "")
	}
	c.state = StateClosed
	c.events = append(c.events, ConnectionClosed{Code: code, Reason: reason, WasClean: false})
}

func (c *Conn) handleFrame(f *frame.Frame) {
	switch f.Opcode {
	case frame.OpPing:
		c.events = append(c.events, PingReceived{Payload: f.Payload})
		if !c.opts.DisableAutoPong && c.state == StateOpen {
			c.sendControlFrame(frame.OpPong, f.Payload)
		}
		return
	case frame.OpPong:
		c.events = append(c.events, PongReceived{Payload: f.Payload})
		return
	case frame.OpClose:
		c.handleCloseFrame(f.Payload)
		return
	}

	switch f.Opcode {
	case frame.OpText, frame.OpBinary:
		if c.fragInProgress {
			c.fail(1002, "unfinished-message", nil)
			return
		}
		c.fragInProgress = true
		c.fragOpcode = f.Opcode
		c.fragCompressed = f.Rsv1
		c.fragPayload = append([]byte(nil), f.Payload...)
		if f.Opcode == frame.OpText && !f.Rsv1 {
			c.fragUTF8 = frame.UTF8Validator{}
			if !c.fragUTF8.Write(f.Payload) {
				c.fail(1007, "invalid-utf8", nil)
				return
			}
		}
	case frame.OpContinuation:
		if !c.fragInProgress {
			c.fail(1002, "unexpected-continuation", nil)
			return
		}
		c.fragPayload = append(c.fragPayload, f.Payload...)
		if c.fragOpcode == frame.OpText && !c.fragCompressed {
			if !c.fragUTF8.Write(f.Payload) {
				c.fail(1007, "invalid-utf8", nil)
				return
			}
		}
	default:
		c.fail(1002, "unknown-opcode", nil)
		return
	}

	if c.opts.MaxMessageSize != nil && len(c.fragPayload) > *c.opts.MaxMessageSize {
		c.fail(1009, "oversized-message", nil)
		return
	}

	if !f.Fin {
		return
	}

	message := c.fragPayload
	opcode := c.fragOpcode
	compressed := c.fragCompressed
	c.fragInProgress = false
	c.fragPayload = nil

	if compressed {
		decompressed, err := c.deflate.Decompress(message)
		if err != nil {
			c.fail(1007, "invalid-compressed-payload", nil)
			return
		}
		message = decompressed
		if opcode == frame.OpText && !frame.ValidUTF8(message) {
			c.fail(1007, "invalid-utf8", nil)
			return
		}
	} else if opcode == frame.OpText && !c.fragUTF8.Complete() {
		c.fail(1007, "invalid-utf8", nil)
		return
	}

	if opcode == frame.OpText {
		c.events = append(c.events, TextMessage{Text: string(message)})
	} else {
		c.events = append(c.events, BinaryMessage{Data: message})
	}
}

func (c *Conn) handleCloseFrame(payload []byte) {
	if len(payload) == 1 {
		c.fail(1002, "invalid-close-payload", nil)
		return
	}
	code := 1000
	reason := ""
	hasCode := len(payload) >= 2
	if hasCode {
		code = int(binary.BigEndian.Uint16(payload[:2]))
		if !validCloseCode(code) {
			c.fail(1002, "invalid-close-code", nil)
			return
		}
		if !frame.ValidUTF8(payload[2:]) {
			c.fail(1007, "invalid-utf8", nil)
			return
		}
		reason = string(payload[2:])
	}

	c.events = append(c.events, CloseReceived{Code: code, Reason: reason})
	c.closeReceived = true

	if c.closeSent {
		c.state = StateClosed
		c.events = append(c.events, ConnectionClosed{Code: code, Reason: reason, WasClean: true})
		return
	}

	c.state = StateClosing
	c.sendCloseFrame(code, "")
	c.state = StateClosed
	c.events = append(c.events, ConnectionClosed{Code: code, Reason: reason, WasClean: true})
}

func validCloseCode(code int) bool {
	switch code {
	case 1004, 1005, 1006:
		return false
	}
	switch {
	case code >= 1000 && code <= 1011:
		return true
	case code >= 3000 && code <= 4999:
		return true
	}
	return false
}

func (c *Conn) sendCloseFrame(code int, reason string) {
	payload := make([]byte, 2+len(reason))
	binary.BigEndian.PutUint16(payload, uint16(code))
	copy(payload[2:], reason)
	c.sendControlFrame(frame.OpClose, payload)
	c.closeSent = true
	if c.state == StateOpen {
		c.state = StateClosing
	}
}

func (c *Conn) sendControlFrame(opcode frame.Opcode, payload []byte) {
	f := &frame.Frame{Fin: true, Opcode: opcode, Payload: payload}
	wire := f.Serialize(c.side(), c.rnd)
	c.out = append(c.out, wire...)
	c.bytesOut += int64(len(wire))
}

func (c *Conn) sendMessage(opcode frame.Opcode, payload []byte) error {
	if c.state != StateOpen {
		return &ConnectionClosedError{WasClean: c.state == StateClosed}
	}
	rsv1 := false
	if c.deflate != nil {
		if compressed, err := c.deflate.Compress(payload); err == nil {
			payload = compressed
			rsv1 = true
		}
	}
	f := &frame.Frame{Fin: true, Rsv1: rsv1, Opcode: opcode, Payload: payload}
	wire := f.Serialize(c.side(), c.rnd)
	c.out = append(c.out, wire...)
	c.bytesOut += int64(len(wire))
	return nil
}

// SendText queues a TEXT message, compressed via the negotiated
// permessage-deflate extension if one was agreed.
func (c *Conn) SendText(text string) error {
	return c.sendMessage(frame.OpText, []byte(text))
}

// SendBinary queues a BINARY message.
func (c *Conn) SendBinary(data []byte) error {
	return c.sendMessage(frame.OpBinary, data)
}

// SendPing queues a PING control frame.
func (c *Conn) SendPing(payload []byte) error {
	if c.state != StateOpen {
		return &ConnectionClosedError{WasClean: c.state == StateClosed}
	}
	c.sendControlFrame(frame.OpPing, payload)
	return nil
}

// SendPong queues a PONG control frame (a solicited or unsolicited one; use
// this directly if Options.DisableAutoPong is set).
func (c *Conn) SendPong(payload []byte) error {
	if c.state != StateOpen {
		return &ConnectionClosedError{WasClean: c.state == StateClosed}
	}
	c.sendControlFrame(frame.OpPong, payload)
	return nil
}

// SendClose queues a CLOSE frame and moves the connection to Closing. The
// peer's echo CLOSE (or ReceiveEOF) completes the transition to Closed.
func (c *Conn) SendClose(code int, reason string) error {
	if c.state != StateOpen {
		return &ConnectionClosedError{WasClean: c.state == StateClosed}
	}
	c.sendCloseFrame(code, reason)
	return nil
}

// BytesToSend returns and clears whatever outbound bytes have accumulated.
func (c *Conn) BytesToSend() []byte {
	out := c.out
	c.out = nil
	return out
}

// EventsReceived returns and clears whatever events have accumulated.
func (c *Conn) EventsReceived() []Event {
	ev := c.events
	c.events = nil
	return ev
}
