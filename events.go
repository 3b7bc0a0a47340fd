package websocket

// Event is one thing a Conn reports back to its host after a ReceiveData or
// ReceiveEOF call. Hosts drain them with EventsReceived.
type Event interface {
	isEvent()
}

// HandshakeCompleted is reported once the upgrade handshake succeeds and the
// connection moves to the Open state.
type HandshakeCompleted struct {
	Subprotocol string
	Extensions  []string
}

// TextMessage is a complete, UTF-8-validated TEXT message (after
// reassembling any fragmentation).
type TextMessage struct {
	Text string
}

// BinaryMessage is a complete BINARY message.
type BinaryMessage struct {
	Data []byte
}

// PingReceived is a PING control frame. If the Conn is Open and
// Options.DisableAutoPong is not set, the Conn already queued a matching
// PONG by the time this is reported; a PING received while Closing gets no
// PONG.
type PingReceived struct {
	Payload []byte
}

// PongReceived is a PONG control frame.
type PongReceived struct {
	Payload []byte
}

// CloseReceived is a CLOSE control frame from the peer, reported before the
// connection necessarily reaches Closed (the echo close frame may still be
// in flight).
type CloseReceived struct {
	Code   int
	Reason string
}

// ConnectionClosed is reported exactly once, when the connection reaches
// the Closed state. WasClean is false if the stream ended (ReceiveEOF)
// without a completed close handshake, or if a protocol/security error
// forced the closure.
type ConnectionClosed struct {
	Code     int
	Reason   string
	WasClean bool
}

func (HandshakeCompleted) isEvent() {}
func (TextMessage) isEvent()        {}
func (BinaryMessage) isEvent()      {}
func (PingReceived) isEvent()       {}
func (PongReceived) isEvent()       {}
func (CloseReceived) isEvent()      {}
func (ConnectionClosed) isEvent()   {}
