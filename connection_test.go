package websocket

import (
	"testing"

	"github.com/pinklite/websockets/internal/extensions"
	"github.com/pinklite/websockets/internal/frame"
	"github.com/pinklite/websockets/internal/handshake"
	"github.com/pinklite/websockets/internal/httpwire"
	"github.com/pinklite/websockets/internal/stream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// handshakeAndOpen drives a client Conn and a server Conn through a full
// handshake, entirely in memory (no net.Conn involved), and asserts both
// land in Open with a HandshakeCompleted event.
func handshakeAndOpen(t *testing.T, clientOpts ClientOptions, serverOpts Options) (*Conn, *Conn) {
	t.Helper()
	client := NewClientConn(clientOpts)
	server := NewServerConn(serverOpts)

	req := client.Initiate()
	// Initiate also queues the request; drain that copy so the client's
	// later BytesToSend calls carry only frames.
	require.Equal(t, req, client.BytesToSend())
	server.ReceiveData(req)
	require.Equal(t, StateOpen, server.State())

	resp := server.BytesToSend()
	client.ReceiveData(resp)
	require.Equal(t, StateOpen, client.State())

	serverEvents := server.EventsReceived()
	clientEvents := client.EventsReceived()
	require.Len(t, serverEvents, 1)
	require.Len(t, clientEvents, 1)
	_, ok := serverEvents[0].(HandshakeCompleted)
	assert.True(t, ok)
	_, ok = clientEvents[0].(HandshakeCompleted)
	assert.True(t, ok)

	return client, server
}

func TestHandshakeOpensBothSides(t *testing.T) {
	handshakeAndOpen(t, ClientOptions{Host: "example.com", Path: "/chat"}, Options{})
}

func TestTextMessageRoundTrip(t *testing.T) {
	client, server := handshakeAndOpen(t, ClientOptions{Host: "example.com", Path: "/chat"}, Options{})

	require.NoError(t, client.SendText("hello"))
	server.ReceiveData(client.BytesToSend())

	events := server.EventsReceived()
	require.Len(t, events, 1)
	msg, ok := events[0].(TextMessage)
	require.True(t, ok)
	assert.Equal(t, "hello", msg.Text)
}

func TestBinaryMessageRoundTrip(t *testing.T) {
	client, server := handshakeAndOpen(t, ClientOptions{Host: "example.com", Path: "/chat"}, Options{})

	payload := []byte{1, 2, 3, 4, 5}
	require.NoError(t, server.SendBinary(payload))
	client.ReceiveData(server.BytesToSend())

	events := client.EventsReceived()
	require.Len(t, events, 1)
	msg, ok := events[0].(BinaryMessage)
	require.True(t, ok)
	assert.Equal(t, payload, msg.Data)
}

func TestPingGetsAutoPong(t *testing.T) {
	client, server := handshakeAndOpen(t, ClientOptions{Host: "example.com", Path: "/chat"}, Options{})

	require.NoError(t, client.SendPing([]byte("ping-payload")))
	server.ReceiveData(client.BytesToSend())

	serverEvents := server.EventsReceived()
	require.Len(t, serverEvents, 1)
	ping, ok := serverEvents[0].(PingReceived)
	require.True(t, ok)
	assert.Equal(t, []byte("ping-payload"), ping.Payload)

	client.ReceiveData(server.BytesToSend())
	clientEvents := client.EventsReceived()
	require.Len(t, clientEvents, 1)
	pong, ok := clientEvents[0].(PongReceived)
	require.True(t, ok)
	assert.Equal(t, []byte("ping-payload"), pong.Payload)
}

func TestCloseHandshakeClientInitiated(t *testing.T) {
	client, server := handshakeAndOpen(t, ClientOptions{Host: "example.com", Path: "/chat"}, Options{})

	require.NoError(t, client.SendClose(1000, "bye"))
	assert.Equal(t, StateClosing, client.State())

	server.ReceiveData(client.BytesToSend())
	assert.Equal(t, StateClosed, server.State())

	serverEvents := server.EventsReceived()
	require.Len(t, serverEvents, 2)
	closeReceived, ok := serverEvents[0].(CloseReceived)
	require.True(t, ok)
	assert.Equal(t, 1000, closeReceived.Code)
	assert.Equal(t, "bye", closeReceived.Reason)
	closed, ok := serverEvents[1].(ConnectionClosed)
	require.True(t, ok)
	assert.True(t, closed.WasClean)

	client.ReceiveData(server.BytesToSend())
	assert.Equal(t, StateClosed, client.State())
}

func TestFragmentedMessageReassembly(t *testing.T) {
	client, server := handshakeAndOpen(t, ClientOptions{Host: "example.com", Path: "/chat"}, Options{})

	require.NoError(t, client.SendText("hello world"))
	wire := client.BytesToSend()
	// Feed byte-by-byte to exercise the incremental reassembly path (§8
	// chunk independence).
	for i := range wire {
		server.ReceiveData(wire[i : i+1])
	}
	events := server.EventsReceived()
	require.Len(t, events, 1)
	msg, ok := events[0].(TextMessage)
	require.True(t, ok)
	assert.Equal(t, "hello world", msg.Text)
}

func TestMultiFrameFragmentationAcrossContinuationFrames(t *testing.T) {
	_, server := handshakeAndOpen(t, ClientOptions{Host: "example.com", Path: "/chat"}, Options{})

	first := (&frame.Frame{Fin: false, Opcode: frame.OpText, Payload: []byte("hello ")}).Serialize(frame.SideClient, nil)
	second := (&frame.Frame{Fin: true, Opcode: frame.OpContinuation, Payload: []byte("world")}).Serialize(frame.SideClient, nil)

	server.ReceiveData(first)
	assert.Empty(t, server.EventsReceived())

	server.ReceiveData(second)
	events := server.EventsReceived()
	require.Len(t, events, 1)
	msg, ok := events[0].(TextMessage)
	require.True(t, ok)
	assert.Equal(t, "hello world", msg.Text)
}

func TestContinuationWithoutStartIsProtocolError(t *testing.T) {
	_, server := handshakeAndOpen(t, ClientOptions{Host: "example.com", Path: "/chat"}, Options{})

	wire := (&frame.Frame{Fin: true, Opcode: frame.OpContinuation, Payload: []byte("x")}).Serialize(frame.SideClient, nil)
	server.ReceiveData(wire)

	assert.Equal(t, StateClosed, server.State())
	events := server.EventsReceived()
	require.NotEmpty(t, events)
	closed, ok := events[len(events)-1].(ConnectionClosed)
	require.True(t, ok)
	assert.Equal(t, 1002, closed.Code)
}

func TestOversizedMessageClosesWithCode1009(t *testing.T) {
	limit := 4
	client, server := handshakeAndOpen(t, ClientOptions{Host: "example.com", Path: "/chat"}, Options{MaxMessageSize: &limit})

	require.NoError(t, client.SendText("too long for the limit"))
	server.ReceiveData(client.BytesToSend())

	assert.Equal(t, StateClosed, server.State())
	events := server.EventsReceived()
	require.NotEmpty(t, events)
	closed, ok := events[len(events)-1].(ConnectionClosed)
	require.True(t, ok)
	assert.Equal(t, 1009, closed.Code)
	assert.False(t, closed.WasClean)
}

func TestInvalidUTF8ClosesWithCode1007(t *testing.T) {
	_, server := handshakeAndOpen(t, ClientOptions{Host: "example.com", Path: "/chat"}, Options{})

	// A masked TEXT frame (server parses client-to-server frames) whose
	// payload is a lone continuation byte: not valid UTF-8 on its own.
	invalidText := []byte{0x81, 0x81, 0, 0, 0, 0, 0x80}
	server.ReceiveData(invalidText)

	assert.Equal(t, StateClosed, server.State())
	events := server.EventsReceived()
	require.NotEmpty(t, events)
	closed, ok := events[len(events)-1].(ConnectionClosed)
	require.True(t, ok)
	assert.Equal(t, 1007, closed.Code)
}

func TestAbruptEOFReportsUncleanClose(t *testing.T) {
	_, server := handshakeAndOpen(t, ClientOptions{Host: "example.com", Path: "/chat"}, Options{})

	server.ReceiveEOF()
	assert.Equal(t, StateClosed, server.State())
	events := server.EventsReceived()
	require.Len(t, events, 1)
	closed, ok := events[0].(ConnectionClosed)
	require.True(t, ok)
	assert.False(t, closed.WasClean)
	assert.Equal(t, 1006, closed.Code)
}

func TestAcceptCalledDirectlyByHost(t *testing.T) {
	client := NewClientConn(ClientOptions{Host: "example.com", Path: "/chat"})
	req := client.Initiate()

	rl := stream.NewReader()
	rl.Feed(req)
	parsed, err := httpwire.ParseRequest(rl, httpwire.MaxHeaderLineLength, httpwire.MaxHeaderCount)
	require.NoError(t, err)

	server := NewServerConn(Options{})
	resp, err := server.Accept(parsed)
	require.NoError(t, err)
	assert.Equal(t, 101, resp.StatusCode)
	assert.Equal(t, StateOpen, server.State())
}

func TestPermessageDeflateNegotiatedAndUsed(t *testing.T) {
	clientPMD := &extensions.PermessageDeflate{}
	serverPMD := &extensions.PermessageDeflate{}

	client, server := handshakeAndOpen(t,
		ClientOptions{Host: "example.com", Path: "/chat", Options: Options{Extensions: []handshake.ExtensionFactory{clientPMD}}},
		Options{Extensions: []handshake.ExtensionFactory{serverPMD}},
	)

	longText := ""
	for i := 0; i < 50; i++ {
		longText += "compress me please "
	}
	require.NoError(t, client.SendText(longText))
	server.ReceiveData(client.BytesToSend())

	events := server.EventsReceived()
	require.Len(t, events, 1)
	msg, ok := events[0].(TextMessage)
	require.True(t, ok)
	assert.Equal(t, longText, msg.Text)
}
