package httpwire

import (
	"testing"

	"github.com/pinklite/websockets/internal/stream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseResponseHandshakeSuccess(t *testing.T) {
	r := stream.NewReader()
	r.Feed([]byte("HTTP/1.1 101 Switching Protocols\r\n" +
		"Upgrade: websocket\r\n" +
		"Connection: Upgrade\r\n" +
		"Sec-WebSocket-Accept: s3pPLMBiTxaQ9kYGzzhZRbK+xOo=\r\n" +
		"\r\n"))

	resp, err := ParseResponse(r, MaxHeaderLineLength, MaxHeaderCount)
	require.NoError(t, err)
	assert.Equal(t, 101, resp.StatusCode)
	assert.Equal(t, "Switching Protocols", resp.ReasonPhrase)
	accept, ok := resp.Headers.Get("Sec-WebSocket-Accept")
	require.True(t, ok)
	assert.Equal(t, "s3pPLMBiTxaQ9kYGzzhZRbK+xOo=", accept)
}

func TestParseResponseEOFBeforeStatusLine(t *testing.T) {
	r := stream.NewReader()
	r.FeedEOF()

	_, err := ParseResponse(r, MaxHeaderLineLength, MaxHeaderCount)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection closed while reading HTTP status line")
}

func TestParseResponseUnsupportedStatusCode(t *testing.T) {
	r := stream.NewReader()
	r.Feed([]byte("HTTP/1.1 007 My name is Bond\r\n\r\n"))

	_, err := ParseResponse(r, MaxHeaderLineLength, MaxHeaderCount)
	require.Error(t, err)
	assert.Equal(t, "unsupported HTTP status code: 007", err.Error())
}

func TestParseResponseInvalidStatusLine(t *testing.T) {
	r := stream.NewReader()
	r.Feed([]byte("HTTP/1.1\r\n\r\n"))

	_, err := ParseResponse(r, MaxHeaderLineLength, MaxHeaderCount)
	require.Error(t, err)
	assert.Equal(t, "invalid HTTP status line: HTTP/1.1", err.Error())
}

func TestParseResponseUnsupportedVersion(t *testing.T) {
	r := stream.NewReader()
	r.Feed([]byte("HTTP/1.0 101 Switching Protocols\r\n\r\n"))

	_, err := ParseResponse(r, MaxHeaderLineLength, MaxHeaderCount)
	require.Error(t, err)
	assert.Equal(t, "unsupported HTTP version: HTTP/1.0", err.Error())
}

func TestParseResponseSerializeRoundTrip(t *testing.T) {
	h := Headers{}
	h.Add("Upgrade", "websocket")
	h.Add("Connection", "Upgrade")
	resp := &Response{StatusCode: 101, ReasonPhrase: "Switching Protocols", Headers: h}

	wire := resp.Serialize()

	r := stream.NewReader()
	r.Feed(wire)
	parsed, err := ParseResponse(r, MaxHeaderLineLength, MaxHeaderCount)
	require.NoError(t, err)
	assert.Equal(t, resp.StatusCode, parsed.StatusCode)
	assert.Equal(t, resp.ReasonPhrase, parsed.ReasonPhrase)
	assert.Equal(t, resp.Headers.Fields(), parsed.Headers.Fields())
}
