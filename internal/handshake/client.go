package handshake

import (
	"io"

	"github.com/pinklite/websockets/internal/httpwire"
)

// ClientOffer is what the client side of the handshake proposed, kept
// around so the response can be validated against it.
type ClientOffer struct {
	Key         string
	Subprotocols []string
	Extensions  []ExtensionFactory
}

// BuildRequest renders the client's opening request per §4.D: Host,
// Upgrade, Connection, Sec-WebSocket-Key, Sec-WebSocket-Version, and
// optionally Origin / Sec-WebSocket-Protocol / Sec-WebSocket-Extensions.
func BuildRequest(host, path, origin string, offer ClientOffer) *httpwire.Request {
	h := httpwire.Headers{}
	h.Add("Host", host)
	h.Add("Upgrade", "websocket")
	h.Add("Connection", "Upgrade")
	h.Add("Sec-WebSocket-Key", offer.Key)
	h.Add("Sec-WebSocket-Version", Version)
	if origin != "" {
		h.Add("Origin", origin)
	}
	if len(offer.Subprotocols) > 0 {
		h.Add("Sec-WebSocket-Protocol", joinComma(offer.Subprotocols))
	}
	if len(offer.Extensions) > 0 {
		opts := make([]Option, len(offer.Extensions))
		for i, ext := range offer.Extensions {
			opts[i] = ext.Offer()
		}
		h.Add("Sec-WebSocket-Extensions", writeExtensionsHeader(opts))
	}
	return &httpwire.Request{Path: path, Headers: h}
}

func joinComma(ss []string) string {
	out := ss[0]
	for _, s := range ss[1:] {
		out += ", " + s
	}
	return out
}

// NewKeyOffer is a convenience wrapper used by the façade: it generates a
// fresh Sec-WebSocket-Key using rnd.
func NewKeyOffer(rnd io.Reader, subprotocols []string, extensions []ExtensionFactory) (ClientOffer, error) {
	key, err := NewKey(rnd)
	if err != nil {
		return ClientOffer{}, err
	}
	return ClientOffer{Key: key, Subprotocols: subprotocols, Extensions: extensions}, nil
}

// NegotiateClient validates the server's response against what the client
// offered (§4.D) and returns the agreed subprotocol/extensions.
func NegotiateClient(resp *httpwire.Response, offer ClientOffer) (*Accepted, error) {
	if resp.StatusCode != 101 {
		return nil, &Error{Reason: "unexpected status code"}
	}
	if !headerContainsToken(resp.Headers, "Upgrade", "websocket") {
		return nil, &Error{Reason: "missing or invalid Upgrade header"}
	}
	if !headerContainsToken(resp.Headers, "Connection", "Upgrade") {
		return nil, &Error{Reason: "missing or invalid Connection header"}
	}
	accept, ok := resp.Headers.Get("Sec-WebSocket-Accept")
	if !ok || accept != Accept(offer.Key) {
		return nil, &Error{Reason: "missing or invalid Sec-WebSocket-Accept"}
	}

	var result Accepted
	if proto, ok := resp.Headers.Get("Sec-WebSocket-Protocol"); ok {
		found := false
		for _, want := range offer.Subprotocols {
			if want == proto {
				found = true
				break
			}
		}
		if !found {
			return nil, &Error{Reason: "server selected a subprotocol the client did not offer"}
		}
		result.Subprotocol = proto
	}

	if extHeader, ok := resp.Headers.Get("Sec-WebSocket-Extensions"); ok {
		opts, ok := parseExtensions(extHeader)
		if !ok {
			return nil, &Error{Reason: "malformed Sec-WebSocket-Extensions"}
		}
		for _, opt := range opts {
			factory := findFactory(offer.Extensions, opt.Name)
			if factory == nil {
				return nil, &Error{Reason: "server selected an extension the client did not offer"}
			}
			accepted, ok := factory.Accept(opt)
			if !ok {
				return nil, &Error{Reason: "server proposed incompatible extension parameters"}
			}
			result.Extensions = append(result.Extensions, Negotiated{Factory: factory, Params: accepted})
		}
	}
	return &result, nil
}

func findFactory(factories []ExtensionFactory, name string) ExtensionFactory {
	for _, f := range factories {
		if f.Name() == name {
			return f
		}
	}
	return nil
}
