package handshake

import (
	"strings"

	"github.com/pinklite/websockets/internal/httpwire"
)

// ProtocolSelector picks at most one mutually acceptable subprotocol from
// the ones the client offered. The default, used when ServerOptions leaves
// Selector nil, returns the first of offered that appears in supported.
type ProtocolSelector func(offered, supported []string) (string, bool)

func defaultSelector(offered, supported []string) (string, bool) {
	for _, o := range offered {
		for _, s := range supported {
			if o == s {
				return o, true
			}
		}
	}
	return "", false
}

// ServerOptions configures the server side of the handshake.
type ServerOptions struct {
	Subprotocols []string
	Extensions   []ExtensionFactory
	Selector     ProtocolSelector
	// Origins, when non-nil, restricts accepted Origin header values;
	// nil means any origin (or none) is accepted.
	Origins []string
}

// NegotiateServer validates an upgrade request per §4.D and builds the 101
// response, selecting at most one subprotocol and negotiating extensions
// left to right.
func NegotiateServer(req *httpwire.Request, opts ServerOptions) (*Accepted, *httpwire.Response, error) {
	if !headerContainsToken(req.Headers, "Upgrade", "websocket") {
		return nil, nil, &Error{Reason: "missing or invalid Upgrade header"}
	}
	if !headerContainsToken(req.Headers, "Connection", "Upgrade") {
		return nil, nil, &Error{Reason: "missing or invalid Connection header"}
	}
	key, ok := req.Headers.Get("Sec-WebSocket-Key")
	if !ok || key == "" {
		return nil, nil, &Error{Reason: "missing Sec-WebSocket-Key"}
	}
	version, ok := req.Headers.Get("Sec-WebSocket-Version")
	if !ok || version != Version {
		return nil, nil, &Error{Reason: "missing or unsupported Sec-WebSocket-Version"}
	}
	if opts.Origins != nil {
		origin, _ := req.Headers.Get("Origin")
		if !originAllowed(origin, opts.Origins) {
			return nil, nil, &Error{Reason: "origin not allowed"}
		}
	}

	var result Accepted
	respHeaders := httpwire.Headers{}
	respHeaders.Add("Upgrade", "websocket")
	respHeaders.Add("Connection", "Upgrade")
	respHeaders.Add("Sec-WebSocket-Accept", Accept(key))

	if protoHeader, ok := req.Headers.Get("Sec-WebSocket-Protocol"); ok {
		offered := parseProtocols(protoHeader)
		selector := opts.Selector
		if selector == nil {
			selector = defaultSelector
		}
		if proto, ok := selector(offered, opts.Subprotocols); ok {
			result.Subprotocol = proto
			respHeaders.Add("Sec-WebSocket-Protocol", proto)
		}
	}

	if extHeader, ok := req.Headers.Get("Sec-WebSocket-Extensions"); ok {
		wanted, ok := parseExtensions(extHeader)
		if !ok {
			return nil, nil, &Error{Reason: "malformed Sec-WebSocket-Extensions"}
		}
		var negotiated []Negotiated
		var acceptedParams []Option
		for _, want := range wanted {
			factory := findFactory(opts.Extensions, want.Name)
			if factory == nil {
				continue // extensions the server doesn't support are silently skipped
			}
			params, ok := factory.Accept(want)
			if !ok {
				continue
			}
			negotiated = append(negotiated, Negotiated{Factory: factory, Params: params})
			acceptedParams = append(acceptedParams, params)
		}
		result.Extensions = negotiated
		if len(acceptedParams) > 0 {
			respHeaders.Add("Sec-WebSocket-Extensions", writeExtensionsHeader(acceptedParams))
		}
	}

	resp := &httpwire.Response{StatusCode: 101, ReasonPhrase: "Switching Protocols", Headers: respHeaders}
	return &result, resp, nil
}

func originAllowed(origin string, allowed []string) bool {
	if origin == "" {
		return true
	}
	for _, a := range allowed {
		if strings.EqualFold(a, origin) {
			return true
		}
	}
	return false
}
