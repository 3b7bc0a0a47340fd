// Package extensions implements RFC 7692 permessage-deflate as a
// handshake.ExtensionFactory, and the per-message compress/decompress
// transform used once it is negotiated.
package extensions

import (
	"bytes"
	"compress/flate"
	"fmt"
	"io"
	"io/ioutil"
	"sync"

	"github.com/pinklite/websockets/internal/handshake"
)

const (
	minCompressionLevel     = flate.HuffmanOnly
	maxCompressionLevel     = flate.BestCompression
	defaultCompressionLevel = flate.BestSpeed
)

// deflateTail is appended to a compressed message before decompressing it,
// per RFC 7692 §7.2.2: the sender strips the trailing 0x00 0x00 0xff 0xff
// of the sync flush before sending, so the reader puts it back, followed by
// a final empty stored block so flate.Reader reaches a clean end of stream
// instead of reporting an unexpected EOF.
var deflateTail = []byte{0x00, 0x00, 0xff, 0xff, 0x01, 0x00, 0x00, 0xff, 0xff}

// PermessageDeflate is a handshake.ExtensionFactory for RFC 7692
// permessage-deflate. Compressors are pooled per compression level and
// decompressors in a single pool, mirroring the server's
// compressorPool/decompressorPool so repeated negotiations don't pay
// flate.NewWriter/NewReader setup cost per message.
type PermessageDeflate struct {
	// Level is the compression level passed to flate.NewWriter; it must be
	// in [flate.HuffmanOnly, flate.BestCompression]. Zero means
	// defaultCompressionLevel.
	Level int
	// NoContextTakeover makes Offer advertise server_no_context_takeover and
	// client_no_context_takeover. Compress and Decompress reset their flate
	// state for every message whether or not it is set, so no LZ77 window
	// is carried across messages in either case.
	NoContextTakeover bool

	compressorPool   [maxCompressionLevel - minCompressionLevel + 1]sync.Pool
	decompressorPool sync.Pool
}

func (p *PermessageDeflate) level() int {
	if p.Level == 0 {
		return defaultCompressionLevel
	}
	return p.Level
}

// Name implements handshake.ExtensionFactory.
func (p *PermessageDeflate) Name() string { return "permessage-deflate" }

// Offer implements handshake.ExtensionFactory.
func (p *PermessageDeflate) Offer() handshake.Option {
	opt := handshake.Option{Name: p.Name()}
	if p.NoContextTakeover {
		opt.Params = append(opt.Params,
			handshake.Param{Key: "server_no_context_takeover"},
			handshake.Param{Key: "client_no_context_takeover"},
		)
	}
	return opt
}

// Accept implements handshake.ExtensionFactory. It accepts context-takeover
// and window-bits parameters verbatim and rejects any other parameter.
func (p *PermessageDeflate) Accept(params handshake.Option) (handshake.Option, bool) {
	accepted := handshake.Option{Name: p.Name()}
	for _, kv := range params.Params {
		switch kv.Key {
		case "server_no_context_takeover", "client_no_context_takeover":
			accepted.Params = append(accepted.Params, kv)
		case "server_max_window_bits", "client_max_window_bits":
			// Negotiated but unenforced: this implementation always uses a
			// full window, which is a valid (if suboptimal) answer to any
			// requested max.
			accepted.Params = append(accepted.Params, kv)
		default:
			return handshake.Option{}, false
		}
	}
	return accepted, true
}

// Compress deflates payload for one message and sync-flushes it, omitting
// the flush's trailing 0x00 0x00 0xff 0xff (restored on decompress) as
// RFC 7692 §7.2.1 requires.
func (p *PermessageDeflate) Compress(payload []byte) ([]byte, error) {
	idx := p.level() - minCompressionLevel
	pool := &p.compressorPool[idx]
	compressor, _ := pool.Get().(*flate.Writer)
	var buf bytes.Buffer
	if compressor == nil {
		var err error
		compressor, err = flate.NewWriter(&buf, p.level())
		if err != nil {
			return nil, fmt.Errorf("permessage-deflate: %w", err)
		}
	} else {
		compressor.Reset(&buf)
	}
	if _, err := compressor.Write(payload); err != nil {
		return nil, fmt.Errorf("permessage-deflate: %w", err)
	}
	if err := compressor.Flush(); err != nil {
		return nil, fmt.Errorf("permessage-deflate: %w", err)
	}
	pool.Put(compressor)

	out := buf.Bytes()
	out = bytes.TrimSuffix(out, []byte{0x00, 0x00, 0xff, 0xff})
	return out, nil
}

// Decompress inflates one message's compressed payload.
func (p *PermessageDeflate) Decompress(payload []byte) ([]byte, error) {
	b := append(append([]byte(nil), payload...), deflateTail...)
	br := bytes.NewReader(b)

	d, _ := p.decompressorPool.Get().(io.ReadCloser)
	if d == nil {
		d = flate.NewReader(br)
	} else {
		d.(flate.Resetter).Reset(br, nil)
	}
	out, err := ioutil.ReadAll(d)
	p.decompressorPool.Put(d)
	if err != nil {
		return nil, fmt.Errorf("permessage-deflate: %w", err)
	}
	return out, nil
}
