package webdav

import (
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/zstd"
)

// errUnsupportedEncoding wraps a Content-Encoding token that isn't one
// of identity, gzip, br or zstd; AsError classifies it as
// ErrUnsupportedEncoding.
var errUnsupportedEncoding = errors.New("webdav: unsupported content-encoding")

// Encoding identifies a Content-Encoding this client can produce and
// consume.
type Encoding int

const (
	// Auto defers to the per-origin negotiation cache, picking
	// whichever encoding previous responses from that origin have
	// advertised support for (falling back to Identity).
	Auto Encoding = iota
	Identity
	Gzip
	Brotli
	Zstd
)

func (e Encoding) token() string {
	switch e {
	case Gzip:
		return "gzip"
	case Brotli:
		return "br"
	case Zstd:
		return "zstd"
	default:
		return "identity"
	}
}

func encodingFromToken(tok string) Encoding {
	switch tok {
	case "gzip":
		return Gzip
	case "br":
		return Brotli
	case "zstd":
		return Zstd
	default:
		return Identity
	}
}

// decodeBody wraps body with decompressing readers undoing every
// encoding named in the Content-Encoding header value, which RFC 7231
// lists outer-to-inner: the header is comma-split and trimmed, and each
// token in turn peels one layer, outermost first, closing the
// underlying body when the returned reader is closed. An unrecognized
// token fails with ErrUnsupportedEncoding.
func decodeBody(header string, body io.ReadCloser) (io.ReadCloser, error) {
	closer := body
	var r io.Reader = body

	for _, tok := range splitCommaList(header) {
		tok = strings.ToLower(tok)
		switch tok {
		case "", "identity":
			continue
		case "gzip":
			zr, err := gzip.NewReader(r)
			if err != nil {
				return nil, fmt.Errorf("webdav: invalid gzip body: %w", err)
			}
			r = zr
		case "br":
			r = brotli.NewReader(r)
		case "zstd":
			zr, err := zstd.NewReader(r)
			if err != nil {
				return nil, fmt.Errorf("webdav: invalid zstd body: %w", err)
			}
			r = zstdReadCloser{zr}
		default:
			closer.Close()
			return nil, fmt.Errorf("%w: %q", errUnsupportedEncoding, tok)
		}
	}

	return &readCloser{r, closer}, nil
}

type readCloser struct {
	io.Reader
	underlying io.Closer
}

func (r *readCloser) Close() error {
	return r.underlying.Close()
}

type zstdReadCloser struct {
	*zstd.Decoder
}

func (z zstdReadCloser) Read(p []byte) (int, error) {
	return z.Decoder.Read(p)
}

func (z zstdReadCloser) Close() error {
	z.Decoder.Close()
	return nil
}

// encodeBody compresses data with encoding, returning the encoded bytes
// and the Content-Encoding token to set on the request, if any.
func encodeBody(encoding Encoding, data []byte) (encoded []byte, token string, err error) {
	switch encoding {
	case Gzip:
		var buf writeBuffer
		zw := gzip.NewWriter(&buf)
		if _, err := zw.Write(data); err != nil {
			return nil, "", err
		}
		if err := zw.Close(); err != nil {
			return nil, "", err
		}
		return buf.Bytes(), "gzip", nil
	case Brotli:
		var buf writeBuffer
		bw := brotli.NewWriter(&buf)
		if _, err := bw.Write(data); err != nil {
			return nil, "", err
		}
		if err := bw.Close(); err != nil {
			return nil, "", err
		}
		return buf.Bytes(), "br", nil
	case Zstd:
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return nil, "", err
		}
		defer enc.Close()
		return enc.EncodeAll(data, nil), "zstd", nil
	default:
		return data, "", nil
	}
}

type writeBuffer struct {
	b []byte
}

func (w *writeBuffer) Write(p []byte) (int, error) {
	w.b = append(w.b, p...)
	return len(p), nil
}

func (w *writeBuffer) Bytes() []byte { return w.b }

// compressionCache remembers, per origin, the best encoding a server
// has been observed to honor, so Auto mode doesn't have to renegotiate
// on every request. An origin that answered 415 Unsupported Media Type
// to a compressed request body is pinned disabled and never promoted
// again, even if later responses from it happen to be compressed.
type compressionCache struct {
	mu       sync.RWMutex
	entries  map[string]Encoding
	disabled map[string]bool
}

func newCompressionCache() *compressionCache {
	return &compressionCache{
		entries:  make(map[string]Encoding),
		disabled: make(map[string]bool),
	}
}

func (c *compressionCache) resolve(origin string, preferred Encoding) Encoding {
	if preferred != Auto {
		return preferred
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.disabled[origin] {
		return Identity
	}
	if enc, ok := c.entries[origin]; ok {
		return enc
	}
	return Identity
}

// observe records the encoding a response from origin actually used,
// so future Auto-mode requests can request it directly instead of
// renegotiating via Accept-Encoding every time. It's a no-op for an
// origin pinned disabled by pin.
func (c *compressionCache) observe(origin string, resp *http.Response) {
	enc := encodingFromToken(resp.Header.Get("Content-Encoding"))
	if enc == Identity {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disabled[origin] {
		return
	}
	c.entries[origin] = enc
}

// pin permanently disables Auto-mode promotion for origin. It's called
// once a compressed request body has drawn a 415 from that origin,
// which means the server understands Content-Encoding on responses but
// rejects it on requests; further attempts would only cost a round
// trip each time.
func (c *compressionCache) pin(origin string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disabled[origin] = true
	delete(c.entries, origin)
}

// acceptEncodingHeader is the Accept-Encoding value advertised on
// outgoing requests so servers can choose among every codec this
// client understands, regardless of the negotiated request encoding.
const acceptEncodingHeader = "gzip, br, zstd, identity"
