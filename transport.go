package webdav

import (
	"net/http"

	"golang.org/x/net/http2"
)

// NewTransport wraps base (http.DefaultTransport if nil) with HTTP/2
// support over TLS and transparent response decompression for every
// codec this package understands (gzip, br, zstd), mirroring what
// net/http's built-in client already does for gzip alone.
//
// The returned RoundTripper is safe to share across many Client values
// connecting to many origins: connection pooling and HTTP/2 multiplexing
// happen per-origin inside the underlying *http.Transport. Its
// compression negotiation cache is private to this call; use NewClient
// (which calls newTransport directly) to share one cache between the
// transport's response observations and a Client's request encoding
// decisions.
func NewTransport(base *http.Transport) (http.RoundTripper, error) {
	return newTransport(base, newCompressionCache())
}

func newTransport(base *http.Transport, cache *compressionCache) (http.RoundTripper, error) {
	if base == nil {
		base = http.DefaultTransport.(*http.Transport).Clone()
	}
	if err := http2.ConfigureTransport(base); err != nil {
		return nil, err
	}
	return &decompressingTransport{base: base, cache: cache}, nil
}

type decompressingTransport struct {
	base  http.RoundTripper
	cache *compressionCache
}

func (t *decompressingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("Accept-Encoding") == "" {
		req.Header.Set("Accept-Encoding", acceptEncodingHeader)
	}
	sentEncoded := req.Header.Get("Content-Encoding") != ""

	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}

	if sentEncoded && resp.StatusCode == http.StatusUnsupportedMediaType {
		// The server rejected a compressed request body outright; pin
		// this origin back to Identity so Auto mode stops retrying it.
		t.cache.pin(req.URL.Host)
	} else {
		t.cache.observe(req.URL.Host, resp)
	}

	encoding := resp.Header.Get("Content-Encoding")
	if encoding == "" || encoding == "identity" {
		return resp, nil
	}

	body, err := decodeBody(encoding, resp.Body)
	if err != nil {
		resp.Body.Close()
		return nil, err
	}
	resp.Body = body
	resp.Header.Del("Content-Encoding")
	resp.Header.Del("Content-Length")
	resp.ContentLength = -1
	return resp, nil
}
