// Package webdav provides a generic WebDAV client (RFC 4918), shared by
// the caldav and carddav packages as well as usable standalone.
package webdav

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/yinjun1991/caldav-client-go/internal"
)

// HTTPClient performs a single outgoing HTTP roundtrip. *http.Client
// satisfies this interface, as does any wrapper adding auth, retries or
// request/response compression.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

type basicAuthHTTPClient struct {
	hc       HTTPClient
	username string
	password string
}

func (c *basicAuthHTTPClient) Do(req *http.Request) (*http.Response, error) {
	req.SetBasicAuth(c.username, c.password)
	return c.hc.Do(req)
}

// HTTPClientWithBasicAuth wraps c (or http.DefaultClient, if nil) to
// attach HTTP Basic authentication to every request.
func HTTPClientWithBasicAuth(c HTTPClient, username, password string) HTTPClient {
	if c == nil {
		c = http.DefaultClient
	}
	return &basicAuthHTTPClient{c, username, password}
}

// Depth is the value of a WebDAV Depth header.
type Depth = internal.Depth

const (
	DepthZero     = internal.DepthZero
	DepthOne      = internal.DepthOne
	DepthInfinity = internal.DepthInfinity
)

// Re-exported wire and streaming types, shared by every domain package
// and available to standalone WebDAV consumers. internal is an
// unimportable package path by Go convention, so these aliases are the
// public surface for C3's streaming multistatus parser.
type (
	PropFind          = internal.PropFind
	Prop              = internal.Prop
	MultiStatus       = internal.MultiStatus
	MultiStatusItem   = internal.Response
	MultiStatusReader = internal.MultiStatusReader
	Limit             = internal.Limit
)

// PropFind performs a DAV:propfind request against path at the given
// depth and returns the resulting multistatus.
func (c *Client) PropFind(ctx context.Context, path string, depth Depth, body *PropFind) (*MultiStatus, error) {
	return c.ic.PropFind(ctx, path, depth, body)
}

// PropFindStream performs a DAV:propfind request exactly like PropFind,
// but returns a lazy MultiStatusReader instead of a fully buffered
// result, so arbitrarily large responses are processed without holding
// the whole body in memory.
func (c *Client) PropFindStream(ctx context.Context, path string, depth Depth, body *PropFind) (http.Header, *MultiStatusReader, error) {
	return c.ic.PropFindStream(ctx, path, depth, body)
}

// Report sends a REPORT request with body as its XML root element and
// the given depth, if non-nil.
func (c *Client) Report(ctx context.Context, path string, depth *Depth, body interface{}) (*MultiStatus, error) {
	return c.ic.ReportDepth(ctx, path, depth, body)
}

// ReportStream sends a REPORT request exactly like Report, but returns a
// lazy MultiStatusReader for incremental consumption of the response.
func (c *Client) ReportStream(ctx context.Context, path string, depth *Depth, body interface{}) (http.Header, *MultiStatusReader, error) {
	return c.ic.ReportDepthStream(ctx, path, depth, body)
}

// Precondition expresses an optimistic-concurrency requirement for a
// write. Exactly one of the two fields may be set: IfMatch pins the
// write to a known ETag, IfNoneMatchAny requires the resource to not
// exist yet. Setting both is a programming error the helpers reject.
type Precondition struct {
	IfMatch        string
	IfNoneMatchAny bool
}

func (p Precondition) apply(req *http.Request) error {
	switch {
	case p.IfMatch != "" && p.IfNoneMatchAny:
		return fmt.Errorf("webdav: precondition cannot set both IfMatch and IfNoneMatchAny")
	case p.IfMatch != "":
		req.Header.Set("If-Match", quoteETag(p.IfMatch))
	case p.IfNoneMatchAny:
		req.Header.Set("If-None-Match", "*")
	}
	return nil
}

func quoteETag(etag string) string {
	if strings.HasPrefix(etag, `"`) {
		return etag
	}
	return strconv.Quote(etag)
}

// Client is the generic WebDAV engine embedded by domain-specific
// clients (caldav.Client, carddav.Client). It exposes PROPFIND and
// REPORT, buffered and streaming, alongside the other operations RFC
// 4918 defines (MKCOL, PUT, GET, DELETE, COPY, MOVE, OPTIONS); domain
// packages also send their own PROPFIND/REPORT requests through a
// separate internal.Client.
type Client struct {
	ic     *internal.Client
	caps   *capabilityCache
	comp   *compressionCache
	reqEnc Encoding
}

// NewClient builds a Client whose requests are resolved against
// endpoint and issued through c. If c is nil, a default client is
// built on the same transport NewTransport returns, giving the Client
// HTTP/2 and transparent response decompression out of the box; that
// transport is built around this Client's own compression negotiation
// cache, so Auto mode actually sees what the transport saw. Request
// bodies are sent uncompressed by default; use SetRequestEncoding to
// opt into Auto negotiation or a forced codec.
func NewClient(c HTTPClient, endpoint string) (*Client, error) {
	comp := newCompressionCache()
	if c == nil {
		transport, err := newTransport(nil, comp)
		if err != nil {
			return nil, err
		}
		c = &http.Client{Transport: transport}
	}
	ic, err := internal.NewClient(c, endpoint)
	if err != nil {
		return nil, err
	}
	return &Client{ic: ic, caps: newCapabilityCache(), comp: comp, reqEnc: Identity}, nil
}

// HTTPClient returns the transport this Client issues requests
// through — the constructor's argument, or the default
// transport-backed client NewClient builds when that argument was
// nil. Domain packages (caldav, carddav) that construct their own
// parallel internal.Client alongside an embedded Client use this so
// PROPFIND/REPORT traffic shares the same pooled, compression-aware
// transport as Put/Get/Delete.
func (c *Client) HTTPClient() HTTPClient {
	return c.ic.HTTPClient()
}

// SetRequestEncoding sets the Content-Encoding this client applies to
// outgoing Put bodies. Auto defers to whatever codec previous responses
// from the target origin have been observed to support.
func (c *Client) SetRequestEncoding(enc Encoding) {
	c.reqEnc = enc
}

// Mkcol creates a collection at path.
func (c *Client) Mkcol(ctx context.Context, path string) error {
	req, err := c.ic.NewRequest("MKCOL", path, nil)
	if err != nil {
		return err
	}
	resp, err := c.ic.Do(req.WithContext(ctx))
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// Put uploads body to path, honoring precond if non-nil, and returns
// the resulting ETag, if the server sent one. The body is compressed
// per the client's request-encoding setting (see SetRequestEncoding)
// before it's sent.
func (c *Client) Put(ctx context.Context, path string, body io.Reader, contentType string, precond *Precondition) (etag string, err error) {
	etag, _, err = c.PutDetailed(ctx, path, body, contentType, precond)
	return etag, err
}

// PutDetailed is Put, but also returns the response header set, so
// callers that need more than the ETag (Location, Content-Length,
// Last-Modified) don't have to issue a second request.
func (c *Client) PutDetailed(ctx context.Context, path string, body io.Reader, contentType string, precond *Precondition) (etag string, header http.Header, err error) {
	raw, err := io.ReadAll(body)
	if err != nil {
		return "", nil, err
	}

	req, err := c.ic.NewRequest(http.MethodPut, path, nil)
	if err != nil {
		return "", nil, err
	}

	// Resolved against the request's actual host, not the client's
	// configured endpoint, so this lines up with the key the shared
	// transport's decompressingTransport observes responses under.
	enc := c.comp.resolve(req.URL.Host, c.reqEnc)
	encoded, token, err := encodeBody(enc, raw)
	if err != nil {
		return "", nil, err
	}
	req.Body = io.NopCloser(bytes.NewReader(encoded))
	req.ContentLength = int64(len(encoded))
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(encoded)), nil
	}

	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Content-Encoding", token)
	}
	if precond != nil {
		if err := precond.apply(req); err != nil {
			return "", nil, err
		}
	}

	resp, err := c.ic.Do(req.WithContext(ctx))
	if err != nil {
		return "", nil, err
	}
	defer resp.Body.Close()

	return ParseETag(resp.Header.Get("ETag")), resp.Header, nil
}

// ParseETag strips the surrounding quotes from a raw ETag header value
// (weak or strong; a weak tag's W/ prefix is dropped as well), returning
// raw unchanged if it isn't quoted. An empty raw yields an empty string.
func ParseETag(raw string) string {
	if raw == "" {
		return ""
	}
	if unquoted, err := strconv.Unquote(strings.TrimPrefix(raw, "W/")); err == nil {
		return unquoted
	}
	return raw
}

// Get retrieves path's body.
func (c *Client) Get(ctx context.Context, path string) (*http.Response, error) {
	req, err := c.ic.NewRequest(http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	return c.ic.Do(req.WithContext(ctx))
}

// Delete removes path, honoring precond if non-nil.
func (c *Client) Delete(ctx context.Context, path string, precond *Precondition) error {
	req, err := c.ic.NewRequest(http.MethodDelete, path, nil)
	if err != nil {
		return err
	}
	if precond != nil {
		if err := precond.apply(req); err != nil {
			return err
		}
	}

	resp, err := c.ic.Do(req.WithContext(ctx))
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// Copy duplicates the resource at src to dst.
func (c *Client) Copy(ctx context.Context, src, dst string, overwrite bool) error {
	return c.copyMove(ctx, "COPY", src, dst, overwrite)
}

// Move relocates the resource at src to dst.
func (c *Client) Move(ctx context.Context, src, dst string, overwrite bool) error {
	return c.copyMove(ctx, "MOVE", src, dst, overwrite)
}

func (c *Client) copyMove(ctx context.Context, method, src, dst string, overwrite bool) error {
	req, err := c.ic.NewRequest(method, src, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Destination", dst)
	if !overwrite {
		req.Header.Set("Overwrite", "F")
	}

	resp, err := c.ic.Do(req.WithContext(ctx))
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// Capabilities probes path with an OPTIONS request and returns the set
// of DAV compliance classes the server advertises. The first result is
// cached under the client's endpoint and returned for every later call,
// whatever path it names.
func (c *Client) Capabilities(ctx context.Context, path string) (Capabilities, error) {
	if caps, ok := c.caps.lookup(c.ic.Endpoint()); ok {
		return caps, nil
	}

	req, err := c.ic.NewRequest(http.MethodOptions, path, nil)
	if err != nil {
		return Capabilities{}, err
	}
	resp, err := c.ic.Do(req.WithContext(ctx))
	if err != nil {
		return Capabilities{}, err
	}
	defer resp.Body.Close()

	caps := parseCapabilities(resp.Header)
	c.caps.store(c.ic.Endpoint(), caps)
	return caps, nil
}
