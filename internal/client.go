package internal

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// HTTPClient performs a single outgoing HTTP roundtrip. *http.Client
// satisfies this interface; so does any wrapper injecting auth headers,
// retries or compression.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Depth is the value of a WebDAV Depth header.
type Depth int

const (
	DepthZero Depth = iota
	DepthOne
	DepthInfinity
)

func (d Depth) String() string {
	switch d {
	case DepthZero:
		return "0"
	case DepthOne:
		return "1"
	case DepthInfinity:
		return "infinity"
	default:
		return "0"
	}
}

// Limit is the DAV:limit/DAV:nresults value sent with a sync-collection
// REPORT to bound the number of results per page.
type Limit struct {
	NResults uint
}

// Client is the low-level WebDAV engine shared by domain packages. It
// owns XML request construction and DAV:multistatus decoding; domain
// packages layer typed operations (calendar-query, address-query, ...)
// on top of it.
type Client struct {
	hc       HTTPClient
	endpoint string
}

// NewClient returns a Client bound to endpoint, which is stored as given
// and used as the base for relative request paths. A nil hc means
// http.DefaultClient.
func NewClient(hc HTTPClient, endpoint string) (*Client, error) {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Client{hc: hc, endpoint: endpoint}, nil
}

// Endpoint returns the base URL requests are resolved against.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// HTTPClient returns the transport this Client issues requests
// through, so a sibling Client built against the same endpoint (e.g.
// one a domain package constructs alongside webdav.Client's own) can
// share it instead of each silently defaulting to a separate
// http.DefaultClient.
func (c *Client) HTTPClient() HTTPClient {
	return c.hc
}

// NewRequest builds an *http.Request against a path relative to the
// client's endpoint.
func (c *Client) NewRequest(method, path string, body io.Reader) (*http.Request, error) {
	url := c.endpoint
	if path != "" {
		url = resolveRef(c.endpoint, path)
	}
	return http.NewRequest(method, url, body)
}

// NewXMLRequest builds an *http.Request whose body is the XML encoding
// of v, with the appropriate Content-Type header set.
func (c *Client) NewXMLRequest(method, path string, v interface{}) (*http.Request, error) {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	if err := xml.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}

	req, err := c.NewRequest(method, path, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/xml; charset=utf-8")
	return req, nil
}

// Do sends req and returns the HTTP response, translating a non-2xx
// status into an *HTTPError.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode/100 != 2 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &HTTPError{Code: resp.StatusCode, Text: resp.Status, Err: errFromBody(body)}
	}
	return resp, nil
}

func errFromBody(body []byte) error {
	if len(body) == 0 {
		return nil
	}
	return fmt.Errorf("%s", body)
}

// DoMultiStatus sends req and decodes a DAV:multistatus response body.
func (c *Client) DoMultiStatus(req *http.Request) (*MultiStatus, error) {
	resp, err := c.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusMultiStatus {
		return nil, fmt.Errorf("webdav: expected 207 Multi-Status, got %s", resp.Status)
	}

	ms, err := ReadMultiStatus(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("webdav: failed to decode multistatus response: %w", err)
	}
	return ms, nil
}

// DoMultiStatusStream sends req and returns a lazy, single-pass reader
// over the DAV:multistatus response body: Next() decodes one
// DAV:response element at a time without buffering the rest of the
// document, so arbitrarily large PROPFIND/REPORT bodies can be
// processed with bounded memory. The caller must call Close on the
// returned reader to release the connection; Next returning io.EOF
// does not close it.
func (c *Client) DoMultiStatusStream(req *http.Request) (http.Header, *MultiStatusReader, error) {
	resp, err := c.Do(req)
	if err != nil {
		return nil, nil, err
	}

	if resp.StatusCode != http.StatusMultiStatus {
		defer resp.Body.Close()
		return nil, nil, fmt.Errorf("webdav: expected 207 Multi-Status, got %s", resp.Status)
	}

	msr, err := NewMultiStatusReader(resp.Body)
	if err != nil {
		resp.Body.Close()
		return nil, nil, err
	}
	return resp.Header, msr, nil
}

// PropFind performs a DAV:propfind request against path at the given
// depth and returns the resulting multistatus.
func (c *Client) PropFind(ctx context.Context, path string, depth Depth, propfind *PropFind) (*MultiStatus, error) {
	req, err := c.NewXMLRequest("PROPFIND", path, propfind)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Depth", depth.String())

	return c.DoMultiStatus(req.WithContext(ctx))
}

// PropFindFlat performs a DAV:propfind request with Depth: 0 and
// returns the single response describing path itself.
func (c *Client) PropFindFlat(ctx context.Context, path string, propfind *PropFind) (*Response, error) {
	ms, err := c.PropFind(ctx, path, DepthZero, propfind)
	if err != nil {
		return nil, err
	}

	if len(ms.Responses) != 1 {
		return nil, fmt.Errorf("webdav: PROPFIND with Depth: 0 returned %d responses, want 1", len(ms.Responses))
	}

	resp := &ms.Responses[0]
	if err := resp.Err(); err != nil {
		return nil, err
	}
	return resp, nil
}

// PropFindStream performs a DAV:propfind request exactly like PropFind,
// but returns a MultiStatusReader so the caller can process responses
// one at a time instead of waiting for (and buffering) the full body.
func (c *Client) PropFindStream(ctx context.Context, path string, depth Depth, propfind *PropFind) (http.Header, *MultiStatusReader, error) {
	req, err := c.NewXMLRequest("PROPFIND", path, propfind)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Depth", depth.String())

	return c.DoMultiStatusStream(req.WithContext(ctx))
}

// ReportDepth sends a REPORT request with body as its XML root element
// and the given depth, if non-nil.
func (c *Client) ReportDepth(ctx context.Context, path string, depth *Depth, body interface{}) (*MultiStatus, error) {
	req, err := c.NewXMLRequest("REPORT", path, body)
	if err != nil {
		return nil, err
	}
	if depth != nil {
		req.Header.Set("Depth", depth.String())
	}

	return c.DoMultiStatus(req.WithContext(ctx))
}

// ReportDepthStream sends a REPORT request exactly like ReportDepth, but
// returns a MultiStatusReader for incremental consumption of the
// response body.
func (c *Client) ReportDepthStream(ctx context.Context, path string, depth *Depth, body interface{}) (http.Header, *MultiStatusReader, error) {
	req, err := c.NewXMLRequest("REPORT", path, body)
	if err != nil {
		return nil, nil, err
	}
	if depth != nil {
		req.Header.Set("Depth", depth.String())
	}

	return c.DoMultiStatusStream(req.WithContext(ctx))
}

// syncCollectionQuery is the DAV:sync-collection REPORT body defined by
// RFC 6578.
type syncCollectionQuery struct {
	XMLName   xml.Name  `xml:"DAV: sync-collection"`
	SyncToken string    `xml:"DAV: sync-token"`
	Limit     *syncLimit `xml:"DAV: limit,omitempty"`
	Prop      *Prop     `xml:"DAV: prop"`
}

type syncLimit struct {
	XMLName  xml.Name `xml:"DAV: limit"`
	NResults uint     `xml:"DAV: nresults"`
}

// SyncCollection performs a sync-collection REPORT request, as defined
// in RFC 6578. An empty syncToken requests a full initial sync.
func (c *Client) SyncCollection(ctx context.Context, path, syncToken string, level Depth, limit *Limit, prop *Prop) (*MultiStatus, error) {
	query := syncCollectionQuery{
		SyncToken: syncToken,
		Prop:      prop,
	}
	if limit != nil {
		query.Limit = &syncLimit{NResults: limit.NResults}
	}

	req, err := c.NewXMLRequest("REPORT", path, &query)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Depth", level.String())

	return c.DoMultiStatus(req.WithContext(ctx))
}

func resolveRef(endpoint, path string) string {
	base, err := url.Parse(endpoint)
	if err != nil {
		return endpoint
	}
	ref, err := url.Parse(path)
	if err != nil {
		return endpoint
	}
	return base.ResolveReference(ref).String()
}
