package webdav

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

func TestPreconditionRejectsBothFields(t *testing.T) {
	p := Precondition{IfMatch: "abc", IfNoneMatchAny: true}
	req, _ := http.NewRequest(http.MethodPut, "http://example.com/", nil)
	if err := p.apply(req); err == nil {
		t.Fatal("expected error when both IfMatch and IfNoneMatchAny are set")
	}
}

func TestPreconditionIfMatchQuotesETag(t *testing.T) {
	p := Precondition{IfMatch: "abc123"}
	req, _ := http.NewRequest(http.MethodPut, "http://example.com/", nil)
	if err := p.apply(req); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if got := req.Header.Get("If-Match"); got != `"abc123"` {
		t.Fatalf("If-Match = %q, want %q", got, `"abc123"`)
	}
}

func TestPreconditionIfNoneMatchAny(t *testing.T) {
	p := Precondition{IfNoneMatchAny: true}
	req, _ := http.NewRequest(http.MethodPut, "http://example.com/", nil)
	if err := p.apply(req); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if got := req.Header.Get("If-None-Match"); got != "*" {
		t.Fatalf("If-None-Match = %q, want %q", got, "*")
	}
}

func TestCapabilitiesParsesDAVAndAllowHeaders(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodOptions {
			w.WriteHeader(http.StatusNotImplemented)
			return
		}
		w.Header().Set("DAV", "1, 3, calendar-access")
		w.Header().Set("Allow", "GET, PUT, PROPFIND, REPORT")
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	client, err := NewClient(nil, ts.URL)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	caps, err := client.Capabilities(context.Background(), "/")
	if err != nil {
		t.Fatalf("Capabilities: %v", err)
	}
	if !caps.Supports("calendar-access") {
		t.Fatalf("expected calendar-access class, got %v", caps.Classes)
	}
	if !caps.Supports("CALENDAR-ACCESS") {
		t.Fatal("Supports should be case-insensitive")
	}
	if len(caps.Allow) != 4 {
		t.Fatalf("expected 4 allowed methods, got %v", caps.Allow)
	}
}

func TestCapabilitiesAreCachedPerOrigin(t *testing.T) {
	var calls int
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("DAV", "1")
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	client, err := NewClient(nil, ts.URL)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	ctx := context.Background()
	if _, err := client.Capabilities(ctx, "/"); err != nil {
		t.Fatalf("Capabilities: %v", err)
	}
	if _, err := client.Capabilities(ctx, "/"); err != nil {
		t.Fatalf("Capabilities: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected OPTIONS to be issued once, got %d calls", calls)
	}
}

func TestPutSendsCompressedBodyWhenForced(t *testing.T) {
	var gotEncoding string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotEncoding = r.Header.Get("Content-Encoding")
		w.Header().Set("ETag", `"v1"`)
		w.WriteHeader(http.StatusCreated)
	}))
	defer ts.Close()

	client, err := NewClient(nil, ts.URL)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	client.SetRequestEncoding(Gzip)

	etag, err := client.Put(context.Background(), "/r1", strings.NewReader("hello world"), "text/plain", nil)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if etag != "v1" {
		t.Fatalf("ETag = %q, want %q", etag, "v1")
	}
	if gotEncoding != "gzip" {
		t.Fatalf("Content-Encoding = %q, want gzip", gotEncoding)
	}
}

const multistatusFixture = `<?xml version="1.0" encoding="utf-8"?>
<D:multistatus xmlns:D="DAV:">
  <D:response>
    <D:href>%s</D:href>
    <D:propstat>
      <D:prop><D:getetag>"e1"</D:getetag></D:prop>
      <D:status>HTTP/1.1 200 OK</D:status>
    </D:propstat>
  </D:response>
</D:multistatus>`

func TestPropFindStreamYieldsSameItemsAsPropFind(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		w.WriteHeader(http.StatusMultiStatus)
		fmt.Fprintf(w, multistatusFixture, r.URL.Path)
	}))
	defer ts.Close()

	client, err := NewClient(nil, ts.URL)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	ctx := context.Background()

	buffered, err := client.PropFind(ctx, "/cal/", DepthOne, nil)
	if err != nil {
		t.Fatalf("PropFind: %v", err)
	}

	_, msr, err := client.PropFindStream(ctx, "/cal/", DepthOne, nil)
	if err != nil {
		t.Fatalf("PropFindStream: %v", err)
	}
	defer msr.Close()

	var streamedHrefs []string
	for {
		item, err := msr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		streamedHrefs = append(streamedHrefs, item.Href.Path)
	}

	if len(buffered.Responses) != len(streamedHrefs) {
		t.Fatalf("buffered has %d responses, streamed has %d", len(buffered.Responses), len(streamedHrefs))
	}
	for i, href := range streamedHrefs {
		if buffered.Responses[i].Href.Path != href {
			t.Fatalf("response %d: buffered href %q != streamed href %q", i, buffered.Responses[i].Href.Path, href)
		}
	}
}

func TestPropFindManyPreservesOrderAndBoundsConcurrency(t *testing.T) {
	const limit = 3
	var (
		mu       sync.Mutex
		inFlight int
		maxSeen  int
	)

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		inFlight++
		if inFlight > maxSeen {
			maxSeen = inFlight
		}
		mu.Unlock()

		var x int64
		for i := 0; i < 500_000; i++ {
			x++
		}
		_ = x

		mu.Lock()
		inFlight--
		mu.Unlock()

		w.Header().Set("Content-Type", "application/xml")
		w.WriteHeader(http.StatusMultiStatus)
		fmt.Fprintf(w, multistatusFixture, r.URL.Path)
	}))
	defer ts.Close()

	client, err := NewClient(nil, ts.URL)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	const n = 12
	paths := make([]string, n)
	for i := range paths {
		paths[i] = fmt.Sprintf("/cal-%d/", i)
	}

	results := client.PropFindMany(context.Background(), paths, DepthZero, nil, limit)
	if len(results) != n {
		t.Fatalf("got %d results, want %d", len(results), n)
	}
	for i, res := range results {
		if res.Err != nil {
			t.Fatalf("result %d: unexpected error: %v", i, res.Err)
		}
		if len(res.MultiStatus.Responses) != 1 || res.MultiStatus.Responses[0].Href.Path != paths[i] {
			t.Fatalf("result %d: href mismatch, got %+v, want %s", i, res.MultiStatus.Responses, paths[i])
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if maxSeen > limit {
		t.Fatalf("observed %d concurrent requests, want at most %d", maxSeen, limit)
	}
}

func TestAsErrorClassifiesPreconditionFailed(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPreconditionFailed)
	}))
	defer ts.Close()

	client, err := NewClient(nil, ts.URL)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	_, err = client.Put(context.Background(), "/r1", strings.NewReader("x"), "text/plain", &Precondition{IfNoneMatchAny: true})
	if err == nil {
		t.Fatal("expected error")
	}
	classified, ok := AsError(err)
	if !ok {
		t.Fatalf("expected a classifiable *Error, got %v", err)
	}
	if classified.Code != ErrPreconditionFailed {
		t.Fatalf("Code = %v, want ErrPreconditionFailed", classified.Code)
	}
}
