package internal

import (
	"io"
	"strings"
	"testing"
)

const sampleMultiStatus = `<?xml version="1.0" encoding="utf-8"?>
<D:multistatus xmlns:D="DAV:">
  <D:response>
    <D:href>/cal/alice/work/a.ics</D:href>
    <D:propstat>
      <D:prop><D:getetag>"e1"</D:getetag></D:prop>
      <D:status>HTTP/1.1 200 OK</D:status>
    </D:propstat>
  </D:response>
  <D:response>
    <D:href>/cal/alice/work/b.ics</D:href>
    <D:propstat>
      <D:prop><D:getetag>"e2"</D:getetag></D:prop>
      <D:status>HTTP/1.1 200 OK</D:status>
    </D:propstat>
  </D:response>
  <D:sync-token>http://example.com/sync/1</D:sync-token>
</D:multistatus>`

func TestMultiStatusReaderStreamsOneResponseAtATime(t *testing.T) {
	msr, err := NewMultiStatusReader(strings.NewReader(sampleMultiStatus))
	if err != nil {
		t.Fatalf("NewMultiStatusReader: %v", err)
	}

	var hrefs []string
	for {
		resp, err := msr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		hrefs = append(hrefs, resp.Href.Path)
	}

	if want := []string{"/cal/alice/work/a.ics", "/cal/alice/work/b.ics"}; !equalStrings(hrefs, want) {
		t.Fatalf("hrefs = %v, want %v", hrefs, want)
	}
	if msr.SyncToken() != "http://example.com/sync/1" {
		t.Fatalf("SyncToken = %q, want the trailing sync-token", msr.SyncToken())
	}
}

func TestReadMultiStatusMatchesStreamingForm(t *testing.T) {
	streamed, err := NewMultiStatusReader(strings.NewReader(sampleMultiStatus))
	if err != nil {
		t.Fatalf("NewMultiStatusReader: %v", err)
	}
	var streamedHrefs []string
	for {
		resp, err := streamed.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		streamedHrefs = append(streamedHrefs, resp.Href.Path)
	}

	buffered, err := ReadMultiStatus(strings.NewReader(sampleMultiStatus))
	if err != nil {
		t.Fatalf("ReadMultiStatus: %v", err)
	}
	var bufferedHrefs []string
	for _, resp := range buffered.Responses {
		bufferedHrefs = append(bufferedHrefs, resp.Href.Path)
	}

	if !equalStrings(streamedHrefs, bufferedHrefs) {
		t.Fatalf("streaming form %v disagrees with buffered form %v", streamedHrefs, bufferedHrefs)
	}
	if buffered.SyncToken != streamed.SyncToken() {
		t.Fatalf("buffered SyncToken %q disagrees with streamed %q", buffered.SyncToken, streamed.SyncToken())
	}
}

func TestMultiStatusReaderRejectsWrongRoot(t *testing.T) {
	_, err := NewMultiStatusReader(strings.NewReader(`<D:propfind xmlns:D="DAV:"/>`))
	if err == nil {
		t.Fatal("expected an error for a non-multistatus root element")
	}
	perr, ok := err.(*ParseError)
	if !ok || perr.Kind != UnexpectedRoot {
		t.Fatalf("err = %v, want *ParseError{Kind: UnexpectedRoot}", err)
	}
}

func TestMultiStatusReaderDetectsTruncatedBody(t *testing.T) {
	msr, err := NewMultiStatusReader(strings.NewReader(`<D:multistatus xmlns:D="DAV:"><D:response><D:href>/a</D:href>`))
	if err != nil {
		t.Fatalf("NewMultiStatusReader: %v", err)
	}

	for {
		_, err := msr.Next()
		if err == nil {
			continue
		}
		if err == io.EOF {
			t.Fatal("expected a truncation error, got clean EOF")
		}
		perr, ok := err.(*ParseError)
		if !ok || perr.Kind != TruncatedBody {
			t.Fatalf("err = %v, want *ParseError{Kind: TruncatedBody}", err)
		}
		return
	}
}

func TestMultiStatusReaderRejectsMalformedXML(t *testing.T) {
	msr, err := NewMultiStatusReader(strings.NewReader(`<D:multistatus xmlns:D="DAV:"><D:response`))
	if err == nil {
		// Only the root element is checked up front; the rest is read by Next.
		_, err = msr.Next()
	}
	if err == nil {
		t.Fatal("expected an error for malformed XML")
	}
}

func TestMultiStatusReaderToleratesBOMAndWhitespace(t *testing.T) {
	body := "\xEF\xBB\xBF   \n" + sampleMultiStatus
	msr, err := NewMultiStatusReader(strings.NewReader(body))
	if err != nil {
		t.Fatalf("NewMultiStatusReader: %v", err)
	}
	resp, err := msr.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if resp.Href.Path != "/cal/alice/work/a.ics" {
		t.Fatalf("Href = %q, want the first response's href", resp.Href.Path)
	}
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
