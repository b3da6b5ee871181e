package carddav

import (
	"context"
	"encoding/xml"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	webdav "github.com/yinjun1991/caldav-client-go"
)

func newTestClient(ts *httptest.Server) (*Client, error) {
	return NewClient(webdav.HTTPClientWithBasicAuth(nil, "", ""), ts.URL)
}

func TestAddressBookQuerySendsCorrectBody(t *testing.T) {
	var sawCorrectRoot bool

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "REPORT" {
			t.Fatalf("expected REPORT, got %s", r.Method)
		}
		dec := xml.NewDecoder(r.Body)
		for {
			tok, err := dec.Token()
			if err == io.EOF {
				break
			}
			if err != nil {
				t.Fatalf("failed reading request body: %v", err)
			}
			if se, ok := tok.(xml.StartElement); ok {
				if se.Name.Space == "urn:ietf:params:xml:ns:carddav" && se.Name.Local == "addressbook-query" {
					sawCorrectRoot = true
				}
				break
			}
		}

		w.Header().Set("Content-Type", "application/xml; charset=utf-8")
		w.WriteHeader(http.StatusMultiStatus)
		io.WriteString(w, `<?xml version="1.0" encoding="utf-8"?>
<d:multistatus xmlns:d="DAV:" xmlns:card="urn:ietf:params:xml:ns:carddav">
  <d:response>
    <d:href>/card/contact1.vcf</d:href>
    <d:propstat>
      <d:prop>
        <d:getlastmodified>Mon, 02 Oct 2023 12:00:00 GMT</d:getlastmodified>
        <d:getetag>"etag123"</d:getetag>
        <d:getcontentlength>42</d:getcontentlength>
        <card:address-data>BEGIN:VCARD\nEND:VCARD</card:address-data>
      </d:prop>
      <d:status>HTTP/1.1 200 OK</d:status>
    </d:propstat>
  </d:response>
</d:multistatus>`)
	}))
	defer ts.Close()

	c, err := newTestClient(ts)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	ctx := context.Background()
	query := &AddressBookQuery{
		DataRequest: AddressDataRequest{AllProp: true},
		PropFilters: []PropFilter{{Name: "FN", TextMatch: &TextMatch{Text: "dav"}}},
	}
	objs, err := c.AddressBookQueryExec(ctx, "/card/", query)
	if err != nil {
		t.Fatalf("AddressBookQueryExec error: %v", err)
	}
	if !sawCorrectRoot {
		t.Fatalf("server did not observe addressbook-query root element")
	}
	if len(objs) != 1 {
		t.Fatalf("expected 1 object, got %d", len(objs))
	}
	if objs[0].ETag != "etag123" {
		t.Fatalf("unexpected etag: %q", objs[0].ETag)
	}
}

func TestAddressBookQueryEncodesFilter(t *testing.T) {
	var rawBody []byte

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var err error
		rawBody, err = io.ReadAll(r.Body)
		if err != nil {
			t.Fatalf("failed to read request body: %v", err)
		}
		if got := r.Header.Get("Depth"); got != "1" {
			t.Fatalf("expected Depth header 1, got %q", got)
		}

		w.Header().Set("Content-Type", "application/xml; charset=utf-8")
		w.WriteHeader(http.StatusMultiStatus)
		io.WriteString(w, `<?xml version="1.0" encoding="utf-8"?>
<d:multistatus xmlns:d="DAV:" xmlns:card="urn:ietf:params:xml:ns:carddav">
</d:multistatus>`)
	}))
	defer ts.Close()

	c, err := newTestClient(ts)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	query := &AddressBookQuery{
		DataRequest: AddressDataRequest{Props: []string{"FN", "EMAIL"}},
		PropFilters: []PropFilter{
			{Name: "FN", TextMatch: &TextMatch{Text: "Smith", MatchType: "contains"}},
		},
		AnyOf: true,
		Limit: 10,
	}
	if _, err := c.AddressBookQueryExec(context.Background(), "/card/", query); err != nil {
		t.Fatalf("AddressBookQueryExec error: %v", err)
	}

	var reqXML reportReq
	if err := xml.Unmarshal(rawBody, &reqXML); err != nil {
		t.Fatalf("unmarshal request body: %v", err)
	}
	if reqXML.Query == nil {
		t.Fatal("expected addressbook-query root in request")
	}
	if reqXML.Query.Filter.Test != "anyof" {
		t.Fatalf("expected test=anyof, got %q", reqXML.Query.Filter.Test)
	}
	if len(reqXML.Query.Filter.PropFilters) != 1 {
		t.Fatalf("expected 1 prop-filter, got %d", len(reqXML.Query.Filter.PropFilters))
	}
	pf := reqXML.Query.Filter.PropFilters[0]
	if pf.Name != "FN" {
		t.Fatalf("unexpected prop-filter name: %q", pf.Name)
	}
	if pf.TextMatch == nil || pf.TextMatch.Text != "Smith" {
		t.Fatalf("unexpected text-match: %+v", pf.TextMatch)
	}
	if reqXML.Query.Limit == nil || reqXML.Query.Limit.NResults != 10 {
		t.Fatalf("expected limit 10, got %+v", reqXML.Query.Limit)
	}

	rawCardData := reqXML.Query.Prop.Get(AddressDataName)
	if rawCardData == nil {
		t.Fatal("expected address-data request")
	}
	var dataReq addressDataReq
	if err := rawCardData.Decode(&dataReq); err != nil {
		t.Fatalf("decode address-data request: %v", err)
	}
	if len(dataReq.Prop) != 2 {
		t.Fatalf("expected 2 requested props, got %d", len(dataReq.Prop))
	}
}

func TestPutAddressObjectConditionalHeaders(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Fatalf("expected PUT, got %s", r.Method)
		}
		ct := r.Header.Get("Content-Type")
		if ct != MIMEType {
			t.Fatalf("unexpected content-type: %q", ct)
		}
		ifMatch := r.Header.Get("If-Match")
		if ifMatch != "\"abc123\"" {
			t.Fatalf("unexpected If-Match: %q", ifMatch)
		}
		w.Header().Set("ETag", "\"newtag\"")
		w.Header().Set("Content-Length", "0")
		w.WriteHeader(http.StatusCreated)
	}))
	defer ts.Close()

	c, err := newTestClient(ts)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	ctx := context.Background()
	body := strings.NewReader("BEGIN:VCARD\nEND:VCARD")
	ao, err := c.PutAddressObject(ctx, "/card/test.vcf", body, &PutAddressObjectOptions{IfMatch: "abc123"})
	if err != nil {
		t.Fatalf("PutAddressObject error: %v", err)
	}
	if ao.ETag != "newtag" {
		t.Fatalf("expected ETag newtag, got %q", ao.ETag)
	}
}

func TestDeleteAddressObjectErrorHandling(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			t.Fatalf("expected DELETE, got %s", r.Method)
		}
		switch r.URL.Path {
		case "/card/missing.vcf":
			w.WriteHeader(http.StatusNotFound)
		default:
			if r.Header.Get("If-Match") == "\"wrong\"" {
				w.WriteHeader(http.StatusPreconditionFailed)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		}
	}))
	defer ts.Close()

	c, err := newTestClient(ts)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	ctx := context.Background()

	err = c.DeleteAddressObject(ctx, "/card/a.vcf", &DeleteAddressObjectOptions{IfMatch: "wrong"})
	if err == nil || !strings.Contains(err.Error(), "precondition failed") {
		t.Fatalf("expected precondition failed error, got %v", err)
	}

	if err = c.DeleteAddressObject(ctx, "/card/a.vcf", &DeleteAddressObjectOptions{IfMatch: "right"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	err = c.DeleteAddressObject(ctx, "/card/missing.vcf", nil)
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("expected not found error, got %v", err)
	}
}

func TestSyncAddressBookDecoding(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "REPORT" {
			t.Fatalf("expected REPORT, got %s", r.Method)
		}
		w.Header().Set("Content-Type", "application/xml; charset=utf-8")
		w.WriteHeader(http.StatusMultiStatus)
		io.WriteString(w, `<?xml version="1.0" encoding="utf-8"?>
<d:multistatus xmlns:d="DAV:" xmlns:card="urn:ietf:params:xml:ns:carddav">
  <d:sync-token>token-123</d:sync-token>
  <d:response>
    <d:href>/card/</d:href>
    <d:propstat>
      <d:prop>
        <d:resourcetype><d:collection/><card:addressbook/></d:resourcetype>
        <d:getetag>"cardetag"</d:getetag>
      </d:prop>
      <d:status>HTTP/1.1 200 OK</d:status>
    </d:propstat>
  </d:response>
  <d:response>
    <d:href>/card/contact1.vcf</d:href>
    <d:propstat>
      <d:prop>
        <d:getlastmodified>Mon, 02 Oct 2023 12:00:00 GMT</d:getlastmodified>
        <d:getetag>"etag123"</d:getetag>
        <d:getcontentlength>42</d:getcontentlength>
        <card:address-data>BEGIN:VCARD\nEND:VCARD</card:address-data>
      </d:prop>
      <d:status>HTTP/1.1 200 OK</d:status>
    </d:propstat>
  </d:response>
</d:multistatus>`)
	}))
	defer ts.Close()

	c, err := newTestClient(ts)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	ctx := context.Background()
	resp, err := c.SyncAddressBook(ctx, "/card/", &SyncQuery{SyncToken: ""})
	if err != nil {
		t.Fatalf("SyncAddressBook error: %v", err)
	}
	if resp.SyncToken != "token-123" {
		t.Fatalf("unexpected sync token: %q", resp.SyncToken)
	}
	if resp.AddressBook == nil {
		t.Fatalf("expected addressbook details for collection response")
	}
	if len(resp.Updated) != 1 {
		t.Fatalf("expected 1 updated object, got %d", len(resp.Updated))
	}
	if resp.Updated[0].ETag != "etag123" {
		t.Fatalf("unexpected updated object etag: %q", resp.Updated[0].ETag)
	}
}
