package internal

import (
	"encoding/xml"
	"fmt"
	"io"
)

var multistatusName = xml.Name{Space: "DAV:", Local: "multistatus"}
var responseName = xml.Name{Space: "DAV:", Local: "response"}
var syncTokenElemName = xml.Name{Space: "DAV:", Local: "sync-token"}
var responseDescName = xml.Name{Space: "DAV:", Local: "responsedescription"}

// ParseError classifies a failure to decode a DAV:multistatus body, so
// callers can branch on the failure mode instead of matching error
// strings.
type ParseError struct {
	Kind ParseErrorKind
	Err  error
}

// ParseErrorKind enumerates the ways a multistatus body can fail to
// parse, mirroring the parser's documented failure modes.
type ParseErrorKind int

const (
	// MalformedXML indicates the body was not well-formed XML.
	MalformedXML ParseErrorKind = iota
	// UnexpectedRoot indicates the document's root element was not
	// DAV:multistatus.
	UnexpectedRoot
	// TruncatedBody indicates the stream ended before the root element
	// was closed.
	TruncatedBody
	// InvalidStatus names a DAV:status element without a recognizable
	// "HTTP/1.1 NNN ..." status line. MultiStatusReader does not return
	// this kind: such a status fails while its enclosing element is
	// decoded and is reported as MalformedXML.
	InvalidStatus
)

func (e *ParseError) Error() string {
	switch e.Kind {
	case UnexpectedRoot:
		return fmt.Sprintf("webdav: unexpected multistatus root element: %v", e.Err)
	case TruncatedBody:
		return fmt.Sprintf("webdav: truncated multistatus body: %v", e.Err)
	case InvalidStatus:
		return fmt.Sprintf("webdav: invalid status line in multistatus body: %v", e.Err)
	default:
		return fmt.Sprintf("webdav: malformed multistatus XML: %v", e.Err)
	}
}

func (e *ParseError) Unwrap() error { return e.Err }

// MultiStatusReader is a lazy, single-pass pull parser over a
// DAV:multistatus body. It decodes one DAV:response element per call to
// Next, without buffering the rest of the document, so an arbitrarily
// large PROPFIND/REPORT body can be consumed with bounded memory.
//
// Next must be called until it returns io.EOF (or an error) before
// SyncToken reflects the value the server sent, since DAV:sync-token
// commonly trails the response elements in document order.
type MultiStatusReader struct {
	dec        *xml.Decoder
	rootEnd    bool
	started    bool
	syncToken  string
	respDesc   string
	underlying io.Closer
}

// NewMultiStatusReader begins parsing r as a DAV:multistatus document.
// It validates the root element eagerly, so a caller that only wants to
// confirm the body is a multistatus response without consuming any
// items can do so by constructing the reader and checking the error.
func NewMultiStatusReader(r io.Reader) (*MultiStatusReader, error) {
	msr := &MultiStatusReader{dec: xml.NewDecoder(r)}
	if c, ok := r.(io.Closer); ok {
		msr.underlying = c
	}
	if err := msr.readRoot(); err != nil {
		return nil, err
	}
	return msr, nil
}

func (r *MultiStatusReader) readRoot() error {
	for {
		tok, err := r.dec.Token()
		if err == io.EOF {
			return &ParseError{Kind: TruncatedBody, Err: fmt.Errorf("empty body")}
		}
		if err != nil {
			return &ParseError{Kind: MalformedXML, Err: err}
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		if start.Name != multistatusName {
			return &ParseError{Kind: UnexpectedRoot, Err: fmt.Errorf("got %s %s", start.Name.Space, start.Name.Local)}
		}
		return nil
	}
}

// Next decodes and returns the next DAV:response element, or returns
// io.EOF once the root element has been closed. Unrecognized child
// elements of DAV:multistatus (DAV:sync-token, DAV:responsedescription,
// or anything else) are consumed without being surfaced as items.
func (r *MultiStatusReader) Next() (*Response, error) {
	if r.rootEnd {
		return nil, io.EOF
	}

	// encoding/xml reports input that ends inside an open element as a
	// SyntaxError "unexpected EOF" rather than as io.EOF.
	fail := func(err error) error {
		if synErr, ok := err.(*xml.SyntaxError); err == io.EOF || (ok && synErr.Msg == "unexpected EOF") {
			return &ParseError{Kind: TruncatedBody, Err: fmt.Errorf("root element never closed: %v", err)}
		}
		return &ParseError{Kind: MalformedXML, Err: err}
	}

	for {
		tok, err := r.dec.Token()
		if err != nil {
			return nil, fail(err)
		}

		switch t := tok.(type) {
		case xml.EndElement:
			if t.Name == multistatusName {
				r.rootEnd = true
				return nil, io.EOF
			}
		case xml.StartElement:
			switch t.Name {
			case responseName:
				var resp Response
				if err := r.dec.DecodeElement(&resp, &t); err != nil {
					return nil, fail(err)
				}
				return &resp, nil
			case syncTokenElemName:
				var tok string
				if err := r.dec.DecodeElement(&tok, &t); err != nil {
					return nil, fail(err)
				}
				r.syncToken = tok
			case responseDescName:
				var desc string
				if err := r.dec.DecodeElement(&desc, &t); err != nil {
					return nil, fail(err)
				}
				r.respDesc = desc
			default:
				if err := r.dec.Skip(); err != nil {
					return nil, fail(err)
				}
			}
		}
	}
}

// SyncToken returns the DAV:sync-token carried by the document, valid
// once Next has returned io.EOF. It is empty if the server didn't send
// one (e.g. a plain PROPFIND/REPORT rather than a sync-collection).
func (r *MultiStatusReader) SyncToken() string { return r.syncToken }

// ResponseDescription returns the document's DAV:responsedescription,
// valid once Next has returned io.EOF.
func (r *MultiStatusReader) ResponseDescription() string { return r.respDesc }

// Close releases the underlying stream, if it implements io.Closer.
func (r *MultiStatusReader) Close() error {
	if r.underlying == nil {
		return nil
	}
	return r.underlying.Close()
}

// ReadMultiStatus collects every item from a MultiStatusReader over r
// into a MultiStatus, the buffered equivalent of streaming via Next.
// DoMultiStatus is built on this helper, and DoMultiStatusStream hands
// out the same MultiStatusReader this helper loops over, so both forms
// share one parser and yield the same item list; the trailing-metadata fields
// (SyncToken, ResponseDescription) are only fully populated if Next is
// driven to exhaustion, which this helper always does.
func ReadMultiStatus(r io.Reader) (*MultiStatus, error) {
	msr, err := NewMultiStatusReader(r)
	if err != nil {
		return nil, err
	}

	var ms MultiStatus
	for {
		resp, err := msr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		ms.Responses = append(ms.Responses, *resp)
	}
	ms.XMLName = multistatusName
	ms.SyncToken = msr.SyncToken()
	ms.ResponseDescription = msr.ResponseDescription()
	return &ms, nil
}
