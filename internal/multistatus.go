package internal

import (
	"encoding/xml"
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

// httpStatus decodes a DAV:status chardata value such as "HTTP/1.1 200 OK".
type httpStatus struct {
	Code int
	Text string
}

func (s *httpStatus) UnmarshalText(b []byte) error {
	parts := strings.SplitN(string(b), " ", 3)
	if len(parts) < 2 {
		return fmt.Errorf("webdav: invalid HTTP status %q", b)
	}
	code, err := strconv.Atoi(parts[1])
	if err != nil {
		return fmt.Errorf("webdav: invalid HTTP status code in %q: %v", b, err)
	}
	s.Code = code
	if len(parts) == 3 {
		s.Text = parts[2]
	}
	return nil
}

func (s httpStatus) MarshalText() ([]byte, error) {
	text := s.Text
	if text == "" {
		text = http.StatusText(s.Code)
	}
	return []byte(fmt.Sprintf("HTTP/1.1 %d %s", s.Code, text)), nil
}

// Err returns a non-nil error if the status doesn't indicate success.
func (s *httpStatus) Err() error {
	if s.Code/100 == 2 {
		return nil
	}
	return &HTTPError{Code: s.Code, Text: s.Text}
}

// PropStat represents a DAV:propstat element, a group of properties
// sharing a single status.
type PropStat struct {
	XMLName xml.Name   `xml:"DAV: propstat"`
	Prop    Prop       `xml:"DAV: prop"`
	Status  httpStatus `xml:"DAV: status"`
	Error   *RawXMLValue `xml:"DAV: error,omitempty"`
}

// Response represents a DAV:response element.
type Response struct {
	XMLName   xml.Name   `xml:"DAV: response"`
	Href      Href       `xml:"DAV: href"`
	Hrefs     []Href     `xml:"DAV: location>href,omitempty"`
	PropStats []PropStat `xml:"DAV: propstat,omitempty"`
	Status    *httpStatus `xml:"DAV: status,omitempty"`
	Error     *RawXMLValue `xml:"DAV: error,omitempty"`
}

// Path returns the response's href path, together with the error Err
// reports for a failure status, if any.
func (r *Response) Path() (string, error) {
	if err := r.Err(); err != nil {
		return r.Href.Path, err
	}
	return r.Href.Path, nil
}

// Err reports the first non-success status carried by the response,
// either the top-level DAV:status or the status of one of its
// DAV:propstat groups.
func (r *Response) Err() error {
	if r.Status != nil {
		if err := r.Status.Err(); err != nil {
			return err
		}
	}
	if len(r.PropStats) == 0 {
		return nil
	}
	for _, ps := range r.PropStats {
		if err := ps.Status.Err(); err != nil {
			// A 404 against an empty (requested-but-absent) property set
			// doesn't make the whole response an error.
			if len(ps.Prop.Raw) == 0 && ps.Status.Code == http.StatusNotFound {
				continue
			}
			return err
		}
	}
	return nil
}

// DecodeProp searches every DAV:propstat group for a property matching
// v's XML name and decodes it into v. v must be a pointer to a type
// whose zero value, once marshaled, yields the wire name to look up.
func (r *Response) DecodeProp(v interface{}) error {
	name, err := valueXMLName(v)
	if err != nil {
		return err
	}

	for _, ps := range r.PropStats {
		raw := ps.Prop.Get(name)
		if raw == nil {
			continue
		}
		if err := ps.Status.Err(); err != nil {
			return err
		}
		return raw.Decode(v)
	}

	return &notFoundError{name}
}

// valueXMLName infers the wire element name for v by marshaling its
// zero value and inspecting the resulting root element.
func valueXMLName(v interface{}) (xml.Name, error) {
	raw, err := EncodeRawXMLElement(v)
	if err != nil {
		return xml.Name{}, err
	}
	name, ok := raw.XMLName()
	if !ok {
		return xml.Name{}, fmt.Errorf("webdav: failed to determine XML name of %T", v)
	}
	return name, nil
}

// MultiStatus represents a DAV:multistatus response, the body of a
// PROPFIND or REPORT request.
type MultiStatus struct {
	XMLName           xml.Name   `xml:"DAV: multistatus"`
	Responses         []Response `xml:"DAV: response"`
	ResponseDescription string   `xml:"DAV: responsedescription,omitempty"`
	SyncToken         string     `xml:"DAV: sync-token,omitempty"`
}

type notFoundError struct {
	name xml.Name
}

func (e *notFoundError) Error() string {
	return fmt.Sprintf("webdav: missing property %s %s", e.name.Space, e.name.Local)
}

// IsNotFound reports whether err indicates that a requested property
// was absent from a DAV:multistatus response, either because no
// DAV:propstat group carried it or because the server returned an
// explicit 404 for that property group.
func IsNotFound(err error) bool {
	if _, ok := err.(*notFoundError); ok {
		return true
	}
	if httpErr, ok := err.(*HTTPError); ok {
		return httpErr.Code == http.StatusNotFound
	}
	return false
}

// HTTPError is returned for non-2xx HTTP and multistatus responses.
type HTTPError struct {
	Code int
	Text string
	Err  error
}

func (e *HTTPError) Error() string {
	text := e.Text
	if text == "" {
		text = http.StatusText(e.Code)
	}
	if e.Err != nil {
		return fmt.Sprintf("webdav: HTTP error %d: %s: %v", e.Code, text, e.Err)
	}
	return fmt.Sprintf("webdav: HTTP error %d: %s", e.Code, text)
}

func (e *HTTPError) Unwrap() error {
	return e.Err
}

// HTTPErrorFromResponse builds an *HTTPError from a non-2xx HTTP
// response's status line and returns nil for a 2xx one. The body is
// not read.
func HTTPErrorFromResponse(resp *http.Response) error {
	if resp.StatusCode/100 == 2 {
		return nil
	}
	return &HTTPError{Code: resp.StatusCode, Text: resp.Status}
}
