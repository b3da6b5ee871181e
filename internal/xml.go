package internal

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"net/url"
)

// Href is a DAV:href element, holding a server-relative or absolute path.
type Href struct {
	Path string
}

func (h *Href) UnmarshalText(b []byte) error {
	u, err := url.Parse(string(b))
	if err != nil {
		return fmt.Errorf("webdav: failed to parse href: %v", err)
	}
	h.Path = u.Path
	return nil
}

func (h *Href) MarshalText() ([]byte, error) {
	u := url.URL{Path: h.Path}
	return []byte(u.String()), nil
}

// RawXMLValue is a raw XML value. It implements xml.Unmarshaler and
// xml.Marshaler, and can be used to hold properties whose exact shape
// isn't known ahead of time.
type RawXMLValue struct {
	root  *rawXMLValueRoot
	start *xml.StartElement
	end   *xml.EndElement
}

type rawXMLValueRoot struct {
	XMLName xml.Name
	Attr    []xml.Attr `xml:",any,attr"`
	Content []byte     `xml:",innerxml"`
}

// NewRawXMLElement creates a new RawXMLValue from an element name, its
// attributes and a slice of child values.
func NewRawXMLElement(name xml.Name, attrs []xml.Attr, children []interface{}) *RawXMLValue {
	attr := make([]xml.Attr, len(attrs))
	copy(attr, attrs)

	start := xml.StartElement{Name: name, Attr: attr}
	end := xml.EndElement{Name: name}

	v := &RawXMLValue{start: &start, end: &end}
	if len(children) > 0 {
		var buf bytes.Buffer
		enc := xml.NewEncoder(&buf)
		for _, child := range children {
			if err := enc.Encode(child); err != nil {
				// Child values handed to NewRawXMLElement are always
				// simple, already-validated wire types.
				panic(fmt.Sprintf("webdav: failed to encode child element: %v", err))
			}
		}
		enc.Flush()
		v.root = &rawXMLValueRoot{XMLName: name, Attr: attr, Content: buf.Bytes()}
	}
	return v
}

// EncodeRawXMLElement marshals v and wraps the result in a RawXMLValue.
func EncodeRawXMLElement(v interface{}) (*RawXMLValue, error) {
	var buf bytes.Buffer
	if err := xml.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}

	raw := RawXMLValue{}
	if err := xml.Unmarshal(buf.Bytes(), &raw); err != nil {
		return nil, err
	}
	return &raw, nil
}

func (raw *RawXMLValue) XMLName() (xml.Name, bool) {
	if raw.start == nil {
		return xml.Name{}, false
	}
	return raw.start.Name, true
}

func (raw *RawXMLValue) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	root := rawXMLValueRoot{}
	if err := d.DecodeElement(&root, &start); err != nil {
		return err
	}

	raw.root = &root
	raw.start = &start
	end := xml.EndElement{Name: start.Name}
	raw.end = &end
	return nil
}

func (raw RawXMLValue) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	if raw.root == nil {
		if raw.start == nil {
			return nil
		}
		if err := e.EncodeToken(*raw.start); err != nil {
			return err
		}
		return e.EncodeToken(*raw.end)
	}
	return e.Encode(raw.root)
}

// Decode decodes the raw element's content into v.
func (raw *RawXMLValue) Decode(v interface{}) error {
	if raw.root == nil {
		return fmt.Errorf("webdav: empty XML value")
	}

	// Reconstruct a standalone XML fragment for v to decode from.
	var buf bytes.Buffer
	enc := xml.NewEncoder(&buf)
	startCopy := xml.StartElement{Name: raw.root.XMLName, Attr: raw.root.Attr}
	if err := enc.EncodeToken(startCopy); err != nil {
		return err
	}
	if _, err := buf.Write(raw.root.Content); err != nil {
		return err
	}
	if err := enc.EncodeToken(xml.EndElement{Name: raw.root.XMLName}); err != nil {
		return err
	}
	if err := enc.Flush(); err != nil {
		return err
	}

	return xml.Unmarshal(buf.Bytes(), v)
}

// Prop represents a DAV:prop element, a property container.
type Prop struct {
	XMLName xml.Name      `xml:"DAV: prop"`
	Raw     []RawXMLValue `xml:",any"`
}

// Get returns the raw property with the given name, or nil.
func (p *Prop) Get(name xml.Name) *RawXMLValue {
	if p == nil {
		return nil
	}
	for i := range p.Raw {
		if n, ok := p.Raw[i].XMLName(); ok && n == name {
			return &p.Raw[i]
		}
	}
	return nil
}

// EncodeProp builds a DAV:prop element whose children are the encoded
// forms of each value.
func EncodeProp(values ...interface{}) (*Prop, error) {
	l := make([]RawXMLValue, len(values))
	for i, v := range values {
		if raw, ok := v.(*RawXMLValue); ok {
			l[i] = *raw
			continue
		}
		raw, err := EncodeRawXMLElement(v)
		if err != nil {
			return nil, err
		}
		l[i] = *raw
	}
	return &Prop{Raw: l}, nil
}

// PropFind represents a DAV:propfind request element.
type PropFind struct {
	XMLName  xml.Name  `xml:"DAV: propfind"`
	Prop     *Prop     `xml:"DAV: prop,omitempty"`
	AllProp  *struct{} `xml:"DAV: allprop,omitempty"`
	PropName *struct{} `xml:"DAV: propname,omitempty"`
}

// NewPropNamePropFind builds a PropFind requesting exactly the named
// empty properties (as opposed to DAV:allprop or DAV:propname).
func NewPropNamePropFind(names ...xml.Name) *PropFind {
	props := make([]RawXMLValue, len(names))
	for i, name := range names {
		props[i] = *NewRawXMLElement(name, nil, nil)
	}
	return &PropFind{Prop: &Prop{Raw: props}}
}

// PropertyUpdate represents a DAV:propertyupdate request element, used
// with PROPPATCH.
type PropertyUpdate struct {
	XMLName xml.Name `xml:"DAV: propertyupdate"`
	Remove  []Remove `xml:"DAV: remove"`
	Set     []Set    `xml:"DAV: set"`
}

type Remove struct {
	XMLName xml.Name `xml:"DAV: remove"`
	Prop    Prop     `xml:"DAV: prop"`
}

type Set struct {
	XMLName xml.Name `xml:"DAV: set"`
	Prop    Prop     `xml:"DAV: prop"`
}

// Common WebDAV property names, shared by every domain package.
var (
	ResourceTypeName            = xml.Name{"DAV:", "resourcetype"}
	DisplayNameName             = xml.Name{"DAV:", "displayname"}
	GetContentLengthName        = xml.Name{"DAV:", "getcontentlength"}
	GetLastModifiedName         = xml.Name{"DAV:", "getlastmodified"}
	GetETagName                 = xml.Name{"DAV:", "getetag"}
	GetContentTypeName          = xml.Name{"DAV:", "getcontenttype"}
	CurrentUserPrincipalName    = xml.Name{"DAV:", "current-user-principal"}
	CurrentUserPrivilegeSetName = xml.Name{"DAV:", "current-user-privilege-set"}
	SyncTokenName               = xml.Name{"DAV:", "sync-token"}
)

type ResourceType struct {
	XMLName xml.Name      `xml:"DAV: resourcetype"`
	Raw     []RawXMLValue `xml:",any"`
}

// Is reports whether the resource type includes name among its child
// elements (e.g. DAV:collection, urn:ietf:params:xml:ns:caldav calendar).
func (t *ResourceType) Is(name xml.Name) bool {
	for _, raw := range t.Raw {
		if n, ok := raw.XMLName(); ok && n == name {
			return true
		}
	}
	return false
}

var CollectionName = xml.Name{"DAV:", "collection"}

type DisplayName struct {
	XMLName xml.Name `xml:"DAV: displayname"`
	Name    string   `xml:",chardata"`
}

type GetContentLength struct {
	XMLName xml.Name `xml:"DAV: getcontentlength"`
	Length  int64    `xml:",chardata"`
}

type GetLastModified struct {
	XMLName      xml.Name `xml:"DAV: getlastmodified"`
	LastModified Time     `xml:",chardata"`
}

type GetETag struct {
	XMLName xml.Name `xml:"DAV: getetag"`
	ETag    ETag     `xml:",chardata"`
}

type GetContentType struct {
	XMLName xml.Name `xml:"DAV: getcontenttype"`
	Type    string   `xml:",chardata"`
}

type CurrentUserPrincipal struct {
	XMLName         xml.Name  `xml:"DAV: current-user-principal"`
	Href            Href      `xml:"DAV: href"`
	Unauthenticated *struct{} `xml:"DAV: unauthenticated,omitempty"`
}

type Privilege struct {
	XMLName xml.Name      `xml:"DAV: privilege"`
	Raw     []RawXMLValue `xml:",any"`
}

type CurrentUserPrivilegeSet struct {
	XMLName    xml.Name    `xml:"DAV: current-user-privilege-set"`
	Privileges []Privilege `xml:"DAV: privilege"`
}
