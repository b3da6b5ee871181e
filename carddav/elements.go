package carddav

import (
	"encoding/xml"

	"github.com/yinjun1991/caldav-client-go/internal"
)

const namespace = "urn:ietf:params:xml:ns:carddav"

var (
	AddressbookHomeSetName = xml.Name{namespace, "addressbook-home-set"}
	AddressbookName        = xml.Name{namespace, "addressbook"}
	AddressDataName        = xml.Name{namespace, "address-data"}

	addressbookDescriptionName = xml.Name{namespace, "addressbook-description"}
	maxResourceSizeName        = xml.Name{namespace, "max-resource-size"}
	supportedAddressDataName   = xml.Name{namespace, "supported-address-data"}
)

// addressbookPropFind is the standard property set fetched whenever an
// addressbook collection itself (as opposed to one of its cards) is
// retrieved.
var addressbookPropFind = internal.NewPropNamePropFind(
	internal.ResourceTypeName,
	addressbookDescriptionName,
	internal.DisplayNameName,
	maxResourceSizeName,
	supportedAddressDataName,
	internal.SyncTokenName,
	internal.CurrentUserPrivilegeSetName,
	internal.GetETagName,
)

type addressbookHomeSet struct {
	XMLName xml.Name      `xml:"urn:ietf:params:xml:ns:carddav addressbook-home-set"`
	Href    internal.Href `xml:"DAV: href"`
}

type addressbookDescription struct {
	XMLName     xml.Name `xml:"urn:ietf:params:xml:ns:carddav addressbook-description"`
	Description string   `xml:",chardata"`
}

type maxResourceSize struct {
	XMLName xml.Name `xml:"urn:ietf:params:xml:ns:carddav max-resource-size"`
	Size    int64    `xml:",chardata"`
}

type addressDataType struct {
	XMLName     xml.Name `xml:"urn:ietf:params:xml:ns:carddav address-data-type"`
	ContentType string   `xml:"content-type,attr"`
	Version     string   `xml:"version,attr"`
}

type supportedAddressData struct {
	XMLName xml.Name          `xml:"urn:ietf:params:xml:ns:carddav supported-address-data"`
	Types   []addressDataType `xml:"address-data-type"`
}

// addressDataReq is the CARDDAV:address-data element as it appears in a
// request, selecting which vCard properties to return.
type addressDataReq struct {
	XMLName xml.Name      `xml:"urn:ietf:params:xml:ns:carddav address-data"`
	Allprop *struct{}     `xml:"allprop,omitempty"`
	Prop    []addressProp `xml:"prop,omitempty"`
}

type addressProp struct {
	XMLName xml.Name `xml:"urn:ietf:params:xml:ns:carddav prop"`
	Name    string   `xml:"name,attr"`
}

// addressDataResp is the CARDDAV:address-data element as it appears in a
// response, carrying the raw vCard payload.
type addressDataResp struct {
	XMLName xml.Name `xml:"urn:ietf:params:xml:ns:carddav address-data"`
	Data    []byte   `xml:",chardata"`
}

// addressbookQuery is the CARDDAV:addressbook-query REPORT request body,
// RFC 6352 section 10.3.
type addressbookQuery struct {
	XMLName  xml.Name       `xml:"urn:ietf:params:xml:ns:carddav addressbook-query"`
	Prop     *internal.Prop `xml:"DAV: prop,omitempty"`
	AllProp  *struct{}      `xml:"DAV: allprop,omitempty"`
	PropName *struct{}      `xml:"DAV: propname,omitempty"`
	Filter   filter         `xml:"filter"`
	Limit    *queryLimit    `xml:"limit,omitempty"`
}

type queryLimit struct {
	XMLName  xml.Name `xml:"urn:ietf:params:xml:ns:carddav limit"`
	NResults int      `xml:"nresults"`
}

// addressbookMultiget is the CARDDAV:addressbook-multiget REPORT request
// body, RFC 6352 section 10.7.
type addressbookMultiget struct {
	XMLName xml.Name        `xml:"urn:ietf:params:xml:ns:carddav addressbook-multiget"`
	Prop    *internal.Prop  `xml:"DAV: prop,omitempty"`
	Hrefs   []internal.Href `xml:"DAV: href"`
}

type filter struct {
	XMLName     xml.Name     `xml:"urn:ietf:params:xml:ns:carddav filter"`
	Test        string       `xml:"test,attr,omitempty"` // "anyof" or "allof"
	PropFilters []propFilter `xml:"prop-filter,omitempty"`
}

type propFilter struct {
	XMLName      xml.Name      `xml:"urn:ietf:params:xml:ns:carddav prop-filter"`
	Name         string        `xml:"name,attr"`
	IsNotDefined *struct{}     `xml:"is-not-defined,omitempty"`
	TextMatch    *textMatch    `xml:"text-match,omitempty"`
	ParamFilter  []paramFilter `xml:"param-filter,omitempty"`
}

type paramFilter struct {
	XMLName      xml.Name   `xml:"urn:ietf:params:xml:ns:carddav param-filter"`
	Name         string     `xml:"name,attr"`
	IsNotDefined *struct{}  `xml:"is-not-defined,omitempty"`
	TextMatch    *textMatch `xml:"text-match,omitempty"`
}

type negateCondition bool

func (n negateCondition) MarshalText() ([]byte, error) {
	if n {
		return []byte("yes"), nil
	}
	return []byte("no"), nil
}

func (n *negateCondition) UnmarshalText(b []byte) error {
	*n = string(b) == "yes"
	return nil
}

type textMatch struct {
	XMLName         xml.Name        `xml:"urn:ietf:params:xml:ns:carddav text-match"`
	Text            string          `xml:",chardata"`
	NegateCondition negateCondition `xml:"negate-condition,attr,omitempty"`
	Collation       string          `xml:"collation,attr,omitempty"`
	MatchType       string          `xml:"match-type,attr,omitempty"`
}

// reportReq decodes either shape of REPORT request body this package
// sends (addressbook-query or addressbook-multiget), dispatching on the
// root element. It exists to let tests inspect an already-encoded
// request.
type reportReq struct {
	Query    *addressbookQuery
	Multiget *addressbookMultiget
}

func (r *reportReq) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	switch start.Name.Local {
	case "addressbook-query":
		q := new(addressbookQuery)
		if err := d.DecodeElement(q, &start); err != nil {
			return err
		}
		r.Query = q
	case "addressbook-multiget":
		m := new(addressbookMultiget)
		if err := d.DecodeElement(m, &start); err != nil {
			return err
		}
		r.Multiget = m
	default:
		return d.Skip()
	}
	return nil
}
