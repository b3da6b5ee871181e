package caldav

import (
	"encoding/xml"
	"time"

	"github.com/yinjun1991/caldav-client-go/internal"
)

const namespace = "urn:ietf:params:xml:ns:caldav"

// appleNamespace carries the handful of de facto calendar properties
// (color, order) that Apple's clients and servers added outside the
// RFC 4791 namespace but that most CalDAV servers now understand.
const appleNamespace = "http://apple.com/ns/ical/"

var (
	CalendarHomeSetName = xml.Name{namespace, "calendar-home-set"}
	CalendarName        = xml.Name{namespace, "calendar"}
	CalendarDataName    = xml.Name{namespace, "calendar-data"}

	calendarDescriptionName           = xml.Name{namespace, "calendar-description"}
	maxResourceSizeName               = xml.Name{namespace, "max-resource-size"}
	supportedCalendarComponentSetName = xml.Name{namespace, "supported-calendar-component-set"}
	calendarColorName                 = xml.Name{appleNamespace, "calendar-color"}
	calendarTimezoneName              = xml.Name{namespace, "calendar-timezone"}
)

// calendarPropFind is the standard set of properties fetched whenever a
// calendar collection itself (as opposed to one of its objects) is
// retrieved: FindCalendars, GetCalendar and the calendar-list sync path
// all share it.
var calendarPropFind = internal.NewPropNamePropFind(
	internal.ResourceTypeName,
	calendarDescriptionName,
	internal.DisplayNameName,
	maxResourceSizeName,
	supportedCalendarComponentSetName,
	calendarColorName,
	calendarTimezoneName,
	internal.SyncTokenName,
	internal.CurrentUserPrivilegeSetName,
	internal.GetETagName,
)

type calendarHomeSet struct {
	XMLName xml.Name      `xml:"urn:ietf:params:xml:ns:caldav calendar-home-set"`
	Href    internal.Href `xml:"DAV: href"`
}

type calendarDescription struct {
	XMLName     xml.Name `xml:"urn:ietf:params:xml:ns:caldav calendar-description"`
	Description string   `xml:",chardata"`
}

type maxResourceSize struct {
	XMLName xml.Name `xml:"urn:ietf:params:xml:ns:caldav max-resource-size"`
	Size    int64    `xml:",chardata"`
}

type supportedCalendarComponentSet struct {
	XMLName xml.Name `xml:"urn:ietf:params:xml:ns:caldav supported-calendar-component-set"`
	Comp    []comp   `xml:"comp"`
}

type calendarColor struct {
	XMLName xml.Name `xml:"http://apple.com/ns/ical/ calendar-color"`
	Color   string   `xml:",chardata"`
}

type calendarTimezone struct {
	XMLName  xml.Name `xml:"urn:ietf:params:xml:ns:caldav calendar-timezone"`
	Timezone string   `xml:",chardata"`
}

// calendarQuery is the CALDAV:calendar-query REPORT request body, RFC 4791
// section 7.8.
type calendarQuery struct {
	XMLName  xml.Name       `xml:"urn:ietf:params:xml:ns:caldav calendar-query"`
	Prop     *internal.Prop `xml:"DAV: prop,omitempty"`
	AllProp  *struct{}      `xml:"DAV: allprop,omitempty"`
	PropName *struct{}      `xml:"DAV: propname,omitempty"`
	Filter   filter         `xml:"filter"`
}

// calendarMultiget is the CALDAV:calendar-multiget REPORT request body,
// RFC 4791 section 7.9.
type calendarMultiget struct {
	XMLName xml.Name        `xml:"urn:ietf:params:xml:ns:caldav calendar-multiget"`
	Prop    *internal.Prop  `xml:"DAV: prop,omitempty"`
	Hrefs   []internal.Href `xml:"DAV: href"`
}

type filter struct {
	XMLName    xml.Name   `xml:"urn:ietf:params:xml:ns:caldav filter"`
	CompFilter compFilter `xml:"comp-filter"`
}

type compFilter struct {
	XMLName      xml.Name     `xml:"urn:ietf:params:xml:ns:caldav comp-filter"`
	Name         string       `xml:"name,attr"`
	IsNotDefined *struct{}    `xml:"is-not-defined,omitempty"`
	TimeRange    *timeRange   `xml:"time-range,omitempty"`
	PropFilters  []propFilter `xml:"prop-filter,omitempty"`
	CompFilters  []compFilter `xml:"comp-filter,omitempty"`
}

type propFilter struct {
	XMLName      xml.Name      `xml:"urn:ietf:params:xml:ns:caldav prop-filter"`
	Name         string        `xml:"name,attr"`
	IsNotDefined *struct{}     `xml:"is-not-defined,omitempty"`
	TimeRange    *timeRange    `xml:"time-range,omitempty"`
	TextMatch    *textMatch    `xml:"text-match,omitempty"`
	ParamFilter  []paramFilter `xml:"param-filter,omitempty"`
}

type paramFilter struct {
	XMLName      xml.Name   `xml:"urn:ietf:params:xml:ns:caldav param-filter"`
	Name         string     `xml:"name,attr"`
	IsNotDefined *struct{}  `xml:"is-not-defined,omitempty"`
	TextMatch    *textMatch `xml:"text-match,omitempty"`
}

// negateCondition marshals as the CalDAV "yes"/"no" attribute tokens
// rather than Go's default "true"/"false".
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
	XMLName         xml.Name        `xml:"urn:ietf:params:xml:ns:caldav text-match"`
	Text            string          `xml:",chardata"`
	NegateCondition negateCondition `xml:"negate-condition,attr,omitempty"`
	Collation       string          `xml:"collation,attr,omitempty"`
}

type timeRange struct {
	XMLName xml.Name        `xml:"urn:ietf:params:xml:ns:caldav time-range"`
	Start   dateWithUTCTime `xml:"start,attr,omitempty"`
	End     dateWithUTCTime `xml:"end,attr,omitempty"`
}

const dateWithUTCTimeLayout = "20060102T150405Z"

// dateWithUTCTime marshals a time.Time in the UTC date-time form
// (YYYYMMDDTHHMMSSZ) CalDAV time-range and expand filters require.
type dateWithUTCTime time.Time

func (t *dateWithUTCTime) UnmarshalText(b []byte) error {
	parsed, err := time.Parse(dateWithUTCTimeLayout, string(b))
	if err != nil {
		return err
	}
	*t = dateWithUTCTime(parsed)
	return nil
}

func (t dateWithUTCTime) MarshalText() ([]byte, error) {
	return []byte(time.Time(t).UTC().Format(dateWithUTCTimeLayout)), nil
}

// calendarDataReq is the CALDAV:calendar-data element as it appears inside
// a request, selecting which components/properties to return and,
// optionally, asking the server to expand recurring events.
type calendarDataReq struct {
	XMLName xml.Name `xml:"urn:ietf:params:xml:ns:caldav calendar-data"`
	Comp    *comp    `xml:"comp,omitempty"`
	Expand  *expand  `xml:"expand,omitempty"`
}

// calendarDataResp is the CALDAV:calendar-data element as it appears in a
// response, carrying the raw iCalendar payload.
type calendarDataResp struct {
	XMLName xml.Name `xml:"urn:ietf:params:xml:ns:caldav calendar-data"`
	Data    []byte   `xml:",chardata"`
}

type expand struct {
	XMLName xml.Name        `xml:"urn:ietf:params:xml:ns:caldav expand"`
	Start   dateWithUTCTime `xml:"start,attr"`
	End     dateWithUTCTime `xml:"end,attr"`
}

type comp struct {
	XMLName xml.Name  `xml:"urn:ietf:params:xml:ns:caldav comp"`
	Name    string    `xml:"name,attr"`
	Allprop *struct{} `xml:"allprop,omitempty"`
	Prop    []prop    `xml:"prop,omitempty"`
	Allcomp *struct{} `xml:"allcomp,omitempty"`
	Comp    []comp    `xml:"comp,omitempty"`
}

type prop struct {
	XMLName xml.Name `xml:"urn:ietf:params:xml:ns:caldav prop"`
	Name    string   `xml:"name,attr"`
}

// reportReq decodes either shape of REPORT request body this package
// sends (calendar-query or calendar-multiget), dispatching on the root
// element. It exists to let tests inspect an already-encoded request.
type reportReq struct {
	Query    *calendarQuery
	Multiget *calendarMultiget
}

func (r *reportReq) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	switch start.Name.Local {
	case "calendar-query":
		q := new(calendarQuery)
		if err := d.DecodeElement(q, &start); err != nil {
			return err
		}
		r.Query = q
	case "calendar-multiget":
		m := new(calendarMultiget)
		if err := d.DecodeElement(m, &start); err != nil {
			return err
		}
		r.Multiget = m
	default:
		return d.Skip()
	}
	return nil
}
