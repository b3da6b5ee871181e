// Package caldav provides a CalDAV client implementation.
//
// CalDAV is defined in RFC 4791.
package caldav

import (
	"time"
)

type Calendar struct {
	Path                  string
	Name                  string
	Description           string
	MaxResourceSize       int64
	SupportedComponentSet []string
	Color                 string
	Timezone              string
	SyncToken             string
	CurrentUserPrivileges []string
}

type CalendarCompRequest struct {
	Name string

	AllProps bool
	Props    []string

	AllComps bool
	Comps    []CalendarCompRequest

	Expand *CalendarExpandRequest
}

type CalendarExpandRequest struct {
	Start, End time.Time
}

// CalendarQueryRequest represents a calendar-query request
type CalendarQueryRequest struct {
	CompRequest CalendarCompRequest
	Filter      CompFilter
}

type CompFilter struct {
	Name         string
	IsNotDefined bool
	Start, End   time.Time
	Props        []PropFilter
	Comps        []CompFilter
}

type ParamFilter struct {
	Name         string
	IsNotDefined bool
	TextMatch    *TextMatch
}

type PropFilter struct {
	Name         string
	IsNotDefined bool
	Start, End   time.Time
	TextMatch    *TextMatch
	ParamFilter  []ParamFilter
}

type TextMatch struct {
	Text            string
	NegateCondition bool
}

type CalendarObject struct {
	Path          string
	ModTime       time.Time
	ContentLength int64
	ETag          string
	Data          []byte
}

// SyncQuery is the query struct represents a sync-collection request
type SyncQuery struct {
	SyncToken string
	Limit     int // <= 0 means unlimited

	// StartTime discards updated objects that end before this instant:
	// a recurring event is judged by its RRULE UNTIL and is always kept
	// when it has none, any other event by DTEND (or DTSTART when DTEND
	// is absent), and an object with neither by its last-modified time.
	// It only applies to an initial sync (SyncToken == ""); subsequent
	// incremental syncs rely on the server to report exactly what changed.
	StartTime time.Time
}

// SyncResponse contains the returned sync-token for next time
type SyncResponse struct {
	SyncToken string
	Calendar  *Calendar // 集合本身的属性
	Updated   []*CalendarObject
	Deleted   []string
}

// PutCalendarObjectOptions contains options for creating or replacing a
// calendar object.
type PutCalendarObjectOptions struct {
	// IfMatch, if set, makes the PUT conditional on the resource's
	// current ETag matching this value.
	IfMatch string
	// IfNoneMatch, if set to "*", makes the PUT conditional on the
	// resource not existing yet.
	IfNoneMatch string
}

// UpdateCalendarOptions describes the properties to change on a
// calendar collection via PROPPATCH. Only non-nil fields are sent.
type UpdateCalendarOptions struct {
	Name        *string
	Description *string
	Color       *string
	Timezone    *string
}

// CalendarListSyncResult is the result of a sync-collection REPORT
// against a calendar home set, as returned by SyncCalendarList.
type CalendarListSyncResult struct {
	NextSyncToken    string
	UpdatedCalendars []*Calendar
	DeletedCalendars []string
}
