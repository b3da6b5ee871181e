package internal

import (
	"net/http"
	"strconv"
	"time"
)

// Time marshals and unmarshals an HTTP-date, as used by DAV:getlastmodified.
type Time time.Time

func (t *Time) UnmarshalText(b []byte) error {
	parsed, err := http.ParseTime(string(b))
	if err != nil {
		return err
	}
	*t = Time(parsed)
	return nil
}

func (t Time) MarshalText() ([]byte, error) {
	return []byte(time.Time(t).UTC().Format(http.TimeFormat)), nil
}

// ETag marshals and unmarshals a DAV:getetag value, stripping the
// surrounding quotes servers wrap entity tags in.
type ETag string

func (e *ETag) UnmarshalText(b []byte) error {
	s := string(b)
	if unquoted, err := strconv.Unquote(s); err == nil {
		s = unquoted
	}
	*e = ETag(s)
	return nil
}

func (e ETag) MarshalText() ([]byte, error) {
	return []byte(strconv.Quote(string(e))), nil
}
