package caldav

import (
	"errors"
	"testing"

	webdav "github.com/yinjun1991/caldav-client-go"
)

func TestNormalizeCollectionPath(t *testing.T) {
	tcs := []struct {
		name     string
		input    string
		expected string
	}{
		{"empty", "", ""},
		{"root", "/", "/"},
		{"noTrailing", "/cal", "/cal"},
		{"singleTrailing", "/cal/", "/cal"},
		{"multipleTrailing", "/cal////", "/cal"},
	}

	for _, tc := range tcs {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			if got := normalizeCollectionPath(tc.input); got != tc.expected {
				t.Fatalf("normalizeCollectionPath(%q)=%q, want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestSameCollectionPath(t *testing.T) {
	tcs := []struct {
		name     string
		a, b     string
		expected bool
	}{
		{"exact", "/cal", "/cal", true},
		{"trailingA", "/cal/", "/cal", true},
		{"trailingB", "/cal", "/cal///", true},
		{"rootVsSlash", "/", "/", true},
		{"emptyVsSlash", "", "/", false},
		{"different", "/cal/a", "/cal/b", false},
	}

	for _, tc := range tcs {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			if got := sameCollectionPath(tc.a, tc.b); got != tc.expected {
				t.Fatalf("sameCollectionPath(%q,%q)=%v, want %v", tc.a, tc.b, got, tc.expected)
			}
		})
	}
}

func TestCalendarPrecondition(t *testing.T) {
	if p, err := calendarPrecondition(nil); err != nil || p != nil {
		t.Fatalf("nil opts: got (%v, %v), want (nil, nil)", p, err)
	}

	p, err := calendarPrecondition(&PutCalendarObjectOptions{IfMatch: "abc"})
	if err != nil || p == nil || p.IfMatch != "abc" || p.IfNoneMatchAny {
		t.Fatalf("IfMatch: got (%+v, %v)", p, err)
	}

	p, err = calendarPrecondition(&PutCalendarObjectOptions{IfNoneMatch: "*"})
	if err != nil || p == nil || !p.IfNoneMatchAny || p.IfMatch != "" {
		t.Fatalf("IfNoneMatch *: got (%+v, %v)", p, err)
	}

	if _, err := calendarPrecondition(&PutCalendarObjectOptions{IfMatch: "abc", IfNoneMatch: "*"}); err == nil {
		t.Fatal("expected error when both IfMatch and IfNoneMatch are set")
	}

	if _, err := calendarPrecondition(&PutCalendarObjectOptions{IfNoneMatch: "specific-etag"}); err == nil {
		t.Fatal("expected error for non-* IfNoneMatch")
	}
}

func TestClassifyConditionalWriteError(t *testing.T) {
	newPreconditionFailed := func() *webdav.Error {
		return &webdav.Error{Code: webdav.ErrPreconditionFailed, HTTPStatus: 412, Err: errors.New("boom")}
	}

	// If-Match collision stays PreconditionFailed.
	err := classifyConditionalWriteError(newPreconditionFailed(), &PutCalendarObjectOptions{IfMatch: "abc"})
	classified, ok := webdav.AsError(err)
	if !ok || classified.Code != webdav.ErrPreconditionFailed {
		t.Fatalf("expected ErrPreconditionFailed, got %v (ok=%v)", err, ok)
	}

	// If-None-Match: * collision is reclassified to Conflict.
	err = classifyConditionalWriteError(newPreconditionFailed(), &PutCalendarObjectOptions{IfNoneMatch: "*"})
	classified, ok = webdav.AsError(err)
	if !ok || classified.Code != webdav.ErrConflict {
		t.Fatalf("expected ErrConflict, got %v (ok=%v)", err, ok)
	}

	// A non-412 error is returned unchanged.
	notFound := &webdav.Error{Code: webdav.ErrNotFound, HTTPStatus: 404, Err: errors.New("missing")}
	if got := classifyConditionalWriteError(notFound, &PutCalendarObjectOptions{IfNoneMatch: "*"}); got != notFound {
		t.Fatalf("expected unchanged error, got %v", got)
	}
}

func TestClassifyDeleteError(t *testing.T) {
	notFound := &webdav.Error{Code: webdav.ErrNotFound, HTTPStatus: 404, Err: errors.New("missing")}
	err := classifyDeleteError(notFound, "/cal/a.ics")
	classified, ok := webdav.AsError(err)
	if !ok || classified.Code != webdav.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v (ok=%v)", err, ok)
	}
}
