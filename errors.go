package webdav

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/yinjun1991/caldav-client-go/internal"
)

// ErrorCode classifies a server failure into one of a small number of
// buckets callers are expected to branch on, instead of matching raw
// HTTP status codes throughout application code.
type ErrorCode int

const (
	ErrUnknown ErrorCode = iota
	ErrNotFound
	ErrPreconditionFailed
	ErrConflict
	ErrInsufficientStorage
	// ErrServerSyncReset is the 410 Gone a server may return for a
	// sync-token it no longer recognizes; the client must discard its
	// token and perform a fresh initial sync. A 507 Insufficient Storage
	// is classified separately, as ErrInsufficientStorage.
	ErrServerSyncReset
	ErrForbidden
	ErrUnauthorized
	// ErrTransport covers connect/TLS/read/write failures below the
	// HTTP layer; recoverable by retry at the caller.
	ErrTransport
	// ErrTimeout is a context deadline (context.DeadlineExceeded) or a
	// timeout reported through *url.Error. The Client sets no request
	// timeout of its own; deadlines come from the caller's context or
	// the underlying HTTP client.
	ErrTimeout
	// ErrUnsupportedEncoding is an unrecognized Content-Encoding token.
	ErrUnsupportedEncoding
	// ErrDecode names a failure to decompress a response body whose
	// Content-Encoding was otherwise recognized. AsError does not return
	// it: such a failure reaches callers wrapped in a *url.Error and is
	// classified ErrTransport.
	ErrDecode
	// ErrMalformedXML is non-well-formed XML in a multistatus body.
	ErrMalformedXML
	// ErrUnexpectedRoot is a multistatus body whose root element wasn't
	// DAV:multistatus.
	ErrUnexpectedRoot
	// ErrTruncatedBody is a multistatus body that ended before its root
	// element was closed.
	ErrTruncatedBody
	// ErrInvalidInput is what AsError reports for a multistatus
	// ParseError of kind InvalidStatus. Caller mistakes, such as setting
	// both fields of a Precondition, are not mapped to it.
	ErrInvalidInput
)

// Error is the classified form of a failed WebDAV request.
type Error struct {
	Code       ErrorCode
	HTTPStatus int
	Err        error
}

func (e *Error) Error() string {
	return fmt.Sprintf("webdav: %v", e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// AsError reports whether err (or an error it wraps) is classifiable
// under the taxonomy in §7: an HTTP status, a parser failure, a
// compression failure, a timeout, or a transport-level failure. It
// returns false only for errors with no recognizable shape at all
// (e.g. a caller's own error from a handler).
func AsError(err error) (*Error, bool) {
	if err == nil {
		return nil, false
	}

	// A domain package (caldav, carddav) may have already classified this
	// error and overridden its Code — e.g. a 412 reclassified from
	// ErrPreconditionFailed to ErrConflict because the request carried
	// If-None-Match rather than If-Match. Return that classification
	// as-is instead of rederiving it from the HTTP status and losing
	// the override.
	var classified *Error
	if errors.As(err, &classified) {
		return classified, true
	}

	var httpErr *internal.HTTPError
	if errors.As(err, &httpErr) {
		return &Error{Code: httpStatusCode(httpErr.Code), HTTPStatus: httpErr.Code, Err: httpErr}, true
	}

	var parseErr *internal.ParseError
	if errors.As(err, &parseErr) {
		code := ErrMalformedXML
		switch parseErr.Kind {
		case internal.UnexpectedRoot:
			code = ErrUnexpectedRoot
		case internal.TruncatedBody:
			code = ErrTruncatedBody
		case internal.InvalidStatus:
			code = ErrInvalidInput
		}
		return &Error{Code: code, Err: parseErr}, true
	}

	if errors.Is(err, errUnsupportedEncoding) {
		return &Error{Code: ErrUnsupportedEncoding, Err: err}, true
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Code: ErrTimeout, Err: err}, true
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		if urlErr.Timeout() {
			return &Error{Code: ErrTimeout, Err: err}, true
		}
		return &Error{Code: ErrTransport, Err: err}, true
	}

	return nil, false
}

func httpStatusCode(status int) ErrorCode {
	switch status {
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusPreconditionFailed:
		return ErrPreconditionFailed
	case http.StatusConflict:
		return ErrConflict
	case http.StatusInsufficientStorage:
		return ErrInsufficientStorage
	case http.StatusGone:
		return ErrServerSyncReset
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusUnauthorized:
		return ErrUnauthorized
	default:
		return ErrUnknown
	}
}
