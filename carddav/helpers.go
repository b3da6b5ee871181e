package carddav

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	webdav "github.com/yinjun1991/caldav-client-go"
	"github.com/yinjun1991/caldav-client-go/internal"
)

func parseAddressBookFromResponse(resp *internal.Response) (*AddressBook, error) {
	path, err := resp.Path()
	if err != nil {
		return nil, err
	}

	var resType internal.ResourceType
	if err := resp.DecodeProp(&resType); err != nil {
		if !internal.IsNotFound(err) {
			return nil, err
		}
	} else if !resType.Is(AddressbookName) {
		return nil, nil
	}

	var desc addressbookDescription
	if err := resp.DecodeProp(&desc); err != nil && !internal.IsNotFound(err) {
		return nil, err
	}

	var dispName internal.DisplayName
	if err := resp.DecodeProp(&dispName); err != nil && !internal.IsNotFound(err) {
		return nil, err
	}

	var maxResSize maxResourceSize
	if err := resp.DecodeProp(&maxResSize); err != nil && !internal.IsNotFound(err) {
		return nil, err
	}

	var supportedData supportedAddressData
	if err := resp.DecodeProp(&supportedData); err != nil && !internal.IsNotFound(err) {
		return nil, err
	}
	dataTypes := make([]string, 0, len(supportedData.Types))
	for _, t := range supportedData.Types {
		dataTypes = append(dataTypes, t.ContentType)
	}

	var syncToken string
	if rawSyncToken := resp.PropStats[0].Prop.Get(internal.SyncTokenName); rawSyncToken != nil {
		if err := rawSyncToken.Decode(&syncToken); err != nil {
			return nil, err
		}
	}

	var currentUserPrivileges []string
	var privSet internal.CurrentUserPrivilegeSet
	if err := resp.DecodeProp(&privSet); err != nil && !internal.IsNotFound(err) {
		return nil, err
	}
	for _, priv := range privSet.Privileges {
		for _, raw := range priv.Raw {
			if name, ok := raw.XMLName(); ok {
				currentUserPrivileges = append(currentUserPrivileges, name.Local)
			}
		}
	}

	return &AddressBook{
		Path:                  path,
		Name:                  dispName.Name,
		Description:           desc.Description,
		MaxResourceSize:       maxResSize.Size,
		SupportedAddressData:  dataTypes,
		SyncToken:             syncToken,
		CurrentUserPrivileges: currentUserPrivileges,
	}, nil
}

func encodeAddressDataReq(r *AddressDataRequest) (*internal.Prop, error) {
	dataReq := addressDataReq{}
	if r != nil {
		if r.AllProp {
			dataReq.Allprop = &struct{}{}
		}
		for _, name := range r.Props {
			dataReq.Prop = append(dataReq.Prop, addressProp{Name: name})
		}
	}

	getLastModReq := internal.NewRawXMLElement(internal.GetLastModifiedName, nil, nil)
	getETagReq := internal.NewRawXMLElement(internal.GetETagName, nil, nil)
	return internal.EncodeProp(&dataReq, getLastModReq, getETagReq)
}

func decodeAddressObject(resp internal.Response, path string) (*AddressObject, error) {
	var cardData addressDataResp
	if err := resp.DecodeProp(&cardData); err != nil {
		if !internal.IsNotFound(err) {
			return nil, err
		}
	}

	var getLastMod internal.GetLastModified
	if err := resp.DecodeProp(&getLastMod); err != nil && !internal.IsNotFound(err) {
		return nil, err
	}

	var getETag internal.GetETag
	if err := resp.DecodeProp(&getETag); err != nil && !internal.IsNotFound(err) {
		return nil, err
	}

	var getContentLength internal.GetContentLength
	if err := resp.DecodeProp(&getContentLength); err != nil && !internal.IsNotFound(err) {
		return nil, err
	}

	return &AddressObject{
		Path:          path,
		ModTime:       time.Time(getLastMod.LastModified),
		ContentLength: getContentLength.Length,
		ETag:          string(getETag.ETag),
		Card:          cardData.Data,
	}, nil
}

// addressPrecondition translates PutAddressObjectOptions into the
// generic optimistic-concurrency precondition the embedded
// webdav.Client's PutDetailed understands, mirroring caldav's
// calendarPrecondition.
func addressPrecondition(opts *PutAddressObjectOptions) (*webdav.Precondition, error) {
	if opts == nil {
		return nil, nil
	}
	switch {
	case opts.IfMatch != "" && opts.IfNoneMatch != "":
		return nil, fmt.Errorf("carddav: cannot set both IfMatch and IfNoneMatch")
	case opts.IfMatch != "":
		return &webdav.Precondition{IfMatch: opts.IfMatch}, nil
	case opts.IfNoneMatch == "*":
		return &webdav.Precondition{IfNoneMatchAny: true}, nil
	case opts.IfNoneMatch != "":
		return nil, fmt.Errorf("carddav: IfNoneMatch only supports \"*\"")
	}
	return nil, nil
}

// classifyConditionalWriteError mirrors caldav's helper of the same
// name: a 412 drawn by If-None-Match: * means the address object the
// caller meant to create already exists (ErrConflict); one drawn by
// If-Match means it changed since the caller last read its ETag
// (ErrPreconditionFailed).
func classifyConditionalWriteError(err error, opts *PutAddressObjectOptions) error {
	if err == nil {
		return nil
	}
	classified, ok := webdav.AsError(err)
	if !ok || classified.Code != webdav.ErrPreconditionFailed {
		return err
	}
	if opts != nil && opts.IfNoneMatch == "*" {
		classified.Code = webdav.ErrConflict
		return fmt.Errorf("carddav: address object already exists: %w", classified)
	}
	return fmt.Errorf("carddav: precondition failed - resource ETag mismatch or conflict: %w", classified)
}

func classifyDeleteError(err error, path string) error {
	if err == nil {
		return nil
	}
	classified, ok := webdav.AsError(err)
	if !ok {
		return err
	}
	switch classified.Code {
	case webdav.ErrPreconditionFailed:
		return fmt.Errorf("carddav: precondition failed - resource ETag mismatch, resource may have been modified: %w", classified)
	case webdav.ErrNotFound:
		return fmt.Errorf("carddav: address object not found at path: %s: %w", path, classified)
	default:
		return classified
	}
}

func populateAddressObject(ao *AddressObject, h http.Header) error {
	if loc := h.Get("Location"); loc != "" {
		u, err := url.Parse(loc)
		if err != nil {
			return err
		}
		ao.Path = u.Path
	}
	ao.ETag = webdav.ParseETag(h.Get("ETag"))
	if contentLength := h.Get("Content-Length"); contentLength != "" {
		n, err := strconv.ParseInt(contentLength, 10, 64)
		if err != nil {
			return err
		}
		ao.ContentLength = n
	}
	if lastModified := h.Get("Last-Modified"); lastModified != "" {
		t, err := http.ParseTime(lastModified)
		if err != nil {
			return err
		}
		ao.ModTime = t
	}

	return nil
}

func sameCollectionPath(a, b string) bool {
	if a == b {
		return true
	}
	return normalizeCollectionPath(a) == normalizeCollectionPath(b)
}

func normalizeCollectionPath(p string) string {
	if p == "" || p == "/" {
		return p
	}
	return strings.TrimRight(p, "/")
}

func encodeFilter(q *AddressBookQuery) (*filter, error) {
	encoded := filter{}
	if q.AnyOf {
		encoded.Test = "anyof"
	} else {
		encoded.Test = "allof"
	}

	for _, pf := range q.PropFilters {
		encodedProp, err := encodePropFilter(&pf)
		if err != nil {
			return nil, err
		}
		encoded.PropFilters = append(encoded.PropFilters, *encodedProp)
	}

	return &encoded, nil
}

func encodePropFilter(pf *PropFilter) (*propFilter, error) {
	encoded := propFilter{Name: pf.Name}

	if pf.IsNotDefined {
		encoded.IsNotDefined = &struct{}{}
	}

	if pf.TextMatch != nil {
		encoded.TextMatch = &textMatch{
			Text:            pf.TextMatch.Text,
			NegateCondition: negateCondition(pf.TextMatch.NegateCondition),
			MatchType:       pf.TextMatch.MatchType,
		}
	}

	for _, paramF := range pf.ParamFilter {
		encodedParam, err := encodeParamFilter(&paramF)
		if err != nil {
			return nil, err
		}
		encoded.ParamFilter = append(encoded.ParamFilter, *encodedParam)
	}

	return &encoded, nil
}

func encodeParamFilter(pf *ParamFilter) (*paramFilter, error) {
	encoded := paramFilter{Name: pf.Name}

	if pf.IsNotDefined {
		encoded.IsNotDefined = &struct{}{}
	}

	if pf.TextMatch != nil {
		encoded.TextMatch = &textMatch{
			Text:            pf.TextMatch.Text,
			NegateCondition: negateCondition(pf.TextMatch.NegateCondition),
			MatchType:       pf.TextMatch.MatchType,
		}
	}

	return &encoded, nil
}
