package carddav

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	webdav "github.com/yinjun1991/caldav-client-go"
	"github.com/yinjun1991/caldav-client-go/internal"
)

const MIMEType = "text/vcard"

// DiscoverContextURL performs a DNS-based CardDAV service discovery as
// described in RFC 6352 section 11. It returns the URL to the CardDAV server.
func DiscoverContextURL(ctx context.Context, domain string) (string, error) {
	return internal.DiscoverContextURL(ctx, "carddav", domain)
}

// Client provides access to a remote CardDAV server.
type Client struct {
	*webdav.Client

	ic *internal.Client
}

func NewClient(c webdav.HTTPClient, endpoint string) (*Client, error) {
	wc, err := webdav.NewClient(c, endpoint)
	if err != nil {
		return nil, err
	}
	// Resolve through wc's own HTTPClient (which, when c was nil, is the
	// transport-backed default NewClient built) rather than the nil
	// received here, so PROPFIND/REPORT traffic shares the same pooled,
	// compression-aware transport as PUT/DELETE.
	ic, err := internal.NewClient(wc.HTTPClient(), endpoint)
	if err != nil {
		return nil, err
	}
	return &Client{wc, ic}, nil
}

// FindAddressBookHomeSet finds the path to the current user's addressbook
// home set.
func (c *Client) FindAddressBookHomeSet(ctx context.Context, principal string) (string, error) {
	propfind := internal.NewPropNamePropFind(AddressbookHomeSetName)
	resp, err := c.ic.PropFindFlat(ctx, principal, propfind)
	if err != nil {
		return "", err
	}

	var prop addressbookHomeSet
	if err := resp.DecodeProp(&prop); err != nil {
		return "", err
	}

	return prop.Href.Path, nil
}

// FindAddressBooks finds the addressbooks stored inside homeSet.
func (c *Client) FindAddressBooks(ctx context.Context, homeSet string) ([]AddressBook, error) {
	ms, err := c.ic.PropFind(ctx, homeSet, internal.DepthOne, addressbookPropFind)
	if err != nil {
		return nil, err
	}

	l := make([]AddressBook, 0, len(ms.Responses))
	for _, resp := range ms.Responses {
		ab, err := parseAddressBookFromResponse(&resp)
		if err != nil {
			return nil, err
		}
		if ab == nil {
			continue
		}
		if ab.MaxResourceSize < 0 {
			return nil, fmt.Errorf("carddav: max-resource-size must be a positive integer")
		}
		l = append(l, *ab)
	}

	return l, nil
}

// GetAddressBook retrieves the properties of a single addressbook
// collection at the given path.
func (c *Client) GetAddressBook(ctx context.Context, path string) (*AddressBook, error) {
	resp, err := c.ic.PropFindFlat(ctx, path, addressbookPropFind)
	if err != nil {
		return nil, fmt.Errorf("carddav: failed to get addressbook properties: %w", err)
	}

	ab, err := parseAddressBookFromResponse(resp)
	if err != nil {
		return nil, fmt.Errorf("carddav: failed to parse addressbook response: %w", err)
	}
	if ab == nil {
		return nil, fmt.Errorf("carddav: resource at path %s is not an addressbook collection", path)
	}

	return ab, nil
}

func (c *Client) GetAddressObject(ctx context.Context, path string) (*AddressObject, error) {
	req, err := c.ic.NewRequest(http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", MIMEType)

	resp, err := c.ic.Do(req.WithContext(ctx))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	mediaType, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(mediaType, MIMEType) {
		return nil, fmt.Errorf("carddav: expected Content-Type %q, got %q", MIMEType, mediaType)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	ao := &AddressObject{
		Path: resp.Request.URL.Path,
		Card: body,
	}
	if err := populateAddressObject(ao, resp.Header); err != nil {
		return nil, err
	}
	return ao, nil
}

func (c *Client) PutAddressObject(ctx context.Context, path string, body io.Reader, opts *PutAddressObjectOptions) (*AddressObject, error) {
	precond, err := addressPrecondition(opts)
	if err != nil {
		return nil, err
	}

	_, header, err := c.Client.PutDetailed(ctx, path, body, MIMEType, precond)
	if err != nil {
		return nil, classifyConditionalWriteError(err, opts)
	}

	ao := &AddressObject{Path: path}
	if err := populateAddressObject(ao, header); err != nil {
		return nil, err
	}
	return ao, nil
}

// PutAddressObjectSimple provides a simple interface for PutAddressObject
// without options.
func (c *Client) PutAddressObjectSimple(ctx context.Context, path string, body io.Reader) (*AddressObject, error) {
	return c.PutAddressObject(ctx, path, body, nil)
}

func (c *Client) DeleteAddressObject(ctx context.Context, path string, opts *DeleteAddressObjectOptions) error {
	var precond *webdav.Precondition
	if opts != nil && opts.IfMatch != "" {
		precond = &webdav.Precondition{IfMatch: opts.IfMatch}
	}

	if err := c.Client.Delete(ctx, path, precond); err != nil {
		return classifyDeleteError(err, path)
	}
	return nil
}

// DeleteAddressObjectSimple provides a simple interface for
// DeleteAddressObject without options.
func (c *Client) DeleteAddressObjectSimple(ctx context.Context, path string) error {
	return c.DeleteAddressObject(ctx, path, nil)
}

// AddressBookMultiget performs an addressbook-multiget REPORT request to
// fetch multiple address objects by their paths in a single request.
func (c *Client) AddressBookMultiget(ctx context.Context, paths []string, dataReq *AddressDataRequest) ([]*AddressObject, error) {
	if len(paths) == 0 {
		return nil, nil
	}

	hrefs := make([]internal.Href, len(paths))
	for i, path := range paths {
		hrefs[i] = internal.Href{Path: path}
	}

	propReq, err := encodeAddressDataReq(dataReq)
	if err != nil {
		return nil, err
	}

	multiget := &addressbookMultiget{
		Hrefs: hrefs,
		Prop:  propReq,
	}

	basePath := paths[0]
	if idx := strings.LastIndex(basePath, "/"); idx > 0 {
		basePath = basePath[:idx+1]
	}

	depth := internal.DepthOne
	ms, err := c.ic.ReportDepth(ctx, basePath, &depth, multiget)
	if err != nil {
		return nil, err
	}

	objects := make([]*AddressObject, 0, len(ms.Responses))
	for _, resp := range ms.Responses {
		path, err := resp.Path()
		if err != nil {
			return nil, err
		}

		ao, err := decodeAddressObject(resp, path)
		if err != nil {
			return nil, err
		}

		objects = append(objects, ao)
	}

	return objects, nil
}

// AddressBookQueryExec performs an addressbook-query REPORT request to
// search for address objects matching the given filter criteria.
func (c *Client) AddressBookQueryExec(ctx context.Context, path string, query *AddressBookQuery) ([]AddressObject, error) {
	propReq, err := encodeAddressDataReq(&query.DataRequest)
	if err != nil {
		return nil, err
	}

	filterReq, err := encodeFilter(query)
	if err != nil {
		return nil, err
	}

	abQuery := &addressbookQuery{
		Prop:   propReq,
		Filter: *filterReq,
	}
	if query.Limit > 0 {
		abQuery.Limit = &queryLimit{NResults: query.Limit}
	}

	depth := internal.DepthOne
	ms, err := c.ic.ReportDepth(ctx, path, &depth, abQuery)
	if err != nil {
		return nil, err
	}

	objects := make([]AddressObject, 0, len(ms.Responses))
	for _, resp := range ms.Responses {
		respPath, err := resp.Path()
		if err != nil {
			return nil, err
		}

		ao, err := decodeAddressObject(resp, respPath)
		if err != nil {
			return nil, err
		}

		objects = append(objects, *ao)
	}

	return objects, nil
}

// ListAddressObjects lists all address objects in the specified
// addressbook collection. If fetchData is true, their vCard payload is
// fetched too via AddressBookMultiget; otherwise only metadata is returned.
func (c *Client) ListAddressObjects(ctx context.Context, path string, fetchData bool) ([]*AddressObject, error) {
	propfind := internal.NewPropNamePropFind(
		internal.GetETagName,
		internal.GetLastModifiedName,
		internal.GetContentLengthName,
		internal.ResourceTypeName,
	)

	ms, err := c.ic.PropFind(ctx, path, internal.DepthOne, propfind)
	if err != nil {
		return nil, err
	}

	var objectPaths []string
	var objects []*AddressObject

	for _, resp := range ms.Responses {
		respPath, err := resp.Path()
		if err != nil {
			continue
		}

		if sameCollectionPath(respPath, path) {
			continue
		}

		var resType internal.ResourceType
		if err := resp.DecodeProp(&resType); err == nil && len(resType.Raw) > 0 {
			continue
		}

		if fetchData {
			objectPaths = append(objectPaths, respPath)
		} else {
			ao, err := decodeAddressObject(resp, respPath)
			if err != nil {
				continue
			}
			objects = append(objects, ao)
		}
	}

	if fetchData && len(objectPaths) > 0 {
		return c.AddressBookMultiget(ctx, objectPaths, &AddressDataRequest{AllProp: true})
	}

	return objects, nil
}

// SyncAddressBook performs a collection synchronization operation on the
// specified addressbook, as defined in RFC 6578.
func (c *Client) SyncAddressBook(ctx context.Context, path string, query *SyncQuery) (*SyncResponse, error) {
	if query == nil {
		query = &SyncQuery{}
	}

	var limit *internal.Limit
	if query.Limit > 0 {
		limit = &internal.Limit{NResults: uint(query.Limit)}
	}

	propReq, err := encodeAddressDataReq(&AddressDataRequest{AllProp: true})
	if err != nil {
		return nil, err
	}

	ms, err := c.ic.SyncCollection(ctx, path, query.SyncToken, internal.DepthOne, limit, propReq)
	if err != nil {
		return nil, err
	}

	ret := &SyncResponse{SyncToken: ms.SyncToken}
	for _, resp := range ms.Responses {
		p, err := resp.Path()
		if err != nil {
			if err, ok := err.(*internal.HTTPError); ok && err.Code == http.StatusNotFound {
				ret.Deleted = append(ret.Deleted, p)
				continue
			}
			return nil, err
		}

		if sameCollectionPath(p, path) {
			ab, err := parseAddressBookFromResponse(&resp)
			if err != nil {
				return nil, err
			}
			if ab != nil {
				ret.AddressBook = ab
			}
			continue
		}

		ao, err := decodeAddressObject(resp, p)
		if err != nil {
			return nil, err
		}
		ret.Updated = append(ret.Updated, ao)
	}

	return ret, nil
}

// FindCurrentUserPrincipal finds the current user's principal path.
func (c *Client) FindCurrentUserPrincipal(ctx context.Context) (string, error) {
	propfind := internal.NewPropNamePropFind(internal.CurrentUserPrincipalName)

	resp, err := c.ic.PropFindFlat(ctx, "", propfind)
	if err != nil {
		return "", err
	}

	var prop internal.CurrentUserPrincipal
	if err := resp.DecodeProp(&prop); err != nil {
		return "", err
	}
	if prop.Unauthenticated != nil {
		return "", fmt.Errorf("webdav: unauthenticated")
	}

	return prop.Href.Path, nil
}
