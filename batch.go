package webdav

import (
	"context"
	"io"
	"net/http"
	"strconv"

	"golang.org/x/sync/errgroup"
)

// BatchRequest describes a single request to run as part of a Batch
// call.
type BatchRequest struct {
	Method       string
	Path         string
	Body         io.Reader
	ContentType  string
	Precondition *Precondition
}

// BatchResult is the outcome of one BatchRequest. Err is set instead of
// failing the whole batch, so that one bad request doesn't take down
// requests for unrelated resources.
type BatchResult struct {
	StatusCode int
	ETag       string
	Header     http.Header
	Err        error
}

// Batch executes reqs concurrently, bounded by concurrency in-flight
// requests at a time (concurrency <= 0 means unbounded), and returns
// one BatchResult per request, in the same order as reqs regardless of
// completion order.
func (c *Client) Batch(ctx context.Context, reqs []BatchRequest, concurrency int) []BatchResult {
	results := make([]BatchResult, len(reqs))

	var g errgroup.Group
	if concurrency > 0 {
		g.SetLimit(concurrency)
	}

	for i := range reqs {
		i := i
		req := reqs[i]
		g.Go(func() error {
			results[i] = c.runBatchRequest(ctx, req)
			return nil
		})
	}
	g.Wait()

	return results
}

// MultiStatusResult is the outcome of one PROPFIND/REPORT issued by
// PropFindMany/ReportMany: exactly one of MultiStatus or Err is set.
type MultiStatusResult struct {
	MultiStatus *MultiStatus
	Err         error
}

// PropFindMany runs a DAV:propfind request with the same depth and body
// against every path in paths, bounded by maxConcurrency requests
// in-flight at a time (maxConcurrency <= 0 means unbounded). Results are
// returned in the same order as paths regardless of completion order;
// one path's failure is captured as that index's Err rather than
// aborting the rest of the batch.
func (c *Client) PropFindMany(ctx context.Context, paths []string, depth Depth, body *PropFind, maxConcurrency int) []MultiStatusResult {
	return c.multiStatusMany(ctx, paths, maxConcurrency, func(ctx context.Context, path string) (*MultiStatus, error) {
		return c.PropFind(ctx, path, depth, body)
	})
}

// ReportMany is PropFindMany's REPORT analogue: it issues the same
// REPORT body against every path in paths, depth-limited the same way
// Report is.
func (c *Client) ReportMany(ctx context.Context, paths []string, depth *Depth, body interface{}, maxConcurrency int) []MultiStatusResult {
	return c.multiStatusMany(ctx, paths, maxConcurrency, func(ctx context.Context, path string) (*MultiStatus, error) {
		return c.Report(ctx, path, depth, body)
	})
}

func (c *Client) multiStatusMany(ctx context.Context, paths []string, maxConcurrency int, do func(context.Context, string) (*MultiStatus, error)) []MultiStatusResult {
	results := make([]MultiStatusResult, len(paths))

	var g errgroup.Group
	if maxConcurrency > 0 {
		g.SetLimit(maxConcurrency)
	}

	for i := range paths {
		i := i
		path := paths[i]
		g.Go(func() error {
			ms, err := do(ctx, path)
			results[i] = MultiStatusResult{MultiStatus: ms, Err: err}
			return nil
		})
	}
	g.Wait()

	return results
}

func (c *Client) runBatchRequest(ctx context.Context, br BatchRequest) BatchResult {
	req, err := c.ic.NewRequest(br.Method, br.Path, br.Body)
	if err != nil {
		return BatchResult{Err: err}
	}
	if br.ContentType != "" {
		req.Header.Set("Content-Type", br.ContentType)
	}
	if br.Precondition != nil {
		if err := br.Precondition.apply(req); err != nil {
			return BatchResult{Err: err}
		}
	}

	resp, err := c.ic.Do(req.WithContext(ctx))
	if err != nil {
		return BatchResult{Err: err}
	}
	defer resp.Body.Close()

	result := BatchResult{StatusCode: resp.StatusCode, Header: resp.Header}
	if raw := resp.Header.Get("ETag"); raw != "" {
		if unquoted, err := strconv.Unquote(raw); err == nil {
			result.ETag = unquoted
		} else {
			result.ETag = raw
		}
	}
	return result
}
