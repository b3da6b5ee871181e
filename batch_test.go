package webdav

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
)

func TestBatchPreservesOrder(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("ETag", `"`+strings.TrimPrefix(r.URL.Path, "/")+`"`)
		w.WriteHeader(http.StatusCreated)
	}))
	defer ts.Close()

	client, err := NewClient(nil, ts.URL)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	const n = 20
	reqs := make([]BatchRequest, n)
	for i := range reqs {
		reqs[i] = BatchRequest{
			Method: http.MethodPut,
			Path:   fmt.Sprintf("/item-%d", i),
			Body:   strings.NewReader("body"),
		}
	}

	results := client.Batch(context.Background(), reqs, 4)
	if len(results) != n {
		t.Fatalf("got %d results, want %d", len(results), n)
	}
	for i, res := range results {
		if res.Err != nil {
			t.Fatalf("result %d: unexpected error: %v", i, res.Err)
		}
		want := fmt.Sprintf("item-%d", i)
		if res.ETag != want {
			t.Fatalf("result %d: ETag = %q, want %q (results must align with request order)", i, res.ETag, want)
		}
	}
}

func TestBatchBoundsConcurrency(t *testing.T) {
	const limit = 3

	var (
		mu      sync.Mutex
		inFlight int
		maxSeen  int
	)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		inFlight++
		if inFlight > maxSeen {
			maxSeen = inFlight
		}
		mu.Unlock()

		// Give other goroutines a chance to pile up before responding.
		var x int64
		for i := 0; i < 2_000_000; i++ {
			x = atomic.AddInt64(&x, 1)
		}

		mu.Lock()
		inFlight--
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ts.Close()

	client, err := NewClient(nil, ts.URL)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	reqs := make([]BatchRequest, 15)
	for i := range reqs {
		reqs[i] = BatchRequest{Method: http.MethodDelete, Path: fmt.Sprintf("/x-%d", i)}
	}

	client.Batch(context.Background(), reqs, limit)

	mu.Lock()
	defer mu.Unlock()
	if maxSeen > limit {
		t.Fatalf("observed %d concurrent requests, want at most %d", maxSeen, limit)
	}
}

func TestBatchReportsPerItemErrors(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "bad") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ts.Close()

	client, err := NewClient(nil, ts.URL)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	reqs := []BatchRequest{
		{Method: http.MethodDelete, Path: "/good-1"},
		{Method: http.MethodDelete, Path: "/bad-1"},
		{Method: http.MethodDelete, Path: "/good-2"},
	}

	results := client.Batch(context.Background(), reqs, 0)
	if results[0].Err != nil || results[2].Err != nil {
		t.Fatalf("unexpected errors on good requests: %v, %v", results[0].Err, results[2].Err)
	}
	if results[1].Err == nil {
		t.Fatal("expected error for bad request, one failure must not sink the batch")
	}
}
