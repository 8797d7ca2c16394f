package offcache

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Fetcher performs network fetches on behalf of the agent. No timeout is
// enforced by this layer; the underlying transport's own timeout applies,
// if any. Implementations must be safe for concurrent use.
type Fetcher interface {
	Fetch(ctx context.Context, req Request) (*Response, error)
}

// HTTPFetcher fetches over net/http. Relative URLs are resolved against
// Base. Error statuses (4xx/5xx) are returned as responses, not errors -
// only transport failures error.
type HTTPFetcher struct {
	// Client defaults to http.DefaultClient.
	Client *http.Client
	// Base is prepended to relative URLs, e.g. "http://127.0.0.1:5000".
	Base string
}

var _ Fetcher = (*HTTPFetcher)(nil)

func (f *HTTPFetcher) Fetch(ctx context.Context, req Request) (*Response, error) {
	u := req.URL
	if f.Base != "" && strings.HasPrefix(u, "/") {
		u = strings.TrimSuffix(f.Base, "/") + u
	}

	method := coalesce(req.Method, http.MethodGet)
	hreq, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return nil, fmt.Errorf("offcache: build request %q: %w", u, err)
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			hreq.Header.Add(k, v)
		}
	}

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	hresp, err := client.Do(hreq)
	if err != nil {
		return nil, err
	}
	defer hresp.Body.Close()

	body, err := io.ReadAll(hresp.Body)
	if err != nil {
		return nil, fmt.Errorf("offcache: read body %q: %w", u, err)
	}
	return &Response{
		Status: hresp.StatusCode,
		Header: hresp.Header.Clone(),
		Body:   body,
		Source: SourceNetwork,
	}, nil
}
