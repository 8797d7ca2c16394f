package offcache

import "net/http"

// Request is the host-agnostic shape of an intercepted request. A platform
// adapter (see httpadapter) builds one from whatever host API is available.
type Request struct {
	Method string // empty => GET
	URL    string // as requested; case-sensitive, query string significant

	// Navigate marks full-page navigation intent (top-level document load).
	Navigate bool

	// Header is forwarded on network fetches. It is not part of the
	// request identity.
	Header http.Header
}

// Key returns the request identity used as the store key:
// "<METHOD> <URL>".
func (r Request) Key() string {
	m := r.Method
	if m == "" {
		m = http.MethodGet
	}
	return m + " " + r.URL
}

// Source tells where a response came from.
type Source int

const (
	// SourceNetwork: fetched from the network on this request.
	SourceNetwork Source = iota
	// SourceCache: served from the active store with no network attempt.
	SourceCache
	// SourceStale: served from the store after the network failed.
	SourceStale
)

func (s Source) String() string {
	switch s {
	case SourceNetwork:
		return "network"
	case SourceCache:
		return "cache"
	case SourceStale:
		return "stale"
	default:
		return "unknown"
	}
}

// Response is a captured or freshly fetched response. Bodies are held in
// full; entries carry no expiry metadata - staleness is policy, not state.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
	Source Source
}
