// Package httpadapter wires the host-agnostic Interceptor to plain HTTP:
// every incoming request becomes an intercepted request, and the policy
// outcome is written back. It is the thin platform layer; classification,
// policies, and lifecycle live behind the Interceptor.
package httpadapter

import (
	"net/http"
	"strings"

	"github.com/unkn0wn-root/offcache"
)

// SourceHeader carries the policy outcome ("network", "cache", "stale") on
// every proxied response.
const SourceHeader = "X-Offcache-Source"

// Handler is an http.Handler in front of an Interceptor.
type Handler struct {
	ic  offcache.Interceptor
	log offcache.Logger
}

var _ http.Handler = (*Handler)(nil)

func New(ic offcache.Interceptor, log offcache.Logger) *Handler {
	if log == nil {
		log = offcache.NopLogger{}
	}
	return &Handler{ic: ic, log: log}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	req := offcache.Request{
		Method:   r.Method,
		URL:      r.URL.RequestURI(),
		Navigate: isNavigation(r),
		Header:   r.Header.Clone(),
	}

	resp, err := h.ic.OnRequest(r.Context(), req)
	if err != nil {
		h.log.Warn("request failed", offcache.Fields{"key": req.Key(), "err": err})
		http.Error(w, "offline and not cached", http.StatusBadGateway)
		return
	}

	hdr := w.Header()
	for k, vs := range resp.Header {
		for _, v := range vs {
			hdr.Add(k, v)
		}
	}
	hdr.Set(SourceHeader, resp.Source.String())
	w.WriteHeader(resp.Status)
	if _, err := w.Write(resp.Body); err != nil {
		h.log.Debug("response write failed", offcache.Fields{"key": req.Key(), "err": err})
	}
}

// isNavigation detects top-level document loads: Sec-Fetch-Mode when the
// client sends it, otherwise a GET asking for HTML.
func isNavigation(r *http.Request) bool {
	if mode := r.Header.Get("Sec-Fetch-Mode"); mode != "" {
		return mode == "navigate"
	}
	return r.Method == http.MethodGet &&
		strings.Contains(r.Header.Get("Accept"), "text/html")
}
