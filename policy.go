package offcache

import (
	"context"

	"github.com/unkn0wn-root/offcache/internal/wire"
	"github.com/unkn0wn-root/offcache/registry"
)

// execute routes req through the policy for its class. The three policies
// run against one versioned store with no mutual exclusion between
// unrelated requests; concurrent writes to the same key are last-write-wins.
func (a *Agent) execute(ctx context.Context, ref *storeRef, req Request) (*Response, error) {
	switch a.cls.Classify(req) {
	case ClassModelAsset:
		return a.cacheFirst(ctx, ref, req)
	case ClassNavigation:
		return a.networkFirst(ctx, ref, req)
	default:
		return a.staleWhileRevalidate(ctx, ref, req)
	}
}

// cacheFirst serves model assets: a hit returns immediately with no network
// access; a miss performs exactly one fetch and writes through on success.
// Fetch failures propagate unmodified - an uncached model shard with no
// connectivity is a real failure, not something to paper over.
func (a *Agent) cacheFirst(ctx context.Context, ref *storeRef, req Request) (*Response, error) {
	key := req.Key()
	if resp, ok := a.readEntry(ctx, ref, key); ok {
		resp.Source = SourceCache
		return resp, nil
	}

	resp, err := a.fetch.Fetch(ctx, req)
	if err != nil {
		return nil, err
	}
	// write-through; an entry is only written on miss, so a stored model
	// asset is never replaced within a generation
	if _, err := a.writeEntry(ctx, ref.store, ref.ver.Name(), key, resp); err != nil {
		a.log.Warn("write-through failed", Fields{"store": ref.ver.Name(), "key": key, "err": err})
	}
	resp.Source = SourceNetwork
	return resp, nil
}

// networkFirst serves navigations: the freshest UI always wins when the
// network answers, and the response is not written back - offline
// navigation is served from install-time snapshots only. On failure the
// last cached entry for the exact key is the fallback; with no fallback the
// fetch error propagates.
func (a *Agent) networkFirst(ctx context.Context, ref *storeRef, req Request) (*Response, error) {
	resp, ferr := a.fetch.Fetch(ctx, req)
	if ferr == nil {
		resp.Source = SourceNetwork
		return resp, nil
	}

	key := req.Key()
	if cached, ok := a.readEntry(ctx, ref, key); ok {
		a.hooks.StaleServed(key, "network_first")
		a.log.Debug("offline fallback", Fields{"store": ref.ver.Name(), "key": key})
		cached.Source = SourceStale
		return cached, nil
	}
	return nil, ferr
}

// staleWhileRevalidate serves everything else: a hit returns the cached
// entry immediately and refreshes it in the background for next time; the
// refresh outcome is never surfaced to this caller. A miss falls through to
// a plain fetch, persisted only when PersistRevalidateMiss is set.
func (a *Agent) staleWhileRevalidate(ctx context.Context, ref *storeRef, req Request) (*Response, error) {
	key := req.Key()
	if resp, ok := a.readEntry(ctx, ref, key); ok {
		a.hooks.StaleServed(key, "swr")
		a.revalidateAsync(ref, req, key)
		resp.Source = SourceCache
		return resp, nil
	}

	resp, err := a.fetch.Fetch(ctx, req)
	if err != nil {
		return nil, err
	}
	if a.persistMiss {
		if _, werr := a.writeEntry(ctx, ref.store, ref.ver.Name(), key, resp); werr != nil {
			a.log.Warn("post-miss persist failed", Fields{"store": ref.ver.Name(), "key": key, "err": werr})
		}
	}
	resp.Source = SourceNetwork
	return resp, nil
}

// revalidateAsync refreshes key in the background. Detached from the
// request context (no cancellation once issued); concurrent refreshes of
// the same key collapse into one fetch.
func (a *Agent) revalidateAsync(ref *storeRef, req Request, key string) {
	a.bg.Add(1)
	go func() {
		defer a.bg.Done()
		sfKey := ref.ver.Name() + "|" + key
		_, _, _ = a.reval.Do(sfKey, func() (any, error) {
			ctx := context.Background()
			resp, err := a.fetch.Fetch(ctx, req)
			if err != nil {
				a.hooks.RevalidateFailed(key, err)
				a.log.Debug("revalidate failed", Fields{"key": key, "err": err})
				return nil, nil
			}
			if _, err := a.writeEntry(ctx, ref.store, ref.ver.Name(), key, resp); err != nil {
				a.log.Warn("revalidate write failed", Fields{"key": key, "err": err})
			}
			return nil, nil
		})
	}()
}

// readEntry loads and decodes key from the store. Read errors are treated
// as misses; corrupt entries are deleted (self-heal) and missed.
func (a *Agent) readEntry(ctx context.Context, ref *storeRef, key string) (*Response, bool) {
	raw, ok, err := ref.store.Get(ctx, key)
	if err != nil {
		a.log.Warn("store read error", Fields{"store": ref.ver.Name(), "key": key, "err": err})
		return nil, false
	}
	if !ok {
		return nil, false
	}
	e, err := wire.Decode(raw, a.hcodec, a.bcodec)
	if err != nil {
		_ = ref.store.Del(ctx, key) // self-heal corrupt
		a.hooks.SelfHeal(ref.ver.Name(), key, "corrupt")
		return nil, false
	}
	return &Response{Status: e.Status, Header: e.Header, Body: e.Body}, true
}

// writeEntry frames resp and stores it under key. ok=false means the store
// rejected the write under pressure; only install treats that as fatal.
func (a *Agent) writeEntry(ctx context.Context, store registry.Store, name, key string, resp *Response) (bool, error) {
	b, err := wire.Encode(wire.Entry{
		Status: resp.Status,
		Header: resp.Header,
		Body:   resp.Body,
	}, a.hcodec, a.bcodec)
	if err != nil {
		return false, err
	}
	ok, err := store.Set(ctx, key, b)
	if err != nil {
		return false, err
	}
	if !ok {
		a.hooks.SetRejected(name, key)
		a.log.Debug("set rejected by store (pressure)", Fields{"store": name, "key": key})
	}
	return ok, nil
}
