// Package asynchook decouples hook sinks from the request path: events are
// queued and delivered by background workers, and dropped when the queue is
// full.
//
// usage:
//
//	raw := sloghooks.New(slog.Default(), sloghooks.Options{
//	    StaleServedEvery: 10, // sample: ~every 10th stale serve
//	})
//
//	hooks := asynchook.New(raw, 1, 1000) // 1 worker; queue 1000 events
//	defer hooks.Close()
//
//	agent, _ := offcache.New(offcache.Options{
//	    App:      "leafdoc",
//	    Manifest: m,
//	    Hooks:    hooks, // or `raw` if you don't want async
//	})
package asynchook

import (
	"sync"

	"github.com/unkn0wn-root/offcache"
)

type Hooks struct {
	inner offcache.Hooks
	q     chan func()
	wg    sync.WaitGroup
	once  sync.Once
}

var _ offcache.Hooks = (*Hooks)(nil)

func New(inner offcache.Hooks, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

func (h *Hooks) Close() {
	h.once.Do(func() {
		close(h.q)
		h.wg.Wait()
	})
}

func (h *Hooks) try(f func()) {
	select {
	case h.q <- f:
	default: // drop
	}
}

func (h *Hooks) StaleServed(key, policy string) { h.try(func() { h.inner.StaleServed(key, policy) }) }
func (h *Hooks) StoreEvicted(name string)       { h.try(func() { h.inner.StoreEvicted(name) }) }
func (h *Hooks) RevalidateFailed(key string, err error) {
	h.try(func() { h.inner.RevalidateFailed(key, err) })
}
func (h *Hooks) SelfHeal(storeName, key, reason string) {
	h.try(func() { h.inner.SelfHeal(storeName, key, reason) })
}
func (h *Hooks) SetRejected(storeName, key string) {
	h.try(func() { h.inner.SetRejected(storeName, key) })
}
func (h *Hooks) GenerationError(app string, err error) {
	h.try(func() { h.inner.GenerationError(app, err) })
}
func (h *Hooks) TakeoverDeferred(name string, clients int) {
	h.try(func() { h.inner.TakeoverDeferred(name, clients) })
}
