package sloghooks

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync/atomic"

	"github.com/unkn0wn-root/offcache"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	StaleServedEvery uint64
	RevalidateEvery  uint64
	// Optional key redactor. Defaults to SHA-256 prefix.
	Redact func(string) string
}

// Hooks forwards agent events to slog, with sampling on the chatty ones.
type Hooks struct {
	l    *slog.Logger
	opts Options

	staleCtr atomic.Uint64
	revalCtr atomic.Uint64
}

var _ offcache.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(k string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(k)
	}
	sum := sha256.Sum256([]byte(k))
	return hex.EncodeToString(sum[:8])
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) StaleServed(key, policy string) {
	if h.l == nil || !sample(h.opts.StaleServedEvery, &h.staleCtr) {
		return
	}
	h.l.Info("offcache.stale_served",
		"key", h.redact(key),
		"policy", policy)
}

func (h *Hooks) RevalidateFailed(key string, err error) {
	if h.l == nil || !sample(h.opts.RevalidateEvery, &h.revalCtr) {
		return
	}
	h.l.Debug("offcache.revalidate_failed",
		"key", h.redact(key),
		"err", err)
}

func (h *Hooks) SelfHeal(storeName, key, reason string) {
	if h.l == nil {
		return
	}
	h.l.Debug("offcache.self_heal",
		"store", storeName,
		"key", h.redact(key),
		"reason", reason)
}

func (h *Hooks) SetRejected(storeName, key string) {
	if h.l == nil {
		return
	}
	h.l.Warn("offcache.set_rejected",
		"store", storeName,
		"key", h.redact(key))
}

func (h *Hooks) StoreEvicted(name string) {
	if h.l == nil {
		return
	}
	h.l.Info("offcache.store_evicted", "store", name)
}

func (h *Hooks) GenerationError(app string, err error) {
	if h.l == nil {
		return
	}
	h.l.Error("offcache.generation_error",
		"app", app,
		"err", err)
}

func (h *Hooks) TakeoverDeferred(name string, clients int) {
	if h.l == nil {
		return
	}
	h.l.Info("offcache.takeover_deferred",
		"store", name,
		"clients", clients)
}
