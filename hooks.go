package offcache

// Hooks lightweight callbacks for high-signal events.
// Implementations MUST be cheap and non-blocking.
// The agent calls them on hot paths.
type Hooks interface {
	// A cached entry was returned after (or instead of) the network.
	// policy ∈ {"network_first", "swr"}
	StaleServed(key, policy string)

	// A background revalidation fetch failed. The caller already received
	// the cached entry; this is observability only.
	RevalidateFailed(key string, err error)

	// A cached entry failed to decode and was deleted on read.
	// reason ∈ {"corrupt", "entry_decode"}
	SelfHeal(storeName, key, reason string)

	// Store returned ok=false on Set (backpressure/eviction).
	SetRejected(storeName, key string)

	// A retired versioned store was deleted.
	StoreEvicted(name string)

	// Generation counter errors (mint or read).
	GenerationError(app string, err error)

	// Activation left a retired store alive because clients are still
	// pinned to it (deferred takeover).
	TakeoverDeferred(name string, clients int)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) StaleServed(string, string)      {}
func (NopHooks) RevalidateFailed(string, error)  {}
func (NopHooks) SelfHeal(string, string, string) {}
func (NopHooks) SetRejected(string, string)      {}
func (NopHooks) StoreEvicted(string)             {}
func (NopHooks) GenerationError(string, error)   {}
func (NopHooks) TakeoverDeferred(string, int)    {}
