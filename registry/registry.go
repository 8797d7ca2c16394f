// Package registry manages named, versioned cache stores. One Store exists
// per deployed cache version; stores are disjoint and never shared across
// versions, so deleting one is safe while reads are in flight against
// others.
//
// The registry replaces any ambient "current cache" global: coordinators
// receive a Registry explicitly, and tests inject an in-memory one.
package registry

import "context"

// Store is one versioned key/value store mapping a request identity to a
// previously captured response (encoded by the caller).
type Store interface {
	// Get returns (value, true, nil) on hit; (nil, false, nil) on miss.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value, overwriting any existing entry for key. Returns
	// ok=false when the backend rejected the write under pressure.
	Set(ctx context.Context, key string, value []byte) (ok bool, err error)

	// Del removes a key (best-effort).
	Del(ctx context.Context, key string) error

	// Keys lists the keys written to this store.
	Keys(ctx context.Context) ([]string, error)
}

// Registry owns the mapping from store name ("<app>-v<gen>") to Store.
type Registry interface {
	// Open returns the store for name, creating it if absent.
	Open(ctx context.Context, name string) (Store, error)

	// Delete evicts the named store and all its entries. Deleting an
	// unknown name is a no-op.
	Delete(ctx context.Context, name string) error

	// Names lists the stores currently held, sorted.
	Names(ctx context.Context) ([]string, error)

	// Close releases all resources.
	Close(ctx context.Context) error
}
