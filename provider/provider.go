// Package provider defines the per-store byte storage abstraction used by
// the registry.
//
// Implementations MUST be byte-for-byte transparent: Get must return exactly
// the same []byte that was previously passed to Set for a key (no
// prepended/appended metadata, no re-encoding, no mutation). If a store
// performs internal transforms (e.g., compression), they MUST be fully
// reversed so that the bytes returned by Get are identical to the bytes
// provided to Set.
//
// Entries carry no per-entry TTL: the delivery layer decides staleness by
// policy, and whole stores are evicted at version cutover. Backends with a
// mandatory global expiry window (e.g. BigCache's LifeWindow) should be
// configured with a window comfortably longer than a deployment cycle.
package provider

import "context"

// Provider is a minimal byte store backing one versioned cache store.
// Must be safe for concurrent use.
type Provider interface {
	// Get returns (value, true, nil) on hit; (nil, false, nil) on miss.
	// If an IO/remote error happens, return (nil, false, err).
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value. May ignore cost if unsupported. Returns ok=false
	// when the store rejected the write under pressure.
	Set(ctx context.Context, key string, value []byte, cost int64) (ok bool, err error)

	// Del removes a key (best-effort).
	Del(ctx context.Context, key string) error

	// Purge drops every entry. Used when the owning versioned store is
	// evicted.
	Purge(ctx context.Context) error

	// Close releases resources.
	Close(ctx context.Context) error
}
