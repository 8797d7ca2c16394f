// Package generation tracks the deployment generation counter per app.
// Generations must increase monotonically across deployments: activation
// identifies retired stores purely by name inequality, so a reused number
// would make an old store indistinguishable from the active one.
package generation

import "context"

// Store abstracts where generation counters live.
// Use NewLocal (default) for in-process counters, or NewRedis for counters
// that survive restarts and are shared across replicas.
type Store interface {
	// Current returns the latest minted generation; never minted => 0.
	Current(ctx context.Context, app string) (uint64, error)
	// Next atomically increments and returns the new generation.
	Next(ctx context.Context, app string) (uint64, error)
	// Close releases resources (no-op ok).
	Close(context.Context) error
}
