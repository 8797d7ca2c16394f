package generation

import (
	"context"
	"sync"
)

// Local keeps generation counters in-process (default). Counters reset with
// the process; pair with a persistent registry only if the registry is also
// wiped on restart, or use NewRedis.
type Local struct {
	mu   sync.RWMutex
	gens map[string]uint64
}

var _ Store = (*Local)(nil)

func NewLocal() *Local {
	return &Local{gens: make(map[string]uint64)}
}

func (s *Local) Current(_ context.Context, app string) (uint64, error) {
	s.mu.RLock()
	g := s.gens[app]
	s.mu.RUnlock()
	return g, nil
}

func (s *Local) Next(_ context.Context, app string) (uint64, error) {
	s.mu.Lock()
	s.gens[app]++
	g := s.gens[app]
	s.mu.Unlock()
	return g, nil
}

func (s *Local) Close(_ context.Context) error { return nil }
