package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/unkn0wn-root/offcache/provider"
)

// Factory builds the byte-store backend for one versioned store.
// See provider/bigcache, provider/ristretto, provider/sqlite.
type Factory func(name string) (provider.Provider, error)

// Local is an in-process Registry. Each opened store gets its own backend
// from the factory; eviction purges and closes that backend.
type Local struct {
	mu      sync.RWMutex
	factory Factory
	stores  map[string]*localStore
	closed  bool
}

var _ Registry = (*Local)(nil)

// NewLocal returns a Local registry. A nil factory uses a plain in-memory
// map backend.
func NewLocal(factory Factory) *Local {
	if factory == nil {
		factory = func(string) (provider.Provider, error) {
			return newMemoryProvider(), nil
		}
	}
	return &Local{
		factory: factory,
		stores:  make(map[string]*localStore),
	}
}

func (l *Local) Open(_ context.Context, name string) (Store, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, fmt.Errorf("registry: closed")
	}
	if s, ok := l.stores[name]; ok {
		return s, nil
	}
	p, err := l.factory(name)
	if err != nil {
		return nil, fmt.Errorf("registry: open %q: %w", name, err)
	}
	s := &localStore{
		name: name,
		p:    p,
		keys: make(map[string]struct{}),
	}
	l.stores[name] = s
	return s, nil
}

func (l *Local) Delete(ctx context.Context, name string) error {
	l.mu.Lock()
	s, ok := l.stores[name]
	delete(l.stores, name)
	l.mu.Unlock()
	if !ok {
		return nil
	}
	if err := s.p.Purge(ctx); err != nil {
		return fmt.Errorf("registry: purge %q: %w", name, err)
	}
	return s.p.Close(ctx)
}

func (l *Local) Names(_ context.Context) ([]string, error) {
	l.mu.RLock()
	out := make([]string, 0, len(l.stores))
	for name := range l.stores {
		out = append(out, name)
	}
	l.mu.RUnlock()
	sort.Strings(out)
	return out, nil
}

func (l *Local) Close(ctx context.Context) error {
	l.mu.Lock()
	stores := l.stores
	l.stores = make(map[string]*localStore)
	l.closed = true
	l.mu.Unlock()

	var first error
	for _, s := range stores {
		if err := s.p.Close(ctx); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// localStore wraps a provider with a key index. Backends like Ristretto
// cannot enumerate keys, so the index is kept here.
type localStore struct {
	name string
	p    provider.Provider

	mu   sync.RWMutex
	keys map[string]struct{}
}

var _ Store = (*localStore)(nil)

func (s *localStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return s.p.Get(ctx, key)
}

func (s *localStore) Set(ctx context.Context, key string, value []byte) (bool, error) {
	ok, err := s.p.Set(ctx, key, value, int64(len(value)))
	if err != nil || !ok {
		return ok, err
	}
	s.mu.Lock()
	s.keys[key] = struct{}{}
	s.mu.Unlock()
	return true, nil
}

func (s *localStore) Del(ctx context.Context, key string) error {
	s.mu.Lock()
	delete(s.keys, key)
	s.mu.Unlock()
	return s.p.Del(ctx, key)
}

func (s *localStore) Keys(_ context.Context) ([]string, error) {
	s.mu.RLock()
	out := make([]string, 0, len(s.keys))
	for k := range s.keys {
		out = append(out, k)
	}
	s.mu.RUnlock()
	sort.Strings(out)
	return out, nil
}

// memoryProvider is the default backend: a mutex-guarded map.
type memoryProvider struct {
	mu sync.RWMutex
	m  map[string][]byte
}

var _ provider.Provider = (*memoryProvider)(nil)

func newMemoryProvider() *memoryProvider {
	return &memoryProvider{m: make(map[string][]byte)}
}

func (p *memoryProvider) Get(_ context.Context, key string) ([]byte, bool, error) {
	p.mu.RLock()
	v, ok := p.m[key]
	p.mu.RUnlock()
	return v, ok, nil
}

func (p *memoryProvider) Set(_ context.Context, key string, value []byte, _ int64) (bool, error) {
	p.mu.Lock()
	p.m[key] = value
	p.mu.Unlock()
	return true, nil
}

func (p *memoryProvider) Del(_ context.Context, key string) error {
	p.mu.Lock()
	delete(p.m, key)
	p.mu.Unlock()
	return nil
}

func (p *memoryProvider) Purge(_ context.Context) error {
	p.mu.Lock()
	p.m = make(map[string][]byte)
	p.mu.Unlock()
	return nil
}

func (p *memoryProvider) Close(_ context.Context) error { return nil }
