package kioshun

import (
	"context"
	"time"

	kc "github.com/unkn0wn-root/kioshun"
)

// Provider backs a versioned store with a sharded in-memory kioshun cache.
// Entries never expire on their own; the owning store is purged at version
// cutover.
type Provider struct {
	c *kc.InMemoryCache[string, []byte]
}

type Config struct {
	MaxItems               int64             // total item capacity; 0 = unlimited
	ShardCount             int               // 0 = auto (CPU * multiplier)
	Policy                 kc.EvictionPolicy // LRU/LFU/FIFO/AdmissionLFU
	CleanupInterval        time.Duration     // 0 = disable background cleanup
	AdmissionResetInterval time.Duration     // only used by AdmissionLFU
	StatsEnabled           bool
}

func New(cfg Config) *Provider {
	kcfg := kc.Config{
		MaxSize:                cfg.MaxItems,
		ShardCount:             cfg.ShardCount,
		CleanupInterval:        cfg.CleanupInterval,
		DefaultTTL:             0,
		EvictionPolicy:         cfg.Policy,
		StatsEnabled:           cfg.StatsEnabled,
		AdmissionResetInterval: cfg.AdmissionResetInterval,
	}
	return &Provider{c: kc.New[string, []byte](kcfg)}
}

func NewWithCache(c *kc.InMemoryCache[string, []byte]) *Provider { return &Provider{c: c} }

func (p *Provider) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := p.c.Get(key)
	if !ok {
		return nil, false, nil
	}
	return v, true, nil
}

// Set ignores cost (kioshun is item-capacity based). Kioshun's Set has no ok
// result; admission refusal (AdmissionLFU under pressure) is detected by an
// existence check afterwards - for updates the key already exists and stays
// ok=true.
func (p *Provider) Set(_ context.Context, key string, value []byte, _ int64) (bool, error) {
	if err := p.c.Set(key, value, kc.NoExpiration); err != nil {
		return false, err
	}
	return p.c.Exists(key), nil
}

func (p *Provider) Del(_ context.Context, key string) error {
	_ = p.c.Delete(key)
	return nil
}

func (p *Provider) Purge(_ context.Context) error {
	p.c.Clear()
	return nil
}

func (p *Provider) Close(_ context.Context) error {
	return p.c.Close()
}
