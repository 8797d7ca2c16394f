package generation

import (
	"context"
	"errors"

	goredis "github.com/redis/go-redis/v9"
)

var ErrNilClient = errors.New("generation: nil redis client")

// Redis keeps generation counters in Redis via INCR, so deployments from
// multiple replicas mint from one monotonic sequence.
type Redis struct {
	rdb         goredis.UniversalClient
	ns          string
	closeClient bool
}

var _ Store = (*Redis)(nil)

type RedisConfig struct {
	Client    goredis.UniversalClient
	Namespace string // defaults to "offcache"
	// CloseClient: set true only if this store exclusively owns the client.
	CloseClient bool
}

func NewRedis(cfg RedisConfig) (*Redis, error) {
	if cfg.Client == nil {
		return nil, ErrNilClient
	}
	ns := cfg.Namespace
	if ns == "" {
		ns = "offcache"
	}
	return &Redis{rdb: cfg.Client, ns: ns, closeClient: cfg.CloseClient}, nil
}

func (s *Redis) key(app string) string { return s.ns + ":gen:" + app }

func (s *Redis) Current(ctx context.Context, app string) (uint64, error) {
	g, err := s.rdb.Get(ctx, s.key(app)).Uint64()
	if err == goredis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return g, nil
}

func (s *Redis) Next(ctx context.Context, app string) (uint64, error) {
	g, err := s.rdb.Incr(ctx, s.key(app)).Result()
	if err != nil {
		return 0, err
	}
	return uint64(g), nil
}

func (s *Redis) Close(context.Context) error {
	if s.closeClient {
		if err := s.rdb.Close(); err != nil && !errors.Is(err, goredis.ErrClosed) {
			return err
		}
	}
	return nil
}
