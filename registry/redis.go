package registry

import (
	"context"
	"errors"
	"sort"

	goredis "github.com/redis/go-redis/v9"
)

var ErrNilClient = errors.New("registry: nil redis client")

// Redis is a Registry over a shared Redis keyspace, for agents that want
// the versioned stores to outlive the process or be shared by replicas.
//
// Key layout:
//
//	<ns>:stores              - set of store names
//	<ns>:keys:<name>         - set of keys written to <name>
//	<ns>:entry:<name>:<key>  - entry bytes
type Redis struct {
	rdb         goredis.UniversalClient
	ns          string
	closeClient bool
}

var _ Registry = (*Redis)(nil)

type RedisConfig struct {
	Client    goredis.UniversalClient
	Namespace string // defaults to "offcache"
	// CloseClient: set true only if this registry exclusively owns the client.
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

func (r *Redis) namesKey() string           { return r.ns + ":stores" }
func (r *Redis) keysKey(name string) string { return r.ns + ":keys:" + name }

func (r *Redis) entryKey(name, key string) string {
	return r.ns + ":entry:" + name + ":" + key
}

func (r *Redis) Open(ctx context.Context, name string) (Store, error) {
	if err := r.rdb.SAdd(ctx, r.namesKey(), name).Err(); err != nil {
		return nil, err
	}
	return &redisStore{r: r, name: name}, nil
}

func (r *Redis) Delete(ctx context.Context, name string) error {
	keys, err := r.rdb.SMembers(ctx, r.keysKey(name)).Result()
	if err != nil {
		return err
	}
	pipe := r.rdb.TxPipeline()
	for _, k := range keys {
		pipe.Del(ctx, r.entryKey(name, k))
	}
	pipe.Del(ctx, r.keysKey(name))
	pipe.SRem(ctx, r.namesKey(), name)
	_, err = pipe.Exec(ctx)
	return err
}

func (r *Redis) Names(ctx context.Context) ([]string, error) {
	names, err := r.rdb.SMembers(ctx, r.namesKey()).Result()
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

// Close releases the underlying redis client only when this registry owns
// it. Safe to call multiple times; repeated calls become no-ops.
func (r *Redis) Close(context.Context) error {
	if r.closeClient {
		if err := r.rdb.Close(); err != nil && !errors.Is(err, goredis.ErrClosed) {
			return err
		}
	}
	return nil
}

type redisStore struct {
	r    *Redis
	name string
}

var _ Store = (*redisStore)(nil)

func (s *redisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := s.r.rdb.Get(ctx, s.r.entryKey(s.name, key)).Bytes()
	if err == goredis.Nil {
		return nil, false, nil // miss
	}
	if err != nil {
		return nil, false, err // transport/server error
	}
	return b, true, nil
}

func (s *redisStore) Set(ctx context.Context, key string, value []byte) (bool, error) {
	pipe := s.r.rdb.TxPipeline()
	pipe.Set(ctx, s.r.entryKey(s.name, key), value, 0)
	pipe.SAdd(ctx, s.r.keysKey(s.name), key)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, err
	}
	return true, nil
}

func (s *redisStore) Del(ctx context.Context, key string) error {
	pipe := s.r.rdb.TxPipeline()
	pipe.Del(ctx, s.r.entryKey(s.name, key))
	pipe.SRem(ctx, s.r.keysKey(s.name), key)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *redisStore) Keys(ctx context.Context) ([]string, error) {
	keys, err := s.r.rdb.SMembers(ctx, s.r.keysKey(s.name)).Result()
	if err != nil {
		return nil, err
	}
	sort.Strings(keys)
	return keys, nil
}
