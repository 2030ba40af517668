package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rushteam/persona/core"
)

// RedisOptions 画像 KV 的 Redis 连接参数
type RedisOptions struct {
	Addr        string        `koanf:"addr"`
	Password    string        `koanf:"password"`
	DB          int           `koanf:"db"`
	DialTimeout time.Duration `koanf:"dial_timeout"`
	PoolSize    int           `koanf:"pool_size"`
}

// RedisStore 多实例共享画像向量与过滤名单
type RedisStore struct {
	rdb  *redis.Client
	addr string
}

// NewRedisStore 建连后立即 Ping，地址不可达时直接报错
func NewRedisStore(ctx context.Context, opts RedisOptions) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        opts.Addr,
		Password:    opts.Password,
		DB:          opts.DB,
		DialTimeout: opts.DialTimeout,
		PoolSize:    opts.PoolSize,
	})
	s := &RedisStore{rdb: rdb, addr: opts.Addr}
	if err := s.Ping(ctx); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return s, nil
}

func (s *RedisStore) Name() string { return "redis" }

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := s.rdb.Get(ctx, key).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return nil, core.ErrStoreNotFound
	case err != nil:
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	return b, nil
}

// Set ttl 为 0 时 key 不过期
func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, key).Err()
}

func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping %s: %w", s.addr, err)
	}
	return nil
}

func (s *RedisStore) Close() error { return s.rdb.Close() }

var _ core.KVStore = (*RedisStore)(nil)
