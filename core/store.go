package core

import (
	"context"
	"time"
)

// KVStore 是画像向量与过滤名单共用的键值存储。
//
// 值一律是 JSON 编码后的字节；ttl 为 0 表示不过期。
// 实现见 store.MemoryStore / store.RedisStore / store.BadgerStore。
type KVStore interface {
	// Name 后端名称，出现在日志与错误信息里
	Name() string

	// Get 不存在或已过期时返回 ErrStoreNotFound
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error

	// Ping 供就绪检查使用
	Ping(ctx context.Context) error
	Close() error
}

// ErrStoreNotFound key 不存在
var ErrStoreNotFound = NewDomainError(ModuleStore, ErrorCodeNotFound, "store: key not found")

// IsStoreNotFound 判断是否为 KV 未命中
func IsStoreNotFound(err error) bool {
	de := GetDomainError(err)
	return de != nil && de.Module == ModuleStore && de.Code == ErrorCodeNotFound
}
