package store

import (
	"context"
	"sync"
	"time"

	"github.com/rushteam/persona/core"
)

// sweepEvery 每写入这么多次顺带清理一轮过期 key
const sweepEvery = 256

// MemoryStore 进程内 KV，单实例部署与测试用，重启即丢。
// 过期 key 读取时视为不存在，写入时按批清理，不起后台协程。
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]memValue
	writes int
	now    func() time.Time
}

type memValue struct {
	data     []byte
	deadline time.Time
}

func (v memValue) alive(now time.Time) bool {
	return v.deadline.IsZero() || now.Before(v.deadline)
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]memValue), now: time.Now}
}

func (m *MemoryStore) Name() string { return "memory" }

func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	v, ok := m.values[key]
	m.mu.RUnlock()
	if !ok || !v.alive(m.now()) {
		return nil, core.ErrStoreNotFound
	}
	return append([]byte(nil), v.data...), nil
}

func (m *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	now := m.now()
	v := memValue{data: append([]byte(nil), value...)}
	if ttl > 0 {
		v.deadline = now.Add(ttl)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = v
	if m.writes++; m.writes%sweepEvery == 0 {
		for k, old := range m.values {
			if !old.alive(now) {
				delete(m.values, k)
			}
		}
	}
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.values, key)
	m.mu.Unlock()
	return nil
}

// Len 返回未过期的 key 数
func (m *MemoryStore) Len() int {
	now := m.now()
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, v := range m.values {
		if v.alive(now) {
			n++
		}
	}
	return n
}

func (m *MemoryStore) Ping(context.Context) error { return nil }

func (m *MemoryStore) Close() error { return nil }

var _ core.KVStore = (*MemoryStore)(nil)
