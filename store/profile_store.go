package store

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/goccy/go-json"

	"github.com/rushteam/persona/core"
)

// DefaultProfileKeyPrefix 画像向量 key 前缀，完整 key 为 <prefix>:<user_id>
const DefaultProfileKeyPrefix = "persona:profile"

// KVProfileStore 把用户画像向量以 JSON 存进任意 core.KVStore（Memory / Redis / Badger）。
type KVProfileStore struct {
	store  core.KVStore
	prefix string
	ttl    time.Duration
}

// ProfileOption 配置 KVProfileStore
type ProfileOption func(*KVProfileStore)

// WithProfileTTL 画像过期时间；周期聚合会在过期前重写。0 表示不过期
func WithProfileTTL(ttl time.Duration) ProfileOption {
	return func(p *KVProfileStore) { p.ttl = ttl }
}

// NewKVProfileStore 创建画像存储；prefix 为空时使用 DefaultProfileKeyPrefix
func NewKVProfileStore(s core.KVStore, prefix string, opts ...ProfileOption) *KVProfileStore {
	if prefix == "" {
		prefix = DefaultProfileKeyPrefix
	}
	p := &KVProfileStore{store: s, prefix: prefix}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *KVProfileStore) key(userID int64) string {
	return p.prefix + ":" + strconv.FormatInt(userID, 10)
}

// GetProfile 实现 core.ProfileStore
func (p *KVProfileStore) GetProfile(ctx context.Context, userID int64) (*core.UserProfileEmbedding, error) {
	raw, err := p.store.Get(ctx, p.key(userID))
	if err != nil {
		if core.IsStoreNotFound(err) {
			return nil, core.ErrNoProfile
		}
		return nil, fmt.Errorf("%s get profile %d: %w", p.store.Name(), userID, err)
	}
	var profile core.UserProfileEmbedding
	if err := json.Unmarshal(raw, &profile); err != nil {
		return nil, fmt.Errorf("decode profile %d: %w", userID, err)
	}
	if len(profile.Embedding) == 0 {
		return nil, core.ErrNoProfile
	}
	return &profile, nil
}

// PutProfile 实现 core.ProfileStore，整体覆盖
func (p *KVProfileStore) PutProfile(ctx context.Context, profile *core.UserProfileEmbedding) error {
	raw, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("encode profile %d: %w", profile.UserID, err)
	}
	if err := p.store.Set(ctx, p.key(profile.UserID), raw, p.ttl); err != nil {
		return fmt.Errorf("%s put profile %d: %w", p.store.Name(), profile.UserID, err)
	}
	return nil
}

// Close 关闭底层存储
func (p *KVProfileStore) Close() error {
	return p.store.Close()
}

var _ core.ProfileStore = (*KVProfileStore)(nil)
