package filter

import (
	"context"
	"strconv"

	"github.com/goccy/go-json"

	"github.com/rushteam/persona/core"
)

// ListStore 读取以 JSON 字符串数组存储的 ID 列表
type ListStore interface {
	GetIDList(ctx context.Context, key string) ([]string, error)
}

// StoreAdapter 将 core.KVStore 适配为过滤器所需的列表存储。
// 值格式：["a1","a2"]；key 不存在时返回空列表。
type StoreAdapter struct {
	store core.KVStore
}

// NewStoreAdapter 创建一个 core.KVStore 适配器。
func NewStoreAdapter(s core.KVStore) *StoreAdapter {
	return &StoreAdapter{store: s}
}

// GetIDList 实现 ListStore
func (a *StoreAdapter) GetIDList(ctx context.Context, key string) ([]string, error) {
	data, err := a.store.Get(ctx, key)
	if core.IsStoreNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

// PutIDList 覆盖写入 ID 列表
func (a *StoreAdapter) PutIDList(ctx context.Context, key string, ids []string) error {
	data, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	return a.store.Set(ctx, key, data, 0)
}

// userKey 返回 {prefix}:{userID}
func userKey(prefix string, userID int64) string {
	return prefix + ":" + strconv.FormatInt(userID, 10)
}

// cachedSet 在一次请求内缓存从存储读到的集合，避免每个候选都访问一次存储
func cachedSet(ctx context.Context, rctx *core.RecommendContext, store ListStore, key string) (map[string]struct{}, error) {
	cacheKey := "filter.set:" + key
	if rctx != nil && rctx.Params != nil {
		if set, ok := rctx.Params[cacheKey].(map[string]struct{}); ok {
			return set, nil
		}
	}
	ids, err := store.GetIDList(ctx, key)
	if err != nil {
		return nil, err
	}
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	if rctx != nil {
		if rctx.Params == nil {
			rctx.Params = make(map[string]any)
		}
		rctx.Params[cacheKey] = set
	}
	return set, nil
}
