package filter

import (
	"context"

	"github.com/rushteam/persona/core"
)

// BlacklistFilter 是黑名单过滤器，过滤掉黑名单中的文章。
type BlacklistFilter struct {
	// ArticleIDs 是静态黑名单
	ArticleIDs []string

	// Store + Key 是可选的动态黑名单（运营下架等），每次请求读取一次
	Store ListStore
	Key   string

	static map[string]struct{}
}

// NewBlacklistFilter 创建一个黑名单过滤器；store 为 nil 时只用静态列表。
func NewBlacklistFilter(articleIDs []string, store ListStore, key string) *BlacklistFilter {
	static := make(map[string]struct{}, len(articleIDs))
	for _, id := range articleIDs {
		static[id] = struct{}{}
	}
	return &BlacklistFilter{ArticleIDs: articleIDs, Store: store, Key: key, static: static}
}

func (f *BlacklistFilter) Name() string {
	return "filter.blacklist"
}

func (f *BlacklistFilter) ShouldFilter(
	ctx context.Context,
	rctx *core.RecommendContext,
	item *core.ScoredArticle,
) (bool, error) {
	if item == nil {
		return true, nil
	}
	if _, ok := f.static[item.ArticleID]; ok {
		return true, nil
	}
	if f.Store == nil || f.Key == "" {
		return false, nil
	}
	set, err := cachedSet(ctx, rctx, f.Store, f.Key)
	if err != nil {
		return false, err
	}
	_, ok := set[item.ArticleID]
	return ok, nil
}
