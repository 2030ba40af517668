package filter

import (
	"context"
	"strconv"

	"github.com/rushteam/persona/core"
)

// DefaultUserBlockPrefix 用户拉黑作者列表的 key 前缀，完整 key 为 {prefix}:{userID}
const DefaultUserBlockPrefix = "persona:blocked_authors"

// UserBlockFilter 过滤掉用户拉黑的作者发布的文章。
// 拉黑列表是作者 ID 的字符串数组；匿名请求（UserID<=0）不过滤。
type UserBlockFilter struct {
	Store     ListStore
	KeyPrefix string
}

// NewUserBlockFilter 创建用户拉黑过滤器
func NewUserBlockFilter(store ListStore, keyPrefix string) *UserBlockFilter {
	if keyPrefix == "" {
		keyPrefix = DefaultUserBlockPrefix
	}
	return &UserBlockFilter{Store: store, KeyPrefix: keyPrefix}
}

func (f *UserBlockFilter) Name() string {
	return "filter.user_block"
}

func (f *UserBlockFilter) ShouldFilter(
	ctx context.Context,
	rctx *core.RecommendContext,
	item *core.ScoredArticle,
) (bool, error) {
	if item == nil || rctx == nil || rctx.UserID <= 0 || item.AuthorID <= 0 || f.Store == nil {
		return false, nil
	}
	blocked, err := cachedSet(ctx, rctx, f.Store, userKey(f.KeyPrefix, rctx.UserID))
	if err != nil {
		return false, err
	}
	_, ok := blocked[strconv.FormatInt(item.AuthorID, 10)]
	return ok, nil
}
