package filter

import (
	"context"

	"github.com/rushteam/persona/core"
)

// ReadFilter 过滤用户已读文章，已读集合来自 rctx.ReadIDs。
type ReadFilter struct{}

func (ReadFilter) Name() string { return "filter.read" }

func (ReadFilter) ShouldFilter(_ context.Context, rctx *core.RecommendContext, item *core.ScoredArticle) (bool, error) {
	return rctx.HasRead(item.ArticleID), nil
}
