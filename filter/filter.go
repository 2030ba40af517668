// Package filter 剔除不该出现在结果里的候选：已读、黑名单、拉黑作者、相关度过低、超出时间窗。
package filter

import (
	"context"

	"github.com/rushteam/persona/core"
)

// Filter 对单个候选做判定，返回 true 表示剔除
type Filter interface {
	Name() string
	ShouldFilter(ctx context.Context, rctx *core.RecommendContext, item *core.ScoredArticle) (bool, error)
}

// Func 把一个判定函数包装成 Filter
type Func struct {
	Label string
	Fn    func(rctx *core.RecommendContext, item *core.ScoredArticle) bool
}

func (f Func) Name() string { return f.Label }

func (f Func) ShouldFilter(_ context.Context, rctx *core.RecommendContext, item *core.ScoredArticle) (bool, error) {
	return f.Fn(rctx, item), nil
}
