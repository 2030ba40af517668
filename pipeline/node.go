package pipeline

import (
	"context"

	"github.com/rushteam/persona/core"
)

// Kind 节点所处阶段，用于日志与打点
type Kind string

const (
	KindRecall Kind = "recall" // 产出候选，通常忽略输入
	KindFilter Kind = "filter" // 只删不改
	KindReRank Kind = "rerank" // 打分、排序、截断
)

// Node 推荐与搜索链路的基本单元：输入候选，输出候选。
// 实现可以原地修改候选的分数与 label，但不应持有 items 切片。
type Node interface {
	Name() string
	Kind() Kind
	Process(ctx context.Context, rctx *core.RecommendContext, items []*core.ScoredArticle) ([]*core.ScoredArticle, error)
}

// Func 把普通函数包装成 Node，适合只做观测或一次性调整的步骤
type Func struct {
	Label string
	Stage Kind
	Fn    func(ctx context.Context, rctx *core.RecommendContext, items []*core.ScoredArticle) ([]*core.ScoredArticle, error)
}

func (f Func) Name() string { return f.Label }

func (f Func) Kind() Kind { return f.Stage }

func (f Func) Process(ctx context.Context, rctx *core.RecommendContext, items []*core.ScoredArticle) ([]*core.ScoredArticle, error) {
	return f.Fn(ctx, rctx, items)
}
