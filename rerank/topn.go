package rerank

import (
	"context"
	"strconv"

	"github.com/rushteam/persona/core"
	"github.com/rushteam/persona/pipeline"
	"github.com/rushteam/persona/pkg/utils"
)

// TopNNode 截断到前 N 个并写入 "rank" label（从 1 开始）。
// 推荐链路里它出现两次：召回后先截出候选池，过滤后再截出最终结果，
// 所以 rank 总是最后一次截断时的名次。N <= 0 时只写 label 不截断。
type TopNNode struct {
	N int
}

func (n *TopNNode) Name() string { return "rerank.topn" }

func (n *TopNNode) Kind() pipeline.Kind { return pipeline.KindReRank }

func (n *TopNNode) Process(
	_ context.Context,
	_ *core.RecommendContext,
	items []*core.ScoredArticle,
) ([]*core.ScoredArticle, error) {
	if n.N > 0 && len(items) > n.N {
		items = items[:n.N]
	}
	for i, it := range items {
		it.SetLabel("rank", utils.Label{Value: strconv.Itoa(i + 1), Source: n.Name()})
	}
	return items, nil
}
