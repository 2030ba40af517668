package filter

import (
	"context"

	"github.com/rushteam/persona/core"
)

// MinSimilarity 过滤相似度低于阈值的候选（搜索相关性下限）。
type MinSimilarity struct {
	Threshold float64
}

func (f MinSimilarity) Name() string { return "filter.min_similarity" }

func (f MinSimilarity) ShouldFilter(_ context.Context, _ *core.RecommendContext, item *core.ScoredArticle) (bool, error) {
	return item.Similarity < f.Threshold, nil
}
