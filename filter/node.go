package filter

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/rushteam/persona/core"
	"github.com/rushteam/persona/metrics"
	"github.com/rushteam/persona/pipeline"
	"github.com/rushteam/persona/pkg/utils"
)

// FilterNode 依次套用 Filters，命中任意一个即剔除，剔除原因写进 "filtered" label。
//
// 过滤器出错时默认保留候选（只打日志）；FailClosed 为 true 时改为剔除。
// 拉黑名单读不到时宁可少推也不能推错，这类节点应开启 FailClosed。
type FilterNode struct {
	Filters    []Filter
	FailClosed bool
	Logger     zerolog.Logger
}

func (n *FilterNode) Name() string { return "filter.node" }

func (n *FilterNode) Kind() pipeline.Kind { return pipeline.KindFilter }

func (n *FilterNode) Process(
	ctx context.Context,
	rctx *core.RecommendContext,
	items []*core.ScoredArticle,
) ([]*core.ScoredArticle, error) {
	if len(n.Filters) == 0 {
		return items, nil
	}
	kept := items[:0:0]
	for _, it := range items {
		if it == nil {
			continue
		}
		if reason, drop := n.judge(ctx, rctx, it); drop {
			it.PutLabel("filtered", utils.Label{Value: "true", Source: reason})
			continue
		}
		kept = append(kept, it)
	}
	return kept, nil
}

// judge 返回第一个命中的过滤器名
func (n *FilterNode) judge(ctx context.Context, rctx *core.RecommendContext, it *core.ScoredArticle) (string, bool) {
	for _, f := range n.Filters {
		hit, err := f.ShouldFilter(ctx, rctx, it)
		if err != nil {
			n.Logger.Warn().Err(err).
				Str("filter", f.Name()).
				Str("article_id", it.ArticleID).
				Bool("fail_closed", n.FailClosed).
				Msg("filter failed")
			if n.FailClosed {
				metrics.FilteredTotal.WithLabelValues(f.Name(), "error").Inc()
				return f.Name(), true
			}
			continue
		}
		if hit {
			metrics.FilteredTotal.WithLabelValues(f.Name(), "match").Inc()
			return f.Name(), true
		}
	}
	return "", false
}
