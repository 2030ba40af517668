package filter

import (
	"context"
	"time"

	"github.com/rushteam/persona/core"
	"github.com/rushteam/persona/pipeline"
)

// TimeWindow 是带降级的发布时间窗口过滤。
//
// 先保留 Primary 窗口内发布的未读候选；一个都没有时放宽到 Fallback 窗口重试。
// 最坏情况返回空列表，从不报错。发布时间未知（零值）的候选永远不命中。
type TimeWindow struct {
	Primary  time.Duration
	Fallback time.Duration
}

func (n *TimeWindow) Name() string { return "filter.time_window" }

func (n *TimeWindow) Kind() pipeline.Kind { return pipeline.KindFilter }

func (n *TimeWindow) Process(
	_ context.Context,
	rctx *core.RecommendContext,
	items []*core.ScoredArticle,
) ([]*core.ScoredArticle, error) {
	now := time.Now()
	var readIDs map[string]struct{}
	if rctx != nil {
		readIDs = rctx.ReadIDs
		if !rctx.Now.IsZero() {
			now = rctx.Now
		}
	}
	return FilterByTimeWindow(items, readIDs, n.Primary, n.Fallback, now), nil
}

// FilterByTimeWindow 保留 primary 窗口内的未读候选，为空时用 fallback 窗口重试。
// 输入顺序保持不变。
func FilterByTimeWindow(
	candidates []*core.ScoredArticle,
	readIDs map[string]struct{},
	primary, fallback time.Duration,
	now time.Time,
) []*core.ScoredArticle {
	out := withinWindow(candidates, readIDs, now.Add(-primary))
	if len(out) == 0 && fallback > primary {
		out = withinWindow(candidates, readIDs, now.Add(-fallback))
	}
	return out
}

func withinWindow(candidates []*core.ScoredArticle, readIDs map[string]struct{}, since time.Time) []*core.ScoredArticle {
	out := make([]*core.ScoredArticle, 0, len(candidates))
	for _, c := range candidates {
		if c == nil || c.CreatedAt.IsZero() {
			continue
		}
		if _, read := readIDs[c.ArticleID]; read {
			continue
		}
		if c.CreatedAt.Before(since) {
			continue
		}
		out = append(out, c)
	}
	return out
}
