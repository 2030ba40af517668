package rerank

import (
	"context"
	"sort"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/rushteam/persona/core"
	"github.com/rushteam/persona/pipeline"
	"github.com/rushteam/persona/pkg/utils"
)

// CompositeWeights 是搜索综合分的系数：
//
//	score = Similarity*sim
//	      + Follow*(FollowBoost if 关注作者 else 0)
//	      - Recency*(ageDays/RecencyHorizonDays)
//	      + Popularity*(pop/maxPop)
type CompositeWeights struct {
	Similarity         float64 `koanf:"similarity"`
	Follow             float64 `koanf:"follow"`
	FollowBoost        float64 `koanf:"follow_boost"`
	Recency            float64 `koanf:"recency"`
	RecencyHorizonDays float64 `koanf:"recency_horizon_days"`
	Popularity         float64 `koanf:"popularity"`

	// MissingAgeDays 发布时间未知时使用的文章年龄（天）
	MissingAgeDays int `koanf:"missing_age_days"`
}

// DefaultCompositeWeights 返回默认系数
func DefaultCompositeWeights() CompositeWeights {
	return CompositeWeights{
		Similarity:         0.5,
		Follow:             0.2,
		FollowBoost:        100,
		Recency:            0.2,
		RecencyHorizonDays: 365,
		Popularity:         0.1,
		MissingAgeDays:     365,
	}
}

// Score 计算单个候选的综合分；maxPop 小于 1 时按 1 处理
func (w CompositeWeights) Score(sim float64, follows bool, ageDays, pop, maxPop int) float64 {
	if maxPop < 1 {
		maxPop = 1
	}
	horizon := w.RecencyHorizonDays
	if horizon <= 0 {
		horizon = 365
	}
	score := w.Similarity * sim
	if follows {
		score += w.Follow * w.FollowBoost
	}
	score -= w.Recency * (float64(ageDays) / horizon)
	score += w.Popularity * (float64(pop) / float64(maxPop))
	return score
}

// AgeDays 返回文章年龄的整天数（向下取整，不小于 0）
func (w CompositeWeights) AgeDays(createdAt, now time.Time) int {
	if createdAt.IsZero() {
		return w.MissingAgeDays
	}
	d := int(now.Sub(createdAt) / (24 * time.Hour))
	if d < 0 {
		return 0
	}
	return d
}

// CompositeNode 给搜索候选补充热度与关注关系，计算综合分并稳定降序排序。
//
// 查询方是 rctx.UserID；查询方 <= 0 时不查关注关系。
// 互动/关注查询并发执行，单次查询失败降级为 0/false 并记录日志，不中断排序。
type CompositeNode struct {
	Engagement core.EngagementReader
	Graph      core.SocialGraph
	Weights    CompositeWeights

	// Concurrency 并发查询上限，<= 0 时为 8
	Concurrency int

	Logger zerolog.Logger
}

func (n *CompositeNode) Name() string { return "rerank.composite" }

func (n *CompositeNode) Kind() pipeline.Kind { return pipeline.KindReRank }

func (n *CompositeNode) Process(
	ctx context.Context,
	rctx *core.RecommendContext,
	items []*core.ScoredArticle,
) ([]*core.ScoredArticle, error) {
	if len(items) == 0 {
		return items, nil
	}
	now := time.Now()
	var requester int64
	if rctx != nil {
		requester = rctx.UserID
		if !rctx.Now.IsZero() {
			now = rctx.Now
		}
	}

	follows := n.enrich(ctx, requester, items)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// maxPop 在打分前基于整个候选集计算
	maxPop := 1
	for _, it := range items {
		if it.Popularity > maxPop {
			maxPop = it.Popularity
		}
	}

	for i, it := range items {
		age := n.Weights.AgeDays(it.CreatedAt, now)
		it.CompositeScore = n.Weights.Score(it.Similarity, follows[i], age, it.Popularity, maxPop)
		it.Meta["age_days"] = age
		if follows[i] {
			it.PutLabel("following", utils.Label{Value: strconv.FormatInt(it.AuthorID, 10), Source: "search"})
		}
	}

	out := make([]*core.ScoredArticle, len(items))
	copy(out, items)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CompositeScore > out[j].CompositeScore
	})
	return out, nil
}

func (n *CompositeNode) enrich(ctx context.Context, requester int64, items []*core.ScoredArticle) []bool {
	follows := make([]bool, len(items))
	limit := n.Concurrency
	if limit <= 0 {
		limit = 8
	}

	var g errgroup.Group
	g.SetLimit(limit)
	for i, it := range items {
		i, it := i, it
		if it.Meta == nil {
			it.Meta = make(map[string]any)
		}
		g.Go(func() error {
			if n.Engagement != nil {
				eng, err := n.Engagement.ArticleEngagement(ctx, it.ArticleID)
				if err != nil {
					n.Logger.Warn().Err(err).Str("article_id", it.ArticleID).Msg("engagement lookup failed, using 0")
				} else {
					it.Popularity = eng.Popularity()
				}
			}
			if n.Graph != nil && requester > 0 && it.AuthorID > 0 {
				ok, err := n.Graph.IsFollowing(ctx, requester, it.AuthorID)
				if err != nil {
					n.Logger.Warn().Err(err).Int64("author_id", it.AuthorID).Msg("follow lookup failed, using false")
				} else {
					follows[i] = ok
				}
			}
			return nil
		})
	}
	_ = g.Wait()
	return follows
}
