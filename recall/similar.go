package recall

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/rushteam/persona/core"
	"github.com/rushteam/persona/pipeline"
	"github.com/rushteam/persona/pkg/utils"
	"github.com/rushteam/persona/pkg/vecmath"
)

// Similar 是画像向量召回：拿用户画像与全部文章的组合向量算余弦相似度。
//
// 语料规模不大时暴力扫描即可；文章不可用（缺向量、标题/正文维度不一致）或
// 维度与画像不一致时静默跳过。结果按相似度降序，同分保持语料顺序。
type Similar struct {
	Corpus   core.CorpusReader
	Profiles core.ProfileStore

	// TopK 召回数量，<= 0 表示不截断
	TopK int

	Logger zerolog.Logger
}

func (r *Similar) Name() string { return "recall.similar" }

func (r *Similar) Kind() pipeline.Kind { return pipeline.KindRecall }

// Process 实现 pipeline.Node；召回结果追加到已有候选之后。
// rctx.Profile 为空时从 Profiles 加载并回填，画像不存在时返回 core.ErrNoProfile。
func (r *Similar) Process(
	ctx context.Context,
	rctx *core.RecommendContext,
	items []*core.ScoredArticle,
) ([]*core.ScoredArticle, error) {
	recalled, err := r.Recall(ctx, rctx)
	if err != nil {
		return nil, err
	}
	return append(items, recalled...), nil
}

// Recall 返回按相似度降序的候选
func (r *Similar) Recall(ctx context.Context, rctx *core.RecommendContext) ([]*core.ScoredArticle, error) {
	if rctx == nil {
		return nil, core.ErrInvalidInput(core.ModuleRank, "recall: nil recommend context")
	}
	profile, err := r.profile(ctx, rctx)
	if err != nil {
		return nil, err
	}

	articles, err := r.Corpus.ListArticles(ctx)
	if err != nil {
		return nil, fmt.Errorf("list articles: %w", err)
	}

	dim := profile.Dimension()
	out := make([]*core.ScoredArticle, 0, len(articles))
	skipped := 0
	for _, a := range articles {
		if a == nil || a.Dimension() != dim {
			skipped++
			continue
		}
		it := core.NewScoredArticleFrom(a)
		it.Similarity = vecmath.CosineSimilarity(profile.Embedding, a.Combined())
		it.PutLabel("recall_source", utils.Label{Value: "similar", Source: "recall"})
		out = append(out, it)
	}
	if skipped > 0 {
		r.Logger.Debug().Int64("user_id", rctx.UserID).Int("skipped", skipped).Msg("articles skipped during recall")
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Similarity > out[j].Similarity
	})
	if r.TopK > 0 && len(out) > r.TopK {
		out = out[:r.TopK]
	}
	return out, nil
}

func (r *Similar) profile(ctx context.Context, rctx *core.RecommendContext) (*core.UserProfileEmbedding, error) {
	if rctx.Profile != nil && len(rctx.Profile.Embedding) > 0 {
		return rctx.Profile, nil
	}
	if r.Profiles == nil {
		return nil, core.ErrNoProfile
	}
	p, err := r.Profiles.GetProfile(ctx, rctx.UserID)
	if err != nil {
		return nil, err
	}
	if p == nil || len(p.Embedding) == 0 {
		return nil, core.ErrNoProfile
	}
	rctx.Profile = p
	return p, nil
}
