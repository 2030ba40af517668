// Package search 是语义搜索：查询文本向量化后在文章向量上做精确内积检索，
// 再按相似度、关注关系、新鲜度与热度计算综合分。
package search

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/rushteam/persona/core"
	"github.com/rushteam/persona/filter"
	"github.com/rushteam/persona/metrics"
	"github.com/rushteam/persona/pipeline"
	"github.com/rushteam/persona/pkg/logging"
	"github.com/rushteam/persona/pkg/utils"
	"github.com/rushteam/persona/pkg/vecmath"
	"github.com/rushteam/persona/rerank"
	"github.com/rushteam/persona/vector"
)

// Config 是搜索配置（对应配置文件的 search 段）
type Config struct {
	TopK           int           `koanf:"top_k"`
	RelevanceFloor float64       `koanf:"relevance_floor"`
	Limit          int           `koanf:"limit"`
	UserLimit      int           `koanf:"user_limit"`
	EmbedTimeout   time.Duration `koanf:"embed_timeout"`

	Composite rerank.CompositeWeights `koanf:"composite"`

	// PostNodes 在综合分排序之后、截断之前执行
	PostNodes []pipeline.NodeConfig `koanf:"post_nodes"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		TopK:           core.DefaultSearchTopK,
		RelevanceFloor: core.DefaultRelevanceFloor,
		Limit:          core.DefaultSearchLimit,
		UserLimit:      core.DefaultUserSearchLimit,
		EmbedTimeout:   core.DefaultShortTextTimeout,
		Composite:      rerank.DefaultCompositeWeights(),
	}
}

// Results 是综合搜索结果：用户 + 文章
type Results struct {
	Users    []core.UserSummary
	Articles []*core.ScoredArticle
}

// Ranker 是语义搜索排序器。索引每次查询临时构建，不跨请求保留。
type Ranker struct {
	embedder core.EmbeddingService
	corpus   core.CorpusReader

	engagement core.EngagementReader
	graph      core.SocialGraph
	recorder   core.SearchRecorder
	users      core.UserDirectory

	cfg       Config
	postNodes []pipeline.Node
	clock     func() time.Time
	logger    zerolog.Logger
}

// Option Ranker 配置选项
type Option func(*Ranker)

// WithEngagement 设置互动计数来源；未设置时热度为 0
func WithEngagement(e core.EngagementReader) Option {
	return func(r *Ranker) { r.engagement = e }
}

// WithSocialGraph 设置关注关系来源；未设置时不加关注分
func WithSocialGraph(g core.SocialGraph) Option {
	return func(r *Ranker) { r.graph = g }
}

// WithSearchRecorder 记录登录用户的搜索，供画像聚合使用
func WithSearchRecorder(rec core.SearchRecorder) Option {
	return func(r *Ranker) { r.recorder = rec }
}

// WithUserDirectory 设置用户名搜索来源（SearchAll）
func WithUserDirectory(d core.UserDirectory) Option {
	return func(r *Ranker) { r.users = d }
}

// WithConfig 设置搜索配置
func WithConfig(cfg Config) Option {
	return func(r *Ranker) { r.cfg = cfg }
}

// WithPostNodes 设置综合分排序之后执行的节点
func WithPostNodes(nodes ...pipeline.Node) Option {
	return func(r *Ranker) { r.postNodes = append(r.postNodes, nodes...) }
}

// WithClock 设置时钟（测试用）
func WithClock(clock func() time.Time) Option {
	return func(r *Ranker) { r.clock = clock }
}

// WithLogger 设置 logger
func WithLogger(l zerolog.Logger) Option {
	return func(r *Ranker) { r.logger = l }
}

// NewRanker 创建搜索排序器
func NewRanker(embedder core.EmbeddingService, corpus core.CorpusReader, opts ...Option) *Ranker {
	r := &Ranker{
		embedder: embedder,
		corpus:   corpus,
		cfg:      DefaultConfig(),
		clock:    time.Now,
		logger:   logging.Component("search"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Search 返回与查询最相关的文章（综合分降序）。
//
// 查询为空返回 INVALID_INPUT；查询向量化失败返回 core.ErrEmbeddingUnavailable，
// 没有查询向量就无法排序，因此不做降级。
func (r *Ranker) Search(ctx context.Context, query string, requesterID int64) ([]*core.ScoredArticle, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, core.ErrInvalidInput(core.ModuleSearch, "search: query is empty")
	}
	start := time.Now()
	defer func() {
		metrics.RankingDuration.WithLabelValues("search").Observe(time.Since(start).Seconds())
	}()
	logger := logging.Ctx(ctx, r.logger).With().Int64("requester_id", requesterID).Logger()

	raw, err := r.embed(ctx, query)
	if err != nil {
		logger.Error().Err(err).Msg("query embedding failed")
		return nil, err
	}
	r.record(ctx, logger, requesterID, query, raw)

	rctx := core.NewRecommendContext(requesterID, r.clock())
	nodes := []pipeline.Node{
		&indexRecall{corpus: r.corpus, query: vecmath.Normalize(raw), topK: r.cfg.TopK, logger: logger},
		&filter.FilterNode{Filters: []filter.Filter{filter.MinSimilarity{Threshold: r.cfg.RelevanceFloor}}, Logger: logger},
		countStage("relevant"),
		&rerank.CompositeNode{Engagement: r.engagement, Graph: r.graph, Weights: r.cfg.Composite, Logger: logger},
	}
	nodes = append(nodes, r.postNodes...)
	nodes = append(nodes, &rerank.TopNNode{N: r.cfg.Limit})
	p := &pipeline.Pipeline{Nodes: nodes, Logger: logger}
	out, err := p.Run(ctx, rctx, nil)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []*core.ScoredArticle{}
	}
	logger.Debug().Str("query", query).Int("results", len(out)).Msg("search finished")
	return out, nil
}

// SearchAll 同时搜索用户与文章。用户搜索失败只记录日志。
func (r *Ranker) SearchAll(ctx context.Context, query string, requesterID int64) (*Results, error) {
	articles, err := r.Search(ctx, query, requesterID)
	if err != nil {
		return nil, err
	}
	res := &Results{Users: []core.UserSummary{}, Articles: articles}
	if r.users == nil {
		return res, nil
	}
	users, err := r.users.SearchUsers(ctx, strings.TrimSpace(query), r.cfg.UserLimit)
	if err != nil {
		r.logger.Warn().Err(err).Msg("user search failed")
		return res, nil
	}
	if users != nil {
		res.Users = users
	}
	return res, nil
}

func (r *Ranker) embed(ctx context.Context, query string) ([]float32, error) {
	if r.embedder == nil {
		return nil, core.ErrEmbeddingUnavailable
	}
	if budget := r.embedBudget(query); budget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, budget)
		defer cancel()
	}
	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		if errors.Is(err, core.ErrEmbeddingUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", core.ErrEmbeddingUnavailable, err)
	}
	if len(vec) == 0 {
		return nil, fmt.Errorf("%w: empty query embedding", core.ErrEmbeddingUnavailable)
	}
	return vec, nil
}

// embedBudget 查询向量化的超时上限：不低于客户端按文本长度选的超时，长查询仍有长超时
func (r *Ranker) embedBudget(query string) time.Duration {
	budget := r.cfg.EmbedTimeout
	if tf, ok := r.embedder.(interface{ TimeoutFor(string) time.Duration }); ok {
		budget = max(budget, tf.TimeoutFor(query))
	}
	return budget
}

func (r *Ranker) record(ctx context.Context, logger zerolog.Logger, requesterID int64, query string, vec []float32) {
	if r.recorder == nil || requesterID <= 0 {
		return
	}
	ev := core.SearchEvent{Query: query, Embedding: vec, CreatedAt: r.clock()}
	if err := r.recorder.RecordSearch(ctx, requesterID, ev); err != nil {
		logger.Warn().Err(err).Msg("record search failed")
	}
}

// indexRecall 把可用文章的归一化组合向量放进临时 FlatIndex，取 TopK。
type indexRecall struct {
	corpus core.CorpusReader
	query  []float32
	topK   int
	logger zerolog.Logger
}

func (n *indexRecall) Name() string { return "recall.flat_index" }

func (n *indexRecall) Kind() pipeline.Kind { return pipeline.KindRecall }

func (n *indexRecall) Process(
	ctx context.Context,
	_ *core.RecommendContext,
	items []*core.ScoredArticle,
) ([]*core.ScoredArticle, error) {
	articles, err := n.corpus.ListArticles(ctx)
	if err != nil {
		return nil, fmt.Errorf("list articles: %w", err)
	}

	idx, err := vector.NewFlatIndex(core.MetricInnerProduct)
	if err != nil {
		return nil, err
	}
	defer idx.Close()

	byID := make(map[string]*core.Article, len(articles))
	mismatched, unusable := 0, 0
	for _, a := range articles {
		if a == nil || !a.Usable() {
			unusable++
			continue
		}
		if a.Dimension() != len(n.query) {
			mismatched++
			continue
		}
		if err := idx.Add(a.ArticleID, vecmath.Normalize(a.Combined())); err != nil {
			mismatched++
			continue
		}
		byID[a.ArticleID] = a
	}
	if mismatched > 0 {
		n.logger.Warn().Int("count", mismatched).Int("query_dim", len(n.query)).Msg("articles skipped: embedding dimension mismatch")
	}
	if unusable > 0 {
		n.logger.Debug().Int("count", unusable).Msg("articles skipped: missing embeddings")
	}
	metrics.SearchCandidates.WithLabelValues("indexed").Observe(float64(idx.Len()))

	topK := n.topK
	if topK <= 0 {
		topK = core.DefaultSearchTopK
	}
	hits, err := idx.Search(ctx, core.IndexQuery{Vector: n.query, Limit: topK})
	if err != nil {
		return nil, err
	}
	for _, hit := range hits {
		it := core.NewScoredArticleFrom(byID[hit.ArticleID])
		it.Similarity = hit.Score
		it.PutLabel("recall_source", utils.Label{Value: "search", Source: "recall"})
		items = append(items, it)
	}
	return items, nil
}

// countStage 记录经过该阶段的候选数，不改动候选
func countStage(stage string) pipeline.Node {
	return pipeline.Func{
		Label: "metrics." + stage,
		Stage: pipeline.KindFilter,
		Fn: func(_ context.Context, _ *core.RecommendContext, items []*core.ScoredArticle) ([]*core.ScoredArticle, error) {
			metrics.SearchCandidates.WithLabelValues(stage).Observe(float64(len(items)))
			return items, nil
		},
	}
}
