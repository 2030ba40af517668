// Package profile 把用户交互聚合成画像向量（加权质心）并写回存储。
package profile

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/rushteam/persona/core"
	"github.com/rushteam/persona/metrics"
	"github.com/rushteam/persona/pkg/logging"
	"github.com/rushteam/persona/pkg/vecmath"
	"github.com/rushteam/persona/weight"
)

// Status 聚合结果状态。除 StatusSuccess 外都是“可识别的空结果”，不是错误。
type Status string

const (
	StatusSuccess        Status = "success"
	StatusNoInteractions Status = "no_interactions"
	StatusNoUsableData   Status = "no_usable_data"
	StatusZeroWeight     Status = "zero_weight"
)

// Result 单个用户的聚合结果
type Result struct {
	Status Status
	UserID int64

	// Profile 仅在 StatusSuccess 时非空
	Profile *core.UserProfileEmbedding

	// Contributions 参与质心计算的向量数（文章 + 搜索）
	Contributions int
	// Skipped 被跳过的记录/文章数
	Skipped     int
	TotalWeight float64
}

// Message 返回给调用方的提示信息
func (r *Result) Message() string {
	switch r.Status {
	case StatusSuccess:
		return fmt.Sprintf("User embedding for %d created and stored successfully.", r.UserID)
	case StatusNoInteractions:
		return fmt.Sprintf("No interactions found for user %d. Embedding not created.", r.UserID)
	case StatusNoUsableData:
		return fmt.Sprintf("No valid embeddings or weights for userId: %d. Embedding not created.", r.UserID)
	case StatusZeroWeight:
		return fmt.Sprintf("Total weight is zero for userId: %d. Embedding not created.", r.UserID)
	default:
		return fmt.Sprintf("Unknown aggregation status %q for user %d.", r.Status, r.UserID)
	}
}

// Aggregator 是画像聚合器。
//
// 流程：
//  1. 读取用户四类交互；全部为空返回 StatusNoInteractions
//  2. 点赞/收藏/阅读按文章累加权重（同一篇文章多种交互权重相加）
//  3. 逐篇读取文章向量，缺失/不可用的跳过并告警
//  3a. 未固定维度时取贡献中最常见的维度，其余维度的贡献跳过
//  4. 文章组合向量 * 累计权重，和最近 N 条搜索向量（0.2*recency）放进同一个池子
//  5. 池子为空返回 StatusNoUsableData，总权重为 0 返回 StatusZeroWeight
//  6. 计算加权质心，upsert 一次画像，LastUpdated 取完成时刻
//
// 不同用户的聚合可以并发执行，Aggregator 本身无可变状态。
type Aggregator struct {
	interactions core.InteractionReader
	corpus       core.CorpusReader
	profiles     core.ProfileStore
	calc         *weight.Calculator

	// dimension 固定画像维度；0 表示取贡献向量中最常见的维度
	dimension   int
	maxSearches int
	clock       func() time.Time
	logger      zerolog.Logger
}

// Option Aggregator 配置选项
type Option func(*Aggregator)

// WithDimension 固定画像维度（例如 1024），维度不符的贡献被跳过
func WithDimension(d int) Option {
	return func(a *Aggregator) {
		a.dimension = d
	}
}

// WithMaxSearches 设置参与聚合的最近搜索条数
func WithMaxSearches(n int) Option {
	return func(a *Aggregator) {
		a.maxSearches = n
	}
}

// WithCalculator 设置权重计算器
func WithCalculator(c *weight.Calculator) Option {
	return func(a *Aggregator) {
		a.calc = c
	}
}

// WithClock 设置时钟（测试用）
func WithClock(clock func() time.Time) Option {
	return func(a *Aggregator) {
		a.clock = clock
	}
}

// WithLogger 设置 logger
func WithLogger(l zerolog.Logger) Option {
	return func(a *Aggregator) {
		a.logger = l
	}
}

// NewAggregator 创建聚合器
func NewAggregator(interactions core.InteractionReader, corpus core.CorpusReader, profiles core.ProfileStore, opts ...Option) *Aggregator {
	a := &Aggregator{
		interactions: interactions,
		corpus:       corpus,
		profiles:     profiles,
		maxSearches:  core.DefaultMaxSearches,
		clock:        time.Now,
		logger:       logging.Component("profile"),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.calc == nil {
		a.calc = weight.NewCalculator(weight.WithLogger(a.logger))
	}
	return a
}

// contribution 一个候选贡献向量：文章组合向量或搜索向量
type contribution struct {
	vec    []float32
	weight float64
	source string // article_id 或 search query
	search bool
}

// pool 是质心计算的贡献池
type pool struct {
	dim     int
	vectors [][]float32
	weights []float64
	total   float64
}

func (p *pool) add(c contribution) bool {
	if len(c.vec) != p.dim {
		return false
	}
	p.vectors = append(p.vectors, c.vec)
	p.weights = append(p.weights, c.weight)
	p.total += c.weight
	return true
}

// majorityDim 返回出现次数最多的维度，同票取先出现的。
// 单个维度异常的文章不会因为排在前面而决定整个画像的维度。
func majorityDim(cands []contribution) int {
	counts := make(map[int]int)
	best, bestN := 0, 0
	for _, c := range cands {
		n := len(c.vec)
		counts[n]++
		if counts[n] > bestN {
			best, bestN = n, counts[n]
		}
	}
	return best
}

// Aggregate 聚合单个用户的画像。
//
// 只有非法 userID 或存储读写失败会返回 error；数据质量问题都体现在 Result.Status 里。
func (a *Aggregator) Aggregate(ctx context.Context, userID int64) (*Result, error) {
	if userID <= 0 {
		return nil, core.ErrInvalidInput(core.ModuleProfile, fmt.Sprintf("profile: invalid user id %d", userID))
	}
	start := time.Now()
	logger := logging.Ctx(ctx, a.logger).With().Int64("user_id", userID).Logger()

	res, err := a.aggregate(ctx, userID, logger)
	metrics.AggregationDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.AggregationsTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	metrics.AggregationsTotal.WithLabelValues(string(res.Status)).Inc()

	level := zerolog.InfoLevel
	if res.Status != StatusSuccess {
		level = zerolog.WarnLevel
	}
	logger.WithLevel(level).Str("status", string(res.Status)).
		Int("contributions", res.Contributions).
		Int("skipped", res.Skipped).
		Float64("total_weight", res.TotalWeight).
		Msg("user embedding aggregation finished")
	return res, nil
}

func (a *Aggregator) aggregate(ctx context.Context, userID int64, logger zerolog.Logger) (*Result, error) {
	res := &Result{UserID: userID}

	inter, err := a.interactions.GetInteractions(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load interactions for user %d: %w", userID, err)
	}
	if inter.Empty() {
		res.Status = StatusNoInteractions
		return res, nil
	}

	now := a.clock()
	order, weights := a.articleWeights(inter, now, res, logger)

	var cands []contribution
	for _, articleID := range order {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		article, err := a.corpus.GetArticle(ctx, articleID)
		if err != nil {
			reason := "article_error"
			if core.IsNotFound(err) {
				reason = "article_missing"
			}
			a.skip(res, reason)
			logger.Warn().Err(err).Str("article_id", articleID).Msg("skipping article: cannot load embedding")
			continue
		}
		if !article.Usable() {
			a.skip(res, "embedding_invalid")
			logger.Warn().Str("article_id", articleID).
				Int("title_dim", len(article.TitleEmbedding)).
				Int("text_dim", len(article.TextEmbedding)).
				Msg("skipping article: missing or mismatched title/text embedding")
			continue
		}
		cands = append(cands, contribution{vec: article.Combined(), weight: weights[articleID], source: articleID})
	}

	for _, ev := range a.recentSearches(inter.Searches, now) {
		if len(ev.Embedding) == 0 {
			a.skip(res, "search_without_embedding")
			logger.Warn().Str("query", ev.Query).Msg("skipping search: no query embedding")
			continue
		}
		cands = append(cands, contribution{vec: ev.Embedding, weight: a.calc.Search(ev, now), source: ev.Query, search: true})
	}

	p := &pool{dim: a.dimension}
	if p.dim <= 0 {
		p.dim = majorityDim(cands)
	}
	for _, c := range cands {
		if p.add(c) {
			continue
		}
		a.skip(res, "dimension_mismatch")
		key := "article_id"
		if c.search {
			key = "query"
		}
		logger.Warn().Str(key, c.source).
			Int("dim", len(c.vec)).Int("want", p.dim).
			Msg("skipping contribution: embedding dimension mismatch")
	}

	res.Contributions = len(p.vectors)
	res.TotalWeight = p.total
	if len(p.vectors) == 0 {
		res.Status = StatusNoUsableData
		return res, nil
	}
	if p.total == 0 {
		res.Status = StatusZeroWeight
		return res, nil
	}

	centroid, err := vecmath.WeightedCentroid(p.vectors, p.weights)
	if err != nil {
		if core.IsEmptyInput(err) {
			res.Status = StatusZeroWeight
			return res, nil
		}
		return nil, fmt.Errorf("compute centroid for user %d: %w", userID, err)
	}

	profile := &core.UserProfileEmbedding{
		UserID:      userID,
		Embedding:   centroid,
		LastUpdated: a.clock(),
	}
	if err := a.profiles.PutProfile(ctx, profile); err != nil {
		return nil, fmt.Errorf("store profile for user %d: %w", userID, err)
	}
	res.Status = StatusSuccess
	res.Profile = profile
	return res, nil
}

// articleWeights 按文章累加点赞/收藏/阅读的权重，返回首次出现顺序与权重表。
func (a *Aggregator) articleWeights(inter *core.Interactions, now time.Time, res *Result, logger zerolog.Logger) ([]string, map[string]float64) {
	weights := make(map[string]float64)
	var order []string
	add := func(kind core.InteractionKind, articleID string, w float64) {
		if articleID == "" {
			a.skip(res, "missing_article_id")
			logger.Warn().Str("kind", string(kind)).Msg("skipping interaction without article id")
			return
		}
		if _, ok := weights[articleID]; !ok {
			order = append(order, articleID)
		}
		weights[articleID] += w
	}

	for _, ev := range inter.Likes {
		add(core.KindLike, ev.ArticleID, a.calc.Like(ev, now))
	}
	for _, ev := range inter.Saves {
		add(core.KindSave, ev.ArticleID, a.calc.Save(ev, now))
	}
	for _, ev := range inter.Reads {
		add(core.KindRead, ev.ArticleID, a.calc.Read(ev, now))
	}
	return order, weights
}

// recentSearches 取最近 maxSearches 条搜索（按 created_at 降序；时间无法解析的按过期时间参与排序）
func (a *Aggregator) recentSearches(searches []core.SearchEvent, now time.Time) []core.SearchEvent {
	if len(searches) == 0 {
		return nil
	}
	type timed struct {
		ev core.SearchEvent
		at time.Time
	}
	sorted := make([]timed, len(searches))
	for i, ev := range searches {
		sorted[i] = timed{ev: ev, at: a.calc.EventTime(ev.CreatedAt, now)}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].at.After(sorted[j].at)
	})
	if a.maxSearches > 0 && len(sorted) > a.maxSearches {
		sorted = sorted[:a.maxSearches]
	}
	out := make([]core.SearchEvent, len(sorted))
	for i, s := range sorted {
		out[i] = s.ev
	}
	return out
}

func (a *Aggregator) skip(res *Result, reason string) {
	res.Skipped++
	metrics.RecordsSkippedTotal.WithLabelValues(reason).Inc()
}
