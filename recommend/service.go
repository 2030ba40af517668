// Package recommend 是基于画像向量的推荐：相似文章、未读推荐、时间窗口推荐。
package recommend

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/rushteam/persona/core"
	"github.com/rushteam/persona/filter"
	"github.com/rushteam/persona/metrics"
	"github.com/rushteam/persona/pipeline"
	"github.com/rushteam/persona/pkg/logging"
	"github.com/rushteam/persona/recall"
	"github.com/rushteam/persona/rerank"
)

// Config 是排序相关配置（对应配置文件的 ranking 段）
type Config struct {
	DefaultLimit   int           `koanf:"default_limit"`
	MaxLimit       int           `koanf:"max_limit"`
	CandidatePool  int           `koanf:"candidate_pool"`
	TimeBasedLimit int           `koanf:"time_based_limit"`
	PrimaryWindow  time.Duration `koanf:"primary_window"`
	FallbackWindow time.Duration `koanf:"fallback_window"`

	// FilterExpr 是可选的 CEL 候选过滤表达式，为 true 的候选保留
	FilterExpr string `koanf:"filter_expr"`

	// PostNodes 在最终截断前追加的过滤/重排节点（黑名单、多样性等），由 config.NodeFactory 构建
	PostNodes []pipeline.NodeConfig `koanf:"post_nodes"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		DefaultLimit:   core.DefaultSimilarLimit,
		MaxLimit:       core.MaxSimilarLimit,
		CandidatePool:  core.DefaultCandidatePool,
		TimeBasedLimit: core.DefaultTimeBasedLimit,
		PrimaryWindow:  core.DefaultPrimaryWindow,
		FallbackWindow: core.DefaultFallbackWindow,
	}
}

// Service 是推荐服务，每次调用都基于当前画像重新扫描语料，无缓存。
type Service struct {
	corpus       core.CorpusReader
	interactions core.InteractionReader
	profiles     core.ProfileStore

	cfg       Config
	expr      *filter.ExprFilter
	postNodes []pipeline.Node
	clock     func() time.Time
	logger    zerolog.Logger
}

// Option Service 配置选项
type Option func(*Service)

// WithConfig 设置排序配置，零值字段保留默认
func WithConfig(cfg Config) Option {
	return func(s *Service) {
		def := s.cfg
		if cfg.DefaultLimit <= 0 {
			cfg.DefaultLimit = def.DefaultLimit
		}
		if cfg.MaxLimit <= 0 {
			cfg.MaxLimit = def.MaxLimit
		}
		if cfg.CandidatePool <= 0 {
			cfg.CandidatePool = def.CandidatePool
		}
		if cfg.TimeBasedLimit <= 0 {
			cfg.TimeBasedLimit = def.TimeBasedLimit
		}
		if cfg.PrimaryWindow <= 0 {
			cfg.PrimaryWindow = def.PrimaryWindow
		}
		if cfg.FallbackWindow <= 0 {
			cfg.FallbackWindow = def.FallbackWindow
		}
		s.cfg = cfg
	}
}

// WithPostNodes 设置在最终截断前执行的节点
func WithPostNodes(nodes ...pipeline.Node) Option {
	return func(s *Service) {
		s.postNodes = append(s.postNodes, nodes...)
	}
}

// WithClock 设置时钟（测试用）
func WithClock(clock func() time.Time) Option {
	return func(s *Service) {
		s.clock = clock
	}
}

// WithLogger 设置 logger
func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) {
		s.logger = l
	}
}

// NewService 创建推荐服务；FilterExpr 编译失败时返回 INVALID_INPUT
func NewService(corpus core.CorpusReader, interactions core.InteractionReader, profiles core.ProfileStore, opts ...Option) (*Service, error) {
	s := &Service{
		corpus:       corpus,
		interactions: interactions,
		profiles:     profiles,
		cfg:          DefaultConfig(),
		clock:        time.Now,
		logger:       logging.Component("recommend"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cfg.FilterExpr != "" {
		f, err := filter.NewExprFilter(s.cfg.FilterExpr)
		if err != nil {
			return nil, err
		}
		s.expr = f
	}
	return s, nil
}

// Config 返回生效的配置
func (s *Service) Config() Config { return s.cfg }

// FindSimilar 返回与用户画像最相似的 limit 篇文章（相似度降序）。
//
// limit 为 0 时使用默认值；limit < 0 或超过上限返回 INVALID_INPUT。
// 用户没有画像时返回 core.ErrNoProfile。
func (s *Service) FindSimilar(ctx context.Context, userID int64, limit int) ([]*core.ScoredArticle, error) {
	if err := validUser(userID); err != nil {
		return nil, err
	}
	if limit == 0 {
		limit = s.cfg.DefaultLimit
	}
	if limit < 1 || limit > s.cfg.MaxLimit {
		return nil, core.ErrInvalidInput(core.ModuleRank,
			fmt.Sprintf("rank: limit must be between 1 and %d, got %d", s.cfg.MaxLimit, limit))
	}

	rctx := core.NewRecommendContext(userID, s.clock())
	return s.run(ctx, "find_similar", rctx, s.tail(nil, &rerank.TopNNode{N: limit})...)
}

// RecommendUnread 返回候选池中用户未读过的文章。
// 画像不存在或全部已读时返回空列表而不是错误。
func (s *Service) RecommendUnread(ctx context.Context, userID int64) ([]*core.ScoredArticle, error) {
	if err := validUser(userID); err != nil {
		return nil, err
	}
	rctx, err := s.contextWithReads(ctx, userID)
	if err != nil {
		return nil, err
	}
	out, err := s.run(ctx, "recommend_unread", rctx, s.tail([]pipeline.Node{
		&rerank.TopNNode{N: s.cfg.CandidatePool},
		&filter.FilterNode{Filters: []filter.Filter{filter.ReadFilter{}}, Logger: s.logger},
	})...)
	return s.emptyOnNoProfile(out, err, userID)
}

// TimeBased 返回候选池中最近发布的未读文章：先看主窗口，为空时放宽到降级窗口。
func (s *Service) TimeBased(ctx context.Context, userID int64) ([]*core.ScoredArticle, error) {
	if err := validUser(userID); err != nil {
		return nil, err
	}
	rctx, err := s.contextWithReads(ctx, userID)
	if err != nil {
		return nil, err
	}
	out, err := s.run(ctx, "time_based", rctx, s.tail([]pipeline.Node{
		&rerank.TopNNode{N: s.cfg.CandidatePool},
		&filter.TimeWindow{Primary: s.cfg.PrimaryWindow, Fallback: s.cfg.FallbackWindow},
	}, &rerank.TopNNode{N: s.cfg.TimeBasedLimit})...)
	return s.emptyOnNoProfile(out, err, userID)
}

// FilterByTimeWindow 按配置的主/降级窗口过滤候选，从不报错
func (s *Service) FilterByTimeWindow(candidates []*core.ScoredArticle, readIDs map[string]struct{}) []*core.ScoredArticle {
	return filter.FilterByTimeWindow(candidates, readIDs, s.cfg.PrimaryWindow, s.cfg.FallbackWindow, s.clock())
}

// tail 拼接 head + postNodes + final
func (s *Service) tail(head []pipeline.Node, final ...pipeline.Node) []pipeline.Node {
	out := make([]pipeline.Node, 0, len(head)+len(s.postNodes)+len(final))
	out = append(out, head...)
	out = append(out, s.postNodes...)
	return append(out, final...)
}

func (s *Service) run(ctx context.Context, op string, rctx *core.RecommendContext, tail ...pipeline.Node) ([]*core.ScoredArticle, error) {
	start := time.Now()
	defer func() {
		metrics.RankingDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}()

	logger := logging.Ctx(ctx, s.logger).With().Str("op", op).Int64("user_id", rctx.UserID).Logger()
	nodes := []pipeline.Node{&recall.Similar{Corpus: s.corpus, Profiles: s.profiles, Logger: logger}}
	if s.expr != nil {
		nodes = append(nodes, &filter.FilterNode{Filters: []filter.Filter{s.expr}, Logger: logger})
	}
	nodes = append(nodes, tail...)

	p := &pipeline.Pipeline{Nodes: nodes, Logger: logger}
	out, err := p.Run(ctx, rctx, nil)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []*core.ScoredArticle{}
	}
	logger.Debug().Int("results", len(out)).Msg("ranking finished")
	return out, nil
}

func (s *Service) contextWithReads(ctx context.Context, userID int64) (*core.RecommendContext, error) {
	rctx := core.NewRecommendContext(userID, s.clock())
	read, err := s.interactions.ReadArticleIDs(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load read articles for user %d: %w", userID, err)
	}
	rctx.ReadIDs = read
	return rctx, nil
}

func (s *Service) emptyOnNoProfile(out []*core.ScoredArticle, err error, userID int64) ([]*core.ScoredArticle, error) {
	if core.IsNoProfile(err) {
		s.logger.Info().Int64("user_id", userID).Msg("no profile embedding, returning empty recommendations")
		return []*core.ScoredArticle{}, nil
	}
	return out, err
}

func validUser(userID int64) error {
	if userID <= 0 {
		return core.ErrInvalidInput(core.ModuleRank, fmt.Sprintf("rank: invalid user id %d", userID))
	}
	return nil
}
