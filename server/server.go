// Package server 提供引擎的 HTTP API。
//
// 路由：
//
//	POST /ai/generate-embedding       重新聚合用户画像
//	POST /ai/find-similar-articles    画像相似文章
//	GET  /articles/recommended        未读推荐
//	GET  /articles/time-based         时间窗口推荐
//	GET  /search                      语义搜索（用户 + 文章）
//	POST /ai/process-articles         文章批量向量化入库
//	POST /ai/debug-article            文章向量诊断
//	GET  /search-history              用户最近搜索
//	GET  /healthz, /metrics
package server

import (
	"context"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/rushteam/persona/core"
	"github.com/rushteam/persona/ingest"
	"github.com/rushteam/persona/pkg/logging"
	"github.com/rushteam/persona/profile"
	"github.com/rushteam/persona/search"
)

// DefaultMaxBodyBytes 请求体上限
const DefaultMaxBodyBytes int64 = 10 << 20

// Aggregator 由 profile.Aggregator 实现
type Aggregator interface {
	Aggregate(ctx context.Context, userID int64) (*profile.Result, error)
}

// Recommender 由 recommend.Service 实现
type Recommender interface {
	FindSimilar(ctx context.Context, userID int64, limit int) ([]*core.ScoredArticle, error)
	RecommendUnread(ctx context.Context, userID int64) ([]*core.ScoredArticle, error)
	TimeBased(ctx context.Context, userID int64) ([]*core.ScoredArticle, error)
}

// Searcher 由 search.Ranker 实现
type Searcher interface {
	SearchAll(ctx context.Context, query string, requesterID int64) (*search.Results, error)
}

// Ingester 由 ingest.Processor 实现
type Ingester interface {
	ProcessBatch(ctx context.Context, articles []ingest.RawArticle) (*ingest.BatchResult, error)
}

// Deps 是 API 依赖的组件。Ingester / Engagement / Interactions 可以为空，对应路由返回 501。
type Deps struct {
	Aggregator   Aggregator
	Recommender  Recommender
	Searcher     Searcher
	Ingester     Ingester
	Corpus       core.CorpusReader
	Engagement   core.EngagementReader
	Interactions core.InteractionReader
}

// Server 持有路由与依赖
type Server struct {
	deps         Deps
	validate     *validator.Validate
	logger       zerolog.Logger
	maxBodyBytes int64
	maxLimit     int
	ready        func(ctx context.Context) error
}

// Option Server 配置选项
type Option func(*Server)

// WithLogger 设置日志
func WithLogger(l zerolog.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// WithMaxBodyBytes 设置请求体上限
func WithMaxBodyBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxBodyBytes = n
		}
	}
}

// WithMaxLimit find-similar-articles 的 limit 上限，应与 ranking.max_limit 一致
func WithMaxLimit(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxLimit = n
		}
	}
}

// WithReadiness 设置 /healthz 的就绪检查
func WithReadiness(fn func(ctx context.Context) error) Option {
	return func(s *Server) {
		s.ready = fn
	}
}

// New 创建 Server
func New(deps Deps, opts ...Option) *Server {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	s := &Server{
		deps:         deps,
		validate:     v,
		logger:       logging.Component("server"),
		maxBodyBytes: DefaultMaxBodyBytes,
		maxLimit:     core.MaxSimilarLimit,
	}
	for _, opt := range opts {
		opt(s)
	}
	v.RegisterStructValidation(func(sl validator.StructLevel) {
		req := sl.Current().Interface().(similarRequest)
		if req.Limit > s.maxLimit {
			sl.ReportError(req.Limit, "limit", "Limit", "max", strconv.Itoa(s.maxLimit))
		}
	}, similarRequest{})
	return s
}

// Handler 返回挂好中间件与路由的 http.Handler
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(s.requestID)
	r.Use(s.instrument)
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/ai", func(r chi.Router) {
		r.Post("/generate-embedding", s.handleGenerateEmbedding)
		r.Post("/find-similar-articles", s.handleFindSimilar)
		r.Post("/process-articles", s.handleProcessArticles)
		r.Post("/debug-article", s.handleDebugArticle)
	})
	r.Route("/articles", func(r chi.Router) {
		r.Get("/recommended", s.handleRecommended)
		r.Get("/time-based", s.handleTimeBased)
	})
	r.Get("/search", s.handleSearch)
	r.Get("/search-history", s.handleSearchHistory)
	return r
}
