// Package app 按配置装配存储、Embedding 客户端与各业务组件，并以 suture 监督树运行 HTTP 服务和周期聚合。
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/thejerf/suture/v4"

	"github.com/rushteam/persona/config"
	"github.com/rushteam/persona/core"
	"github.com/rushteam/persona/ingest"
	"github.com/rushteam/persona/pkg/logging"
	"github.com/rushteam/persona/profile"
	"github.com/rushteam/persona/recommend"
	"github.com/rushteam/persona/scheduler"
	"github.com/rushteam/persona/search"
	"github.com/rushteam/persona/server"
	"github.com/rushteam/persona/service"
	"github.com/rushteam/persona/store"
	"github.com/rushteam/persona/weight"
)

// App 持有全部组件；字段在 New 之后只读
type App struct {
	Config *config.Config

	Backend  store.Backend
	Profiles core.ProfileStore
	// KV 供过滤节点读取黑名单等列表；画像存在 KV 时与画像共用
	KV core.KVStore

	Embedder    core.EmbeddingService
	Aggregator  *profile.Aggregator
	Recommender *recommend.Service
	Search      *search.Ranker
	Ingest      *ingest.Processor
	Batch       *scheduler.BatchAggregator

	logger  zerolog.Logger
	closers []func() error
}

// Option App 配置选项
type Option func(*appOptions)

type appOptions struct {
	embedder core.EmbeddingService
}

// WithEmbedder 替换 Embedding 客户端（测试或离线场景）
func WithEmbedder(e core.EmbeddingService) Option {
	return func(o *appOptions) {
		o.embedder = e
	}
}

// New 打开存储并装配组件。任一步失败会关闭已打开的资源。
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	var o appOptions
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{Config: cfg, logger: logging.Component("app")}
	if err := a.build(ctx, o); err != nil {
		if cerr := a.Close(); cerr != nil {
			a.logger.Warn().Err(cerr).Msg("close after failed start")
		}
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context, o appOptions) error {
	cfg := a.Config
	if err := a.openBackend(ctx); err != nil {
		return err
	}
	if err := a.openProfiles(ctx); err != nil {
		return err
	}

	a.Embedder = o.embedder
	if a.Embedder == nil {
		client, err := service.NewEmbeddingClient(cfg.Embedding)
		if err != nil {
			return fmt.Errorf("embedding client: %w", err)
		}
		a.Embedder = client
	}

	a.Aggregator = profile.NewAggregator(a.Backend, a.Backend, a.Profiles,
		profile.WithDimension(cfg.Aggregation.Dimension),
		profile.WithMaxSearches(cfg.Aggregation.MaxSearches),
		profile.WithCalculator(weight.NewCalculator(weight.WithWeights(cfg.Weighting))),
	)

	deps := config.NodeDeps{KV: a.KV}
	rankingNodes, err := config.BuildPostNodes(deps, cfg.Ranking.PostNodes)
	if err != nil {
		return fmt.Errorf("ranking.post_nodes: %w", err)
	}
	searchNodes, err := config.BuildPostNodes(deps, cfg.Search.PostNodes)
	if err != nil {
		return fmt.Errorf("search.post_nodes: %w", err)
	}

	a.Recommender, err = recommend.NewService(a.Backend, a.Backend, a.Profiles,
		recommend.WithConfig(cfg.Ranking),
		recommend.WithPostNodes(rankingNodes...),
	)
	if err != nil {
		return err
	}
	a.Search = search.NewRanker(a.Embedder, a.Backend,
		search.WithConfig(cfg.Search),
		search.WithEngagement(a.Backend),
		search.WithSocialGraph(a.Backend),
		search.WithSearchRecorder(a.Backend),
		search.WithUserDirectory(a.Backend),
		search.WithPostNodes(searchNodes...),
	)
	a.Ingest = ingest.NewProcessor(a.Embedder, a.Backend, ingest.WithConcurrency(cfg.Ingest.Concurrency))
	a.Batch = scheduler.NewBatchAggregator(a.Backend, a.Aggregator, scheduler.WithConcurrency(cfg.Scheduler.Concurrency))

	a.logger.Info().
		Str("backend", a.Backend.Name()).
		Str("profiles", cfg.Storage.Profiles).
		Int("ranking_post_nodes", len(rankingNodes)).
		Int("search_post_nodes", len(searchNodes)).
		Msg("components ready")
	return nil
}

func (a *App) openBackend(ctx context.Context) error {
	st := a.Config.Storage
	switch st.Backend {
	case config.BackendMongo:
		m, err := store.OpenMongo(ctx, st.Mongo)
		if err != nil {
			return fmt.Errorf("open mongo: %w", err)
		}
		a.setBackend(m)
	case config.BackendSQLite:
		s, err := store.OpenSQLite(ctx, st.SQLitePath)
		if err != nil {
			return fmt.Errorf("open sqlite: %w", err)
		}
		a.setBackend(s)
		if st.Fixtures != "" {
			if err := seedIfEmpty(ctx, s, st.Fixtures); err != nil {
				return err
			}
		}
	default:
		corpus := store.NewMemoryCorpus()
		if st.Fixtures != "" {
			var err error
			if corpus, err = store.LoadFixturesFile(st.Fixtures); err != nil {
				return err
			}
		}
		a.setBackend(corpus)
	}
	return nil
}

// seedIfEmpty 只在库里还没有文章时灌入种子数据，重启不会重复写交互记录
func seedIfEmpty(ctx context.Context, s *store.SQLiteStore, path string) error {
	existing, err := s.ListArticles(ctx)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}
	fx, err := store.ReadFixturesFile(path)
	if err != nil {
		return err
	}
	if err := s.Seed(ctx, fx); err != nil {
		return fmt.Errorf("seed sqlite: %w", err)
	}
	return nil
}

func (a *App) setBackend(b store.Backend) {
	a.Backend = b
	a.closers = append(a.closers, b.Close)
}

// openProfiles 选择画像存储，同时确定过滤节点使用的 KV
func (a *App) openProfiles(ctx context.Context) error {
	st := a.Config.Storage
	var kv core.KVStore
	switch st.Profiles {
	case config.ProfileRedis:
		r, err := store.NewRedisStore(ctx, st.Redis)
		if err != nil {
			return fmt.Errorf("open redis: %w", err)
		}
		kv = r
	case config.ProfileBadger:
		b, err := store.NewBadgerStore(st.BadgerPath)
		if err != nil {
			return fmt.Errorf("open badger: %w", err)
		}
		kv = b
	default:
		kv = store.NewMemoryStore()
	}
	a.KV = kv
	a.closers = append(a.closers, kv.Close)

	if ps, ok := a.Backend.(core.ProfileStore); ok && st.Profiles == config.ProfileBackend {
		a.Profiles = ps
		return nil
	}
	a.Profiles = store.NewKVProfileStore(kv, st.ProfileKeyPrefix, store.WithProfileTTL(st.ProfileTTL))
	return nil
}

// Ready 检查后端连通性
func (a *App) Ready(ctx context.Context) error {
	if p, ok := a.Backend.(interface{ Ping(context.Context) error }); ok {
		if err := p.Ping(ctx); err != nil {
			return err
		}
	}
	return a.KV.Ping(ctx)
}

// Server 返回挂好依赖的 HTTP API
func (a *App) Server() *server.Server {
	return server.New(server.Deps{
		Aggregator:   a.Aggregator,
		Recommender:  a.Recommender,
		Searcher:     a.Search,
		Ingester:     a.Ingest,
		Corpus:       a.Backend,
		Engagement:   a.Backend,
		Interactions: a.Backend,
	},
		server.WithMaxBodyBytes(a.Config.Server.MaxBodyBytes),
		server.WithMaxLimit(a.Recommender.Config().MaxLimit),
		server.WithReadiness(a.Ready),
	)
}

// Supervisor 构建监督树：HTTP 服务与（开启时）周期聚合
func (a *App) Supervisor() *suture.Supervisor {
	sup := suture.New("persona", suture.Spec{
		EventHook: func(e suture.Event) {
			a.logger.Warn().Fields(e.Map()).Msg(e.String())
		},
		Timeout: a.Config.Server.ShutdownTimeout,
	})

	sc := a.Config.Server
	httpServer := &http.Server{
		Addr:              sc.Addr,
		Handler:           a.Server().Handler(),
		ReadTimeout:       sc.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      sc.WriteTimeout,
	}
	sup.Add(server.NewService(httpServer, sc.ShutdownTimeout))

	if a.Config.Scheduler.Enabled {
		sup.Add(scheduler.NewService(a.Batch, a.Config.Scheduler.Interval, a.Config.Scheduler.RunOnStart))
	}
	return sup
}

// Run 运行监督树直到 ctx 取消
func (a *App) Run(ctx context.Context) error {
	a.logger.Info().Str("addr", a.Config.Server.Addr).Bool("scheduler", a.Config.Scheduler.Enabled).Msg("starting")
	err := a.Supervisor().Serve(ctx)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

// Close 逆序关闭所有资源
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
