// Package scheduler 周期性地为全部用户重算画像向量。
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/rushteam/persona/core"
	"github.com/rushteam/persona/metrics"
	"github.com/rushteam/persona/pkg/logging"
	"github.com/rushteam/persona/profile"
)

// Aggregator 是单用户画像聚合接口，由 profile.Aggregator 实现
type Aggregator interface {
	Aggregate(ctx context.Context, userID int64) (*profile.Result, error)
}

// Summary 一次批量聚合的统计
type Summary struct {
	RunID    string                 `json:"run_id"`
	Users    int                    `json:"users"`
	Statuses map[profile.Status]int `json:"statuses"`
	Failed   int                    `json:"failed"`
	Started  time.Time              `json:"started"`
	Duration time.Duration          `json:"duration"`
}

// BatchAggregator 并发为所有用户执行聚合。单个用户失败只记录，不中断整批。
type BatchAggregator struct {
	users       core.UserLister
	aggregator  Aggregator
	concurrency int
	logger      zerolog.Logger
}

// BatchOption 配置 BatchAggregator
type BatchOption func(*BatchAggregator)

// WithConcurrency 设置并发度，<=0 时忽略
func WithConcurrency(n int) BatchOption {
	return func(b *BatchAggregator) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

// WithLogger 设置日志
func WithLogger(l zerolog.Logger) BatchOption {
	return func(b *BatchAggregator) { b.logger = l }
}

// NewBatchAggregator 创建批量聚合器，默认并发 4
func NewBatchAggregator(users core.UserLister, aggregator Aggregator, opts ...BatchOption) *BatchAggregator {
	b := &BatchAggregator{
		users:       users,
		aggregator:  aggregator,
		concurrency: 4,
		logger:      logging.Component("scheduler"),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// RunAll 聚合全部用户。只有列出用户失败或 ctx 取消时返回 error。
func (b *BatchAggregator) RunAll(ctx context.Context) (*Summary, error) {
	sum := &Summary{
		RunID:    uuid.NewString(),
		Statuses: make(map[profile.Status]int),
		Started:  time.Now(),
	}
	logger := b.logger.With().Str("run_id", sum.RunID).Logger()

	ids, err := b.users.ListUserIDs(ctx)
	if err != nil {
		metrics.BatchRunsTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	logger.Info().Int("users", len(ids)).Msg("batch aggregation started")

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.concurrency)
	for _, id := range ids {
		id := id
		if id <= 0 {
			continue
		}
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			res, err := b.aggregator.Aggregate(gctx, id)

			mu.Lock()
			defer mu.Unlock()
			sum.Users++
			if err != nil {
				sum.Failed++
				logger.Error().Err(err).Int64("user_id", id).Msg("user aggregation failed")
				return nil
			}
			sum.Statuses[res.Status]++
			return nil
		})
	}
	err = g.Wait()
	sum.Duration = time.Since(sum.Started)

	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		metrics.BatchRunsTotal.WithLabelValues("cancelled").Inc()
		logger.Warn().Err(err).Int("users", sum.Users).Msg("batch aggregation interrupted")
		return sum, err
	}

	result := "ok"
	if sum.Failed > 0 {
		result = "partial"
	}
	metrics.BatchRunsTotal.WithLabelValues(result).Inc()
	logger.Info().
		Int("users", sum.Users).
		Int("success", sum.Statuses[profile.StatusSuccess]).
		Int("failed", sum.Failed).
		Dur("duration", sum.Duration).
		Msg("batch aggregation finished")
	return sum, nil
}
