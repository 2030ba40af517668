package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/thejerf/suture/v4"

	"github.com/rushteam/persona/core"
	"github.com/rushteam/persona/pkg/logging"
)

// DefaultInterval 批量聚合周期
const DefaultInterval = core.DefaultAggregationInterval

// Service 把 BatchAggregator 包装成 suture.Service，按固定周期运行直到 ctx 取消。
//
// RunOnStart 为 true 时启动后立即跑一次，否则等第一个周期。
type Service struct {
	batch      *BatchAggregator
	interval   time.Duration
	runOnStart bool
	logger     zerolog.Logger

	// runs 每次运行结束后收到 Summary，测试用
	runs chan<- *Summary
}

// NewService 创建周期任务；interval<=0 时使用 DefaultInterval
func NewService(batch *BatchAggregator, interval time.Duration, runOnStart bool) *Service {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Service{
		batch:      batch,
		interval:   interval,
		runOnStart: runOnStart,
		logger:     logging.Component("scheduler"),
	}
}

// Serve 实现 suture.Service
func (s *Service) Serve(ctx context.Context) error {
	s.logger.Info().Dur("interval", s.interval).Msg("aggregation scheduler started")
	if s.runOnStart {
		s.run(ctx)
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("aggregation scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.run(ctx)
		}
	}
}

func (s *Service) run(ctx context.Context) {
	sum, err := s.batch.RunAll(ctx)
	if err != nil && sum == nil {
		s.logger.Error().Err(err).Msg("batch aggregation failed")
	}
	if s.runs != nil && sum != nil {
		select {
		case s.runs <- sum:
		case <-ctx.Done():
		}
	}
}

func (s *Service) String() string { return "aggregation-scheduler" }

var _ suture.Service = (*Service)(nil)
