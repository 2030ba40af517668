// Package weight 把单条交互记录 + 当前时间映射为非负权重。
//
//	recency = 1.2 （now - t < 24h）否则 0.8；时间缺失/无法解析按旧事件处理
//	like    = 0.5 * recency
//	save    = 0.4 * recency
//	search  = 0.2 * recency
//	read    = (0.1*read_count + 0.3*min((init_s+latest_s)/60, 5) + 0.2*((init_pct+latest_pct)/2)/100) * recency
//
// 单条记录计算出错（包括 panic）只让这一条贡献 0，不影响同一用户的其他记录。
package weight

import (
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/rushteam/persona/core"
	"github.com/rushteam/persona/metrics"
	"github.com/rushteam/persona/pkg/conv"
	"github.com/rushteam/persona/pkg/logging"
)

// Weights 权重系数
type Weights struct {
	Like   float64 `koanf:"like"`
	Save   float64 `koanf:"save"`
	Search float64 `koanf:"search"`

	ReadCount       float64 `koanf:"read_count"`
	ReadDuration    float64 `koanf:"read_duration"`
	ReadDurationCap float64 `koanf:"read_duration_cap"` // 分钟
	ReadProgress    float64 `koanf:"read_progress"`

	RecentMultiplier float64       `koanf:"recent_multiplier"`
	StaleMultiplier  float64       `koanf:"stale_multiplier"`
	RecencyWindow    time.Duration `koanf:"recency_window"`

	// StaleAge 时间戳无法解析时假定的事件年龄，必须 >= RecencyWindow
	StaleAge time.Duration `koanf:"stale_age"`
}

// DefaultWeights 返回默认系数
func DefaultWeights() Weights {
	return Weights{
		Like:             0.5,
		Save:             0.4,
		Search:           0.2,
		ReadCount:        0.1,
		ReadDuration:     0.3,
		ReadDurationCap:  5,
		ReadProgress:     0.2,
		RecentMultiplier: 1.2,
		StaleMultiplier:  0.8,
		RecencyWindow:    24 * time.Hour,
		StaleAge:         48 * time.Hour,
	}
}

// Calculator 计算交互权重，并发安全（无可变状态）。
type Calculator struct {
	weights Weights
	logger  zerolog.Logger
}

// Option Calculator 配置选项
type Option func(*Calculator)

// WithWeights 设置权重系数
func WithWeights(w Weights) Option {
	return func(c *Calculator) {
		c.weights = w
	}
}

// WithLogger 设置 logger
func WithLogger(l zerolog.Logger) Option {
	return func(c *Calculator) {
		c.logger = l
	}
}

// NewCalculator 创建权重计算器
func NewCalculator(opts ...Option) *Calculator {
	c := &Calculator{
		weights: DefaultWeights(),
		logger:  logging.Component("weight"),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.weights.StaleAge < c.weights.RecencyWindow {
		c.weights.StaleAge = c.weights.RecencyWindow
	}
	return c
}

// Weights 返回当前系数
func (c *Calculator) Weights() Weights {
	return c.weights
}

// EventTime 解析事件时间；无法解析时返回 now - StaleAge
func (c *Calculator) EventTime(raw any, now time.Time) time.Time {
	return conv.ParseTimeOrDefault(raw, now.Add(-c.weights.StaleAge))
}

// Recency 返回时间衰减系数
func (c *Calculator) Recency(raw any, now time.Time) float64 {
	t := c.EventTime(raw, now)
	if now.Sub(t) < c.weights.RecencyWindow {
		return c.weights.RecentMultiplier
	}
	return c.weights.StaleMultiplier
}

// Like 点赞权重
func (c *Calculator) Like(ev core.LikeEvent, now time.Time) float64 {
	return c.safe(core.KindLike, ev.ArticleID, func() float64 {
		return c.weights.Like * c.Recency(ev.CreatedAt, now)
	})
}

// Save 收藏权重
func (c *Calculator) Save(ev core.SaveEvent, now time.Time) float64 {
	return c.safe(core.KindSave, ev.ArticleID, func() float64 {
		return c.weights.Save * c.Recency(ev.CreatedAt, now)
	})
}

// Search 搜索贡献权重（直接作为向量权重，不与文章合并）
func (c *Calculator) Search(ev core.SearchEvent, now time.Time) float64 {
	return c.safe(core.KindSearch, "", func() float64 {
		return c.weights.Search * c.Recency(ev.CreatedAt, now)
	})
}

// Read 阅读权重
func (c *Calculator) Read(ev core.ReadEvent, now time.Time) float64 {
	return c.safe(core.KindRead, ev.ArticleID, func() float64 {
		w := c.weights
		readCount := conv.IntOr(ev.ReadCount, 1)
		initDur := conv.IntOr(ev.InitialDurationS, 0)
		latestDur := conv.IntOr(ev.LatestDurationS, 0)
		initPct := conv.FloatOr(ev.InitialReadPct, 0)
		latestPct := conv.FloatOr(ev.LatestReadPct, 0)

		minutes := math.Min(float64(initDur+latestDur)/60, w.ReadDurationCap)
		progress := (initPct + latestPct) / 2 / 100

		base := w.ReadCount*float64(readCount) + w.ReadDuration*minutes + w.ReadProgress*progress
		return base * c.Recency(ev.LastReadAt, now)
	})
}

// safe 隔离单条记录的异常：panic 或 NaN 记 0，负数截断为 0。
func (c *Calculator) safe(kind core.InteractionKind, articleID string, fn func() float64) (w float64) {
	defer func() {
		if r := recover(); r != nil {
			metrics.WeightPanicsTotal.WithLabelValues(string(kind)).Inc()
			c.logger.Error().
				Str("kind", string(kind)).
				Str("article_id", articleID).
				Interface("panic", r).
				Msg("weighting interaction failed, contributing zero")
			w = 0
		}
	}()
	w = fn()
	if math.IsNaN(w) || math.IsInf(w, 0) || w < 0 {
		c.logger.Warn().
			Str("kind", string(kind)).
			Str("article_id", articleID).
			Float64("weight", w).
			Msg("non-finite or negative weight clamped to zero")
		return 0
	}
	return w
}
