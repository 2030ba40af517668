// Package metrics 定义引擎的 Prometheus 指标。
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "persona"

var (
	// AggregationsTotal 按结果状态统计画像聚合次数
	AggregationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "aggregations_total",
			Help:      "User embedding aggregations by outcome.",
		},
		[]string{"status"},
	)

	// AggregationDuration 单用户聚合耗时
	AggregationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "aggregation_duration_seconds",
			Help:      "Time spent aggregating one user's embedding.",
			Buckets:   prometheus.DefBuckets,
		},
	)

	// RecordsSkippedTotal 聚合时被跳过的记录数（按原因）
	RecordsSkippedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_skipped_total",
			Help:      "Interaction records or articles skipped during aggregation.",
		},
		[]string{"reason"},
	)

	// WeightPanicsTotal 权重计算中被恢复的 panic 次数
	WeightPanicsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "weight_panics_total",
			Help:      "Recovered panics while weighting a single interaction.",
		},
		[]string{"kind"},
	)

	// EmbeddingRequestsTotal Embedding 服务调用次数（按结果）
	EmbeddingRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "embedding_requests_total",
			Help:      "Calls to the external embedding service by result.",
		},
		[]string{"result"},
	)

	// EmbeddingDuration Embedding 服务调用耗时
	EmbeddingDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "embedding_duration_seconds",
			Help:      "Latency of embedding service calls.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
	)

	// BreakerState 熔断器状态：0 closed, 1 half-open, 2 open
	BreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state (0 closed, 1 half-open, 2 open).",
		},
		[]string{"name"},
	)

	// RankingDuration 排序操作耗时（按操作）
	RankingDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ranking_duration_seconds",
			Help:      "Latency of ranking operations.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	// SearchCandidates 语义搜索各阶段的候选数
	SearchCandidates = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_candidates",
			Help:      "Candidates per search stage.",
			Buckets:   []float64{0, 1, 2, 5, 10, 20, 50},
		},
		[]string{"stage"},
	)

	// FilteredTotal 被过滤器剔除的候选数；filter 出错时 reason 为 error
	FilteredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "filtered_candidates_total",
			Help:      "Candidates removed by ranking filters.",
		},
		[]string{"filter", "reason"},
	)

	// BatchRunsTotal 批量聚合运行次数
	BatchRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batch_runs_total",
			Help:      "Batch aggregation runs by result.",
		},
		[]string{"result"},
	)

	// IngestTotal 文章入库向量化结果
	IngestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_articles_total",
			Help:      "Articles processed by the ingestion pipeline by result.",
		},
		[]string{"result"},
	)

	// HTTPRequestDuration API 请求耗时
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP API latency by route and status.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"route", "status"},
	)
)
