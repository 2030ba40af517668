package core

import "time"

// 排序与聚合的默认参数。config.Default() 以此为准，组件字段为零值时也回退到这里。
const (
	// DefaultSimilarLimit findSimilar 默认返回条数
	DefaultSimilarLimit = 10
	// MaxSimilarLimit findSimilar 允许的最大 limit，超过直接拒绝
	MaxSimilarLimit = 50
	// DefaultCandidatePool 未读推荐的候选池大小
	DefaultCandidatePool = 50
	// DefaultTimeBasedLimit 时间窗口推荐返回条数
	DefaultTimeBasedLimit = 5

	// DefaultMaxSearches 聚合时参与计算的最近搜索条数
	DefaultMaxSearches = 10

	// DefaultSearchTopK 语义搜索 ANN 召回的 K
	DefaultSearchTopK = 20
	// DefaultRelevanceFloor 语义搜索相似度下限
	DefaultRelevanceFloor = 0.3
	// DefaultSearchLimit 语义搜索返回条数
	DefaultSearchLimit = 10
	// DefaultUserSearchLimit 用户名搜索返回条数
	DefaultUserSearchLimit = 5
)

const (
	// DefaultPrimaryWindow 时间窗口过滤的主窗口
	DefaultPrimaryWindow = 12 * time.Hour
	// DefaultFallbackWindow 主窗口无结果时的回退窗口
	DefaultFallbackWindow = 72 * time.Hour

	// DefaultShortTextTimeout 短文本 Embedding 调用超时
	DefaultShortTextTimeout = 30 * time.Second
	// DefaultLongTextTimeout 长文本 Embedding 调用超时
	DefaultLongTextTimeout = 60 * time.Second

	// DefaultAggregationInterval 全量用户画像重算周期
	DefaultAggregationInterval = 6 * time.Hour
)
