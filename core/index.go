package core

import "context"

// ArticleIndex 在文章向量上做近邻检索，语义搜索的召回阶段使用。
// 实现见 vector.FlatIndex。
type ArticleIndex interface {
	Search(ctx context.Context, q IndexQuery) ([]IndexHit, error)
	Close() error
}

// IndexQuery 一次检索；Limit <= 0 时由实现决定默认值，Metric 为空时用索引自身的度量
type IndexQuery struct {
	Vector []float32
	Limit  int
	Metric Metric
}

// IndexHit 按 Score 降序返回，同分保持入库顺序
type IndexHit struct {
	ArticleID string
	Score     float64
}

// Metric 向量相似度度量
type Metric string

const (
	MetricCosine       Metric = "cosine"
	MetricEuclidean    Metric = "euclidean"
	MetricInnerProduct Metric = "inner_product"
)

func (m Metric) Valid() bool {
	switch m {
	case MetricCosine, MetricEuclidean, MetricInnerProduct:
		return true
	}
	return false
}
