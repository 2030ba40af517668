// Package vector 提供内存向量检索。
package vector

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/rushteam/persona/core"
	"github.com/rushteam/persona/pkg/vecmath"
)

// FlatIndex 是精确（暴力）向量索引，等价于 FAISS 的 IndexFlatIP。
//
// 特点：
//   - 纯内存，维度在第一次 Add 时确定
//   - 默认度量为内积；向量与查询都做过 L2 归一化时内积即余弦相似度
//   - 同分按加入顺序返回，结果可复现
//   - 线程安全
//
// 语义搜索每次查询都新建一个 FlatIndex，不跨请求保留。
type FlatIndex struct {
	mu      sync.RWMutex
	dim     int
	metric  core.Metric
	ids     []string
	vectors [][]float32
}

// NewFlatIndex 创建索引；metric 为空时使用内积
func NewFlatIndex(metric core.Metric) (*FlatIndex, error) {
	if metric == "" {
		metric = core.MetricInnerProduct
	}
	if !metric.Valid() {
		return nil, core.ErrInvalidInput(core.ModuleVector, fmt.Sprintf("vector: unsupported metric %q", metric))
	}
	return &FlatIndex{metric: metric}, nil
}

func (f *FlatIndex) Name() string { return "flat_" + string(f.metric) }

// Dimension 返回索引维度，空索引返回 0
func (f *FlatIndex) Dimension() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.dim
}

// Len 返回向量数
func (f *FlatIndex) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.ids)
}

// Add 加入一个向量；维度与索引不一致时返回 INVALID_INPUT
func (f *FlatIndex) Add(id string, vec []float32) error {
	if len(vec) == 0 {
		return core.ErrInvalidInput(core.ModuleVector, "vector: empty vector for "+id)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.dim == 0 {
		f.dim = len(vec)
	}
	if len(vec) != f.dim {
		return core.ErrInvalidInput(core.ModuleVector,
			fmt.Sprintf("vector: dimension mismatch for %s: got %d, want %d", id, len(vec), f.dim))
	}
	f.ids = append(f.ids, id)
	f.vectors = append(f.vectors, append([]float32(nil), vec...))
	return nil
}

// Search 实现 core.ArticleIndex
func (f *FlatIndex) Search(ctx context.Context, q core.IndexQuery) ([]core.IndexHit, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if len(f.ids) == 0 {
		return []core.IndexHit{}, nil
	}
	if len(q.Vector) != f.dim {
		return nil, core.ErrInvalidInput(core.ModuleVector,
			fmt.Sprintf("vector: query dimension %d, index dimension %d", len(q.Vector), f.dim))
	}
	limit := q.Limit
	if limit <= 0 {
		limit = core.DefaultSearchTopK
	}
	score, err := scorer(q.Metric, f.metric)
	if err != nil {
		return nil, err
	}

	hits := make([]core.IndexHit, len(f.ids))
	for i, vec := range f.vectors {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		hits[i] = core.IndexHit{ArticleID: f.ids[i], Score: score(q.Vector, vec)}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// scorer 选出打分函数，分数越大越相似
func scorer(m, fallback core.Metric) (func(a, b []float32) float64, error) {
	if m == "" {
		m = fallback
	}
	switch m {
	case core.MetricCosine:
		return vecmath.CosineSimilarity, nil
	case core.MetricEuclidean:
		return func(a, b []float32) float64 { return 1 / (1 + euclideanDistance(a, b)) }, nil
	case core.MetricInnerProduct:
		return vecmath.Dot, nil
	}
	return nil, core.ErrInvalidInput(core.ModuleVector, fmt.Sprintf("vector: unsupported metric %q", m))
}

// Close 清空索引
func (f *FlatIndex) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ids = nil
	f.vectors = nil
	f.dim = 0
	return nil
}

func euclideanDistance(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

var _ core.ArticleIndex = (*FlatIndex)(nil)
