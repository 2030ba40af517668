package core

import (
	"time"

	"github.com/rushteam/persona/pkg/utils"
)

// ScoredArticle 是排序链路中的统一承载结构：相似度、综合分、元信息、标签。
// Labels 用于解释与策略驱动；Similarity / CompositeScore 用于排序决策。
// 每次排序调用临时产生，不持久化。
type ScoredArticle struct {
	ArticleID string

	// Similarity 余弦相似度，范围 [-1, 1]
	Similarity float64

	// CompositeScore 综合分，仅搜索链路会设置
	CompositeScore float64

	AuthorID   int64
	CreatedAt  time.Time
	Popularity int

	Meta   map[string]any
	Labels map[string]utils.Label
}

// NewScoredArticle 创建一个候选文章
func NewScoredArticle(id string) *ScoredArticle {
	return &ScoredArticle{
		ArticleID: id,
		Meta:      make(map[string]any),
		Labels:    make(map[string]utils.Label),
	}
}

// NewScoredArticleFrom 从文章投影创建候选，带上作者、发布时间与类目
func NewScoredArticleFrom(a *Article) *ScoredArticle {
	it := NewScoredArticle(a.ArticleID)
	it.AuthorID = a.AuthorID
	it.CreatedAt = a.CreatedAt
	if a.Category != "" {
		it.Meta["category"] = a.Category
	}
	if a.Title != "" {
		it.Meta["title"] = a.Title
	}
	return it
}

// SetLabel 覆盖写入，用于名次这类只关心最新值的 label
func (it *ScoredArticle) SetLabel(key string, lbl utils.Label) {
	if it.Labels == nil {
		it.Labels = make(map[string]utils.Label)
	}
	it.Labels[key] = lbl
}

// PutLabel 写入 Label；若已存在同名 key，则按默认 Merge 规则累积。
func (it *ScoredArticle) PutLabel(key string, lbl utils.Label) {
	if it.Labels == nil {
		it.Labels = make(map[string]utils.Label)
	}
	if old, ok := it.Labels[key]; ok {
		it.Labels[key] = utils.MergeLabel(old, lbl)
		return
	}
	it.Labels[key] = lbl
}
