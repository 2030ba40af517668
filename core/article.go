package core

import "time"

// ArticleEmbedding 是文章的标题/正文向量。
//
// 不变量：两个向量都非空且长度相同时文章才可用；
// 文章的组合表示固定为 0.5*title + 0.5*text。
// 不满足不变量的文章在排序中被静默跳过，不报错。
type ArticleEmbedding struct {
	ArticleID      string
	TitleEmbedding []float32
	TextEmbedding  []float32
}

// Usable 判断向量是否满足不变量
func (a *ArticleEmbedding) Usable() bool {
	if a == nil {
		return false
	}
	return len(a.TitleEmbedding) > 0 && len(a.TitleEmbedding) == len(a.TextEmbedding)
}

// Dimension 返回向量维度，不可用时返回 0
func (a *ArticleEmbedding) Dimension() int {
	if !a.Usable() {
		return 0
	}
	return len(a.TitleEmbedding)
}

// Combined 返回 0.5*title + 0.5*text；不可用时返回 nil。
func (a *ArticleEmbedding) Combined() []float32 {
	if !a.Usable() {
		return nil
	}
	out := make([]float32, len(a.TitleEmbedding))
	for i := range out {
		out[i] = float32(0.5*float64(a.TitleEmbedding[i]) + 0.5*float64(a.TextEmbedding[i]))
	}
	return out
}

// Article 是排序用到的文章投影：向量 + 作者 + 发布时间等元信息。
type Article struct {
	ArticleEmbedding

	AuthorID int64
	Title    string
	Category string

	// CreatedAt 为零值表示未知
	CreatedAt time.Time
}

// Engagement 是文章的互动计数，用于搜索排序中的热度分。
type Engagement struct {
	Likes    int
	Comments int
}

// Popularity = 点赞数 + 评论数
func (e Engagement) Popularity() int {
	return e.Likes + e.Comments
}

// UserSummary 是用户搜索返回的精简用户信息。
type UserSummary struct {
	UserID   int64  `json:"id"`
	Username string `json:"username"`
}
