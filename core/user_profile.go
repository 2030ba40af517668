package core

import "time"

// UserProfileEmbedding 是用户画像向量：用户交互加权后的文章向量质心。
//
//   - 每次聚合整体重算、整体覆盖，从不局部更新
//   - 只由 profile.Aggregator 写入，排序侧只读
//   - 并发写同一用户时后写者生效（last writer wins）
type UserProfileEmbedding struct {
	UserID      int64     `json:"user_id"`
	Embedding   []float32 `json:"embedding"`
	LastUpdated time.Time `json:"last_updated"`
}

// Dimension 返回画像向量维度
func (p *UserProfileEmbedding) Dimension() int {
	if p == nil {
		return 0
	}
	return len(p.Embedding)
}
