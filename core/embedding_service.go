package core

import "context"

// EmbeddingService 是外部文本向量服务的领域接口。
//
// 实现：
//   - service.EmbeddingClient（HTTP JSON：{"texts": [s]} -> {"embeddings": [[...]]}）
//
// 调用必须有超时上限；失败时返回 ErrEmbeddingUnavailable（可用 IsUnavailable 判断）。
// 由调用方决定失败后的策略：查询时让整个操作失败，入库时跳过该文章。
type EmbeddingService interface {
	// Embed 按文本长度选择短/长超时
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedLong 强制使用长文本超时（正文）
	EmbedLong(ctx context.Context, text string) ([]float32, error)
}
