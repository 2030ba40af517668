package recall

import (
	"context"

	"github.com/rushteam/persona/core"
)

// Source 表示一个可复用的召回源，Similar 是目前唯一的实现。
type Source interface {
	Name() string
	Recall(ctx context.Context, rctx *core.RecommendContext) ([]*core.ScoredArticle, error)
}

var _ Source = (*Similar)(nil)
