package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/rushteam/persona/core"
)

// Pipeline 把排序逻辑拆成可组合的 Node 链，前一个 Node 的输出是后一个的输入。
type Pipeline struct {
	Nodes []Node

	// Logger 为空值时不输出节点级日志
	Logger zerolog.Logger
}

func (p *Pipeline) Run(
	ctx context.Context,
	rctx *core.RecommendContext,
	items []*core.ScoredArticle,
) ([]*core.ScoredArticle, error) {
	cur := items
	for _, node := range p.Nodes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		start := time.Now()
		next, err := node.Process(ctx, rctx, cur)
		if err != nil {
			return nil, fmt.Errorf("%s %s: %w", node.Kind(), node.Name(), err)
		}
		p.Logger.Debug().
			Str("node", node.Name()).
			Str("kind", string(node.Kind())).
			Int("in", len(cur)).
			Int("out", len(next)).
			Dur("took", time.Since(start)).
			Msg("pipeline node done")
		cur = next
	}
	return cur, nil
}
